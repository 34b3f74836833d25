package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
)

const (
	TokenStoreBbolt   = "bbolt"
	TokenStoreKeyring = "keyring"
	TokenStoreMemory  = "memory"
)

type Config struct {
	APIURL          string
	WSURL           string
	DBFile          string
	TokenStore      string
	CookieTTL       time.Duration
	RequestTimeout  time.Duration
	ReconnectDelays []time.Duration
	DownloadsPath   string
	Username        string
	Password        string
}

func Load() (*Config, error) {
	cookieTTL, err := time.ParseDuration(getEnv("WEBMAIL_COOKIE_TTL", "24h"))
	if err != nil {
		return nil, fmt.Errorf("WEBMAIL_COOKIE_TTL: %w", err)
	}
	requestTimeout, err := time.ParseDuration(getEnv("WEBMAIL_REQUEST_TIMEOUT", "30s"))
	if err != nil {
		return nil, fmt.Errorf("WEBMAIL_REQUEST_TIMEOUT: %w", err)
	}
	delays, err := parseDelays(getEnv("WEBMAIL_RECONNECT_DELAYS", "1s,2s,5s,10s,30s"))
	if err != nil {
		return nil, fmt.Errorf("WEBMAIL_RECONNECT_DELAYS: %w", err)
	}

	cfg := &Config{
		APIURL:          strings.TrimSuffix(getEnv("WEBMAIL_API_URL", "http://localhost:8080"), "/"),
		WSURL:           os.Getenv("WEBMAIL_WS_URL"),
		DBFile:          getEnv("WEBMAIL_DB", "webmail.db"),
		TokenStore:      getEnv("WEBMAIL_TOKEN_STORE", TokenStoreBbolt),
		CookieTTL:       cookieTTL,
		RequestTimeout:  requestTimeout,
		ReconnectDelays: delays,
		DownloadsPath:   getEnv("WEBMAIL_DOWNLOADS", "downloads"),
		Username:        os.Getenv("WEBMAIL_USER"),
		Password:        os.Getenv("WEBMAIL_PASSWORD"),
	}

	if cfg.WSURL == "" {
		cfg.WSURL, err = realtimeURL(cfg.APIURL)
		if err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("WEBMAIL_REQUEST_TIMEOUT must be greater than 0")
	}

	if c.CookieTTL <= 0 {
		return fmt.Errorf("WEBMAIL_COOKIE_TTL must be greater than 0")
	}

	if len(c.ReconnectDelays) == 0 {
		return fmt.Errorf("WEBMAIL_RECONNECT_DELAYS must list at least one delay")
	}
	for i := 1; i < len(c.ReconnectDelays); i++ {
		if c.ReconnectDelays[i] < c.ReconnectDelays[i-1] {
			return fmt.Errorf("WEBMAIL_RECONNECT_DELAYS must not decrease")
		}
	}

	switch c.TokenStore {
	case TokenStoreBbolt, TokenStoreKeyring, TokenStoreMemory:
	default:
		return fmt.Errorf("unknown WEBMAIL_TOKEN_STORE %q", c.TokenStore)
	}

	return nil
}

// realtimeURL derives the websocket endpoint from the API base URL.
func realtimeURL(apiURL string) (string, error) {
	u, err := url.Parse(apiURL)
	if err != nil {
		return "", fmt.Errorf("WEBMAIL_API_URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("WEBMAIL_API_URL: unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String(), nil
}

func parseDelays(value string) ([]time.Duration, error) {
	var delays []time.Duration
	for _, field := range strings.Split(value, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		d, err := time.ParseDuration(field)
		if err != nil {
			return nil, err
		}
		if d <= 0 {
			return nil, fmt.Errorf("delay %s must be positive", d)
		}
		delays = append(delays, d)
	}
	return delays, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
