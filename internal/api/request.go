package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/h2non/filetype"
)

const headerRequestID = "X-Request-ID"

// Request describes one outbound API call. The body is rebuilt for every
// attempt, so a request can be replayed after a token renewal.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	// Body is JSON encoded when the request is not multipart.
	Body any

	Multipart bool
	Fields    map[string]string
	Files     []File
}

type File struct {
	Field string
	Name  string
	Data  []byte
}

type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// DetectContentType sniffs the MIME type of an attachment from its bytes.
func DetectContentType(data []byte) string {
	kind, err := filetype.Match(data)
	if err != nil || kind == filetype.Unknown {
		return "application/octet-stream"
	}
	return kind.MIME.Value
}

func (r Request) encode() (io.Reader, string, error) {
	if r.Multipart {
		return r.encodeMultipart()
	}
	if r.Body == nil {
		return nil, "", nil
	}
	data, err := json.Marshal(r.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode request body: %w", err)
	}
	return bytes.NewReader(data), "application/json", nil
}

func (r Request) encodeMultipart() (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	for name, value := range r.Fields {
		if err := mw.WriteField(name, value); err != nil {
			return nil, "", err
		}
	}

	for _, f := range r.Files {
		field := f.Field
		if field == "" {
			field = "file"
		}
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
			quoteEscaper.Replace(field), quoteEscaper.Replace(f.Name)))
		h.Set("Content-Type", DetectContentType(f.Data))
		part, err := mw.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, "", err
		}
	}

	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}

// transport performs single HTTP attempts with a hard timeout.
type transport struct {
	base    *url.URL
	client  *http.Client
	timeout time.Duration
}

func newTransport(baseURL string, client *http.Client, timeout time.Duration) (*transport, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", baseURL)
	}
	if client == nil {
		client = &http.Client{}
	}
	return &transport{base: base, client: client, timeout: timeout}, nil
}

func (t *transport) do(ctx context.Context, req Request, header http.Header) (*Response, error) {
	body, contentType, err := req.encode()
	if err != nil {
		return nil, err
	}

	u := t.base.JoinPath(req.Path)
	if len(req.Query) > 0 {
		u.RawQuery = req.Query.Encode()
	}

	actx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(actx, req.Method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	for k, v := range header {
		httpReq.Header[k] = v
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	httpReq.Header.Set("Accept", "application/json")

	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, t.wrapErr(ctx, req, err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, t.wrapErr(ctx, req, err)
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       data,
	}, nil
}

func (t *transport) wrapErr(ctx context.Context, req Request, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%s %s: %w", req.Method, req.Path, ErrTimeout)
	}
	return fmt.Errorf("%s %s: %w", req.Method, req.Path, err)
}

func bearer(token string) string {
	return "Bearer " + token
}
