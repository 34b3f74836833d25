package main

import (
	"fmt"
	"os"
	"time"

	"webmail/internal/auth"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Println("Usage: tokeninfo <token>")
		os.Exit(1)
	}

	token := os.Args[1]
	exp, err := auth.ExpiresAt(token)
	if err != nil {
		fmt.Printf("Error reading token: %v\n", err)
		os.Exit(1)
	}

	now := time.Now()
	fmt.Printf("Expires: %s\n", exp.Local().Format(time.RFC3339))
	if auth.IsExpired(token, now) {
		fmt.Printf("Expired %s ago\n", now.Sub(exp).Round(time.Second))
		return
	}
	fmt.Printf("Valid for %s\n", exp.Sub(now).Round(time.Second))
}
