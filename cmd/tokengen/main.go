// Command tokengen mints a stream capability token for local testing.
//
//	STREAM_TOKEN_SECRET=... tokengen -org org_1 -agent agent_1 -ttl 5m
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/lexiqai/media-bridge/internal/auth"
)

func main() {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	if err := run(os.Args[1:], os.Getenv, os.Stdout, time.Now); err != nil {
		fmt.Fprintf(os.Stderr, "tokengen: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, getenv func(string) string, out io.Writer, now func() time.Time) error {
	fs := flag.NewFlagSet("tokengen", flag.ContinueOnError)
	fs.SetOutput(out)
	org := fs.String("org", "", "organization id claim")
	agent := fs.String("agent", "", "agent id claim")
	ttl := fs.Duration("ttl", 5*time.Minute, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}

	secret := getenv("STREAM_TOKEN_SECRET")
	if secret == "" {
		return errors.New("STREAM_TOKEN_SECRET is required")
	}
	if *ttl <= 0 {
		return errors.New("-ttl must be positive")
	}

	token, err := auth.NewVerifier(secret).Sign(auth.Claims{
		Exp:            now().Add(*ttl).Unix(),
		OrganizationID: *org,
		AgentID:        *agent,
	})
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(out, token)
	return err
}
