// Package main provides a CLI tool for generating operator tokens for local
// development. These tokens use the dev signing key and will NOT work
// against a production deployment.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"bastion/internal/platform/token"
)

const (
	// Matches the config fallback when BASTION_JWT_SIGNING_KEY is not set.
	devSigningKey = "dev-secret-key-change-in-production"

	defaultTTL = time.Hour
)

type tokenOutput struct {
	Token     string            `json:"token"`
	Type      string            `json:"type"`
	ExpiresIn string            `json:"expires_in"`
	Claims    map[string]any    `json:"claims,omitempty"`
	Usage     map[string]string `json:"usage"`
}

func main() {
	operatorID := flag.String("operator-id", "local-operator", "Operator identifier embedded in the token")
	role := flag.String("role", "admin", "Operator role claim")
	signingKey := flag.String("signing-key", devSigningKey, "HMAC signing key; must match the server's")
	ttl := flag.Duration("ttl", defaultTTL, "Token time-to-live")
	jsonOutput := flag.Bool("json", false, "Output as JSON")
	flag.Usage = printUsage
	flag.Parse()

	svc := token.New(*signingKey, *ttl)
	signed, err := svc.Issue(*operatorID, *role)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating token: %v\n", err)
		os.Exit(1)
	}

	if *jsonOutput {
		printJSON(tokenOutput{
			Token:     signed,
			Type:      "operator_token",
			ExpiresIn: ttl.String(),
			Claims: map[string]any{
				"operator_id": *operatorID,
				"role":        *role,
			},
			Usage: map[string]string{
				"header": "Authorization: Bearer <token>",
			},
		})
		return
	}

	fmt.Println("Operator Token (JWT)")
	fmt.Println("====================")
	fmt.Printf("Operator ID: %s\n", *operatorID)
	fmt.Printf("Role:        %s\n", *role)
	fmt.Printf("Expires In:  %s\n", ttl)
	fmt.Println()
	fmt.Println("Token:")
	fmt.Println(signed)
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  curl -H \"Authorization: Bearer <token>\" http://localhost:8080/v1/deployments")
}

func printUsage() {
	fmt.Println(`tokengen - Generate operator tokens for the bastion API

WARNING: Tokens signed with the dev key will NOT work in production.
         Only use for local development and testing.

Usage:
  tokengen [flags]

Examples:
  # Token with defaults (dev signing key, one hour TTL)
  tokengen

  # Token for a named operator with a longer TTL
  tokengen -operator-id releases@acme -ttl 8h

  # Output as JSON
  tokengen -json`)
	flag.PrintDefaults()
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", err)
		os.Exit(1)
	}
}
