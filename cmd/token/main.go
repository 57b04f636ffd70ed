package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"absensi/internal/auth"
	"absensi/internal/config"
)

// token issues a bearer token signed with the configured key, for scanner
// devices and operators.
func main() {
	subject := flag.String("sub", "", "token subject (user or device id)")
	role := flag.String("role", auth.RoleScanner, "role: admin, guru or scanner")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	switch *role {
	case auth.RoleAdmin, auth.RoleTeacher, auth.RoleScanner:
	default:
		fmt.Fprintf(os.Stderr, "unknown role %q\n", *role)
		os.Exit(2)
	}
	if *subject == "" {
		fmt.Fprintln(os.Stderr, "-sub is required")
		os.Exit(2)
	}

	cfg := config.Load()
	token, exp, err := auth.Issue(*subject, *role, cfg.JWTIssuer, cfg.JWTSigningKey, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "issue token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "expires %s\n", exp.Format(time.RFC3339))
}
