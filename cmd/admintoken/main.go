// admintoken mints JWTs: admin tokens for the organizer endpoints and
// participant tokens for the X-AuraCode-User-Token header.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/KrishnaPrakhya/AuraCode-sub000/internal/identity"
	"github.com/KrishnaPrakhya/AuraCode-sub000/internal/middleware"
)

func main() {
	subject := flag.String("sub", "organizer", "token subject (the user id for participant tokens)")
	role := flag.String("role", middleware.RoleAdmin, "token role: admin or participant")
	ttl := flag.Duration("ttl", 12*time.Hour, "token lifetime")
	flag.Parse()

	switch *role {
	case middleware.RoleAdmin:
	case identity.RoleParticipant:
		if !identity.ValidUserID(*subject) {
			fmt.Fprintf(os.Stderr, "invalid participant id %q\n", *subject)
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown role %q\n", *role)
		os.Exit(1)
	}

	_ = godotenv.Load()
	secret := os.Getenv("JWT_SECRET")
	if len(secret) < 32 {
		fmt.Fprintln(os.Stderr, "JWT_SECRET must be set and at least 32 characters")
		os.Exit(1)
	}

	token, err := middleware.IssueToken(middleware.NewTokenAuth(secret), *subject, *role, *ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(token)
}
