// Command tokengen signs a bearer token for local testing.
//
//	go run ./cmd/tokengen -sub 3 -role owner
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/kirinyoku/venuebook/internal/auth/jwt"
	"github.com/kirinyoku/venuebook/internal/domain"
)

func main() {
	_ = godotenv.Load()

	sub := flag.Int64("sub", 0, "subject (user) id")
	role := flag.String("role", string(domain.RoleUser), "admin, owner or user")
	secret := flag.String("secret", os.Getenv("JWT_SECRET"), "signing secret, defaults to $JWT_SECRET")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	if *sub <= 0 || *secret == "" {
		flag.Usage()
		os.Exit(2)
	}

	r := domain.Role(*role)
	if !r.Valid() {
		fmt.Fprintf(os.Stderr, "unknown role %q\n", *role)
		os.Exit(2)
	}

	tok, err := jwt.New(*secret, *ttl).GenerateToken(*sub, r)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	fmt.Println(tok)
}
