package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"bookshare/internal/config"
	"bookshare/internal/pkg/jwt"
)

// issue_token mints an access token for a user id with the server's secret.
// Identity management lives outside this service; this is for local use.
func main() {
	userID := flag.String("user", "", "user id to put in the token (required)")
	username := flag.String("name", "", "display name")
	minutes := flag.Int("minutes", 0, "lifetime in minutes (default ACCESS_TOKEN_MINUTES)")
	flag.Parse()

	if *userID == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load configuration: %v", err)
	}

	mins := cfg.JWT.AccessTokenMins
	if *minutes > 0 {
		mins = *minutes
	}

	token, err := jwt.GenerateAccessToken(*userID, *username, cfg.JWT.Secret, mins)
	if err != nil {
		log.Fatalf("❌ Failed to sign token: %v", err)
	}
	fmt.Println(token)
}
