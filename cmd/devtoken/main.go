package main

import (
	"flag"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/roomdesk/reservation-backend/internal/config"
	"github.com/roomdesk/reservation-backend/internal/utils"
	"github.com/roomdesk/reservation-backend/pkg/jwt"
)

// devtoken signs access tokens for local testing against the API, the way the
// identity provider would, and can print a fresh JWT_SECRET.
func main() {
	var userFlag, rolesFlag string
	var newSecret bool
	flag.StringVar(&userFlag, "user", "", "user id to sign for (random when empty)")
	flag.StringVar(&rolesFlag, "roles", "user", "comma separated roles, e.g. user,admin")
	flag.BoolVar(&newSecret, "new-secret", false, "print a new JWT_SECRET and exit")
	flag.Parse()

	if newSecret {
		secret, err := utils.GenerateSecret(32) // 256-bit
		if err != nil {
			log.Fatalf("Failed to generate secret: %v", err)
		}
		fmt.Printf("JWT_SECRET=%s\n", secret)
		fmt.Println("⚠️  Keep this secret safe and never commit it to version control!")
		return
	}

	_ = godotenv.Load()

	var jwtCfg config.JWTConfig
	if err := envconfig.Process("", &jwtCfg); err != nil {
		log.Fatalf("Failed to read JWT settings: %v", err)
	}
	if jwtCfg.Secret == "" {
		log.Fatal("JWT_SECRET is not set (run with -new-secret to create one)")
	}

	userID := uuid.New()
	if userFlag != "" {
		id, err := uuid.Parse(userFlag)
		if err != nil {
			log.Fatalf("-user must be a UUID: %v", err)
		}
		userID = id
	}

	var roles []string
	for _, r := range strings.Split(rolesFlag, ",") {
		if r = strings.TrimSpace(r); r != "" {
			roles = append(roles, r)
		}
	}

	token, err := jwt.NewService(jwtCfg.Secret, jwtCfg.Issuer, jwtCfg.AccessTokenExpiry).GenerateAccessToken(userID, roles)
	if err != nil {
		log.Fatalf("Failed to sign token: %v", err)
	}

	fmt.Printf("user_id: %s\nroles:   %s\nexpires: in %s\n\n", userID, strings.Join(roles, ","), jwtCfg.AccessTokenExpiry)
	fmt.Println(token)
}
