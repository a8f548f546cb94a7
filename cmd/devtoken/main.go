// Command devtoken signs access tokens for local development.
//
//	devtoken -gen                      # writes keys/jwt.key and keys/jwt.pub
//	devtoken -user u1 -email u1@x.dev  # prints a token for u1
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/cwrk-planet/chat-service/internal/auth"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	var (
		gen      = flag.Bool("gen", false, "generate a new key pair and exit")
		keyPath  = flag.String("key", envOr("CHAT_AUTH_PRIVATE_KEY", "keys/jwt.key"), "RSA private key (PEM)")
		pubPath  = flag.String("pub", "keys/jwt.pub", "RSA public key output for -gen")
		userID   = flag.String("user", "", "user id (sub)")
		name     = flag.String("name", "", "display name")
		email    = flag.String("email", "", "email")
		issuer   = flag.String("iss", envOr("CHAT_AUTH_ISSUER", "cwrk-auth"), "issuer")
		audience = flag.String("aud", envOr("CHAT_AUTH_AUDIENCE", "chat"), "audience")
		ttl      = flag.Duration("ttl", 24*time.Hour, "token lifetime")
	)
	flag.Parse()

	if *gen {
		if err := os.MkdirAll(filepath.Dir(*keyPath), 0o755); err != nil {
			log.Fatal(err)
		}
		if _, err := auth.GenerateKeyPair(*keyPath, *pubPath, 2048); err != nil {
			log.Fatalf("generate keys: %v", err)
		}
		fmt.Printf("wrote %s and %s\n", *keyPath, *pubPath)
		return
	}

	if *userID == "" {
		log.Fatal("-user is required")
	}
	key, err := auth.LoadPrivateKey(*keyPath)
	if err != nil {
		log.Fatalf("load key: %v", err)
	}
	token, err := auth.NewSigner(key, auth.Config{Issuer: *issuer, Audience: *audience}, *ttl).
		Sign(auth.Session{UserID: *userID, Name: *name, Email: *email})
	if err != nil {
		log.Fatalf("sign: %v", err)
	}
	fmt.Println(token)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
