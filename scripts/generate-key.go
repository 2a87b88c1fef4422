//go:build ignore

// Generates fresh random values for the token signing secret and the document
// HMAC secret, ready to paste into an env file. Run with:
//
//	go run scripts/generate-key.go
package main

import (
	"fmt"
	"log"

	"github.com/momofin/momofin-backend/internal/auth"
)

func main() {
	signing, err := auth.GenerateSecret()
	if err != nil {
		log.Fatal(err)
	}
	integrity, err := auth.GenerateSecret()
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println("==========================================================")
	fmt.Println("Secrets Generated")
	fmt.Println("==========================================================")
	fmt.Printf("MOMOFIN_AUTH_JWT_SIGNING_SECRET=%s\n", signing)
	fmt.Printf("MOMOFIN_INTEGRITY_HMAC_SECRET=%s\n", integrity)
	fmt.Println("==========================================================")
	fmt.Println("Changing the HMAC secret invalidates every stored document digest.")
}
