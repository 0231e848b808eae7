package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/goatnetwork/goat-escrow/internal/auth"
	"github.com/goatnetwork/goat-escrow/internal/types"
)

// token issues bearer tokens for the escrow HTTP API.
func main() {
	var (
		address = flag.String("address", "", "Caller address the token is issued for")
		privKey = flag.String("key", "", "Hex private key, the address is derived from it when set")
		secret  = flag.String("secret", os.Getenv("JWT_SECRET"), "HS256 secret, defaults to JWT_SECRET")
		ttl     = flag.Duration("ttl", 24*time.Hour, "Token lifetime")
		help    = flag.Bool("help", false, "Show help message")
	)
	flag.Parse()

	if *help {
		fmt.Println("Usage: token [options]")
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	if *secret == "" {
		log.Fatal("Secret is required. Use -secret flag or set JWT_SECRET.")
	}

	addr := *address
	if *privKey != "" {
		derived, err := types.PrivateKeyToAddress(*privKey)
		if err != nil {
			log.Fatalf("Invalid private key: %v", err)
		}
		if addr != "" && !types.SameAddress(addr, derived) {
			log.Fatalf("Address %s does not match key address %s", addr, derived)
		}
		addr = derived
	}
	if addr == "" {
		log.Fatal("Address is required. Use -address or -key flag.")
	}

	tk, err := auth.IssueToken(*secret, addr, *ttl)
	if err != nil {
		log.Fatalf("Failed to issue token: %v", err)
	}

	fmt.Printf("Address: %s\n", types.MustNormalizeAddress(addr))
	fmt.Printf("Expires: %s\n", time.Now().Add(*ttl).UTC().Format(time.RFC3339))
	fmt.Printf("Token: %s\n", tk)
}
