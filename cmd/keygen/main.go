package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/fieldworks/event-scheduler-go/pkg/auth"
)

func main() {
	// Load .env from project root
	_ = godotenv.Load("../.env")

	if len(os.Args) < 2 {
		fmt.Println("Usage: go run keygen.go <userID>")
		os.Exit(1)
	}

	userID := os.Args[1]
	if os.Getenv("API_MASTER_SECRET") == "" {
		fmt.Println("Error: API_MASTER_SECRET not found in .env")
		os.Exit(1)
	}

	fmt.Printf("Generated Key for %s:\n%s\n", userID, auth.GenerateHMACKey(userID))
}
