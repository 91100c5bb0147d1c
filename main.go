package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"msmanager/internal/commands"
)

func main() {
	// A missing .env is fine; flags and the real environment still apply.
	_ = godotenv.Load()

	if err := commands.Root().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
