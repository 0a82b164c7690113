package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

func main() {
	// A project .env may carry SHEETFLOW_* overrides
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
