// Package main provides the glyphcore command.
package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/leapstack-labs/glyphcore/internal/cli"
)

func main() {
	// GLYPHCORE_ overrides may live in a local .env; a missing file is fine.
	_ = godotenv.Load(".env")

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
