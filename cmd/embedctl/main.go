// Command embedctl is the operator CLI for the embedding service.
package main

import (
	"os"

	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
