// Package main is the entry point for the rag CLI.
package main

import (
	"os"

	"github.com/Tije-csv/RAG-2.2/cmd/rag/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
