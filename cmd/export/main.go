package main

import (
	"fmt"
	"log"
	"os"

	"github.com/attestra/compliance-zkproof/pkg/layout"
	"github.com/attestra/compliance-zkproof/pkg/prover"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run ./cmd/export <domain>")
		fmt.Println()
		fmt.Println("Available domains:", layout.Domains())
		fmt.Println()
		fmt.Println("Keys must exist in the current directory (run `go run ./cmd/compile <domain> dev` first).")
		os.Exit(1)
	}

	domain := os.Args[1]
	if _, ok := layout.Builtin(domain); !ok {
		fmt.Fprintf(os.Stderr, "Unknown domain: %s\n", domain)
		fmt.Fprintln(os.Stderr, "Available domains:", layout.Domains())
		os.Exit(1)
	}

	jsonOut, err := prover.ExportProofFixture(".", domain)
	if err != nil {
		log.Fatalf("export proof fixture: %v", err)
	}

	out := domain + "_proof_fixture.json"
	if err := os.WriteFile(out, jsonOut, 0644); err != nil {
		log.Fatalf("write fixture file: %v", err)
	}
	fmt.Printf("\nFixture written to %s\n", out)
}
