package main

import (
	"fmt"
	"log"
	"os"

	"github.com/attestra/compliance-zkproof/circuits/compliance"
	"github.com/attestra/compliance-zkproof/pkg/layout"
	"github.com/attestra/compliance-zkproof/pkg/setup"
)

func main() {
	if len(os.Args) < 3 {
		printUsage()
		os.Exit(1)
	}

	domain := os.Args[1]
	var domains []string
	if domain == "all" {
		domains = layout.Domains()
	} else {
		if _, ok := layout.Builtin(domain); !ok {
			fmt.Fprintf(os.Stderr, "Unknown domain: %s\n", domain)
			fmt.Fprintf(os.Stderr, "Available domains: ")
			for _, d := range layout.Domains() {
				fmt.Fprintf(os.Stderr, "%s ", d)
			}
			fmt.Fprintln(os.Stderr)
			os.Exit(1)
		}
		domains = []string{domain}
	}

	switch os.Args[2] {
	case "dev":
		for _, d := range domains {
			plan, err := compliance.PlanFor(d)
			if err != nil {
				log.Fatal(err)
			}
			if err := setup.DevSetup(plan, "."); err != nil {
				log.Fatal(err)
			}
		}
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Usage:
  go run ./cmd/compile <domain> dev    Dev mode (single-party/unsafe setup, NOT for production)
  go run ./cmd/compile all dev         Dev setup for every builtin domain

Available domains: corporate-registration, trade-license, legal-entity,
shipping-document, liquidity-risk

Keys are written to the current directory as <domain>_prover.key and
<domain>_verifier.key. Production deployments must provision keys from a
multi-party ceremony instead of using dev mode.`)
}
