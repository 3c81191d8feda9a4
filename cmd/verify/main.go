package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/attestra/compliance-zkproof/circuits/compliance"
	"github.com/attestra/compliance-zkproof/pkg/compose"
	"github.com/attestra/compliance-zkproof/pkg/deployment"
	"github.com/attestra/compliance-zkproof/pkg/document"
	"github.com/attestra/compliance-zkproof/pkg/layout"
	"github.com/attestra/compliance-zkproof/pkg/oracle"
	"github.com/attestra/compliance-zkproof/pkg/prover"
	"github.com/attestra/compliance-zkproof/pkg/registry"
)

// Runs the full local pipeline for one or more domains against their
// sample documents: build, attest, prove, registry update, and (for
// multiple domains) proof composition. Everything is ephemeral: in-memory
// ledger, fresh oracle keys, in-process dev setup.
func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run ./cmd/verify <domain> [<domain> ...]")
		fmt.Println()
		fmt.Println("Available domains:", layout.Domains())
		fmt.Println()
		fmt.Println("Passing several domains composes their proofs into one lineage chain.")
		os.Exit(1)
	}
	domains := os.Args[1:]
	for _, d := range domains {
		if _, ok := layout.Builtin(d); !ok {
			fmt.Fprintf(os.Stderr, "Unknown domain: %s\n", d)
			fmt.Fprintln(os.Stderr, "Available domains:", layout.Domains())
			os.Exit(1)
		}
	}

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	ctx, err := deployment.NewLocal(logger)
	if err != nil {
		log.Fatal(err)
	}
	defer ctx.Close()

	reg, err := registry.New(ctx, logger)
	if err != nil {
		log.Fatal(err)
	}
	svc := oracle.NewService(ctx.Keys, logger)
	now := time.Now()

	var chain *compose.ComposedProof
	for i, domain := range domains {
		dp, err := proveDomain(ctx, svc, domain, now)
		if err != nil {
			log.Fatalf("domain %s: %v", domain, err)
		}

		opening, err := reg.Opening(dp.Output.EntityKeyHash)
		if err != nil {
			log.Fatalf("domain %s: registry opening: %v", domain, err)
		}
		rec, err := reg.InsertOrUpdate(dp, opening, nil)
		if err != nil {
			log.Fatalf("domain %s: registry update: %v", domain, err)
		}
		fmt.Printf("[%s] compliant=%v score=%d verifications=%d\n",
			domain, rec.Compliant(), rec.Score, rec.VerificationCount)

		if len(domains) > 1 {
			chain, err = compose.Compose(ctx.Verifier, i+1, chain, dp)
			if err != nil {
				log.Fatalf("compose level %d: %v", i+1, err)
			}
		}
	}

	state := reg.State()
	fmt.Printf("\nRegistry: entities=%d compliant=%d verifications=%d aggregate=%d root=0x%x\n",
		state.TotalEntities, state.CompliantEntities, state.TotalVerifications,
		state.AggregateScore, state.EntitiesRoot)

	if chain != nil {
		lineage, err := chain.Export(ctx.Ledger)
		if err != nil {
			log.Fatalf("export composed proof: %v", err)
		}
		fmt.Printf("Composed: level=%d overallCompliant=%v scores=%v lineage=0x%x\n",
			chain.Level, chain.OverallCompliant, chain.DomainScores, lineage)
	}
}

// proveDomain runs the single-domain pipeline: sample document, attested
// root, dev-setup circuit, proof. The dev verifying key is registered
// with the context's verifier so the registry accepts the result.
func proveDomain(ctx deployment.Context, svc *oracle.Service, domain string, now time.Time) (*prover.DomainProof, error) {
	plan, err := compliance.PlanFor(domain)
	if err != nil {
		return nil, err
	}
	doc, ok := document.Sample(domain)
	if !ok {
		return nil, fmt.Errorf("no sample document")
	}
	tree, err := document.Build(plan.Layout, doc)
	if err != nil {
		return nil, err
	}
	att, err := svc.Attest(domain, tree.Root())
	if err != nil {
		return nil, err
	}
	w, err := compliance.PrepareWitness(plan, tree, att, ctx.Keys, now)
	if err != nil {
		return nil, err
	}

	fmt.Printf("[%s] compiling and proving...\n", domain)
	sys, err := prover.NewSystem(plan)
	if err != nil {
		return nil, err
	}
	ctx.Verifier.Trust(domain, sys.VerifyingKey())
	return sys.Prove(w)
}
