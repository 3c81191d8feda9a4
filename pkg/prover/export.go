package prover

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/attestra/compliance-zkproof/circuits/compliance"
	"github.com/attestra/compliance-zkproof/pkg/document"
	"github.com/attestra/compliance-zkproof/pkg/oracle"
	"github.com/attestra/compliance-zkproof/pkg/setup"
)

// ProofFixture holds a full verification artifact for one domain, for use
// by downstream verifier integrations and regression tests.
type ProofFixture struct {
	Domain            string         `json:"domain"`
	Root              string         `json:"root"`
	EntityKeyHash     string         `json:"entity_key_hash"`
	CurrentTime       int64          `json:"current_time"`
	Compliant         bool           `json:"compliant"`
	Score             int            `json:"score"`
	CorePassCount     int            `json:"core_pass_count"`
	CoreTotal         int            `json:"core_total"`
	EnhancedPassCount int            `json:"enhanced_pass_count"`
	EnhancedTotal     int            `json:"enhanced_total"`
	OraclePublicKey   string         `json:"oracle_public_key"`
	Proof             string         `json:"proof"`
	PredicateNames    map[string]any `json:"predicates"`
}

// ExportProofFixture proves the domain's sample document end to end and
// returns the fixture as indented JSON. Keys must already exist in keysDir
// (run the compile command's dev setup first).
func ExportProofFixture(keysDir, domain string) ([]byte, error) {
	plan, err := compliance.PlanFor(domain)
	if err != nil {
		return nil, err
	}

	fmt.Println("Loading keys...")
	pk, vk, err := setup.LoadKeys(keysDir, domain)
	if err != nil {
		return nil, fmt.Errorf("load keys: %w", err)
	}

	fmt.Println("Compiling circuit...")
	sys, err := NewSystemWithKeys(plan, pk, vk)
	if err != nil {
		return nil, err
	}

	doc, ok := document.Sample(domain)
	if !ok {
		return nil, fmt.Errorf("no sample document for domain %q", domain)
	}
	tree, err := document.Build(plan.Layout, doc)
	if err != nil {
		return nil, fmt.Errorf("build sample document: %w", err)
	}
	fmt.Printf("Document root: 0x%064x\n", tree.Root())

	resolver, err := oracle.NewStaticResolver(domain)
	if err != nil {
		return nil, fmt.Errorf("generate oracle key: %w", err)
	}
	att, err := oracle.NewService(resolver, zerolog.Nop()).Attest(domain, tree.Root())
	if err != nil {
		return nil, err
	}

	now := time.Now()
	w, err := compliance.PrepareWitness(plan, tree, att, resolver, now)
	if err != nil {
		return nil, fmt.Errorf("prepare witness: %w", err)
	}
	fmt.Printf("Entity key hash: 0x%064x\n", w.Output.EntityKeyHash)
	fmt.Printf("Compliant: %v (core %d/%d, enhanced %d/%d)\n",
		w.Output.Compliant, w.Output.CorePassCount, w.Output.CoreTotal,
		w.Output.EnhancedPassCount, w.Output.EnhancedTotal)

	fmt.Println("Generating proof...")
	dp, err := sys.Prove(w)
	if err != nil {
		return nil, err
	}

	verifier := NewVerifier(resolver)
	verifier.Trust(domain, vk)
	if err := verifier.Verify(dp); err != nil {
		return nil, err
	}
	fmt.Println("Proof verified successfully in Go!")

	serialized, err := dp.MarshalBinary()
	if err != nil {
		return nil, err
	}

	predicateNames := make(map[string]any, len(plan.Predicates))
	for _, p := range plan.Predicates {
		tier := "enhanced"
		if p.Core {
			tier = "core"
		}
		predicateNames[p.Name] = tier
	}

	fixture := ProofFixture{
		Domain:            domain,
		Root:              fmt.Sprintf("0x%064x", w.Output.Root),
		EntityKeyHash:     fmt.Sprintf("0x%064x", w.Output.EntityKeyHash),
		CurrentTime:       w.Output.CurrentTime,
		Compliant:         w.Output.Compliant,
		Score:             w.Output.Score(),
		CorePassCount:     w.Output.CorePassCount,
		CoreTotal:         w.Output.CoreTotal,
		EnhancedPassCount: w.Output.EnhancedPassCount,
		EnhancedTotal:     w.Output.EnhancedTotal,
		OraclePublicKey:   hex.EncodeToString(w.Output.OraclePublicKey),
		Proof:             hex.EncodeToString(serialized),
		PredicateNames:    predicateNames,
	}

	jsonOut, err := json.MarshalIndent(fixture, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal fixture: %w", err)
	}
	return jsonOut, nil
}
