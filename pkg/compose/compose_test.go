package compose_test

import (
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/attestra/compliance-zkproof/circuits/compliance"
	"github.com/attestra/compliance-zkproof/pkg/compose"
	"github.com/attestra/compliance-zkproof/pkg/document"
	"github.com/attestra/compliance-zkproof/pkg/layout"
	"github.com/attestra/compliance-zkproof/pkg/ledger"
	"github.com/attestra/compliance-zkproof/pkg/oracle"
	"github.com/attestra/compliance-zkproof/pkg/prover"
)

// fixtures holds proofs for two independent domains plus a non-compliant
// variant, compiled once for the package, and the verifier trusting both
// domains' dev keys.
type fixtures struct {
	verifier      *prover.Verifier
	legalEntity   *prover.DomainProof
	tradeLicense  *prover.DomainProof
	inactiveLegal *prover.DomainProof
	err           error
}

var (
	fx     fixtures
	fxOnce sync.Once
)

func proofFixtures(t *testing.T) *fixtures {
	t.Helper()
	fxOnce.Do(func() {
		fx.err = buildFixtures()
	})
	if fx.err != nil {
		t.Fatalf("build fixtures: %v", fx.err)
	}
	return &fx
}

func buildFixtures() error {
	now := time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)

	keys, err := oracle.NewStaticResolver(layout.DomainLegalEntity, layout.DomainTradeLicense)
	if err != nil {
		return err
	}
	fx.verifier = prover.NewVerifier(keys)

	prove := func(domain string, mutate func(map[string]any)) (*prover.DomainProof, *prover.System, error) {
		plan, err := compliance.PlanFor(domain)
		if err != nil {
			return nil, nil, err
		}
		sys, err := prover.NewSystem(plan)
		if err != nil {
			return nil, nil, err
		}
		fx.verifier.Trust(domain, sys.VerifyingKey())
		dp, err := proveWith(sys, plan, domain, keys, mutate, now)
		return dp, sys, err
	}

	dp, legalSys, err := prove(layout.DomainLegalEntity, nil)
	if err != nil {
		return err
	}
	fx.legalEntity = dp

	if fx.tradeLicense, _, err = prove(layout.DomainTradeLicense, nil); err != nil {
		return err
	}

	// Reuse the legal-entity system for the non-compliant variant.
	plan, err := compliance.PlanFor(layout.DomainLegalEntity)
	if err != nil {
		return err
	}
	fx.inactiveLegal, err = proveWith(legalSys, plan, layout.DomainLegalEntity, keys, func(doc map[string]any) {
		doc["entityStatus"] = "INACTIVE"
	}, now)
	return err
}

func proveWith(sys *prover.System, plan *compliance.DomainPlan, domain string, keys oracle.KeyResolver, mutate func(map[string]any), now time.Time) (*prover.DomainProof, error) {
	doc, _ := document.Sample(domain)
	if mutate != nil {
		mutate(doc)
	}
	tree, err := document.Build(plan.Layout, doc)
	if err != nil {
		return nil, err
	}
	att, err := oracle.NewService(keys, zerolog.Nop()).Attest(domain, tree.Root())
	if err != nil {
		return nil, err
	}
	w, err := compliance.PrepareWitness(plan, tree, att, keys, now)
	if err != nil {
		return nil, err
	}
	return sys.Prove(w)
}

// TestTwoDomainComposition composes two compliant domains and checks the
// aggregated output.
func TestTwoDomainComposition(t *testing.T) {
	f := proofFixtures(t)

	level1, err := compose.Compose(f.verifier, 1, nil, f.legalEntity)
	require.NoError(t, err)
	require.Equal(t, 1, level1.Level)
	require.True(t, level1.OverallCompliant)
	require.Len(t, level1.LevelHashes, 1)

	level2, err := compose.Compose(f.verifier, 2, level1, f.tradeLicense)
	require.NoError(t, err)
	require.Equal(t, 2, level2.Level)
	require.True(t, level2.OverallCompliant)
	require.Len(t, level2.LevelHashes, 2)
	require.Equal(t, []string{layout.DomainLegalEntity, layout.DomainTradeLicense}, level2.Domains)
	require.Equal(t, f.legalEntity.Output.Score(), level2.DomainScores[layout.DomainLegalEntity])
	require.Equal(t, f.tradeLicense.Output.Score(), level2.DomainScores[layout.DomainTradeLicense])

	// The anchor is the level-1 proof's entity.
	require.Zero(t, level2.EntityKeyHash.Cmp(f.legalEntity.Output.EntityKeyHash))

	// Level-1 hashes are shared prefixes of the level-2 chain.
	require.Zero(t, level1.LineageHash().Cmp(level2.LevelHashes[0]))

	require.NoError(t, level2.VerifyChain(f.verifier))
}

// TestOverallCompliantIsAnd verifies one failing domain makes the whole
// chain non-compliant, regardless of the other scores.
func TestOverallCompliantIsAnd(t *testing.T) {
	f := proofFixtures(t)

	level1, err := compose.Compose(f.verifier, 1, nil, f.tradeLicense)
	require.NoError(t, err)
	require.True(t, level1.OverallCompliant)

	level2, err := compose.Compose(f.verifier, 2, level1, f.inactiveLegal)
	require.NoError(t, err)
	require.False(t, level2.OverallCompliant)
	require.True(t, level2.DomainCompliant[layout.DomainTradeLicense])
	require.False(t, level2.DomainCompliant[layout.DomainLegalEntity])
}

// TestCompositionOrder verifies level sequencing: level n requires a
// level n-1 prior, never earlier, never null.
func TestCompositionOrder(t *testing.T) {
	f := proofFixtures(t)

	level1, err := compose.Compose(f.verifier, 1, nil, f.legalEntity)
	require.NoError(t, err)

	var orderErr *compose.CompositionOrderError

	// Level 3 from a level 1 prior.
	_, err = compose.Compose(f.verifier, 3, level1, f.tradeLicense)
	require.ErrorAs(t, err, &orderErr)
	require.Equal(t, 3, orderErr.Level)
	require.Equal(t, 1, orderErr.PriorLevel)

	// Level 2 with no prior.
	_, err = compose.Compose(f.verifier, 2, nil, f.tradeLicense)
	require.ErrorAs(t, err, &orderErr)

	// Level 1 with a prior.
	_, err = compose.Compose(f.verifier, 1, level1, f.tradeLicense)
	require.ErrorAs(t, err, &orderErr)

	// Duplicate domain.
	_, err = compose.Compose(f.verifier, 2, level1, f.legalEntity)
	require.Error(t, err)
}

// TestExportLoadRoundTrip persists a two-level chain to the ledger and
// rebuilds it by lineage hash and by entity.
func TestExportLoadRoundTrip(t *testing.T) {
	f := proofFixtures(t)

	store, err := ledger.OpenInMemory(zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	level1, err := compose.Compose(f.verifier, 1, nil, f.legalEntity)
	require.NoError(t, err)
	level2, err := compose.Compose(f.verifier, 2, level1, f.tradeLicense)
	require.NoError(t, err)

	lineage, err := level2.Export(store)
	require.NoError(t, err)
	require.Zero(t, lineage.Cmp(level2.LineageHash()))

	loaded, err := compose.Load(store, f.verifier, lineage)
	require.NoError(t, err)
	require.Equal(t, 2, loaded.Level)
	require.Equal(t, level2.Domains, loaded.Domains)
	require.Equal(t, level2.DomainScores, loaded.DomainScores)
	require.Equal(t, level2.OverallCompliant, loaded.OverallCompliant)
	require.Zero(t, loaded.LineageHash().Cmp(level2.LineageHash()))
	require.NoError(t, loaded.VerifyChain(f.verifier))

	// Retrieval by entity identity.
	hashes, err := compose.LineagesForEntity(store, level2.EntityKeyHash)
	require.NoError(t, err)
	require.Len(t, hashes, 1)
	require.Zero(t, hashes[0].Cmp(lineage))

	// Unknown lineage.
	unknown := new(big.Int).Add(lineage, big.NewInt(1))
	_, err = compose.Load(store, f.verifier, unknown)
	require.ErrorIs(t, err, ledger.ErrNotFound)
}
