// Package deployment bundles the environment-specific collaborators a
// registry instance runs against.
package deployment

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/attestra/compliance-zkproof/pkg/ledger"
	"github.com/attestra/compliance-zkproof/pkg/oracle"
	"github.com/attestra/compliance-zkproof/pkg/prover"
)

// Known network names.
const (
	NetworkLocal   = "local"
	NetworkTestnet = "testnet"
	NetworkMainnet = "mainnet"
)

// Context carries the deployment-scoped dependencies: which network the
// registry serves, where oracle keys are resolved, the proof verifier with
// its pinned per-domain verifying keys, and the ledger state transitions
// commit to. Register verifying keys on Verifier as circuits are set up.
type Context struct {
	Network  string
	Keys     oracle.KeyResolver
	Verifier *prover.Verifier
	Ledger   ledger.Store
}

// NewLocal builds a throwaway local context: in-memory ledger and freshly
// generated per-domain oracle keys. Nothing survives the process.
func NewLocal(log zerolog.Logger) (Context, error) {
	store, err := ledger.OpenInMemory(log)
	if err != nil {
		return Context{}, fmt.Errorf("local ledger: %w", err)
	}
	keys, err := oracle.NewBuiltinResolver()
	if err != nil {
		store.Close()
		return Context{}, fmt.Errorf("local oracle keys: %w", err)
	}
	return Context{
		Network:  NetworkLocal,
		Keys:     keys,
		Verifier: prover.NewVerifier(keys),
		Ledger:   store,
	}, nil
}

// Close releases the context's ledger handle.
func (c Context) Close() error {
	if c.Ledger == nil {
		return nil
	}
	return c.Ledger.Close()
}
