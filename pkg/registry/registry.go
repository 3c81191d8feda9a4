// Package registry implements the proof-gated multi-entity compliance
// registry: a sparse Merkle tree keyed by entity identity whose updates
// are accepted only alongside a valid compliance proof and a Merkle
// opening of the prior leaf state. The registry never trusts a
// caller-supplied compliance flag; the proof's public output is the only
// source of truth for what gets written.
package registry

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/rs/zerolog"

	"github.com/attestra/compliance-zkproof/config"
	"github.com/attestra/compliance-zkproof/pkg/crypto"
	"github.com/attestra/compliance-zkproof/pkg/deployment"
	"github.com/attestra/compliance-zkproof/pkg/ledger"
	"github.com/attestra/compliance-zkproof/pkg/merkle"
	"github.com/attestra/compliance-zkproof/pkg/prover"
)

// Status flag bits.
const (
	// FlagCompliant marks the entity's latest verification as compliant.
	FlagCompliant uint64 = 1 << iota
	// FlagEnhanced marks a verification that passed every enhanced
	// predicate as well.
	FlagEnhanced
)

// RecordNotFoundError reports a query or update whose opening/record pair
// does not match the current registry state.
type RecordNotFoundError struct {
	EntityKeyHash *big.Int
}

func (e *RecordNotFoundError) Error() string {
	return fmt.Sprintf("registry: no record matching entity key 0x%x at current root", e.EntityKeyHash)
}

// RegistryConflictError reports a state-changing call whose prior-state
// opening no longer resolves against the current root: another update
// committed in between. Retryable after re-fetching a fresh opening.
type RegistryConflictError struct {
	Root *big.Int
}

func (e *RegistryConflictError) Error() string {
	return fmt.Sprintf("registry: stale prior-state opening for root 0x%x, re-fetch and retry", e.Root)
}

// Record is one entity's compliance state. Records are created on first
// verification, mutated only through proof-gated updates, and never
// deleted (only reset).
type Record struct {
	EntityKeyHash     *big.Int `cbor:"1,keyasint"`
	StatusFlags       uint64   `cbor:"2,keyasint"`
	Score             int      `cbor:"3,keyasint"`
	VerificationCount int      `cbor:"4,keyasint"`
	FirstVerifiedAt   int64    `cbor:"5,keyasint"`
	LastVerifiedAt    int64    `cbor:"6,keyasint"`
	Version           int      `cbor:"7,keyasint"`
}

// Compliant reports whether the record's latest verification passed.
func (r *Record) Compliant() bool { return r.StatusFlags&FlagCompliant != 0 }

// Hash commits the record into a registry leaf.
func (r *Record) Hash() *big.Int {
	return crypto.HashElements(
		r.EntityKeyHash,
		new(big.Int).SetUint64(r.StatusFlags),
		big.NewInt(int64(r.Score)),
		big.NewInt(int64(r.VerificationCount)),
		big.NewInt(r.FirstVerifiedAt),
		big.NewInt(r.LastVerifiedAt),
		big.NewInt(int64(r.Version)),
	)
}

func (r *Record) clone() *Record {
	c := *r
	c.EntityKeyHash = new(big.Int).Set(r.EntityKeyHash)
	return &c
}

// State is the registry's aggregate view, committed to the ledger on every
// accepted update.
type State struct {
	EntitiesRoot       *big.Int `cbor:"1,keyasint"`
	TotalEntities      int      `cbor:"2,keyasint"`
	CompliantEntities  int      `cbor:"3,keyasint"`
	TotalVerifications int      `cbor:"4,keyasint"`
	AggregateScore     int      `cbor:"5,keyasint"`
	Version            int      `cbor:"6,keyasint"`
}

// LeafIndexFor maps an entity key hash onto its fixed registry tree slot
// (the low RegistryTreeDepth bits).
func LeafIndexFor(entityKeyHash *big.Int) int {
	mask := big.NewInt(int64(1<<config.RegistryTreeDepth) - 1)
	return int(new(big.Int).And(entityKeyHash, mask).Int64())
}

// Registry is the state machine. All state-changing operations serialize
// behind one mutex: every update reads and rewrites the single shared
// root, so concurrent writers would race on stale prior-state openings.
type Registry struct {
	mu       sync.RWMutex
	tree     *merkle.Tree
	state    State
	network  string
	verifier *prover.Verifier
	store    ledger.Store
	log      zerolog.Logger
}

// New creates an Active registry with zeroed counters and the canonical
// empty-tree root, bound to the given deployment context. The context's
// verifier is the registry's only trust anchor for incoming proofs.
func New(ctx deployment.Context, log zerolog.Logger) (*Registry, error) {
	if ctx.Verifier == nil {
		return nil, fmt.Errorf("registry: deployment context has no proof verifier")
	}
	tree := merkle.NewTree(config.RegistryTreeDepth, crypto.ZeroLeafHash())
	r := &Registry{
		tree:     tree,
		network:  ctx.Network,
		verifier: ctx.Verifier,
		store:    ctx.Ledger,
		log:      log.With().Str("component", "registry").Str("network", ctx.Network).Logger(),
	}
	r.state = State{EntitiesRoot: tree.Root()}
	if err := r.commit(); err != nil {
		return nil, fmt.Errorf("commit genesis state: %w", err)
	}
	return r, nil
}

// State returns a copy of the current aggregate state.
func (r *Registry) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := r.state
	s.EntitiesRoot = new(big.Int).Set(r.state.EntitiesRoot)
	return s
}

// Opening returns a fresh prior-state opening for an entity key, for use
// in the next state-changing call (or a retry after a conflict).
func (r *Registry) Opening(entityKeyHash *big.Int) (*merkle.Proof, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tree.GetProof(LeafIndexFor(entityKeyHash))
}

// InsertOrUpdate applies one verification result. The proof must verify
// under the registry's pinned trust anchors; the prior opening must
// resolve either to the empty-leaf hash (first insertion, prior == nil)
// or to the prior record's hash (update) against the current root. The
// written compliance flag comes from the proof's public output. Returns
// the record as written.
func (r *Registry) InsertOrUpdate(proof *prover.DomainProof, priorOpening *merkle.Proof, prior *Record) (*Record, error) {
	if err := r.verifier.Verify(proof); err != nil {
		return nil, err
	}
	out := proof.Output
	leafIdx := LeafIndexFor(out.EntityKeyHash)
	if priorOpening == nil || priorOpening.LeafIndex != leafIdx {
		return nil, &RecordNotFoundError{EntityKeyHash: out.EntityKeyHash}
	}
	if prior != nil && prior.EntityKeyHash.Cmp(out.EntityKeyHash) != 0 {
		return nil, &RecordNotFoundError{EntityKeyHash: out.EntityKeyHash}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Branch on the proved prior-slot state, never on a heuristic count:
	// the opening decides insert vs update.
	expected := r.tree.EmptyLeafHash()
	if prior != nil {
		expected = prior.Hash()
	}
	if !merkle.VerifyProof(expected, priorOpening, r.tree.Root()) {
		return nil, &RegistryConflictError{Root: r.tree.Root()}
	}

	flags := uint64(0)
	if out.Compliant {
		flags |= FlagCompliant
	}
	if out.EnhancedTotal > 0 && out.EnhancedPassCount == out.EnhancedTotal {
		flags |= FlagEnhanced
	}

	var rec *Record
	if prior == nil {
		rec = &Record{
			EntityKeyHash:     new(big.Int).Set(out.EntityKeyHash),
			StatusFlags:       flags,
			Score:             out.Score(),
			VerificationCount: 1,
			FirstVerifiedAt:   out.CurrentTime,
			LastVerifiedAt:    out.CurrentTime,
		}
	} else {
		rec = prior.clone()
		rec.StatusFlags = flags
		rec.Score = out.Score()
		rec.VerificationCount++
		rec.LastVerifiedAt = out.CurrentTime
	}

	wasCompliant := prior != nil && prior.Compliant()

	next := r.state
	next.TotalVerifications++
	if prior == nil {
		next.TotalEntities++
	}
	if rec.Compliant() && !wasCompliant {
		next.CompliantEntities++
	} else if !rec.Compliant() && wasCompliant {
		next.CompliantEntities--
	}

	if err := r.apply(leafIdx, rec.Hash(), next); err != nil {
		return nil, err
	}

	r.log.Info().
		Str("entity", fmt.Sprintf("0x%x", out.EntityKeyHash)).
		Str("domain", out.Domain).
		Bool("compliant", out.Compliant).
		Bool("insert", prior == nil).
		Int("verifications", r.state.TotalVerifications).
		Msg("registry updated")

	return rec, nil
}

// Query checks a record and its opening against the current root and
// returns the record unchanged if they match.
func (r *Registry) Query(opening *merkle.Proof, rec *Record) (*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if opening == nil || rec == nil ||
		opening.LeafIndex != LeafIndexFor(rec.EntityKeyHash) ||
		!merkle.VerifyProof(rec.Hash(), opening, r.tree.Root()) {
		var key *big.Int
		if rec != nil {
			key = rec.EntityKeyHash
		}
		return nil, &RecordNotFoundError{EntityKeyHash: key}
	}
	return rec.clone(), nil
}

// ResetEntity zeroes one entity's compliance flags and score. The record
// stays in the tree (entities are never deleted) with its version counter
// strictly incremented.
func (r *Registry) ResetEntity(opening *merkle.Proof, rec *Record) (*Record, error) {
	if opening == nil || rec == nil || opening.LeafIndex != LeafIndexFor(rec.EntityKeyHash) {
		var key *big.Int
		if rec != nil {
			key = rec.EntityKeyHash
		}
		return nil, &RecordNotFoundError{EntityKeyHash: key}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !merkle.VerifyProof(rec.Hash(), opening, r.tree.Root()) {
		return nil, &RegistryConflictError{Root: r.tree.Root()}
	}

	reset := rec.clone()
	wasCompliant := reset.Compliant()
	reset.StatusFlags = 0
	reset.Score = 0
	reset.Version++

	next := r.state
	if wasCompliant {
		next.CompliantEntities--
	}

	if err := r.apply(LeafIndexFor(rec.EntityKeyHash), reset.Hash(), next); err != nil {
		return nil, err
	}

	r.log.Info().
		Str("entity", fmt.Sprintf("0x%x", rec.EntityKeyHash)).
		Int("version", reset.Version).
		Msg("entity reset")

	return reset, nil
}

// ResetRegistry clears every counter and the entity tree, bumping the
// registry version. Versions are monotonic and never reused. The caller
// must present the current entities root; a mismatch means the registry
// moved since the caller last observed it and the reset is refused rather
// than discarding unseen updates.
func (r *Registry) ResetRegistry(currentRoot *big.Int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if currentRoot == nil || currentRoot.Cmp(r.tree.Root()) != 0 {
		return &RegistryConflictError{Root: r.tree.Root()}
	}

	tree := merkle.NewTree(config.RegistryTreeDepth, crypto.ZeroLeafHash())
	next := State{
		EntitiesRoot: tree.Root(),
		Version:      r.state.Version + 1,
	}

	snapshot, err := cbor.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := r.store.CommitState(next.EntitiesRoot, next.Version, snapshot); err != nil {
		return fmt.Errorf("commit reset state: %w", err)
	}

	r.tree = tree
	r.state = next
	r.log.Warn().Int("version", next.Version).Msg("registry reset")
	return nil
}

// apply writes a leaf, recomputes aggregates, commits to the ledger, and
// only then swings the in-memory state. A failed commit restores the
// previous leaf so no partial write is observable.
func (r *Registry) apply(leafIdx int, leafHash *big.Int, next State) error {
	prevLeaf := r.tree.LeafHash(leafIdx)

	if err := r.tree.SetLeaf(leafIdx, leafHash); err != nil {
		return fmt.Errorf("write leaf %d: %w", leafIdx, err)
	}
	next.EntitiesRoot = r.tree.Root()

	if next.TotalEntities > 0 {
		next.AggregateScore = (next.CompliantEntities*100 + next.TotalEntities/2) / next.TotalEntities
	} else {
		next.AggregateScore = 0
	}

	snapshot, err := cbor.Marshal(next)
	if err != nil {
		r.revertLeaf(leafIdx, prevLeaf)
		return fmt.Errorf("encode state: %w", err)
	}
	if err := r.store.CommitState(next.EntitiesRoot, next.Version, snapshot); err != nil {
		r.revertLeaf(leafIdx, prevLeaf)
		return fmt.Errorf("commit state: %w", err)
	}

	r.state = next
	return nil
}

func (r *Registry) revertLeaf(leafIdx int, prevLeaf *big.Int) {
	if err := r.tree.SetLeaf(leafIdx, prevLeaf); err != nil {
		// The in-memory tree no longer matches the last committed state;
		// nothing can be accepted until the process restarts from the
		// ledger.
		r.log.Error().Err(err).Int("leaf", leafIdx).Msg("leaf revert failed")
	}
}

// commit persists the current state under its version and root.
func (r *Registry) commit() error {
	snapshot, err := cbor.Marshal(r.state)
	if err != nil {
		return err
	}
	return r.store.CommitState(r.state.EntitiesRoot, r.state.Version, snapshot)
}
