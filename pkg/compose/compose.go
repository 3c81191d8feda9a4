// Package compose chains independently generated domain proofs into one
// lineage-tracked artifact. Level 1 wraps a single domain proof; each
// higher level folds exactly one more domain in. The chain is strictly
// ordered: level n is built from level n-1, never assembled out of order.
package compose

import (
	"fmt"
	"math/big"

	"github.com/fxamacker/cbor/v2"

	"github.com/attestra/compliance-zkproof/pkg/crypto"
	"github.com/attestra/compliance-zkproof/pkg/ledger"
	"github.com/attestra/compliance-zkproof/pkg/prover"
)

// CompositionOrderError reports a compose call whose prior proof is not
// the immediately preceding level.
type CompositionOrderError struct {
	Level      int
	PriorLevel int
}

func (e *CompositionOrderError) Error() string {
	return fmt.Sprintf("compose: level %d requires a level %d prior proof, got level %d", e.Level, e.Level-1, e.PriorLevel)
}

// ComposedProof aggregates one verified domain proof per level. Its
// lineage hash chain lets an observer confirm exactly which constituent
// proofs contributed without re-disclosing their private inputs. The
// chain is anchored to the level-1 proof's entity key hash: each domain
// keys on its own identifier field, so later levels carry their own
// entity hashes inside their public outputs.
type ComposedProof struct {
	Level            int
	EntityKeyHash    *big.Int
	LevelHashes      []*big.Int
	Domains          []string
	DomainScores     map[string]int
	DomainCompliant  map[string]bool
	OverallCompliant bool

	proofs []*prover.DomainProof
}

// LineageHash returns the top-level lineage hash identifying the chain.
func (c *ComposedProof) LineageHash() *big.Int {
	return c.LevelHashes[len(c.LevelHashes)-1]
}

// Proofs returns the constituent domain proofs in composition order.
func (c *ComposedProof) Proofs() []*prover.DomainProof { return c.proofs }

// levelHash extends the lineage: each level's hash is derivable only from
// the previous level's hash and the new proof's hash. Level 1 chains from
// zero.
func levelHash(prev, proofHash *big.Int) *big.Int {
	return crypto.HashElements(prev, proofHash)
}

// Compose builds the next level of a composition chain. The new domain
// proof is verified against v's pinned trust anchors, and for level > 1
// the entire prior chain is re-verified, so a composed proof is only ever
// constructed from valid constituents. Overall compliance is the AND of
// every folded domain's flag, independent of the numeric scores.
func Compose(v *prover.Verifier, level int, prior *ComposedProof, dp *prover.DomainProof) (*ComposedProof, error) {
	if level < 1 {
		return nil, fmt.Errorf("compose: level must be >= 1, got %d", level)
	}
	if level == 1 {
		if prior != nil {
			return nil, &CompositionOrderError{Level: 1, PriorLevel: prior.Level}
		}
	} else {
		if prior == nil {
			return nil, &CompositionOrderError{Level: level, PriorLevel: 0}
		}
		if prior.Level != level-1 {
			return nil, &CompositionOrderError{Level: level, PriorLevel: prior.Level}
		}
		if err := prior.VerifyChain(v); err != nil {
			return nil, fmt.Errorf("compose: prior chain invalid: %w", err)
		}
	}

	if err := v.Verify(dp); err != nil {
		return nil, fmt.Errorf("compose: domain proof invalid: %w", err)
	}

	prevHash := big.NewInt(0)
	entity := dp.Output.EntityKeyHash
	if prior != nil {
		prevHash = prior.LineageHash()
		entity = prior.EntityKeyHash
		if _, dup := prior.DomainScores[dp.Domain]; dup {
			return nil, fmt.Errorf("compose: domain %s already folded into the chain", dp.Domain)
		}
	}

	proofHash, err := dp.Hash()
	if err != nil {
		return nil, fmt.Errorf("compose: hash domain proof: %w", err)
	}

	c := &ComposedProof{
		Level:           level,
		EntityKeyHash:   new(big.Int).Set(entity),
		DomainScores:    map[string]int{dp.Domain: dp.Output.Score()},
		DomainCompliant: map[string]bool{dp.Domain: dp.Output.Compliant},
	}
	if prior != nil {
		c.LevelHashes = append(c.LevelHashes, prior.LevelHashes...)
		c.Domains = append(c.Domains, prior.Domains...)
		c.proofs = append(c.proofs, prior.proofs...)
		for d, s := range prior.DomainScores {
			c.DomainScores[d] = s
		}
		for d, ok := range prior.DomainCompliant {
			c.DomainCompliant[d] = ok
		}
	}
	c.LevelHashes = append(c.LevelHashes, levelHash(prevHash, proofHash))
	c.Domains = append(c.Domains, dp.Domain)
	c.proofs = append(c.proofs, dp)

	c.OverallCompliant = true
	for _, ok := range c.DomainCompliant {
		if !ok {
			c.OverallCompliant = false
			break
		}
	}
	return c, nil
}

// VerifyChain re-verifies every constituent proof against v's trust
// anchors and recomputes the lineage hashes against the stored chain.
func (c *ComposedProof) VerifyChain(v *prover.Verifier) error {
	if c.Level != len(c.proofs) || c.Level != len(c.LevelHashes) || c.Level != len(c.Domains) {
		return fmt.Errorf("compose: chain shape mismatch at level %d", c.Level)
	}

	prev := big.NewInt(0)
	for i, dp := range c.proofs {
		if dp.Domain != c.Domains[i] {
			return fmt.Errorf("compose: level %d proof is for domain %s, chain records %s", i+1, dp.Domain, c.Domains[i])
		}
		if err := v.Verify(dp); err != nil {
			return fmt.Errorf("compose: level %d: %w", i+1, err)
		}
		if i == 0 && dp.Output.EntityKeyHash.Cmp(c.EntityKeyHash) != 0 {
			return fmt.Errorf("compose: chain anchor does not match level 1 proof's entity")
		}
		proofHash, err := dp.Hash()
		if err != nil {
			return fmt.Errorf("compose: level %d: hash proof: %w", i+1, err)
		}
		want := levelHash(prev, proofHash)
		if want.Cmp(c.LevelHashes[i]) != 0 {
			return fmt.Errorf("compose: lineage hash mismatch at level %d", i+1)
		}
		prev = c.LevelHashes[i]
	}
	return nil
}

// composedEnvelope is the persisted form of a ComposedProof. Scores,
// flags, and lineage hashes are recomputed from the constituent proofs on
// load rather than trusted from storage.
type composedEnvelope struct {
	Level  int      `cbor:"1,keyasint"`
	Proofs [][]byte `cbor:"2,keyasint"`
}

// Export serializes the composed proof and records it in the ledger under
// its lineage hash, indexed by entity key for later audit.
func (c *ComposedProof) Export(store ledger.Store) (*big.Int, error) {
	env := composedEnvelope{Level: c.Level, Proofs: make([][]byte, len(c.proofs))}
	for i, dp := range c.proofs {
		data, err := dp.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("compose: encode level %d proof: %w", i+1, err)
		}
		env.Proofs[i] = data
	}
	data, err := cbor.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("compose: encode chain: %w", err)
	}

	lineage := c.LineageHash()
	if err := store.PutLineage(lineage, c.EntityKeyHash, data); err != nil {
		return nil, err
	}
	return lineage, nil
}

// Load retrieves a composed proof by lineage hash and rebuilds it by
// re-composing the stored constituent proofs level by level, re-verifying
// each against v's trust anchors. The rebuilt chain's top lineage hash
// must match the requested one.
func Load(store ledger.Store, v *prover.Verifier, lineageHash *big.Int) (*ComposedProof, error) {
	data, err := store.Lineage(lineageHash)
	if err != nil {
		return nil, err
	}

	var env composedEnvelope
	if err := cbor.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("compose: decode chain: %w", err)
	}
	if env.Level != len(env.Proofs) {
		return nil, fmt.Errorf("compose: stored chain shape mismatch at level %d", env.Level)
	}

	var c *ComposedProof
	for i, raw := range env.Proofs {
		dp := new(prover.DomainProof)
		if err := dp.UnmarshalBinary(raw); err != nil {
			return nil, fmt.Errorf("compose: decode level %d proof: %w", i+1, err)
		}
		c, err = Compose(v, i+1, c, dp)
		if err != nil {
			return nil, err
		}
	}

	if c.LineageHash().Cmp(lineageHash) != 0 {
		return nil, fmt.Errorf("compose: stored chain does not hash to lineage 0x%x", lineageHash)
	}
	return c, nil
}

// LineagesForEntity lists every lineage hash recorded for an entity.
func LineagesForEntity(store ledger.Store, entityKeyHash *big.Int) ([]*big.Int, error) {
	return store.LineageHashesByEntity(entityKeyHash)
}
