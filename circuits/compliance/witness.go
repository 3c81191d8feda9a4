package compliance

import (
	"bytes"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"

	tedwards "github.com/consensys/gnark-crypto/ecc/twistededwards"
	"github.com/consensys/gnark/frontend"

	"github.com/attestra/compliance-zkproof/pkg/crypto"
	"github.com/attestra/compliance-zkproof/pkg/document"
	"github.com/attestra/compliance-zkproof/pkg/merkle"
	"github.com/attestra/compliance-zkproof/pkg/oracle"
)

// InvalidWitnessError reports openings that fail to resolve to the attested
// root. Always fatal to the attempt; retrying with the same inputs cannot
// succeed.
type InvalidWitnessError struct {
	Domain string
	Fields []string
}

func (e *InvalidWitnessError) Error() string {
	return fmt.Sprintf("domain %s: merkle openings do not resolve to root for fields: %s", e.Domain, strings.Join(e.Fields, ", "))
}

// InvalidAttestationError reports an attestation that does not bind the
// document being proven: wrong domain, wrong root, or a signature that
// fails verification.
type InvalidAttestationError struct {
	Domain string
	Reason string
}

func (e *InvalidAttestationError) Error() string {
	return fmt.Sprintf("domain %s: invalid attestation: %s", e.Domain, e.Reason)
}

// PublicOutput is the non-secret result a verifier learns from a proof:
// the verdict, pass counts, and the minimal disclosed identity (a hash,
// never the raw entity key).
type PublicOutput struct {
	Domain            string   `cbor:"1,keyasint"`
	Root              *big.Int `cbor:"2,keyasint"`
	CurrentTime       int64    `cbor:"3,keyasint"`
	EntityKeyHash     *big.Int `cbor:"4,keyasint"`
	Compliant         bool     `cbor:"5,keyasint"`
	CorePassCount     int      `cbor:"6,keyasint"`
	CoreTotal         int      `cbor:"7,keyasint"`
	EnhancedPassCount int      `cbor:"8,keyasint"`
	EnhancedTotal     int      `cbor:"9,keyasint"`
	OraclePublicKey   []byte   `cbor:"10,keyasint"`
}

// Score maps the pass counts onto the 0..100 compliance score recorded in
// the registry and aggregated by proof composition.
func (o *PublicOutput) Score() int {
	total := o.CoreTotal + o.EnhancedTotal
	if total == 0 {
		return 0
	}
	passed := o.CorePassCount + o.EnhancedPassCount
	return (passed*100 + total/2) / total
}

// PublicAssignment rebuilds the circuit's public-input assignment from the
// output alone, for verification without access to any private data.
func (o *PublicOutput) PublicAssignment(plan *DomainPlan) (*Circuit, error) {
	assignment := NewCircuit(plan)
	assignment.Root = o.Root
	assignment.CurrentTime = o.CurrentTime
	assignment.EntityKeyHash = o.EntityKeyHash
	assignment.Compliant = boolToInt(o.Compliant)
	assignment.CorePassCount = o.CorePassCount
	assignment.EnhancedPassCount = o.EnhancedPassCount
	// Assign panics on malformed bytes; decode first so envelopes from
	// untrusted sources fail with an error instead.
	if _, err := crypto.UnmarshalPublicKey(o.OraclePublicKey); err != nil {
		return nil, fmt.Errorf("oracle public key: %w", err)
	}
	assignment.OraclePublicKey.Assign(tedwards.BN254, o.OraclePublicKey)
	return assignment, nil
}

// WitnessResult holds the fully populated circuit assignment plus the
// public output callers record downstream.
type WitnessResult struct {
	Assignment *Circuit
	Output     *PublicOutput
}

// PrepareWitness derives the circuit assignment from a built document
// tree, its oracle attestation, and the proving time. The attestation must
// carry the domain's trusted oracle key as resolved by keys; a
// self-consistent signature under any other key is rejected. All
// validation runs natively before any proving cost is spent:
//
//  1. mandatory fields (final gate, same error as the builder),
//  2. attestation domain/root/key binding and signature,
//  3. every opening against the root,
//
// then predicates are evaluated to fix the public verdict the circuit
// will re-derive.
func PrepareWitness(plan *DomainPlan, tree *document.Tree, att *oracle.Attestation, keys oracle.KeyResolver, now time.Time) (*WitnessResult, error) {
	if missing := missingMandatorySlots(plan, tree); len(missing) > 0 {
		return nil, &document.MissingMandatoryFieldError{DocumentType: plan.Domain, Fields: missing}
	}

	if att.Domain != plan.Domain {
		return nil, &InvalidAttestationError{Domain: plan.Domain, Reason: fmt.Sprintf("attested for domain %q", att.Domain)}
	}
	trusted, ok := keys.ResolvePublicKey(plan.Domain)
	if !ok {
		return nil, &InvalidAttestationError{Domain: plan.Domain, Reason: "no trusted oracle key for domain"}
	}
	if !bytes.Equal(trusted, att.PublicKey) {
		return nil, &InvalidAttestationError{Domain: plan.Domain, Reason: "signed by a key other than the domain's trusted oracle key"}
	}
	root := tree.Root()
	if att.Root == nil || att.Root.Cmp(root) != 0 {
		return nil, &InvalidAttestationError{Domain: plan.Domain, Reason: "attested root does not match document root"}
	}
	if ok, err := att.Verify(); err != nil {
		return nil, &InvalidAttestationError{Domain: plan.Domain, Reason: err.Error()}
	} else if !ok {
		return nil, &InvalidAttestationError{Domain: plan.Domain, Reason: "signature verification failed"}
	}

	assignment := NewCircuit(plan)
	primary := make([]*big.Int, len(plan.Openings))
	var badFields []string

	for k, op := range plan.Openings {
		slot, ok := tree.Slot(op.Slot)
		values := make([]*big.Int, op.Width)
		leafHash := crypto.ZeroLeafHash()
		if ok {
			copy(values, slot.Values)
			leafHash = slot.Hash
		} else {
			for i := range values {
				values[i] = big.NewInt(0)
			}
		}
		for i := range values {
			if values[i] == nil {
				values[i] = big.NewInt(0)
			}
			assignment.Openings[k].Values[i] = values[i]
		}
		primary[k] = values[0]

		opening, err := tree.Opening(op.Slot)
		if err != nil {
			return nil, fmt.Errorf("domain %s: opening slot %d: %w", plan.Domain, op.Slot, err)
		}
		if !merkle.VerifyProof(leafHash, opening, root) {
			if spec, found := plan.Layout.FieldBySlot(op.Slot); found {
				badFields = append(badFields, spec.Name)
			} else {
				badFields = append(badFields, fmt.Sprintf("slot-%d", op.Slot))
			}
		}
		for lvl := 0; lvl < TreeDepth; lvl++ {
			assignment.Openings[k].Siblings[lvl] = opening.Siblings[lvl]
		}
	}
	if len(badFields) > 0 {
		sort.Strings(badFields)
		return nil, &InvalidWitnessError{Domain: plan.Domain, Fields: badFields}
	}

	outcome := evalNative(plan, primary, now.Unix())
	entityKeyHash := crypto.HashElements(slotValues(assignment.Openings[plan.EntityKeyOpening].Values)...)

	assignment.Root = root
	assignment.CurrentTime = now.Unix()
	assignment.EntityKeyHash = entityKeyHash
	assignment.Compliant = boolToInt(outcome.Compliant)
	assignment.CorePassCount = outcome.CorePass
	assignment.EnhancedPassCount = outcome.EnhancedPass
	// Key and signature bytes were validated by att.Verify above; Assign
	// would panic on malformed input.
	assignment.OraclePublicKey.Assign(tedwards.BN254, att.PublicKey)
	assignment.OracleSignature.Assign(tedwards.BN254, att.Signature)

	output := &PublicOutput{
		Domain:            plan.Domain,
		Root:              root,
		CurrentTime:       now.Unix(),
		EntityKeyHash:     entityKeyHash,
		Compliant:         outcome.Compliant,
		CorePassCount:     outcome.CorePass,
		CoreTotal:         plan.CoreCount(),
		EnhancedPassCount: outcome.EnhancedPass,
		EnhancedTotal:     plan.EnhancedCount(),
		OraclePublicKey:   att.PublicKey,
	}

	return &WitnessResult{Assignment: assignment, Output: output}, nil
}

// missingMandatorySlots re-checks mandatory fields against the built tree.
// The builder already enforces this; the witness stage is the final gate
// so a tree built against a stale layout cannot slip through.
func missingMandatorySlots(plan *DomainPlan, tree *document.Tree) []string {
	var missing []string
	for _, name := range plan.Layout.MandatoryFields() {
		slot, ok := tree.SlotByName(name)
		if !ok {
			missing = append(missing, name)
			continue
		}
		empty := true
		for _, v := range slot.Values {
			if v != nil && v.Sign() != 0 {
				empty = false
				break
			}
		}
		if empty {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return missing
}

func slotValues(vars []frontend.Variable) []*big.Int {
	out := make([]*big.Int, len(vars))
	for i, v := range vars {
		out[i] = v.(*big.Int)
	}
	return out
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
