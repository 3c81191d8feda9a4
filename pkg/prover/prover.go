// Package prover orchestrates proof generation and verification for domain
// compliance circuits. Proving is a pure, side-effect-free computation: an
// abandoned attempt leaves no state behind.
package prover

import (
	"bytes"
	"fmt"
	"math/big"
	"sync"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/backend/witness"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/fxamacker/cbor/v2"

	"github.com/attestra/compliance-zkproof/circuits/compliance"
	"github.com/attestra/compliance-zkproof/pkg/crypto"
	"github.com/attestra/compliance-zkproof/pkg/oracle"
	"github.com/attestra/compliance-zkproof/pkg/setup"
)

// System holds a compiled domain circuit with its Groth16 keys.
type System struct {
	Plan *compliance.DomainPlan

	ccs constraint.ConstraintSystem
	pk  groth16.ProvingKey
	vk  groth16.VerifyingKey
}

// NewSystem compiles the plan's circuit and runs a dev setup in-process.
// Production deployments load ceremony keys instead via NewSystemWithKeys.
func NewSystem(plan *compliance.DomainPlan) (*System, error) {
	ccs, err := setup.CompilePlan(plan)
	if err != nil {
		return nil, err
	}
	pk, vk, err := groth16.Setup(ccs)
	if err != nil {
		return nil, fmt.Errorf("groth16 setup for %s: %w", plan.Domain, err)
	}
	return &System{Plan: plan, ccs: ccs, pk: pk, vk: vk}, nil
}

// NewSystemWithKeys compiles the plan's circuit and attaches externally
// provisioned keys.
func NewSystemWithKeys(plan *compliance.DomainPlan, pk groth16.ProvingKey, vk groth16.VerifyingKey) (*System, error) {
	ccs, err := setup.CompilePlan(plan)
	if err != nil {
		return nil, err
	}
	return &System{Plan: plan, ccs: ccs, pk: pk, vk: vk}, nil
}

// VerifyingKey exposes the system's verifying key for export.
func (s *System) VerifyingKey() groth16.VerifyingKey { return s.vk }

// Prove generates a domain proof from a prepared witness.
func (s *System) Prove(w *compliance.WitnessResult) (*DomainProof, error) {
	fullWitness, err := frontend.NewWitness(w.Assignment, ecc.BN254.ScalarField())
	if err != nil {
		return nil, fmt.Errorf("domain %s: build witness: %w", s.Plan.Domain, err)
	}

	proof, err := groth16.Prove(s.ccs, s.pk, fullWitness)
	if err != nil {
		return nil, fmt.Errorf("domain %s: prove: %w", s.Plan.Domain, err)
	}

	return &DomainProof{
		Domain: s.Plan.Domain,
		Output: w.Output,
		Proof:  proof,
	}, nil
}

// DomainProof is the portable verification artifact for one domain: the
// Groth16 proof and the public output it commits to. The verifying key is
// deliberately not part of the artifact; verification resolves it from the
// Verifier's trust set so a prover can never supply its own.
type DomainProof struct {
	Domain string
	Output *compliance.PublicOutput
	Proof  groth16.Proof
}

// publicWitness reconstructs the public witness from the output alone.
func (p *DomainProof) publicWitness(plan *compliance.DomainPlan) (witness.Witness, error) {
	assignment, err := p.Output.PublicAssignment(plan)
	if err != nil {
		return nil, err
	}
	return frontend.NewWitness(assignment, ecc.BN254.ScalarField(), frontend.PublicOnly())
}

// Verifier checks domain proofs against pinned trust anchors: one
// verifying key per domain and the oracle key resolver of the deployment.
// A proof verifies only under the key material registered here, never
// under material it carries itself.
type Verifier struct {
	keys oracle.KeyResolver

	mu  sync.RWMutex
	vks map[string]groth16.VerifyingKey
}

// NewVerifier builds a verifier over the deployment's oracle keys. Domains
// are untrusted until a verifying key is registered with Trust.
func NewVerifier(keys oracle.KeyResolver) *Verifier {
	return &Verifier{keys: keys, vks: make(map[string]groth16.VerifyingKey)}
}

// Trust registers the verifying key for a domain, replacing any previous
// one.
func (v *Verifier) Trust(domain string, vk groth16.VerifyingKey) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.vks[domain] = vk
}

// Verify checks a domain proof against the domain's pinned verifying key
// and confirms the public output carries the domain's trusted oracle key.
// A verification failure is a cryptographic inconsistency, never a
// negative verdict.
func (v *Verifier) Verify(p *DomainProof) error {
	v.mu.RLock()
	vk, ok := v.vks[p.Domain]
	v.mu.RUnlock()
	if !ok {
		return fmt.Errorf("domain %s: no trusted verifying key", p.Domain)
	}

	trusted, ok := v.keys.ResolvePublicKey(p.Domain)
	if !ok {
		return &compliance.InvalidAttestationError{Domain: p.Domain, Reason: "no trusted oracle key for domain"}
	}
	if !bytes.Equal(trusted, p.Output.OraclePublicKey) {
		return &compliance.InvalidAttestationError{Domain: p.Domain, Reason: "proof output carries an untrusted oracle key"}
	}

	plan, err := compliance.PlanFor(p.Domain)
	if err != nil {
		return err
	}
	pub, err := p.publicWitness(plan)
	if err != nil {
		return fmt.Errorf("domain %s: rebuild public witness: %w", p.Domain, err)
	}
	if err := groth16.Verify(p.Proof, vk, pub); err != nil {
		return fmt.Errorf("domain %s: verify proof: %w", p.Domain, err)
	}
	return nil
}

// proofEnvelope is the persisted form of a DomainProof.
type proofEnvelope struct {
	Domain string `cbor:"1,keyasint"`
	Output []byte `cbor:"2,keyasint"`
	Proof  []byte `cbor:"3,keyasint"`
}

// MarshalBinary serializes the proof for export and lineage storage.
func (p *DomainProof) MarshalBinary() ([]byte, error) {
	outputBytes, err := cbor.Marshal(p.Output)
	if err != nil {
		return nil, fmt.Errorf("encode output: %w", err)
	}

	var proofBuf bytes.Buffer
	if _, err := p.Proof.WriteTo(&proofBuf); err != nil {
		return nil, fmt.Errorf("encode proof: %w", err)
	}

	return cbor.Marshal(proofEnvelope{
		Domain: p.Domain,
		Output: outputBytes,
		Proof:  proofBuf.Bytes(),
	})
}

// UnmarshalBinary restores a proof serialized by MarshalBinary.
func (p *DomainProof) UnmarshalBinary(data []byte) error {
	var env proofEnvelope
	if err := cbor.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}

	var output compliance.PublicOutput
	if err := cbor.Unmarshal(env.Output, &output); err != nil {
		return fmt.Errorf("decode output: %w", err)
	}

	proof := groth16.NewProof(ecc.BN254)
	if _, err := proof.ReadFrom(bytes.NewReader(env.Proof)); err != nil {
		return fmt.Errorf("decode proof: %w", err)
	}

	p.Domain = env.Domain
	p.Output = &output
	p.Proof = proof
	return nil
}

// Hash returns the Poseidon2 hash of the serialized proof. Lineage chains
// reference constituent proofs by this value.
func (p *DomainProof) Hash() (*big.Int, error) {
	data, err := p.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return crypto.HashBytes(data), nil
}
