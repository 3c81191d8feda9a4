package compliance

import (
	"math/big"

	tedwards "github.com/consensys/gnark-crypto/ecc/twistededwards"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/algebra/native/twistededwards"
	"github.com/consensys/gnark/std/hash"
	"github.com/consensys/gnark/std/hash/mimc"
	"github.com/consensys/gnark/std/permutation/poseidon2"
	"github.com/consensys/gnark/std/signature/eddsa"
)

// SlotOpening reveals one document slot: its normalized component values
// (one per plain field, several per bundle) and the sibling path to the
// attested root. Directions are not witnessed; the slot index is fixed at
// compile time, so the path layout is baked into the constraints.
type SlotOpening struct {
	Values   []frontend.Variable
	Siblings [TreeDepth]frontend.Variable
}

// Circuit evaluates a domain's compliance predicate set over selectively
// disclosed document fields. It re-derives every revealed slot hash,
// checks each opening against the attested root, verifies the oracle
// signature over that root, and exposes the verdict as public output.
//
// A bad opening or signature makes the circuit unsatisfiable: no proof
// exists, rather than a proof of "false". A failed predicate, by contrast,
// still proves with Compliant = 0, so a negative-but-valid verdict is
// distinguishable from a refused attempt.
type Circuit struct {
	// Public inputs
	Root              frontend.Variable `gnark:"root,public"`
	CurrentTime       frontend.Variable `gnark:"currentTime,public"`
	EntityKeyHash     frontend.Variable `gnark:"entityKeyHash,public"`
	Compliant         frontend.Variable `gnark:"compliant,public"`
	CorePassCount     frontend.Variable `gnark:"corePassCount,public"`
	EnhancedPassCount frontend.Variable `gnark:"enhancedPassCount,public"`
	OraclePublicKey   eddsa.PublicKey   `gnark:"oraclePublicKey,public"`

	// Private witness
	OracleSignature eddsa.Signature `gnark:"oracleSignature"`
	Openings        []SlotOpening   `gnark:"openings"`

	// Compile-time parameterization; baked into constraints, never witnessed.
	Plan *DomainPlan `gnark:"-"`
}

// NewCircuit allocates a circuit shaped for the plan. Both the compiled
// constraint system and every witness assignment must share this shape.
func NewCircuit(plan *DomainPlan) *Circuit {
	c := &Circuit{Plan: plan}
	c.Openings = make([]SlotOpening, len(plan.Openings))
	for i, op := range plan.Openings {
		c.Openings[i].Values = make([]frontend.Variable, op.Width)
	}
	return c
}

func (circuit *Circuit) Define(api frontend.API) error {
	p, err := poseidon2.NewPoseidon2FromParameters(api, 2, 6, 50)
	if err != nil {
		return err
	}

	// Boolean helpers over {0,1} variables.
	eq := func(a, b frontend.Variable) frontend.Variable {
		return api.IsZero(api.Sub(a, b))
	}
	// leq maps api.Cmp's {-1,0,1} result to a <= bit: cmp*(cmp+1) is zero
	// exactly when cmp is -1 or 0.
	leq := func(a, b frontend.Variable) frontend.Variable {
		cmp := api.Cmp(a, b)
		return api.IsZero(api.Mul(cmp, api.Add(cmp, 1)))
	}

	// 1. Per-opening: recompute the leaf hash from revealed values and walk
	// the fixed path to the public root. Slot indices are compile-time
	// constants, so left/right placement needs no Select.
	for k, op := range circuit.Plan.Openings {
		leafHasher := hash.NewMerkleDamgardHasher(api, p, 0)
		leafHasher.Write(circuit.Openings[k].Values...)
		current := leafHasher.Sum()

		idx := op.Slot
		for lvl := 0; lvl < TreeDepth; lvl++ {
			sibling := circuit.Openings[k].Siblings[lvl]
			nodeHasher := hash.NewMerkleDamgardHasher(api, p, 0)
			if idx&1 == 0 {
				nodeHasher.Write(current, sibling)
			} else {
				nodeHasher.Write(sibling, current)
			}
			current = nodeHasher.Sum()
			idx >>= 1
		}
		api.AssertIsEqual(current, circuit.Root)
	}

	// 2. Oracle signature over the root, against the domain's public key.
	curve, err := twistededwards.NewEdCurve(api, tedwards.BN254)
	if err != nil {
		return err
	}
	sigHasher, err := mimc.NewMiMC(api)
	if err != nil {
		return err
	}
	if err := eddsa.Verify(curve, circuit.OracleSignature, circuit.Root, circuit.OraclePublicKey, &sigHasher); err != nil {
		return err
	}

	// 3. Entity identity: the public key hash must be the hash of the
	// designated entity-key slot's revealed values.
	keyHasher := hash.NewMerkleDamgardHasher(api, p, 0)
	keyHasher.Write(circuit.Openings[circuit.Plan.EntityKeyOpening].Values...)
	api.AssertIsEqual(circuit.EntityKeyHash, keyHasher.Sum())

	// 4. Predicate evaluation. Core predicates AND into the compliance bit;
	// enhanced predicates only feed their pass count. Must mirror
	// evalNative exactly.
	compliant := frontend.Variable(1)
	corePass := frontend.Variable(0)
	enhancedPass := frontend.Variable(0)

	for _, pred := range circuit.Plan.Predicates {
		v := circuit.Openings[pred.Opening].Values[0]
		var ok frontend.Variable

		switch pred.Kind {
		case StatusEquality:
			ok = eq(v, pred.Target)
		case StatusExclusion:
			ok = api.Sub(1, eq(v, pred.Target))
			if !pred.AllowEmpty {
				ok = api.And(ok, api.Sub(1, api.IsZero(v)))
			}
		case TemporalWindow:
			start := v
			end := circuit.Openings[pred.EndOpening].Values[0]
			inWindow := api.And(leq(start, circuit.CurrentTime), leq(circuit.CurrentTime, end))
			bothSet := api.And(api.Sub(1, api.IsZero(start)), api.Sub(1, api.IsZero(end)))
			ok = api.And(inWindow, bothSet)
		case NonEmpty:
			ok = api.And(api.Sub(1, api.IsZero(v)), api.Sub(1, eq(v, placeholderValue)))
		case CountThreshold:
			ok = leq(pred.Min, v)
		case PatternMatch:
			ok = patternCheck(api, leq, v, pred.Pattern)
		}

		if pred.Core {
			compliant = api.And(compliant, ok)
			corePass = api.Add(corePass, ok)
		} else {
			enhancedPass = api.Add(enhancedPass, ok)
		}
	}

	api.AssertIsEqual(circuit.Compliant, compliant)
	api.AssertIsEqual(circuit.CorePassCount, corePass)
	api.AssertIsEqual(circuit.EnhancedPassCount, enhancedPass)

	return nil
}

// patternCheck evaluates the structural pattern as a soft bit: the value
// must fit in exactly Length bytes, each within [MinByte, MaxByte]. Values
// too large for the pattern are swapped for zero before decomposition so
// the check fails cleanly instead of making the circuit unsatisfiable.
func patternCheck(api frontend.API, leq func(a, b frontend.Variable) frontend.Variable, v frontend.Variable, p PatternSpec) frontend.Variable {
	maxVal := new(big.Int).Lsh(big.NewInt(1), uint(8*p.Length))
	maxVal.Sub(maxVal, big.NewInt(1))

	fits := leq(v, maxVal)
	bounded := api.Select(fits, v, 0)
	bits := api.ToBinary(bounded, 8*p.Length)

	ok := fits
	for i := 0; i < p.Length; i++ {
		byteV := api.FromBinary(bits[8*i : 8*i+8]...)
		inRange := api.And(leq(int(p.MinByte), byteV), leq(byteV, int(p.MaxByte)))
		ok = api.And(ok, inRange)
	}
	// MinByte > 0 on the most significant byte forces the exact length.
	return ok
}
