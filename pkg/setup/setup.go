// Package setup compiles domain compliance circuits and manages their
// Groth16 key material on disk.
package setup

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"

	"github.com/attestra/compliance-zkproof/circuits/compliance"
)

// CompilePlan compiles the compliance circuit for a domain plan into a
// constraint system.
func CompilePlan(plan *compliance.DomainPlan) (constraint.ConstraintSystem, error) {
	ccs, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, compliance.NewCircuit(plan))
	if err != nil {
		return nil, fmt.Errorf("compile %s circuit: %w", plan.Domain, err)
	}
	return ccs, nil
}

// DevSetup performs a single-party trusted setup for a domain (NOT for
// production) and writes the proving and verifying keys to outputDir.
func DevSetup(plan *compliance.DomainPlan, outputDir string) error {
	fmt.Println("================================================================")
	fmt.Println("  WARNING: Single-party setup (1-of-1 trust assumption)")
	fmt.Println("  DO NOT use these keys in production.")
	fmt.Println("================================================================")

	ccs, err := CompilePlan(plan)
	if err != nil {
		return err
	}

	pk, vk, err := groth16.Setup(ccs)
	if err != nil {
		return fmt.Errorf("groth16 setup for %s: %w", plan.Domain, err)
	}

	return ExportKeys(pk, vk, outputDir, plan.Domain)
}

// ExportKeys writes the proving and verifying keys to outputDir.
// Files are named: <domain>_prover.key, <domain>_verifier.key
func ExportKeys(pk groth16.ProvingKey, vk groth16.VerifyingKey, outputDir, domain string) error {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	pkPath := filepath.Join(outputDir, domain+"_prover.key")
	if err := saveObject(pkPath, pk); err != nil {
		return err
	}

	vkPath := filepath.Join(outputDir, domain+"_verifier.key")
	if err := saveObject(vkPath, vk); err != nil {
		return err
	}

	fmt.Printf("Exported: %s, %s\n", pkPath, vkPath)
	return nil
}

// LoadKeys loads the proving and verifying keys for a domain from dir.
func LoadKeys(dir, domain string) (groth16.ProvingKey, groth16.VerifyingKey, error) {
	pk := groth16.NewProvingKey(ecc.BN254)
	if err := loadObject(filepath.Join(dir, domain+"_prover.key"), pk); err != nil {
		return nil, nil, err
	}

	vk := groth16.NewVerifyingKey(ecc.BN254)
	if err := loadObject(filepath.Join(dir, domain+"_verifier.key"), vk); err != nil {
		return nil, nil, err
	}

	return pk, vk, nil
}

func saveObject(path string, obj io.WriterTo) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	if _, err := obj.WriteTo(f); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func loadObject(path string, obj io.ReaderFrom) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	if _, err := obj.ReadFrom(f); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	return nil
}
