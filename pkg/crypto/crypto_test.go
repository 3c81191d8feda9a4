package crypto

import (
	"math/big"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

func TestHashElementsDeterministic(t *testing.T) {
	a := HashElements(big.NewInt(1), big.NewInt(2))
	b := HashElements(big.NewInt(1), big.NewInt(2))
	if a.Cmp(b) != 0 {
		t.Fatal("same inputs hashed differently")
	}
	if a.Cmp(HashElements(big.NewInt(2), big.NewInt(1))) == 0 {
		t.Fatal("hash is order-insensitive")
	}
	if a.Cmp(fr.Modulus()) >= 0 {
		t.Fatal("hash outside the scalar field")
	}
}

func TestHashElementsCanonicalReduction(t *testing.T) {
	// An input above the modulus must hash like its reduced form.
	v := new(big.Int).Add(fr.Modulus(), big.NewInt(5))
	if HashElements(v).Cmp(HashElements(big.NewInt(5))) != 0 {
		t.Fatal("non-canonical input not reduced before hashing")
	}
}

func TestZeroLeafHash(t *testing.T) {
	if ZeroLeafHash().Cmp(HashElements(big.NewInt(0))) != 0 {
		t.Fatal("zero leaf hash mismatch")
	}
	if ZeroLeafHash().Sign() == 0 {
		t.Fatal("zero leaf hash is literally zero")
	}
}

func TestHashBytes(t *testing.T) {
	data := []byte("serialized proof bytes for lineage hashing, longer than one element")
	a := HashBytes(data)
	b := HashBytes(data)
	if a.Cmp(b) != 0 {
		t.Fatal("same bytes hashed differently")
	}

	mutated := append([]byte{}, data...)
	mutated[3] ^= 0x01
	if a.Cmp(HashBytes(mutated)) == 0 {
		t.Fatal("mutated bytes produced the same hash")
	}
}

func TestSignAndVerifyRoot(t *testing.T) {
	signer, err := GenerateSigner()
	if err != nil {
		t.Fatalf("generate signer: %v", err)
	}
	root, err := GenerateScalar()
	if err != nil {
		t.Fatalf("generate root: %v", err)
	}

	sig, err := SignRoot(root, signer)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	ok, err := VerifyRootSignature(root, sig, signer.Public())
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !ok {
		t.Fatal("valid signature rejected")
	}

	// Wrong root.
	otherRoot := new(big.Int).Add(root, big.NewInt(1))
	ok, _ = VerifyRootSignature(otherRoot, sig, signer.Public())
	if ok {
		t.Fatal("signature accepted for a different root")
	}

	// Wrong key.
	other, err := GenerateSigner()
	if err != nil {
		t.Fatalf("generate other signer: %v", err)
	}
	ok, _ = VerifyRootSignature(root, sig, other.Public())
	if ok {
		t.Fatal("signature accepted under a different key")
	}
}

func TestPublicKeyRoundTrip(t *testing.T) {
	signer, err := GenerateSigner()
	if err != nil {
		t.Fatalf("generate signer: %v", err)
	}
	root, err := GenerateScalar()
	if err != nil {
		t.Fatalf("generate root: %v", err)
	}
	sig, err := SignRoot(root, signer)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	pub, err := UnmarshalPublicKey(signer.Public().Bytes())
	if err != nil {
		t.Fatalf("unmarshal public key: %v", err)
	}
	ok, err := VerifyRootSignature(root, sig, pub)
	if err != nil {
		t.Fatalf("verify with decoded key: %v", err)
	}
	if !ok {
		t.Fatal("decoded public key rejected a valid signature")
	}
}
