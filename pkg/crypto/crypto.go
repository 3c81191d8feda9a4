// Package crypto holds the native-side hashing and signing primitives that
// mirror what the compliance circuit computes in-circuit: Poseidon2
// Merkle-Damgard hashing over BN254 and EdDSA on the associated twisted
// Edwards curve.
package crypto

import (
	"crypto/rand"
	"math/big"

	tbn254 "github.com/consensys/gnark-crypto/ecc/bn254/twistededwards/eddsa"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/poseidon2"
	tedwards "github.com/consensys/gnark-crypto/ecc/twistededwards"
	"github.com/consensys/gnark-crypto/signature"
	"github.com/consensys/gnark-crypto/signature/eddsa"

	"github.com/attestra/compliance-zkproof/config"
)

// HashElements hashes a sequence of field elements with Poseidon2
// Merkle-Damgard. Every input is first reduced to its canonical 32-byte
// fr.Element encoding so that zero hashes as 32 zero bytes, matching the
// in-circuit hasher.
func HashElements(values ...*big.Int) *big.Int {
	h := poseidon2.NewMerkleDamgardHasher()
	for _, v := range values {
		var elem fr.Element
		elem.SetBigInt(v)
		b := elem.Bytes()
		h.Write(b[:])
	}
	return new(big.Int).SetBytes(h.Sum(nil))
}

// HashLeaf hashes the normalized values held by one document slot. A plain
// slot passes a single value; a bundled slot passes every component in
// layout order. The bundle opens as a unit: individual components are not
// independently provable once hashed together.
func HashLeaf(values ...*big.Int) *big.Int {
	return HashElements(values...)
}

// ZeroLeafHash returns the hash of the canonical empty slot (a single zero
// element). Unused document slots and vacant registry positions hold this
// value.
func ZeroLeafHash() *big.Int {
	return HashElements(big.NewInt(0))
}

// HashBytes hashes arbitrary bytes by packing them into ElementSize-byte
// field elements and absorbing the sequence. Used for proof lineage hashes,
// where the input is a serialized proof rather than field elements.
func HashBytes(data []byte) *big.Int {
	h := poseidon2.NewMerkleDamgardHasher()
	buf := make([]byte, config.ElementSize)
	var elem fr.Element
	for offset := 0; offset < len(data); offset += config.ElementSize {
		for i := range buf {
			buf[i] = 0
		}
		end := offset + config.ElementSize
		if end > len(data) {
			end = len(data)
		}
		copy(buf, data[offset:end])

		elem.SetBytes(buf)
		b := elem.Bytes()
		h.Write(b[:])
	}
	return new(big.Int).SetBytes(h.Sum(nil))
}

// GenerateScalar generates a random non-zero BN254 scalar field element.
func GenerateScalar() (*big.Int, error) {
	for {
		s, err := rand.Int(rand.Reader, fr.Modulus())
		if err != nil {
			return nil, err
		}
		if s.Sign() != 0 {
			return s, nil
		}
	}
}

// GenerateSigner generates a fresh EdDSA keypair on the BN254-embedded
// twisted Edwards curve.
func GenerateSigner() (signature.Signer, error) {
	return eddsa.New(tedwards.BN254, rand.Reader)
}

// SignRoot signs a Merkle root with the given signer. The root is reduced
// to its canonical fr encoding before signing so the message bytes match
// what the circuit reconstructs from the public root input. MiMC is the
// message hasher, as required by the in-circuit EdDSA verifier.
func SignRoot(root *big.Int, signer signature.Signer) ([]byte, error) {
	var elem fr.Element
	elem.SetBigInt(root)
	msg := elem.Bytes()
	return signer.Sign(msg[:], mimc.NewMiMC())
}

// VerifyRootSignature checks an EdDSA signature over a Merkle root against
// a public key, using the same canonical message encoding as SignRoot.
func VerifyRootSignature(root *big.Int, sig []byte, pub signature.PublicKey) (bool, error) {
	var elem fr.Element
	elem.SetBigInt(root)
	msg := elem.Bytes()
	return pub.Verify(sig, msg[:], mimc.NewMiMC())
}

// UnmarshalPublicKey decodes EdDSA public key bytes produced by
// signature.PublicKey.Bytes().
func UnmarshalPublicKey(b []byte) (signature.PublicKey, error) {
	pub := new(tbn254.PublicKey)
	if _, err := pub.SetBytes(b); err != nil {
		return nil, err
	}
	return pub, nil
}
