// Package oracle implements the attestation service: a domain-scoped EdDSA
// signature over a document Merkle root, binding a specific data snapshot
// to a trusted source. Key resolution is an injected capability so that
// multi-domain, multi-environment setups stay testable; the oracle itself
// persists nothing.
package oracle

import (
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/signature"
	"github.com/rs/zerolog"

	"github.com/attestra/compliance-zkproof/pkg/crypto"
	"github.com/attestra/compliance-zkproof/pkg/layout"
)

// UnknownDomainError reports an attestation request for a domain with no
// registered signing key.
type UnknownDomainError struct {
	Domain string
}

func (e *UnknownDomainError) Error() string {
	return fmt.Sprintf("no signing key registered for domain %q", e.Domain)
}

// Attestation binds a signer to a document root. The same (domain, root)
// pair may be attested multiple times; signature bytes differ between runs
// but always verify against the same root.
type Attestation struct {
	Domain    string
	Root      *big.Int
	Signature []byte
	PublicKey []byte
}

// Verify checks the attestation signature against its embedded public key.
func (a *Attestation) Verify() (bool, error) {
	pub, err := crypto.UnmarshalPublicKey(a.PublicKey)
	if err != nil {
		return false, fmt.Errorf("attestation %s: decode public key: %w", a.Domain, err)
	}
	return crypto.VerifyRootSignature(a.Root, a.Signature, pub)
}

// KeyResolver resolves domain-scoped key material. Implementations back
// onto whatever secrets store a deployment uses; the oracle never reads
// ambient state.
type KeyResolver interface {
	// ResolveSigningKey returns the signer for a domain, or false if the
	// domain has no key.
	ResolveSigningKey(domain string) (signature.Signer, bool)
	// ResolvePublicKey returns the serialized public key for a domain.
	ResolvePublicKey(domain string) ([]byte, bool)
}

// Service signs document roots with per-domain keys.
type Service struct {
	resolver KeyResolver
	log      zerolog.Logger
}

// NewService builds an attestation service over the given resolver.
func NewService(resolver KeyResolver, log zerolog.Logger) *Service {
	return &Service{
		resolver: resolver,
		log:      log.With().Str("component", "oracle").Logger(),
	}
}

// Attest signs the root with the domain's key. Fails with
// UnknownDomainError if the resolver has no key for the domain.
func (s *Service) Attest(domain string, root *big.Int) (*Attestation, error) {
	signer, ok := s.resolver.ResolveSigningKey(domain)
	if !ok {
		return nil, &UnknownDomainError{Domain: domain}
	}

	sig, err := crypto.SignRoot(root, signer)
	if err != nil {
		return nil, fmt.Errorf("attest %s: sign root: %w", domain, err)
	}

	s.log.Debug().
		Str("domain", domain).
		Str("root", fmt.Sprintf("0x%x", root)).
		Msg("root attested")

	return &Attestation{
		Domain:    domain,
		Root:      root,
		Signature: sig,
		PublicKey: signer.Public().Bytes(),
	}, nil
}

// StaticResolver holds in-memory per-domain keypairs. Suitable for tests
// and local development; production deployments implement KeyResolver over
// their secrets store.
type StaticResolver struct {
	signers map[string]signature.Signer
}

// NewStaticResolver generates a fresh keypair for each named domain.
func NewStaticResolver(domains ...string) (*StaticResolver, error) {
	r := &StaticResolver{signers: make(map[string]signature.Signer, len(domains))}
	for _, d := range domains {
		signer, err := crypto.GenerateSigner()
		if err != nil {
			return nil, fmt.Errorf("generate key for domain %s: %w", d, err)
		}
		r.signers[d] = signer
	}
	return r, nil
}

// NewBuiltinResolver generates keys for every builtin document domain.
func NewBuiltinResolver() (*StaticResolver, error) {
	return NewStaticResolver(layout.Domains()...)
}

func (r *StaticResolver) ResolveSigningKey(domain string) (signature.Signer, bool) {
	s, ok := r.signers[domain]
	return s, ok
}

func (r *StaticResolver) ResolvePublicKey(domain string) ([]byte, bool) {
	s, ok := r.signers[domain]
	if !ok {
		return nil, false
	}
	return s.Public().Bytes(), true
}
