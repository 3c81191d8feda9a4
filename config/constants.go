package config

const (
	// ElementSize is the byte width of one packed field element. 31 bytes
	// keeps every packed value strictly below the BN254 scalar modulus.
	ElementSize = 31

	// MaxStringLen is the maximum number of bytes of a string field that
	// participate in hashing. Longer values are truncated before encoding
	// so that one field element always suffices per string component.
	MaxStringLen = ElementSize

	// DocTreeDepth is the fixed depth of every document Merkle tree.
	// 2^5 = 32 slots per document type.
	DocTreeDepth = 5

	// DocSlotCount is the number of addressable slots in a document tree.
	DocSlotCount = 1 << DocTreeDepth

	// RegistryTreeDepth is the fixed depth of the entity registry tree.
	// Leaf indices are the low RegistryTreeDepth bits of the entity key hash.
	RegistryTreeDepth = 16

	// MaxBundleWidth is the largest number of components a bundled slot
	// may hold (e.g. street/city/region/postal/country for an address).
	MaxBundleWidth = 6
)
