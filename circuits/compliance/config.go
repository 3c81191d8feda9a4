package compliance

import "github.com/attestra/compliance-zkproof/config"

const (
	// TreeDepth is the document tree depth the circuit is built for. Every
	// opening carries exactly this many sibling hashes.
	TreeDepth = config.DocTreeDepth

	// MaxBundleWidth bounds the component count of a bundled slot opening.
	MaxBundleWidth = config.MaxBundleWidth
)
