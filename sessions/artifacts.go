package sessions

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ArtifactAccumulator collects cross-event side artifacts for the in-flight
// turn: transaction hashes, citation URLs, and at most one generated image.
// All adds are merging/idempotent. It is only touched while holding the
// owning turn's lock, so it carries no lock of its own.
type ArtifactAccumulator struct {
	txSeen       map[common.Hash]bool
	txHashes     []string
	citationSeen map[string]bool
	citations    []string
	image        *GeneratedImageRef
}

func NewArtifactAccumulator() *ArtifactAccumulator {
	return &ArtifactAccumulator{
		txSeen:       make(map[common.Hash]bool),
		citationSeen: make(map[string]bool),
	}
}

// AddTransactionHash records a transaction hash once, preserving first-sighting
// order. Hashes are normalized so case variants of the same hash collapse.
func (a *ArtifactAccumulator) AddTransactionHash(hash string) {
	if strings.TrimSpace(hash) == "" {
		return
	}
	h := common.HexToHash(hash)
	if a.txSeen[h] {
		return
	}
	a.txSeen[h] = true
	a.txHashes = append(a.txHashes, h.Hex())
}

// AddCitations appends citation URLs, keeping first-occurrence order and
// dropping duplicates.
func (a *ArtifactAccumulator) AddCitations(urls ...string) {
	for _, u := range urls {
		if u == "" || a.citationSeen[u] {
			continue
		}
		a.citationSeen[u] = true
		a.citations = append(a.citations, u)
	}
}

// SetGeneratedImage records the turn's image descriptor. At most one image
// per turn; the first one wins.
func (a *ArtifactAccumulator) SetGeneratedImage(ref GeneratedImageRef) {
	if a.image != nil || ref.URL == "" {
		return
	}
	a.image = &ref
}

// DrainAndReset returns the accumulated bundle and clears all state for the
// next turn. Invoked exactly once, at finalization.
func (a *ArtifactAccumulator) DrainAndReset() ArtifactBundle {
	bundle := ArtifactBundle{
		TxHashes:  a.txHashes,
		Citations: a.citations,
		Image:     a.image,
	}
	a.txSeen = make(map[common.Hash]bool)
	a.citationSeen = make(map[string]bool)
	a.txHashes = nil
	a.citations = nil
	a.image = nil
	return bundle
}
