package storytree

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"sync"
)

// DigestSequences hashes everything BuildMergeLayout reads from its inputs.
// Equal digests mean equal layouts.
func DigestSequences(seqs []Sequence, currentStoryID, highlightStoryID string, g Geometry) string {
	h := sha256.New()
	writeField(h, currentStoryID)
	writeField(h, highlightStoryID)
	for _, v := range []int{g.ColumnGap, g.RowGap, g.Padding, g.MinWidth, g.MinHeight} {
		_ = binary.Write(h, binary.BigEndian, int64(v))
	}
	_ = binary.Write(h, binary.BigEndian, int64(len(seqs)))
	for _, s := range seqs {
		writeField(h, s.StoryID)
		writeField(h, s.RootStoryID)
		writeField(h, s.Title)
		_ = binary.Write(h, binary.BigEndian, int64(len(s.Sentences)))
		for _, line := range s.Sentences {
			writeField(h, line)
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

func writeField(h hash.Hash, s string) {
	_ = binary.Write(h, binary.BigEndian, int64(len(s)))
	h.Write([]byte(s))
}

// LayoutCache remembers the most recent layout and rebuilds only when the
// inputs change. It is safe for concurrent use.
type LayoutCache struct {
	mu       sync.Mutex
	geometry Geometry
	digest   string
	layout   Layout
	builds   int
}

// NewLayoutCache returns a cache that lays out with g.
func NewLayoutCache(g Geometry) *LayoutCache {
	return &LayoutCache{geometry: g}
}

// Layout returns the layout for the inputs, reusing the previous result when
// nothing changed. Each call hands out its own copy of the nodes and edges.
func (c *LayoutCache) Layout(seqs []Sequence, currentStoryID, highlightStoryID string) Layout {
	digest := DigestSequences(seqs, currentStoryID, highlightStoryID, c.geometry)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.builds > 0 && digest == c.digest {
		return c.layout.clone()
	}
	c.layout = BuildMergeLayout(seqs, currentStoryID, highlightStoryID, WithGeometry(c.geometry))
	c.digest = digest
	c.builds++
	return c.layout.clone()
}

// Builds reports how many times the cache recomputed a layout.
func (c *LayoutCache) Builds() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.builds
}
