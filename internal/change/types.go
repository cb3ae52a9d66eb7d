// internal/change/types.go
package change

import (
	"bytes"

	"respack/internal/digest"
)

// Verdict is the outcome of a change check.
type Verdict int

const (
	Unchanged Verdict = iota
	Changed
)

func (v Verdict) String() string {
	if v == Changed {
		return "changed"
	}
	return "unchanged"
}

// Snapshot maps a filename to its last-seen modification date.
// A nil Snapshot means no sidecar could be read.
type Snapshot map[string]string

// FileEntry is the on-disk shape of one sidecar record.
type FileEntry struct {
	Date string `yaml:"date"`
}

// Decide compares a previously persisted snapshot against the live listing.
// An empty live listing never needs a digest check.
func Decide(prev, live Snapshot) Verdict {
	if len(live) == 0 {
		return Unchanged
	}
	if prev == nil || len(prev) != len(live) {
		return Changed
	}
	for name, date := range prev {
		current, ok := live[name]
		if !ok || current != date {
			return Changed
		}
	}
	return Unchanged
}

// DecideDigest compares the stored digest bytes with a fresh one. Anything
// other than exactly digest.Size matching bytes counts as a change.
func DecideDigest(prev []byte, cur digest.Sum) Verdict {
	if len(prev) != digest.Size || !bytes.Equal(prev, cur[:]) {
		return Changed
	}
	return Unchanged
}
