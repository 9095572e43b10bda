package flow

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"
)

// DefaultStartID is the first id handed out, minus one. Ids count downward from here.
const DefaultStartID = 10000

// Allocator hands out node ids for one parse call.
//
// Without compaction every call to Allocate mints a fresh id. With compaction the first
// id minted for a digest is returned for every later occurrence of that digest, so
// operations that would display identically collapse into one graph node.
type Allocator struct {
	next    int
	compact bool
	seen    map[string]int
}

// NewAllocator returns an allocator whose first id is start-1.
func NewAllocator(start int, compact bool) *Allocator {
	return &Allocator{
		next:    start,
		compact: compact,
		seen:    map[string]int{},
	}
}

// Allocate returns the id for digest.
func (a *Allocator) Allocate(digest string) int {
	if a.compact {
		if id, ok := a.seen[digest]; ok {
			return id
		}
	}
	a.next--
	if a.compact {
		a.seen[digest] = a.next
	}
	return a.next
}

// Distinct returns the number of digests cached so far. It is always zero without
// compaction.
func (a *Allocator) Distinct() int {
	return len(a.seen)
}

// Hash fingerprints an operation by what it displays: its kind, label and metadata.
func Hash(kind, label, metadata string) string {
	d := xxhash.New()
	_, _ = d.WriteString(kind)
	_, _ = d.Write([]byte{0})
	_, _ = d.WriteString(label)
	_, _ = d.Write([]byte{0})
	_, _ = d.WriteString(metadata)
	return fmt.Sprintf("%016x", d.Sum64())
}

// QueryHash identifies the plan at position index of a batch.
func QueryHash(index int, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", errors.Wrap(err, "query hash: encode plan")
	}
	d := xxhash.New()
	_, _ = d.WriteString(strconv.Itoa(index))
	_, _ = d.Write([]byte{0})
	_, _ = d.Write(data)
	return fmt.Sprintf("%016x", d.Sum64()), nil
}
