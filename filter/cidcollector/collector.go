// Package cidcollector implements the CID collector: it registers an
// ordered sequence of CID encoder slots and, once every member has
// resolved, combines their CIDs into a single group CID.
package cidcollector

import (
	"github.com/qsfio/qsf/filter/cidfilter"
	"github.com/qsfio/qsf/qsferr"
)

// Slot is anything that resolves to a CID string once its stream's encoder
// pipeline has flushed; *cidfilter.Encoder satisfies it.
type Slot interface {
	Resolved() string
}

// Collector combines the CIDs of its registered slots, in registration
// order, into a single combined CID.
type Collector struct {
	slots []Slot
}

// New creates an empty collector.
func New() *Collector { return &Collector{} }

// Register adds slot to the collector, in call order. Each stream whose
// content should contribute to the combined CID registers its encoder here
// at the same point it's added to the stream's own filter pipeline.
func (c *Collector) Register(slot Slot) { c.slots = append(c.slots, slot) }

// MemberCids returns the resolved per-slot CIDs in registration order. Every
// slot must have flushed before this is called; an unresolved slot
// contributes an empty string.
func (c *Collector) MemberCids() []string {
	out := make([]string, len(c.slots))
	for i, s := range c.slots {
		out[i] = s.Resolved()
	}
	return out
}

// Result computes the combined CID: CIDv1 raw over SHA-256 of the canonical
// JSON encoding of the ordered member CID array. Fails with EmptyCollector
// if no slot was ever registered.
func (c *Collector) Result() (string, error) {
	if len(c.slots) == 0 {
		return "", qsferr.New(qsferr.EmptyCollector, "cid collector: no slots registered")
	}
	return cidfilter.CombinedCID(c.MemberCids())
}
