package record

// PatchType distinguishes the two mirror entry points.
type PatchType string

const (
	PatchInitialize PatchType = "initialize" // full child list of the root container
	PatchChanges    PatchType = "changes"    // one coalesced batch
)

// Patch is the envelope delivered to remote mirrors. One patch is one call
// of a mirror entry point.
type Patch struct {
	ID        string    `json:"id"`      // UUIDv7
	Session   string    `json:"session"` // stable identifier of the mirrored document
	Seq       uint64    `json:"seq"`     // monotonically increasing per session (gap detection)
	Type      PatchType `json:"type"`
	Children  []Record  `json:"children,omitempty"` // initialize only
	Removed   []Record  `json:"removed"`            // always empty from this engine
	Moved     []Record  `json:"moved,omitempty"`
	Timestamp int64     `json:"timestamp"` // epoch milliseconds
}

// Records returns the records carried by the patch, whatever its type.
func (p *Patch) Records() []Record {
	if p.Type == PatchInitialize {
		return p.Children
	}
	return p.Moved
}
