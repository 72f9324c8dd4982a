package record

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
)

// MarshalPatch serialises a Patch to JSON.
func MarshalPatch(p *Patch) ([]byte, error) {
	return json.Marshal(p)
}

// UnmarshalPatch deserialises a Patch from JSON.
func UnmarshalPatch(data []byte) (*Patch, error) {
	var p Patch
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Hash returns the SHA-256 hex digest of the JSON form of records. Two
// serializations of an unchanged subtree hash identically.
func Hash(records []Record) (string, error) {
	data, err := json.Marshal(records)
	if err != nil {
		return "", fmt.Errorf("record: hash: %w", err)
	}
	return fmt.Sprintf("%x", sha256.Sum256(data)), nil
}
