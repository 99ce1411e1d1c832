// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package pubkey defines the opaque node identifier used throughout the
// gossip simulator.
package pubkey

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

// Len is the fixed byte width of a NodeID.
const Len = 32

// ErrInvalidLength is returned when decoding a base-58 string that does
// not decode to exactly Len bytes.
var ErrInvalidLength = errors.New("pubkey: decoded length is not 32 bytes")

// NodeID is an opaque, comparable, hashable identifier for a cluster
// member. Its internal form is fixed bytes; its external form is a
// base-58 string.
type NodeID [Len]byte

// Empty is the zero-value NodeID.
var Empty NodeID

// String returns the base-58 encoding of id.
func (id NodeID) String() string {
	return base58.Encode(id[:])
}

// MarshalText implements encoding.TextMarshaler so NodeID round-trips
// through JSON (and any other text-based encoding) as a base-58
// string rather than a raw byte array.
func (id NodeID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *NodeID) UnmarshalText(text []byte) error {
	decoded, err := FromString(string(text))
	if err != nil {
		return err
	}
	*id = decoded
	return nil
}

// Less provides a total order over NodeIDs, by byte-wise comparison.
func (id NodeID) Less(other NodeID) bool {
	for i := range id {
		if id[i] != other[i] {
			return id[i] < other[i]
		}
	}
	return false
}

// FromString decodes a base-58 string into a NodeID.
func FromString(s string) (NodeID, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return NodeID{}, fmt.Errorf("pubkey: decode %q: %w", s, err)
	}
	if len(b) != Len {
		return NodeID{}, ErrInvalidLength
	}
	var id NodeID
	copy(id[:], b)
	return id, nil
}

// New generates a random NodeID using a cryptographically secure
// source.
func New() NodeID {
	var id NodeID
	if _, err := rand.Read(id[:]); err != nil {
		// crypto/rand.Read on a fixed-size buffer only fails if the OS
		// entropy source is unavailable; nothing sane to do but panic,
		// mirroring the stdlib's own crypto/rand.Read contract.
		panic(fmt.Sprintf("pubkey: rand.Read failed: %v", err))
	}
	return id
}

// Deterministic builds a NodeID from a small integer seed, useful for
// constructing reproducible test clusters without pulling in a PRNG at
// every call site.
func Deterministic(seed uint64) NodeID {
	var id NodeID
	binary.BigEndian.PutUint64(id[Len-8:], seed)
	return id
}
