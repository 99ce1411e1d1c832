// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pubkey

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStringRoundTrip(t *testing.T) {
	id := Deterministic(42)
	s := id.String()
	parsed, err := FromString(s)
	require.NoError(t, err)
	require.Equal(t, id, parsed)
}

func TestFromStringInvalidLength(t *testing.T) {
	_, err := FromString("1")
	require.ErrorIs(t, err, ErrInvalidLength)
}

func TestLessTotalOrder(t *testing.T) {
	a := Deterministic(1)
	b := Deterministic(2)
	require.True(t, a.Less(b))
	require.False(t, b.Less(a))
	require.False(t, a.Less(a))
}

func TestDeterministicDistinct(t *testing.T) {
	require.NotEqual(t, Deterministic(1), Deterministic(2))
}

func TestNewIsRandom(t *testing.T) {
	require.NotEqual(t, New(), New())
}

func TestJSONRoundTripAsString(t *testing.T) {
	id := Deterministic(7)
	data, err := json.Marshal(id)
	require.NoError(t, err)
	require.Equal(t, `"`+id.String()+`"`, string(data))

	var parsed NodeID
	require.NoError(t, json.Unmarshal(data, &parsed))
	require.Equal(t, id, parsed)
}
