package canon_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bftbank/core/internal/canon"
)

func TestEncode_KeyOrderIndependent(t *testing.T) {
	a := map[string]any{"action": "deposit", "name": "Alice", "amount": 10.0}
	b := map[string]any{"amount": 10.0, "name": "Alice", "action": "deposit"}

	ea, err := canon.Encode(a)
	require.NoError(t, err)
	eb, err := canon.Encode(b)
	require.NoError(t, err)
	require.Equal(t, string(ea), string(eb))
}

func TestHash_MatchesForEqualValues(t *testing.T) {
	a := map[string]any{"action": "withdraw", "name": "Bob", "amount": 5.0}
	b := map[string]any{"name": "Bob", "amount": 5.0, "action": "withdraw"}

	ha, err := canon.Hash(a)
	require.NoError(t, err)
	hb, err := canon.Hash(b)
	require.NoError(t, err)
	require.Equal(t, ha, hb)
}

func TestHash_DiffersForDifferentValues(t *testing.T) {
	ha, err := canon.Hash(map[string]any{"action": "deposit", "amount": 10.0})
	require.NoError(t, err)
	hb, err := canon.Hash(map[string]any{"action": "deposit", "amount": 20.0})
	require.NoError(t, err)
	require.NotEqual(t, ha, hb)
}

func TestEqual(t *testing.T) {
	eq, err := canon.Equal(
		map[string]any{"x": 1.0, "y": 2.0},
		map[string]any{"y": 2.0, "x": 1.0},
	)
	require.NoError(t, err)
	require.True(t, eq)

	eq, err = canon.Equal(
		map[string]any{"x": 1.0},
		map[string]any{"x": 2.0},
	)
	require.NoError(t, err)
	require.False(t, eq)
}
