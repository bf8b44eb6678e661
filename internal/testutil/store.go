package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/suk-kr/shopfloor/internal/store"
)

// OpenStore opens an in-memory ledger store torn down with the test.
func OpenStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, st.Close())
	})
	return st
}
