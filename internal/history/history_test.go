package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAndList(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer store.Close()

	base := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		err := store.Save(Summary{
			Time:     base.Add(time.Duration(i) * time.Minute),
			URL:      "http://localhost:8081/query",
			Requests: uint64(i + 1),
		})
		require.NoError(t, err)
	}

	items, err := store.List(0)
	require.NoError(t, err)
	require.Len(t, items, 3)
	// Newest first.
	assert.Equal(t, uint64(3), items[0].Requests)
	assert.Equal(t, uint64(1), items[2].Requests)
	assert.NotEmpty(t, items[0].ID)

	limited, err := store.List(2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}
