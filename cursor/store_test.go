package cursor_test

import (
	"os"
	"path/filepath"
	"postrelay/cursor"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFile(t *testing.T) {
	store := cursor.Open(filepath.Join(t.TempDir(), "state.json"))

	_, ok := store.Load("123")
	assert.False(t, ok)
}

func TestLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	store := cursor.Open(path)
	_, ok := store.Load("123")
	assert.False(t, ok)

	// A corrupt file must not prevent saving
	require.NoError(t, store.Save("123", 7))
	id, ok := cursor.Open(path).Load("123")
	assert.True(t, ok)
	assert.Equal(t, int64(7), id)
}

func TestSaveSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	store := cursor.Open(path)

	for _, id := range []int64{101, 102, 105} {
		require.NoError(t, store.Save("42", id))
	}
	require.NoError(t, store.Save("other", 9))

	reopened := cursor.Open(path)
	id, ok := reopened.Load("42")
	require.True(t, ok)
	assert.Equal(t, int64(105), id)

	id, ok = reopened.Load("other")
	require.True(t, ok)
	assert.Equal(t, int64(9), id)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"42":"105","other":"9"}`, string(data))
}

func TestSaveRejectsRegression(t *testing.T) {
	store := cursor.Open(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, store.Save("42", 200))

	err := store.Save("42", 150)
	assert.ErrorIs(t, err, cursor.ErrRegression)

	id, _ := store.Load("42")
	assert.Equal(t, int64(200), id)

	// Saving the same value again is allowed
	assert.NoError(t, store.Save("42", 200))
}

func TestMalformedValueIsAbsent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"42":"abc"}`), 0o644))

	_, ok := cursor.Open(path).Load("42")
	assert.False(t, ok)
}
