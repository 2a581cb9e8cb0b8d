package importer

import (
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpoolKeepsSmallEntriesInMemory(t *testing.T) {
	sp := newSpool(t.TempDir(), 64)
	_, err := io.Copy(sp, strings.NewReader("tiny"))
	require.NoError(t, err)
	assert.False(t, sp.OnDisk())
	assert.EqualValues(t, 4, sp.Size())

	r, err := sp.Reader()
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "tiny", string(data))
	require.NoError(t, sp.Close())
}

func TestSpoolSpillsToDiskAndCleansUp(t *testing.T) {
	dir := t.TempDir()
	sp := newSpool(dir, 8)
	_, err := sp.Write([]byte("0123"))
	require.NoError(t, err)
	_, err = sp.Write([]byte("456789abcdef"))
	require.NoError(t, err)
	require.True(t, sp.OnDisk())
	assert.EqualValues(t, 16, sp.Size())

	for i := 0; i < 2; i++ {
		r, err := sp.Reader()
		require.NoError(t, err)
		data, err := io.ReadAll(r)
		require.NoError(t, err)
		assert.Equal(t, "0123456789abcdef", string(data))
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	require.NoError(t, sp.Close())
	entries, err = os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
