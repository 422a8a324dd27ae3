package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJournal_Memory(t *testing.T) {
	j, err := OpenJournal("", 0, nil)
	require.NoError(t, err)

	first, err := j.Claim("a")
	require.NoError(t, err)
	assert.True(t, first)

	again, err := j.Claim("a")
	require.NoError(t, err)
	assert.False(t, again)
	assert.True(t, j.Seen("a"))
	assert.False(t, j.Seen("b"))
	assert.Equal(t, "", j.Path())
}

func TestJournal_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "processed.jsonl")

	j, err := OpenJournal(path, 0, nil)
	require.NoError(t, err)
	for _, id := range []string{"a", "b"} {
		claimed, err := j.Claim(id)
		require.NoError(t, err)
		require.True(t, claimed)
	}

	reopened, err := OpenJournal(path, 0, nil)
	require.NoError(t, err)
	assert.True(t, reopened.Seen("a"))
	assert.True(t, reopened.Seen("b"))
	assert.Equal(t, 2, reopened.Len())

	claimed, err := reopened.Claim("a")
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestJournal_SkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "processed.jsonl")
	data := `{"id":"a","at":"2025-03-05T10:00:00Z"}
not json

{"at":"2025-03-05T10:00:00Z"}
{"id":"b","at":"2025-03-05T10:01:00Z"}
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0600))

	j, err := OpenJournal(path, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, j.Len())
	assert.True(t, j.Seen("b"))
}

func TestJournal_CompactsToLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "processed.jsonl")
	var b strings.Builder
	for i := 0; i < 10; i++ {
		fmt.Fprintf(&b, "{\"id\":\"cmd-%d\",\"at\":\"2025-03-05T10:00:00Z\"}\n", i)
	}
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0600))

	j, err := OpenJournal(path, 4, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, j.Len())
	assert.False(t, j.Seen("cmd-5"))
	assert.True(t, j.Seen("cmd-6"))
	assert.True(t, j.Seen("cmd-9"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 4, strings.Count(string(data), "\n"))
}
