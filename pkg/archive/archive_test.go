package archive

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArchive_KeepMovesScratch(t *testing.T) {
	a, err := New(filepath.Join(t.TempDir(), "results"))
	require.NoError(t, err)

	require.NoError(t, a.Stage([]byte("jpeg")))
	path, err := a.Keep("AB3D")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(a.Dir(), "AB3D.jpg"), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg"), data)

	_, err = os.Stat(a.ScratchPath())
	assert.True(t, os.IsNotExist(err))
}

func TestArchive_StageReplaces(t *testing.T) {
	a, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, a.Stage([]byte("first")))
	require.NoError(t, a.Stage([]byte("second")))

	data, err := os.ReadFile(a.ScratchPath())
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), data)
}

func TestArchive_Discard(t *testing.T) {
	a, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, a.Discard(), "nothing staged")

	require.NoError(t, a.Stage([]byte("jpeg")))
	require.NoError(t, a.Discard())
	_, err = os.Stat(a.ScratchPath())
	assert.True(t, os.IsNotExist(err))
}

func TestArchive_KeepRejectsPathLikeCodes(t *testing.T) {
	a, err := New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, a.Stage([]byte("jpeg")))

	for _, code := range []string{"", "../X", "A B"} {
		_, err := a.Keep(code)
		assert.Error(t, err, code)
	}
}

func TestArchive_WriteSummary(t *testing.T) {
	a, err := New(t.TempDir())
	require.NoError(t, err)

	started := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, a.WriteSummary(Summary{
		RunID:     "run-1",
		Status:    "completed",
		Started:   started,
		Finished:  started.Add(90 * time.Second),
		Sessions:  2,
		Successes: []Enrollment{{Course: "CS101", Section: "1", At: started.Add(time.Minute)}},
	}))

	data, err := os.ReadFile(filepath.Join(a.Dir(), SummaryName))
	require.NoError(t, err)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "completed", got["status"])
	assert.Equal(t, "1m30s", got["duration"])
	assert.Equal(t, []interface{}{}, got["pending"])
	assert.Len(t, got["successes"], 1)
	assert.NotContains(t, got, "error")
}
