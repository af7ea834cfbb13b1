package progress

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_ResumeAfterReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.json")

	tasks := []Task{
		{"url": "https://example.com/a", "name": "A"},
		{"url": "https://example.com/b", "name": "B"},
		{"url": "https://example.com/c", "name": "C"},
	}

	tracker, err := New(path, "url")
	require.NoError(t, err)
	assert.Len(t, tracker.Pending(tasks), 3, "missing file means nothing done")

	require.NoError(t, tracker.MarkDone(tasks[1]))
	assert.True(t, tracker.IsDone("https://example.com/b"))

	reloaded, err := New(path, "url")
	require.NoError(t, err)

	pending := reloaded.Pending(tasks)
	require.Len(t, pending, 2)
	assert.Equal(t, "A", pending[0]["name"])
	assert.Equal(t, "C", pending[1]["name"])
	assert.Equal(t, []string{"https://example.com/b"}, reloaded.Done())

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file is renamed into place")
}

func TestTracker_MarkDoneIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "progress.json")
	tracker, err := New(path, "pid")
	require.NoError(t, err)

	require.NoError(t, tracker.MarkID("p1"))
	require.NoError(t, tracker.MarkID("p1"))
	require.NoError(t, tracker.MarkID("p0"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `["p0","p1"]`, string(data))
}

func TestTracker_Errors(t *testing.T) {
	dir := t.TempDir()

	tracker, err := New(filepath.Join(dir, "p.json"), "url")
	require.NoError(t, err)
	assert.ErrorIs(t, tracker.MarkDone(Task{"name": "no id"}), ErrInvalidID)

	corrupt := filepath.Join(dir, "corrupt.json")
	require.NoError(t, os.WriteFile(corrupt, []byte("{not json"), 0o644))
	_, err = New(corrupt, "url")
	assert.Error(t, err)

	empty := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	tracker, err = New(empty, "url")
	require.NoError(t, err)
	assert.Empty(t, tracker.Done())
}

func TestTracker_IDRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{name: "ascii url", id: "https://example.com/list?page=2&sort=new"},
		{name: "cjk", id: "女装/连衣裙"},
		{name: "line separator", id: "a\u2028b"},
		{name: "emoji", id: "cat-🐱"},
		{name: "empty", id: "", wantErr: true},
		{name: "invalid utf8", id: "a\xffb", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "p.json")
			tracker, err := New(path, "url")
			require.NoError(t, err)

			err = tracker.MarkID(tt.id)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidID)
				assert.False(t, tracker.IsDone(tt.id))
				_, statErr := os.Stat(path)
				assert.True(t, os.IsNotExist(statErr), "rejected id is never saved")
				return
			}
			require.NoError(t, err)

			reloaded, err := New(path, "url")
			require.NoError(t, err)
			assert.True(t, reloaded.IsDone(tt.id))
			assert.Equal(t, []string{tt.id}, reloaded.Done())
		})
	}
}

func TestTracker_Reset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "p.json")
	tracker, err := New(path, "url")
	require.NoError(t, err)
	require.NoError(t, tracker.MarkID("x"))

	require.NoError(t, tracker.Reset())
	assert.False(t, tracker.IsDone("x"))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestFileFor(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"Home & Garden/Lighting", "progress_home_garden_lighting.json"},
		{"Toys", "progress_toys.json"},
		{"///", "progress_default.json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, filepath.Join("data", tt.want), FileFor("data", tt.name))
		})
	}
}
