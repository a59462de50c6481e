package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextSequential(t *testing.T) {
	dir := t.TempDir()

	id, err := NextSequential(dir, "user")
	require.NoError(t, err)
	assert.Equal(t, "user_001", id)

	id, err = NextSequential(dir, "user")
	require.NoError(t, err)
	assert.Equal(t, "user_002", id)
}

func TestNextSequentialCorruptStateRestarts(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, SeqFile), []byte("not json"), 0o644))

	id, err := NextSequential(dir, "subj")
	require.NoError(t, err)
	assert.Equal(t, "subj_001", id)
}

func TestNextSequentialCreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data", "logs")

	id, err := NextSequential(dir, "user")
	require.NoError(t, err)
	assert.Equal(t, "user_001", id)
}

func TestUserID(t *testing.T) {
	dir := t.TempDir()

	assert.Equal(t, "alice", UserID("alice", true, dir, "user"))
	assert.Equal(t, "unknown", UserID("", false, dir, "user"))
	assert.Equal(t, "user_001", UserID("", true, dir, "user"))
	assert.Equal(t, "user_002", UserID("", true, dir, "user"))
}

func TestUserIDFallsBackToUUID(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("read-only dir is not enforceable as root")
	}
	dir := filepath.Join(t.TempDir(), "ro")
	require.NoError(t, os.Mkdir(dir, 0o555))

	id := UserID("", true, dir, "user")
	assert.NotEqual(t, "unknown", id)
	assert.Regexp(t, `^user_[0-9a-f]{8}$`, id)
}
