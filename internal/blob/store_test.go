package blob

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	root := t.TempDir()
	store, err := NewStore(
		filepath.Join(root, "pending"),
		filepath.Join(root, "signed"),
		filepath.Join(root, "completed"),
		filepath.Join(root, "templates"),
	)
	require.NoError(t, err)
	return store, root
}

func TestNewStoreCreatesRoots(t *testing.T) {
	_, root := newTestStore(t)
	for _, dir := range []string{"pending", "signed", "completed", "templates"} {
		info, err := os.Stat(filepath.Join(root, dir))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestNewStoreRejectsEmptyRoot(t *testing.T) {
	_, err := NewStore("", "b", "c", "d")
	assert.Error(t, err)
}

func TestWorkDirLifecycle(t *testing.T) {
	store, _ := newTestStore(t)
	const id = "req-1"

	assert.False(t, store.WorkDirExists(id))
	require.NoError(t, store.CreateWorkDir(id))
	assert.True(t, store.WorkDirExists(id))

	require.NoError(t, store.WriteWorkFile(id, "doc.pdf", []byte("payload")))
	assert.True(t, store.WorkFileExists(id, "doc.pdf"))
	assert.False(t, store.WorkFileExists(id, "other.pdf"))

	data, err := store.ReadWorkFile(id, "doc.pdf")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)

	require.NoError(t, store.RemoveWorkDir(id))
	assert.False(t, store.WorkDirExists(id))
	// Removing again is a no-op.
	require.NoError(t, store.RemoveWorkDir(id))
}

func TestSignedRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)

	require.NoError(t, store.WriteSigned("signed_doc.pdf", []byte("final")))
	data, err := store.ReadSigned("signed_doc.pdf")
	require.NoError(t, err)
	assert.Equal(t, []byte("final"), data)
}

func TestMoveToCompleted(t *testing.T) {
	store, root := newTestStore(t)
	const id = "req-2"

	require.NoError(t, store.CreateWorkDir(id))
	require.NoError(t, store.WriteWorkFile(id, "doc.pdf", []byte("payload")))
	require.NoError(t, store.WriteWorkFile(id, "signature.png", []byte("sig")))

	require.NoError(t, store.MoveToCompleted(id))
	assert.False(t, store.WorkDirExists(id))
	assert.True(t, store.CompletedExists(id))

	moved, err := os.ReadFile(filepath.Join(root, "completed", id, "doc.pdf"))
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), moved)
}

func TestTemplates(t *testing.T) {
	store, root := newTestStore(t)

	assert.False(t, store.TemplateExists("form.pdf"))
	require.NoError(t, os.WriteFile(filepath.Join(root, "templates", "form.pdf"), []byte("tpl"), 0o644))
	assert.True(t, store.TemplateExists("form.pdf"))

	data, err := store.ReadTemplate("form.pdf")
	require.NoError(t, err)
	assert.Equal(t, []byte("tpl"), data)
}

func TestFilenamesAreSanitized(t *testing.T) {
	store, root := newTestStore(t)
	const id = "req-3"
	require.NoError(t, store.CreateWorkDir(id))

	// Traversal attempts stay inside the working directory.
	require.NoError(t, store.WriteWorkFile(id, "../../escape.pdf", []byte("x")))
	_, err := os.Stat(filepath.Join(root, "escape.pdf"))
	assert.True(t, os.IsNotExist(err))
	assert.True(t, store.WorkFileExists(id, "escape.pdf"))

	// Work directory IDs are sanitized too.
	assert.False(t, store.WorkDirExists("../signed"))
}
