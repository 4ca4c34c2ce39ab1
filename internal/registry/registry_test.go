package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	lalocore "github.com/lalosystems/lalocore/pkg/lalocore"
)

func TestNewMarksMissingLocalFileUnavailable(t *testing.T) {
	r, err := New([]lalocore.ModelDescriptor{
		{ID: "ghost", Backend: lalocore.BackendLocalGGUF, FilePathOrRemote: "/no/such/file.gguf"},
	})
	require.NoError(t, err)

	d, ok := r.Lookup("ghost")
	require.True(t, ok)
	require.True(t, d.Unavailable)
	require.False(t, r.Available("ghost"))
}

func TestNewAcceptsExistingLocalFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.gguf")
	require.NoError(t, os.WriteFile(path, []byte("weights"), 0o644))

	r, err := New([]lalocore.ModelDescriptor{
		{ID: "local-1", Backend: lalocore.BackendLocalGGUF, FilePathOrRemote: path, ContextWindow: 4096},
	})
	require.NoError(t, err)
	require.True(t, r.Available("local-1"))
}

func TestNewRejectsDuplicateIDs(t *testing.T) {
	_, err := New([]lalocore.ModelDescriptor{
		{ID: "dup", Backend: lalocore.BackendCloudOpenAI},
		{ID: "dup", Backend: lalocore.BackendCloudOpenAI},
	})
	require.Error(t, err)
}

func TestUnknownBackendMarkedUnavailable(t *testing.T) {
	r, err := New([]lalocore.ModelDescriptor{
		{ID: "weird", Backend: "not_a_backend"},
	})
	require.NoError(t, err)
	require.False(t, r.Available("weird"))
}

func TestListFiltersBySpecialty(t *testing.T) {
	r, err := New([]lalocore.ModelDescriptor{
		{ID: "a", Backend: lalocore.BackendCloudOpenAI, Specialty: lalocore.SpecialtyCode},
		{ID: "b", Backend: lalocore.BackendCloudOpenAI, Specialty: lalocore.SpecialtyGeneral},
	})
	require.NoError(t, err)

	code := lalocore.SpecialtyCode
	got := r.List(&code)
	require.Len(t, got, 1)
	require.Equal(t, "a", got[0].ID)
}

func TestFitsContext(t *testing.T) {
	d := lalocore.ModelDescriptor{ContextWindow: 100}
	require.True(t, FitsContext(d, 50, 40))
	require.False(t, FitsContext(d, 80, 40))
}
