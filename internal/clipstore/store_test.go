package clipstore

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSaveAndServe(t *testing.T) {
	s := New(t.TempDir(), 0)

	name, n, err := s.Save(context.Background(), strings.NewReader("fake-audio"), "note.ogg", "audio/ogg")
	require.NoError(t, err)
	require.EqualValues(t, len("fake-audio"), n)
	require.True(t, strings.HasSuffix(name, ".ogg"))
	require.NotEqual(t, "note.ogg", name, "stored name must be store-generated")

	rec := httptest.NewRecorder()
	s.Serve(rec, httptest.NewRequest("GET", "/clips/"+name, nil), name)
	require.Equal(t, 200, rec.Code)
	require.Equal(t, "audio/ogg", rec.Header().Get("Content-Type"))
	require.Equal(t, "fake-audio", rec.Body.String())
}

func TestSaveRejectsNonAudio(t *testing.T) {
	s := New(t.TempDir(), 0)

	_, _, err := s.Save(context.Background(), strings.NewReader("x"), "evil.exe", "application/octet-stream")
	require.ErrorIs(t, err, ErrUnsupportedMedia)

	_, _, err = s.Save(context.Background(), strings.NewReader("x"), "note.ogg", "text/html")
	require.ErrorIs(t, err, ErrUnsupportedMedia)
}

func TestSaveAcceptsEmptyContentType(t *testing.T) {
	s := New(t.TempDir(), 0)
	_, _, err := s.Save(context.Background(), strings.NewReader("x"), "note.webm", "")
	require.NoError(t, err)
}

func TestRemoveIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, 0)

	name, _, err := s.Save(context.Background(), strings.NewReader("x"), "note.ogg", "audio/ogg")
	require.NoError(t, err)

	require.NoError(t, s.Remove(name))
	_, statErr := os.Stat(filepath.Join(dir, name))
	require.True(t, os.IsNotExist(statErr))

	// Compensating cleanup may fire twice.
	require.NoError(t, s.Remove(name))
}

func TestServeRejectsTraversal(t *testing.T) {
	s := New(t.TempDir(), 0)
	for _, name := range []string{"../secret", "a/b.ogg", ""} {
		rec := httptest.NewRecorder()
		s.Serve(rec, httptest.NewRequest("GET", "/clips/x", nil), name)
		require.Equal(t, 404, rec.Code)
	}
}
