// Package clipstore keeps uploaded audio blobs on local disk under
// store-generated names. The record store only ever references blobs by the
// URL/filename handed out here.
package clipstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/echowave/internal/logger"
)

// Browser voice recordings come in as opus/webm, ogg or m4a.
var allowedExt = map[string]bool{
	".ogg": true, ".oga": true, ".webm": true, ".m4a": true, ".mp4": true, ".mp3": true,
}

var allowedMime = map[string]bool{
	"audio/ogg": true, "audio/webm": true, "audio/mp4": true, "audio/mpeg": true,
	"audio/x-m4a": true, "video/webm": true, "audio/opus": true,
	"audio/aac": true, "audio/x-aac": true,
}

const defaultMaxSize = 25 << 20 // 25 MB

// ErrUnsupportedMedia rejects non-audio uploads before anything touches disk.
var ErrUnsupportedMedia = errors.New("only audio files are allowed")

type Store struct {
	dir     string
	maxSize int64
}

func New(dir string, maxSize int64) *Store {
	if maxSize <= 0 || maxSize > defaultMaxSize {
		maxSize = defaultMaxSize
	}
	return &Store{dir: dir, maxSize: maxSize}
}

func (s *Store) MaxSize() int64 { return s.maxSize }

// Save validates the upload and writes it under a fresh uuid name, returning
// the stored filename and byte count. Callers that fail to persist the clip
// record afterwards are expected to call Remove with the returned name.
func (s *Store) Save(ctx context.Context, src io.Reader, origName, contentType string) (string, int64, error) {
	ext := strings.ToLower(filepath.Ext(origName))
	if !allowedExt[ext] {
		return "", 0, ErrUnsupportedMedia
	}
	if idx := strings.Index(contentType, ";"); idx >= 0 {
		contentType = strings.TrimSpace(contentType[:idx])
	}
	// Some browsers omit the type on recorded blobs; the extension check
	// already passed, so an empty type is accepted.
	if contentType != "" && !allowedMime[contentType] {
		return "", 0, ErrUnsupportedMedia
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("clipstore.Save mkdir %s: %w", s.dir, err)
	}

	name := uuid.New().String() + ext
	path := filepath.Join(s.dir, name)
	dst, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("clipstore.Save create %s: %w", path, err)
	}
	defer dst.Close()

	n, err := copyWithContext(ctx, dst, src)
	if err != nil {
		os.Remove(path)
		return "", 0, fmt.Errorf("clipstore.Save copy: %w", err)
	}
	return name, n, nil
}

// Remove deletes a stored blob. Missing files are fine; the compensating
// cleanup after a failed record write may run more than once.
func (s *Store) Remove(name string) error {
	if !validName(name) {
		return nil
	}
	err := os.Remove(filepath.Join(s.dir, name))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clipstore.Remove %s: %w", name, err)
	}
	return nil
}

// Serve streams a stored blob for playback.
func (s *Store) Serve(w http.ResponseWriter, r *http.Request, name string) {
	if !validName(name) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	path := filepath.Join(s.dir, name)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		logger.Errorf("clipstore serve %s: %v", name, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", mimeFor(name))
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	http.ServeContent(w, r, name, info.ModTime(), f)
}

func validName(name string) bool {
	return name != "" && !strings.Contains(name, "..") &&
		!strings.ContainsAny(name, "/\\")
}

func mimeFor(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".webm":
		return "audio/webm"
	case ".m4a", ".mp4":
		return "audio/mp4"
	case ".mp3":
		return "audio/mpeg"
	default:
		return "audio/ogg"
	}
}

func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	var n int64
	buf := make([]byte, 32*1024)
	for {
		select {
		case <-ctx.Done():
			return n, ctx.Err()
		default:
		}
		nr, err := src.Read(buf)
		if nr > 0 {
			nw, ew := dst.Write(buf[:nr])
			n += int64(nw)
			if ew != nil {
				return n, ew
			}
		}
		if err != nil {
			if err == io.EOF {
				return n, nil
			}
			return n, err
		}
	}
}
