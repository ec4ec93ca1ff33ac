package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Saved describes a file written to the media directory.
type Saved struct {
	Name        string
	Path        string
	URL         string
	ContentType string
	Size        int64
}

// Store writes media files under a single directory and maps them to URLs.
type Store struct {
	dir     string
	urlFor  func(name string) string
	maxSize int64
	client  *http.Client
}

// StoreOption customizes a Store.
type StoreOption func(*Store)

// WithMaxSize caps the bytes accepted per file.
func WithMaxSize(n int64) StoreOption {
	return func(s *Store) {
		if n > 0 {
			s.maxSize = n
		}
	}
}

// WithFetchClient overrides the HTTP client used by Fetch.
func WithFetchClient(client *http.Client) StoreOption {
	return func(s *Store) {
		if client != nil {
			s.client = client
		}
	}
}

const defaultMaxSize = 64 << 20

// NewStore creates dir if needed. urlFor maps a stored file name to the URL
// clients use to fetch it.
func NewStore(dir string, urlFor func(name string) string, opts ...StoreOption) (*Store, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("media store: directory required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create media directory: %w", err)
	}
	if urlFor == nil {
		urlFor = func(name string) string { return "/media/" + name }
	}
	s := &Store{
		dir:     dir,
		urlFor:  urlFor,
		maxSize: defaultMaxSize,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Dir returns the directory files are written to.
func (s *Store) Dir() string {
	return s.dir
}

// SaveBytes writes data under a fresh name.
func (s *Store) SaveBytes(data []byte, contentType string) (Saved, error) {
	return s.Save(bytes.NewReader(data), "", contentType)
}

// Save copies r into the store. The extension comes from filename when it
// has one, otherwise from contentType.
func (s *Store) Save(r io.Reader, filename, contentType string) (Saved, error) {
	name := uuid.NewString() + extensionFor(filename, contentType)
	target := filepath.Join(s.dir, name)

	dest, err := os.OpenFile(target, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return Saved{}, fmt.Errorf("create media file: %w", err)
	}
	n, err := io.Copy(dest, io.LimitReader(r, s.maxSize+1))
	if err != nil {
		dest.Close()
		_ = os.Remove(target)
		return Saved{}, fmt.Errorf("write media file: %w", err)
	}
	if n > s.maxSize {
		dest.Close()
		_ = os.Remove(target)
		return Saved{}, fmt.Errorf("media file exceeds %d bytes", s.maxSize)
	}
	if err := dest.Sync(); err != nil {
		dest.Close()
		_ = os.Remove(target)
		return Saved{}, fmt.Errorf("sync media file: %w", err)
	}
	if err := dest.Close(); err != nil {
		_ = os.Remove(target)
		return Saved{}, fmt.Errorf("close media file: %w", err)
	}
	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(name))
	}
	return Saved{
		Name:        name,
		Path:        target,
		URL:         s.urlFor(name),
		ContentType: contentType,
		Size:        n,
	}, nil
}

// Fetch downloads url into the store. It rejects non-2xx responses and
// bodies too small to be media, which is how some providers report errors.
func (s *Store) Fetch(ctx context.Context, url string) (Saved, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Saved{}, fmt.Errorf("build media request: %w", err)
	}
	req.Header.Set("User-Agent", "scriptlab/1.0")
	resp, err := s.client.Do(req)
	if err != nil {
		return Saved{}, fmt.Errorf("fetch media: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Saved{}, fmt.Errorf("fetch media: http %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, s.maxSize+1))
	if err != nil {
		return Saved{}, fmt.Errorf("read media: %w", err)
	}
	if len(data) < minMediaBytes {
		return Saved{}, fmt.Errorf("media response too small (%d bytes)", len(data))
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return s.SaveBytes(data, contentType)
}

const minMediaBytes = 100

// Open returns the contents of a stored file.
func (s *Store) Open(name string) ([]byte, string, error) {
	path, err := s.path(name)
	if err != nil {
		return nil, "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return data, contentType, nil
}

// Remove deletes a stored file by name or by its absolute path. Missing
// files are not an error.
func (s *Store) Remove(nameOrPath string) error {
	name := nameOrPath
	if filepath.IsAbs(nameOrPath) {
		rel, err := filepath.Rel(s.dir, nameOrPath)
		if err != nil {
			return err
		}
		name = rel
	}
	path, err := s.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove media file: %w", err)
	}
	return nil
}

// NameFromURL returns the stored file name a URL produced by this store
// points at, if any.
func (s *Store) NameFromURL(url string) (string, bool) {
	prefix := s.urlFor("")
	if prefix == "" || !strings.HasPrefix(url, prefix) {
		return "", false
	}
	name := strings.TrimPrefix(url, prefix)
	if _, err := s.path(name); err != nil {
		return "", false
	}
	return name, true
}

func (s *Store) path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("invalid media name %q", name)
	}
	return filepath.Join(s.dir, name), nil
}

var preferredExtensions = map[string]string{
	"image/png":   ".png",
	"image/jpeg":  ".jpg",
	"image/webp":  ".webp",
	"image/gif":   ".gif",
	"video/mp4":   ".mp4",
	"video/webm":  ".webm",
	"audio/mpeg":  ".mp3",
	"audio/wav":   ".wav",
	"audio/x-wav": ".wav",
	"audio/ogg":   ".ogg",
}

func extensionFor(filename, contentType string) string {
	if ext := strings.ToLower(filepath.Ext(filename)); ext != "" && len(ext) <= 6 {
		return ext
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	if ext, ok := preferredExtensions[mediaType]; ok {
		return ext
	}
	if exts, _ := mime.ExtensionsByType(mediaType); len(exts) > 0 {
		return exts[0]
	}
	return ""
}
