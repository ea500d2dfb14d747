package avatar

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// maxFilenameLen bounds the sanitized stem so long source ids stay within filesystem limits.
const maxFilenameLen = 120

// Storage manages avatar files on disk.
// Thread-safe for concurrent operations.
type Storage struct {
	basePath string
	mu       sync.RWMutex // Protects file operations
}

// NewStorage creates a Storage rooted at {basePath}/avatars.
func NewStorage(basePath string) (*Storage, error) {
	return NewStorageWithSubdir(basePath, "avatars")
}

// NewStorageWithSubdir creates a Storage rooted at {basePath}/{subdir}, creating it if needed.
func NewStorageWithSubdir(basePath, subdir string) (*Storage, error) {
	if basePath == "" {
		return nil, fmt.Errorf("base path cannot be empty")
	}
	if subdir == "" {
		return nil, fmt.Errorf("subdirectory cannot be empty")
	}

	storagePath := filepath.Join(basePath, subdir)

	if err := os.MkdirAll(storagePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create %s directory: %w", subdir, err)
	}

	return &Storage{
		basePath: storagePath,
	}, nil
}

// Dir returns the directory avatars are written to.
func (s *Storage) Dir() string {
	return s.basePath
}

// Save writes data under name, which must already be sanitized.
// The file is written to a temp file and renamed so readers never see a partial image.
func (s *Storage) Save(name string, data []byte) error {
	if name == "" || name != filepath.Base(name) {
		return fmt.Errorf("invalid avatar filename %q", name)
	}
	if len(data) == 0 {
		return fmt.Errorf("image data cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.basePath, ".avatar-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write avatar: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close avatar: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod avatar: %w", err)
	}
	if err := os.Rename(tmpName, s.Path(name)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename avatar: %w", err)
	}

	return nil
}

// Get reads the avatar stored under name.
func (s *Storage) Get(name string) ([]byte, error) {
	if name == "" {
		return nil, fmt.Errorf("filename cannot be empty")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.Path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("avatar not found for %s: %w", name, err)
		}
		return nil, fmt.Errorf("failed to read avatar file: %w", err)
	}

	return data, nil
}

// Exists checks if an avatar file exists.
func (s *Storage) Exists(name string) bool {
	if name == "" {
		return false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, err := os.Stat(s.Path(name))
	return err == nil
}

// Delete removes an avatar file. Removing a missing file is not an error.
func (s *Storage) Delete(name string) error {
	if name == "" {
		return fmt.Errorf("filename cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.Path(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete avatar file: %w", err)
	}
	return nil
}

// Path returns the full filesystem path for an avatar file.
func (s *Storage) Path(name string) string {
	return filepath.Join(s.basePath, name)
}

// SanitizeFilename maps a testimonial id onto a safe file stem.
// Anything outside [A-Za-z0-9._-] becomes '-', leading dots are removed so the
// file is never hidden, and the result is truncated to a fixed length.
func SanitizeFilename(id string) string {
	var b strings.Builder
	b.Grow(len(id))
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}

	name := strings.TrimLeft(b.String(), ".")
	if len(name) > maxFilenameLen {
		name = name[:maxFilenameLen]
	}
	if strings.Trim(name, "-") == "" {
		return "avatar"
	}
	return name
}
