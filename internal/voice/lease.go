package voice

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Lease owns the scratch files of one request. The directory is created on
// first write and removed by Release.
type Lease struct {
	scratch string
	id      string

	mu  sync.Mutex
	dir string
}

func (l *Lease) write(name string, data []byte) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.dir == "" {
		scratch := l.scratch
		if scratch == "" {
			scratch = os.TempDir()
		}
		dir, err := os.MkdirTemp(scratch, "loqa_voice_"+safeID(l.id)+"_*")
		if err != nil {
			return "", err
		}
		l.dir = dir
	}
	path := filepath.Join(l.dir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}

// Dir is the scratch directory, empty when nothing was written.
func (l *Lease) Dir() string {
	if l == nil {
		return ""
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dir
}

// Release removes the scratch directory. It is safe on a nil lease and safe
// to call more than once.
func (l *Lease) Release() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.dir == "" {
		return nil
	}
	err := os.RemoveAll(l.dir)
	l.dir = ""
	return err
}

func safeID(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			return r
		}
		return -1
	}, id)
}
