// Package digest computes the 16-byte content fingerprints stored in .md5
// sidecar files.
package digest

import (
	"crypto/md5"
	"fmt"
	"io"
	"path"

	"github.com/spf13/afero"
)

// Size is the length of every digest and of every .md5 file.
const Size = md5.Size

// Sum is a single content digest.
type Sum [Size]byte

// Hasher digests files and directory trees on an afero filesystem. When a
// Memo is attached, per-file digests are reused while size and mtime match.
type Hasher struct {
	fs   afero.Fs
	memo *Memo
}

type Option func(*Hasher)

// WithMemo attaches a persistent per-file digest cache.
func WithMemo(m *Memo) Option {
	return func(h *Hasher) { h.memo = m }
}

func NewHasher(fs afero.Fs, opts ...Option) *Hasher {
	h := &Hasher{fs: fs}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// File returns the digest of the file contents at name.
func (h *Hasher) File(name string) (Sum, error) {
	if h.memo != nil {
		return h.memo.FileSum(h.fs, name, h.sumFile)
	}
	return h.sumFile(name)
}

func (h *Hasher) sumFile(name string) (Sum, error) {
	var sum Sum
	f, err := h.fs.Open(name)
	if err != nil {
		return sum, fmt.Errorf("opening %s: %w", name, err)
	}
	defer f.Close()

	m := md5.New()
	if _, err := io.Copy(m, f); err != nil {
		return sum, fmt.Errorf("hashing %s: %w", name, err)
	}
	copy(sum[:], m.Sum(nil))
	return sum, nil
}

// Directory digests dir. Entries are visited in name order; each file feeds
// its own digest followed by its name. With recursive set, each subdirectory
// feeds its name followed by its own directory digest.
func (h *Hasher) Directory(dir string, recursive bool) (Sum, error) {
	var sum Sum
	entries, err := afero.ReadDir(h.fs, dir)
	if err != nil {
		return sum, fmt.Errorf("reading %s: %w", dir, err)
	}

	m := md5.New()
	for _, entry := range entries {
		child := path.Join(dir, entry.Name())
		if entry.IsDir() {
			if !recursive {
				continue
			}
			sub, err := h.Directory(child, true)
			if err != nil {
				return sum, err
			}
			m.Write([]byte(entry.Name()))
			m.Write(sub[:])
			continue
		}

		fileSum, err := h.File(child)
		if err != nil {
			return sum, err
		}
		m.Write(fileSum[:])
		m.Write([]byte(entry.Name()))
	}
	copy(sum[:], m.Sum(nil))
	return sum, nil
}
