// internal/change/tracker.go
package change

import (
	"fmt"
	"strconv"

	"respack/internal/digest"
	"respack/internal/vpath"

	"github.com/spf13/afero"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	// FileListName is the modification-date sidecar kept in each process directory.
	FileListName = "filelist.yaml"
	// DirDigestName is the per-directory content digest used after a date mismatch.
	DirDigestName = "dir.md5"
)

// Tracker runs the two-stage change check for one directory and persists the
// sidecars it reads. Sidecar failures are logged and treated as a change.
type Tracker struct {
	fs     afero.Fs
	hasher *digest.Hasher
	logger *zap.Logger
}

func NewTracker(fs afero.Fs, hasher *digest.Hasher, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{fs: fs, hasher: hasher, logger: logger}
}

// ScanDir lists the regular files directly inside dir with their
// modification dates as Unix seconds.
func (t *Tracker) ScanDir(dir vpath.Path) (Snapshot, error) {
	mustBeDirectory(dir, "ScanDir")

	entries, err := afero.ReadDir(t.fs, dir.String())
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}

	live := make(Snapshot, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		live[entry.Name()] = strconv.FormatInt(entry.ModTime().Unix(), 10)
	}
	return live, nil
}

// LoadSnapshot reads the date sidecar from processDir. It returns nil when
// the sidecar is missing, unreadable or empty.
func (t *Tracker) LoadSnapshot(processDir vpath.Path) Snapshot {
	mustBeDirectory(processDir, "LoadSnapshot")

	name := processDir.Join(FileListName).String()
	data, err := afero.ReadFile(t.fs, name)
	if err != nil {
		t.logger.Debug("no file list sidecar", zap.String("path", name), zap.Error(err))
		return nil
	}

	var entries map[string]FileEntry
	if err := yaml.Unmarshal(data, &entries); err != nil || len(entries) == 0 {
		t.logger.Warn("failed to open yaml file or the file is empty", zap.String("path", name), zap.Error(err))
		return nil
	}

	snap := make(Snapshot, len(entries))
	for file, entry := range entries {
		snap[file] = entry.Date
	}
	return snap
}

// SaveSnapshot rewrites the date sidecar in processDir.
func (t *Tracker) SaveSnapshot(processDir vpath.Path, snap Snapshot) {
	mustBeDirectory(processDir, "SaveSnapshot")

	entries := make(map[string]FileEntry, len(snap))
	for file, date := range snap {
		entries[file] = FileEntry{Date: date}
	}

	name := processDir.Join(FileListName).String()
	data, err := yaml.Marshal(entries)
	if err != nil {
		t.logger.Error("marshaling file list", zap.String("path", name), zap.Error(err))
		return
	}
	if err := afero.WriteFile(t.fs, name, data, 0644); err != nil {
		t.logger.Error("writing file list", zap.String("path", name), zap.Error(err))
	}
}

// DirChanged reports whether inputDir needs repacking. Dates are compared
// first; only a date mismatch triggers the non-recursive digest check
// against processDir's dir.md5.
func (t *Tracker) DirChanged(processDir, inputDir vpath.Path) Verdict {
	live, err := t.ScanDir(inputDir)
	if err != nil {
		t.logger.Warn("scanning input directory", zap.Error(err))
	}

	if len(live) == 0 {
		return Unchanged
	}

	prev := t.LoadSnapshot(processDir)
	verdict := Decide(prev, live)
	t.SaveSnapshot(processDir, live)
	if verdict == Unchanged {
		return Unchanged
	}

	return t.DigestChangedDir(processDir, inputDir, DirDigestName, false)
}

// DigestChangedDir digests target and compares it with the digest stored at
// processDir/<name> (extension forced to .md5). The new digest is always
// written back.
func (t *Tracker) DigestChangedDir(processDir, target vpath.Path, name string, recursive bool) Verdict {
	mustBeDirectory(processDir, "DigestChangedDir")

	sumFile := processDir.Join(name).ReplaceExtension(".md5").String()
	prev := t.readDigest(sumFile)

	cur, err := t.hasher.Directory(target.String(), recursive)
	if err != nil {
		t.logger.Warn("digesting directory", zap.String("path", target.String()), zap.Error(err))
		return Changed
	}

	t.writeDigest(sumFile, cur)
	return DecideDigest(prev, cur)
}

// DigestChangedFile is the per-file variant; the digest lives at
// processDir/<basename>.md5.
func (t *Tracker) DigestChangedFile(processDir, file vpath.Path) Verdict {
	mustBeDirectory(processDir, "DigestChangedFile")

	sumFile := processDir.Join(file.Filename()).ReplaceExtension(".md5").String()
	prev := t.readDigest(sumFile)

	cur, err := t.hasher.File(file.String())
	if err != nil {
		t.logger.Warn("digesting file", zap.String("path", file.String()), zap.Error(err))
		return Changed
	}

	t.writeDigest(sumFile, cur)
	return DecideDigest(prev, cur)
}

// StoreDigest rewrites processDir/<name> with the digest of target without
// comparing.
func (t *Tracker) StoreDigest(processDir, target vpath.Path, name string, recursive bool) {
	mustBeDirectory(processDir, "StoreDigest")

	cur, err := t.hasher.Directory(target.String(), recursive)
	if err != nil {
		t.logger.Warn("digesting directory", zap.String("path", target.String()), zap.Error(err))
		return
	}
	t.writeDigest(processDir.Join(name).ReplaceExtension(".md5").String(), cur)
}

func (t *Tracker) readDigest(name string) []byte {
	data, err := afero.ReadFile(t.fs, name)
	if err != nil {
		return nil
	}
	if len(data) != digest.Size {
		t.logger.Warn("digest file has unexpected size", zap.String("path", name), zap.Int("size", len(data)))
	}
	return data
}

func (t *Tracker) writeDigest(name string, sum digest.Sum) {
	if err := afero.WriteFile(t.fs, name, sum[:], 0644); err != nil {
		t.logger.Error("writing digest file", zap.String("path", name), zap.Error(err))
	}
}

func mustBeDirectory(p vpath.Path, op string) {
	if !p.IsDirectory() {
		panic(fmt.Sprintf("change: %s requires a directory path, got %q", op, p))
	}
}
