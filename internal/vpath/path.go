// Package vpath implements normalized, prefix-aware resource paths.
//
// A Path stores a single canonical string that always uses '/' separators.
// Directory paths end in '/', file paths never do. Virtual roots such as
// "~res:/" and "~doc:/" are kept verbatim until a Resolver maps them to disk.
package vpath

import (
	"fmt"
	"strings"

	"respack/internal/errors"

	"golang.org/x/text/cases"
)

// Path is a canonical resource path. The zero value is the empty path.
type Path struct {
	abs string
}

// In-memory pseudo paths that are stored verbatim and never resolved.
var literalPrefixes = []string{"FBO ", "memoryfile_0x", "Text "}

// FromCanonical wraps an already normalized string without touching it.
func FromCanonical(s string) Path {
	return Path{abs: s}
}

// IsLiteral reports whether raw names an in-memory pseudo path.
func IsLiteral(raw string) bool {
	for _, prefix := range literalPrefixes {
		if strings.HasPrefix(raw, prefix) {
			return true
		}
	}
	return false
}

// IsAbsolute reports whether raw is rooted: a leading '/' or a "<scheme>:/"
// marker such as "c:/", "~res:/" or "~doc:/".
func IsAbsolute(raw string) bool {
	if raw == "" {
		return false
	}
	if raw[0] == '/' {
		return true
	}
	return strings.Contains(raw, ":/")
}

// Normalize converts raw into canonical form.
//
// Backslashes become slashes, empty and "." segments are dropped, and each
// ".." removes itself together with the preceding segment unless that segment
// is also "..". A leading '/' is kept, and so is a trailing '/' when raw is
// longer than one character.
func Normalize(raw string) string {
	if raw == "" {
		return ""
	}

	path := strings.ReplaceAll(raw, "\\", "/")

	tokens := make([]string, 0, strings.Count(path, "/")+1)
	for _, seg := range strings.Split(path, "/") {
		switch {
		case seg == "" || seg == ".":
			continue
		case seg == ".." && len(tokens) > 0 && tokens[len(tokens)-1] != "..":
			tokens = tokens[:len(tokens)-1]
		default:
			tokens = append(tokens, seg)
		}
	}

	var b strings.Builder
	b.Grow(len(path))
	if path[0] == '/' {
		b.WriteByte('/')
	}
	b.WriteString(strings.Join(tokens, "/"))
	if path[len(path)-1] == '/' && len(path) != 1 {
		b.WriteByte('/')
	}
	return b.String()
}

func makeDirectory(s string) string {
	if s == "" || strings.HasSuffix(s, "/") {
		return s
	}
	return s + "/"
}

// String returns the canonical pathname.
func (p Path) String() string { return p.abs }

// IsEmpty reports whether p is the null path.
func (p Path) IsEmpty() bool { return p.abs == "" }

// IsDirectory reports whether p names a directory (ends in '/').
func (p Path) IsDirectory() bool {
	return p.abs != "" && p.abs[len(p.abs)-1] == '/'
}

// Equal compares canonical strings; no filesystem access is involved.
func (p Path) Equal(q Path) bool { return p.abs == q.abs }

// Filename returns everything after the last '/'.
// "/Users/Folder/image.png" yields "image.png".
func (p Path) Filename() string {
	return filenameOf(p.abs)
}

func filenameOf(s string) string {
	if i := strings.LastIndexByte(s, '/'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// Basename returns the filename without its extension.
// "/Users/Folder/image.png" yields "image".
func (p Path) Basename() string {
	name := p.Filename()
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[:i]
	}
	return name
}

// Extension returns the filename suffix starting at the last '.', or "".
// "/Users/Folder/image.png" yields ".png".
func (p Path) Extension() string {
	name := p.Filename()
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i:]
	}
	return ""
}

// Directory returns the prefix up to and including the last '/'.
// "/Users/Folder/image.png" yields "/Users/Folder/".
func (p Path) Directory() Path {
	if i := strings.LastIndexByte(p.abs, '/'); i >= 0 {
		return Path{abs: p.abs[:i+1]}
	}
	return Path{}
}

// LastDirectoryName returns the final segment of a directory path.
func (p Path) LastDirectoryName() string {
	mustNotBeEmpty(p, "LastDirectoryName")
	if !p.IsDirectory() {
		panic(fmt.Sprintf("vpath: LastDirectoryName on non-directory path %q", p.abs))
	}
	return filenameOf(strings.TrimSuffix(p.abs, "/"))
}

// EqualsExtension compares ext with p's extension ignoring case.
func (p Path) EqualsExtension(ext string) bool {
	fold := cases.Fold()
	return fold.String(p.Extension()) == fold.String(ext)
}

// RelativeTo expresses p relative to base, which must be a directory path or
// empty. "/a/b/", target "/a/c/d.png" yields "../c/d.png".
func (p Path) RelativeTo(base Path) (string, error) {
	if !base.IsEmpty() && !base.IsDirectory() {
		return "", errors.InvalidArgument("base is not a directory path", base.abs)
	}
	if p.IsEmpty() {
		return "", nil
	}
	if !IsAbsolute(p.abs) {
		return "", errors.InvalidArgument("target is not an absolute path", p.abs)
	}

	baseSegs := splitSegments(base.abs)
	targetSegs := splitSegments(p.Directory().abs)

	common := 0
	for common < len(baseSegs) && common < len(targetSegs) && baseSegs[common] == targetSegs[common] {
		common++
	}

	var b strings.Builder
	for range baseSegs[common:] {
		b.WriteString("../")
	}
	for _, seg := range targetSegs[common:] {
		b.WriteString(seg)
		b.WriteByte('/')
	}
	b.WriteString(p.Filename())
	return b.String(), nil
}

func splitSegments(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool { return r == '/' })
}

// Join appends addition to directory p and normalizes the result.
func (p Path) Join(addition string) Path {
	if !p.IsEmpty() && !p.IsDirectory() {
		panic(fmt.Sprintf("vpath: Join on non-directory path %q", p.abs))
	}
	return Path{abs: Normalize(p.abs + addition)}
}

// ReplaceFilename swaps the filename, keeping the directory.
func (p Path) ReplaceFilename(filename string) Path {
	mustNotBeEmpty(p, "ReplaceFilename")
	return Path{abs: Normalize(p.Directory().abs + filename)}
}

// ReplaceBasename swaps the basename, keeping directory and extension.
func (p Path) ReplaceBasename(basename string) Path {
	mustNotBeEmpty(p, "ReplaceBasename")
	return Path{abs: Normalize(p.Directory().abs + basename + p.Extension())}
}

// ReplaceExtension swaps the extension; ext should include the leading dot.
func (p Path) ReplaceExtension(ext string) Path {
	mustNotBeEmpty(p, "ReplaceExtension")
	return Path{abs: Normalize(p.Directory().abs + p.Basename() + ext)}
}

// ReplaceDirectory moves the filename under dir.
func (p Path) ReplaceDirectory(dir string) Path {
	mustNotBeEmpty(p, "ReplaceDirectory")
	return Path{abs: Normalize(makeDirectory(dir)) + p.Filename()}
}

// ReplaceDirectoryPath moves the filename under dir, which must be a directory path.
func (p Path) ReplaceDirectoryPath(dir Path) Path {
	mustNotBeEmpty(p, "ReplaceDirectoryPath")
	if !dir.IsDirectory() {
		panic(fmt.Sprintf("vpath: ReplaceDirectoryPath with non-directory %q", dir.abs))
	}
	return Path{abs: dir.abs + p.Filename()}
}

// MakeDirectory appends a trailing '/' if absent.
func (p Path) MakeDirectory() Path {
	mustNotBeEmpty(p, "MakeDirectory")
	return Path{abs: makeDirectory(p.abs)}
}

// TruncateExtension drops the extension.
func (p Path) TruncateExtension() Path {
	return p.ReplaceExtension("")
}

// WithExtension returns a copy of p carrying ext.
func WithExtension(p Path, ext string) Path {
	return p.ReplaceExtension(ext)
}

func mustNotBeEmpty(p Path, op string) {
	if p.IsEmpty() {
		panic("vpath: " + op + " on empty path")
	}
}
