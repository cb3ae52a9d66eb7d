package vpath

import (
	"os"
	"path/filepath"
	"strings"
)

// Scheme identifies a virtual root prefix.
type Scheme int

const (
	SchemeNone Scheme = iota
	SchemeRes
	SchemeDoc
)

var schemePrefixes = map[Scheme]string{
	SchemeRes: "~res:",
	SchemeDoc: "~doc:",
}

func (s Scheme) String() string {
	if prefix, ok := schemePrefixes[s]; ok {
		return prefix
	}
	return "none"
}

// SchemeOf returns the virtual scheme p starts with, if any.
func SchemeOf(p Path) Scheme {
	if !strings.HasPrefix(p.abs, "~") {
		return SchemeNone
	}
	for scheme, prefix := range schemePrefixes {
		if strings.HasPrefix(p.abs, prefix) {
			return scheme
		}
	}
	return SchemeNone
}

// Resolver carries everything needed to construct and resolve paths: the
// project root, the working directory and the platform lookups for the
// virtual roots. It replaces process-wide path state.
type Resolver struct {
	projectRoot string

	workingDir    func() string
	frameworkPath func(virtual string) string
	documentsPath func(rel string) string

	resolvers map[Scheme]func(rest string, p Path) string
}

type Option func(*Resolver)

// WithProjectRoot sets the directory whose Data/ folder backs "~res:".
func WithProjectRoot(root string) Option {
	return func(r *Resolver) {
		r.projectRoot = Normalize(makeDirectory(filepath.ToSlash(root)))
	}
}

// WithWorkingDir overrides how the current working directory is found.
func WithWorkingDir(fn func() string) Option {
	return func(r *Resolver) { r.workingDir = fn }
}

// WithFrameworkPath sets the lookup used for "~res:" when no project root is set.
// fn receives the full virtual pathname.
func WithFrameworkPath(fn func(virtual string) string) Option {
	return func(r *Resolver) { r.frameworkPath = fn }
}

// WithDocumentsPath sets the lookup used for "~doc:". fn receives the path
// below the documents root.
func WithDocumentsPath(fn func(rel string) string) Option {
	return func(r *Resolver) { r.documentsPath = fn }
}

// DirectoryLookup returns a lookup that joins its argument below dir.
func DirectoryLookup(dir string) func(string) string {
	base := Normalize(makeDirectory(filepath.ToSlash(dir)))
	return func(rel string) string {
		return base + strings.TrimPrefix(rel, "/")
	}
}

// FrameworkLookup returns a "~res:" lookup that maps the virtual root onto dir.
func FrameworkLookup(dir string) func(string) string {
	join := DirectoryLookup(dir)
	return func(virtual string) string {
		return join(strings.TrimPrefix(virtual, schemePrefixes[SchemeRes]))
	}
}

func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		workingDir: func() string {
			wd, err := os.Getwd()
			if err != nil {
				return "/"
			}
			return filepath.ToSlash(wd)
		},
		frameworkPath: func(virtual string) string { return virtual },
		documentsPath: func(rel string) string { return rel },
	}
	for _, opt := range opts {
		opt(r)
	}

	r.resolvers = map[Scheme]func(string, Path) string{
		SchemeNone: func(_ string, p Path) string { return p.abs },
		SchemeRes:  r.resolveRes,
		SchemeDoc:  r.resolveDoc,
	}
	return r
}

// ProjectRoot returns the configured project root in directory form.
func (r *Resolver) ProjectRoot() string { return r.projectRoot }

// New constructs a Path from raw. Empty input yields the empty path,
// absolute input is normalized as is, in-memory literals are kept verbatim
// and anything else is taken relative to the working directory.
func (r *Resolver) New(raw string) Path {
	switch {
	case raw == "":
		return Path{}
	case IsAbsolute(raw):
		return Path{abs: Normalize(raw)}
	case IsLiteral(raw):
		return Path{abs: raw}
	default:
		cwd := makeDirectory(filepath.ToSlash(r.workingDir()))
		return Path{abs: Normalize(cwd + raw)}
	}
}

// Dir constructs a directory Path from raw.
func (r *Resolver) Dir(raw string) Path {
	p := r.New(raw)
	if p.IsEmpty() {
		return p
	}
	return p.MakeDirectory()
}

// NewIn constructs dir/file.
func (r *Resolver) NewIn(dir, file string) Path {
	d := r.New(dir)
	if !d.IsEmpty() {
		d = d.MakeDirectory()
	}
	return d.Join(file)
}

// Resolve maps a virtual root to its on-disk location. Paths without a
// recognized scheme pass through unchanged.
func (r *Resolver) Resolve(p Path) string {
	scheme := SchemeOf(p)
	rest := strings.TrimPrefix(p.abs, schemePrefixes[scheme])
	return Normalize(r.resolvers[scheme](rest, p))
}

func (r *Resolver) resolveRes(rest string, p Path) string {
	if r.projectRoot == "" {
		return r.frameworkPath(p.abs)
	}
	return r.projectRoot + "Data/" + strings.TrimPrefix(rest, "/")
}

func (r *Resolver) resolveDoc(rest string, _ Path) string {
	return r.documentsPath(strings.TrimPrefix(rest, "/"))
}

// FrameworkPath rewrites an on-disk path back into "~res:/" or "~doc:/" form.
// ok is false when p lives under neither root.
func (r *Resolver) FrameworkPath(p Path) (string, bool) {
	for _, prefix := range []string{"~res:/", "~doc:/"} {
		root := r.Resolve(Path{abs: prefix})
		if root == "" || root == prefix {
			continue
		}
		if strings.HasPrefix(p.abs, root) {
			return prefix + strings.TrimPrefix(p.abs, root), true
		}
	}
	return "", false
}
