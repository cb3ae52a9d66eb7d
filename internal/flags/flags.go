// Package flags holds the command flags that steer packing of a single
// directory. Flags come from a directory's flags.txt and are cleared before
// the walk moves on.
package flags

import (
	"strings"
)

const (
	Split         = "--split"
	Add0Pixel     = "--add0pixel"
	Add1Pixel     = "--add1pixel"
	Add2Pixel     = "--add2pixel"
	Add4Pixel     = "--add4pixel"
	Add2SidePixel = "--add2sidepixel"
)

// Filename is the per-directory control file.
const Filename = "flags.txt"

// Registry is the settable, queryable flag list for the directory being packed.
type Registry struct {
	flags   []string
	raw     string
	Verbose bool // log every token read from flags.txt
}

func NewRegistry() *Registry {
	return &Registry{}
}

// SetFlags replaces the active flags.
func (r *Registry) SetFlags(tokens []string) {
	r.flags = append(r.flags[:0], tokens...)
	r.raw = strings.Join(tokens, " ")
}

// Clear drops every active flag.
func (r *Registry) Clear() {
	r.flags = r.flags[:0]
	r.raw = ""
}

func (r *Registry) IsSet(flag string) bool {
	for _, f := range r.flags {
		if f == flag {
			return true
		}
	}
	return false
}

// Flags returns a copy of the active flags.
func (r *Registry) Flags() []string {
	out := make([]string, len(r.flags))
	copy(out, r.flags)
	return out
}

func (r *Registry) String() string { return r.raw }

// ParseTokens splits flags.txt content on whitespace. Tokens that do not
// start with "--" are returned again in malformed; they stay in tokens.
func ParseTokens(content string) (tokens, malformed []string) {
	tokens = strings.Fields(content)
	for _, tok := range tokens {
		if !strings.HasPrefix(tok, "--") {
			malformed = append(malformed, tok)
		}
	}
	return tokens, malformed
}

// Padding returns how many pixels are added to each frame's width and height.
//
// TODO: confirm with the content pipeline owners whether --add0pixel should
// disable padding; today it keeps the +1 default.
func Padding(r *Registry) int {
	switch {
	case r.IsSet(Add0Pixel):
		return 1
	case r.IsSet(Add1Pixel):
		return 1
	case r.IsSet(Add2Pixel):
		return 2
	case r.IsSet(Add4Pixel):
		return 4
	case r.IsSet(Add2SidePixel):
		return 2
	default:
		return 1
	}
}
