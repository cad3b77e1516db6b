// Package facet implements hierarchical facet paths such as
// "/category/books/fiction". A path is a sequence of non-empty segments; the
// root path "/" has no segments.
package facet

import (
	"fmt"
	"strings"
)

const separator = "/"

// Facet is an immutable, validated facet path.
type Facet struct {
	path string
}

// Root returns the "/" facet, the ancestor of every other facet.
func Root() Facet {
	return Facet{path: separator}
}

// Parse validates s and returns the corresponding Facet. A trailing separator
// is tolerated ("/a/b/" == "/a/b"); empty inner segments are not.
func Parse(s string) (Facet, error) {
	if !strings.HasPrefix(s, separator) {
		return Facet{}, fmt.Errorf("facet %q must start with %q", s, separator)
	}
	if s == separator {
		return Root(), nil
	}
	trimmed := strings.TrimSuffix(s, separator)
	for _, part := range strings.Split(trimmed[1:], separator) {
		if part == "" {
			return Facet{}, fmt.Errorf("facet %q has an empty path segment", s)
		}
	}
	return Facet{path: trimmed}, nil
}

// MustParse is Parse for literals known to be valid.
func MustParse(s string) Facet {
	f, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return f
}

func (f Facet) String() string {
	if f.path == "" {
		return separator
	}
	return f.path
}

// IsRoot reports whether f is "/".
func (f Facet) IsRoot() bool {
	return f.path == "" || f.path == separator
}

// Parts returns the path segments of f.
func (f Facet) Parts() []string {
	if f.IsRoot() {
		return nil
	}
	return strings.Split(f.path[1:], separator)
}

// Parent returns the parent of f; the parent of the root is the root.
func (f Facet) Parent() Facet {
	if f.IsRoot() {
		return Root()
	}
	idx := strings.LastIndex(f.path, separator)
	if idx == 0 {
		return Root()
	}
	return Facet{path: f.path[:idx]}
}

// IsAncestorOf reports whether f is a strict ancestor of other.
func (f Facet) IsAncestorOf(other Facet) bool {
	if f.IsRoot() {
		return !other.IsRoot()
	}
	return strings.HasPrefix(other.path, f.path+separator)
}

// ChildToward returns the immediate child of f that lies on the path from f
// to descendant. ok is false when descendant is not a strict descendant of f.
func (f Facet) ChildToward(descendant Facet) (Facet, bool) {
	if !f.IsAncestorOf(descendant) {
		return Facet{}, false
	}
	base := f.path
	if f.IsRoot() {
		base = ""
	}
	rest := descendant.path[len(base)+1:]
	if idx := strings.Index(rest, separator); idx >= 0 {
		rest = rest[:idx]
	}
	return Facet{path: base + separator + rest}, true
}
