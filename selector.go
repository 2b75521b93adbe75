package storekit

import (
	"context"
	"strings"

	"github.com/gobwas/glob"
)

// ============================================================================
// Selector Interface
// ============================================================================

// Selector filters entries during a Find traversal.
//
// Selectors compose with And, Or and Not:
//
//	sel := storekit.And(
//	    storekit.MustGlob("**/*.jpg"),
//	    storekit.FuncSelector(func(e *storekit.Entry) bool {
//	        return e.Metadata.ContentLength < 10<<20
//	    }),
//	)
//	photos, err := op.Find(ctx, "images/", sel)
type Selector interface {
	// Match reports whether the entry belongs in the result.
	Match(e *Entry) bool

	// TraverseDescendants reports whether Find should descend into the
	// directory entry. Returning false prunes the whole subtree.
	TraverseDescendants(e *Entry) bool
}

// ============================================================================
// Find
// ============================================================================

// Find walks dir one level at a time and returns the entries sel matches.
// Directories are matched too; a selector that only wants files can check
// the entry mode. Pruned directories are never listed.
func (o *Operator) Find(ctx context.Context, dir string, sel Selector) ([]*Entry, error) {
	if sel == nil {
		sel = All()
	}

	var results []*Entry
	pending := []string{EnsureDir(dir)}
	for len(pending) > 0 {
		current := pending[len(pending)-1]
		pending = pending[:len(pending)-1]

		lister, err := o.List(ctx, current)
		if err != nil {
			if IsNotExist(err) && current != EnsureDir(dir) {
				continue
			}
			return nil, err
		}

		var subdirs []string
		err = drain(ctx, lister, func(e *Entry) error {
			if sel.Match(e) {
				results = append(results, e)
			}
			if e.Mode() == ModeDir && sel.TraverseDescendants(e) {
				subdirs = append(subdirs, e.Path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}

		// Push in reverse so directories are visited in listing order
		for i := len(subdirs) - 1; i >= 0; i-- {
			pending = append(pending, subdirs[i])
		}
	}
	return results, nil
}

// ============================================================================
// Built-in Selectors
// ============================================================================

type allSelector struct{}

func (allSelector) Match(*Entry) bool               { return true }
func (allSelector) TraverseDescendants(*Entry) bool { return true }

// All returns a selector that matches every entry.
func All() Selector {
	return allSelector{}
}

// Files matches regular files only.
func Files() Selector {
	return FuncSelector(func(e *Entry) bool { return e.Mode() == ModeFile })
}

// ============================================================================
// Glob
// ============================================================================

type globSelector struct {
	g        glob.Glob
	baseOnly bool
}

// Glob creates a selector from a glob pattern. "*" and "?" stop at "/",
// "**" crosses directories, and "{a,b}" and "[a-z]" work as usual.
// A pattern without "/" is matched against the entry name alone,
// otherwise against the full path without its trailing "/".
//
//	Glob("*.txt")            // any .txt file at any depth
//	Glob("logs/**/*.gz")     // compressed logs below logs/
//	Glob("{a,b}/config.yml")
func Glob(pattern string) (Selector, error) {
	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return nil, NewError(KindConfigInvalid, "invalid glob pattern").
			WithContext("pattern", pattern).
			WithSource(err)
	}
	return &globSelector{g: g, baseOnly: !strings.Contains(pattern, "/")}, nil
}

// MustGlob is like Glob but panics on an invalid pattern.
func MustGlob(pattern string) Selector {
	sel, err := Glob(pattern)
	if err != nil {
		panic(err)
	}
	return sel
}

func (s *globSelector) Match(e *Entry) bool {
	if s.baseOnly {
		return s.g.Match(strings.TrimSuffix(e.Name(), "/"))
	}
	return s.g.Match(strings.TrimSuffix(e.Path, "/"))
}

func (s *globSelector) TraverseDescendants(*Entry) bool {
	return true
}

// ============================================================================
// Depth
// ============================================================================

type depthSelector struct {
	maxDepth int
	base     string
}

// Depth limits results to maxDepth levels below base. Depth 1 means the
// immediate children only.
func Depth(maxDepth int, base string) Selector {
	return &depthSelector{maxDepth: maxDepth, base: strings.Trim(RelPath(base), "/")}
}

func (s *depthSelector) depth(path string) int {
	rel := strings.Trim(strings.TrimPrefix(strings.Trim(path, "/"), s.base), "/")
	if rel == "" {
		return 0
	}
	return strings.Count(rel, "/") + 1
}

func (s *depthSelector) Match(e *Entry) bool {
	return s.depth(e.Path) <= s.maxDepth
}

func (s *depthSelector) TraverseDescendants(e *Entry) bool {
	return s.depth(e.Path) < s.maxDepth
}

// ============================================================================
// Composition
// ============================================================================

type andSelector []Selector

// And matches only if every selector matches. It descends only while every
// selector allows it.
func And(selectors ...Selector) Selector {
	return andSelector(selectors)
}

func (s andSelector) Match(e *Entry) bool {
	for _, sel := range s {
		if !sel.Match(e) {
			return false
		}
	}
	return true
}

func (s andSelector) TraverseDescendants(e *Entry) bool {
	for _, sel := range s {
		if !sel.TraverseDescendants(e) {
			return false
		}
	}
	return true
}

type orSelector []Selector

// Or matches if any selector matches.
func Or(selectors ...Selector) Selector {
	return orSelector(selectors)
}

func (s orSelector) Match(e *Entry) bool {
	for _, sel := range s {
		if sel.Match(e) {
			return true
		}
	}
	return false
}

func (s orSelector) TraverseDescendants(e *Entry) bool {
	for _, sel := range s {
		if sel.TraverseDescendants(e) {
			return true
		}
	}
	return false
}

type notSelector struct {
	sel Selector
}

// Not inverts a selector's match result. Traversal is unaffected.
func Not(sel Selector) Selector {
	return notSelector{sel: sel}
}

func (s notSelector) Match(e *Entry) bool             { return !s.sel.Match(e) }
func (notSelector) TraverseDescendants(*Entry) bool { return true }

// ============================================================================
// FuncSelector
// ============================================================================

type funcSelector struct {
	match    func(*Entry) bool
	traverse func(*Entry) bool
}

// FuncSelector creates a selector from a match function. It descends into
// every directory.
func FuncSelector(match func(*Entry) bool) Selector {
	return funcSelector{match: match, traverse: func(*Entry) bool { return true }}
}

// FuncSelectorFull creates a selector with custom match and traverse functions.
func FuncSelectorFull(match, traverse func(*Entry) bool) Selector {
	return funcSelector{match: match, traverse: traverse}
}

func (s funcSelector) Match(e *Entry) bool               { return s.match(e) }
func (s funcSelector) TraverseDescendants(e *Entry) bool { return s.traverse(e) }
