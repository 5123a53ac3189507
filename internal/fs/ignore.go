package fs

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// IgnoreFileName is the per-root file holding extra ignore rules.
const IgnoreFileName = ".cvignore"

// defaultIgnoreRules apply to every root. Temp files are what the filesystem
// backend leaves behind when a save is interrupted.
var defaultIgnoreRules = []string{IgnoreFileName, ".tmp-*"}

// ignoreRule is one parsed line of an ignore list.
//
//	*.log      any file or directory named like this, at any depth
//	cache/     directories only
//	/build     anchored at the root
//	a/*.tmp    slash inside: matched against the whole relative path
//	!keep.log  re-include something an earlier rule ignored
type ignoreRule struct {
	glob     string
	negate   bool
	dirOnly  bool
	anchored bool
}

func (r ignoreRule) matches(rel string, isDir bool) bool {
	if r.dirOnly && !isDir {
		return false
	}
	if r.anchored {
		ok, _ := path.Match(r.glob, rel)
		return ok
	}
	ok, _ := path.Match(r.glob, path.Base(rel))
	return ok
}

// IgnoreMatcher decides which paths below a root are left out of a backup.
// Rules are applied in order and the last matching rule wins.
type IgnoreMatcher struct {
	rules []ignoreRule
}

// NewIgnoreMatcher parses rules. Blank lines and '#' comments are skipped.
// Malformed globs are reported, all of them at once.
func NewIgnoreMatcher(lines []string) (*IgnoreMatcher, error) {
	m := &IgnoreMatcher{}
	var errs []error
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		r, err := parseIgnoreRule(line)
		if err != nil {
			errs = append(errs, fmt.Errorf("rule %d %q: %w", i+1, line, err))
			continue
		}
		m.rules = append(m.rules, r)
	}
	return m, errors.Join(errs...)
}

func parseIgnoreRule(line string) (ignoreRule, error) {
	var r ignoreRule
	if rest, ok := strings.CutPrefix(line, "!"); ok {
		r.negate = true
		line = rest
	}
	if rest, ok := strings.CutSuffix(line, "/"); ok {
		r.dirOnly = true
		line = rest
	}
	if rest, ok := strings.CutPrefix(line, "/"); ok {
		r.anchored = true
		line = rest
	}
	if strings.Contains(line, "/") {
		r.anchored = true
	}
	if line == "" {
		return r, errors.New("empty pattern")
	}
	if _, err := path.Match(line, ""); err != nil {
		return r, err
	}
	r.glob = line
	return r, nil
}

// Match reports whether rel, a path relative to the root, is ignored.
func (m *IgnoreMatcher) Match(rel string, isDir bool) bool {
	rel = filepath.ToSlash(rel)
	ignored := false
	for _, r := range m.rules {
		if r.matches(rel, isDir) {
			ignored = !r.negate
		}
	}
	return ignored
}

// ReadIgnoreFile returns the lines of an ignore file, or nil if there is none.
func ReadIgnoreFile(name string) ([]string, error) {
	data, err := os.ReadFile(name)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading ignore file: %w", err)
	}
	return strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n"), nil
}
