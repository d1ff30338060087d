// Package ignore matches paths against gitignore-style pattern files.
//
// Supported syntax: blank lines and # comments are skipped, a leading !
// re-includes, a trailing / matches directories only, and a pattern with no
// inner slash matches at any depth. The last matching rule wins.
package ignore

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultFile is read from the root of a watched directory.
const DefaultFile = ".ragdignore"

type rule struct {
	glob    string
	negate  bool
	dirOnly bool
}

// Matcher holds compiled rules. The zero value and nil match nothing.
type Matcher struct {
	rules []rule
}

// New compiles pattern lines.
func New(lines ...string) (*Matcher, error) {
	m := &Matcher{}
	for i, line := range lines {
		r, ok, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("pattern %d: %w", i+1, err)
		}
		if ok {
			m.rules = append(m.rules, r)
		}
	}
	return m, nil
}

// Load reads the named files under root in order. Missing files are skipped.
func Load(root string, files ...string) (*Matcher, error) {
	var lines []string
	for _, name := range files {
		f, err := os.Open(filepath.Join(root, name))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		read, err := readLines(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		lines = append(lines, read...)
	}
	m, err := New(lines...)
	if err != nil {
		return nil, fmt.Errorf("ignore rules under %s: %w", root, err)
	}
	return m, nil
}

func readLines(r io.Reader) ([]string, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return lines, sc.Err()
}

func parseLine(line string) (rule, bool, error) {
	line = strings.TrimRight(line, " \t\r")
	if line == "" || strings.HasPrefix(line, "#") {
		return rule{}, false, nil
	}

	var r rule
	if strings.HasPrefix(line, "!") {
		r.negate = true
		line = line[1:]
	}
	if strings.HasSuffix(line, "/") {
		r.dirOnly = true
		line = strings.TrimRight(line, "/")
	}
	anchored := strings.Contains(line, "/")
	line = strings.TrimPrefix(line, "/")
	if line == "" {
		return rule{}, false, nil
	}
	if !anchored && !strings.HasPrefix(line, "**/") {
		line = "**/" + line
	}
	if !doublestar.ValidatePattern(line) {
		return rule{}, false, fmt.Errorf("invalid pattern %q", line)
	}
	r.glob = line
	return r, true, nil
}

// Match reports whether rel, a slash-separated path relative to the root,
// is ignored. isDir says whether rel itself is a directory.
func (m *Matcher) Match(rel string, isDir bool) bool {
	if m == nil {
		return false
	}
	rel = strings.Trim(filepath.ToSlash(rel), "/")
	ignored := false
	for _, r := range m.rules {
		if r.matches(rel, isDir) {
			ignored = !r.negate
		}
	}
	return ignored
}

func (r rule) matches(rel string, isDir bool) bool {
	if (isDir || !r.dirOnly) && doublestar.MatchUnvalidated(r.glob, rel) {
		return true
	}
	// a matching parent directory ignores everything below it
	for i := 0; i < len(rel); i++ {
		if rel[i] == '/' && doublestar.MatchUnvalidated(r.glob, rel[:i]) {
			return true
		}
	}
	return false
}

// Len returns the number of compiled rules.
func (m *Matcher) Len() int {
	if m == nil {
		return 0
	}
	return len(m.rules)
}
