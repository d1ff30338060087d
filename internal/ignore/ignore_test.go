package ignore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		name string
		line string
		want rule
		ok   bool
	}{
		{"empty line", "", rule{}, false},
		{"whitespace only", "   ", rule{}, false},
		{"comment", "# drafts", rule{}, false},
		{"bare name matches anywhere", "scratch.pdf", rule{glob: "**/scratch.pdf"}, true},
		{"extension glob", "*.tmp.pdf", rule{glob: "**/*.tmp.pdf"}, true},
		{"directory", "drafts/", rule{glob: "**/drafts", dirOnly: true}, true},
		{"anchored path", "/archive/2019", rule{glob: "archive/2019"}, true},
		{"nested path is anchored", "archive/old", rule{glob: "archive/old"}, true},
		{"negation", "!keep.pdf", rule{glob: "**/keep.pdf", negate: true}, true},
		{"double star kept", "**/build", rule{glob: "**/build"}, true},
		{"lone slash", "/", rule{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := parseLine(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseLine_InvalidPattern(t *testing.T) {
	_, _, err := parseLine("[unclosed")
	assert.Error(t, err)
}

func TestMatcher_Match(t *testing.T) {
	m, err := New(
		"drafts/",
		"*.bak.pdf",
		"/archive/2019",
		"scans/*.pdf",
		"!scans/keep.pdf",
	)
	require.NoError(t, err)
	assert.Equal(t, 5, m.Len())

	tests := []struct {
		rel     string
		isDir   bool
		ignored bool
	}{
		{"report.pdf", false, false},
		{"drafts", true, true},
		{"drafts", false, false},
		{"drafts/plan.pdf", false, true},
		{"team/drafts/plan.pdf", false, true},
		{"q3.bak.pdf", false, true},
		{"deep/q3.bak.pdf", false, true},
		{"archive/2019/jan.pdf", false, true},
		{"other/archive/2019/jan.pdf", false, false},
		{"scans/page1.pdf", false, true},
		{"scans/keep.pdf", false, false},
		{"scans/nested/page1.pdf", false, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.ignored, m.Match(tt.rel, tt.isDir), tt.rel)
	}
}

func TestMatcher_NilMatchesNothing(t *testing.T) {
	var m *Matcher
	assert.False(t, m.Match("anything.pdf", false))
	assert.Equal(t, 0, m.Len())
}

func TestLoad(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, DefaultFile), []byte("# local rules\ndrafts/\n\n*.bak.pdf\n"), 0600))

	m, err := Load(root, DefaultFile, ".missing")
	require.NoError(t, err)
	assert.Equal(t, 2, m.Len())
	assert.True(t, m.Match("drafts/a.pdf", false))
	assert.False(t, m.Match("a.pdf", false))
}

func TestLoad_InvalidRule(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, DefaultFile), []byte("ok.pdf\n[bad\n"), 0600))

	_, err := Load(root, DefaultFile)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pattern 2")
}
