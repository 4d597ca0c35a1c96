package loader

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIgnoreSet_Patterns(t *testing.T) {
	tests := []struct {
		name  string
		rules []string
		base  string
		path  string
		isDir bool
		want  bool
	}{
		{"extension at root", []string{"*.log"}, "", "debug.log", false, true},
		{"extension nested", []string{"*.log"}, "", "logs/debug.log", false, true},
		{"dir only matches dir", []string{"build/"}, "", "build", true, true},
		{"dir only skips file", []string{"build/"}, "", "build", false, false},
		{"rooted matches root", []string{"/todo.txt"}, "", "todo.txt", false, true},
		{"rooted skips nested", []string{"/todo.txt"}, "", "sub/todo.txt", false, false},
		{"inner slash anchors", []string{"doc/frotz"}, "", "a/doc/frotz", false, false},
		{"inner slash matches", []string{"doc/frotz"}, "", "doc/frotz", false, true},
		{"leading double star", []string{"**/logs"}, "", "a/b/logs", true, true},
		{"trailing double star", []string{"abc/**"}, "", "abc/x/y.txt", false, true},
		{"middle double star", []string{"a/**/b"}, "", "a/x/y/b", false, true},
		{"middle double star zero dirs", []string{"a/**/b"}, "", "a/b", false, true},
		{"negation re-includes", []string{"*.log", "!keep.log"}, "", "keep.log", false, false},
		{"negation leaves others", []string{"*.log", "!keep.log"}, "", "other.log", false, true},
		{"character class", []string{"file[0-9].txt"}, "", "file3.txt", false, true},
		{"negated class", []string{"[!a]bc"}, "", "abc", false, false},
		{"escaped hash", []string{`\#notes`}, "", "#notes", false, true},
		{"comment ignored", []string{"# secret"}, "", "# secret", false, false},
		{"base applies below", []string{"*.tmp"}, "sub", "sub/x.tmp", false, true},
		{"base skips outside", []string{"*.tmp"}, "sub", "x.tmp", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s ignoreSet
			for _, line := range tt.rules {
				if r, ok := parseIgnoreRule(line, tt.base); ok {
					s.rules = append(s.rules, r)
				}
			}
			assert.Equal(t, tt.want, s.ignored(tt.path, tt.isDir))
		})
	}
}

func TestIgnoreSet_LoadMissingFile(t *testing.T) {
	var s ignoreSet
	err := s.load(filepath.Join(t.TempDir(), ".gitignore"), "")
	assert.Error(t, err)
	assert.Empty(t, s.rules)
}

func TestLoadDirectory_HonorsIgnoreFiles(t *testing.T) {
	// Given: a root .gitignore and a nested .ragignore with a negation
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ".gitignore"), "# local notes\ndrafts/\nsecret.txt\n")
	writeFile(t, filepath.Join(dir, "a.txt"), "alpha")
	writeFile(t, filepath.Join(dir, "secret.txt"), "hidden")
	writeFile(t, filepath.Join(dir, "other", "secret.txt"), "hidden")
	writeFile(t, filepath.Join(dir, "drafts", "d.txt"), "draft")
	writeFile(t, filepath.Join(dir, "nested", ".ragignore"), "*.md\n!keep.md\n")
	writeFile(t, filepath.Join(dir, "nested", "b.md"), "beta")
	writeFile(t, filepath.Join(dir, "nested", "keep.md"), "kept")
	writeFile(t, filepath.Join(dir, "nested", "c.txt"), "gamma")

	// When: loading the directory
	inputs, err := newTestLoader().LoadDirectory(context.Background(), dir)

	// Then: ignored paths are skipped and the negated file is kept
	require.NoError(t, err)
	var sources []string
	for _, in := range inputs {
		rel, relErr := filepath.Rel(dir, in.Source)
		require.NoError(t, relErr)
		sources = append(sources, filepath.ToSlash(rel))
	}
	assert.Equal(t, []string{"a.txt", "nested/c.txt", "nested/keep.md"}, sources)
}
