package loader

import (
	"bufio"
	"fmt"
	"os"
	"path"
	"regexp"
	"strings"
)

// IgnoreFiles are read from every walked directory. Their rules use
// gitignore syntax and apply to that directory and everything below it.
var IgnoreFiles = []string{".gitignore", ".ragignore"}

// ignoreRule is one compiled gitignore line.
type ignoreRule struct {
	re       *regexp.Regexp
	negate   bool
	dirOnly  bool
	anchored bool
	// base is the slash-separated directory of the file that declared
	// the rule, relative to the walk root; "" for the root itself.
	base string
}

// ignoreSet accumulates rules while a directory tree is walked. Later
// rules override earlier ones, so a negation can re-include a path.
type ignoreSet struct {
	rules []ignoreRule
}

// load adds the rules in file, declared in directory base.
func (s *ignoreSet) load(file, base string) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if r, ok := parseIgnoreRule(sc.Text(), base); ok {
			s.rules = append(s.rules, r)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read %s: %w", file, err)
	}
	return nil
}

// ignored reports whether rel, a slash-separated path relative to the
// walk root, is excluded.
func (s *ignoreSet) ignored(rel string, isDir bool) bool {
	out := false
	for _, r := range s.rules {
		if r.matches(rel, isDir) {
			out = !r.negate
		}
	}
	return out
}

// parseIgnoreRule compiles line. Blank lines and comments yield false.
func parseIgnoreRule(line, base string) (ignoreRule, bool) {
	keepSpace := strings.HasSuffix(line, `\ `)
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return ignoreRule{}, false
	}

	r := ignoreRule{base: base}
	switch {
	case strings.HasPrefix(line, `\#`), strings.HasPrefix(line, `\!`):
		line = line[1:]
	case strings.HasPrefix(line, "!"):
		r.negate = true
		line = line[1:]
	}
	if keepSpace && strings.HasSuffix(line, `\`) {
		line = strings.TrimSuffix(line, `\`) + " "
	}
	if strings.HasSuffix(line, "/") {
		r.dirOnly = true
		line = strings.TrimSuffix(line, "/")
	}
	if strings.HasPrefix(line, "/") {
		r.anchored = true
		line = strings.TrimPrefix(line, "/")
	} else if strings.Contains(line, "/") && !strings.HasPrefix(line, "**/") {
		// "doc/frotz" is relative to the declaring directory.
		r.anchored = true
	}
	if line == "" {
		return ignoreRule{}, false
	}

	re, err := regexp.Compile("^" + globToRegexp(line) + "$")
	if err != nil {
		return ignoreRule{}, false
	}
	r.re = re
	return r, true
}

func (r ignoreRule) matches(rel string, isDir bool) bool {
	if r.base != "" {
		rest, ok := strings.CutPrefix(rel, r.base+"/")
		if !ok {
			return false
		}
		rel = rest
	}
	if r.dirOnly && !isDir {
		return false
	}
	if r.anchored {
		return r.re.MatchString(rel)
	}
	return r.re.MatchString(path.Base(rel)) || r.re.MatchString(rel)
}

// globToRegexp translates gitignore glob syntax. "*" and "?" stay within
// one path segment, "**/" spans any number of directories and a trailing
// "**" matches everything below.
func globToRegexp(glob string) string {
	var b strings.Builder
	for i := 0; i < len(glob); i++ {
		c := glob[i]
		switch c {
		case '*':
			if strings.HasPrefix(glob[i:], "**/") && (i == 0 || glob[i-1] == '/') {
				b.WriteString("(?:.*/)?")
				i += 2
			} else if strings.HasPrefix(glob[i:], "**") && (i == 0 || glob[i-1] == '/') {
				b.WriteString(".*")
				i++
			} else {
				b.WriteString("[^/]*")
			}
		case '?':
			b.WriteString("[^/]")
		case '[':
			end := strings.IndexByte(glob[i+1:], ']')
			if end < 0 {
				b.WriteString(`\[`)
				continue
			}
			class := glob[i+1 : i+1+end]
			if strings.HasPrefix(class, "!") {
				class = "^" + class[1:]
			}
			b.WriteString("[" + class + "]")
			i += end + 1
		case '\\':
			if i+1 < len(glob) {
				i++
				b.WriteString(regexp.QuoteMeta(string(glob[i])))
			} else {
				b.WriteString(`\\`)
			}
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	return b.String()
}
