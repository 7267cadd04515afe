package discover

import (
	"bufio"
	"os"
	"regexp"
	"strings"
)

type ignorePattern struct {
	neg bool           // pattern starts with '!'
	rx  *regexp.Regexp // compiled matcher
}

// parseIgnore reads an ignore file. Supported syntax:
//   - '#' comments, blank lines ignored
//   - '!' negation
//   - '*' and '?' behave like shell globs
//
// Only base names are matched since discovery does not recurse.
func parseIgnore(path string) ([]ignorePattern, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var res []ignorePattern
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		neg := false
		if strings.HasPrefix(line, "!") {
			neg = true
			line = strings.TrimSpace(line[1:])
			if line == "" {
				continue
			}
		}
		line = strings.TrimPrefix(line, "/")
		res = append(res, ignorePattern{neg: neg, rx: compileGlob(line)})
	}
	return res, s.Err()
}

func compileGlob(glob string) *regexp.Regexp {
	esc := regexp.QuoteMeta(glob)
	esc = strings.ReplaceAll(esc, `\*`, ".*")
	esc = strings.ReplaceAll(esc, `\?`, ".")
	return regexp.MustCompile("^" + esc + "$")
}

// matchIgnore applies patterns in order; the last match wins.
func matchIgnore(pats []ignorePattern, base string) bool {
	ignored := false
	for _, p := range pats {
		if p.rx.MatchString(base) {
			ignored = !p.neg
		}
	}
	return ignored
}
