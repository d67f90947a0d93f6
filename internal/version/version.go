// Package version implements the ordering of APK version strings.
//
// A version is a dot separated numeric core, an optional single lowercase
// letter, zero or more "_suffix[N]" words and an optional "-rN" revision:
//
//	1.2.3b_alpha2_p1-r4
//
// Numeric parts are compared as arbitrary precision integers, so "2.10" sorts
// after "2.9" and leading zeros are insignificant.
package version

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ralt/apkkit/internal/models"
)

// Result is the outcome of comparing two versions.
type Result int

const (
	Less    Result = -1
	Equal   Result = 0
	Greater Result = 1
)

// String returns the comparison symbol.
func (r Result) String() string {
	switch r {
	case Less:
		return "<"
	case Greater:
		return ">"
	default:
		return "="
	}
}

// Suffix ranks. Versions without a suffix at a given position rank as
// suffixNone, which places pre-release words before it and post-release words
// after it.
const (
	suffixAlpha = iota
	suffixBeta
	suffixPre
	suffixRC
	suffixNone
	suffixCVS
	suffixSVN
	suffixGit
	suffixHg
	suffixP
)

var suffixRanks = map[string]int{
	"alpha": suffixAlpha,
	"beta":  suffixBeta,
	"pre":   suffixPre,
	"rc":    suffixRC,
	"cvs":   suffixCVS,
	"svn":   suffixSVN,
	"git":   suffixGit,
	"hg":    suffixHg,
	"p":     suffixP,
}

type suffix struct {
	rank   int
	number string
}

// Version is a parsed version string. The zero value is not valid; use Parse.
type Version struct {
	raw      string
	numbers  []string
	letter   byte
	suffixes []suffix
	revision string
}

// Parse validates s and returns its parsed form.
func Parse(s string) (Version, error) {
	v := Version{raw: s}
	p := parser{s: s}

	first := p.digits()
	if first == "" {
		return Version{}, malformed(s, "version must start with a digit")
	}
	v.numbers = append(v.numbers, trimZeros(first))
	for p.peek() == '.' {
		p.pos++
		n := p.digits()
		if n == "" {
			return Version{}, malformed(s, "empty numeric component")
		}
		v.numbers = append(v.numbers, trimZeros(n))
	}

	if c := p.peek(); c >= 'a' && c <= 'z' {
		v.letter = c
		p.pos++
	}

	for p.peek() == '_' {
		p.pos++
		word := p.letters()
		rank, ok := suffixRanks[word]
		if !ok {
			return Version{}, malformed(s, "unknown suffix %q", word)
		}
		v.suffixes = append(v.suffixes, suffix{rank: rank, number: trimZeros(p.digits())})
	}

	if strings.HasPrefix(s[p.pos:], "-r") {
		p.pos += 2
		r := p.digits()
		if r == "" {
			return Version{}, malformed(s, "empty revision")
		}
		v.revision = trimZeros(r)
	}

	if p.pos != len(s) {
		return Version{}, malformed(s, "unexpected character %q at offset %d", s[p.pos], p.pos)
	}
	return v, nil
}

// MustParse is like Parse but panics on error. It is meant for constants.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// Valid reports whether s is a well formed version.
func Valid(s string) bool {
	_, err := Parse(s)
	return err == nil
}

// String returns the version exactly as it was parsed.
func (v Version) String() string {
	return v.raw
}

// Compare orders v against o.
func (v Version) Compare(o Version) Result {
	for i := 0; i < len(v.numbers) && i < len(o.numbers); i++ {
		if r := compareDigits(v.numbers[i], o.numbers[i]); r != Equal {
			return r
		}
	}
	if len(v.numbers) != len(o.numbers) {
		if len(v.numbers) < len(o.numbers) {
			return Less
		}
		return Greater
	}

	if v.letter != o.letter {
		if v.letter < o.letter {
			return Less
		}
		return Greater
	}

	for i := 0; i < len(v.suffixes) || i < len(o.suffixes); i++ {
		a, b := v.suffixAt(i), o.suffixAt(i)
		if a.rank != b.rank {
			if a.rank < b.rank {
				return Less
			}
			return Greater
		}
		if r := compareDigits(a.number, b.number); r != Equal {
			return r
		}
	}

	return compareDigits(v.revision, o.revision)
}

func (v Version) suffixAt(i int) suffix {
	if i < len(v.suffixes) {
		return v.suffixes[i]
	}
	return suffix{rank: suffixNone}
}

// Compare parses both strings and orders a against b.
func Compare(a, b string) (Result, error) {
	va, err := Parse(a)
	if err != nil {
		return Equal, err
	}
	vb, err := Parse(b)
	if err != nil {
		return Equal, err
	}
	return va.Compare(vb), nil
}

// Sort orders versions ascending. Malformed versions are rejected before any
// reordering happens.
func Sort(versions []string) error {
	parsed := make([]Version, len(versions))
	for i, s := range versions {
		v, err := Parse(s)
		if err != nil {
			return err
		}
		parsed[i] = v
	}
	sort.SliceStable(parsed, func(i, j int) bool {
		return parsed[i].Compare(parsed[j]) == Less
	})
	for i, v := range parsed {
		versions[i] = v.raw
	}
	return nil
}

// compareDigits compares two digit strings with leading zeros removed.
func compareDigits(a, b string) Result {
	if len(a) != len(b) {
		if len(a) < len(b) {
			return Less
		}
		return Greater
	}
	switch {
	case a < b:
		return Less
	case a > b:
		return Greater
	}
	return Equal
}

func trimZeros(s string) string {
	return strings.TrimLeft(s, "0")
}

func malformed(s, format string, args ...any) error {
	return models.Errorf(models.ErrMalformedVersion, "%q: %s", s, fmt.Sprintf(format, args...))
}

type parser struct {
	s   string
	pos int
}

func (p *parser) peek() byte {
	if p.pos < len(p.s) {
		return p.s[p.pos]
	}
	return 0
}

func (p *parser) digits() string {
	start := p.pos
	for p.pos < len(p.s) && p.s[p.pos] >= '0' && p.s[p.pos] <= '9' {
		p.pos++
	}
	return p.s[start:p.pos]
}

func (p *parser) letters() string {
	start := p.pos
	for p.pos < len(p.s) && p.s[p.pos] >= 'a' && p.s[p.pos] <= 'z' {
		p.pos++
	}
	return p.s[start:p.pos]
}
