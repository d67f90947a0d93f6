package pkginfo

import (
	"strings"

	"github.com/ralt/apkkit/internal/models"
	"github.com/ralt/apkkit/internal/version"
)

// operators is ordered so that two-character operators match first.
var operators = []struct {
	text string
	op   models.Operator
}{
	{"==", models.OpEqual},
	{"<=", models.OpLessEqual},
	{">=", models.OpGreaterEqual},
	{"=", models.OpEqual},
	{"<", models.OpLess},
	{">", models.OpGreater},
}

// ValidName reports whether name may be used as a package, dependency or
// provide name. Prefixed virtual names such as "so:libc.musl-x86_64.so.1" and
// "cmd:sh" are accepted.
func ValidName(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '+' || c == '-' || c == '_' || c == '.' || c == ':' || c == '@':
		default:
			return false
		}
	}
	return true
}

// ValidDependencyName reports whether name may be depended on. Besides
// package and virtual names, absolute file paths such as "/bin/sh" are
// accepted.
func ValidDependencyName(name string) bool {
	if !strings.HasPrefix(name, "/") {
		return ValidName(name)
	}
	for _, part := range strings.Split(name[1:], "/") {
		if !ValidName(part) {
			return false
		}
	}
	return true
}

// ParseDependency parses one dependency atom: "name", "!name" or
// "name<op>version".
func ParseDependency(atom string) (models.Dependency, error) {
	if strings.HasPrefix(atom, "!") {
		name := atom[1:]
		if !ValidDependencyName(name) {
			return models.Dependency{}, badDependency(atom, "conflicts carry a bare package name")
		}
		return models.Dependency{Name: name, Operator: models.OpConflict}, nil
	}

	cut := strings.IndexAny(atom, "<>=~")
	if cut < 0 {
		if !ValidDependencyName(atom) {
			return models.Dependency{}, badDependency(atom, "invalid package name")
		}
		return models.Dependency{Name: atom}, nil
	}

	name, rest := atom[:cut], atom[cut:]
	if !ValidDependencyName(name) {
		return models.Dependency{}, badDependency(atom, "invalid package name")
	}
	for _, o := range operators {
		if !strings.HasPrefix(rest, o.text) {
			continue
		}
		ver := rest[len(o.text):]
		if !version.Valid(ver) {
			return models.Dependency{}, badDependency(atom, "invalid version %q", ver)
		}
		return models.Dependency{Name: name, Operator: o.op, Version: ver}, nil
	}
	return models.Dependency{}, badDependency(atom, "unsupported operator")
}

// ParseDependencies parses a whitespace separated list of atoms.
func ParseDependencies(list string) ([]models.Dependency, error) {
	var deps []models.Dependency
	for _, atom := range strings.Fields(list) {
		d, err := ParseDependency(atom)
		if err != nil {
			return nil, err
		}
		deps = append(deps, d)
	}
	return deps, nil
}

// ParseProvide parses "name" or "name=version".
func ParseProvide(s string) (models.Provide, error) {
	name, ver, hasVersion := strings.Cut(s, "=")
	if !ValidName(name) {
		return models.Provide{}, badDependency(s, "invalid provide name")
	}
	if hasVersion && !version.Valid(ver) {
		return models.Provide{}, badDependency(s, "invalid provide version %q", ver)
	}
	return models.Provide{Name: name, Version: ver}, nil
}

// ParseProvides parses a whitespace separated list of provides.
func ParseProvides(list string) ([]models.Provide, error) {
	var provides []models.Provide
	for _, s := range strings.Fields(list) {
		p, err := ParseProvide(s)
		if err != nil {
			return nil, err
		}
		provides = append(provides, p)
	}
	return provides, nil
}

func badDependency(atom, format string, args ...any) error {
	return models.Errorf(models.ErrInvalidDependencySyntax, "%q: "+format, append([]any{atom}, args...)...)
}
