package pkginfo

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/ralt/apkkit/internal/models"
)

func sampleMetadata() models.Metadata {
	return models.Metadata{
		Name:          "test-package",
		Version:       "1.2.3_rc1-r2",
		Architecture:  "x86_64",
		Maintainer:    "Test Maintainer <test@example.com>",
		Description:   "Test package description",
		Homepage:      "https://example.com",
		License:       "MIT",
		InstalledSize: 54321,
		DataHash:      "0123456789abcdef",
		Depends: []models.Dependency{
			{Name: "musl", Operator: models.OpGreaterEqual, Version: "1.2"},
			{Name: "so:libc.musl-x86_64.so.1"},
			{Name: "oldpkg", Operator: models.OpConflict},
			{Name: "/bin/sh"},
		},
		Provides: []models.Provide{
			{Name: "cmd:test"},
			{Name: "test-virtual", Version: "1.2.3"},
		},
		Triggers: []string{"/usr/share/fonts", "/usr/X11R7/fonts"},
		Extra: map[string][]string{
			"builddate": {"1234567890"},
			"replaces":  {"a", "b"},
		},
	}
}

func TestParsePKGINFO(t *testing.T) {
	data := `# Generated by abuild 3.11
# using fakeroot version 1.31
pkgname = test-package
pkgver = 1.2.3_rc1-r2
pkgdesc = Test package description
url = https://example.com
builddate = 1234567890
maintainer = Test Maintainer <test@example.com>
size = 54321
arch = x86_64
license = MIT
depend = musl>=1.2
depend = so:libc.musl-x86_64.so.1
depend = !oldpkg
depend = /bin/sh
provides = cmd:test
provides = test-virtual=1.2.3
replaces = a
replaces = b
triggers = /usr/share/fonts /usr/X11R7/fonts
datahash = 0123456789abcdef
`
	got, err := Parse([]byte(data))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if !reflect.DeepEqual(got, sampleMetadata()) {
		t.Errorf("Parse mismatch:\n got %+v\nwant %+v", got, sampleMetadata())
	}
}

func TestRoundTrip(t *testing.T) {
	minimal := models.Metadata{Name: "foo", Version: "1.0", Architecture: "noarch"}

	for name, m := range map[string]models.Metadata{
		"full":    sampleMetadata(),
		"minimal": minimal,
	} {
		t.Run(name, func(t *testing.T) {
			if err := Validate(m); err != nil {
				t.Fatalf("Validate failed: %v", err)
			}
			serialized := Serialize(m)
			parsed, err := Parse(serialized)
			if err != nil {
				t.Fatalf("Parse(Serialize(m)) failed: %v\n%s", err, serialized)
			}
			if !reflect.DeepEqual(parsed, m) {
				t.Errorf("round trip mismatch:\n got %+v\nwant %+v", parsed, m)
			}
			if again := Serialize(parsed); string(again) != string(serialized) {
				t.Errorf("serialization is not stable:\n%s\nvs\n%s", serialized, again)
			}
		})
	}
}

func TestParseRecordTerminators(t *testing.T) {
	base := "pkgname = foo\npkgver = 1.0\narch = x86_64"

	for name, data := range map[string]string{
		"eof without newline": base,
		"eof with newline":    base + "\n",
		"blank line":          base + "\n\nthis is not part of the record\n",
		"crlf":                strings.ReplaceAll(base, "\n", "\r\n") + "\r\n",
		"leading blank lines": "\n\n" + base + "\n",
		"compact separator":   "pkgname=foo\npkgver=1.0\narch=x86_64\n",
	} {
		t.Run(name, func(t *testing.T) {
			m, err := Parse([]byte(data))
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			if m.Name != "foo" || m.Version != "1.0" || m.Architecture != "x86_64" {
				t.Errorf("unexpected metadata %+v", m)
			}
		})
	}
}

func TestParseMissingFields(t *testing.T) {
	tests := []struct {
		data  string
		field string
	}{
		{"pkgver = 1.0\narch = x86_64\n", KeyName},
		{"pkgname = foo\narch = x86_64\n", KeyVersion},
		{"pkgname = foo\npkgver = 1.0\n", KeyArch},
		{"pkgname = \npkgver = 1.0\narch = x86_64\n", KeyName},
		{"pkgname = foo\n\npkgver = 1.0\narch = x86_64\n", KeyVersion},
	}

	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			if !errors.Is(err, models.ErrMissingField) {
				t.Fatalf("Parse error = %v, want ErrMissingField", err)
			}
			var pe *models.PackageError
			if !errors.As(err, &pe) || pe.Field != tt.field {
				t.Errorf("missing field = %+v, want %q", pe, tt.field)
			}
		})
	}
}

func TestParseInvalidInput(t *testing.T) {
	header := "pkgname = foo\npkgver = 1.0\narch = x86_64\n"

	tests := []struct {
		name string
		data string
		want error
	}{
		{"bad operator", header + "depend = foo~1.0\n", models.ErrInvalidDependencySyntax},
		{"bad dep version", header + "depend = foo>=abc\n", models.ErrInvalidDependencySyntax},
		{"versioned conflict", header + "depend = !foo>1.0\n", models.ErrInvalidDependencySyntax},
		{"empty operator version", header + "depend = foo=\n", models.ErrInvalidDependencySyntax},
		{"bad provide", header + "provides = bar=x.y\n", models.ErrInvalidDependencySyntax},
		{"bad pkgver", "pkgname = foo\npkgver = one\narch = x86_64\n", models.ErrMalformedVersion},
		{"line without separator", header + "garbage\n", models.ErrInvalidMetadata},
		{"duplicate field", header + "pkgname = bar\n", models.ErrInvalidMetadata},
		{"bad size", header + "size = -1\n", models.ErrInvalidMetadata},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			if !errors.Is(err, tt.want) {
				t.Errorf("Parse error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestParseDependency(t *testing.T) {
	tests := []struct {
		atom string
		want models.Dependency
	}{
		{"foo", models.Dependency{Name: "foo"}},
		{"!foo", models.Dependency{Name: "foo", Operator: models.OpConflict}},
		{"foo=1.0", models.Dependency{Name: "foo", Operator: models.OpEqual, Version: "1.0"}},
		{"foo==1.0", models.Dependency{Name: "foo", Operator: models.OpEqual, Version: "1.0"}},
		{"foo<1.0", models.Dependency{Name: "foo", Operator: models.OpLess, Version: "1.0"}},
		{"foo<=1.0", models.Dependency{Name: "foo", Operator: models.OpLessEqual, Version: "1.0"}},
		{"foo>1.0", models.Dependency{Name: "foo", Operator: models.OpGreater, Version: "1.0"}},
		{"foo>=1.0-r3", models.Dependency{Name: "foo", Operator: models.OpGreaterEqual, Version: "1.0-r3"}},
		{"so:libz.so.1", models.Dependency{Name: "so:libz.so.1"}},
		{"/bin/sh", models.Dependency{Name: "/bin/sh"}},
		{"!/usr/bin/foo", models.Dependency{Name: "/usr/bin/foo", Operator: models.OpConflict}},
	}

	for _, tt := range tests {
		t.Run(tt.atom, func(t *testing.T) {
			got, err := ParseDependency(tt.atom)
			if err != nil {
				t.Fatalf("ParseDependency(%q) failed: %v", tt.atom, err)
			}
			if got != tt.want {
				t.Errorf("ParseDependency(%q) = %+v, want %+v", tt.atom, got, tt.want)
			}
		})
	}

	for _, atom := range []string{"", "!", ">=1.0", "foo bar", "foo>=", "foo=<1.0", "fo/o", "/", "/bin//sh", "/bin/s h"} {
		if _, err := ParseDependency(atom); !errors.Is(err, models.ErrInvalidDependencySyntax) {
			t.Errorf("ParseDependency(%q) error = %v, want ErrInvalidDependencySyntax", atom, err)
		}
	}
}

func TestValidateRejectsUnserializableMetadata(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.Metadata)
		want   error
	}{
		{"no name", func(m *models.Metadata) { m.Name = "" }, models.ErrMissingField},
		{"no arch", func(m *models.Metadata) { m.Architecture = "" }, models.ErrMissingField},
		{"bad version", func(m *models.Metadata) { m.Version = "1.0-beta" }, models.ErrMalformedVersion},
		{"multiline description", func(m *models.Metadata) { m.Description = "a\nb" }, models.ErrInvalidMetadata},
		{"conflict with version", func(m *models.Metadata) {
			m.Depends = []models.Dependency{{Name: "x", Operator: models.OpConflict, Version: "1"}}
		}, models.ErrInvalidDependencySyntax},
		{"extra shadows known key", func(m *models.Metadata) { m.Extra = map[string][]string{"pkgname": {"x"}} }, models.ErrInvalidMetadata},
		{"relative trigger", func(m *models.Metadata) { m.Triggers = []string{"usr/share"} }, models.ErrInvalidMetadata},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := sampleMetadata()
			tt.mutate(&m)
			if err := Validate(m); !errors.Is(err, tt.want) {
				t.Errorf("Validate error = %v, want %v", err, tt.want)
			}
		})
	}
}
