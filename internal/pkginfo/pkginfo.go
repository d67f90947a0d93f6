// Package pkginfo reads and writes the .PKGINFO control file that describes
// an APK package.
package pkginfo

import (
	"bufio"
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ralt/apkkit/internal/models"
	"github.com/ralt/apkkit/internal/version"
)

// FileName is the name of the metadata entry inside the control segment.
const FileName = ".PKGINFO"

const maxLineLength = 1 << 20

// Field names of the .PKGINFO format.
const (
	KeyName        = "pkgname"
	KeyVersion     = "pkgver"
	KeyArch        = "arch"
	KeyMaintainer  = "maintainer"
	KeyDescription = "pkgdesc"
	KeyURL         = "url"
	KeyLicense     = "license"
	KeySize        = "size"
	KeyDataHash    = "datahash"
	KeyDepend      = "depend"
	KeyProvides    = "provides"
	KeyTriggers    = "triggers"
)

var knownKeys = map[string]bool{
	KeyName: true, KeyVersion: true, KeyArch: true, KeyMaintainer: true,
	KeyDescription: true, KeyURL: true, KeyLicense: true, KeySize: true,
	KeyDataHash: true, KeyDepend: true, KeyProvides: true, KeyTriggers: true,
}

// Parse parses the Alpine PKGINFO format. The record ends at the first blank
// line following a field, or at end of input.
func Parse(data []byte) (models.Metadata, error) {
	var m models.Metadata
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 4096), maxLineLength)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())

		if line == "" {
			if len(seen) > 0 {
				break
			}
			continue
		}
		if strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if !ok || key == "" {
			return models.Metadata{}, models.Errorf(models.ErrInvalidMetadata, "line %d: expected key = value", lineNo)
		}

		switch key {
		case KeyDepend:
			deps, err := ParseDependencies(value)
			if err != nil {
				return models.Metadata{}, withField(err, key)
			}
			m.Depends = append(m.Depends, deps...)
		case KeyProvides:
			provides, err := ParseProvides(value)
			if err != nil {
				return models.Metadata{}, withField(err, key)
			}
			m.Provides = append(m.Provides, provides...)
		case KeyTriggers:
			m.Triggers = append(m.Triggers, strings.Fields(value)...)
		default:
			if !knownKeys[key] {
				if m.Extra == nil {
					m.Extra = make(map[string][]string)
				}
				m.Extra[key] = append(m.Extra[key], value)
				seen[key] = true
				continue
			}
			if seen[key] {
				return models.Metadata{}, models.Errorf(models.ErrInvalidMetadata, "line %d: duplicate field %q", lineNo, key)
			}
			if err := setField(&m, key, value); err != nil {
				return models.Metadata{}, err
			}
		}
		seen[key] = true
	}
	if err := scanner.Err(); err != nil {
		return models.Metadata{}, models.Errorf(models.ErrInvalidMetadata, "%v", err)
	}

	if err := checkMandatory(m); err != nil {
		return models.Metadata{}, err
	}
	if _, err := version.Parse(m.Version); err != nil {
		return models.Metadata{}, &models.PackageError{
			Type:    models.ErrValidation,
			Package: m.Name,
			Field:   KeyVersion,
			Err:     err,
		}
	}

	return m, nil
}

func setField(m *models.Metadata, key, value string) error {
	switch key {
	case KeyName:
		m.Name = value
	case KeyVersion:
		m.Version = value
	case KeyArch:
		m.Architecture = value
	case KeyMaintainer:
		m.Maintainer = value
	case KeyDescription:
		m.Description = value
	case KeyURL:
		m.Homepage = value
	case KeyLicense:
		m.License = value
	case KeyDataHash:
		m.DataHash = value
	case KeySize:
		size, err := strconv.ParseInt(value, 10, 64)
		if err != nil || size < 0 {
			return &models.PackageError{
				Type:  models.ErrValidation,
				Field: key,
				Err:   fmt.Errorf("%w: invalid installed size %q", models.ErrInvalidMetadata, value),
			}
		}
		m.InstalledSize = size
	}
	return nil
}

// Serialize renders m in PKGINFO format. Known fields come first in a fixed
// order, followed by unknown fields sorted by name.
func Serialize(m models.Metadata) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "%s = %s\n", KeyName, m.Name)
	fmt.Fprintf(&buf, "%s = %s\n", KeyVersion, m.Version)
	if m.Description != "" {
		fmt.Fprintf(&buf, "%s = %s\n", KeyDescription, m.Description)
	}
	if m.Homepage != "" {
		fmt.Fprintf(&buf, "%s = %s\n", KeyURL, m.Homepage)
	}
	fmt.Fprintf(&buf, "%s = %s\n", KeyArch, m.Architecture)
	if m.Maintainer != "" {
		fmt.Fprintf(&buf, "%s = %s\n", KeyMaintainer, m.Maintainer)
	}
	if m.License != "" {
		fmt.Fprintf(&buf, "%s = %s\n", KeyLicense, m.License)
	}
	if m.InstalledSize != 0 {
		fmt.Fprintf(&buf, "%s = %d\n", KeySize, m.InstalledSize)
	}
	for _, d := range m.Depends {
		fmt.Fprintf(&buf, "%s = %s\n", KeyDepend, d)
	}
	for _, p := range m.Provides {
		fmt.Fprintf(&buf, "%s = %s\n", KeyProvides, p)
	}
	if len(m.Triggers) > 0 {
		fmt.Fprintf(&buf, "%s = %s\n", KeyTriggers, strings.Join(m.Triggers, " "))
	}
	if m.DataHash != "" {
		fmt.Fprintf(&buf, "%s = %s\n", KeyDataHash, m.DataHash)
	}

	keys := make([]string, 0, len(m.Extra))
	for k := range m.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, v := range m.Extra[k] {
			fmt.Fprintf(&buf, "%s = %s\n", k, v)
		}
	}

	return buf.Bytes()
}

// Validate checks that m can be serialized and parsed back unchanged.
func Validate(m models.Metadata) error {
	if err := checkMandatory(m); err != nil {
		return err
	}
	if !ValidName(m.Name) {
		return invalidField(m.Name, KeyName, "invalid package name %q", m.Name)
	}
	if _, err := version.Parse(m.Version); err != nil {
		return &models.PackageError{Type: models.ErrValidation, Package: m.Name, Field: KeyVersion, Err: err}
	}
	if strings.ContainsAny(m.Architecture, " \t\r\n=") {
		return invalidField(m.Name, KeyArch, "invalid architecture %q", m.Architecture)
	}
	for _, f := range []struct{ key, value string }{
		{KeyMaintainer, m.Maintainer},
		{KeyDescription, m.Description},
		{KeyURL, m.Homepage},
		{KeyLicense, m.License},
		{KeyDataHash, m.DataHash},
	} {
		if !singleLine(f.value) {
			return invalidField(m.Name, f.key, "value must be a single trimmed line")
		}
	}
	if m.InstalledSize < 0 {
		return invalidField(m.Name, KeySize, "negative installed size")
	}

	for _, d := range m.Depends {
		parsed, err := ParseDependency(d.String())
		if err != nil || parsed != d {
			return &models.PackageError{
				Type:    models.ErrValidation,
				Package: m.Name,
				Field:   KeyDepend,
				Err:     fmt.Errorf("%w: %q", models.ErrInvalidDependencySyntax, d.String()),
			}
		}
	}
	for _, p := range m.Provides {
		parsed, err := ParseProvide(p.String())
		if err != nil || parsed != p {
			return &models.PackageError{
				Type:    models.ErrValidation,
				Package: m.Name,
				Field:   KeyProvides,
				Err:     fmt.Errorf("%w: %q", models.ErrInvalidDependencySyntax, p.String()),
			}
		}
	}
	for _, trigger := range m.Triggers {
		if !strings.HasPrefix(trigger, "/") || strings.ContainsAny(trigger, " \t\r\n") {
			return invalidField(m.Name, KeyTriggers, "trigger %q must be an absolute path", trigger)
		}
	}

	for key, values := range m.Extra {
		if knownKeys[key] || key == "" || strings.HasPrefix(key, "#") || strings.ContainsAny(key, " \t\r\n=") {
			return invalidField(m.Name, key, "invalid extra field name")
		}
		if len(values) == 0 {
			return invalidField(m.Name, key, "extra field without values")
		}
		for _, v := range values {
			if !singleLine(v) {
				return invalidField(m.Name, key, "value must be a single trimmed line")
			}
		}
	}
	return nil
}

func checkMandatory(m models.Metadata) error {
	for _, f := range []struct{ key, value string }{
		{KeyName, m.Name},
		{KeyVersion, m.Version},
		{KeyArch, m.Architecture},
	} {
		if f.value == "" {
			err := models.MissingField(f.key)
			err.Package = m.Name
			return err
		}
	}
	return nil
}

func singleLine(s string) bool {
	return !strings.ContainsAny(s, "\r\n") && strings.TrimSpace(s) == s
}

func invalidField(pkg, field, format string, args ...any) error {
	return &models.PackageError{
		Type:    models.ErrValidation,
		Package: pkg,
		Field:   field,
		Err:     fmt.Errorf("%w: %s", models.ErrInvalidMetadata, fmt.Sprintf(format, args...)),
	}
}

func withField(err error, field string) error {
	if pe, ok := err.(*models.PackageError); ok {
		pe.Field = field
		return pe
	}
	return err
}
