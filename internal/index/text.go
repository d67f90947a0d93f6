package index

import (
	"bufio"
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ralt/apkkit/internal/models"
	"github.com/ralt/apkkit/internal/pkginfo"
	"github.com/ralt/apkkit/internal/utils"
	"github.com/ralt/apkkit/internal/version"
)

const maxLineLength = 1 << 20

// known record letters; everything else goes to Record.Extra
const knownLetters = "CPVASITULmDp"

// ParseRecords parses APKINDEX text. Records are separated by blank lines; a
// trailing blank line is optional.
func ParseRecords(data []byte) ([]Record, error) {
	var records []Record
	var current *Record
	seen := make(map[byte]bool)
	start := 0

	finish := func() error {
		if current == nil {
			return nil
		}
		if err := check(*current); err != nil {
			return models.Errorf(models.ErrMalformedIndex, "record at line %d: %v", start, err)
		}
		records = append(records, *current)
		current = nil
		seen = make(map[byte]bool)
		return nil
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 4096), maxLineLength)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")

		if line == "" {
			if err := finish(); err != nil {
				return nil, err
			}
			continue
		}

		if len(line) < 2 || line[1] != ':' {
			return nil, models.Errorf(models.ErrMalformedIndex, "line %d: expected letter:value", lineNo)
		}
		if current == nil {
			current = &Record{}
			start = lineNo
		}

		letter, value := line[0], line[2:]
		if strings.IndexByte(knownLetters, letter) >= 0 {
			if seen[letter] {
				return nil, models.Errorf(models.ErrMalformedIndex, "line %d: duplicate field %c", lineNo, letter)
			}
			seen[letter] = true
		}
		if err := setField(current, letter, value); err != nil {
			return nil, models.Errorf(models.ErrMalformedIndex, "line %d: %v", lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, models.Errorf(models.ErrMalformedIndex, "%v", err)
	}
	if err := finish(); err != nil {
		return nil, err
	}

	return records, nil
}

func setField(rec *Record, letter byte, value string) error {
	var err error
	switch letter {
	case 'C':
		rec.Checksum = value
	case 'P':
		rec.Name = value
	case 'V':
		rec.Version = value
	case 'A':
		rec.Arch = value
	case 'S':
		rec.Size, err = strconv.ParseInt(value, 10, 64)
	case 'I':
		rec.InstalledSize, err = strconv.ParseInt(value, 10, 64)
	case 'T':
		rec.Description = value
	case 'U':
		rec.URL = value
	case 'L':
		rec.License = value
	case 'm':
		rec.Maintainer = value
	case 'D':
		rec.Depends, err = pkginfo.ParseDependencies(value)
	case 'p':
		rec.Provides, err = pkginfo.ParseProvides(value)
	default:
		if rec.Extra == nil {
			rec.Extra = make(map[string][]string)
		}
		key := string(letter)
		rec.Extra[key] = append(rec.Extra[key], value)
	}
	return err
}

// check reports why rec could not be written to an index and read back
func check(rec Record) error {
	for _, f := range []struct {
		letter string
		value  string
	}{
		{"C", rec.Checksum},
		{"P", rec.Name},
		{"V", rec.Version},
		{"A", rec.Arch},
	} {
		if f.value == "" {
			return fmt.Errorf("%w: %s", models.ErrMissingField, f.letter)
		}
	}

	if _, err := utils.DecodeIndexChecksum(rec.Checksum); err != nil {
		return err
	}
	if !pkginfo.ValidName(rec.Name) {
		return fmt.Errorf("invalid package name %q", rec.Name)
	}
	if _, err := version.Parse(rec.Version); err != nil {
		return err
	}
	if rec.Size < 0 || rec.InstalledSize < 0 {
		return fmt.Errorf("negative size")
	}
	for _, v := range []string{rec.Arch, rec.Description, rec.URL, rec.License, rec.Maintainer} {
		if strings.ContainsAny(v, "\r\n") {
			return fmt.Errorf("field value %q spans lines", v)
		}
	}
	if strings.ContainsAny(rec.Arch, " \t") {
		return fmt.Errorf("invalid architecture %q", rec.Arch)
	}
	for _, d := range rec.Depends {
		if parsed, err := pkginfo.ParseDependency(d.String()); err != nil || parsed != d {
			return fmt.Errorf("%w: %q", models.ErrInvalidDependencySyntax, d.String())
		}
	}
	for _, p := range rec.Provides {
		if parsed, err := pkginfo.ParseProvide(p.String()); err != nil || parsed != p {
			return fmt.Errorf("%w: %q", models.ErrInvalidDependencySyntax, p.String())
		}
	}
	for letter, values := range rec.Extra {
		if len(letter) != 1 || strings.Contains(knownLetters, letter) || letter == ":" || letter == "\n" || letter == "\r" {
			return fmt.Errorf("invalid field letter %q", letter)
		}
		for _, v := range values {
			if strings.ContainsAny(v, "\r\n") {
				return fmt.Errorf("field %s value spans lines", letter)
			}
		}
	}
	return nil
}

// writeRecord renders one record followed by a blank line
func writeRecord(buf *bytes.Buffer, rec Record) {
	fmt.Fprintf(buf, "C:%s\n", rec.Checksum)
	fmt.Fprintf(buf, "P:%s\n", rec.Name)
	fmt.Fprintf(buf, "V:%s\n", rec.Version)
	fmt.Fprintf(buf, "A:%s\n", rec.Arch)
	fmt.Fprintf(buf, "S:%d\n", rec.Size)
	fmt.Fprintf(buf, "I:%d\n", rec.InstalledSize)

	if rec.Description != "" {
		fmt.Fprintf(buf, "T:%s\n", rec.Description)
	}
	if rec.URL != "" {
		fmt.Fprintf(buf, "U:%s\n", rec.URL)
	}
	if rec.License != "" {
		fmt.Fprintf(buf, "L:%s\n", rec.License)
	}
	if rec.Maintainer != "" {
		fmt.Fprintf(buf, "m:%s\n", rec.Maintainer)
	}
	if len(rec.Depends) > 0 {
		deps := make([]string, len(rec.Depends))
		for i, d := range rec.Depends {
			deps[i] = d.String()
		}
		fmt.Fprintf(buf, "D:%s\n", strings.Join(deps, " "))
	}
	if len(rec.Provides) > 0 {
		provides := make([]string, len(rec.Provides))
		for i, p := range rec.Provides {
			provides[i] = p.String()
		}
		fmt.Fprintf(buf, "p:%s\n", strings.Join(provides, " "))
	}

	letters := make([]string, 0, len(rec.Extra))
	for letter := range rec.Extra {
		letters = append(letters, letter)
	}
	sort.Strings(letters)
	for _, letter := range letters {
		for _, v := range rec.Extra[letter] {
			fmt.Fprintf(buf, "%s:%s\n", letter, v)
		}
	}

	buf.WriteString("\n")
}
