package container

import (
	"archive/tar"
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/ralt/apkkit/internal/models"
	"github.com/ralt/apkkit/internal/pkginfo"
)

// SignaturePrefix starts the name of every signature entry
const SignaturePrefix = ".SIGN."

// Epoch is the modification time stamped on every entry this package writes
var Epoch = time.Unix(0, 0)

// Entry is one file of a signature or control segment
type Entry struct {
	Name    string
	Mode    int64
	Content []byte
}

// Header returns the fixed tar header used for name. Ownership and times are
// constant so identical inputs always produce identical archives.
func Header(name string, mode int64, size int64) *tar.Header {
	return &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     name,
		Mode:     mode,
		Size:     size,
		ModTime:  Epoch,
		Uname:    "root",
		Gname:    "root",
		Format:   tar.FormatUSTAR,
	}
}

// WriteTar writes entries in the given order. With terminate false the
// end-of-archive blocks are left out, which lets the stream be followed by
// the next segment's tar.
func WriteTar(entries []Entry, terminate bool) ([]byte, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	for _, e := range entries {
		mode := e.Mode
		if mode == 0 {
			mode = 0644
		}
		if err := tw.WriteHeader(Header(e.Name, mode, int64(len(e.Content)))); err != nil {
			return nil, fmt.Errorf("failed to write %s header: %w", e.Name, err)
		}
		if _, err := tw.Write(e.Content); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", e.Name, err)
		}
	}

	if terminate {
		if err := tw.Close(); err != nil {
			return nil, err
		}
	} else if err := tw.Flush(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// ReadEntries returns the regular files of a tar stream in archive order.
// Streams with or without end-of-archive blocks are accepted.
func ReadEntries(content []byte) ([]Entry, error) {
	var entries []Entry
	tr := tar.NewReader(bytes.NewReader(content))

	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}

		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Name: header.Name, Mode: header.Mode, Content: data})
	}

	return entries, nil
}

// classify determines a segment's kind from its first tar entry
func classify(content []byte) Kind {
	header, err := tar.NewReader(bytes.NewReader(content)).Next()
	if err != nil {
		return KindData
	}
	switch {
	case strings.HasPrefix(header.Name, SignaturePrefix):
		return KindSignature
	case header.Name == pkginfo.FileName:
		return KindControl
	default:
		return KindData
	}
}

// SignatureEntryName returns ".SIGN.<algorithm>.<keyid>"
func SignatureEntryName(sig models.Signature) string {
	return SignaturePrefix + sig.Algorithm + "." + sig.KeyID
}

// ParseSignatureName splits a signature entry name. Names without a key id
// are kept with an empty KeyID so verification reports no matching key.
func ParseSignatureName(name string) models.Signature {
	rest := strings.TrimPrefix(name, SignaturePrefix)
	algorithm, keyID, _ := strings.Cut(rest, ".")
	return models.Signature{Algorithm: algorithm, KeyID: keyID}
}

// NewSignatureSegment stores sig in a segment of its own
func NewSignatureSegment(sig models.Signature) (*Segment, error) {
	if sig.Algorithm == "" || sig.KeyID == "" {
		return nil, errors.New("signature needs an algorithm and a key id")
	}
	content, err := WriteTar([]Entry{{Name: SignatureEntryName(sig), Content: sig.Raw}}, false)
	if err != nil {
		return nil, err
	}
	return NewSegment(KindSignature, content)
}

// NewControlSegment writes the PKGINFO document followed by scripts sorted by
// name.
func NewControlSegment(info []byte, scripts []Entry) (*Segment, error) {
	sorted := append([]Entry(nil), scripts...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	entries := make([]Entry, 0, len(sorted)+1)
	entries = append(entries, Entry{Name: pkginfo.FileName, Content: info})
	for i, s := range sorted {
		if s.Name == pkginfo.FileName || strings.HasPrefix(s.Name, SignaturePrefix) {
			return nil, models.Errorf(models.ErrInvalidFile, "reserved control entry name %q", s.Name)
		}
		if i > 0 && sorted[i-1].Name == s.Name {
			return nil, models.Errorf(models.ErrInvalidFile, "duplicate control entry %q", s.Name)
		}
		if s.Mode == 0 {
			s.Mode = 0755
		}
		entries = append(entries, s)
	}

	content, err := WriteTar(entries, false)
	if err != nil {
		return nil, err
	}
	return NewSegment(KindControl, content)
}
