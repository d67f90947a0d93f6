package container

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ralt/apkkit/internal/models"
	"github.com/ralt/apkkit/internal/pkginfo"
)

// Package is a fully loaded container. It is never modified in place; edits
// build a new Package with FromSegments.
type Package struct {
	Metadata   models.Metadata
	Segments   []*Segment
	Signatures []models.Signature

	// Scripts are the control entries other than the PKGINFO document, in
	// archive order.
	Scripts []Entry
}

// Control returns the control segment
func (p *Package) Control() *Segment {
	return p.find(KindControl)
}

// Data returns the data segment
func (p *Package) Data() *Segment {
	return p.find(KindData)
}

func (p *Package) find(kind Kind) *Segment {
	for _, s := range p.Segments {
		if s.kind == kind {
			return s
		}
	}
	return nil
}

// Bytes encodes the package
func (p *Package) Bytes() []byte {
	return Encode(p.Segments)
}

// WriteTo writes the encoded package to w
func (p *Package) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for _, s := range p.Segments {
		n, err := w.Write(s.compressed)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Encode concatenates the compressed segments in order
func Encode(segments []*Segment) []byte {
	size := 0
	for _, s := range segments {
		size += len(s.compressed)
	}
	out := make([]byte, 0, size)
	for _, s := range segments {
		out = append(out, s.compressed...)
	}
	return out
}

// Decode reads a complete package from r
func Decode(r io.Reader) (*Package, error) {
	reader := NewReader(r)
	var segments []*Segment
	for {
		seg, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		segments = append(segments, seg)
	}
	return assemble(segments)
}

// DecodeBytes decodes a package held in memory
func DecodeBytes(data []byte) (*Package, error) {
	return Decode(bytes.NewReader(data))
}

// FromSegments builds a package from already constructed segments, enforcing
// the same ordering rules as Decode.
func FromSegments(segments []*Segment) (*Package, error) {
	var o order
	for _, s := range segments {
		if err := o.accept(s.kind); err != nil {
			return nil, &models.PackageError{Type: models.ErrFormat, Segment: s.kind.String(), Err: err}
		}
	}
	if err := o.finish(); err != nil {
		return nil, models.NewError(err)
	}
	return assemble(append([]*Segment(nil), segments...))
}

func assemble(segments []*Segment) (*Package, error) {
	pkg := &Package{Segments: segments}

	for _, seg := range segments {
		switch seg.kind {
		case KindSignature:
			sigs, err := readSignatures(seg)
			if err != nil {
				return nil, err
			}
			pkg.Signatures = append(pkg.Signatures, sigs...)
		case KindControl:
			if err := pkg.readControl(seg); err != nil {
				return nil, err
			}
		}
	}

	return pkg, nil
}

func readSignatures(seg *Segment) ([]models.Signature, error) {
	entries, err := ReadEntries(seg.content)
	if err != nil {
		return nil, segmentError(seg, err)
	}

	var sigs []models.Signature
	for _, e := range entries {
		if !strings.HasPrefix(e.Name, SignaturePrefix) {
			continue
		}
		sig := ParseSignatureName(e.Name)
		sig.Raw = e.Content
		sigs = append(sigs, sig)
	}
	return sigs, nil
}

func (p *Package) readControl(seg *Segment) error {
	entries, err := ReadEntries(seg.content)
	if err != nil {
		return segmentError(seg, err)
	}

	found := false
	for _, e := range entries {
		if e.Name != pkginfo.FileName {
			p.Scripts = append(p.Scripts, e)
			continue
		}
		if found {
			return segmentError(seg, fmt.Errorf("%w: duplicate %s", models.ErrInvalidMetadata, pkginfo.FileName))
		}
		found = true

		meta, err := pkginfo.Parse(e.Content)
		if err != nil {
			return err
		}
		p.Metadata = meta
	}
	return nil
}

func segmentError(seg *Segment, err error) error {
	switch {
	case errors.Is(err, io.ErrUnexpectedEOF):
		err = fmt.Errorf("%w: %v", models.ErrTruncatedStream, err)
	case models.Classify(err) == models.ErrFileOp:
		err = fmt.Errorf("%w: corrupt tar stream: %v", models.ErrBadCompression, err)
	}
	return &models.PackageError{
		Type:    models.Classify(err),
		Segment: seg.kind.String(),
		Err:     err,
	}
}
