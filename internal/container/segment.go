package container

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/klauspost/compress/gzip"
)

// CompressionLevel is the fixed gzip level used for every segment this
// package writes.
const CompressionLevel = gzip.BestCompression

// Kind identifies the role of a segment inside a container
type Kind int

const (
	KindSignature Kind = iota
	KindControl
	KindData
)

// String returns the string representation of Kind
func (k Kind) String() string {
	switch k {
	case KindSignature:
		return "signature"
	case KindControl:
		return "control"
	case KindData:
		return "data"
	default:
		return "unknown"
	}
}

// Segment is one independently compressed block of a container. Segments are
// immutable: the digest of the uncompressed content is computed once, when the
// segment is created or decoded.
type Segment struct {
	kind       Kind
	compressed []byte
	content    []byte
	digest     [sha256.Size]byte
}

// NewSegment compresses content into a new segment
func NewSegment(kind Kind, content []byte) (*Segment, error) {
	var buf bytes.Buffer
	gw, err := gzip.NewWriterLevel(&buf, CompressionLevel)
	if err != nil {
		return nil, err
	}
	if _, err := gw.Write(content); err != nil {
		return nil, fmt.Errorf("failed to compress %s segment: %w", kind, err)
	}
	if err := gw.Close(); err != nil {
		return nil, fmt.Errorf("failed to compress %s segment: %w", kind, err)
	}

	return newSegment(kind, buf.Bytes(), append([]byte(nil), content...)), nil
}

func newSegment(kind Kind, compressed, content []byte) *Segment {
	return &Segment{
		kind:       kind,
		compressed: compressed,
		content:    content,
		digest:     sha256.Sum256(content),
	}
}

// Kind returns the segment kind
func (s *Segment) Kind() Kind {
	return s.kind
}

// Compressed returns the segment's gzip member exactly as it appears in the
// container. Callers must not modify it.
func (s *Segment) Compressed() []byte {
	return s.compressed
}

// Content returns the uncompressed segment content. Callers must not modify
// it; Intact reports whether they did.
func (s *Segment) Content() []byte {
	return s.content
}

// Size returns the uncompressed size in bytes
func (s *Segment) Size() int64 {
	return int64(len(s.content))
}

// Digest returns the SHA-256 of the uncompressed content as computed when the
// segment was created.
func (s *Segment) Digest() []byte {
	d := s.digest
	return d[:]
}

// DigestHex returns Digest in lowercase hex
func (s *Segment) DigestHex() string {
	return hex.EncodeToString(s.digest[:])
}

// Intact recomputes the content digest and compares it with the cached one
func (s *Segment) Intact() bool {
	return sha256.Sum256(s.content) == s.digest
}

// Equal reports whether s and o have the same kind and bytes
func (s *Segment) Equal(o *Segment) bool {
	return s.kind == o.kind &&
		s.digest == o.digest &&
		bytes.Equal(s.compressed, o.compressed) &&
		bytes.Equal(s.content, o.content)
}
