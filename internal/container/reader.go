package container

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"

	"github.com/ralt/apkkit/internal/models"
)

var gzipMagic = []byte{0x1f, 0x8b}

// recorder keeps a copy of every byte the gzip reader consumes. It implements
// io.ByteReader, so the decompressor reads exactly up to the end of each member.
type recorder struct {
	r   *bufio.Reader
	buf bytes.Buffer
	n   int64
}

func (c *recorder) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.buf.Write(p[:n])
	c.n += int64(n)
	return n, err
}

func (c *recorder) ReadByte() (byte, error) {
	b, err := c.r.ReadByte()
	if err == nil {
		c.buf.WriteByte(b)
		c.n++
	}
	return b, err
}

// take returns the bytes recorded since the previous call
func (c *recorder) take() []byte {
	out := append([]byte(nil), c.buf.Bytes()...)
	c.buf.Reset()
	return out
}

// order tracks the Signature* Control Data sequence
type order struct {
	state int
	seen  int
}

func (o *order) accept(kind Kind) error {
	o.seen++
	switch {
	case o.state == 0 && kind == KindSignature:
	case o.state == 0 && kind == KindControl:
		o.state = 1
	case o.state == 1 && kind == KindData:
		o.state = 2
	case o.state == 2:
		return fmt.Errorf("%w: %s segment after data segment", models.ErrSegmentOrderViolation, kind)
	default:
		return fmt.Errorf("%w: unexpected %s segment", models.ErrSegmentOrderViolation, kind)
	}
	return nil
}

func (o *order) finish() error {
	switch {
	case o.seen == 0:
		return fmt.Errorf("%w: no segments", models.ErrTruncatedStream)
	case o.state == 0:
		return models.ErrMissingControlSegment
	case o.state == 1:
		return models.ErrMissingDataSegment
	}
	return nil
}

// Reader reads the segments of a container one at a time. Only the segment
// being decoded is held in memory.
type Reader struct {
	rec       *recorder
	zr        *gzip.Reader
	order     order
	unordered bool
	err       error
}

// NewReader returns a Reader over a package stream
func NewReader(r io.Reader) *Reader {
	return &Reader{rec: &recorder{r: bufio.NewReader(r)}}
}

// NewRawReader returns a Reader that splits any sequence of gzip members into
// segments without enforcing the package segment order. Index archives are
// read this way.
func NewRawReader(r io.Reader) *Reader {
	return &Reader{rec: &recorder{r: bufio.NewReader(r)}, unordered: true}
}

// Next returns the next segment. It returns io.EOF after the data segment
// once the stream is known to be complete and free of trailing bytes.
func (r *Reader) Next() (*Segment, error) {
	if r.err != nil {
		return nil, r.err
	}
	seg, err := r.next()
	if err != nil {
		r.err = err
	}
	return seg, err
}

func (r *Reader) next() (*Segment, error) {
	start := r.rec.n

	head, err := r.rec.r.Peek(len(gzipMagic))
	if len(head) == 0 {
		if err != io.EOF {
			return nil, r.fail(err, "", start)
		}
		if r.unordered && r.order.seen > 0 {
			return nil, io.EOF
		}
		if err := r.order.finish(); err != nil {
			return nil, r.fail(err, "", start)
		}
		return nil, io.EOF
	}
	if !bytes.Equal(head, gzipMagic) {
		switch {
		case len(head) < len(gzipMagic) && head[0] == gzipMagic[0]:
			return nil, r.fail(fmt.Errorf("%w: incomplete gzip header", models.ErrTruncatedStream), "", start)
		case r.order.seen == 0:
			return nil, r.fail(fmt.Errorf("%w: not a gzip stream", models.ErrBadCompression), "", start)
		default:
			return nil, r.fail(models.ErrTrailingData, "", start)
		}
	}

	if r.zr == nil {
		r.zr, err = gzip.NewReader(r.rec)
	} else {
		err = r.zr.Reset(r.rec)
	}
	if err != nil {
		return nil, r.fail(compressionError(err), "", start)
	}
	r.zr.Multistream(false)

	content, err := io.ReadAll(r.zr)
	if err != nil {
		return nil, r.fail(compressionError(err), "", start)
	}

	seg := newSegment(classify(content), r.rec.take(), content)
	if r.unordered {
		r.order.seen++
		return seg, nil
	}
	if err := r.order.accept(seg.kind); err != nil {
		return nil, r.fail(err, seg.kind.String(), start)
	}
	return seg, nil
}

func (r *Reader) fail(err error, segment string, offset int64) error {
	return &models.PackageError{
		Type:    models.Classify(err),
		Segment: segment,
		Offset:  offset,
		Err:     err,
	}
}

// compressionError maps gzip and flate failures onto format errors. Checksum
// and header errors fall through to ErrBadCompression.
func compressionError(err error) error {
	var corrupt flate.CorruptInputError
	switch {
	case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		return fmt.Errorf("%w: %v", models.ErrTruncatedStream, err)
	case errors.As(err, &corrupt):
		return fmt.Errorf("%w: corrupt deflate data at byte %d", models.ErrBadCompression, int64(corrupt))
	default:
		return fmt.Errorf("%w: %v", models.ErrBadCompression, err)
	}
}
