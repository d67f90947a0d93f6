// Package builder assembles packages from metadata and payload files. Output
// depends only on the inputs: entries are sorted, headers are fixed and the
// compression level is constant.
package builder

import (
	"archive/tar"
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ralt/apkkit/internal/container"
	"github.com/ralt/apkkit/internal/models"
	"github.com/ralt/apkkit/internal/pkginfo"
	"github.com/ralt/apkkit/internal/signer"
)

// ChecksumRecord is the PAX record apk-tools uses for per-file checksums
const ChecksumRecord = "APK-TOOLS.checksum.SHA1"

// File is one payload entry. Path is relative and slash separated.
type File struct {
	Path string
	// Mode holds permission bits; zero means 0644 (0777 for symlinks).
	Mode     int64
	Content  []byte
	Linkname string
}

type options struct {
	signers []signer.Signer
	scripts []container.Entry
}

// Option configures Build
type Option func(*options)

// WithSigner adds a signature segment made with s. Several signers may be
// given to sign with an old and a new key during rotation.
func WithSigner(s signer.Signer) Option {
	return func(o *options) {
		if s != nil {
			o.signers = append(o.signers, s)
		}
	}
}

// WithScripts adds control scripts such as ".post-install"
func WithScripts(scripts ...container.Entry) Option {
	return func(o *options) {
		o.scripts = append(o.scripts, scripts...)
	}
}

// FileName returns the conventional file name for a package
func FileName(meta models.Metadata) string {
	return fmt.Sprintf("%s-%s.apk", meta.Name, meta.Version)
}

// Build creates a package. The data checksum in the returned metadata is
// computed here; any value in meta.DataHash is replaced.
func Build(meta models.Metadata, files []File, opts ...Option) (*container.Package, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	meta = meta.Clone()
	meta.DataHash = ""
	if err := pkginfo.Validate(meta); err != nil {
		return nil, invalidMetadata(meta, err)
	}
	if len(files) == 0 {
		return nil, &models.PackageError{Type: models.ErrValidation, Package: meta.Name, Err: models.ErrEmptyDataSet}
	}
	if len(meta.Triggers) > 0 && !hasScript(o.scripts, ".trigger") {
		logrus.Warnf("%s declares triggers but ships no .trigger script", meta.Name)
	}

	content, err := dataTar(files)
	if err != nil {
		return nil, withPackage(err, meta.Name)
	}
	data, err := container.NewSegment(container.KindData, content)
	if err != nil {
		return nil, err
	}
	meta.DataHash = data.DigestHex()

	control, err := container.NewControlSegment(pkginfo.Serialize(meta), o.scripts)
	if err != nil {
		return nil, withPackage(err, meta.Name)
	}

	segments := make([]*container.Segment, 0, len(o.signers)+2)
	for _, s := range o.signers {
		raw, err := s.SignDigest(control.Digest())
		if err != nil {
			return nil, &models.PackageError{Type: models.ErrSigning, Package: meta.Name, Err: err}
		}
		seg, err := container.NewSignatureSegment(models.Signature{
			KeyID:     s.KeyID(),
			Algorithm: s.Algorithm(),
			Raw:       raw,
		})
		if err != nil {
			return nil, &models.PackageError{Type: models.ErrSigning, Package: meta.Name, Err: err}
		}
		segments = append(segments, seg)
	}
	segments = append(segments, control, data)

	logrus.Debugf("Built %s: control %d bytes, data %d bytes, %d signature(s)",
		FileName(meta), control.Size(), data.Size(), len(o.signers))

	return container.FromSegments(segments)
}

func hasScript(scripts []container.Entry, name string) bool {
	for _, s := range scripts {
		if s.Name == name {
			return true
		}
	}
	return false
}

func invalidMetadata(meta models.Metadata, err error) error {
	if errors.Is(err, models.ErrInvalidMetadata) {
		return err
	}
	return &models.PackageError{
		Type:    models.ErrValidation,
		Package: meta.Name,
		Err:     fmt.Errorf("%w: %w", models.ErrInvalidMetadata, err),
	}
}

func withPackage(err error, name string) error {
	var pe *models.PackageError
	if errors.As(err, &pe) && pe.Package == "" {
		pe.Package = name
	}
	return err
}

// dataTar archives files sorted by path, with parent directories added
func dataTar(files []File) ([]byte, error) {
	byPath := make(map[string]File, len(files))
	for _, f := range files {
		if err := checkPath(f.Path); err != nil {
			return nil, err
		}
		if _, dup := byPath[f.Path]; dup {
			return nil, models.Errorf(models.ErrInvalidFile, "duplicate path %q", f.Path)
		}
		byPath[f.Path] = f
	}

	dirs := make(map[string]bool)
	for p := range byPath {
		for dir := path.Dir(p); dir != "."; dir = path.Dir(dir) {
			if _, isFile := byPath[dir]; isFile {
				return nil, models.Errorf(models.ErrInvalidFile, "%q is both a file and the parent of %q", dir, p)
			}
			dirs[dir] = true
		}
	}

	names := make([]string, 0, len(byPath)+len(dirs))
	for p := range byPath {
		names = append(names, p)
	}
	for d := range dirs {
		names = append(names, d)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, name := range names {
		var header *tar.Header
		var body []byte
		if dirs[name] {
			header = dirHeader(name)
		} else {
			f := byPath[name]
			header = fileHeader(f)
			if header.Typeflag == tar.TypeReg {
				body = f.Content
			}
		}
		if err := tw.WriteHeader(header); err != nil {
			return nil, fmt.Errorf("failed to write header for %s: %w", name, err)
		}
		if _, err := tw.Write(body); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", name, err)
		}
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func checkPath(p string) error {
	switch {
	case p == "" || p == ".":
		return models.Errorf(models.ErrInvalidFile, "empty path")
	case strings.HasPrefix(p, "/"):
		return models.Errorf(models.ErrInvalidFile, "absolute path %q", p)
	case path.Clean(p) != p:
		return models.Errorf(models.ErrInvalidFile, "path %q is not clean", p)
	case p == ".." || strings.HasPrefix(p, "../"):
		return models.Errorf(models.ErrInvalidFile, "path %q escapes the package root", p)
	case p == pkginfo.FileName || strings.HasPrefix(p, container.SignaturePrefix):
		return models.Errorf(models.ErrInvalidFile, "path %q is reserved for control entries", p)
	}
	return nil
}

func dirHeader(name string) *tar.Header {
	h := baseHeader(name + "/")
	h.Typeflag = tar.TypeDir
	h.Mode = 0755
	return h
}

func fileHeader(f File) *tar.Header {
	h := baseHeader(f.Path)
	h.Mode = f.Mode & 07777

	if f.Linkname != "" {
		h.Typeflag = tar.TypeSymlink
		h.Linkname = f.Linkname
		if h.Mode == 0 {
			h.Mode = 0777
		}
		return h
	}

	if h.Mode == 0 {
		h.Mode = 0644
	}
	sum := sha1.Sum(f.Content)
	h.Typeflag = tar.TypeReg
	h.Size = int64(len(f.Content))
	h.PAXRecords = map[string]string{ChecksumRecord: hex.EncodeToString(sum[:])}
	return h
}

func baseHeader(name string) *tar.Header {
	return &tar.Header{
		Name:    name,
		ModTime: container.Epoch,
		Uname:   "root",
		Gname:   "root",
		Format:  tar.FormatPAX,
	}
}
