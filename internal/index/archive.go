package index

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ralt/apkkit/internal/container"
	"github.com/ralt/apkkit/internal/models"
	"github.com/ralt/apkkit/internal/signer"
	"github.com/ralt/apkkit/internal/verify"
)

// Index archive entry names
const (
	EntryDescription = "DESCRIPTION"
	EntryFormat      = "FORMAT"
	EntryIndex       = "APKINDEX"
)

// FileName is the conventional name of an index archive
const FileName = "APKINDEX.tar.gz"

// Archive is a split index archive: optional signatures plus the index
// segment they cover.
type Archive struct {
	Signatures []models.Signature
	Index      *container.Segment
}

// ReadArchive splits index bytes into signatures and the index segment
func ReadArchive(data []byte) (*Archive, error) {
	r := container.NewRawReader(bytes.NewReader(data))
	archive := &Archive{}

	for {
		seg, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, malformed(err)
		}

		if archive.Index != nil {
			return nil, models.Errorf(models.ErrMalformedIndex, "unexpected %s segment after the index", seg.Kind())
		}
		if seg.Kind() != container.KindSignature {
			archive.Index = seg
			continue
		}

		entries, err := container.ReadEntries(seg.Content())
		if err != nil {
			return nil, malformed(err)
		}
		for _, e := range entries {
			sig := container.ParseSignatureName(e.Name)
			sig.Raw = e.Content
			archive.Signatures = append(archive.Signatures, sig)
		}
	}

	if archive.Index == nil {
		return nil, models.Errorf(models.ErrMalformedIndex, "no index segment")
	}
	return archive, nil
}

// Bytes encodes the archive, signatures first
func (a *Archive) Bytes() ([]byte, error) {
	var segments []*container.Segment
	for _, sig := range a.Signatures {
		seg, err := container.NewSignatureSegment(sig)
		if err != nil {
			return nil, err
		}
		segments = append(segments, seg)
	}
	segments = append(segments, a.Index)
	return container.Encode(segments), nil
}

// Parse decodes index bytes. Signatures, when present, are skipped; use
// Verify to check them.
func Parse(data []byte) (*Repository, error) {
	archive, err := ReadArchive(data)
	if err != nil {
		return nil, err
	}

	entries, err := container.ReadEntries(archive.Index.Content())
	if err != nil {
		return nil, malformed(err)
	}

	repo := New("")
	var text []byte
	found := false
	for _, e := range entries {
		switch e.Name {
		case EntryDescription:
			repo.description = string(e.Content)
		case EntryFormat:
			repo.format = strings.TrimSpace(string(e.Content))
		case EntryIndex:
			if found {
				return nil, models.Errorf(models.ErrMalformedIndex, "duplicate %s entry", EntryIndex)
			}
			text = e.Content
			found = true
		default:
			logrus.Debugf("Ignoring index entry %s", e.Name)
		}
	}
	if !found {
		return nil, models.Errorf(models.ErrMalformedIndex, "no %s entry", EntryIndex)
	}
	if repo.format != FormatVersion {
		return nil, &models.PackageError{
			Type: models.ErrFormat,
			Err:  fmt.Errorf("%w: %w: %q", models.ErrMalformedIndex, models.ErrUnsupportedFormat, repo.format),
		}
	}

	records, err := ParseRecords(text)
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		key := rec.Key()
		if _, dup := repo.records[key]; dup {
			return nil, &models.PackageError{
				Type:    models.ErrFormat,
				Package: rec.Name,
				Err:     fmt.Errorf("%w: %s", models.ErrDuplicateKey, key),
			}
		}
		repo.records[key] = rec
	}

	return repo, nil
}

// Serialize renders the repository as an unsigned index archive
func Serialize(repo *Repository) ([]byte, error) {
	seg, err := indexSegment(repo)
	if err != nil {
		return nil, err
	}
	return seg.Compressed(), nil
}

func indexSegment(repo *Repository) (*container.Segment, error) {
	content, err := container.WriteTar([]container.Entry{
		{Name: EntryDescription, Content: []byte(repo.description)},
		{Name: EntryFormat, Content: []byte(repo.format)},
		{Name: EntryIndex, Content: repo.APKINDEX()},
	}, true)
	if err != nil {
		return nil, err
	}
	return container.NewSegment(container.KindData, content)
}

// Sign prepends a signature made with s over the index segment digest.
// Existing signatures are kept so several keys can sign one index.
func Sign(data []byte, s signer.Signer) ([]byte, error) {
	archive, err := ReadArchive(data)
	if err != nil {
		return nil, err
	}

	raw, err := s.SignDigest(archive.Index.Digest())
	if err != nil {
		return nil, &models.PackageError{Type: models.ErrSigning, Err: err}
	}
	sig := models.Signature{KeyID: s.KeyID(), Algorithm: s.Algorithm(), Raw: raw}
	archive.Signatures = append([]models.Signature{sig}, archive.Signatures...)

	return archive.Bytes()
}

// Verify checks the index signatures against keys. One valid signature from
// a trusted key is enough.
func Verify(data []byte, keys signer.Keyring) error {
	archive, err := ReadArchive(data)
	if err != nil {
		return err
	}
	if err := verify.Signatures(archive.Signatures, archive.Index.Digest(), keys); err != nil {
		return models.NewError(err)
	}
	return nil
}

func malformed(err error) error {
	var pe *models.PackageError
	if errors.As(err, &pe) {
		return &models.PackageError{
			Type:    models.ErrFormat,
			Segment: pe.Segment,
			Offset:  pe.Offset,
			Err:     fmt.Errorf("%w: %w", models.ErrMalformedIndex, pe.Err),
		}
	}
	return models.Errorf(models.ErrMalformedIndex, "%v", err)
}
