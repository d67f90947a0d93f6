// Package verify certifies decoded packages. Integrity and signature checks
// are independent; callers run whichever their policy requires.
package verify

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ralt/apkkit/internal/container"
	"github.com/ralt/apkkit/internal/models"
	"github.com/ralt/apkkit/internal/signer"
)

// DataHash returns the checksum declared in metadata for a data segment
// holding content.
func DataHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Integrity recomputes the data segment checksum and compares it with the
// declared one, then recomputes the control segment digest.
func Integrity(pkg *container.Package) error {
	data := pkg.Data()
	control := pkg.Control()
	if control == nil {
		return fail(pkg, models.ErrFormat, models.ErrMissingControlSegment)
	}
	if data == nil {
		return fail(pkg, models.ErrFormat, models.ErrMissingDataSegment)
	}

	declared := strings.ToLower(pkg.Metadata.DataHash)
	if declared == "" {
		return fail(pkg, models.ErrIntegrity, fmt.Errorf("%w: package declares no data checksum", models.ErrDataChecksumMismatch))
	}
	if actual := DataHash(data.Content()); actual != declared {
		return fail(pkg, models.ErrIntegrity, fmt.Errorf("%w: declared %s, computed %s", models.ErrDataChecksumMismatch, declared, actual))
	}

	if !control.Intact() {
		return fail(pkg, models.ErrIntegrity, models.ErrControlDigestMismatch)
	}
	return nil
}

// Signature checks the package signatures against keys. One signature from a
// trusted key is enough.
func Signature(pkg *container.Package, keys signer.Keyring) error {
	control := pkg.Control()
	if control == nil {
		return fail(pkg, models.ErrFormat, models.ErrMissingControlSegment)
	}
	if err := Signatures(pkg.Signatures, control.Digest(), keys); err != nil {
		return fail(pkg, models.ErrIntegrity, err)
	}
	return nil
}

// Signatures verifies sigs over digest. It returns ErrSignatureInvalid when a
// trusted key was found but none of its signatures verified, and
// ErrNoMatchingKey when no signature names a trusted key.
func Signatures(sigs []models.Signature, digest []byte, keys signer.Keyring) error {
	if len(sigs) == 0 {
		return fmt.Errorf("%w: no signatures", models.ErrNoMatchingKey)
	}

	var invalid []error
	for _, sig := range sigs {
		key, ok := keys.Lookup(sig.KeyID)
		if !ok {
			logrus.Debugf("No trusted key for signature %s.%s", sig.Algorithm, sig.KeyID)
			continue
		}
		err := key.Verify(sig.Algorithm, digest, sig.Raw)
		if err == nil {
			logrus.Debugf("Signature %s.%s verified", sig.Algorithm, sig.KeyID)
			return nil
		}
		invalid = append(invalid, fmt.Errorf("%s: %w", sig.KeyID, err))
	}

	if len(invalid) > 0 {
		return fmt.Errorf("%w: %w", models.ErrSignatureInvalid, errors.Join(invalid...))
	}
	return fmt.Errorf("%w: signed by %s", models.ErrNoMatchingKey, keyIDs(sigs))
}

func keyIDs(sigs []models.Signature) string {
	ids := make([]string, len(sigs))
	for i, sig := range sigs {
		ids[i] = sig.KeyID
		if ids[i] == "" {
			ids[i] = "(unnamed)"
		}
	}
	return strings.Join(ids, ", ")
}

func fail(pkg *container.Package, t models.ErrorType, err error) error {
	return &models.PackageError{Type: t, Package: pkg.Metadata.Name, Err: err}
}
