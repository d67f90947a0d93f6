package utils

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
)

// Checksum contains the checksums apk indexes use for a file
type Checksum struct {
	SHA1   string
	SHA256 string
	Size   int64
}

// CalculateChecksums calculates all checksums for a file in a single pass
func CalculateChecksums(path string) (*Checksum, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return ChecksumReader(f)
}

// ChecksumReader streams r through every hash
func ChecksumReader(r io.Reader) (*Checksum, error) {
	sha1Hash := sha1.New()
	sha256Hash := sha256.New()

	// Use MultiWriter to calculate all hashes at once
	n, err := io.Copy(io.MultiWriter(sha1Hash, sha256Hash), r)
	if err != nil {
		return nil, err
	}

	return &Checksum{
		SHA1:   hex.EncodeToString(sha1Hash.Sum(nil)),
		SHA256: hex.EncodeToString(sha256Hash.Sum(nil)),
		Size:   n,
	}, nil
}

// Q1 returns the SHA1 in the "Q1" + base64 form used by APKINDEX
func (c *Checksum) Q1() (string, error) {
	sum, err := hex.DecodeString(c.SHA1)
	if err != nil {
		return "", fmt.Errorf("failed to decode SHA1: %w", err)
	}
	return EncodeIndexChecksum(sum), nil
}

// EncodeIndexChecksum encodes a SHA1 ("Q1") or SHA256 ("Q2") sum
func EncodeIndexChecksum(sum []byte) string {
	prefix := "Q1"
	if len(sum) == sha256.Size {
		prefix = "Q2"
	}
	return prefix + base64.StdEncoding.EncodeToString(sum)
}

// DecodeIndexChecksum reverses EncodeIndexChecksum
func DecodeIndexChecksum(s string) ([]byte, error) {
	var want int
	switch {
	case strings.HasPrefix(s, "Q1"):
		want = sha1.Size
	case strings.HasPrefix(s, "Q2"):
		want = sha256.Size
	default:
		return nil, fmt.Errorf("unknown checksum prefix in %q", s)
	}

	sum, err := base64.StdEncoding.DecodeString(s[2:])
	if err != nil {
		return nil, fmt.Errorf("invalid checksum %q: %w", s, err)
	}
	if len(sum) != want {
		return nil, fmt.Errorf("checksum %q has %d bytes, want %d", s, len(sum), want)
	}
	return sum, nil
}
