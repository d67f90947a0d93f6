package utils

import (
	"bytes"
	"crypto/sha1"
	"crypto/sha256"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDetectCompression(t *testing.T) {
	tests := []struct {
		name string
		want Compression
		ok   bool
	}{
		{"root.tar", CompressionNone, true},
		{"root.tar.gz", CompressionGzip, true},
		{"ROOT.TGZ", CompressionGzip, true},
		{"root.tar.xz", CompressionXZ, true},
		{"root.tar.zst", CompressionZstd, true},
		{"root.zip", CompressionNone, false},
		{"foo-1.0.apk", CompressionNone, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := DetectCompression(tt.name)
			if got != tt.want || ok != tt.ok {
				t.Errorf("DetectCompression(%q) = %s, %v; want %s, %v", tt.name, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestCompressionRoundTrip(t *testing.T) {
	payload := []byte(strings.Repeat("staged tree payload\n", 512))

	for _, c := range []Compression{CompressionNone, CompressionGzip, CompressionXZ, CompressionZstd} {
		t.Run(c.String(), func(t *testing.T) {
			var buf bytes.Buffer
			w, err := NewCompressor(&buf, c)
			if err != nil {
				t.Fatalf("NewCompressor failed: %v", err)
			}
			if _, err := w.Write(payload); err != nil {
				t.Fatalf("Write failed: %v", err)
			}
			if err := w.Close(); err != nil {
				t.Fatalf("Close failed: %v", err)
			}

			r, err := NewDecompressor(&buf, c)
			if err != nil {
				t.Fatalf("NewDecompressor failed: %v", err)
			}
			defer r.Close()

			got, err := io.ReadAll(r)
			if err != nil {
				t.Fatalf("ReadAll failed: %v", err)
			}
			if !bytes.Equal(got, payload) {
				t.Error("payload changed in round trip")
			}
		})
	}
}

func TestIndexChecksum(t *testing.T) {
	sha1Sum := sha1.Sum([]byte("hello"))
	sha256Sum := sha256.Sum256([]byte("hello"))

	q1 := EncodeIndexChecksum(sha1Sum[:])
	if !strings.HasPrefix(q1, "Q1") {
		t.Errorf("SHA1 checksum %q lacks Q1 prefix", q1)
	}
	q2 := EncodeIndexChecksum(sha256Sum[:])
	if !strings.HasPrefix(q2, "Q2") {
		t.Errorf("SHA256 checksum %q lacks Q2 prefix", q2)
	}

	for _, s := range []string{q1, q2} {
		if _, err := DecodeIndexChecksum(s); err != nil {
			t.Errorf("DecodeIndexChecksum(%q) failed: %v", s, err)
		}
	}

	for _, bad := range []string{"", "Z1abc", "Q1!!!", "Q2" + q1[2:]} {
		if _, err := DecodeIndexChecksum(bad); err == nil {
			t.Errorf("DecodeIndexChecksum(%q) should fail", bad)
		}
	}

	sum, err := ChecksumReader(strings.NewReader("hello"))
	if err != nil {
		t.Fatalf("ChecksumReader failed: %v", err)
	}
	got, err := sum.Q1()
	if err != nil {
		t.Fatalf("Q1 failed: %v", err)
	}
	if got != q1 || sum.Size != 5 {
		t.Errorf("Q1 = %s size %d, want %s size 5", got, sum.Size, q1)
	}
}

func TestShouldCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.apk")
	dst := filepath.Join(dir, "out", "dst.apk")

	if err := WriteFile(src, []byte("package"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	if copyNeeded, err := ShouldCopyFile(src, src); err != nil || copyNeeded {
		t.Errorf("same path: copy=%v err=%v", copyNeeded, err)
	}
	if copyNeeded, err := ShouldCopyFile(src, dst); err != nil || !copyNeeded {
		t.Errorf("missing destination: copy=%v err=%v", copyNeeded, err)
	}

	if err := CopyFile(src, dst); err != nil {
		t.Fatalf("CopyFile failed: %v", err)
	}
	if copyNeeded, err := ShouldCopyFile(src, dst); err != nil || copyNeeded {
		t.Errorf("identical destination: copy=%v err=%v", copyNeeded, err)
	}

	if err := WriteFileAtomic(dst, []byte("pockage"), 0644); err != nil {
		t.Fatalf("WriteFileAtomic failed: %v", err)
	}
	if copyNeeded, err := ShouldCopyFile(src, dst); err != nil || !copyNeeded {
		t.Errorf("same size, different content: copy=%v err=%v", copyNeeded, err)
	}

	entries, err := os.ReadDir(filepath.Dir(dst))
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("WriteFileAtomic left %d files behind", len(entries))
	}

	if _, err := ShouldCopyFile(filepath.Join(dir, "missing"), dst); err == nil {
		t.Error("missing source should fail")
	}
}
