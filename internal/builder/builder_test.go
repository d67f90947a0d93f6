package builder

import (
	"archive/tar"
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"io"
	"reflect"
	"testing"

	"github.com/ralt/apkkit/internal/container"
	"github.com/ralt/apkkit/internal/models"
	"github.com/ralt/apkkit/internal/signer"
)

func testFiles() []File {
	return []File{
		{Path: "usr/bin/foo", Mode: 0755, Content: []byte("#!/bin/sh\necho foo\n")},
		{Path: "etc/foo.conf", Content: []byte("key=value\n")},
		{Path: "usr/bin/foo-link", Linkname: "foo"},
		{Path: "data.txt", Content: []byte("hi")},
	}
}

func testMetadata() models.Metadata {
	return models.Metadata{
		Name:          "foo",
		Version:       "1.0",
		Architecture:  "x86_64",
		Description:   "builder test",
		InstalledSize: 4096,
		Depends:       []models.Dependency{{Name: "musl", Operator: models.OpGreaterEqual, Version: "1.2"}},
	}
}

func TestBuildIsReproducible(t *testing.T) {
	first, err := Build(testMetadata(), testFiles())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	files := testFiles()
	files[0], files[3] = files[3], files[0]
	second, err := Build(testMetadata(), files)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if !bytes.Equal(first.Bytes(), second.Bytes()) {
		t.Error("identical inputs produced different packages")
	}
}

func TestBuildRecordsDataHash(t *testing.T) {
	pkg, err := Build(testMetadata(), testFiles())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	decoded, err := container.DecodeBytes(pkg.Bytes())
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	want := testMetadata()
	want.DataHash = decoded.Data().DigestHex()
	if !reflect.DeepEqual(decoded.Metadata, want) {
		t.Errorf("metadata = %+v, want %+v", decoded.Metadata, want)
	}
	if !reflect.DeepEqual(pkg.Metadata, want) {
		t.Errorf("built metadata = %+v, want %+v", pkg.Metadata, want)
	}
}

func TestBuildDataLayout(t *testing.T) {
	pkg, err := Build(testMetadata(), testFiles())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	tr := tar.NewReader(bytes.NewReader(pkg.Data().Content()))
	var names []string
	for {
		h, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("reading data tar: %v", err)
		}
		names = append(names, h.Name)

		if h.Uname != "root" || h.Uid != 0 || h.ModTime.Unix() != 0 {
			t.Errorf("%s: header not normalised: %+v", h.Name, h)
		}
		switch h.Name {
		case "usr/bin/foo":
			if h.Mode != 0755 {
				t.Errorf("usr/bin/foo mode = %o, want 755", h.Mode)
			}
		case "data.txt":
			if h.PAXRecords[ChecksumRecord] != "c22b5f9178342609428d6f51b2c5af4c0bde6a42" {
				t.Errorf("data.txt checksum record = %q", h.PAXRecords[ChecksumRecord])
			}
		case "usr/bin/foo-link":
			if h.Typeflag != tar.TypeSymlink || h.Linkname != "foo" {
				t.Errorf("foo-link = %v -> %q, want symlink to foo", h.Typeflag, h.Linkname)
			}
		}
	}

	want := []string{"data.txt", "etc/", "etc/foo.conf", "usr/", "usr/bin/", "usr/bin/foo", "usr/bin/foo-link"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("entries = %v, want %v", names, want)
	}
}

func TestBuildScripts(t *testing.T) {
	meta := testMetadata()
	meta.Triggers = []string{"/usr/share/foo"}
	pkg, err := Build(meta, testFiles(), WithScripts(
		container.Entry{Name: ".trigger", Content: []byte("#!/bin/sh\n")},
		container.Entry{Name: ".post-install", Content: []byte("#!/bin/sh\n")},
	))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if len(pkg.Scripts) != 2 || pkg.Scripts[0].Name != ".post-install" || pkg.Scripts[1].Name != ".trigger" {
		t.Errorf("scripts = %+v, want .post-install then .trigger", pkg.Scripts)
	}
}

func TestBuildWithSigner(t *testing.T) {
	s, err := signer.NewRSASignerFromKey(newTestKey(t), "test.rsa.pub", models.AlgorithmRSA256)
	if err != nil {
		t.Fatalf("NewRSASignerFromKey failed: %v", err)
	}

	pkg, err := Build(testMetadata(), testFiles(), WithSigner(s))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if len(pkg.Segments) != 3 || pkg.Segments[0].Kind() != container.KindSignature {
		t.Fatalf("expected signature segment first, got %d segments", len(pkg.Segments))
	}
	if len(pkg.Signatures) != 1 {
		t.Fatalf("got %d signatures, want 1", len(pkg.Signatures))
	}
	sig := pkg.Signatures[0]
	if sig.KeyID != "test.rsa.pub" || sig.Algorithm != models.AlgorithmRSA256 {
		t.Errorf("signature = %s/%s", sig.Algorithm, sig.KeyID)
	}

	unsigned, err := Build(testMetadata(), testFiles())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if !bytes.Equal(unsigned.Control().Digest(), pkg.Control().Digest()) {
		t.Error("signing changed the control segment")
	}
	if err := s.PublicKey().Verify(sig.Algorithm, pkg.Control().Digest(), sig.Raw); err != nil {
		t.Errorf("signature does not verify: %v", err)
	}

	again, err := Build(testMetadata(), testFiles(), WithSigner(s))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if !bytes.Equal(again.Bytes(), pkg.Bytes()) {
		t.Error("signed builds are not reproducible")
	}
}

func TestBuildErrors(t *testing.T) {
	missingName := testMetadata()
	missingName.Name = ""
	badVersion := testMetadata()
	badVersion.Version = "not a version"
	badDepend := testMetadata()
	badDepend.Depends = []models.Dependency{{Name: "bad name", Operator: models.OpEqual, Version: "1"}}

	tests := []struct {
		name  string
		meta  models.Metadata
		files []File
		want  error
	}{
		{"empty data set", testMetadata(), nil, models.ErrEmptyDataSet},
		{"missing name", missingName, testFiles(), models.ErrInvalidMetadata},
		{"bad version", badVersion, testFiles(), models.ErrInvalidMetadata},
		{"bad dependency", badDepend, testFiles(), models.ErrInvalidMetadata},
		{"absolute path", testMetadata(), []File{{Path: "/etc/passwd"}}, models.ErrInvalidFile},
		{"parent path", testMetadata(), []File{{Path: "../escape"}}, models.ErrInvalidFile},
		{"unclean path", testMetadata(), []File{{Path: "usr//bin"}}, models.ErrInvalidFile},
		{"duplicate path", testMetadata(), []File{{Path: "a"}, {Path: "a"}}, models.ErrInvalidFile},
		{"file as directory", testMetadata(), []File{{Path: "a"}, {Path: "a/b"}}, models.ErrInvalidFile},
		{"reserved name", testMetadata(), []File{{Path: ".PKGINFO"}}, models.ErrInvalidFile},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(tt.meta, tt.files)
			if !errors.Is(err, tt.want) {
				t.Errorf("Build error = %v, want %v", err, tt.want)
			}
			if models.Classify(err) != models.ErrValidation {
				t.Errorf("Classify = %s, want Validation", models.Classify(err))
			}
		})
	}

	_, err := Build(missingName, testFiles())
	if !errors.Is(err, models.ErrMissingField) {
		t.Errorf("missing name should keep the MissingField cause, got %v", err)
	}
}

func TestFileName(t *testing.T) {
	if got := FileName(testMetadata()); got != "foo-1.0.apk" {
		t.Errorf("FileName = %q, want foo-1.0.apk", got)
	}
}

func newTestKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("Failed to generate RSA key: %v", err)
	}
	return key
}
