package source

import (
	"archive/tar"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/ralt/apkkit/internal/builder"
	"github.com/ralt/apkkit/internal/models"
	"github.com/ralt/apkkit/internal/utils"
)

func paths(files []builder.File) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Path
	}
	return out
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	mustWrite := func(rel string, content string, mode os.FileMode) {
		t.Helper()
		p := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatalf("Failed to create directory: %v", err)
		}
		if err := os.WriteFile(p, []byte(content), mode); err != nil {
			t.Fatalf("Failed to write %s: %v", rel, err)
		}
		if err := os.Chmod(p, mode); err != nil {
			t.Fatalf("Failed to chmod %s: %v", rel, err)
		}
	}

	mustWrite("usr/bin/foo", "#!/bin/sh\n", 0755)
	mustWrite("etc/foo.conf", "key=value\n", 0644)
	if err := os.MkdirAll(filepath.Join(dir, "var/empty"), 0755); err != nil {
		t.Fatalf("Failed to create directory: %v", err)
	}
	if err := os.Symlink("foo", filepath.Join(dir, "usr/bin/foo-link")); err != nil {
		t.Fatalf("Failed to create symlink: %v", err)
	}

	files, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir failed: %v", err)
	}

	want := []string{"etc/foo.conf", "usr/bin/foo", "usr/bin/foo-link"}
	if got := paths(files); !reflect.DeepEqual(got, want) {
		t.Fatalf("paths = %v, want %v", got, want)
	}
	if files[1].Mode != 0755 || string(files[1].Content) != "#!/bin/sh\n" {
		t.Errorf("usr/bin/foo = mode %o content %q", files[1].Mode, files[1].Content)
	}
	if files[2].Linkname != "foo" || files[2].Content != nil {
		t.Errorf("usr/bin/foo-link = %+v", files[2])
	}

	meta := models.Metadata{Name: "foo", Version: "1.0", Architecture: "noarch"}
	if _, err := builder.Build(meta, files); err != nil {
		t.Errorf("Build from loaded directory failed: %v", err)
	}
}

func writeTarball(t *testing.T, name string, build func(tw *tar.Writer)) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	compression, ok := utils.DetectCompression(name)
	if !ok {
		t.Fatalf("%s is not a tarball name", name)
	}

	f, err := os.Create(p)
	if err != nil {
		t.Fatalf("Failed to create tarball: %v", err)
	}
	defer f.Close()

	w, err := utils.NewCompressor(f, compression)
	if err != nil {
		t.Fatalf("NewCompressor failed: %v", err)
	}
	tw := tar.NewWriter(w)
	build(tw)
	if err := tw.Close(); err != nil {
		t.Fatalf("Failed to close tar writer: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Failed to close compressor: %v", err)
	}
	return p
}

func addFile(t *testing.T, tw *tar.Writer, hdr *tar.Header, content string) {
	t.Helper()
	if hdr.Typeflag == tar.TypeReg {
		hdr.Size = int64(len(content))
	}
	if err := tw.WriteHeader(hdr); err != nil {
		t.Fatalf("WriteHeader(%s) failed: %v", hdr.Name, err)
	}
	if _, err := tw.Write([]byte(content)); err != nil {
		t.Fatalf("Write(%s) failed: %v", hdr.Name, err)
	}
}

func stagedTree(t *testing.T) func(tw *tar.Writer) {
	return func(tw *tar.Writer) {
		addFile(t, tw, &tar.Header{Name: "./", Typeflag: tar.TypeDir, Mode: 0755}, "")
		addFile(t, tw, &tar.Header{Name: "./usr/", Typeflag: tar.TypeDir, Mode: 0755}, "")
		addFile(t, tw, &tar.Header{Name: "./usr/bin/tool", Typeflag: tar.TypeReg, Mode: 0755}, "binary")
		addFile(t, tw, &tar.Header{Name: "./usr/bin/tool2", Typeflag: tar.TypeLink, Linkname: "./usr/bin/tool"}, "")
		addFile(t, tw, &tar.Header{Name: "usr/bin/t", Typeflag: tar.TypeSymlink, Linkname: "tool", Mode: 0777}, "")
		addFile(t, tw, &tar.Header{Name: "etc/tool.conf", Typeflag: tar.TypeReg, Mode: 0600}, "old")
		addFile(t, tw, &tar.Header{Name: "etc/tool.conf", Typeflag: tar.TypeReg, Mode: 0644}, "new")
	}
}

func TestLoadTarball(t *testing.T) {
	for _, name := range []string{"root.tar", "root.tar.gz", "root.tar.xz", "root.tar.zst"} {
		t.Run(name, func(t *testing.T) {
			p := writeTarball(t, name, stagedTree(t))

			files, err := LoadTarball(p)
			if err != nil {
				t.Fatalf("LoadTarball failed: %v", err)
			}

			want := []string{"etc/tool.conf", "usr/bin/t", "usr/bin/tool", "usr/bin/tool2"}
			if got := paths(files); !reflect.DeepEqual(got, want) {
				t.Fatalf("paths = %v, want %v", got, want)
			}
			if string(files[0].Content) != "new" || files[0].Mode != 0644 {
				t.Errorf("later member should win: %+v", files[0])
			}
			if files[1].Linkname != "tool" {
				t.Errorf("symlink target = %q", files[1].Linkname)
			}
			if string(files[3].Content) != "binary" || files[3].Mode != 0755 {
				t.Errorf("hard link = %+v, want a copy of its target", files[3])
			}
		})
	}
}

func TestLoadTarballErrors(t *testing.T) {
	escape := writeTarball(t, "escape.tar", func(tw *tar.Writer) {
		addFile(t, tw, &tar.Header{Name: "../etc/passwd", Typeflag: tar.TypeReg, Mode: 0644}, "x")
	})
	if _, err := LoadTarball(escape); !errors.Is(err, models.ErrInvalidFile) {
		t.Errorf("escaping member error = %v, want ErrInvalidFile", err)
	}

	dangling := writeTarball(t, "dangling.tar", func(tw *tar.Writer) {
		addFile(t, tw, &tar.Header{Name: "a", Typeflag: tar.TypeLink, Linkname: "missing"}, "")
	})
	if _, err := LoadTarball(dangling); !errors.Is(err, models.ErrInvalidFile) {
		t.Errorf("dangling hard link error = %v, want ErrInvalidFile", err)
	}

	notGzip := filepath.Join(t.TempDir(), "bad.tar.gz")
	if err := os.WriteFile(notGzip, []byte("plain text"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
	if _, err := LoadTarball(notGzip); !errors.Is(err, models.ErrBadCompression) {
		t.Errorf("bad gzip error = %v, want ErrBadCompression", err)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "file"), []byte("x"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	tree, err := Load(dir)
	if err != nil {
		t.Fatalf("Load(dir) failed: %v", err)
	}
	if len(tree.Files) != 1 || tree.Metadata.Name != "" {
		t.Errorf("Load(dir) = %+v", tree)
	}

	tarball := writeTarball(t, "root.tar.gz", stagedTree(t))
	tree, err = Load(tarball)
	if err != nil {
		t.Fatalf("Load(tarball) failed: %v", err)
	}
	if len(tree.Files) != 4 {
		t.Errorf("Load(tarball) returned %d files", len(tree.Files))
	}

	_, err = Load(filepath.Join(dir, "file"))
	if models.Classify(err) != models.ErrInvalidConfig {
		t.Errorf("Load(plain file) error = %v, want InvalidConfig", err)
	}

	_, err = Load(filepath.Join(dir, "missing"))
	if models.Classify(err) != models.ErrFileOp {
		t.Errorf("Load(missing) error = %v, want FileOp", err)
	}
}

func TestRPMVersionMapping(t *testing.T) {
	tests := []struct {
		version, release, want string
	}{
		{"1.2.3", "4", "1.2.3-r4"},
		{"1.2.3", "", "1.2.3"},
		{"1.2.3", "4.el9", "1.2.3"},
		{"1.2.3", "01", "1.2.3-r01"},
	}
	for _, tt := range tests {
		if got := rpmVersion(tt.version, tt.release); got != tt.want {
			t.Errorf("rpmVersion(%q, %q) = %q, want %q", tt.version, tt.release, got, tt.want)
		}
	}

	for arch, want := range map[string]string{"i686": "x86", "x86_64": "x86_64", "noarch": "noarch"} {
		if got := rpmArch(arch); got != want {
			t.Errorf("rpmArch(%q) = %q, want %q", arch, got, want)
		}
	}
}

func TestCleanName(t *testing.T) {
	tests := []struct {
		name, want string
		err        bool
	}{
		{"./usr/bin/foo", "usr/bin/foo", false},
		{"/usr/bin/foo", "usr/bin/foo", false},
		{"usr//bin/", "usr/bin", false},
		{"./", "", false},
		{"usr/../../etc", "", true},
	}
	for _, tt := range tests {
		got, err := cleanName(tt.name)
		if (err != nil) != tt.err || got != tt.want {
			t.Errorf("cleanName(%q) = %q, %v", tt.name, got, err)
		}
	}
}
