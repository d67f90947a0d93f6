package scanner

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestScan(t *testing.T) {
	dir := t.TempDir()
	gz := []byte{0x1f, 0x8b, 0x08, 0x00}

	files := map[string][]byte{
		"x86_64/foo-1.0.apk":        gz,
		"x86_64/APKINDEX.tar.gz":    gz,
		"aarch64/bar-2.0.APK":       gz,
		"notes/readme.apk":          []byte("not gzip"),
		"empty.apk":                 nil,
		"other/baz-1.0.tar.gz":      gz,
		"other/APKINDEX.tar.gz.asc": gz,
		"nested/deeper/qux-0.1.apk": gz,
	}
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatalf("Failed to create directory: %v", err)
		}
		if err := os.WriteFile(p, content, 0644); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
	}

	found, err := NewFileSystemScanner().Scan(context.Background(), dir)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	var got []string
	for _, f := range found {
		rel, _ := filepath.Rel(dir, f.Path)
		got = append(got, filepath.ToSlash(rel)+":"+f.Type.String())
	}
	want := []string{
		"aarch64/bar-2.0.APK:apk",
		"nested/deeper/qux-0.1.apk:apk",
		"x86_64/APKINDEX.tar.gz:index",
		"x86_64/foo-1.0.apk:apk",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Scan = %v, want %v", got, want)
	}

	if apks := Paths(found, TypeApk); len(apks) != 3 {
		t.Errorf("Paths(TypeApk) = %v", apks)
	}
}

func TestScanCancelled(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.apk"), []byte{0x1f, 0x8b}, 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewFileSystemScanner().Scan(ctx, dir); err == nil {
		t.Error("Scan with a cancelled context should fail")
	}
}
