package index

import (
	"crypto/sha1"
	"strings"

	"github.com/ralt/apkkit/internal/container"
	"github.com/ralt/apkkit/internal/models"
	"github.com/ralt/apkkit/internal/utils"
)

// Key identifies a record within a repository
type Key struct {
	Name string
	Arch string
}

// String returns "name/arch"
func (k Key) String() string {
	return k.Name + "/" + k.Arch
}

// less orders keys by name, then architecture
func (k Key) less(o Key) bool {
	if k.Name != o.Name {
		return k.Name < o.Name
	}
	return k.Arch < o.Arch
}

// Record is the index entry for one package
type Record struct {
	Checksum      string // C
	Name          string // P
	Version       string // V
	Arch          string // A
	Size          int64  // S
	InstalledSize int64  // I
	Description   string // T
	URL           string // U
	License       string // L
	Maintainer    string // m
	Depends       []models.Dependency
	Provides      []models.Provide

	// Extra holds fields with other letters, every occurrence in order
	Extra map[string][]string
}

// Key returns the record's repository key
func (r Record) Key() Key {
	return Key{Name: r.Name, Arch: r.Arch}
}

// FileName returns the conventional package file name for r
func (r Record) FileName() string {
	return r.Name + "-" + r.Version + ".apk"
}

// Clone returns a deep copy of r
func (r Record) Clone() Record {
	out := r
	if r.Depends != nil {
		out.Depends = append([]models.Dependency(nil), r.Depends...)
	}
	if r.Provides != nil {
		out.Provides = append([]models.Provide(nil), r.Provides...)
	}
	if r.Extra != nil {
		out.Extra = make(map[string][]string, len(r.Extra))
		for k, v := range r.Extra {
			out.Extra[k] = append([]string(nil), v...)
		}
	}
	return out
}

// metadataLetters maps PKGINFO fields without a dedicated Record field to
// their index letters.
var metadataLetters = map[string]string{
	"origin":            "o",
	"builddate":         "t",
	"commit":            "c",
	"provider_priority": "k",
	"replaces":          "r",
	"install_if":        "i",
}

// FromMetadata projects package metadata onto an index record. Checksum and
// Size describe the package file and are left empty.
func FromMetadata(meta models.Metadata) Record {
	rec := Record{
		Name:          meta.Name,
		Version:       meta.Version,
		Arch:          meta.Architecture,
		InstalledSize: meta.InstalledSize,
		Description:   meta.Description,
		URL:           meta.Homepage,
		License:       meta.License,
		Maintainer:    meta.Maintainer,
	}
	if len(meta.Depends) > 0 {
		rec.Depends = append([]models.Dependency(nil), meta.Depends...)
	}
	if len(meta.Provides) > 0 {
		rec.Provides = append([]models.Provide(nil), meta.Provides...)
	}

	for key, letter := range metadataLetters {
		values, ok := meta.Extra[key]
		if !ok {
			continue
		}
		if rec.Extra == nil {
			rec.Extra = make(map[string][]string)
		}
		// apk-tools writes multi-valued fields space separated on one line
		rec.Extra[letter] = []string{strings.Join(values, " ")}
	}
	return rec
}

// RecordFromPackage builds the index record of a decoded package. The
// checksum is the SHA1 of the package file.
func RecordFromPackage(pkg *container.Package) Record {
	h := sha1.New()
	var size int64
	for _, seg := range pkg.Segments {
		h.Write(seg.Compressed())
		size += int64(len(seg.Compressed()))
	}

	rec := FromMetadata(pkg.Metadata)
	rec.Checksum = utils.EncodeIndexChecksum(h.Sum(nil))
	rec.Size = size
	return rec
}
