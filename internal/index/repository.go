// Package index maintains APKINDEX repositories. A Repository is an immutable
// snapshot; every mutation returns a new one and leaves the receiver intact.
package index

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/zeebo/blake3"

	"github.com/ralt/apkkit/internal/models"
	"github.com/ralt/apkkit/internal/version"
)

// FormatVersion is the index format this package reads and writes
const FormatVersion = "2"

// Repository maps (name, architecture) to the newest known record
type Repository struct {
	description string
	format      string
	records     map[Key]Record
}

// New returns an empty repository
func New(description string) *Repository {
	return &Repository{
		description: description,
		format:      FormatVersion,
		records:     make(map[Key]Record),
	}
}

// Description returns the index description
func (r *Repository) Description() string {
	return r.description
}

// Format returns the index format tag
func (r *Repository) Format() string {
	return r.format
}

// Len returns the number of records
func (r *Repository) Len() int {
	return len(r.records)
}

// Get returns a copy of the record stored under name and arch
func (r *Repository) Get(name, arch string) (Record, bool) {
	rec, ok := r.records[Key{Name: name, Arch: arch}]
	if !ok {
		return Record{}, false
	}
	return rec.Clone(), true
}

// Keys returns every key sorted by name, then architecture
func (r *Repository) Keys() []Key {
	keys := make([]Key, 0, len(r.records))
	for k := range r.records {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].less(keys[j]) })
	return keys
}

// Records returns copies of every record in key order
func (r *Repository) Records() []Record {
	keys := r.Keys()
	out := make([]Record, len(keys))
	for i, k := range keys {
		out[i] = r.records[k].Clone()
	}
	return out
}

// Architectures returns the distinct architectures in sorted order
func (r *Repository) Architectures() []string {
	seen := make(map[string]bool)
	var arches []string
	for k := range r.records {
		if !seen[k.Arch] {
			seen[k.Arch] = true
			arches = append(arches, k.Arch)
		}
	}
	sort.Strings(arches)
	return arches
}

// WithDescription returns a copy of r with a new description
func (r *Repository) WithDescription(description string) *Repository {
	out := r.clone()
	out.description = description
	return out
}

// AddOrReplace stores rec unless a record with the same key and an equal or
// newer version is already present. The boolean reports whether anything
// changed; a rejected add returns r itself.
func (r *Repository) AddOrReplace(rec Record) (*Repository, bool, error) {
	if err := check(rec); err != nil {
		return r, false, &models.PackageError{
			Type:    models.ErrValidation,
			Package: rec.Name,
			Err:     fmt.Errorf("%w: %v", models.ErrInvalidMetadata, err),
		}
	}

	newer, err := r.isNewer(rec)
	if err != nil {
		return r, false, err
	}
	if !newer {
		return r, false, nil
	}

	out := r.clone()
	out.records[rec.Key()] = rec.Clone()
	return out, true, nil
}

func (r *Repository) isNewer(rec Record) (bool, error) {
	existing, ok := r.records[rec.Key()]
	if !ok {
		return true, nil
	}
	res, err := version.Compare(rec.Version, existing.Version)
	if err != nil {
		return false, err
	}
	return res == version.Greater, nil
}

// Remove deletes the record stored under name and arch. Removing an absent
// key returns r unchanged.
func (r *Repository) Remove(name, arch string) (*Repository, bool) {
	key := Key{Name: name, Arch: arch}
	if _, ok := r.records[key]; !ok {
		return r, false
	}
	out := r.clone()
	delete(out.records, key)
	return out, true
}

// Merge applies every record of incoming to base with the AddOrReplace rule.
// For each key the newest version wins and ties keep the base record.
// The description and format of base are kept.
func Merge(base, incoming *Repository) (*Repository, error) {
	return MergeRecords(base, incoming.Records())
}

// MergeRecords applies records to base. Records sharing a key are applied in
// version order, so among equal versions the earliest in records wins.
func MergeRecords(base *Repository, records []Record) (*Repository, error) {
	parsed := make([]version.Version, len(records))
	for i, rec := range records {
		if err := check(rec); err != nil {
			return nil, &models.PackageError{
				Type:    models.ErrValidation,
				Package: rec.Name,
				Err:     fmt.Errorf("%w: %v", models.ErrInvalidMetadata, err),
			}
		}
		parsed[i], _ = version.Parse(rec.Version)
	}

	order := make([]int, len(records))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		a, b := records[order[i]], records[order[j]]
		if a.Key() != b.Key() {
			return a.Key().less(b.Key())
		}
		return parsed[order[i]].Compare(parsed[order[j]]) == version.Less
	})

	out := base.clone()
	for _, i := range order {
		rec := records[i]
		newer, err := out.isNewer(rec)
		if err != nil {
			return nil, err
		}
		if newer {
			out.records[rec.Key()] = rec.Clone()
		}
	}
	return out, nil
}

// Equal reports whether r and o serialize identically
func (r *Repository) Equal(o *Repository) bool {
	return bytes.Equal(r.text(), o.text())
}

// Fingerprint returns a BLAKE3 hash of the repository contents. Two
// repositories with the same fingerprint serialize to the same bytes.
func (r *Repository) Fingerprint() string {
	sum := blake3.Sum256(r.text())
	return hex.EncodeToString(sum[:])
}

// APKINDEX renders the record list in key order
func (r *Repository) APKINDEX() []byte {
	var buf bytes.Buffer
	for _, k := range r.Keys() {
		writeRecord(&buf, r.records[k])
	}
	return buf.Bytes()
}

// text is the canonical form used for comparisons
func (r *Repository) text() []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%d:%s\n%d:%s\n", len(r.format), r.format, len(r.description), r.description)
	buf.Write(r.APKINDEX())
	return buf.Bytes()
}

func (r *Repository) clone() *Repository {
	records := make(map[Key]Record, len(r.records)+1)
	for k, v := range r.records {
		records[k] = v
	}
	return &Repository{
		description: r.description,
		format:      r.format,
		records:     records,
	}
}
