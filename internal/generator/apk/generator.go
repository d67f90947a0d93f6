package apk

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/ralt/apkkit/internal/generator"
	"github.com/ralt/apkkit/internal/index"
	"github.com/ralt/apkkit/internal/models"
	"github.com/ralt/apkkit/internal/scanner"
	"github.com/ralt/apkkit/internal/signer"
	"github.com/ralt/apkkit/internal/utils"
)

// Generator implements the generator.Generator interface for Alpine repositories
type Generator struct {
	signers []signer.Signer
}

// NewGenerator creates a new Alpine generator. Every signer adds one
// signature to each written index.
func NewGenerator(signers ...signer.Signer) generator.Generator {
	g := &Generator{}
	for _, s := range signers {
		if s != nil {
			g.signers = append(g.signers, s)
		}
	}
	return g
}

type indexed struct {
	path   string
	record index.Record
}

// Generate indexes the scanned packages and writes one APKINDEX.tar.gz per
// architecture. Packages that fail to decode or verify are reported in the
// result and left out.
func (g *Generator) Generate(ctx context.Context, config *models.RepositoryConfig, files []scanner.ScannedFile) (*generator.Result, error) {
	logrus.Info("Generating Alpine repository...")

	keys, err := trustedKeys(config)
	if err != nil {
		return nil, err
	}

	paths := scanner.Paths(files, scanner.TypeApk)
	records, failures, err := index.IndexFiles(ctx, paths, index.Options{Workers: config.Workers, Keyring: keys})
	if err != nil {
		return nil, err
	}

	result := &generator.Result{Indexed: make(map[string]int), Failures: failures}

	// Group packages by architecture
	failed := make(map[string]bool, len(failures))
	for _, f := range failures {
		failed[f.Item] = true
	}
	archPackages := make(map[string][]indexed)
	next := 0
	for _, p := range paths {
		if failed[p] {
			continue
		}
		rec := records[next]
		next++
		archPackages[rec.Arch] = append(archPackages[rec.Arch], indexed{path: p, record: rec})
	}

	for _, arch := range selectArches(config.Arches, archPackages) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pkgs, ok := archPackages[arch]
		if !ok {
			logrus.Warnf("No packages for architecture %s", arch)
			continue
		}

		repo, unchanged, err := g.generateForArch(config, arch, pkgs, keys)
		if err != nil {
			return nil, fmt.Errorf("failed to generate for %s: %w", arch, err)
		}
		result.Indexed[arch] = repo.Len()
		if unchanged {
			result.Unchanged = append(result.Unchanged, arch)
		}
	}

	logrus.Info("Alpine repository generated successfully")
	return result, nil
}

// selectArches returns the requested architectures, or every architecture
// found when none were requested.
func selectArches(requested []string, found map[string][]indexed) []string {
	var arches []string
	if len(requested) > 0 {
		seen := make(map[string]bool)
		for _, a := range requested {
			a = models.NormalizeArch(a)
			if !seen[a] {
				seen[a] = true
				arches = append(arches, a)
			}
		}
		return arches
	}
	for a := range found {
		arches = append(arches, a)
	}
	sort.Strings(arches)
	return arches
}

// generateForArch generates repository files for a specific architecture
func (g *Generator) generateForArch(config *models.RepositoryConfig, arch string, packages []indexed, keys signer.Keyring) (*index.Repository, bool, error) {
	logrus.Infof("Generating for architecture: %s", arch)

	archDir := filepath.Join(config.OutputDir, arch)
	if err := utils.EnsureDir(archDir); err != nil {
		return nil, false, &models.PackageError{Type: models.ErrFileOp, Err: err}
	}

	description := config.Description
	if description == "" {
		description = fmt.Sprintf("Alpine Package Index for %s", arch)
	}

	existing, previous, err := readExisting(archDir, config.Incremental)
	if err != nil {
		return nil, false, err
	}

	base := index.New(description)
	if config.Incremental && previous != nil {
		if keys != nil {
			if err := index.Verify(existing, keys); err != nil {
				return nil, false, fmt.Errorf("existing index: %w", err)
			}
		}
		logrus.Infof("Merging into existing index with %d packages", previous.Len())
		base = previous.WithDescription(description)
	}

	records := make([]index.Record, len(packages))
	for i, p := range packages {
		records[i] = p.record
	}
	store := index.NewStore(base)
	if err := store.MergeRecords(records); err != nil {
		return nil, false, err
	}
	repo := store.Snapshot()

	// Copy the packages that made it into the index
	for _, p := range packages {
		rec, ok := repo.Get(p.record.Name, arch)
		if !ok || rec.Checksum != p.record.Checksum {
			logrus.Infof("Skipping %s: index already has %s-%s", p.path, rec.Name, rec.Version)
			continue
		}
		dstPath := filepath.Join(archDir, rec.FileName())
		needsCopy, err := utils.ShouldCopyFile(p.path, dstPath)
		if err != nil {
			return nil, false, &models.PackageError{Type: models.ErrFileOp, Package: rec.Name, Err: err}
		}
		if !needsCopy {
			logrus.Debugf("%s is up to date", dstPath)
			continue
		}
		if err := utils.CopyFile(p.path, dstPath); err != nil {
			return nil, false, &models.PackageError{Type: models.ErrFileOp, Package: rec.Name, Err: fmt.Errorf("failed to copy %s: %w", p.path, err)}
		}
	}

	if previous != nil && previous.Fingerprint() == repo.Fingerprint() && g.signedBySame(existing) {
		logrus.Infof("APKINDEX for %s is unchanged (%d packages)", arch, repo.Len())
		return repo, true, nil
	}

	data, err := index.Serialize(repo)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create %s: %w", index.FileName, err)
	}
	for _, s := range g.signers {
		if data, err = index.Sign(data, s); err != nil {
			return nil, false, fmt.Errorf("failed to sign APKINDEX: %w", err)
		}
		logrus.Debugf("APKINDEX signed with %s", s.KeyID())
	}

	indexPath := filepath.Join(archDir, index.FileName)
	if err := utils.WriteFileAtomic(indexPath, data, 0644); err != nil {
		return nil, false, &models.PackageError{Type: models.ErrFileOp, Err: fmt.Errorf("failed to write %s: %w", index.FileName, err)}
	}

	logrus.Infof("Generated APKINDEX for %s (%d packages)", arch, repo.Len())
	return repo, false, nil
}

// readExisting loads the index already present in archDir, if any. A
// malformed index fails an incremental run, since merging into it would drop
// its records; a full regeneration ignores it with a warning and rewrites it.
func readExisting(archDir string, incremental bool) ([]byte, *index.Repository, error) {
	data, err := os.ReadFile(filepath.Join(archDir, index.FileName))
	if os.IsNotExist(err) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, &models.PackageError{Type: models.ErrFileOp, Err: err}
	}

	repo, err := index.Parse(data)
	if err != nil && incremental {
		return nil, nil, &models.PackageError{
			Type: models.ErrFormat,
			Err:  fmt.Errorf("existing %s in %s: %w", index.FileName, archDir, err),
		}
	}
	if err != nil {
		logrus.Warnf("Ignoring unreadable %s in %s: %v", index.FileName, archDir, err)
		return nil, nil, nil
	}
	return data, repo, nil
}

// ParseExistingIndex returns the index currently published for arch
func ParseExistingIndex(config *models.RepositoryConfig, arch string) (*index.Repository, error) {
	data, err := os.ReadFile(filepath.Join(config.OutputDir, arch, index.FileName))
	if err != nil {
		return nil, &models.PackageError{Type: models.ErrFileOp, Err: err}
	}
	return index.Parse(data)
}

// signedBySame reports whether the existing index carries exactly the
// signatures this generator would add.
func (g *Generator) signedBySame(existing []byte) bool {
	archive, err := index.ReadArchive(existing)
	if err != nil {
		return false
	}
	if len(archive.Signatures) != len(g.signers) {
		return false
	}
	have := make(map[string]bool)
	for _, sig := range archive.Signatures {
		have[sig.Algorithm+"."+sig.KeyID] = true
	}
	for _, s := range g.signers {
		if !have[s.Algorithm()+"."+s.KeyID()] {
			return false
		}
	}
	return true
}

func trustedKeys(config *models.RepositoryConfig) (signer.Keyring, error) {
	if config.TrustedKeysDir == "" {
		if config.RequireSignature {
			return nil, &models.PackageError{
				Type: models.ErrInvalidConfig,
				Err:  fmt.Errorf("signature verification requires a trusted keys directory"),
			}
		}
		return nil, nil
	}

	keys, err := signer.LoadKeyring(config.TrustedKeysDir)
	if err != nil {
		return nil, &models.PackageError{Type: models.ErrInvalidConfig, Err: fmt.Errorf("failed to load trusted keys: %w", err)}
	}
	logrus.Infof("Loaded %d trusted keys", len(keys))
	return keys, nil
}

// GetSupportedType returns the file type this generator consumes
func (g *Generator) GetSupportedType() scanner.FileType {
	return scanner.TypeApk
}
