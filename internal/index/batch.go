package index

import (
	"context"
	"os"
	"runtime"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ralt/apkkit/internal/container"
	"github.com/ralt/apkkit/internal/models"
	"github.com/ralt/apkkit/internal/signer"
	"github.com/ralt/apkkit/internal/verify"
)

// Options configures IndexFiles
type Options struct {
	// Workers bounds the number of packages processed at once; zero means
	// one per CPU.
	Workers int

	// Keyring, when set, makes signature verification part of indexing
	Keyring signer.Keyring
}

// IndexFiles decodes and verifies every package in paths and returns their
// records in input order. Packages that fail are reported in the failure
// list and do not stop the batch; only cancellation of ctx does.
func IndexFiles(ctx context.Context, paths []string, opts Options) ([]Record, []models.ItemFailure, error) {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	records := make([]*Record, len(paths))
	failures := make([]error, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rec, err := indexFile(path, opts.Keyring)
			if err != nil {
				logrus.Warnf("Skipping %s: %v", path, err)
				failures[i] = err
				return nil
			}
			logrus.Debugf("Indexed %s %s-%s", path, rec.Name, rec.Version)
			records[i] = &rec
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var out []Record
	var failed []models.ItemFailure
	for i := range paths {
		if failures[i] != nil {
			failed = append(failed, models.ItemFailure{Item: paths[i], Err: failures[i]})
			continue
		}
		out = append(out, *records[i])
	}
	return out, failed, nil
}

func indexFile(path string, keys signer.Keyring) (Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return Record{}, &models.PackageError{Type: models.ErrFileOp, Err: err}
	}
	defer f.Close()

	pkg, err := container.Decode(f)
	if err != nil {
		return Record{}, err
	}
	if err := verify.Integrity(pkg); err != nil {
		return Record{}, err
	}
	if keys != nil {
		if err := verify.Signature(pkg, keys); err != nil {
			return Record{}, err
		}
	}

	rec := RecordFromPackage(pkg)
	if err := check(rec); err != nil {
		return Record{}, models.Errorf(models.ErrInvalidMetadata, "%s: %v", pkg.Metadata.Name, err)
	}
	return rec, nil
}
