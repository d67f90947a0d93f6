package generator

import (
	"context"

	"github.com/ralt/apkkit/internal/models"
	"github.com/ralt/apkkit/internal/scanner"
)

// Result summarizes one Generate run
type Result struct {
	// Indexed counts the records in each written (or unchanged) index
	Indexed map[string]int

	// Unchanged lists architectures whose index was already up to date
	Unchanged []string

	// Failures lists packages that were skipped
	Failures []models.ItemFailure
}

// Generator interface for repository generators
type Generator interface {
	// Generate creates a repository structure from the scanned files
	Generate(ctx context.Context, config *models.RepositoryConfig, files []scanner.ScannedFile) (*Result, error)

	// GetSupportedType returns the file type this generator consumes
	GetSupportedType() scanner.FileType
}
