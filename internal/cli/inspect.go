package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ralt/apkkit/internal/container"
	"github.com/ralt/apkkit/internal/index"
	"github.com/ralt/apkkit/internal/models"
	"github.com/ralt/apkkit/internal/pkginfo"
	"github.com/ralt/apkkit/internal/scanner"
)

// NewInspectCmd creates the inspect command
func NewInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect FILE",
		Short: "Print the structure of a package or index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			fileType, err := scanner.DetectFileType(path)
			if err != nil {
				return &models.PackageError{Type: models.ErrFileOp, Err: err}
			}

			data, err := os.ReadFile(path)
			if err != nil {
				return &models.PackageError{Type: models.ErrFileOp, Err: err}
			}

			out := cmd.OutOrStdout()
			if fileType == scanner.TypeIndex {
				return inspectIndex(out, data)
			}
			return inspectPackage(out, data)
		},
	}
}

func inspectPackage(out io.Writer, data []byte) error {
	pkg, err := container.DecodeBytes(data)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "Segments:")
	for _, seg := range pkg.Segments {
		fmt.Fprintf(out, "  %-9s %8d bytes compressed %8d bytes  sha256:%s\n",
			seg.Kind(), len(seg.Compressed()), seg.Size(), seg.DigestHex())
	}

	if len(pkg.Signatures) > 0 {
		fmt.Fprintln(out, "Signatures:")
		for _, sig := range pkg.Signatures {
			fmt.Fprintf(out, "  %s\n", container.SignatureEntryName(sig))
		}
	}

	if len(pkg.Scripts) > 0 {
		fmt.Fprintln(out, "Scripts:")
		for _, s := range pkg.Scripts {
			fmt.Fprintf(out, "  %s (%d bytes)\n", s.Name, len(s.Content))
		}
	}

	fmt.Fprintf(out, "%s:\n", pkginfo.FileName)
	out.Write(pkginfo.Serialize(pkg.Metadata))
	return nil
}

func inspectIndex(out io.Writer, data []byte) error {
	archive, err := index.ReadArchive(data)
	if err != nil {
		return err
	}
	repo, err := index.Parse(data)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Description: %s\n", repo.Description())
	fmt.Fprintf(out, "Format: %s\n", repo.Format())
	fmt.Fprintf(out, "Packages: %d\n", repo.Len())
	fmt.Fprintf(out, "Fingerprint: %s\n", repo.Fingerprint())
	for _, sig := range archive.Signatures {
		fmt.Fprintf(out, "Signature: %s\n", container.SignatureEntryName(sig))
	}
	fmt.Fprintln(out)
	out.Write(repo.APKINDEX())
	return nil
}
