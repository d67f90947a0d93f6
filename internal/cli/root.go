package cli

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "apkkit",
		Short: "Build, verify and index Alpine APK packages",
		Long: `apkkit builds reproducible APK v2 packages, verifies their integrity
and signatures, and publishes static APKINDEX repositories.

Commands:
  - build    assemble a package from a manifest and a staged tree
  - verify   check package or index checksums and signatures
  - inspect  print the structure of a package or index
  - index    generate APKINDEX.tar.gz repositories from .apk files
  - version  compare and sort APK version strings`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Setup logging
			verbose, _ := cmd.Flags().GetBool("verbose")
			if verbose {
				logrus.SetLevel(logrus.DebugLevel)
			} else {
				logrus.SetLevel(logrus.InfoLevel)
			}
		},
	}

	// Global flags
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	// Add subcommands
	rootCmd.AddCommand(NewBuildCmd())
	rootCmd.AddCommand(NewVerifyCmd())
	rootCmd.AddCommand(NewInspectCmd())
	rootCmd.AddCommand(NewIndexCmd())
	rootCmd.AddCommand(NewVersionCmd())

	return rootCmd
}
