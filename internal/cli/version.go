package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ralt/apkkit/internal/version"
)

// NewVersionCmd creates the version command
func NewVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Compare and sort APK version strings",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "compare A B",
		Short: "Print <, = or > for A compared to B",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := version.Compare(args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), res)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "sort VERSION...",
		Short: "Print versions in ascending order",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			versions := append([]string(nil), args...)
			if err := version.Sort(versions); err != nil {
				return err
			}
			for _, v := range versions {
				fmt.Fprintln(cmd.OutOrStdout(), v)
			}
			return nil
		},
	})

	return cmd
}
