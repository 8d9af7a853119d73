package main

import (
	"github.com/spf13/cobra"

	"github.com/yuya-takeyama/dtool-info/pkg/compare"
)

func (a *app) diffCmd() *cobra.Command {
	var full, asJSON bool
	cmd := &cobra.Command{
		Use:   "diff <dataset-uri> <reference-dataset-uri>",
		Short: "Report the difference between two datasets",
		Long: `Report the difference between two datasets.

1. Checks that the identifiers are identical
2. Checks that the sizes are identical
3. Checks that the hashes are identical, if the --full option is used

If a difference is detected in step 1, steps 2 and 3 are not carried out.
Similarly if a difference is detected in step 2, step 3 is not carried out.

When checking hashes, the items of the first dataset are rehashed with the
hash function of the reference dataset.

Exits 0 when identical, 1, 2 or 3 for the step that found a difference.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ds, err := a.resolver.Open(ctx, args[0])
			if err != nil {
				return err
			}
			ref, err := a.resolver.Open(ctx, args[1])
			if err != nil {
				return err
			}

			result, err := compare.Diff(ctx, ds, ref, a.compareOptions(full))
			if err != nil {
				return err
			}

			if asJSON {
				if err := a.printer.JSON(result); err != nil {
					return err
				}
			} else {
				a.printer.Diff(result, ds.Name(), ref.Name())
			}

			if code := result.ExitCode(); code != 0 {
				return &exitError{code: code}
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&full, "full", "f", false, "Include file hash comparisons")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")
	return cmd
}

func (a *app) verifyCmd() *cobra.Command {
	var full, asJSON bool
	cmd := &cobra.Command{
		Use:   "verify <dataset-uri>",
		Short: "Verify the items in storage against the dataset manifest",
		Long: `Rescan the storage behind a dataset and report items that are unknown,
missing or altered. Sizes are always compared; hashes only with --full.

Exits 0 when everything matches and 1 otherwise.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ds, err := a.resolver.Open(ctx, args[0])
			if err != nil {
				return err
			}

			result, err := compare.Verify(ctx, ds, a.compareOptions(full))
			if err != nil {
				return err
			}

			if asJSON {
				if err := a.printer.JSON(result); err != nil {
					return err
				}
			} else {
				a.printer.Verification(result)
			}

			if code := result.ExitCode(); code != 0 {
				return &exitError{code: code}
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&full, "full", "f", false, "Include file hash comparisons")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")
	return cmd
}
