package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/yuya-takeyama/dtool-info/internal/output"
	"github.com/yuya-takeyama/dtool-info/internal/report"
	"github.com/yuya-takeyama/dtool-info/pkg/dataset"
)

func (a *app) lsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls <uri>",
		Short: "List the items of a dataset, or the datasets in a location",
		Long: `List the items of a dataset, or the datasets in a base location.

Proto datasets are highlighted in red.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			isDataset, err := a.resolver.IsDataset(ctx, args[0])
			if err != nil {
				return err
			}
			if isDataset {
				ds, err := a.resolver.Open(ctx, args[0])
				if err != nil {
					return err
				}
				return a.printer.Items(ds)
			}

			infos, err := a.resolver.ListDatasetURIs(ctx, args[0])
			if err != nil {
				return err
			}
			a.printer.DatasetList(infos)
			return nil
		},
	}
}

func (a *app) identifiersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "identifiers <dataset-uri>",
		Short: "List the item identifiers in the dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := a.resolver.Open(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, id := range ds.Identifiers() {
				a.printer.Println(string(id))
			}
			return nil
		},
	}
}

func (a *app) summaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary <dataset-uri>",
		Short: "Report summary information about a dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := a.resolver.Open(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.printer.JSON(output.NewSummary(ds))
		},
	}
}

func (a *app) itemCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "item",
		Short: "Get information about an item in the dataset",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "properties <dataset-uri> <identifier>",
		Short: "Report item properties",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := a.resolver.Open(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			props, err := ds.ItemProperties(dataset.Identifier(args[1]))
			if err != nil {
				return err
			}
			return a.printer.JSON(props)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "fetch <dataset-uri> <identifier>",
		Short: "Print the absolute path of a file holding the item content",
		Long: `Print the absolute path of a file holding the item content.

Items in remote storage are downloaded to the cache directory first.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := a.resolver.Open(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			path, err := ds.ItemContentAbspath(cmd.Context(), dataset.Identifier(args[1]))
			if err != nil {
				return err
			}
			a.printer.Println(path)
			return nil
		},
	})

	return cmd
}

func (a *app) overlayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "overlay",
		Short: "Get information about item metadata stored in overlays",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "ls <dataset-uri>",
		Short: "List the overlays in the dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := a.resolver.Open(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			names, err := ds.OverlayNames(cmd.Context())
			if err != nil {
				return err
			}
			for _, name := range names {
				a.printer.Println(name)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <dataset-uri> <overlay-name> [identifier]",
		Short: "Show the content of an overlay, or its value for one item",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := a.resolver.Open(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			raw, err := ds.Overlay(cmd.Context(), args[1])
			if errors.Is(err, dataset.ErrNoSuchOverlay) {
				a.printer.Errorln("No such overlay: " + args[1])
				return &exitError{code: exitCodeNoSuchOverlay}
			}
			if err != nil {
				return err
			}

			if len(args) == 2 {
				return a.printer.RawJSON(raw)
			}

			value := gjson.GetBytes(raw, args[2])
			if !value.Exists() {
				return fmt.Errorf("%w: %s in overlay %s", dataset.ErrNoSuchItem, args[2], args[1])
			}
			return a.printer.RawJSON([]byte(value.Raw))
		},
	})

	return cmd
}

func (a *app) reportCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "report <base-uri>",
		Short: "Generate a report on the datasets in a base URI",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := report.Build(cmd.Context(), a.resolver, args[0], report.WithConcurrency(a.cfg.Concurrency))
			if err != nil {
				return err
			}
			return r.Write(a.printer.Out(), format)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", report.FormatText, "Output format: text, csv or html")
	return cmd
}
