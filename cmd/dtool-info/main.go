package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/yuya-takeyama/dtool-info/internal/config"
	"github.com/yuya-takeyama/dtool-info/internal/log"
	"github.com/yuya-takeyama/dtool-info/internal/output"
	"github.com/yuya-takeyama/dtool-info/pkg/compare"
	"github.com/yuya-takeyama/dtool-info/pkg/dataset"
	"github.com/yuya-takeyama/dtool-info/pkg/logger"
	"github.com/yuya-takeyama/dtool-info/pkg/storage"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
	builtBy = "unknown"
)

// exitCodeNoSuchOverlay is returned by "overlay show" for an unknown overlay.
const exitCodeNoSuchOverlay = 11

// exitError ends the process with code. A nil err means the command already
// reported the outcome.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// app holds what every subcommand shares once flags and config are resolved.
type app struct {
	stdout io.Writer
	stderr io.Writer

	configPath  string
	noColor     bool
	concurrency int
	profile     string
	region      string

	cfg         config.Config
	resolver    *storage.Resolver
	printer     *output.Printer
	storageOpts []storage.Option
}

func main() {
	log.InitLogger()
	os.Exit(execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer, opts ...storage.Option) int {
	a := &app{stdout: stdout, stderr: stderr, storageOpts: opts}
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}

	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintln(stderr, "Error:", ee.err)
		}
		return ee.code
	}
	fmt.Fprintln(stderr, "Error:", err)
	return 1
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "dtool-info",
		Short: "Inspect and compare dtool datasets",
		Long: `dtool-info reports on dtool datasets stored on local disk or in S3:
it lists and summarises datasets, compares a dataset against a reference,
and verifies a dataset against its own manifest.`,
		Version:           fmt.Sprintf("%s (commit: %s, built at: %s by %s)", version, commit, date, builtBy),
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to the dtool config file (default $DTOOL_CONFIG_PATH or the user config dir)")
	root.PersistentFlags().BoolVar(&a.noColor, "no-color", false, "Disable coloured output")
	root.PersistentFlags().IntVar(&a.concurrency, "concurrency", 0, "Number of items hashed in parallel (default from config, 8)")
	root.PersistentFlags().StringVar(&a.profile, "profile", "", "AWS profile to use for s3:// URIs")
	root.PersistentFlags().StringVar(&a.region, "region", "", "AWS region (uses default if not specified)")

	root.AddCommand(
		a.diffCmd(),
		a.verifyCmd(),
		a.lsCmd(),
		a.identifiersCmd(),
		a.summaryCmd(),
		a.itemCmd(),
		a.overlayCmd(),
		a.reportCmd(),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("concurrency") {
		if a.concurrency <= 0 {
			return fmt.Errorf("--concurrency must be positive")
		}
		cfg.Concurrency = a.concurrency
	}
	if a.profile != "" {
		cfg.S3Profile = a.profile
	}
	if a.region != "" {
		cfg.S3Region = a.region
	}

	a.cfg = cfg
	a.resolver = storage.NewResolver(cfg, a.storageOpts...)
	a.printer = output.New(a.stdout, a.stderr, a.noColor)
	return nil
}

// progress draws a bar on a terminal and otherwise logs phases.
func (a *app) progress() logger.Progress {
	if output.IsTerminal(a.stderr) {
		return logger.NewBarLogger(a.stderr, map[string]string{
			compare.PhaseSizes:   "Comparing sizes",
			compare.PhaseContent: "Comparing hashes",
			compare.PhaseVerify:  "Verifying items",
			dataset.PhaseRescan:  "Scanning items",
		})
	}
	return &logger.VerboseLogger{}
}

func (a *app) compareOptions(full bool) compare.Options {
	return compare.Options{
		Full:        full,
		Concurrency: a.cfg.Concurrency,
		Progress:    a.progress(),
	}
}
