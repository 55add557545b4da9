package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/pendergraft/integrity-verifier/internal/chains"
	"github.com/pendergraft/integrity-verifier/internal/chains/evm/rpc"
	"github.com/pendergraft/integrity-verifier/internal/config"
	"github.com/pendergraft/integrity-verifier/internal/loader"
	"github.com/pendergraft/integrity-verifier/internal/verification/domain"
)

// watchDebounce collapses the burst of events editors and compilers emit
const watchDebounce = 300 * time.Millisecond

type verifyOptions struct {
	configPath   string
	contract     string
	chain        string
	skipBytecode bool
	skipABI      bool
	skipState    bool
	verbose      bool
	jsonOutput   bool
	watch        bool
	concurrency  int
}

func (o verifyOptions) toDomain() domain.VerifyOptions {
	return domain.VerifyOptions{
		Verbose:      o.verbose,
		SkipBytecode: o.skipBytecode,
		SkipABI:      o.skipABI,
		SkipState:    o.skipState,
		Contract:     o.contract,
		Chain:        o.chain,
		Concurrency:  o.concurrency,
	}
}

func createVerifyCmd() *cobra.Command {
	var opts verifyOptions

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify deployed contracts against their artifacts",
		Long: `Verify every contract of a suite: deployed bytecode against the artifact,
ABI selectors against the dispatcher, and declared on-chain state.

The suite may be JSON, YAML, TOML or Markdown. ${VAR} placeholders expand
from the environment. RPC URLs can be replaced per chain with RPC_URL_<CHAIN>
or 'integrity-verifier config set-rpc'.

Exit status is 0 when every contract passed or only warned, 1 when any
contract failed and 2 when the suite could not be loaded.

EXAMPLES:
  # Verify a whole suite
  integrity-verifier verify -c verify.yaml

  # One contract, bytecode only, with details
  integrity-verifier verify -c verify.yaml --contract Token --skip-abi --skip-state -v

  # Machine-readable output for CI
  integrity-verifier verify -c verify.json --json

  # Re-run whenever the suite or artifacts change
  integrity-verifier verify -c verify.md --watch
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			global, err := loadGlobalConfig(globalConfigFile())
			if err != nil {
				return configError(err)
			}
			rpcCfg, err := rpcSettings(global)
			if err != nil {
				return configError(err)
			}
			if !cmd.Flags().Changed("concurrency") && global.Concurrency > 0 {
				opts.concurrency = global.Concurrency
			}

			logger := newLogger(cmd.ErrOrStderr(), opts.verbose)
			v := &verifier{
				out:    cmd.OutOrStdout(),
				logger: logger,
				rpc:    rpcCfg,
				dial: rpc.Dialer(
					rpc.WithRateLimit(rpcCfg.RequestsPerSecond, rpcCfg.Burst),
					rpc.WithTimeout(rpcCfg.Timeout),
					rpc.WithLogger(logger),
				),
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if opts.watch {
				return v.watch(ctx, opts)
			}
			return v.run(ctx, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "suite file (.json, .yaml, .toml or .md) (required)")
	cmd.Flags().StringVar(&opts.contract, "contract", "", "only verify the contract with this name")
	cmd.Flags().StringVar(&opts.chain, "chain", "", "only verify contracts on this chain")
	cmd.Flags().BoolVar(&opts.skipBytecode, "skip-bytecode", false, "skip bytecode comparison")
	cmd.Flags().BoolVar(&opts.skipABI, "skip-abi", false, "skip ABI selector checks")
	cmd.Flags().BoolVar(&opts.skipState, "skip-state", false, "skip state verification")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "show per-check details")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "print the summary as JSON")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "re-run when the suite or its artifacts change")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 1, "contracts verified in parallel")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// verifier runs suites from disk and reports to out
type verifier struct {
	out    io.Writer
	logger *slog.Logger
	dial   domain.Dialer
	rpc    config.RPCConfig
}

// run verifies once and turns the outcome into an exit status
func (v *verifier) run(ctx context.Context, opts verifyOptions) error {
	summary, err := v.verify(ctx, opts)
	if err != nil {
		return err
	}
	if summary.Failed > 0 {
		return &exitError{
			code: ExitFailed,
			err:  fmt.Errorf("%d of %d contracts failed verification", summary.Failed, summary.Total),
		}
	}
	return nil
}

func (v *verifier) verify(ctx context.Context, opts verifyOptions) (*domain.Summary, error) {
	cfg, err := loader.Load(opts.configPath)
	if err != nil {
		return nil, configError(err)
	}

	dial := func(ctx context.Context, c chains.Config) (chains.Adapter, error) {
		c.RPCURL = v.rpc.URLFor(c.Name, c.RPCURL)
		return v.dial(ctx, c)
	}
	svc := domain.LoggingMiddleware(v.logger)(domain.NewService(dial, cfg.Source(), rpc.NewCrypto(), v.logger))

	if !opts.jsonOutput {
		fmt.Fprintf(v.out, "🔍 Verifying %s (%d contracts)\n", cfg.Suite.Name, len(cfg.Suite.Contracts))
	}

	summary, err := svc.Verify(ctx, cfg.Suite, opts.toDomain())
	if err != nil {
		if errors.Is(err, domain.ErrInvalidSuite) || errors.Is(err, domain.ErrNoContracts) {
			return nil, configError(err)
		}
		return nil, err
	}

	if opts.jsonOutput {
		enc := json.NewEncoder(v.out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(summary); err != nil {
			return nil, err
		}
		return summary, nil
	}

	for _, r := range summary.Results {
		domain.PrintResult(v.out, r, opts.verbose)
	}
	domain.PrintSummary(v.out, summary)
	fmt.Fprintln(v.out)
	switch {
	case summary.Failed > 0:
		fmt.Fprintln(v.out, paint(v.out, ansiRed, fmt.Sprintf("❌ %d contract(s) failed verification", summary.Failed)))
	case summary.Warnings > 0:
		fmt.Fprintln(v.out, paint(v.out, ansiYellow, "⚠️  Verified with warnings"))
	default:
		fmt.Fprintln(v.out, paint(v.out, ansiGreen, "✅ All contracts verified"))
	}
	return summary, nil
}

// watch verifies, then verifies again after every relevant file change
// until ctx is cancelled. Failed runs are reported and do not stop watching.
func (v *verifier) watch(ctx context.Context, opts verifyOptions) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	watched := make(map[string]bool)
	addDirs := func() {
		for _, dir := range watchDirs(opts.configPath) {
			if watched[dir] {
				continue
			}
			if err := watcher.Add(dir); err != nil {
				v.logger.Warn("cannot watch directory", "dir", dir, "error", err)
				continue
			}
			watched[dir] = true
		}
	}

	runOnce := func() {
		if _, err := v.verify(ctx, opts); err != nil && ctx.Err() == nil {
			fmt.Fprintf(v.out, "%s\n", paint(v.out, ansiRed, "error: "+err.Error()))
		}
		addDirs()
		if !opts.jsonOutput {
			fmt.Fprintln(v.out, "\n👀 Watching for changes (Ctrl+C to stop)")
		}
	}

	addDirs()
	runOnce()

	timer := time.NewTimer(watchDebounce)
	timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if relevantChange(event) {
				timer.Reset(watchDebounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			v.logger.Warn("watch error", "error", err)
		case <-timer.C:
			if !opts.jsonOutput {
				fmt.Fprintln(v.out, "\n🔄 Change detected, verifying again")
			}
			runOnce()
		}
	}
}

var watchedExtensions = map[string]bool{
	".json": true,
	".yaml": true,
	".yml":  true,
	".toml": true,
	".md":   true,
}

func relevantChange(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return false
	}
	return watchedExtensions[strings.ToLower(filepath.Ext(event.Name))]
}

// watchDirs lists the suite directory and the directories holding the
// artifact and schema files it references by path. Watches are not
// recursive, so artifacts referenced by bare contract name are not followed.
func watchDirs(configPath string) []string {
	base, err := filepath.Abs(filepath.Dir(configPath))
	if err != nil {
		base = filepath.Dir(configPath)
	}
	dirs := []string{base}
	seen := map[string]bool{base: true}

	cfg, err := loader.Load(configPath)
	if err != nil {
		return dirs
	}
	add := func(ref string) {
		if ref == "" || (!strings.HasSuffix(ref, ".json") && !strings.Contains(ref, "/")) {
			return
		}
		path := ref
		if !filepath.IsAbs(path) {
			path = filepath.Join(cfg.Dir, ref)
		}
		dir := filepath.Dir(path)
		if seen[dir] {
			return
		}
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			return
		}
		seen[dir] = true
		dirs = append(dirs, dir)
	}
	for _, c := range cfg.Suite.Contracts {
		add(c.ArtifactFile)
		if c.State != nil {
			add(c.State.SchemaFile)
		}
	}
	return dirs
}
