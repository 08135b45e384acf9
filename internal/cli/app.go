// Package cli is the command line adapter. Every command decodes its
// arguments into a service request, so the CLI answers exactly as the
// HTTP and JSON-RPC adapters do.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"pmat/internal/config"
	pmerrors "pmat/internal/errors"
	"pmat/internal/history"
	"pmat/internal/repostate"
	"pmat/internal/service"
	"pmat/internal/slogutil"
	"pmat/internal/version"
)

// App holds the process streams and the lazily built service.
type App struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	// LookupEnv reads the environment. Nil uses os.LookupEnv.
	LookupEnv func(string) (string, bool)
	// Service replaces the service built from configuration.
	Service *service.Service
	// Now overrides the report clock of a built service.
	Now func() time.Time

	flags   globalFlags
	root    string
	cfg     *config.Config
	logger  *slog.Logger
	svc     *service.Service
	history *history.Store
}

type globalFlags struct {
	logLevel string
	verbose  int
	quiet    bool
	cacheDir string
	noCache  bool
	timeout  time.Duration
}

// NewApp returns an App bound to the process streams.
func NewApp() *App {
	return &App{Stdin: os.Stdin, Stdout: os.Stdout, Stderr: os.Stderr}
}

func (a *App) lookupEnv(name string) (string, bool) {
	if a.LookupEnv != nil {
		return a.LookupEnv(name)
	}
	return os.LookupEnv(name)
}

// Execute runs one command line and returns the process exit status.
func Execute(ctx context.Context, app *App, args []string) int {
	err := run(ctx, app, args)
	if err == nil {
		return pmerrors.ExitOK
	}
	var res *resultError
	if errors.As(err, &res) {
		if res.msg != "" {
			fmt.Fprintln(app.Stderr, res.msg)
		}
		return res.code
	}
	printError(app.Stderr, err)
	if isUsage(err) {
		return pmerrors.ExitUsage
	}
	return pmerrors.ExitCode(err)
}

func run(ctx context.Context, app *App, args []string) error {
	defer app.close()
	cmd := NewRootCommand(app)
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}

// NewRootCommand builds the command tree around app.
func NewRootCommand(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:   "pmat",
		Short: "pmat - project quality analysis and scaffolding",
		Long: `pmat analyzes source trees for complexity, churn, dependency structure,
dead code, duplication, technical debt and provability, and renders
project templates. The same operations are served over HTTP and JSON-RPC.`,
		Version:           version.Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: app.setup,
	}
	root.SetIn(app.Stdin)
	root.SetOut(outputWriter{w: app.Stdout})
	root.SetErr(app.Stderr)
	root.SetVersionTemplate("pmat version {{.Version}}\n")
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error { return usageError{err} })

	pf := root.PersistentFlags()
	pf.StringVar(&app.flags.logLevel, "log-level", "", "Log level: debug, info, warn or error (overrides PMAT_LOG and RUST_LOG)")
	pf.CountVarP(&app.flags.verbose, "verbose", "v", "Log verbosity: -v info, -vv debug")
	pf.BoolVarP(&app.flags.quiet, "quiet", "q", false, "Disable logging")
	pf.StringVar(&app.flags.cacheDir, "cache-dir", "", "Cache directory (default: <repo>/.pmat-cache)")
	pf.BoolVar(&app.flags.noCache, "no-cache", false, "Keep caches in memory only")
	pf.DurationVar(&app.flags.timeout, "timeout", 0, "Per-request deadline (default: server.timeoutMs)")

	root.AddCommand(
		newGenerateCmd(app),
		newScaffoldCmd(app),
		newListCmd(app),
		newSearchCmd(app),
		newValidateCmd(app),
		newContextCmd(app),
		newAnalyzeCmd(app),
		newQualityGateCmd(app),
		newRefactorCmd(app),
		newServeCmd(app),
		newMCPCmd(app),
		newDemoCmd(app),
		newVersionCmd(app),
	)
	return root
}

// setup loads configuration and the logger. The repository around the
// working directory supplies .pmat/config; outside a repository the
// working directory does.
func (a *App) setup(cmd *cobra.Command, _ []string) error {
	if a.cfg != nil {
		return nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return pmerrors.New(pmerrors.InternalError, "working directory", err)
	}
	a.root = wd
	if r, err := repostate.FindRoot(wd); err == nil {
		a.root = r
	}
	cfg, err := config.LoadConfig(a.root)
	if err != nil {
		return pmerrors.New(pmerrors.InvalidInput, "load configuration", err)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		problems := make([]pmerrors.Problem, len(errs))
		for i, e := range errs {
			problems[i] = pmerrors.Problem{Field: e.Field, Message: e.Message}
		}
		return pmerrors.Invalid(problems...)
	}
	a.cfg = cfg
	a.logger = slogutil.NewLogger(a.Stderr, a.level(cmd))
	a.logger.Debug("configuration loaded", "root", a.root, "command", cmd.Name())
	return nil
}

// level resolves the log level: --log-level, then -v/-q, then PMAT_LOG or
// RUST_LOG, then logging.level. An empty env var selects info.
func (a *App) level(cmd *cobra.Command) slog.Level {
	if f := cmd.Flag("log-level"); f != nil && f.Changed {
		return slogutil.LevelFromString(a.flags.logLevel)
	}
	if a.flags.verbose > 0 || a.flags.quiet {
		return slogutil.LevelFromVerbosity(a.flags.verbose, a.flags.quiet)
	}
	if lvl, ok := slogutil.LevelFromEnv(a.lookupEnv, slog.LevelInfo); ok {
		return lvl
	}
	if a.cfg.Logging.Level != "" {
		return slogutil.LevelFromString(a.cfg.Logging.Level)
	}
	return slog.LevelInfo
}

func (a *App) cacheDir() string {
	if a.flags.noCache {
		return ""
	}
	dir := a.flags.cacheDir
	if dir == "" {
		dir = a.cfg.Cache.Dir
	}
	if dir != "" && !filepath.IsAbs(dir) {
		dir = filepath.Join(a.root, dir)
	}
	return dir
}

// service returns the shared service, building it on first use. withHistory
// opens the history store in the cache directory.
func (a *App) service(withHistory bool) (*service.Service, error) {
	if a.Service != nil {
		return a.Service, nil
	}
	if a.svc != nil {
		return a.svc, nil
	}
	dir := a.cacheDir()
	opts := service.Options{
		Logger:   a.logger,
		Config:   a.cfg,
		CacheDir: dir,
		Timeout:  a.flags.timeout,
		Now:      a.Now,
	}
	if withHistory {
		histDir := dir
		if histDir == "" {
			histDir = filepath.Join(a.root, config.Dir)
		}
		store, err := history.Open(histDir, a.logger)
		if err != nil {
			return nil, err
		}
		a.history = store
		opts.History = store
	}
	svc, err := service.New(opts)
	if err != nil {
		return nil, err
	}
	a.svc = svc
	return svc, nil
}

// call sends one request through the service. Failed responses come
// back as typed errors.
func (a *App) call(ctx context.Context, method, path string, body any) (*service.Response, error) {
	return a.callWith(ctx, false, method, path, body)
}

func (a *App) callWith(ctx context.Context, withHistory bool, method, path string, body any) (*service.Response, error) {
	svc, err := a.service(withHistory)
	if err != nil {
		return nil, err
	}
	resp, err := svc.Call(ctx, method, path, body, "cli")
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	return resp, nil
}

func (a *App) close() {
	if a.history != nil {
		if err := a.history.Close(); err != nil && a.logger != nil {
			a.logger.Warn("close history store", "error", err)
		}
		a.history = nil
	}
}

// usageError marks malformed command lines.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

// isUsage reports command line errors: flagged usage errors and the
// untyped errors cobra returns for unknown commands and argument counts.
func isUsage(err error) bool {
	var u usageError
	if errors.As(err, &u) {
		return true
	}
	_, typed := pmerrors.As(err)
	return !typed
}

// resultError ends a command that already printed its result with a
// non-zero status, such as a failed quality gate.
type resultError struct {
	code int
	msg  string
}

func (e *resultError) Error() string { return e.msg }
func (e *resultError) ExitCode() int { return e.code }

func printError(w io.Writer, err error) {
	pe, ok := pmerrors.As(err)
	if !ok {
		fmt.Fprintf(w, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(w, "Error: %v\n", pe)
	for _, p := range pe.Problems {
		fmt.Fprintf(w, "  - %s: %s\n", p.Field, p.Message)
	}
	for _, f := range pe.SuggestedFixes {
		fmt.Fprintf(w, "  hint: %s\n", f.Description)
	}
}
