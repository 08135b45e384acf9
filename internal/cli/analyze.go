package cli

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	pmerrors "pmat/internal/errors"
	"pmat/internal/service"
)

func newContextCmd(app *App) *cobra.Command {
	var req service.ContextRequest
	var output string
	cmd := &cobra.Command{
		Use:   "context",
		Short: "Summarize a project's files, functions and types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			resp, err := app.call(cmd.Context(), http.MethodPost, service.PathContext, req)
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), output, resp.Body)
		},
	}
	cmd.Flags().StringVar(&req.ProjectPath, "project-path", "", "Project directory (default: the repository around the working directory)")
	cmd.Flags().StringVar(&req.Toolchain, "toolchain", "", "Toolchain hint: rust, deno or python-uv")
	cmd.Flags().StringVar(&req.Format, "format", "markdown", "Output format: markdown or json")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to this file instead of stdout")
	return cmd
}

func newAnalyzeCmd(app *App) *cobra.Command {
	kinds := make([]string, len(service.Kinds))
	for i, k := range service.Kinds {
		kinds[i] = string(k)
	}
	var (
		req    service.AnalyzeRequest
		output string
	)
	cmd := &cobra.Command{
		Use:       "analyze <kind>",
		Short:     "Run one analyzer",
		Long:      "Run one analyzer over a project. Kinds: " + strings.Join(kinds, ", ") + ".",
		Example:   "  pmat analyze complexity --top-files 5\n  pmat analyze dag --dag-type import-graph --format mermaid",
		Args:      cobra.ExactArgs(1),
		ValidArgs: kinds,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := app.callWith(cmd.Context(), req.Record, http.MethodPost, service.PathAnalyze+args[0], req)
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), output, resp.Body)
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.ProjectPath, "project-path", "", "Project directory (default: the repository around the working directory)")
	f.StringVar(&req.Format, "format", "", "Output format: json, sarif, markdown, table or mermaid (default: json)")
	f.StringVarP(&output, "output", "o", "", "Write to this file instead of stdout")
	f.IntVar(&req.TopFiles, "top-files", 0, "Rank and keep the N worst files")
	f.StringSliceVar(&req.Exclude, "exclude", nil, "Doublestar globs to skip")
	f.IntVar(&req.PeriodDays, "days", 0, "Churn window in days (default: 30)")
	f.StringVar(&req.DAGType, "dag-type", "", "call-graph, import-graph, inheritance or full-dependency")
	f.BoolVar(&req.ShowComplexity, "show-complexity", false, "Annotate graph nodes with complexity")
	f.BoolVar(&req.FilterExternal, "filter-external", false, "Drop external nodes from the graph")
	f.IntVar(&req.MaxDepth, "max-depth", 0, "Graph depth limit")
	f.BoolVar(&req.IncludeTests, "include-tests", false, "Include test files")
	f.Float64Var(&req.MinConfidence, "min-confidence", 0, "Minimum dead-code confidence")
	f.StringVar(&req.CloneType, "clone-type", "", "all, type1, type2, type3 or type4")
	f.Float64Var(&req.SimilarityThreshold, "threshold", 0, "Minimum clone similarity")
	f.IntVar(&req.MinTokens, "min-tokens", 0, "Minimum clone fragment size in tokens")
	f.StringVar(&req.BaseBranch, "base-branch", "", "Revision to diff against for incremental coverage")
	f.StringVar(&req.CoverageFile, "coverage-file", "", "LCOV tracefile")
	f.BoolVar(&req.Record, "record", false, "Record the TDG run in the history store and report the trend")
	f.BoolVar(&req.CriticalOnly, "critical-only", false, "Only critical TDG hotspots")
	f.BoolVar(&req.HighRiskOnly, "high-risk-only", false, "Only high-risk defect predictions")
	f.Float64Var(&req.ConfidenceThreshold, "confidence-threshold", 0, "Minimum defect prediction confidence")
	f.IntVar(&req.MinLines, "min-lines", 0, "Skip files shorter than this")
	return cmd
}

func newQualityGateCmd(app *App) *cobra.Command {
	var (
		req     service.QualityGateRequest
		output  string
		maxCC   int
		maxDead float64
		minEnt  float64
		minProv float64
		maxSATD int
	)
	cmd := &cobra.Command{
		Use:   "quality-gate",
		Short: "Evaluate quality thresholds; exits 6 when a check fails",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f := cmd.Flags()
			if f.Changed("max-complexity-p99") {
				req.MaxComplexityP99 = &maxCC
			}
			if f.Changed("max-dead-code") {
				req.MaxDeadCode = &maxDead
			}
			if f.Changed("min-entropy") {
				req.MinEntropy = &minEnt
			}
			if f.Changed("min-provability") {
				req.MinProvability = &minProv
			}
			if f.Changed("max-satd-critical") {
				req.MaxSATDCritical = &maxSATD
			}
			if req.Format == "" {
				req.Format = formatTable
			}
			resp, err := app.call(cmd.Context(), http.MethodPost, service.PathQualityGate, req)
			if err != nil {
				return err
			}
			if err := writeOutput(cmd.OutOrStdout(), output, resp.Body); err != nil {
				return err
			}
			if resp.Headers[service.HeaderGateResult] != service.GatePassed {
				return &resultError{code: pmerrors.ExitQualityGateFail, msg: "quality gate failed"}
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.ProjectPath, "project-path", "", "Project directory (default: the repository around the working directory)")
	f.StringVar(&req.Format, "format", "", "Output format: table, json, sarif or markdown (default: table)")
	f.StringVarP(&output, "output", "o", "", "Write to this file instead of stdout")
	f.StringSliceVar(&req.Checks, "checks", nil, "complexity, dead-code, entropy, provability, satd or all")
	f.StringSliceVar(&req.Exclude, "exclude", nil, "Doublestar globs to skip")
	f.IntVar(&maxCC, "max-complexity-p99", 0, "Maximum p99 cyclomatic complexity")
	f.Float64Var(&maxDead, "max-dead-code", 0, "Maximum dead code percentage")
	f.Float64Var(&minEnt, "min-entropy", 0, "Minimum identifier entropy")
	f.Float64Var(&minProv, "min-provability", 0, "Minimum average provability")
	f.IntVar(&maxSATD, "max-satd-critical", 0, "Maximum critical SATD items")
	return cmd
}

func newRefactorCmd(app *App) *cobra.Command {
	var (
		req    service.RefactorRequest
		output string
	)
	cmd := &cobra.Command{
		Use:   "refactor",
		Short: "Run the refactor state machine and print suggested operations",
		Long: `Walk the project through the refactor state machine: scan, analyze,
plan, refactor, test, lint, emit and checkpoint for every target. Files are
never rewritten; suggestions are reported, optionally as patches. Progress
is saved after each transition and --resume continues a paused run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if req.Format == "" {
				req.Format = "markdown"
			}
			resp, err := app.call(cmd.Context(), http.MethodPost, service.PathRefactor, req)
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), output, resp.Body)
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.ProjectPath, "project-path", "", "Project directory (default: the repository around the working directory)")
	f.StringVar(&req.Format, "format", "", "Output format: markdown or json (default: markdown)")
	f.StringVarP(&output, "output", "o", "", "Write to this file instead of stdout")
	f.StringSliceVar(&req.Files, "files", nil, "Targets (default: every parsed file)")
	f.StringSliceVar(&req.Exclude, "exclude", nil, "Doublestar globs to skip")
	f.BoolVar(&req.Resume, "resume", false, "Continue from the saved snapshot")
	f.StringVar(&req.StateDir, "state-dir", "", "Snapshot directory (default: the cache directory)")
	f.IntVar(&req.MaxSteps, "max-steps", 0, "Stop after N transitions and keep the snapshot")
	f.StringVar(&req.TestCommand, "test-command", "", fmt.Sprintf("Command recorded for the test state (default: %q)", "make test-fast"))
	f.BoolVar(&req.Patches, "patches", false, "Include unified diffs for each suggestion")
	return cmd
}
