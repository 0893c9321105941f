package cli

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rpattn/medallion/internal/config"
	"github.com/rpattn/medallion/internal/domain"
	"github.com/rpattn/medallion/internal/pipeline"

	"github.com/spf13/cobra"
)

// stageFlags are the per-command overrides of the pipeline configuration.
type stageFlags struct {
	entities        []string
	sourceDir       string
	scope           string
	allowAbsent     bool
	continueOnError bool
}

func (f *stageFlags) apply(cmd *cobra.Command) func(*config.Config) {
	return func(cfg *config.Config) {
		flags := cmd.Flags()
		if flags.Changed("entity") {
			cfg.Pipeline.Order = f.entities
		}
		if flags.Changed("source-dir") {
			cfg.Pipeline.SourceDir = f.sourceDir
		}
		if flags.Changed("scope") {
			cfg.Pipeline.TransactionScope = f.scope
		}
		if flags.Changed("allow-absent-dependencies") {
			cfg.Pipeline.AllowAbsentDependencies = f.allowAbsent
		}
		if flags.Changed("continue-on-error") {
			cfg.Pipeline.ContinueOnError = f.continueOnError
		}
	}
}

func addEntityFlag(cmd *cobra.Command, f *stageFlags) {
	cmd.Flags().StringSliceVarP(&f.entities, "entity", "e", nil, "entities to process, in order (default: all, dependency order)")
}

func addSourceFlag(cmd *cobra.Command, f *stageFlags) {
	cmd.Flags().StringVar(&f.sourceDir, "source-dir", "", "directory holding the raw entity files")
}

func addPromoteFlags(cmd *cobra.Command, f *stageFlags) {
	cmd.Flags().StringVar(&f.scope, "scope", "", "transaction scope for promotion (batch|entity)")
	cmd.Flags().BoolVar(&f.allowAbsent, "allow-absent-dependencies", false, "promote entities whose dependencies are not part of this run")
}

// NewInitCommand creates the init command.
func NewInitCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the bronze, silver and audit schemas and entity tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStages(cmd, opts, nil, pipeline.StageInit)
		},
	}
}

// NewIngestCommand creates the ingest command.
func NewIngestCommand(opts *RootOptions) *cobra.Command {
	f := &stageFlags{}
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Load raw entity files into the bronze tier",
		Long: `Load each entity's source file into its bronze table, replacing the previous
contents, and append one audit record per entity. A failing entity does not
stop the others.

Example:
  medallion ingest
  medallion ingest --entity users,content --source-dir ./bronze_inputs`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStages(cmd, opts, f.apply(cmd), pipeline.StageIngest)
		},
	}
	addEntityFlag(cmd, f)
	addSourceFlag(cmd, f)
	return cmd
}

// NewPromoteCommand creates the promote-silver command.
func NewPromoteCommand(opts *RootOptions) *cobra.Command {
	f := &stageFlags{}
	cmd := &cobra.Command{
		Use:   "promote-silver",
		Short: "Rebuild the silver tier from bronze and quarantine rejected rows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStages(cmd, opts, f.apply(cmd), pipeline.StagePromote)
		},
	}
	addEntityFlag(cmd, f)
	addPromoteFlags(cmd, f)
	return cmd
}

// NewRunAllCommand creates the run-all command.
func NewRunAllCommand(opts *RootOptions) *cobra.Command {
	f := &stageFlags{}
	cmd := &cobra.Command{
		Use:   "run-all",
		Short: "Run init, ingest and promote-silver in sequence",
		Long: `Run every stage under one run id. By default the run stops at the first
failed stage and names it; --continue-on-error runs the remaining stages anyway.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStages(cmd, opts, f.apply(cmd), pipeline.AllStages...)
		},
	}
	addEntityFlag(cmd, f)
	addSourceFlag(cmd, f)
	addPromoteFlags(cmd, f)
	cmd.Flags().BoolVar(&f.continueOnError, "continue-on-error", false, "run later stages after a stage fails")
	return cmd
}

func runStages(cmd *cobra.Command, opts *RootOptions, adjust func(*config.Config), stages ...pipeline.Stage) error {
	ctx := cmd.Context()

	a, err := loadApp(opts, cmd.ErrOrStderr(), adjust)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.connect(ctx); err != nil {
		return err
	}
	runner, err := a.runner()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	result := runner.Run(ctx, stages...)
	p := printer{format: opts.Format, w: cmd.OutOrStdout()}
	if err := printRun(p, result); err != nil {
		return WrapExitError(ExitFailure, "failed to write output", err)
	}

	if err := result.Err(); err != nil {
		code := ExitFailure
		if errors.Is(err, domain.ErrConfiguration) {
			code = ExitCommandError
		}
		return WrapExitError(code, "pipeline failed", err)
	}
	return nil
}

type entitySummary struct {
	Entity   string           `json:"entity"`
	Status   string           `json:"status"`
	Rows     *int             `json:"rows,omitempty"`
	Checksum string           `json:"checksum,omitempty"`
	Accepted *int64           `json:"accepted,omitempty"`
	Rejected map[string]int64 `json:"rejected,omitempty"`
	Error    string           `json:"error,omitempty"`
}

type stageSummary struct {
	Stage      string          `json:"stage"`
	OK         bool            `json:"ok"`
	DurationMS int64           `json:"duration_ms"`
	Error      string          `json:"error,omitempty"`
	Entities   []entitySummary `json:"entities,omitempty"`
}

type runSummary struct {
	RunID  string         `json:"run_id"`
	OK     bool           `json:"ok"`
	Stages []stageSummary `json:"stages"`
}

func summarize(result pipeline.Result) runSummary {
	out := runSummary{RunID: result.RunID.String(), OK: result.OK()}
	for _, s := range result.Stages {
		stage := stageSummary{Stage: string(s.Stage), OK: s.OK(), DurationMS: s.Duration.Milliseconds()}
		if s.Err != nil {
			stage.Error = s.Err.Error()
		}
		if s.Ingest != nil {
			for _, res := range s.Ingest.Results {
				rows := res.Rows
				e := entitySummary{Entity: res.Entity, Status: string(domain.AuditStatusSuccess), Rows: &rows, Checksum: res.Checksum}
				if res.Err != nil {
					e.Status = string(domain.AuditStatusFailure)
					e.Error = res.Err.Error()
				}
				stage.Entities = append(stage.Entities, e)
			}
		}
		if s.Promote != nil {
			for _, res := range s.Promote.Results {
				accepted := res.Accepted
				e := entitySummary{Entity: res.Entity, Status: string(res.Status), Accepted: &accepted, Rejected: res.Rejected}
				if res.Err != nil {
					e.Error = res.Err.Error()
				}
				stage.Entities = append(stage.Entities, e)
			}
		}
		out.Stages = append(out.Stages, stage)
	}
	return out
}

func printRun(p printer, result pipeline.Result) error {
	summary := summarize(result)
	if p.json() {
		return p.encode(summary)
	}

	fmt.Fprintf(p.w, "run %s\n", summary.RunID)
	for _, s := range summary.Stages {
		status := "ok"
		if !s.OK {
			status = "FAILED"
		}
		fmt.Fprintf(p.w, "stage %s: %s (%s)\n", s.Stage, status, time.Duration(s.DurationMS)*time.Millisecond)
		if len(s.Entities) == 0 && s.Error != "" {
			fmt.Fprintf(p.w, "  %s\n", s.Error)
			continue
		}

		tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
		for _, e := range s.Entities {
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", e.Entity, e.Status, entityDetail(e), e.Error)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func entityDetail(e entitySummary) string {
	var parts []string
	if e.Rows != nil {
		parts = append(parts, fmt.Sprintf("rows=%d", *e.Rows), "checksum="+e.Checksum)
	}
	if e.Accepted != nil {
		parts = append(parts, fmt.Sprintf("accepted=%d", *e.Accepted))
		rules := make([]string, 0, len(e.Rejected))
		for rule := range e.Rejected {
			rules = append(rules, rule)
		}
		sort.Strings(rules)
		for _, rule := range rules {
			parts = append(parts, fmt.Sprintf("%s=%d", rule, e.Rejected[rule]))
		}
	}
	return strings.Join(parts, " ")
}
