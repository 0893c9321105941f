package cli

import (
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/rpattn/medallion/internal/domain"
	"github.com/rpattn/medallion/internal/export"
	"github.com/rpattn/medallion/internal/repository"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type listFlags struct {
	entity string
	rule   string
	runID  string
	limit  int
	offset int
	counts bool
	output string
}

func (f *listFlags) parseRun() (uuid.UUID, error) {
	if f.runID == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(f.runID)
	if err != nil {
		return uuid.Nil, WrapExitError(ExitCommandError, "invalid --run", err)
	}
	return id, nil
}

// NewAuditCommand creates the audit command.
func NewAuditCommand(opts *RootOptions) *cobra.Command {
	f := &listFlags{}
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "List ingestion audit records, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, err := f.parseRun()
			if err != nil {
				return err
			}
			a, err := loadApp(opts, cmd.ErrOrStderr(), nil)
			if err != nil {
				return err
			}
			defer a.close()
			if err := a.connect(cmd.Context()); err != nil {
				return err
			}

			records, err := repository.NewIngestionLogRepository(a.conn.Pool).List(cmd.Context(), repository.AuditFilter{
				EntityName: f.entity,
				RunID:      runID,
				Limit:      f.limit,
				Offset:     f.offset,
			})
			if err != nil {
				return WrapExitError(ExitFailure, "failed to list audit records", err)
			}
			return printAudit(printer{format: opts.Format, w: cmd.OutOrStdout()}, records)
		},
	}
	cmd.Flags().StringVarP(&f.entity, "entity", "e", "", "only records for this entity")
	cmd.Flags().StringVar(&f.runID, "run", "", "only records from this run id")
	cmd.Flags().IntVar(&f.limit, "limit", 50, "maximum number of records")
	cmd.Flags().IntVar(&f.offset, "offset", 0, "records to skip")
	return cmd
}

// NewQuarantineCommand creates the quarantine command.
func NewQuarantineCommand(opts *RootOptions) *cobra.Command {
	f := &listFlags{}
	cmd := &cobra.Command{
		Use:   "quarantine",
		Short: "List rows rejected by quality rules",
		Long: `List quarantined rows, newest first. With --counts, print the number of
rows captured per rule instead (optionally for a single --run). With --output,
write the rows to a CSV or XLSX file with one column per original field.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, err := f.parseRun()
			if err != nil {
				return err
			}
			a, err := loadApp(opts, cmd.ErrOrStderr(), nil)
			if err != nil {
				return err
			}
			defer a.close()
			if err := a.connect(cmd.Context()); err != nil {
				return err
			}

			repo := repository.NewQuarantineRepository(a.conn.Pool)
			p := printer{format: opts.Format, w: cmd.OutOrStdout()}
			if f.counts {
				counts, err := repo.CountByRule(cmd.Context(), runID)
				if err != nil {
					return WrapExitError(ExitFailure, "failed to count quarantined rows", err)
				}
				return printCounts(p, counts)
			}

			table := f.entity
			if table != "" {
				if entity, ok := a.catalog.Lookup(table); ok {
					table = entity.ValidatedTable()
				}
			}
			records, err := repo.List(cmd.Context(), repository.QuarantineFilter{
				TableName: table,
				RuleName:  f.rule,
				RunID:     runID,
				Limit:     f.limit,
				Offset:    f.offset,
			})
			if err != nil {
				return WrapExitError(ExitFailure, "failed to list quarantined rows", err)
			}
			if f.output != "" {
				summary, err := export.Quarantine(f.output, records)
				if err != nil {
					return WrapExitError(ExitFailure, "failed to export quarantined rows", err)
				}
				a.logger.Info("quarantine exported", "path", summary.Path, "rows", summary.Rows, "bytes", summary.BytesWritten)
				return nil
			}
			return printQuarantine(p, records)
		},
	}
	cmd.Flags().StringVarP(&f.entity, "entity", "e", "", "only rows for this entity or table")
	cmd.Flags().StringVar(&f.rule, "rule", "", "only rows rejected by this rule")
	cmd.Flags().StringVar(&f.runID, "run", "", "only rows from this run id")
	cmd.Flags().IntVar(&f.limit, "limit", 50, "maximum number of rows")
	cmd.Flags().IntVar(&f.offset, "offset", 0, "rows to skip")
	cmd.Flags().BoolVar(&f.counts, "counts", false, "print counts per rule instead of rows")
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "write rows to a .csv or .xlsx file instead of stdout")
	return cmd
}

func printAudit(p printer, records []domain.IngestionAuditRecord) error {
	if p.json() {
		if records == nil {
			records = []domain.IngestionAuditRecord{}
		}
		return p.encode(records)
	}
	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RECORDED\tENTITY\tSTATUS\tROWS\tCHECKSUM\tSOURCE\tERROR")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			r.RecordedAt.Format(time.RFC3339), r.EntityName, r.Status, r.RowCount, r.Checksum, r.SourceFile, r.ErrorMessage)
	}
	return tw.Flush()
}

func printQuarantine(p printer, records []domain.QuarantineRecord) error {
	if p.json() {
		if records == nil {
			records = []domain.QuarantineRecord{}
		}
		return p.encode(records)
	}
	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "REJECTED\tTABLE\tRULE\tREASON\tROW")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			r.RejectedAt.Format(time.RFC3339), r.TableName, r.RuleName, r.Reason, string(r.RowData))
	}
	return tw.Flush()
}

func printCounts(p printer, counts map[string]int64) error {
	if p.json() {
		return p.encode(counts)
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RULE\tROWS")
	for _, k := range keys {
		fmt.Fprintf(tw, "%s\t%d\n", k, counts[k])
	}
	return tw.Flush()
}
