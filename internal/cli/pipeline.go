package cli

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/yungbote/mechdata-backend/internal/domain/pipelineerr"
	"github.com/yungbote/mechdata-backend/internal/parser"
	"github.com/yungbote/mechdata-backend/internal/services"
)

func ingestCommand(r *runtime) *cobra.Command {
	var class string
	cmd := &cobra.Command{
		Use:   "ingest <path>...",
		Short: "Parse, stage, resolve and finalize unit files",
		Long: `Ingest MTF and BLK unit files. Directories are walked for .mtf and .blk files.
Each file is staged, its slots are resolved against the weapon catalog, and
fully resolved records are finalized unless --finalize=false.`,
		Args: cobra.MinimumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return bindFlags(r.v, cmd.Flags(), map[string]string{
				"pipeline.valuation_mode": "mode",
				"pipeline.strict":         "strict",
				"pipeline.auto_finalize":  "finalize",
				"pipeline.parallelism":    "parallel",
			})
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			var unitClass parser.UnitClass
			if class != "" {
				c, err := parser.ParseUnitClass(class)
				if err != nil {
					return err
				}
				unitClass = c
			}
			a, err := r.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			rep, err := a.Services.Pipeline.RunFiles(cmd.Context(), args, services.PipelineOptions{
				Class:    unitClass,
				Strict:   a.Cfg.Pipeline.Strict,
				Finalize: a.Cfg.Pipeline.AutoFinalize,
				Mode:     a.Cfg.Pipeline.ValuationMode,
			})
			if err != nil {
				return err
			}
			if r.jsonOut {
				return r.printJSON(rep)
			}
			rows := [][]string{{"FILE", "INGEST", "SLOTS", "UNRESOLVED", "FINALIZE", "REASON"}}
			for _, f := range rep.Files {
				unresolved, finalize, reason := "-", "-", f.Ingest.Reason
				if f.Reason != "" {
					reason = f.Reason
				}
				if f.Resolve != nil {
					unresolved = strconv.Itoa(f.Resolve.Unresolved + f.Resolve.Ambiguous)
				}
				if f.Finalize != nil {
					finalize = string(f.Finalize.Status)
					if reason == "" {
						reason = f.Finalize.Reason
					}
				}
				rows = append(rows, []string{f.Path, string(f.Ingest.Status), strconv.Itoa(f.Ingest.Slots), unresolved, finalize, reason})
			}
			if err := table(r.out, rows); err != nil {
				return err
			}
			fmt.Fprintf(r.out, "\nstaged=%d unchanged=%d failed=%d finalized=%d pending=%d unresolved_slots=%d errored=%d\n",
				rep.Staged, rep.Unchanged, rep.Failed, rep.Finalized, rep.Pending, rep.Unresolved, rep.Errored)
			return nil
		},
	}
	cmd.Flags().StringVar(&class, "class", "", "Force the unit class (mech, vehicle, aerospace, battlearmor, infantry)")
	cmd.Flags().String("mode", "", "Valuation mode on finalize: enqueue, inline or skip")
	cmd.Flags().Bool("strict", false, "Leave ambiguous slots unresolved")
	cmd.Flags().Bool("finalize", true, "Finalize records that resolve completely")
	cmd.Flags().Int("parallel", 0, "Files processed concurrently")
	return cmd
}

func parseIDs(args []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(args))
	for _, a := range args {
		id, err := uuid.Parse(a)
		if err != nil {
			return nil, pipelineerr.New(pipelineerr.CodeValidation, "cli.ids", fmt.Sprintf("invalid record id %q", a), err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func resolveCommand(r *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve [record-id]...",
		Short: "Resolve unresolved staging slots against the weapon catalog",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return bindFlags(r.v, cmd.Flags(), map[string]string{"pipeline.strict": "strict"})
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			a, err := r.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			rep, err := a.Services.Resolver.ResolvePending(cmd.Context(), services.ResolveOptions{
				RecordIDs: ids,
				Strict:    a.Cfg.Pipeline.Strict,
			})
			if err != nil {
				return err
			}
			if r.jsonOut {
				return r.printJSON(rep)
			}
			fmt.Fprintf(r.out, "records=%d resolved=%d structural=%d unresolved=%d ambiguous=%d failed=%d\n",
				len(rep.Records), rep.Resolved, rep.Structural, rep.Unresolved, len(rep.Ambiguous), rep.Failed)
			for _, amb := range rep.Ambiguous {
				fmt.Fprintf(r.out, "  ambiguous %q: %v\n", amb.RawText, amb.Candidates)
			}
			for _, rr := range rep.Records {
				if rr.Failed() {
					fmt.Fprintf(r.out, "  failed %s: %s\n", rr.RecordID, rr.Reason)
				}
			}
			return nil
		},
	}
	cmd.Flags().Bool("strict", false, "Leave ambiguous slots unresolved")
	return cmd
}

func finalizeCommand(r *runtime) *cobra.Command {
	var all bool
	var limit int
	cmd := &cobra.Command{
		Use:   "finalize [record-id]...",
		Short: "Promote fully resolved staging records to finalized units",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if !all && len(args) == 0 {
				return fmt.Errorf("pass record ids or --all")
			}
			return bindFlags(r.v, cmd.Flags(), map[string]string{"pipeline.valuation_mode": "mode"})
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			a, err := r.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			opts := services.FinalizeOptions{Mode: a.Cfg.Pipeline.ValuationMode}
			var outcomes []services.FinalizeOutcome
			if all {
				outcomes, err = a.Services.Finalizer.FinalizeReady(cmd.Context(), opts, limit)
				if err != nil {
					return err
				}
			} else {
				for _, id := range ids {
					out, ferr := a.Services.Finalizer.Finalize(cmd.Context(), id, opts)
					if ferr != nil && !pipelineerr.IsCode(ferr, pipelineerr.CodePendingResolution) &&
						!pipelineerr.IsCode(ferr, pipelineerr.CodeNotFound) {
						return ferr
					}
					outcomes = append(outcomes, out)
				}
			}
			if r.jsonOut {
				return r.printJSON(outcomes)
			}
			rows := [][]string{{"RECORD", "STATUS", "UNIT", "VARIANT", "SLOTS", "WEAPONS", "JOB", "REASON"}}
			for _, o := range outcomes {
				job := "-"
				switch {
				case o.JobID != nil:
					job = o.JobID.String()
				case o.JobDeduped:
					job = "deduped"
				case o.Rated:
					job = "rated"
				}
				rows = append(rows, []string{o.RecordID.String(), string(o.Status), o.ExternalKey, o.Variant,
					strconv.Itoa(o.Slots), strconv.Itoa(o.Instances), job, o.Reason})
			}
			return table(r.out, rows)
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Finalize every record without unresolved slots")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum records with --all (0 means no limit)")
	cmd.Flags().String("mode", "", "Valuation mode: enqueue, inline or skip")
	return cmd
}
