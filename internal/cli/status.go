package cli

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	types "github.com/yungbote/mechdata-backend/internal/domain"
)

func statusCommand(r *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show pipeline counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := r.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			snap, err := a.Services.Status.Snapshot(cmd.Context())
			if err != nil {
				return err
			}
			if r.jsonOut {
				return r.printJSON(snap)
			}
			rows := [][]string{
				{"METRIC", "VALUE"},
				{"staging records", strconv.FormatInt(snap.StagingTotal, 10)},
				{"staging finalized", strconv.FormatInt(snap.StagingFinalized, 10)},
				{"pending finalization", strconv.FormatInt(snap.PendingFinalize, 10)},
				{"blocked on resolution", strconv.FormatInt(snap.BlockedRecords, 10)},
				{"resolution rate", fmt.Sprintf("%.1f%%", snap.ResolutionRate*100)},
				{"finalized units", strconv.FormatInt(snap.FinalizedUnits, 10)},
				{"rated units", strconv.FormatInt(snap.RatedUnits, 10)},
				{"weapons", strconv.FormatInt(snap.Weapons, 10)},
				{"aliases", strconv.FormatInt(snap.Aliases, 10)},
				{"unresolved tokens", strconv.FormatInt(snap.UnresolvedTokens, 10)},
			}
			for _, k := range sortedKeys(snap.Slots) {
				rows = append(rows, []string{"slots " + k, strconv.FormatInt(snap.Slots[types.ResolutionState(k)], 10)})
			}
			for _, k := range sortedKeys(snap.Jobs) {
				rows = append(rows, []string{"jobs " + k, strconv.FormatInt(snap.Jobs[types.JobStatus(k)], 10)})
			}
			for _, k := range sortedKeys(snap.IngestOutcomes) {
				rows = append(rows, []string{"ingest " + k, strconv.FormatInt(snap.IngestOutcomes[k], 10)})
			}
			return table(r.out, rows)
		},
	}
}

func unresolvedCommand(r *runtime) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "unresolved",
		Short: "List the most frequent unresolved slot texts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := r.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			tokens, err := a.Services.Status.TopUnresolved(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if r.jsonOut {
				return r.printJSON(tokens)
			}
			rows := [][]string{{"COUNT", "TOKEN", "SAMPLE", "LAST SEEN"}}
			for _, t := range tokens {
				rows = append(rows, []string{strconv.FormatInt(t.Count, 10), t.Token, t.SampleRaw, t.LastSeenAt.Format("2006-01-02 15:04")})
			}
			return table(r.out, rows)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 25, "Number of tokens to show")
	return cmd
}

func sortedKeys[K ~string, V any](m map[K]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, string(k))
	}
	sort.Strings(out)
	return out
}
