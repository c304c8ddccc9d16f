package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sells-group/wbcard-cli/internal/output"
	"github.com/sells-group/wbcard-cli/pkg/wbapi"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Backend processing history",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List past processing runs recorded by the backend",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := initAPI(ctx, "api")
		if err != nil {
			return err
		}
		defer env.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")
		status, _ := cmd.Flags().GetString("status")

		page, err := env.Client.History(ctx, wbapi.HistoryQuery{Limit: limit, Offset: offset, Status: status})
		if err != nil {
			return err
		}
		if len(page.Items) == 0 {
			printer.Info("No history.")
			return nil
		}
		if err := formatHistory(cmd.OutOrStdout(), page.Items); err != nil {
			return err
		}
		printer.Info("Showing %d-%d of %d.", page.Offset+1, page.Offset+len(page.Items), page.Total)
		return nil
	},
}

var historyStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate processing statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := initAPI(ctx, "api")
		if err != nil {
			return err
		}
		defer env.Close()

		days, _ := cmd.Flags().GetInt("days")
		stats, err := env.Client.HistoryStats(ctx, days)
		if err != nil {
			return err
		}
		formatHistoryStats(cmd.OutOrStdout(), stats)
		return nil
	},
}

var keywordsCmd = &cobra.Command{
	Use:   "keywords <characteristic>",
	Short: "Show the allowed values of a characteristic",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initAPI(ctx, "api")
		if err != nil {
			return err
		}
		defer env.Close()

		kw, err := env.Client.Keywords(ctx, args[0])
		if err != nil {
			return err
		}
		printer.Header(args[0])
		if kw.Min != nil || kw.Max != nil {
			printer.Print("Values allowed: %s..%s", intOrDash(kw.Min), intOrDash(kw.Max))
		}
		for _, v := range kw.Values {
			printer.Print("%s", v)
		}
		return nil
	},
}

func init() {
	historyListCmd.Flags().Int("limit", 20, "max number of items")
	historyListCmd.Flags().Int("offset", 0, "items to skip")
	historyListCmd.Flags().String("status", "", "filter by status (completed, failed)")
	historyStatsCmd.Flags().Int("days", 7, "period in days")

	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyStatsCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(keywordsCmd)
}

func intOrDash(v *int) string {
	if v == nil {
		return "-"
	}
	return strconv.Itoa(*v)
}

// formatHistory writes a table of history items to w.
func formatHistory(w io.Writer, items []wbapi.HistoryItem) error {
	rows := make([][]string, 0, len(items))
	for _, it := range items {
		nm := "-"
		if it.NmID != nil {
			nm = strconv.FormatInt(*it.NmID, 10)
		}
		took := "-"
		if it.ProcessingTime != nil {
			took = fmt.Sprintf("%.1fs", *it.ProcessingTime)
		}
		rows = append(rows, []string{
			strconv.FormatInt(it.ID, 10),
			it.Article,
			nm,
			printer.StatusBadge(it.Status),
			output.Score(it.ValidationScore),
			took,
			it.CreatedAt,
			output.Truncate(it.ErrorMessage, 40),
		})
	}
	return output.Rows(w, []string{"ID", "Article", "nmID", "Status", "Score", "Took", "Created", "Error"}, rows)
}

// formatHistoryStats writes a stats summary to w.
func formatHistoryStats(w io.Writer, s *wbapi.HistoryStats) {
	var b strings.Builder
	fmt.Fprintf(&b, "Period:            %d days\n", s.PeriodDays)
	fmt.Fprintf(&b, "Processed:         %d\n", s.TotalProcessed)
	fmt.Fprintf(&b, "Completed:         %d\n", s.Completed)
	fmt.Fprintf(&b, "Failed:            %d\n", s.Failed)
	fmt.Fprintf(&b, "Success rate:      %.1f%%\n", s.SuccessRate)
	fmt.Fprintf(&b, "Avg time:          %.1fs\n", s.AvgProcessingTime)
	fmt.Fprintf(&b, "Avg score:         %.1f\n", s.AvgValidationScore)
	_, _ = io.WriteString(w, b.String())
}
