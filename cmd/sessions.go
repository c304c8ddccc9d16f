package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/wbcard-cli/internal/merge"
	"github.com/sells-group/wbcard-cli/internal/model"
	"github.com/sells-group/wbcard-cli/internal/session"
	"github.com/sells-group/wbcard-cli/internal/store"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect and manage processing sessions",
}

// -- sessions list --

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		st, err := initLocal(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		article, _ := cmd.Flags().GetString("article")
		limit, _ := cmd.Flags().GetInt("limit")

		list, err := session.NewManager(st, nil).List(ctx, store.SessionFilter{
			Status:  model.SessionStatus(status),
			Article: model.NormalizeArticle(article),
			Limit:   limit,
		})
		if err != nil {
			return err
		}
		return printer.Sessions(list)
	},
}

// -- sessions show --

var sessionsShowCmd = &cobra.Command{
	Use:   "show [session-id]",
	Short: "Show a session's log and result (default: the active session)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initLocal(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		id := ""
		if len(args) > 0 {
			id = args[0]
		}
		sess, err := session.NewManager(st, nil).Resolve(ctx, id)
		if err != nil {
			return err
		}
		printer.Session(sess)
		if sess.Result != nil {
			return printer.Comparison(sess.Result, merge.NewSelection(sess.Result))
		}
		return nil
	},
}

// -- sessions activate --

var sessionsActivateCmd = &cobra.Command{
	Use:   "activate <session-id>",
	Short: "Make a session the active one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initLocal(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		sess, sel, err := session.NewManager(st, nil).Activate(ctx, args[0])
		if err != nil {
			return err
		}
		printer.Success("Session %s (%s) is active.", sess.ID, sess.Article)
		if sess.Result != nil {
			return printer.Comparison(sess.Result, sel)
		}
		return nil
	},
}

// -- sessions clear --

var sessionsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every session and its generated files list",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		st, err := initLocal(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := session.NewManager(st, nil).ClearAll(ctx)
		if err != nil {
			return err
		}
		printer.Success("Deleted %d sessions.", n)
		return nil
	},
}

func init() {
	sessionsListCmd.Flags().String("status", "", "filter by status (processing, done, error)")
	sessionsListCmd.Flags().String("article", "", "filter by article")
	sessionsListCmd.Flags().Int("limit", 50, "max number of sessions to display")

	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	sessionsCmd.AddCommand(sessionsActivateCmd)
	sessionsCmd.AddCommand(sessionsClearCmd)
	rootCmd.AddCommand(sessionsCmd)
}
