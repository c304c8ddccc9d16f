package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/wbcard-cli/internal/model"
	"github.com/sells-group/wbcard-cli/internal/output"
	"github.com/sells-group/wbcard-cli/internal/reconcile"
	"github.com/sells-group/wbcard-cli/internal/session"
)

var cardCmd = &cobra.Command{
	Use:   "card <article>",
	Short: "Show the marketplace's current card for an article",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initAPI(ctx, "api")
		if err != nil {
			return err
		}
		defer env.Close()

		card, err := env.Client.CurrentCard(ctx, model.NormalizeArticle(args[0]))
		if err != nil {
			return err
		}
		if err := printer.Card(card); err != nil {
			return err
		}
		if urls := card.PhotoURLs(); len(urls) > 0 {
			printer.Header("Photos")
			for _, u := range urls {
				printer.Print("%s", u)
			}
		}
		return nil
	},
}

var processCmd = &cobra.Command{
	Use:   "process <article>",
	Short: "Generate a new card for an article and follow the run live",
	Long: "Starts a generation run, prints the backend log as it streams and stores the run as a session. " +
		"Ctrl-C cancels the run; a result already received is kept.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initAPI(ctx, "stream")
		if err != nil {
			return err
		}
		defer env.Close()

		runOpts := []reconcile.Option{reconcile.WithObserver(output.NewLiveLog(printer))}
		if timeout, _ := cmd.Flags().GetDuration("timeout"); timeout > 0 {
			runOpts = append(runOpts, reconcile.WithIdleTimeout(timeout))
		}

		mgr := initManager(env.Store, env.Client)
		sess, runErr := mgr.Start(ctx, args[0], runOpts...)
		if sess == nil {
			return runErr
		}
		return reportSession(cmd, mgr, sess, runErr)
	},
}

func init() {
	processCmd.Flags().Duration("timeout", 0, "idle timeout for the event stream (default from stream.idle_timeout_secs)")

	rootCmd.AddCommand(cardCmd)
	rootCmd.AddCommand(processCmd)
}

var errSessionFailed = eris.New("session did not produce a result")

// reportSession prints the outcome of a finished run and makes a successful
// session the active one.
func reportSession(cmd *cobra.Command, mgr *session.Manager, sess *model.Session, runErr error) error {
	if sess.Status != model.SessionDone || sess.Result == nil {
		printer.Error("Session %s ended with %s: %s", sess.ID, sess.Status, sess.Error)
		if runErr != nil {
			return runErr
		}
		return errSessionFailed
	}

	_, sel, err := mgr.Activate(cmd.Context(), sess.ID)
	if err != nil {
		return err
	}
	if err := printer.Comparison(sess.Result, sel); err != nil {
		return err
	}
	printer.Success("Session %s done in %s; it is now the active session.",
		sess.ID, time.Since(sess.StartedAt).Round(time.Second))
	return nil
}
