package main

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/wbcard-cli/internal/export"
	"github.com/sells-group/wbcard-cli/internal/merge"
	"github.com/sells-group/wbcard-cli/internal/model"
	"github.com/sells-group/wbcard-cli/internal/session"
	"github.com/sells-group/wbcard-cli/internal/store"
	"github.com/sells-group/wbcard-cli/pkg/wbapi"
)

var finalCmd = &cobra.Command{
	Use:   "final [session-id]",
	Short: "Build the final card from a session's result",
	Long: "Merges the old and new values of a session's result. Every field defaults to the new value; " +
		"--title, --description and --char pick the old one. Without a session id the active session is used.",
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initLocal(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		final, err := buildFinal(cmd, st, args)
		if err != nil {
			return err
		}

		out, _ := cmd.Flags().GetString("out")
		xlsxPath, _ := cmd.Flags().GetString("xlsx")
		if out == "" && xlsxPath == "" {
			return export.WriteJSON(cmd.OutOrStdout(), final)
		}
		if out != "" {
			if err := export.WriteFile(out, final); err != nil {
				return err
			}
			printer.Success("Wrote %s", out)
		}
		if xlsxPath != "" {
			if err := export.WriteXLSX(xlsxPath, final); err != nil {
				return err
			}
			printer.Success("Wrote %s", xlsxPath)
		}
		return nil
	},
}

var submitCmd = &cobra.Command{
	Use:   "submit [session-id]",
	Short: "Push the final card to the marketplace",
	Long: "Builds the final card like `final`, combines it with the marketplace's current card " +
		"(brand, dimensions, sizes, characteristic ids) and sends the update.",
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initAPI(ctx, "api")
		if err != nil {
			return err
		}
		defer env.Close()

		final, err := buildFinal(cmd, env.Store, args)
		if err != nil {
			return err
		}
		lookup, err := cardArticle(final)
		if err != nil {
			return err
		}
		current, err := env.Client.CurrentCard(ctx, lookup)
		if err != nil {
			return err
		}
		update, err := wbapi.NewCardUpdate(final, current)
		if err != nil {
			return err
		}

		if dry, _ := cmd.Flags().GetBool("dry-run"); dry {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			enc.SetEscapeHTML(false)
			return enc.Encode([]wbapi.CardUpdate{update})
		}

		resp, err := env.Client.UpdateCards(ctx, []wbapi.CardUpdate{update})
		if err != nil {
			return err
		}
		printer.Success("Submitted nmID %d (%s).", update.NmID, final.Article)
		if len(resp) > 0 {
			printer.Print("%s", string(resp))
		}
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{finalCmd, submitCmd} {
		c.Flags().String("title", "new", "title side: old or new")
		c.Flags().String("description", "new", "description side: old or new")
		c.Flags().StringArray("char", nil, "characteristic side as name=old|new (repeatable)")
	}
	finalCmd.Flags().StringP("out", "o", "", "write the record to a file (.json or .xlsx)")
	finalCmd.Flags().String("xlsx", "", "write the record to an Excel file")
	submitCmd.Flags().Bool("dry-run", false, "print the update payload instead of sending it")

	rootCmd.AddCommand(finalCmd)
	rootCmd.AddCommand(submitCmd)
}

// buildFinal resolves the session named by args (or the active one) and
// merges it with the selection given by flags.
func buildFinal(cmd *cobra.Command, st store.SessionStore, args []string) (model.FinalRecord, error) {
	mgr := session.NewManager(st, nil)
	id := ""
	if len(args) > 0 {
		id = args[0]
	}
	sess, err := mgr.Resolve(cmd.Context(), id)
	if err != nil {
		return model.FinalRecord{}, err
	}
	if sess.Result == nil {
		return model.FinalRecord{}, eris.Errorf("session %s has no result (status %s)", sess.ID, sess.Status)
	}

	sel, err := selectionFromFlags(cmd, sess.Result)
	if err != nil {
		return model.FinalRecord{}, err
	}
	return mgr.Final(cmd.Context(), sess.ID, sel)
}

func selectionFromFlags(cmd *cobra.Command, result *model.ResultRecord) (merge.Selection, error) {
	sel := merge.NewSelection(result)

	title, _ := cmd.Flags().GetString("title")
	c, err := merge.ParseChoice(title)
	if err != nil {
		return sel, eris.Wrap(err, "--title")
	}
	sel.Title = c

	desc, _ := cmd.Flags().GetString("description")
	if c, err = merge.ParseChoice(desc); err != nil {
		return sel, eris.Wrap(err, "--description")
	}
	sel.Description = c

	chars, _ := cmd.Flags().GetStringArray("char")
	known := make(map[string]bool)
	for _, name := range result.CharacteristicNames() {
		known[name] = true
	}
	for _, arg := range chars {
		name, side, ok := strings.Cut(arg, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return sel, eris.Errorf("--char %q: want name=old|new", arg)
		}
		if !known[name] {
			return sel, eris.Errorf("--char %q: the result has no characteristic %q", arg, name)
		}
		c, err := merge.ParseChoice(side)
		if err != nil {
			return sel, eris.Wrapf(err, "--char %q", arg)
		}
		sel.Set(name, c)
	}
	return sel, nil
}

// cardArticle returns the key the live card is looked up by. A server batch
// session is labelled with the joined article list, so its card is found by
// the nmID of the surfaced result instead.
func cardArticle(final model.FinalRecord) (string, error) {
	if !strings.Contains(final.Article, batchLabelSep) {
		return final.Article, nil
	}
	if final.NmID == 0 {
		return "", eris.Errorf("submit: %q is a server batch session and its result has no nmID", final.Article)
	}
	return strconv.FormatInt(final.NmID, 10), nil
}
