package main

import (
	"os"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/wbcard-cli/internal/output"
	"github.com/sells-group/wbcard-cli/pkg/wbapi"
)

var promptsCmd = &cobra.Command{
	Use:   "prompts",
	Short: "Manage the generation prompt templates",
}

var promptsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active prompt templates",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := initAPI(ctx, "api")
		if err != nil {
			return err
		}
		defer env.Close()

		prompts, err := env.Client.ListPrompts(ctx)
		if err != nil {
			return err
		}
		rows := make([][]string, 0, len(prompts))
		for _, p := range prompts {
			rows = append(rows, []string{
				p.PromptType,
				strconv.Itoa(p.Version),
				strconv.FormatBool(p.IsActive),
				p.UpdatedAt,
				output.Truncate(p.SystemPrompt, 60),
			})
		}
		return output.Rows(cmd.OutOrStdout(), []string{"Type", "Version", "Active", "Updated", "System prompt"}, rows)
	},
}

var promptsGetCmd = &cobra.Command{
	Use:   "get <type>",
	Short: "Print a prompt template as YAML",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initAPI(ctx, "api")
		if err != nil {
			return err
		}
		defer env.Close()

		p, err := env.Client.GetPrompt(ctx, args[0])
		if err != nil {
			return err
		}
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		defer enc.Close() //nolint:errcheck
		return enc.Encode(wbapi.PromptInput{
			PromptType:   p.PromptType,
			SystemPrompt: p.SystemPrompt,
			StrictRules:  p.StrictRules,
			Examples:     p.Examples,
		})
	},
}

var promptsPreviewCmd = &cobra.Command{
	Use:   "preview <type>",
	Short: "Print the fully assembled prompt",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initAPI(ctx, "api")
		if err != nil {
			return err
		}
		defer env.Close()

		pv, err := env.Client.PreviewPrompt(ctx, args[0])
		if err != nil {
			return err
		}
		printer.Header(pv.PromptType + " v" + strconv.Itoa(pv.Version))
		printer.Print("%s", pv.FullPrompt)
		return nil
	},
}

var promptsVersionsCmd = &cobra.Command{
	Use:   "versions <type>",
	Short: "List stored revisions of a template",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initAPI(ctx, "api")
		if err != nil {
			return err
		}
		defer env.Close()

		versions, err := env.Client.PromptVersions(ctx, args[0])
		if err != nil {
			return err
		}
		rows := make([][]string, 0, len(versions))
		for _, v := range versions {
			rows = append(rows, []string{strconv.Itoa(v.Version), v.CreatedAt, v.CreatedBy, v.ChangeReason})
		}
		return output.Rows(cmd.OutOrStdout(), []string{"Version", "Created", "By", "Reason"}, rows)
	},
}

var promptsTypesCmd = &cobra.Command{
	Use:   "types",
	Short: "List the template slots the backend knows",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := initAPI(ctx, "api")
		if err != nil {
			return err
		}
		defer env.Close()

		types, err := env.Client.PromptTypes(ctx)
		if err != nil {
			return err
		}
		rows := make([][]string, 0, len(types))
		for _, t := range types {
			rows = append(rows, []string{t.Type, t.Category, t.Description})
		}
		return output.Rows(cmd.OutOrStdout(), []string{"Type", "Category", "Description"}, rows)
	},
}

var promptsPushCmd = &cobra.Command{
	Use:   "push",
	Short: "Create or update a template from a YAML file",
	Long:  "Reads {prompt_type, system_prompt, strict_rules, examples, change_reason} from -f. An existing template gets a new version; a missing one is created.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		path, _ := cmd.Flags().GetString("file")
		in, err := loadPromptFile(path)
		if err != nil {
			return err
		}

		env, err := initAPI(ctx, "api")
		if err != nil {
			return err
		}
		defer env.Close()

		p, err := pushPrompt(cmd, env.Client, in)
		if err != nil {
			return err
		}
		printer.Success("Prompt %s is at version %d.", p.PromptType, p.Version)
		return nil
	},
}

var promptsActivateCmd = &cobra.Command{
	Use:   "activate <type>",
	Short: "Re-activate a template",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initAPI(ctx, "api")
		if err != nil {
			return err
		}
		defer env.Close()

		if _, err := env.Client.ActivatePrompt(ctx, args[0]); err != nil {
			return err
		}
		printer.Success("Prompt %s activated.", args[0])
		return nil
	},
}

var promptsDeactivateCmd = &cobra.Command{
	Use:   "deactivate <type>",
	Short: "Deactivate a template",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initAPI(ctx, "api")
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Client.DeactivatePrompt(ctx, args[0]); err != nil {
			return err
		}
		printer.Success("Prompt %s deactivated.", args[0])
		return nil
	},
}

func init() {
	promptsPushCmd.Flags().StringP("file", "f", "", "YAML template file")
	_ = promptsPushCmd.MarkFlagRequired("file")

	promptsCmd.AddCommand(promptsListCmd)
	promptsCmd.AddCommand(promptsGetCmd)
	promptsCmd.AddCommand(promptsPreviewCmd)
	promptsCmd.AddCommand(promptsVersionsCmd)
	promptsCmd.AddCommand(promptsTypesCmd)
	promptsCmd.AddCommand(promptsPushCmd)
	promptsCmd.AddCommand(promptsActivateCmd)
	promptsCmd.AddCommand(promptsDeactivateCmd)
	rootCmd.AddCommand(promptsCmd)
}

// loadPromptFile reads a template definition from YAML.
func loadPromptFile(path string) (wbapi.PromptInput, error) {
	var in wbapi.PromptInput
	data, err := os.ReadFile(path)
	if err != nil {
		return in, eris.Wrap(err, "prompts: read file")
	}
	if err := yaml.Unmarshal(data, &in); err != nil {
		return in, eris.Wrapf(err, "prompts: parse %s", path)
	}
	if in.PromptType == "" {
		return in, eris.Errorf("prompts: %s has no prompt_type", path)
	}
	if in.SystemPrompt == "" {
		return in, eris.Errorf("prompts: %s has no system_prompt", path)
	}
	return in, nil
}

// pushPrompt updates the template when it exists and creates it otherwise.
func pushPrompt(cmd *cobra.Command, client wbapi.PromptAPI, in wbapi.PromptInput) (*wbapi.Prompt, error) {
	ctx := cmd.Context()
	_, err := client.GetPrompt(ctx, in.PromptType)
	switch {
	case err == nil:
		return client.UpdatePrompt(ctx, in.PromptType, in)
	case wbapi.IsNotFound(err):
		return client.CreatePrompt(ctx, in)
	default:
		return nil, err
	}
}
