package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/wbcard-cli/internal/output"
	"github.com/sells-group/wbcard-cli/pkg/wbapi"
)

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "Manage photo scene and pose templates and video scenarios",
	Long: "Levels: scene-category, scene-subcategory, scene-item, pose-group, pose-subgroup, pose-prompt. " +
		"Only scene-item and pose-prompt carry a generation prompt.",
}

func treeCmd(use, short string, root wbapi.Level) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			env, err := initAPI(ctx, "api")
			if err != nil {
				return err
			}
			defer env.Close()

			return printTree(ctx, cmd.OutOrStdout(), env.Client, root)
		},
	}
}

var templatesAddCmd = &cobra.Command{
	Use:   "add <level>",
	Short: "Create a template node",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		level, err := wbapi.ParseLevel(args[0])
		if err != nil {
			return err
		}
		parent, _ := cmd.Flags().GetInt64("parent")
		if !level.IsRoot() && parent == 0 {
			return eris.Errorf("templates: %s needs --parent", level)
		}

		env, err := initAPI(ctx, "api")
		if err != nil {
			return err
		}
		defer env.Close()

		node, err := env.Client.CreateNode(ctx, level, parent, nodeInputFromFlags(cmd))
		if err != nil {
			return err
		}
		printer.Success("Created %s %d (%s).", level, node.ID, node.Name)
		return nil
	},
}

var templatesUpdateCmd = &cobra.Command{
	Use:   "update <level> <id>",
	Short: "Update a template node; only the given flags change",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		level, id, err := levelAndID(args)
		if err != nil {
			return err
		}

		env, err := initAPI(ctx, "api")
		if err != nil {
			return err
		}
		defer env.Close()

		node, err := env.Client.UpdateNode(ctx, level, id, nodeInputFromFlags(cmd))
		if err != nil {
			return err
		}
		printer.Success("Updated %s %d (%s).", level, node.ID, node.Name)
		return nil
	},
}

var templatesDeleteCmd = &cobra.Command{
	Use:   "delete <level> <id>",
	Short: "Delete a template node and everything below it",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		level, id, err := levelAndID(args)
		if err != nil {
			return err
		}

		env, err := initAPI(ctx, "api")
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Client.DeleteNode(ctx, level, id); err != nil {
			return err
		}
		printer.Success("Deleted %s %d.", level, id)
		return nil
	},
}

var templatesVideosCmd = &cobra.Command{
	Use:   "videos",
	Short: "List video scenarios",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := initAPI(ctx, "api")
		if err != nil {
			return err
		}
		defer env.Close()

		list, err := env.Client.ListVideoScenarios(ctx)
		if err != nil {
			return err
		}
		rows := make([][]string, 0, len(list))
		for _, v := range list {
			rows = append(rows, []string{
				strconv.FormatInt(v.ID, 10),
				v.Name,
				strconv.Itoa(v.OrderIndex),
				strconv.FormatBool(v.IsActive),
				output.Truncate(v.Prompt, 60),
			})
		}
		return output.Rows(cmd.OutOrStdout(), []string{"ID", "Name", "Order", "Active", "Prompt"}, rows)
	},
}

var templatesVideoAddCmd = &cobra.Command{
	Use:   "video-add",
	Short: "Create a video scenario",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		in := videoInputFromFlags(cmd)
		if in.Name == nil || in.Prompt == nil {
			return eris.New("templates: video scenarios need --name and --prompt")
		}

		env, err := initAPI(ctx, "api")
		if err != nil {
			return err
		}
		defer env.Close()

		v, err := env.Client.CreateVideoScenario(ctx, in)
		if err != nil {
			return err
		}
		printer.Success("Created video scenario %d (%s).", v.ID, v.Name)
		return nil
	},
}

var templatesVideoUpdateCmd = &cobra.Command{
	Use:   "video-update <id>",
	Short: "Update a video scenario; only the given flags change",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return eris.Wrapf(err, "templates: bad id %q", args[0])
		}

		env, err := initAPI(ctx, "api")
		if err != nil {
			return err
		}
		defer env.Close()

		v, err := env.Client.UpdateVideoScenario(ctx, id, videoInputFromFlags(cmd))
		if err != nil {
			return err
		}
		printer.Success("Updated video scenario %d (%s).", v.ID, v.Name)
		return nil
	},
}

var templatesVideoDeleteCmd = &cobra.Command{
	Use:   "video-delete <id>",
	Short: "Delete a video scenario",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return eris.Wrapf(err, "templates: bad id %q", args[0])
		}

		env, err := initAPI(ctx, "api")
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Client.DeleteVideoScenario(ctx, id); err != nil {
			return err
		}
		printer.Success("Deleted video scenario %d.", id)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{templatesAddCmd, templatesUpdateCmd, templatesVideoAddCmd, templatesVideoUpdateCmd} {
		c.Flags().String("name", "", "display name")
		c.Flags().String("prompt", "", "generation prompt")
		c.Flags().Int("order", 0, "sort position")
	}
	templatesAddCmd.Flags().Int64("parent", 0, "parent node id (not needed for scene-category and pose-group)")
	templatesVideoUpdateCmd.Flags().Bool("active", true, "whether the scenario is offered")

	templatesCmd.AddCommand(treeCmd("scenes", "Print the scene tree", wbapi.SceneCategory))
	templatesCmd.AddCommand(treeCmd("poses", "Print the pose tree", wbapi.PoseGroup))
	templatesCmd.AddCommand(templatesAddCmd)
	templatesCmd.AddCommand(templatesUpdateCmd)
	templatesCmd.AddCommand(templatesDeleteCmd)
	templatesCmd.AddCommand(templatesVideosCmd)
	templatesCmd.AddCommand(templatesVideoAddCmd)
	templatesCmd.AddCommand(templatesVideoUpdateCmd)
	templatesCmd.AddCommand(templatesVideoDeleteCmd)
	rootCmd.AddCommand(templatesCmd)
}

func levelAndID(args []string) (wbapi.Level, int64, error) {
	level, err := wbapi.ParseLevel(args[0])
	if err != nil {
		return "", 0, err
	}
	id, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return "", 0, eris.Wrapf(err, "templates: bad id %q", args[1])
	}
	return level, id, nil
}

// nodeInputFromFlags sends only the flags the operator set.
func nodeInputFromFlags(cmd *cobra.Command) wbapi.NodeInput {
	var in wbapi.NodeInput
	if cmd.Flags().Changed("name") {
		v, _ := cmd.Flags().GetString("name")
		in.Name = &v
	}
	if cmd.Flags().Changed("prompt") {
		v, _ := cmd.Flags().GetString("prompt")
		in.Prompt = &v
	}
	if cmd.Flags().Changed("order") {
		v, _ := cmd.Flags().GetInt("order")
		in.OrderIndex = &v
	}
	return in
}

func videoInputFromFlags(cmd *cobra.Command) wbapi.VideoScenarioInput {
	n := nodeInputFromFlags(cmd)
	in := wbapi.VideoScenarioInput{Name: n.Name, Prompt: n.Prompt, OrderIndex: n.OrderIndex}
	if f := cmd.Flags().Lookup("active"); f != nil && f.Changed {
		v, _ := cmd.Flags().GetBool("active")
		in.IsActive = &v
	}
	return in
}

// printTree walks a template tree depth first from its root level and
// writes one indented line per node. Leaf prompts are shown shortened.
func printTree(ctx context.Context, w io.Writer, api wbapi.TemplateAPI, root wbapi.Level) error {
	var walk func(level wbapi.Level, parent int64, depth int) error
	walk = func(level wbapi.Level, parent int64, depth int) error {
		nodes, err := api.ListNodes(ctx, level, parent)
		if err != nil {
			return err
		}
		for _, n := range nodes {
			line := fmt.Sprintf("%s%s [%d]", strings.Repeat("  ", depth), n.Name, n.ID)
			if level.IsLeaf() && n.Prompt != "" {
				line += " " + output.Truncate(n.Prompt, 50)
			}
			if _, err := fmt.Fprintln(w, line); err != nil {
				return eris.Wrap(err, "templates: write tree")
			}
			if child := level.Child(); child != "" {
				if err := walk(child, n.ID, depth+1); err != nil {
					return err
				}
			}
		}
		return nil
	}
	return walk(root, 0, 0)
}
