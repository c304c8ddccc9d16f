package main

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/wbcard-cli/internal/model"
	"github.com/sells-group/wbcard-cli/internal/session"
	"github.com/sells-group/wbcard-cli/pkg/wbapi"
)

var photoCmd = &cobra.Command{
	Use:   "photo",
	Short: "Generate product photos and videos",
}

var photoGenerateCmd = &cobra.Command{
	Use:   "generate <scene|pose|custom|video>",
	Short: "Generate an image or video from a product photo",
	Long: "Calls the backend generator and records the produced file on the session (default: the active one). " +
		"Without --photo-url the first photo of the session's result is used.",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"scene", "pose", "custom", "video"},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initAPI(ctx, "api")
		if err != nil {
			return err
		}
		defer env.Close()

		sessionID, _ := cmd.Flags().GetString("session")
		sess, err := session.NewManager(env.Store, nil).Resolve(ctx, sessionID)
		if err != nil {
			return err
		}

		photoURL, _ := cmd.Flags().GetString("photo-url")
		if photoURL == "" && sess.Result != nil && len(sess.Result.PhotoURLs) > 0 {
			photoURL = sess.Result.PhotoURLs[0]
		}
		if photoURL == "" {
			return eris.New("photo: no --photo-url and the session has no photos")
		}

		req := generateRequest{Kind: args[0], PhotoURL: photoURL}
		req.ItemID, _ = cmd.Flags().GetInt64("item")
		req.PromptID, _ = cmd.Flags().GetInt64("pose")
		req.Prompt, _ = cmd.Flags().GetString("prompt")
		req.ScenarioID, _ = cmd.Flags().GetInt64("scenario")
		req.Duration, _ = cmd.Flags().GetInt("duration")
		req.Resolution, _ = cmd.Flags().GetString("resolution")

		asset, err := generateAsset(ctx, env.Client, session.NewAssets(env.Store, env.Store), sess.ID, req)
		if err != nil {
			return err
		}
		printer.Success("Generated %s (%s).", asset.FileName, asset.FileURL)
		return nil
	},
}

var assetsCmd = &cobra.Command{
	Use:   "assets",
	Short: "List and remove the generated files of a session",
}

var assetsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List generated files",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		st, err := initLocal(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		sessionID, _ := cmd.Flags().GetString("session")
		sess, err := session.NewManager(st, nil).Resolve(ctx, sessionID)
		if err != nil {
			return err
		}
		list, err := session.NewAssets(st, st).List(ctx, sess.ID)
		if err != nil {
			return err
		}
		return printer.Assets(list)
	},
}

var assetsRemoveCmd = &cobra.Command{
	Use:   "remove <asset-id>",
	Short: "Remove a generated file from the session and the backend",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initAPI(ctx, "api")
		if err != nil {
			return err
		}
		defer env.Close()

		sessionID, _ := cmd.Flags().GetString("session")
		sess, err := session.NewManager(env.Store, nil).Resolve(ctx, sessionID)
		if err != nil {
			return err
		}
		removed, err := session.NewAssets(env.Store, env.Store).Remove(ctx, sess.ID, args[0])
		if err != nil {
			return err
		}
		if keep, _ := cmd.Flags().GetBool("keep-file"); !keep && removed.FileName != "" {
			if err := env.Client.DeleteFile(ctx, removed.FileName); err != nil && !wbapi.IsNotFound(err) {
				return err
			}
		}
		printer.Success("Removed %s.", removed.FileName)
		return nil
	},
}

func init() {
	photoGenerateCmd.Flags().String("session", "", "session id (default: the active session)")
	photoGenerateCmd.Flags().String("photo-url", "", "source photo URL")
	photoGenerateCmd.Flags().Int64("item", 0, "scene item id (scene)")
	photoGenerateCmd.Flags().Int64("pose", 0, "pose prompt id (pose)")
	photoGenerateCmd.Flags().String("prompt", "", "free-text prompt (custom, video)")
	photoGenerateCmd.Flags().Int64("scenario", 0, "video scenario id (video)")
	photoGenerateCmd.Flags().Int("duration", 5, "video length in seconds (video)")
	photoGenerateCmd.Flags().String("resolution", "720p", "video resolution (video)")

	assetsListCmd.Flags().String("session", "", "session id (default: the active session)")
	assetsRemoveCmd.Flags().String("session", "", "session id (default: the active session)")
	assetsRemoveCmd.Flags().Bool("keep-file", false, "keep the file on the backend")

	photoCmd.AddCommand(photoGenerateCmd)
	assetsCmd.AddCommand(assetsListCmd)
	assetsCmd.AddCommand(assetsRemoveCmd)
	rootCmd.AddCommand(photoCmd)
	rootCmd.AddCommand(assetsCmd)
}

// generateRequest carries the flags of one generation.
type generateRequest struct {
	Kind       string
	PhotoURL   string
	ItemID     int64
	PromptID   int64
	Prompt     string
	ScenarioID int64
	Duration   int
	Resolution string
}

// generateAsset runs one generation and appends the produced file to the
// session's asset list.
func generateAsset(ctx context.Context, api wbapi.GenerationAPI, assets *session.Assets, sessionID string, req generateRequest) (model.Asset, error) {
	var (
		file *wbapi.GeneratedFile
		err  error
		kind = model.AssetImage
	)
	switch req.Kind {
	case "scene":
		if req.ItemID == 0 {
			return model.Asset{}, eris.New("photo: scene generation needs --item")
		}
		file, err = api.GenerateScene(ctx, req.PhotoURL, req.ItemID)
	case "pose":
		if req.PromptID == 0 {
			return model.Asset{}, eris.New("photo: pose generation needs --pose")
		}
		file, err = api.GeneratePose(ctx, req.PhotoURL, req.PromptID)
	case "custom":
		if req.Prompt == "" {
			return model.Asset{}, eris.New("photo: custom generation needs --prompt")
		}
		file, err = api.GenerateCustom(ctx, req.PhotoURL, req.Prompt)
	case "video":
		kind = model.AssetVideo
		file, err = api.GenerateVideo(ctx, wbapi.VideoRequest{
			PhotoURL:   req.PhotoURL,
			Prompt:     req.Prompt,
			ScenarioID: req.ScenarioID,
			Duration:   req.Duration,
			Resolution: req.Resolution,
		})
	default:
		return model.Asset{}, eris.Errorf("photo: unknown generation kind %q", req.Kind)
	}
	if err != nil {
		return model.Asset{}, err
	}

	return assets.Add(ctx, sessionID, model.Asset{
		Kind:      kind,
		Source:    req.Kind,
		FileName:  file.FileName,
		FileURL:   file.FileURL,
		SourceURL: req.PhotoURL,
	})
}
