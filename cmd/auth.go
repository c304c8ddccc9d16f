package main

import (
	"bufio"
	"io"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/wbcard-cli/internal/model"
	"github.com/sells-group/wbcard-cli/internal/store"
	"github.com/sells-group/wbcard-cli/pkg/wbapi"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in to the generation backend",
	Long:  "Exchanges a username and password for a bearer token and stores it for later commands. Without --password the password is read from stdin.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("api"); err != nil {
			return err
		}

		username, _ := cmd.Flags().GetString("username")
		password, err := passwordFlag(cmd)
		if err != nil {
			return err
		}
		if username == "" || password == "" {
			return eris.New("login: username and password are required")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		tok, err := initAnonClient().Login(ctx, username, password)
		if err != nil {
			return err
		}
		return saveToken(cmd, st, tok, username)
	},
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create a backend account and log in",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("api"); err != nil {
			return err
		}

		req := wbapi.RegisterRequest{}
		req.Username, _ = cmd.Flags().GetString("username")
		req.Email, _ = cmd.Flags().GetString("email")
		req.FullName, _ = cmd.Flags().GetString("full-name")
		password, err := passwordFlag(cmd)
		if err != nil {
			return err
		}
		req.Password = password
		if req.Username == "" || req.Email == "" || req.Password == "" {
			return eris.New("register: username, email and password are required")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		tok, err := initAnonClient().Register(ctx, req)
		if err != nil {
			return err
		}
		return saveToken(cmd, st, tok, req.Username)
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored token",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		st, err := initLocal(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.ClearCredentials(ctx); err != nil {
			return err
		}
		printer.Success("Logged out.")
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{loginCmd, registerCmd} {
		c.Flags().StringP("username", "u", "", "account username")
		c.Flags().StringP("password", "p", "", "account password (read from stdin when empty)")
	}
	registerCmd.Flags().String("email", "", "account email")
	registerCmd.Flags().String("full-name", "", "display name")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(logoutCmd)
}

// passwordFlag returns --password, or the first line of stdin when the flag
// is empty.
func passwordFlag(cmd *cobra.Command) (string, error) {
	password, _ := cmd.Flags().GetString("password")
	if password != "" {
		return password, nil
	}
	return readLine(cmd.InOrStdin())
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", eris.Wrap(err, "read password")
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func saveToken(cmd *cobra.Command, st store.CredentialStore, tok *wbapi.TokenResponse, username string) error {
	if tok.Username != "" {
		username = tok.Username
	}
	err := st.SaveCredentials(cmd.Context(), model.Credentials{
		Username: username,
		Token:    tok.AccessToken,
		SavedAt:  time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	if exp, err := wbapi.TokenExpiry(tok.AccessToken); err == nil && !exp.IsZero() {
		printer.Success("Logged in as %s (token expires %s).", username, exp.Local().Format(time.DateTime))
		return nil
	}
	printer.Success("Logged in as %s.", username)
	return nil
}
