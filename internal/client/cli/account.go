package cli

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"wirevpn/internal/api"
)

// Credentials is the login request body.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func newEntryCmd(a *app) *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "entry",
		Short: "Print the cloud API entry point",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			resolver, err := a.entryResolver()
			if err != nil {
				return err
			}
			if refresh {
				if err := resolver.Invalidate(); err != nil {
					return fmt.Errorf("failed to clear cached entry: %w", err)
				}
			}
			NewOutput(cmd.OutOrStdout(), false).Plain("%s", resolver.ResolveEntry(ctx))
			return nil
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "drop the cached entry and discover again")
	return cmd
}

// readPassword reads one line from r. Input is echoed; pipe it in for scripts.
func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func newLoginCmd(a *app) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := NewOutput(cmd.OutOrStdout(), false)

			if email == "" {
				return errors.New("--email is required")
			}
			fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
			password, err := readPassword(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("failed to read password: %w", err)
			}
			if password == "" {
				return errors.New("empty password")
			}

			session, err := a.apiSession()
			if err != nil {
				return err
			}
			if err := session.Login(ctx, Credentials{Email: email, Password: password}); err != nil {
				return fmt.Errorf("login failed: %w", err)
			}
			out.Success("Logged in as %s", email)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := a.apiSession()
			if err != nil {
				return err
			}
			if err := session.Logout(); err != nil {
				return fmt.Errorf("failed to clear session: %w", err)
			}
			NewOutput(cmd.OutOrStdout(), false).Success("Logged out")
			return nil
		},
	}
}

func newAPICmd(a *app) *cobra.Command {
	var data string
	cmd := &cobra.Command{
		Use:   "api <method> <path>",
		Short: "Send an authenticated request to the cloud API",
		Example: `  wirevpn api GET /api/user/profile
  wirevpn api POST /api/servers/ping --data '{"region":"eu"}'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := NewOutput(cmd.OutOrStdout(), false)

			method := strings.ToUpper(args[0])
			switch method {
			case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
			default:
				return fmt.Errorf("unsupported method %q", args[0])
			}

			var body interface{}
			if data != "" {
				if !json.Valid([]byte(data)) {
					return errors.New("--data is not valid JSON")
				}
				body = json.RawMessage(data)
			}

			session, err := a.apiSession()
			if err != nil {
				return err
			}

			result, err := api.Do[json.RawMessage](ctx, session, method, args[1], body)
			if err != nil {
				if api.IsSessionExpired(err) {
					return fmt.Errorf("%w; run 'wirevpn login'", err)
				}
				return err
			}
			if len(result) == 0 || string(result) == "null" {
				out.Success("%s %s OK", method, args[1])
				return nil
			}
			return out.JSON(result)
		},
	}
	cmd.Flags().StringVar(&data, "data", "", "JSON request body")
	return cmd
}
