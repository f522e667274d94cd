package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nilo-qa/nilo-loadtest/internal"
	"github.com/nilo-qa/nilo-loadtest/internal/auth"
	"github.com/nilo-qa/nilo-loadtest/internal/config"
	"github.com/nilo-qa/nilo-loadtest/internal/httpclient"
	"github.com/spf13/cobra"
)

var (
	loginEnvironment string
	loginApplication string
	loginUsers       string
	loginEmail       string
	loginPassword    string
	loginVU          int
	loginValidate    bool
)

// loginCmd represents the login command
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in once and print the session",
	Long: `Send a single login request and print the status, duration, response
size, user id and token expiry. With --validate the token is then checked
against the validate endpoint.

Credentials come from --email/--password or from the users file entry of
--vu (1-based, round-robin).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		env, _ := cfg.Environment(loginEnvironment)
		app, _ := cfg.Application(loginApplication)

		creds := auth.Credentials{Email: loginEmail, Password: loginPassword, AppID: app.ID}
		if creds.Email == "" {
			path := loginUsers
			if path == "" {
				path = config.DefaultUsersPath(env.Name)
			}
			users, err := config.LoadUsers(path, app.ID)
			if err != nil {
				return err
			}
			creds = users.ForVU(loginVU)
		}

		recorder := &loginRecorder{}
		a := &auth.Authenticator{
			BaseURL:   env.APIBaseURL,
			LoginPath: app.LoginPath,
			Headers:   env.Headers(),
			Client:    recorder.wrap(httpclient.New(env.Timeout())),
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s %s (%s)\n", titleStyle.Render("Login"), creds.Email, env.APIBaseURL)

		s, err := a.Authenticate(cmd.Context(), creds)
		if resp := recorder.last; resp != nil {
			fmt.Fprintf(out, "  status:   %d\n", resp.Status)
			fmt.Fprintf(out, "  duration: %s\n", resp.Duration.Round(time.Millisecond))
			fmt.Fprintf(out, "  bytes:    %d\n", len(resp.Body))
		}
		if err != nil {
			var authErr *auth.AuthError
			if errors.As(err, &authErr) && authErr.Snippet != "" {
				fmt.Fprintf(out, "  body:     %s\n", authErr.Snippet)
			}
			fmt.Fprintf(out, "%s login failed\n", mark(false))
			return err
		}

		fmt.Fprintf(out, "  user id:  %s\n", s.UserID)
		if !s.ExpiresAt.IsZero() {
			fmt.Fprintf(out, "  expires:  %s (in %s)\n", s.ExpiresAt.Format(time.RFC3339), time.Until(s.ExpiresAt).Round(time.Second))
		}
		fmt.Fprintf(out, "%s login OK\n", mark(true))

		if !loginValidate {
			return nil
		}
		ok, resp := a.Validate(cmd.Context(), s.Token)
		fmt.Fprintf(out, "%s validate: status %d in %s\n", mark(ok), resp.Status, resp.Duration.Round(time.Millisecond))
		if !ok {
			return fmt.Errorf("token rejected by %s (status %d)", auth.ValidatePath, resp.Status)
		}
		internal.LogDebug("Token for %s validated", creds.Email)
		return nil
	},
}

// loginRecorder keeps the last response seen by the wrapped client.
type loginRecorder struct {
	client httpclient.Client
	last   *httpclient.Response
}

func (r *loginRecorder) wrap(c httpclient.Client) httpclient.Client {
	r.client = c
	return r
}

func (r *loginRecorder) Do(ctx context.Context, req *httpclient.Request) *httpclient.Response {
	resp := r.client.Do(ctx, req)
	if req.Name == "login" {
		r.last = resp
	}
	return resp
}

func init() {
	rootCmd.AddCommand(loginCmd)
	f := loginCmd.Flags()
	f.StringVarP(&loginEnvironment, "environment", "e", config.GetEnv("ENVIRONMENT", config.DefaultEnvironment), "Target environment")
	f.StringVarP(&loginApplication, "application", "a", config.GetEnv("APPLICATION", config.DefaultApplication), "Application")
	f.StringVar(&loginUsers, "users", "", "Users file (default: data/users.<environment>.yaml)")
	f.StringVar(&loginEmail, "email", "", "Log in with this email instead of a users file entry")
	f.StringVar(&loginPassword, "password", "", "Password for --email")
	f.IntVar(&loginVU, "vu", 1, "Users file entry to use, as a VU id")
	f.BoolVar(&loginValidate, "validate", false, "Validate the token after logging in")
}
