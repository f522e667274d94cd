package cmd

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/hashicorp/go-multierror"
	"github.com/nilo-qa/nilo-loadtest/internal/auth"
	"github.com/nilo-qa/nilo-loadtest/internal/config"
	"github.com/nilo-qa/nilo-loadtest/internal/history"
	"github.com/nilo-qa/nilo-loadtest/internal/httpclient"
	"github.com/spf13/cobra"
)

var (
	healthcheckVerbose     bool
	healthcheckEnvironment string
	healthcheckApplication string
	healthcheckUsers       string
	healthcheckSkipLogin   bool
)

var (
	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39"))

	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("62")).
			Bold(true).
			Underline(true)
)

// healthcheckCmd represents the healthcheck command
var healthcheckCmd = &cobra.Command{
	Use:   "healthcheck",
	Short: "Check that a run can start against an environment",
	Long: `Check the setup for a run by verifying:
  • Configuration and environment resolution
  • Test users for the application
  • Login with the first user
  • Front page availability
  • Run history database access

This command is useful before long soak or stress runs and in CI/CD pipelines.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, sectionStyle.Render("🔍 Load Test Health Check"))
		fmt.Fprintln(out)

		// Step 1: Configuration
		fmt.Fprintln(out, infoStyle.Render("Step 1: Loading configuration..."))
		cfg, err := loadConfig()
		if err != nil {
			fmt.Fprintln(out, errorStyle.Render("❌ Failed to load configuration:"), err)
			return err
		}
		env, found := cfg.Environment(healthcheckEnvironment)
		app, _ := cfg.Application(healthcheckApplication)
		if found {
			fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("✅ Environment %s resolved", env.Name)))
		} else {
			fmt.Fprintln(out, warningStyle.Render(fmt.Sprintf("⚠️  Environment %q not found, using %s", healthcheckEnvironment, env.Name)))
		}
		if healthcheckVerbose {
			fmt.Fprintf(out, "   API: %s\n", env.APIBaseURL)
			fmt.Fprintf(out, "   Front: %s\n", env.FrontURL)
			fmt.Fprintf(out, "   Timeout: %s\n", env.Timeout())
			fmt.Fprintf(out, "   Application: %s (id %d)\n", app.Name, app.ID)
		}
		fmt.Fprintln(out)

		// Step 2: Users
		fmt.Fprintln(out, infoStyle.Render("Step 2: Loading test users..."))
		path := healthcheckUsers
		if path == "" {
			path = config.DefaultUsersPath(env.Name)
		}
		users, err := config.LoadUsers(path, app.ID)
		if err != nil {
			fmt.Fprintln(out, errorStyle.Render("❌ No usable users:"), err)
			return err
		}
		fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("✅ Found %d user(s) for %s", users.Len(), app.Name)))
		if healthcheckVerbose {
			fmt.Fprintf(out, "   File: %s\n", path)
		}
		fmt.Fprintln(out)

		client := httpclient.New(env.Timeout())
		var result *multierror.Error

		// Step 3: Login
		fmt.Fprintln(out, infoStyle.Render("Step 3: Logging in..."))
		if healthcheckSkipLogin {
			fmt.Fprintln(out, warningStyle.Render("⚠️  Skipped"))
		} else {
			a := &auth.Authenticator{BaseURL: env.APIBaseURL, LoginPath: app.LoginPath, Headers: env.Headers(), Client: client}
			creds := users.ForVU(1)
			s, err := a.Authenticate(cmd.Context(), creds)
			if err != nil {
				result = multierror.Append(result, fmt.Errorf("login: %w", err))
				fmt.Fprintln(out, errorStyle.Render("❌ Login failed:"), err)
			} else {
				fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("✅ Logged in as %s (user %s)", creds.Email, s.UserID)))
				if healthcheckVerbose && !s.ExpiresAt.IsZero() {
					fmt.Fprintf(out, "   Token expires: %s\n", s.ExpiresAt)
				}
			}
		}
		fmt.Fprintln(out)

		// Step 4: Front page
		fmt.Fprintln(out, infoStyle.Render("Step 4: Checking front page..."))
		if env.FrontURL == "" {
			fmt.Fprintln(out, warningStyle.Render("⚠️  No front URL configured"))
		} else {
			resp := client.Do(cmd.Context(), &httpclient.Request{Method: http.MethodGet, URL: env.FrontURL, Headers: frontProbeHeaders, Name: "front"})
			if resp.Status == http.StatusOK {
				fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("✅ Front page answered in %s", resp.Duration.Round(time.Millisecond))))
			} else {
				result = multierror.Append(result, fmt.Errorf("front page %s: status %d", env.FrontURL, resp.Status))
				fmt.Fprintln(out, errorStyle.Render(fmt.Sprintf("❌ Front page status %d", resp.Status)), errOrEmpty(resp.Err))
			}
		}
		fmt.Fprintln(out)

		// Step 5: History
		fmt.Fprintln(out, infoStyle.Render("Step 5: Opening run history..."))
		if err := checkHistory(out); err != nil {
			fmt.Fprintln(out, warningStyle.Render("⚠️  Run history unavailable:"), err)
		} else {
			fmt.Fprintln(out, successStyle.Render("✅ Run history available"))
		}
		fmt.Fprintln(out)

		if err := result.ErrorOrNil(); err != nil {
			fmt.Fprintln(out, errorStyle.Render(fmt.Sprintf("❌ %d check(s) failed", result.Len())))
			return fmt.Errorf("healthcheck failed: %w", err)
		}
		fmt.Fprintln(out, successStyle.Render("✅ Ready to run"))
		return nil
	},
}

var frontProbeHeaders = map[string]string{"Accept": "text/html"}

func checkHistory(out io.Writer) error {
	path := historyDB
	if path == "" {
		var err error
		if path, err = history.DefaultPath(); err != nil {
			return err
		}
	}
	store, err := history.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()
	if healthcheckVerbose {
		fmt.Fprintf(out, "   Database: %s\n", path)
	}
	return nil
}

func errOrEmpty(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func init() {
	rootCmd.AddCommand(healthcheckCmd)
	f := healthcheckCmd.Flags()
	f.BoolVarP(&healthcheckVerbose, "verbose", "v", false, "Show detailed information")
	f.StringVarP(&healthcheckEnvironment, "environment", "e", config.GetEnv("ENVIRONMENT", config.DefaultEnvironment), "Target environment")
	f.StringVarP(&healthcheckApplication, "application", "a", config.GetEnv("APPLICATION", config.DefaultApplication), "Application")
	f.StringVar(&healthcheckUsers, "users", "", "Users file (default: data/users.<environment>.yaml)")
	f.BoolVar(&healthcheckSkipLogin, "skip-login", false, "Do not log in")
	f.StringVar(&historyDB, "db", "", "History database path (default: ~/.nilo-loadtest/history.db)")
}
