package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/nilo-qa/nilo-loadtest/internal/config"
	"github.com/spf13/cobra"
)

var strategiesApplication string

// strategiesCmd represents the strategies command
var strategiesCmd = &cobra.Command{
	Use:   "strategies",
	Short: "List load strategies and their thresholds",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		app, _ := cfg.Application(strategiesApplication)
		out := cmd.OutOrStdout()

		for _, name := range cfg.StrategyNames() {
			s := cfg.Strategies[name]
			p := s.Profile()
			fmt.Fprintf(out, "%s  %s\n", titleStyle.Render(name), dimStyle.Render(s.Description))
			fmt.Fprintf(out, "  profile: %s, up to %d VUs, %s total\n", p, p.MaxVUs(), p.TotalDuration())

			ths, err := config.Thresholds(s, app)
			if err != nil {
				return err
			}
			for _, t := range ths {
				fmt.Fprintf(out, "  - %s\n", t)
			}
			fmt.Fprintln(out)
		}

		envs := make([]string, 0, len(cfg.Environments))
		for name := range cfg.Environments {
			envs = append(envs, name)
		}
		sort.Strings(envs)
		fmt.Fprintf(out, "%s %s\n", headerStyle.Render("Environments:"), strings.Join(envs, ", "))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(strategiesCmd)
	strategiesCmd.Flags().StringVarP(&strategiesApplication, "application", "a", config.GetEnv("APPLICATION", config.DefaultApplication), "Include this application's thresholds")
}
