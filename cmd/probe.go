package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/nilo-qa/nilo-loadtest/internal/config"
	"github.com/nilo-qa/nilo-loadtest/internal/probe"
	"github.com/spf13/cobra"
)

var (
	probeEnvironment string
	probeRate        int
	probeDuration    time.Duration
	probeHeaders     []string
	probeCookies     []string
	probeExpect      int
	probeContains    string
	probeFront       bool
)

// probeCmd represents the probe command
var probeCmd = &cobra.Command{
	Use:   "probe [url]",
	Short: "Hit one URL at a constant rate",
	Long: `Send GET requests to a single URL at a constant rate and print latency
percentiles and status codes. Use it for the front page, static assets or
a datatable endpoint that needs no login.

With --front the URL is the environment's front URL and the body must
contain the SPA root element.`,
	Example: `  nilo-loadtest probe --front -e production --rate 20 --duration 1m
  nilo-loadtest probe https://example.com/assets/index.js --rate 50
  nilo-loadtest probe https://example.com/datatable -H "Authorization: abc" --cookie session=xyz`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		env, _ := cfg.Environment(probeEnvironment)

		pc := probe.Config{
			Rate:     probeRate,
			Duration: probeDuration,
			Timeout:  env.Timeout(),
			Expect:   probeExpect,
			Contains: probeContains,
		}
		switch {
		case len(args) == 1:
			pc.URL = args[0]
		case probeFront:
			pc.URL = env.FrontURL
		default:
			return fmt.Errorf("a url or --front is required")
		}
		if probeFront && pc.Contains == "" {
			pc.Contains = `<div id="root"`
		}
		if pc.Headers, err = parsePairs(probeHeaders, ":"); err != nil {
			return err
		}
		if pc.Cookies, err = parsePairs(probeCookies, "="); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s %s at %d req/s for %s\n", titleStyle.Render("Probe"), pc.URL, pc.Rate, pc.Duration)
		res, err := probe.Run(ctx, pc)
		if err != nil {
			return err
		}

		fmt.Fprintf(out, "  requests:   %d (%.2f req/s, throughput %.2f)\n", res.Requests, res.Rate, res.Throughput)
		fmt.Fprintf(out, "  success:    %.2f%%\n", res.Success*100)
		fmt.Fprintf(out, "  latency:    min %s  mean %s  p50 %s  p90 %s  p95 %s  p99 %s  max %s\n",
			ms(res.Min), ms(res.Mean), ms(res.P50), ms(res.P90), ms(res.P95), ms(res.P99), ms(res.Max))
		fmt.Fprintf(out, "  bytes in:   %d\n", res.BytesIn)
		for _, code := range res.Codes() {
			fmt.Fprintf(out, "  status %s: %d\n", code, res.StatusCodes[code])
		}
		for _, e := range res.Errors {
			fmt.Fprintf(out, "  error: %s\n", e)
		}

		fmt.Fprintf(out, "%s %d of %d responses failed the checks\n", mark(res.Passed()), res.CheckFailures, res.Requests)
		if !res.Passed() {
			return fmt.Errorf("probe failed: %d of %d responses failed the checks", res.CheckFailures, res.Requests)
		}
		return nil
	},
}

func ms(d time.Duration) string {
	return d.Round(time.Millisecond / 10).String()
}

// parsePairs splits "key<sep>value" items into a map.
func parsePairs(items []string, sep string) (map[string]string, error) {
	if len(items) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(items))
	for _, item := range items {
		k, v, ok := strings.Cut(item, sep)
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("invalid %q: expected key%svalue", item, sep)
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return out, nil
}

func init() {
	rootCmd.AddCommand(probeCmd)
	f := probeCmd.Flags()
	f.StringVarP(&probeEnvironment, "environment", "e", config.GetEnv("ENVIRONMENT", config.DefaultEnvironment), "Environment (for --front and the request timeout)")
	f.IntVar(&probeRate, "rate", 10, "Requests per second")
	f.DurationVar(&probeDuration, "duration", 30*time.Second, "Attack duration")
	f.StringArrayVarP(&probeHeaders, "header", "H", nil, "Request header as \"Name: value\" (repeatable)")
	f.StringArrayVar(&probeCookies, "cookie", nil, "Cookie as name=value (repeatable)")
	f.IntVar(&probeExpect, "expect", 200, "Expected status code")
	f.StringVar(&probeContains, "contains", "", "Text every response body must contain")
	f.BoolVar(&probeFront, "front", false, "Probe the environment's front URL")
}
