package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pricelens/backend/internal/domain"
)

var (
	searchRegion string
	detectFile   string
	historyClear bool
)

// searchCmd runs one marketplace search through the cache and history
var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the marketplace",
	Long: `Search one marketplace region and print the parsed listings as JSON.

Results are recorded in price history when history is enabled.

Examples:
  # Search the configured default region
  pricelens search "sony wh-1000xm5"

  # Search the German marketplace
  pricelens search --region DE "kaffeemaschine"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

// detectCmd extracts product candidates from a page
var detectCmd = &cobra.Command{
	Use:   "detect [url]",
	Short: "Detect product candidates on a page",
	Long: `Extract ranked product-name candidates from a page URL or a saved HTML file.

Examples:
  # Fetch and analyse a page
  pricelens detect https://shop.example/products/42

  # Analyse a saved snapshot
  pricelens detect --file page.html`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDetect,
}

// alertsCmd groups alert operations
var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Manage price alerts",
}

var alertsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored alerts",
	Args:  cobra.NoArgs,
	RunE:  runAlertsList,
}

var alertsCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Evaluate every alert now",
	Long: `Re-search every alert's query, update current prices and notify on drops
to or below the target. Prints the evaluation report.`,
	Args: cobra.NoArgs,
	RunE: runAlertsCheck,
}

// historyCmd prints or clears price history
var historyCmd = &cobra.Command{
	Use:   "history [region] [id]",
	Short: "Show or clear price history",
	Long: `Print the recorded price series for one listing, or clear all history.

Examples:
  # Show a series
  pricelens history US B0TEST0001

  # Drop every series
  pricelens history --clear`,
	Args: func(cmd *cobra.Command, args []string) error {
		if historyClear {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.ExactArgs(2)(cmd, args)
	},
	RunE: runHistory,
}

func init() {
	searchCmd.Flags().StringVar(&searchRegion, "region", "", "marketplace region (defaults to the settings region)")
	detectCmd.Flags().StringVar(&detectFile, "file", "", "read the page from an HTML file instead of fetching it")
	historyCmd.Flags().BoolVar(&historyClear, "clear", false, "delete all price history")

	alertsCmd.AddCommand(alertsListCmd)
	alertsCmd.AddCommand(alertsCheckCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	a, done, err := bootstrap(cmd.Context())
	if err != nil {
		return err
	}
	defer done()

	result, err := a.search.Search(cmd.Context(), strings.Join(args, " "), searchRegion)
	if err != nil {
		var searchErr *domain.SearchError
		if errors.As(err, &searchErr) {
			return errors.New(searchErr.Reason())
		}
		return err
	}
	return printJSON(cmd.OutOrStdout(), result)
}

func runDetect(cmd *cobra.Command, args []string) error {
	req := domain.DetectRequest{}
	switch {
	case detectFile != "":
		raw, err := os.ReadFile(detectFile)
		if err != nil {
			return fmt.Errorf("read %s: %w", detectFile, err)
		}
		req.HTML = string(raw)
		if len(args) == 1 {
			req.URL = args[0]
		}
	case len(args) == 1:
		req.URL = args[0]
	default:
		return fmt.Errorf("detect needs a url or --file")
	}

	a, done, err := bootstrap(cmd.Context())
	if err != nil {
		return err
	}
	defer done()

	candidates, err := a.detection.Detect(cmd.Context(), req)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), candidates)
}

func runAlertsList(cmd *cobra.Command, _ []string) error {
	a, done, err := bootstrap(cmd.Context())
	if err != nil {
		return err
	}
	defer done()

	alerts, err := a.alerts.List(cmd.Context())
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), alerts)
}

func runAlertsCheck(cmd *cobra.Command, _ []string) error {
	a, done, err := bootstrap(cmd.Context())
	if err != nil {
		return err
	}
	defer done()

	report, err := a.alerts.EvaluateAll(cmd.Context())
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), report)
}

func runHistory(cmd *cobra.Command, args []string) error {
	a, done, err := bootstrap(cmd.Context())
	if err != nil {
		return err
	}
	defer done()

	if historyClear {
		if err := a.history.Clear(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "price history cleared")
		return nil
	}

	region, err := domain.LookupRegion(args[0])
	if err != nil {
		return fmt.Errorf("region %q: %w", args[0], err)
	}
	series, err := a.history.Get(cmd.Context(), args[1], region.Code)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), series)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
