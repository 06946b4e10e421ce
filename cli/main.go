package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	apiKey    string
	Version   = "dev"
)

type AnalysisView struct {
	ID            string     `json:"id"`
	Status        string     `json:"status"`
	Score         int        `json:"score"`
	Locale        string     `json:"locale"`
	ContentLength int        `json:"content_length"`
	DurationMs    int64      `json:"duration_ms"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at"`
}

type MonitorView struct {
	ID            uint       `json:"id"`
	Name          string     `json:"name"`
	Brand         string     `json:"brand"`
	Domain        string     `json:"domain"`
	LastCheckedAt *time.Time `json:"last_checked_at"`
}

type UsageView struct {
	Plan      string `json:"plan"`
	Limit     int    `json:"limit"`
	Remaining int    `json:"remaining"`
	Used      int    `json:"used"`
	Period    string `json:"period"`
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "deepzd",
		Short: "DeepZD - Generative engine optimization toolkit",
		Long:  "Inspect content analyses, brand monitors and plan usage on a DeepZD server",
	}

	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "http://localhost:8080", "DeepZD server URL")
	rootCmd.PersistentFlags().StringVarP(&apiKey, "key", "k", os.Getenv("DEEPZD_API_KEY"), "API key (or DEEPZD_API_KEY)")

	rootCmd.AddCommand(
		statusCmd(),
		analysesCmd(),
		monitorsCmd(),
		usageCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show server health",
		RunE: func(cmd *cobra.Command, args []string) error {
			var health struct {
				Status   string `json:"status"`
				Version  string `json:"version"`
				Database string `json:"database"`
			}
			if err := fetchJSON("/v1/health", &health); err != nil {
				return err
			}

			fmt.Printf("DeepZD Server\n")
			fmt.Printf("=============\n\n")
			fmt.Printf("Status:      %s\n", health.Status)
			fmt.Printf("Version:     %s\n", health.Version)
			fmt.Printf("Database:    %s\n", health.Database)
			return nil
		},
	}
}

func analysesCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "analyses",
		Aliases: []string{"ls", "list"},
		Short:   "List recent content analyses",
		RunE: func(cmd *cobra.Command, args []string) error {
			var analyses []AnalysisView
			if err := fetchJSON("/v1/analyses", &analyses); err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTATUS\tSCORE\tLOCALE\tSIZE\tAGE")
			fmt.Fprintln(w, "--\t------\t-----\t------\t----\t---")
			for _, a := range analyses {
				age := time.Since(a.CreatedAt).Round(time.Second)
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%d\t%s ago\n",
					a.ID, a.Status, a.Score, a.Locale, a.ContentLength, age)
			}
			w.Flush()
			return nil
		},
	}
}

func monitorsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "monitors",
		Short: "List brand monitors",
		RunE: func(cmd *cobra.Command, args []string) error {
			var monitors []MonitorView
			if err := fetchJSON("/v1/monitors", &monitors); err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tBRAND\tDOMAIN\tLAST CHECK")
			fmt.Fprintln(w, "--\t----\t-----\t------\t----------")
			for _, m := range monitors {
				lastCheck := "never"
				if m.LastCheckedAt != nil {
					lastCheck = fmt.Sprintf("%s ago", time.Since(*m.LastCheckedAt).Round(time.Second))
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", m.ID, m.Name, m.Brand, m.Domain, lastCheck)
			}
			w.Flush()
			return nil
		},
	}
}

func usageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "usage",
		Short: "Show plan usage for the current period",
		RunE: func(cmd *cobra.Command, args []string) error {
			var usage UsageView
			if err := fetchJSON("/v1/usage", &usage); err != nil {
				return err
			}

			fmt.Printf("Usage for %s\n", usage.Period)
			fmt.Printf("================\n\n")
			fmt.Printf("Plan:        %s\n", usage.Plan)
			if usage.Limit < 0 {
				fmt.Printf("Limit:       unlimited\n")
				fmt.Printf("Used:        -\n")
			} else {
				fmt.Printf("Limit:       %d\n", usage.Limit)
				fmt.Printf("Used:        %d\n", usage.Used)
				fmt.Printf("Remaining:   %d\n", usage.Remaining)
			}
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("deepzd version %s\n", Version)
		},
	}
}

func fetchJSON(path string, out any) error {
	req, err := http.NewRequest(http.MethodGet, serverURL+path, nil)
	if err != nil {
		return err
	}
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("unauthorized: set an API key with --key or DEEPZD_API_KEY")
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}
