package cmd

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var statusServer string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Query the health endpoint of a running stationd instance",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusServer, "server", "http://localhost:8080", "stationd status server URL")
	rootCmd.AddCommand(statusCmd)
}

type healthReport struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Uptime    string `json:"uptime"`
	Running   bool   `json:"running"`
	Collector struct {
		State        string `json:"state"`
		Cycles       int64  `json:"cycles"`
		LastCycle    string `json:"last_cycle"`
		LastResult   string `json:"last_result"`
		LastError    string `json:"last_error"`
		LastSync     string `json:"last_sync"`
		LastSynced   int    `json:"last_synced"`
		MissingTotal int64  `json:"missing_sources_total"`
	} `json:"collector"`
	Database struct {
		Connected bool `json:"connected"`
	} `json:"database"`
	Queue struct {
		Pending int    `json:"pending"`
		Error   string `json:"error"`
	} `json:"queue"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	client := &http.Client{
		Timeout: 5 * time.Second,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
		},
	}
	resp, err := client.Get(statusServer + "/api/v1/health")
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", statusServer, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	var health healthReport
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&health); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	printHealth(cmd.OutOrStdout(), &health)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("stationd reports %s (HTTP %d)", health.Status, resp.StatusCode)
	}
	return nil
}

func printHealth(w io.Writer, h *healthReport) {
	fmt.Fprintf(w, "stationd %s\n", h.Version)
	fmt.Fprintf(w, "Status: %s\n", h.Status)
	fmt.Fprintf(w, "Uptime: %s\n", h.Uptime)
	fmt.Fprintln(w)

	c := h.Collector
	fmt.Fprintln(w, "Collector:")
	fmt.Fprintf(w, "  State: %s\n", c.State)
	fmt.Fprintf(w, "  Cycles: %s\n", formatNumber(int(c.Cycles)))
	if c.LastCycle != "" {
		fmt.Fprintf(w, "  Last cycle: %s (%s)\n", c.LastCycle, c.LastResult)
	}
	if c.LastError != "" {
		fmt.Fprintf(w, "  Last error: %s\n", c.LastError)
	}
	if c.LastSync != "" {
		fmt.Fprintf(w, "  Last sync: %s (%d records)\n", c.LastSync, c.LastSynced)
	}
	if c.MissingTotal > 0 {
		fmt.Fprintf(w, "  Missing sources: %s\n", formatNumber(int(c.MissingTotal)))
	}
	fmt.Fprintln(w)

	if h.Database.Connected {
		fmt.Fprintln(w, "Database: connected")
	} else {
		fmt.Fprintln(w, "Database: disconnected")
	}
	if h.Queue.Error != "" {
		fmt.Fprintf(w, "Local queue: %s\n", h.Queue.Error)
	} else {
		fmt.Fprintf(w, "Local queue: %s pending\n", formatNumber(h.Queue.Pending))
	}
}

// formatNumber formats an integer with comma separators (e.g., 1,247,832).
func formatNumber(n int) string {
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var result []byte
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			result = append(result, ',')
		}
		result = append(result, byte(c))
	}
	return string(result)
}
