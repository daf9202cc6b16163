package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/hgeldenhuys/trak/internal/daemon"
)

func buildStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report whether a trakd daemon is running",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := daemon.ReadPIDFile(defaultPIDPath())
			if info == nil {
				fmt.Println("trakd: not running")
				return nil
			}
			fmt.Printf("trakd: running (pid=%d port=%d startedAt=%s)\n", info.PID, info.Port, info.StartedAt)
			if info.PublicURL != "" {
				fmt.Printf("public url: %s\n", info.PublicURL)
			}
			return nil
		},
	}
	return cmd
}

func buildHealthCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check the daemon's /health endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := daemon.ReadPIDFile(defaultPIDPath())
			if info == nil {
				return fmt.Errorf("trakd: not running")
			}

			client := &http.Client{Timeout: timeout}
			url := fmt.Sprintf("http://127.0.0.1:%d/health", info.Port)
			resp, err := client.Get(url)
			if err != nil {
				return fmt.Errorf("trakd: health check failed: %w", err)
			}
			defer resp.Body.Close()

			body, _ := io.ReadAll(resp.Body)
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("trakd: health check returned %d: %s", resp.StatusCode, body)
			}

			var payload map[string]any
			if err := json.Unmarshal(body, &payload); err != nil {
				fmt.Println(string(body))
				return nil
			}
			fmt.Printf("status: %v\n", payload["status"])
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "Request timeout")
	return cmd
}
