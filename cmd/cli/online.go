package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var onlineCmd = &cobra.Command{
	Use:   "online",
	Short: "List users currently connected to the gateway",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listOnline()
	},
}

type onlineResponse struct {
	Users []struct {
		UserID      string `json:"user_id"`
		Connections int    `json:"connections"`
		OnlineSince string `json:"online_since"`
	} `json:"users"`
	Total   int `json:"total"`
	Metrics struct {
		ActiveConnections int64 `json:"active_connections"`
		EventsReceived    int64 `json:"events_received"`
		EventsSent        int64 `json:"events_sent"`
	} `json:"metrics"`
}

func listOnline() error {
	body, err := apiGet("/api/v1/admin/online")
	if err != nil {
		return err
	}

	if output == "json" {
		fmt.Println(string(body))
		return nil
	}

	var result onlineResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if result.Total == 0 {
		fmt.Println("No users online")
		return nil
	}

	fmt.Printf("Online users (%d)\n", result.Total)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "USER\tCONNECTIONS\tSINCE")
	for _, u := range result.Users {
		fmt.Fprintf(w, "%s\t%d\t%s\n", u.UserID, u.Connections, u.OnlineSince)
	}
	w.Flush()

	fmt.Printf("\nGateway: %d active connections, %d events in, %d events out\n",
		result.Metrics.ActiveConnections, result.Metrics.EventsReceived, result.Metrics.EventsSent)
	return nil
}

func apiGet(path string) ([]byte, error) {
	req, err := http.NewRequest("GET", apiURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+authToken)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apiError(resp.StatusCode, body)
	}
	return body, nil
}

func apiError(status int, body []byte) error {
	var errResp map[string]interface{}
	json.Unmarshal(body, &errResp)
	if msg, ok := errResp["error"].(string); ok {
		return fmt.Errorf("API error: %s", msg)
	}
	return fmt.Errorf("API error: status %d", status)
}
