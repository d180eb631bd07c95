package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"
)

var (
	notifyRecipient string
	notifySender    string
	notifyType      string
	notifyContent   string
)

var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Push a test notification through the fan-out path",
	Long: `Persists a notification for the recipient and delivers it live if they
are connected, exactly like an organic follow or message would.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendTestNotification()
	},
}

func init() {
	notifyCmd.Flags().StringVar(&notifyRecipient, "recipient", "", "Recipient user id (required)")
	notifyCmd.Flags().StringVar(&notifySender, "sender", "", "Sender user id (required)")
	notifyCmd.Flags().StringVar(&notifyType, "type", "follow", "Notification type (follow, follow_request, follow_request_accepted, message, like, comment, mention)")
	notifyCmd.Flags().StringVar(&notifyContent, "content", "", "Override the generated content string")
	notifyCmd.MarkFlagRequired("recipient")
	notifyCmd.MarkFlagRequired("sender")
}

func sendTestNotification() error {
	payload, err := json.Marshal(map[string]string{
		"recipient_id": notifyRecipient,
		"sender_id":    notifySender,
		"type":         notifyType,
		"content":      notifyContent,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequest("POST", apiURL+"/api/v1/admin/notify", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+authToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apiError(resp.StatusCode, body)
	}

	if output == "json" {
		fmt.Println(string(body))
		return nil
	}

	var result struct {
		Status string `json:"status"`
		Online bool   `json:"online"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if result.Online {
		fmt.Printf("Notification %s; recipient is online, delivered live\n", result.Status)
	} else {
		fmt.Printf("Notification %s; recipient is offline, stored for next login\n", result.Status)
	}
	return nil
}
