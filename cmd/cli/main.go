package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	authToken string
	apiURL    string = "http://localhost:8080"
	output    string = "text" // "text" or "json"
)

var rootCmd = &cobra.Command{
	Use:   "lumenfeed",
	Short: "Lumenfeed ops CLI - inspect the realtime gateway",
	Long: `Lumenfeed ops CLI talks to the realtime backend's admin endpoints.
Check who is online and push test notifications through the fan-out path.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if authToken == "" {
			authToken = os.Getenv("LUMENFEED_TOKEN")
		}
		if authToken == "" && cmd.Name() != "help" && cmd.Name() != "token" && cmd.Parent() != nil {
			fmt.Fprintf(os.Stderr, "Error: LUMENFEED_TOKEN environment variable not set\n")
			fmt.Fprintf(os.Stderr, "Please set your auth token: export LUMENFEED_TOKEN=<your-token>\n")
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&authToken, "token", "", "Authentication token (defaults to LUMENFEED_TOKEN env var)")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", apiURL, "API server URL")
	rootCmd.PersistentFlags().StringVar(&output, "output", output, "Output format: text or json")

	rootCmd.AddCommand(onlineCmd)
	rootCmd.AddCommand(notifyCmd)
	rootCmd.AddCommand(tokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
