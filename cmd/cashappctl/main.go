// Command cashappctl is the operator CLI: the thin human-facing
// counterpart to the orchestrator's HTTP control surface (§4.8).
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var serverAddr string

var rootCmd = &cobra.Command{
	Use:   "cashappctl",
	Short: "Operate the cash-application workflow engine",
}

var submitCmd = &cobra.Command{
	Use:   "submit [workflow-name] [payment-id]",
	Short: "Submit a payment for cash-application processing",
	Args:  cobra.ExactArgs(2),
	RunE:  runSubmit,
}

var clientID string

var statusCmd = &cobra.Command{
	Use:   "status [run-id]",
	Short: "Query a run's current state",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

var cancelCmd = &cobra.Command{
	Use:   "cancel [run-id]",
	Short: "Request cancellation of a run",
	Args:  cobra.ExactArgs(1),
	RunE:  runCancel,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Dump active-run statistics",
	RunE:  runStats,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverAddr, "addr", "http://127.0.0.1:8080", "cashappd control-surface address")
	submitCmd.Flags().StringVar(&clientID, "client-id", "", "client id for metrics labeling")
	rootCmd.AddCommand(submitCmd, statusCmd, cancelCmd, statsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runSubmit(cmd *cobra.Command, args []string) error {
	name, id := args[0], args[1]
	body, _ := json.Marshal(map[string]any{
		"name":       name,
		"id":         id,
		"value_date": time.Now().UTC(),
		"client_id":  clientID,
	})
	resp, err := http.Post(serverAddr+"/runs", "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return printResponse(resp)
}

func runStatus(cmd *cobra.Command, args []string) error {
	resp, err := http.Get(serverAddr + "/runs/" + args[0])
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return printResponse(resp)
}

func runCancel(cmd *cobra.Command, args []string) error {
	resp, err := http.Post(serverAddr+"/runs/"+args[0]+"/cancel", "application/json", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return printResponse(resp)
}

func runStats(cmd *cobra.Command, args []string) error {
	resp, err := http.Get(serverAddr + "/stats")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return printResponse(resp)
}

func printResponse(resp *http.Response) error {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
