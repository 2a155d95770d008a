package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

// serverURL is the base URL of the running outreachd daemon.
var serverURL string

var approvalsCmd = &cobra.Command{
	Use:   "approvals",
	Short: "Manage the context update approval queue",
	Long: `Inspect and act on context updates waiting for human approval on a
running outreachd daemon.

Examples:
  # List pending approvals
  outreachd approvals list

  # Approve update 42
  outreachd approvals approve 42 --by ops@example.com`,
}

var approvalsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending approvals, highest confidence first",
	RunE:  runApprovalsList,
}

var approvedBy string

var approvalsApproveCmd = &cobra.Command{
	Use:   "approve <update-id>",
	Short: "Approve and apply a pending update",
	Args:  cobra.ExactArgs(1),
	RunE:  runApprovalsApprove,
}

func init() {
	approvalsCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:9180", "outreachd server URL")
	approvalsApproveCmd.Flags().StringVar(&approvedBy, "by", "", "identity recorded as the approver")
	approvalsCmd.AddCommand(approvalsListCmd)
	approvalsCmd.AddCommand(approvalsApproveCmd)
}

// pendingUpdate matches internal/httpapi PendingUpdate.
type pendingUpdate struct {
	ID         int64     `json:"id"`
	ClientID   string    `json:"client_id"`
	Capability string    `json:"capability"`
	Source     string    `json:"source"`
	Confidence float64   `json:"confidence"`
	CreatedAt  time.Time `json:"created_at"`
}

func runApprovalsList(cmd *cobra.Command, args []string) error {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(serverURL + "/api/v1/approvals")
	if err != nil {
		return fmt.Errorf("failed to reach server at %s: %w", serverURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, body)
	}

	var pending []pendingUpdate
	if err := json.NewDecoder(resp.Body).Decode(&pending); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if len(pending) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No pending approvals.")
		return nil
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%-6s %-20s %-12s %-22s %-10s %s\n", "ID", "CLIENT", "CAPABILITY", "SOURCE", "CONF", "CREATED")
	for _, p := range pending {
		fmt.Fprintf(w, "%-6d %-20s %-12s %-22s %-10.2f %s\n",
			p.ID, p.ClientID, p.Capability, p.Source, p.Confidence,
			p.CreatedAt.Format(time.RFC3339))
	}
	return nil
}

func runApprovalsApprove(cmd *cobra.Command, args []string) error {
	updateID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid update id %q", args[0])
	}

	body, err := json.Marshal(map[string]string{"approved_by": approvedBy})
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	url := fmt.Sprintf("%s/api/v1/approvals/%d/approve", serverURL, updateID)
	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to reach server at %s: %w", serverURL, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		fmt.Fprintf(cmd.OutOrStdout(), "Update %d approved and applied.\n", updateID)
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("no pending update with id %d", updateID)
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, msg)
	}
}
