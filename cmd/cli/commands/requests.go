package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/davidmoltin/procurement-workflows/internal/models"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	listStatus string
	listLimit  int
	listOffset int
	comments   string
)

const requestTimeout = 30 * time.Second

var requestsCmd = &cobra.Command{
	Use:     "requests",
	Aliases: []string{"req"},
	Short:   "Work with purchase requests on the API server",
}

var requestsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List purchase requests visible to you",
	Long: `List purchase requests visible to the authenticated user.

Examples:
  procurement-cli requests list
  procurement-cli requests list --status pending --limit 50
  procurement-cli requests list --json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if listStatus != "" && !models.RequestStatus(listStatus).Valid() {
			return fmt.Errorf("unknown status %q", listStatus)
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
		defer cancel()

		list, err := newClient().ListRequests(ctx, listStatus, listLimit, listOffset)
		if err != nil {
			return fmt.Errorf("failed to list requests: %w", err)
		}

		if outputJSON {
			return printJSON(list)
		}
		printRequestList(list)
		return nil
	},
}

var requestsGetCmd = &cobra.Command{
	Use:   "get <request-id>",
	Short: "Show a purchase request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid request id %q", args[0])
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
		defer cancel()

		req, err := newClient().GetRequest(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to get request: %w", err)
		}

		if outputJSON {
			return printJSON(req)
		}
		printRequest(req)
		return nil
	},
}

type reviewFunc func(ctx context.Context, id uuid.UUID, comments string) (*models.PurchaseRequest, error)

func newReviewCmd(use, short, verb string, call func() reviewFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use + " <request-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid request id %q", args[0])
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()

			req, err := call()(ctx, id, comments)
			if err != nil {
				return fmt.Errorf("failed to %s request: %w", use, err)
			}

			if outputJSON {
				return printJSON(req)
			}
			fmt.Printf("✅ Request %s %s\n", req.ID, verb)
			printRequest(req)
			return nil
		},
	}
	cmd.Flags().StringVarP(&comments, "comments", "m", "", "Reviewer comments (required)")
	cmd.MarkFlagRequired("comments")
	return cmd
}

func init() {
	rootCmd.AddCommand(requestsCmd)

	requestsListCmd.Flags().StringVar(&listStatus, "status", "", "Filter by status (pending, approved, rejected, cancelled)")
	requestsListCmd.Flags().IntVar(&listLimit, "limit", 20, "Maximum number of requests to return")
	requestsListCmd.Flags().IntVar(&listOffset, "offset", 0, "Number of requests to skip")

	requestsCmd.AddCommand(
		requestsListCmd,
		requestsGetCmd,
		newReviewCmd("approve", "Approve a request at your approval level", "approved",
			func() reviewFunc { return newClient().Approve }),
		newReviewCmd("reject", "Reject a request at your approval level", "rejected",
			func() reviewFunc { return newClient().Reject }),
		newReviewCmd("cancel", "Cancel a request (finance or admin)", "cancelled",
			func() reviewFunc { return newClient().Cancel }),
	)
}

func printRequestList(list *models.PurchaseRequestListResponse) {
	if len(list.Requests) == 0 {
		fmt.Println("📭 No purchase requests found")
		return
	}

	fmt.Printf("\n📋 Showing %d of %d request(s):\n\n", len(list.Requests), list.Total)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tAMOUNT\tSTATUS\tL1\tL2\tCREATED")
	for _, r := range list.Requests {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID,
			truncate(r.Title, 32),
			r.Amount.StringFixed(2),
			r.Status,
			checkMark(r.Level1Approved),
			checkMark(r.Level2Approved),
			r.CreatedAt.Format("2006-01-02"),
		)
	}
	w.Flush()
}

func printRequest(r *models.PurchaseRequest) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Title:\t%s\n", r.Title)
	fmt.Fprintf(w, "Amount:\t%s\n", r.Amount.StringFixed(2))
	fmt.Fprintf(w, "Status:\t%s\n", r.Status)
	fmt.Fprintf(w, "Level 1:\t%s\n", checkMark(r.Level1Approved))
	fmt.Fprintf(w, "Level 2:\t%s\n", checkMark(r.Level2Approved))
	if r.PurchaseOrderData != nil {
		fmt.Fprintf(w, "Purchase order:\t%s (%s)\n", r.PurchaseOrderData.PONumber, r.PurchaseOrderData.Vendor)
	}
	if v := r.ReceiptValidation; v != nil {
		fmt.Fprintf(w, "Receipt valid:\t%s\n", checkMark(v.IsValid))
		for _, e := range v.Errors {
			fmt.Fprintf(w, "  error:\t%s\n", e)
		}
		for _, warn := range v.Warnings {
			fmt.Fprintf(w, "  warning:\t%s\n", warn)
		}
	}
	w.Flush()

	if len(r.Items) > 0 {
		fmt.Println("\nItems:")
		for _, item := range r.Items {
			fmt.Printf("  - %s x%d @ %s\n", item.Name, item.Quantity, item.UnitPrice.StringFixed(2))
		}
	}
}

func checkMark(ok bool) string {
	if ok {
		return "yes"
	}
	return "no"
}
