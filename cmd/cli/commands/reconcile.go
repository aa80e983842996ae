package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/davidmoltin/procurement-workflows/internal/models"
	"github.com/davidmoltin/procurement-workflows/internal/reconciliation"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	poFile    string
	tolerance string
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile --po <po.json> <receipt>",
	Short: "Validate a receipt against a purchase order",
	Long: `Extract a receipt locally and reconcile it against a purchase order.

The --po file may hold either the purchase order itself or a full request
as printed by "procurement-cli requests get --json".

Examples:
  procurement-cli reconcile --po po.json receipt.pdf
  procurement-cli requests get <id> --json > req.json && procurement-cli reconcile --po req.json receipt.txt`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tol, err := decimal.NewFromString(tolerance)
		if err != nil {
			return fmt.Errorf("invalid tolerance %q: %w", tolerance, err)
		}

		po, err := loadPurchaseOrder(poFile)
		if err != nil {
			return err
		}

		receipt, err := extractFile(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		result, err := reconciliation.NewValidator(tol).Validate(&models.PurchaseRequest{PurchaseOrderData: po}, receipt)
		if err != nil {
			return err
		}

		if outputJSON {
			if err := printJSON(result); err != nil {
				return err
			}
		} else {
			printValidation(po, result)
		}
		if !result.IsValid {
			return fmt.Errorf("receipt does not match purchase order %s", po.PONumber)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
	reconcileCmd.Flags().StringVar(&poFile, "po", "", "Purchase order or request JSON file (required)")
	reconcileCmd.Flags().StringVar(&tolerance, "tolerance", reconciliation.DefaultAmountTolerance.String(), "Allowed difference between receipt and order totals")
	reconcileCmd.MarkFlagRequired("po")
}

// loadPurchaseOrder accepts a bare purchase order or a request carrying one
func loadPurchaseOrder(path string) (*models.PurchaseOrderData, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var envelope struct {
		PONumber          string                    `json:"po_number"`
		PurchaseOrderData *models.PurchaseOrderData `json:"purchase_order_data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if envelope.PONumber == "" {
		if envelope.PurchaseOrderData == nil {
			return nil, fmt.Errorf("%s holds no purchase order", path)
		}
		return envelope.PurchaseOrderData, nil
	}

	var po models.PurchaseOrderData
	if err := json.Unmarshal(raw, &po); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &po, nil
}

func printValidation(po *models.PurchaseOrderData, result *models.ReceiptValidationResult) {
	if result.IsValid {
		fmt.Printf("✅ Receipt matches purchase order %s\n", po.PONumber)
	} else {
		fmt.Printf("❌ Receipt does not match purchase order %s\n", po.PONumber)
	}

	fmt.Printf("\nVendor: %s  Amount: %s  Items: %s\n",
		checkMark(result.VendorMatch), checkMark(result.AmountMatch), checkMark(result.ItemsMatch))

	for _, e := range result.Errors {
		fmt.Printf("  error:   %s\n", e)
	}
	for _, w := range result.Warnings {
		fmt.Printf("  warning: %s\n", w)
	}
}
