package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/davidmoltin/procurement-workflows/internal/extraction"
	"github.com/davidmoltin/procurement-workflows/internal/models"
	"github.com/davidmoltin/procurement-workflows/internal/textsource"
	"github.com/spf13/cobra"
)

var extractCmd = &cobra.Command{
	Use:   "extract <file>",
	Short: "Extract vendor, amount, items and terms from a document",
	Long: `Run the document extractor locally against a proforma or receipt.

PDF and plain text files are read directly. Images need the API server,
which has OCR configured.

Examples:
  procurement-cli extract proforma.pdf
  procurement-cli extract receipt.txt --json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := extractFile(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		if outputJSON {
			return printJSON(data)
		}
		printDocument(data)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(extractCmd)
}

// extractFile reads a document from disk and parses it. Text retrieval
// failures are recorded on the result rather than returned.
func extractFile(ctx context.Context, path string) (*models.DocumentData, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	text, err := textsource.New(nil).RawText(ctx, raw)
	if err != nil {
		return &models.DocumentData{
			Items: []models.ExtractedItem{},
			Error: err.Error(),
		}, nil
	}
	return extraction.New().Extract(text), nil
}

func printDocument(d *models.DocumentData) {
	if d.Failed() {
		fmt.Printf("⚠️  %s\n\n", d.Error)
	}

	vendor := d.Vendor
	if vendor == "" {
		vendor = "(not found)"
	}
	amount := "(not found)"
	if d.Amount != nil {
		amount = d.Amount.StringFixed(2)
		if d.AmountDerived {
			amount += " (sum of items)"
		}
	}

	fmt.Printf("Vendor: %s\n", vendor)
	fmt.Printf("Amount: %s\n", amount)
	if d.Terms != "" {
		fmt.Printf("Terms:  %s\n", d.Terms)
	}

	fmt.Printf("\nItems (%d):\n", len(d.Items))
	for _, item := range d.Items {
		fmt.Printf("  - %s x%d @ %s = %s\n", item.Name, item.Quantity,
			item.UnitPrice.StringFixed(2), item.Total.StringFixed(2))
	}
}
