package purchaseorder

import (
	"fmt"

	"github.com/davidmoltin/procurement-workflows/internal/models"
	maroto "github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/consts/pagesize"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

var (
	colorPrimary = &props.Color{Red: 31, Green: 58, Blue: 95}
	colorGray    = &props.Color{Red: 100, Green: 100, Blue: 100}
)

// RenderPDF renders the purchase order document
func RenderPDF(po *models.PurchaseOrderData) ([]byte, error) {
	cfg := config.NewBuilder().
		WithPageSize(pagesize.A4).
		WithLeftMargin(12).WithRightMargin(12).
		WithTopMargin(12).WithBottomMargin(12).
		WithDefaultFont(&props.Font{Family: "helvetica", Size: 9}).
		WithTitle("Purchase Order "+po.PONumber, true).
		Build()

	m := maroto.New(cfg)

	m.AddRows(headerRow(po))
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.5}))
	m.AddRows(partiesRow(po))
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.3}))

	m.AddRows(itemHeaderRow())
	for _, r := range itemRows(po.Items) {
		m.AddRows(r)
	}

	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.3}))
	m.AddRows(totalRow(po))
	if po.Terms != "" {
		m.AddRows(row.New(12).Add(col.New(12).Add(
			text.New("Payment terms: "+po.Terms, props.Text{Size: 8, Top: 3, Color: colorGray}),
		)))
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("failed to render purchase order: %w", err)
	}
	return doc.GetBytes(), nil
}

func headerRow(po *models.PurchaseOrderData) core.Row {
	return row.New(18).Add(
		col.New(7).Add(
			text.New("PURCHASE ORDER", props.Text{
				Style: fontstyle.Bold, Size: 14, Color: colorPrimary, Top: 1,
			}),
			text.New(po.Title, props.Text{Size: 9, Top: 9, Color: colorGray}),
		),
		col.New(5).Add(
			text.New(po.PONumber, props.Text{
				Style: fontstyle.Bold, Size: 11, Align: align.Right, Top: 1,
			}),
			text.New("Date: "+po.CreatedAt.Format("2006-01-02"), props.Text{
				Size: 8, Align: align.Right, Top: 8, Color: colorGray,
			}),
		),
	)
}

func partiesRow(po *models.PurchaseOrderData) core.Row {
	return row.New(12).Add(
		col.New(12).Add(
			text.New("VENDOR", props.Text{Style: fontstyle.Bold, Size: 8, Color: colorPrimary, Top: 1}),
			text.New(po.Vendor, props.Text{Style: fontstyle.Bold, Size: 10, Top: 6}),
		),
	)
}

func itemHeaderRow() core.Row {
	h := func(label string, size int, a align.Type) core.Col {
		return col.New(size).Add(text.New(label, props.Text{
			Style: fontstyle.Bold, Size: 8, Align: a, Top: 2, Color: colorPrimary,
		}))
	}
	return row.New(8).Add(
		h("Qty", 1, align.Center),
		h("Item", 6, align.Left),
		h("Unit price", 2, align.Right),
		h("Total", 3, align.Right),
	)
}

func itemRows(items []models.PurchaseOrderItem) []core.Row {
	rows := make([]core.Row, 0, len(items))
	for _, item := range items {
		name := item.Name
		if item.Description != "" {
			name += " - " + item.Description
		}
		rows = append(rows, row.New(7).Add(
			col.New(1).Add(text.New(fmt.Sprintf("%d", item.Quantity), props.Text{Size: 8, Align: align.Center, Top: 1})),
			col.New(6).Add(text.New(name, props.Text{Size: 8, Top: 1})),
			col.New(2).Add(text.New(item.UnitPrice.StringFixed(2), props.Text{Size: 8, Align: align.Right, Top: 1})),
			col.New(3).Add(text.New(item.TotalPrice.StringFixed(2), props.Text{Size: 8, Align: align.Right, Top: 1})),
		))
	}
	return rows
}

func totalRow(po *models.PurchaseOrderData) core.Row {
	return row.New(10).Add(
		col.New(9).Add(text.New("TOTAL", props.Text{Style: fontstyle.Bold, Size: 10, Align: align.Right, Top: 2})),
		col.New(3).Add(text.New(po.TotalAmount.StringFixed(2), props.Text{Style: fontstyle.Bold, Size: 10, Align: align.Right, Top: 2})),
	)
}
