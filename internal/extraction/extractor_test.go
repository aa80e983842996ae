package extraction

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const proformaText = `ACME Office Supplies Ltd
123 Market Street
Proforma Invoice No: PF-1001
Date: 2024-03-01
Bill To: Example Corp

Description Qty Unit Price Total
Office Chair 2 100.00 200.00
Desk Lamp 3 x 25.50 76.50

Subtotal: 276.50
Tax: 0.00
Total Amount: $276.50
Payment Terms: Net 30
`

const receiptText = `Receipt
Vendor: ACME Office Supplies
Office Chair 2 100.00 200.00
Desk Lamp 3 25.50 76.50
TOTAL 276.50
Thank you for your business
`

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestExtractProforma(t *testing.T) {
	data := New().Extract(proformaText)

	assert.Empty(t, data.Error)
	assert.Equal(t, "ACME Office Supplies Ltd", data.Vendor)
	require.NotNil(t, data.Amount)
	assert.True(t, dec("276.50").Equal(*data.Amount), "amount %s", data.Amount)
	assert.False(t, data.AmountDerived)
	assert.Equal(t, "Net 30", data.Terms)

	require.Len(t, data.Items, 2)
	assert.Equal(t, "Office Chair", data.Items[0].Name)
	assert.Equal(t, 2, data.Items[0].Quantity)
	assert.True(t, dec("100").Equal(data.Items[0].UnitPrice))
	assert.True(t, dec("200").Equal(data.Items[0].Total))
	assert.Equal(t, "Desk Lamp", data.Items[1].Name)
	assert.Equal(t, 3, data.Items[1].Quantity)
	assert.True(t, dec("25.50").Equal(data.Items[1].UnitPrice))
	assert.True(t, dec("76.50").Equal(data.Items[1].Total))
}

func TestExtractReceipt(t *testing.T) {
	data := New().Extract(receiptText)

	assert.Empty(t, data.Error)
	assert.Equal(t, "ACME Office Supplies", data.Vendor)
	require.NotNil(t, data.Amount)
	assert.True(t, dec("276.50").Equal(*data.Amount))
	assert.Len(t, data.Items, 2)
}

func TestExtractEmptyText(t *testing.T) {
	for _, raw := range []string{"", "   \n\t  "} {
		data := New().Extract(raw)
		assert.Equal(t, ErrNoText, data.Error)
		assert.Nil(t, data.Amount)
		assert.NotNil(t, data.Items)
		assert.Empty(t, data.Items)
	}
}

func TestExtractDerivesAmountFromItems(t *testing.T) {
	data := New().Extract("Widget 2 10.00 20.00\nGadget 1 5.00\n")

	assert.Empty(t, data.Error)
	require.NotNil(t, data.Amount)
	assert.True(t, dec("25").Equal(*data.Amount))
	assert.True(t, data.AmountDerived)
	require.Len(t, data.Items, 2)
	assert.True(t, dec("5").Equal(data.Items[1].Total))
}

func TestExtractExplicitAmountIsNotOverridden(t *testing.T) {
	data := New().Extract("Widget 2 10.00 20.00\nTotal: 18.00\n")

	require.NotNil(t, data.Amount)
	assert.True(t, dec("18").Equal(*data.Amount))
	assert.False(t, data.AmountDerived)
}

func TestExtractNoAmount(t *testing.T) {
	data := New().Extract("Thanks for shopping with us\nSubtotal: 90.00\n")

	assert.Equal(t, ErrNoAmount, data.Error)
	assert.Nil(t, data.Amount)
	assert.Equal(t, "Thanks for shopping with us", data.Vendor)
}

func TestExtractIsDeterministic(t *testing.T) {
	e := New()
	first := e.Extract(proformaText)
	second := e.Extract(proformaText)
	assert.Equal(t, first, second)
}

func TestExtractTruncatesText(t *testing.T) {
	raw := strings.Repeat("é", 1500)
	data := New().Extract(raw)
	assert.Equal(t, MaxExtractedText, len([]rune(data.ExtractedText)))
}

func TestAmount(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected string
		found    bool
	}{
		{"grand total with code and thousands", "Grand Total: USD 1,250.75", "1250.75", true},
		{"amount due", "Amount Due: $99.99", "99.99", true},
		{"subtotal is not a total", "Subtotal: 90.00\nTotal: 100.00", "100", true},
		{"first labelled total wins", "Total: 50.00\nTotal: 75.00", "50", true},
		{"cash tendered after total", "Coffee 2 x 75.00\nTotal: 150.00\nAmount: 200.00\nChange: 50.00", "150", true},
		{"specific label beats generic", "Total: 500.00\nBalance Due: 120.00", "120", true},
		{"symbol before label", "€ 42.10 due", "42.10", true},
		{"bare symbol", "Paid £15.00 in cash", "15", true},
		{"currency code", "Charged RWF 25000", "25000", true},
		{"zero rejected", "Total: 0.00", "", false},
		{"label does not cross lines", "Total:\n\nReference 12345", "", false},
		{"nothing", "hello", "", false},
	}

	e := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, ok := e.Amount(tt.text)
			assert.Equal(t, tt.found, ok)
			if tt.found {
				assert.True(t, dec(tt.expected).Equal(v), "got %s", v)
			}
		})
	}
}

func TestVendor(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected string
	}{
		{"supplier label", "Invoice\nSupplier: Kigali Hardware", "Kigali Hardware"},
		{"issued by label", "Issued By:  Blue Sky  Traders ", "Blue Sky Traders"},
		{"company suffix", "INVOICE 55\nNorthwind Trading Co.\nBill To: Contoso", "Northwind Trading Co."},
		{"first plain line", "Proforma Invoice\nGreenleaf Stationers\nDate: 2024-01-01", "Greenleaf Stationers"},
		{"bill to is the buyer", "Bill To: Contoso\n12 Road", ""},
		{"nothing usable", "1234\nTotal: 5", ""},
	}

	e := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, e.Vendor(tt.text))
		})
	}
}

func TestItems(t *testing.T) {
	tests := []struct {
		name  string
		line  string
		item  string
		qty   int
		unit  string
		total string
	}{
		{"name qty unit total", "Office Chair 2 100.00 200.00", "Office Chair", 2, "100", "200"},
		{"qty first with at", "3 Printer Paper @ 4.99 14.97", "Printer Paper", 3, "4.99", "14.97"},
		{"name qty x unit", "Stapler 4 x $2.50", "Stapler", 4, "2.50", "10"},
		{"qty name unit", "5 USB Cable 3.00", "USB Cable", 5, "3", "15"},
		{"whole decimal quantity", "Cable 2.0 1,200.00 2,400.00", "Cable", 2, "1200", "2400"},
	}

	e := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items := e.Items(tt.line)
			require.Len(t, items, 1)
			assert.Equal(t, tt.item, items[0].Name)
			assert.Equal(t, tt.qty, items[0].Quantity)
			assert.True(t, dec(tt.unit).Equal(items[0].UnitPrice), "unit %s", items[0].UnitPrice)
			assert.True(t, dec(tt.total).Equal(items[0].Total), "total %s", items[0].Total)
		})
	}

	t.Run("skips rows without a whole, bounded quantity", func(t *testing.T) {
		assert.Empty(t, e.Items("Widget 1.5 10.00 15.00"))
		assert.Empty(t, e.Items("Widget 99999999999999999999 1.00"))
	})

	t.Run("skips headers and summary rows", func(t *testing.T) {
		text := "Invoice 2024 1 2\nQty 2 3\nTotal 3 100.00\nWidget 0 5.00\nnotes only\n"
		assert.Empty(t, e.Items(text))
	})
}

func TestTerms(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected string
	}{
		{"labelled", "Terms of Payment: 50% upfront", "50% upfront"},
		{"net days", "Please pay Net 45 days from invoice", "Net 45 days"},
		{"due within", "Balance due within 14 business days", "due within 14 business days"},
		{"payment due", "Payment is due upon receipt.", "Payment is due upon receipt."},
		{"please make payment", "Please make payment to account 1234", "Please make payment to account 1234"},
		{"fallback sentence", "Bank transfer accepted; see our payment instructions", "Bank transfer accepted; see our payment instructions"},
		{"none", "Widget 1 2.00", ""},
	}

	e := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, e.Terms(tt.text))
		})
	}
}

func TestRuleTablesAreNamed(t *testing.T) {
	for _, rules := range [][]Rule{VendorRules, AmountRules, ItemRules, TermsRules} {
		for _, r := range rules {
			assert.NotEmpty(t, r.Name)
			assert.NotNil(t, r.Pattern)
		}
	}
}

func TestParseAmount(t *testing.T) {
	v, ok := ParseAmount(" $1,000.50 ")
	assert.True(t, ok)
	assert.True(t, dec("1000.50").Equal(v))

	_, ok = ParseAmount("-5")
	assert.False(t, ok)

	_, ok = ParseAmount("abc")
	assert.False(t, ok)
}
