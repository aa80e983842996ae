// Package extraction turns raw document text into structured proforma and
// receipt data using ordered, data-driven pattern batteries.
package extraction

import (
	"strings"
	"unicode/utf8"

	"github.com/davidmoltin/procurement-workflows/internal/models"
	"github.com/shopspring/decimal"
)

const (
	// MaxExtractedText bounds the diagnostic text carried on the result
	MaxExtractedText = 1000

	vendorFallbackLines = 20
	maxVendorLength     = 100
	maxTermsLength      = 500
	minTermsFallback    = 25
)

// maxItemQuantity bounds a parsed row quantity; larger numbers are
// reference codes rather than counts
var maxItemQuantity = decimal.NewFromInt(1_000_000)

// Error messages recorded on DocumentData.Error
const (
	ErrNoText   = "no text could be extracted from the document"
	ErrNoAmount = "no amount could be found in the document"
)

// Extractor parses raw text into DocumentData. It holds only immutable rule
// tables, so one instance is safe to share between proforma and receipt ingestion.
type Extractor struct {
	vendorRules []Rule
	amountRules []Rule
	itemRules   []Rule
	termsRules  []Rule
}

// New creates an extractor with the default rule batteries
func New() *Extractor {
	return &Extractor{
		vendorRules: VendorRules,
		amountRules: AmountRules,
		itemRules:   ItemRules,
		termsRules:  TermsRules,
	}
}

// Extract parses raw text. It never fails: missing required fields are
// reported through the Error field of the result.
func (e *Extractor) Extract(raw string) *models.DocumentData {
	data := &models.DocumentData{
		Items:         []models.ExtractedItem{},
		ExtractedText: Truncate(raw, MaxExtractedText),
	}

	text := normalize(raw)
	if strings.TrimSpace(text) == "" {
		data.Error = ErrNoText
		return data
	}

	data.Vendor = e.Vendor(text)
	data.Items = e.Items(text)
	data.Terms = e.Terms(text)

	if amount, ok := e.Amount(text); ok {
		data.Amount = &amount
	} else if len(data.Items) > 0 {
		sum := decimal.Zero
		for _, item := range data.Items {
			sum = sum.Add(item.Total)
		}
		if sum.IsPositive() {
			data.Amount = &sum
			data.AmountDerived = true
		}
	}

	if data.Amount == nil {
		data.Error = ErrNoAmount
	}

	return data
}

// Vendor returns the issuing party, or "" when none is found
func (e *Extractor) Vendor(text string) string {
	for _, rule := range e.vendorRules {
		if v, ok := rule.Match(text); ok {
			if name := cleanEntityName(v); name != "" {
				return name
			}
		}
	}

	lines := strings.Split(text, "\n")
	if len(lines) > vendorFallbackLines {
		lines = lines[:vendorFallbackLines]
	}
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || digits.MatchString(line) || !letters.MatchString(line) {
			continue
		}
		if vendorFallbackReject.MatchString(line) {
			continue
		}
		if name := cleanEntityName(line); name != "" {
			return name
		}
	}
	return ""
}

// Amount returns the document total: the first positive candidate, in text
// order, of the first rule that produces one.
func (e *Extractor) Amount(text string) (decimal.Decimal, bool) {
	for _, rule := range e.amountRules {
		for _, raw := range rule.MatchAll(text) {
			if v, ok := ParseAmount(raw); ok {
				return v, true
			}
		}
	}
	return decimal.Zero, false
}

// Items parses line items. Rows that do not parse are skipped.
func (e *Extractor) Items(text string) []models.ExtractedItem {
	items := []models.ExtractedItem{}
	for _, line := range strings.Split(text, "\n") {
		if !digits.MatchString(line) || itemSkip.MatchString(line) {
			continue
		}
		// the first rule whose shape fits decides the row; a rejected
		// row is skipped rather than re-read by a looser rule
		for _, rule := range e.itemRules {
			if !rule.Pattern.MatchString(line) {
				continue
			}
			if item, ok := parseItem(rule, line); ok {
				items = append(items, item)
			}
			break
		}
	}
	return items
}

// Terms returns the payment terms, or "" when none are found
func (e *Extractor) Terms(text string) string {
	for _, rule := range e.termsRules {
		if v, ok := rule.Match(text); ok {
			if v = cleanTerms(v); v != "" {
				return v
			}
		}
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if utf8.RuneCountInString(line) >= minTermsFallback && termsFallback.MatchString(line) {
			return cleanTerms(line)
		}
	}
	return ""
}

func parseItem(rule Rule, line string) (models.ExtractedItem, bool) {
	m := rule.Pattern.FindStringSubmatch(line)
	if m == nil {
		return models.ExtractedItem{}, false
	}

	group := func(name string) string {
		if i := rule.Pattern.SubexpIndex(name); i >= 0 && i < len(m) {
			return m[i]
		}
		return ""
	}

	name := cleanEntityName(group("name"))
	if name == "" {
		return models.ExtractedItem{}, false
	}

	quantity, err := decimal.NewFromString(group("qty"))
	if err != nil || !quantity.IsPositive() || !quantity.IsInteger() || quantity.GreaterThan(maxItemQuantity) {
		return models.ExtractedItem{}, false
	}
	qty := int(quantity.IntPart())

	unit, unitOK := parseNonNegative(group("unit"))
	total, totalOK := parseNonNegative(group("total"))

	switch {
	case unitOK && !totalOK:
		total = unit.Mul(quantity)
	case !unitOK && totalOK:
		unit = total.Div(quantity).Round(2)
	case !unitOK && !totalOK:
		return models.ExtractedItem{}, false
	}

	return models.ExtractedItem{
		Name:      name,
		Quantity:  qty,
		UnitPrice: unit,
		Total:     total,
	}, true
}

// ParseAmount parses a monetary string, stripping currency markers and
// thousands separators. Non-positive values are rejected.
func ParseAmount(raw string) (decimal.Decimal, bool) {
	v, ok := parseNonNegative(raw)
	if !ok || !v.IsPositive() {
		return decimal.Zero, false
	}
	return v, true
}

func parseNonNegative(raw string) (decimal.Decimal, bool) {
	s := strings.TrimSpace(raw)
	for _, marker := range []string{"$", "€", "£", "USD", "EUR", "GBP", "RWF"} {
		s = strings.TrimPrefix(s, marker)
	}
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return decimal.Zero, false
	}
	v, err := decimal.NewFromString(s)
	if err != nil || v.IsNegative() {
		return decimal.Zero, false
	}
	return v, true
}

func cleanEntityName(s string) string {
	s = whitespace.ReplaceAllString(strings.TrimSpace(s), " ")
	s = strings.Trim(s, " :;,-|*#")
	if !letters.MatchString(s) {
		return ""
	}
	return Truncate(s, maxVendorLength)
}

func cleanTerms(s string) string {
	s = whitespace.ReplaceAllString(strings.TrimSpace(s), " ")
	s = strings.Trim(s, " :;,-|*")
	return Truncate(s, maxTermsLength)
}

func normalize(raw string) string {
	r := strings.NewReplacer("\r\n", "\n", "\r", "\n", "\u00a0", " ", "\f", "\n")
	return r.Replace(raw)
}

// Truncate cuts s to at most n runes
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
