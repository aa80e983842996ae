package extraction

import "regexp"

// Rule is a single named pattern in an ordered extraction battery. For
// single-value fields the first capture group holds the value; when the
// pattern has no groups the whole match is used.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
}

// Match returns the value the rule extracts from text, if any
func (r Rule) Match(text string) (string, bool) {
	m := r.Pattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	if len(m) > 1 {
		return m[1], true
	}
	return m[0], true
}

// MatchAll returns every value the rule extracts from text
func (r Rule) MatchAll(text string) []string {
	matches := r.Pattern.FindAllStringSubmatch(text, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if len(m) > 1 {
			out = append(out, m[1])
		} else {
			out = append(out, m[0])
		}
	}
	return out
}

const (
	// optional currency marker in front of a number
	currencyPrefix = `(?:[$€£][ \t]*|(?:USD|EUR|GBP|RWF)[ \t]*)?`
	// grouped thousands first so "1,500.00" is not read as "1"
	number = `([0-9]{1,3}(?:,[0-9]{3})+(?:\.[0-9]{1,2})?|[0-9]+(?:\.[0-9]{1,2})?)`
	// label separator that never crosses a line break
	labelSep = `[ \t]*:?[ \t]*`
)

// VendorRules locate the issuing party. A "bill to" label names the buyer,
// so it is deliberately absent.
var VendorRules = []Rule{
	{
		Name:    "vendor_label",
		Pattern: regexp.MustCompile(`(?im)^[ \t]*(?:vendor|supplier|seller|company|bill[ \t]+from|issued[ \t]+by|from)[ \t]*:[ \t]*([^\n]+)$`),
	},
	{
		Name:    "company_suffix",
		Pattern: regexp.MustCompile(`(?m)^[ \t]*([A-Za-z][A-Za-z0-9&.,'\- ]*?\b(?:Inc|LLC|Ltd|Limited|Corp|Corporation|Company|Co|GmbH|S\.A)\.?)[ \t]*$`),
	},
}

// AmountRules locate the document total, most specific label first
var AmountRules = []Rule{
	{
		Name:    "labelled_grand_total",
		Pattern: regexp.MustCompile(`(?i)(?:grand[ \t]+total|total[ \t]+amount|amount[ \t]+due|balance[ \t]+due|total[ \t]+payable)` + labelSep + currencyPrefix + number),
	},
	{
		Name:    "labelled_total",
		Pattern: regexp.MustCompile(`(?i)\b(?:total|amount)` + labelSep + currencyPrefix + number),
	},
	{
		Name:    "symbol_before_label",
		Pattern: regexp.MustCompile(`(?i)[$€£][ \t]*` + number + `[ \t]*(?:total|amount|due)\b`),
	},
	{
		Name:    "currency_symbol",
		Pattern: regexp.MustCompile(`[$€£][ \t]*` + number),
	},
	{
		Name:    "currency_code",
		Pattern: regexp.MustCompile(`\b(?:USD|EUR|GBP|RWF)[ \t]*` + number),
	},
}

// TermsRules locate payment terms
var TermsRules = []Rule{
	{
		Name:    "terms_label",
		Pattern: regexp.MustCompile(`(?im)^[ \t]*(?:payment[ \t]+terms|terms[ \t]+of[ \t]+payment|terms(?:[ \t]+and[ \t]+conditions)?|conditions)[ \t]*:[ \t]*([^\n]+)$`),
	},
	{
		Name:    "net_days",
		Pattern: regexp.MustCompile(`(?i)\bnet[ \t]*[0-9]+(?:[ \t]+days)?\b`),
	},
	{
		Name:    "due_within_days",
		Pattern: regexp.MustCompile(`(?i)\bdue[ \t]+(?:within|in)[ \t]+[0-9]+[ \t]+(?:business[ \t]+)?days\b`),
	},
	{
		Name:    "payment_due",
		Pattern: regexp.MustCompile(`(?i)\bpayment[ \t]+(?:is[ \t]+)?due\b[^\n]*`),
	},
	{
		Name:    "make_payment",
		Pattern: regexp.MustCompile(`(?i)\bplease[ \t]+make[ \t]+(?:the[ \t]+)?payment\b[^\n]*`),
	},
}

const (
	itemName  = `(?P<name>[A-Za-z][A-Za-z0-9 &/().,'#\-]*?)`
	itemQty   = `(?P<qty>[0-9]+(?:\.[0-9]+)?)`
	itemMul   = `(?:[ \t]*[xX×@][ \t]*|[ \t]+)`
	itemUnit  = `(?:[$€£][ \t]*)?(?P<unit>[0-9]{1,3}(?:,[0-9]{3})+(?:\.[0-9]+)?|[0-9]+(?:\.[0-9]+)?)`
	itemTotal = `(?:[$€£][ \t]*)?(?P<total>[0-9]{1,3}(?:,[0-9]{3})+(?:\.[0-9]+)?|[0-9]+(?:\.[0-9]+)?)`
)

// ItemRules parse a single line into an item. Patterns use the named groups
// name, qty, unit and optionally total.
var ItemRules = []Rule{
	{
		Name:    "name_qty_unit_total",
		Pattern: regexp.MustCompile(`^[ \t]*` + itemName + `[ \t]+` + itemQty + itemMul + itemUnit + `[ \t]+` + itemTotal + `[ \t]*$`),
	},
	{
		Name:    "qty_name_unit_total",
		Pattern: regexp.MustCompile(`^[ \t]*` + itemQty + `[ \t]+` + itemName + itemMul + itemUnit + `[ \t]+` + itemTotal + `[ \t]*$`),
	},
	{
		Name:    "name_qty_unit",
		Pattern: regexp.MustCompile(`^[ \t]*` + itemName + `[ \t]+` + itemQty + itemMul + itemUnit + `[ \t]*$`),
	},
	{
		Name:    "qty_name_unit",
		Pattern: regexp.MustCompile(`^[ \t]*` + itemQty + `[ \t]+` + itemName + itemMul + itemUnit + `[ \t]*$`),
	},
}

var (
	// lines that look tabular but are headers or summary rows
	itemSkip = regexp.MustCompile(`(?i)\b(?:invoice|total|subtotal|amount[ \t]+due|description|qty|quantity|payment|date|tax|vat|balance|phone|tel)\b`)

	// words that disqualify a line from the vendor fallback
	vendorFallbackReject = regexp.MustCompile(`(?i)\b(?:invoice|proforma|pro-forma|receipt|date|number|no|total|amount|due|client|customer|ship|shipping|bill|billed|estimate|quote|quotation|issued|payment|to|tax)\b`)

	termsFallback = regexp.MustCompile(`(?i)\b(?:payment|due|terms)\b`)

	digits     = regexp.MustCompile(`[0-9]`)
	letters    = regexp.MustCompile(`[A-Za-z]`)
	whitespace = regexp.MustCompile(`\s+`)
)
