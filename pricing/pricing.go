// Package pricing maps model names to per-1K-token rates and computes the
// monetary cost of a call.
package pricing

import (
	"errors"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// CostScale is the number of decimal places cost values are rounded to.
const CostScale int32 = 10

// ErrUnknownModel reports that no exact or prefix rule matched a model name.
var ErrUnknownModel = errors.New("pricing: unknown model")

// Price holds USD rates per 1000 tokens.
type Price struct {
	InputPer1K  decimal.Decimal
	OutputPer1K decimal.Decimal
}

// NewPrice builds a Price from float rates.
func NewPrice(inputPer1K, outputPer1K float64) Price {
	return Price{
		InputPer1K:  decimal.NewFromFloat(inputPer1K),
		OutputPer1K: decimal.NewFromFloat(outputPer1K),
	}
}

// PrefixRule prices every model whose normalized name starts with Prefix.
type PrefixRule struct {
	Prefix string
	Price  Price
}

// Table is an immutable pricing lookup. A nil *Table prices nothing.
type Table struct {
	exact    map[string]Price
	prefixes []PrefixRule
}

// NewTable builds a table from exact model rates and prefix rules. Longer
// prefixes win over shorter ones regardless of argument order.
func NewTable(exact map[string]Price, prefixes ...PrefixRule) *Table {
	table := &Table{exact: make(map[string]Price, len(exact))}
	for model, price := range exact {
		model = normalizeModel(model)
		if model == "" {
			continue
		}
		table.exact[model] = price
	}
	for _, rule := range prefixes {
		rule.Prefix = normalizeModel(rule.Prefix)
		if rule.Prefix == "" {
			continue
		}
		table.prefixes = append(table.prefixes, rule)
	}
	sortPrefixes(table.prefixes)
	return table
}

func sortPrefixes(rules []PrefixRule) {
	sort.SliceStable(rules, func(i, j int) bool {
		return len(rules[i].Prefix) > len(rules[j].Prefix)
	})
}

func normalizeModel(model string) string {
	return strings.TrimSpace(strings.ToLower(model))
}

// Lookup resolves the rates for model: exact match first, then the longest
// matching prefix rule.
func (t *Table) Lookup(model string) (Price, error) {
	model = normalizeModel(model)
	if t == nil || model == "" {
		return Price{}, ErrUnknownModel
	}
	if price, ok := t.exact[model]; ok {
		return price, nil
	}
	for _, rule := range t.prefixes {
		if strings.HasPrefix(model, rule.Prefix) {
			return rule.Price, nil
		}
	}
	return Price{}, ErrUnknownModel
}

// Len reports the number of exact entries plus prefix rules.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.exact) + len(t.prefixes)
}

// Models returns the exact model names in sorted order.
func (t *Table) Models() []string {
	if t == nil {
		return nil
	}
	models := make([]string, 0, len(t.exact))
	for model := range t.exact {
		models = append(models, model)
	}
	sort.Strings(models)
	return models
}

// Prefixes returns a copy of the prefix rules, longest first.
func (t *Table) Prefixes() []PrefixRule {
	if t == nil {
		return nil
	}
	return append([]PrefixRule(nil), t.prefixes...)
}

// Merge returns a new table where entries from override replace entries of t
// with the same exact name or prefix.
func (t *Table) Merge(override *Table) *Table {
	merged := &Table{exact: make(map[string]Price)}
	byPrefix := make(map[string]int)
	for _, source := range []*Table{t, override} {
		if source == nil {
			continue
		}
		for model, price := range source.exact {
			merged.exact[model] = price
		}
		for _, rule := range source.prefixes {
			if idx, ok := byPrefix[rule.Prefix]; ok {
				merged.prefixes[idx] = rule
				continue
			}
			byPrefix[rule.Prefix] = len(merged.prefixes)
			merged.prefixes = append(merged.prefixes, rule)
		}
	}
	sortPrefixes(merged.prefixes)
	return merged
}

// Cost is the priced result for one call.
type Cost struct {
	Model  string
	Input  decimal.Decimal
	Output decimal.Decimal
	Total  decimal.Decimal
	// Known is false when the model has no pricing entry; amounts are zero.
	Known bool
}

// Float64 returns Total as a float for attribute and metric emission.
func (c Cost) Float64() float64 {
	return c.Total.InexactFloat64()
}

// Cost prices a call. Unknown models yield a zero cost with Known=false.
func (t *Table) Cost(model string, inputTokens, outputTokens int) Cost {
	price, err := t.Lookup(model)
	if err != nil {
		return Cost{Model: model, Input: decimal.Zero, Output: decimal.Zero, Total: decimal.Zero}
	}
	cost := Calculate(price, inputTokens, outputTokens)
	cost.Model = model
	return cost
}

// Calculate applies price to token counts. Each side is computed
// independently, rounded half away from zero to CostScale places, and summed.
// Negative counts are treated as zero.
func Calculate(price Price, inputTokens, outputTokens int) Cost {
	input := perThousand(price.InputPer1K, inputTokens)
	output := perThousand(price.OutputPer1K, outputTokens)
	return Cost{
		Input:  input,
		Output: output,
		Total:  input.Add(output),
		Known:  true,
	}
}

func perThousand(rate decimal.Decimal, tokens int) decimal.Decimal {
	if tokens <= 0 || rate.IsNegative() {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(tokens)).Mul(rate).Shift(-3).Round(CostScale)
}
