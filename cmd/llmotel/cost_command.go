package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/ongoingai/llmotel/observability"
	"github.com/ongoingai/llmotel/pricing"
)

const defaultCostFormat = "text"

type costDocument struct {
	Model        string `json:"model"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
	InputUSD     string `json:"input_usd"`
	OutputUSD    string `json:"output_usd"`
	TotalUSD     string `json:"total_usd"`
}

func runCost(args []string, out io.Writer, errOut io.Writer) int {
	flagSet := flag.NewFlagSet("cost", flag.ContinueOnError)
	flagSet.SetOutput(errOut)

	model := flagSet.String("model", "", "Model name to price")
	inputTokens := flagSet.Int("input", 0, "Input (prompt) token count")
	outputTokens := flagSet.Int("output", 0, "Output (completion) token count")
	pricingPath := flagSet.String("pricing", "", "Optional pricing YAML overlaid on the built-in table")
	format := flagSet.String("format", defaultCostFormat, "Output format: text or json")

	if err := flagSet.Parse(args); err != nil {
		return 2
	}
	if flagSet.NArg() != 0 {
		fmt.Fprintln(errOut, "cost does not accept positional arguments")
		return 2
	}

	normalizedFormat, err := normalizeTextJSONFormat("cost", *format, defaultCostFormat)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	name := strings.TrimSpace(*model)
	if name == "" {
		fmt.Fprintln(errOut, "cost requires --model")
		return 2
	}
	if *inputTokens < 0 || *outputTokens < 0 {
		fmt.Fprintln(errOut, "token counts must be >= 0")
		return 2
	}

	table, err := observability.LoadPricing(strings.TrimSpace(*pricingPath))
	if err != nil {
		fmt.Fprintf(errOut, "failed to load pricing: %v\n", err)
		return 1
	}
	if _, err := table.Lookup(name); err != nil {
		if errors.Is(err, pricing.ErrUnknownModel) {
			fmt.Fprintf(errOut, "%v: %s\n", pricing.ErrUnknownModel, name)
		} else {
			fmt.Fprintln(errOut, err)
		}
		return 1
	}

	cost := table.Cost(name, *inputTokens, *outputTokens)
	doc := costDocument{
		Model:        name,
		InputTokens:  *inputTokens,
		OutputTokens: *outputTokens,
		InputUSD:     cost.Input.String(),
		OutputUSD:    cost.Output.String(),
		TotalUSD:     cost.Total.String(),
	}

	if normalizedFormat == "json" {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(doc); err != nil {
			fmt.Fprintf(errOut, "failed to write cost output: %v\n", err)
			return 1
		}
		return 0
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Model\t%s\n", doc.Model)
	fmt.Fprintf(w, "Input\t%d tokens\t$%s\n", doc.InputTokens, doc.InputUSD)
	fmt.Fprintf(w, "Output\t%d tokens\t$%s\n", doc.OutputTokens, doc.OutputUSD)
	fmt.Fprintf(w, "Total\t\t$%s\n", doc.TotalUSD)
	if err := w.Flush(); err != nil {
		fmt.Fprintf(errOut, "failed to write cost output: %v\n", err)
		return 1
	}
	return 0
}
