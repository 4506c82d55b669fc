package pricing

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// fileSchema is the on-disk pricing document. JSON documents parse through
// the same decoder.
//
//	models:
//	  gpt-4o: {input: 0.0025, output: 0.01}
//	prefixes:
//	  - {prefix: "gpt-4o-", input: 0.0025, output: 0.01}
//
// The chat/embeddings sections accept the community pricing.json layout
// (promptPrice/completionPrice per model, embeddings as a single rate).
type fileSchema struct {
	Models     map[string]fileRate `yaml:"models"`
	Prefixes   []filePrefix        `yaml:"prefixes"`
	Chat       map[string]fileChat `yaml:"chat"`
	Embeddings map[string]float64  `yaml:"embeddings"`
}

type fileRate struct {
	Input  float64 `yaml:"input"`
	Output float64 `yaml:"output"`
}

type filePrefix struct {
	Prefix string  `yaml:"prefix"`
	Input  float64 `yaml:"input"`
	Output float64 `yaml:"output"`
}

type fileChat struct {
	PromptPrice     float64 `yaml:"promptPrice"`
	CompletionPrice float64 `yaml:"completionPrice"`
}

// LoadFile reads a YAML or JSON pricing document from path.
func LoadFile(path string) (*Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pricing file: %w", err)
	}
	table, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse pricing file %q: %w", path, err)
	}
	return table, nil
}

// Parse decodes a pricing document. Negative rates and empty documents are
// rejected.
func Parse(raw []byte) (*Table, error) {
	var doc fileSchema
	decoder := yaml.NewDecoder(bytes.NewReader(raw))
	decoder.KnownFields(true)
	if err := decoder.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("pricing document is empty")
		}
		return nil, err
	}
	var trailing interface{}
	if err := decoder.Decode(&trailing); err != io.EOF {
		if err == nil {
			return nil, errors.New("pricing document must contain a single document")
		}
		return nil, err
	}

	exact := make(map[string]Price, len(doc.Models)+len(doc.Chat)+len(doc.Embeddings))
	for model, rate := range doc.Chat {
		if err := checkRates(model, rate.PromptPrice, rate.CompletionPrice); err != nil {
			return nil, err
		}
		exact[model] = NewPrice(rate.PromptPrice, rate.CompletionPrice)
	}
	for model, rate := range doc.Embeddings {
		if err := checkRates(model, rate, 0); err != nil {
			return nil, err
		}
		exact[model] = NewPrice(rate, 0)
	}
	for model, rate := range doc.Models {
		if err := checkRates(model, rate.Input, rate.Output); err != nil {
			return nil, err
		}
		exact[model] = NewPrice(rate.Input, rate.Output)
	}

	prefixes := make([]PrefixRule, 0, len(doc.Prefixes))
	for i, rule := range doc.Prefixes {
		if strings.TrimSpace(rule.Prefix) == "" {
			return nil, fmt.Errorf("prefixes[%d]: prefix cannot be empty", i)
		}
		if err := checkRates(rule.Prefix, rule.Input, rule.Output); err != nil {
			return nil, err
		}
		prefixes = append(prefixes, PrefixRule{Prefix: rule.Prefix, Price: NewPrice(rule.Input, rule.Output)})
	}

	table := NewTable(exact, prefixes...)
	if table.Len() == 0 {
		return nil, errors.New("pricing document has no entries")
	}
	return table, nil
}

func checkRates(model string, input, output float64) error {
	if strings.TrimSpace(model) == "" {
		return errors.New("model name cannot be empty")
	}
	if input < 0 || output < 0 {
		return fmt.Errorf("model %q: rates must be non-negative", model)
	}
	return nil
}
