package pricing

// Default returns the built-in rate table. Rates are USD per 1K tokens.
func Default() *Table {
	exact := map[string]Price{
		// OpenAI
		"gpt-4o":                 NewPrice(0.0025, 0.01),
		"gpt-4o-mini":            NewPrice(0.00015, 0.0006),
		"gpt-4.1":                NewPrice(0.002, 0.008),
		"gpt-4.1-mini":           NewPrice(0.0004, 0.0016),
		"gpt-4.1-nano":           NewPrice(0.0001, 0.0004),
		"gpt-4-turbo":            NewPrice(0.01, 0.03),
		"gpt-3.5-turbo":          NewPrice(0.0005, 0.0015),
		"o3-mini":                NewPrice(0.0011, 0.0044),
		"text-embedding-3-small": NewPrice(0.00002, 0),
		"text-embedding-3-large": NewPrice(0.00013, 0),
		"text-embedding-ada-002": NewPrice(0.0001, 0),

		// Anthropic
		"claude-opus-4-1":           NewPrice(0.015, 0.075),
		"claude-opus-4-6":           NewPrice(0.005, 0.025),
		"claude-sonnet-4-20250514":  NewPrice(0.003, 0.015),
		"claude-haiku-4-5-20251001": NewPrice(0.001, 0.005),
		"claude-3-5-haiku-20241022": NewPrice(0.0008, 0.004),

		// Google
		"gemini-2.5-pro":   NewPrice(0.00125, 0.01),
		"gemini-2.5-flash": NewPrice(0.0003, 0.0025),
		"gemini-2.0-flash": NewPrice(0.0001, 0.0004),
		"gemini-1.5-pro":   NewPrice(0.00125, 0.005),
		"gemini-1.5-flash": NewPrice(0.000075, 0.0003),

		// Mistral
		"mistral-large-latest": NewPrice(0.002, 0.006),
		"mistral-small-latest": NewPrice(0.0002, 0.0006),

		// Cohere
		"command-r":      NewPrice(0.00015, 0.0006),
		"command-r-plus": NewPrice(0.0025, 0.01),
	}

	return NewTable(exact,
		PrefixRule{Prefix: "gpt-4o-mini-", Price: NewPrice(0.00015, 0.0006)},
		PrefixRule{Prefix: "gpt-4o-", Price: NewPrice(0.0025, 0.01)},
		PrefixRule{Prefix: "gpt-4.1-mini-", Price: NewPrice(0.0004, 0.0016)},
		PrefixRule{Prefix: "gpt-4.1-nano-", Price: NewPrice(0.0001, 0.0004)},
		PrefixRule{Prefix: "gpt-4.1-", Price: NewPrice(0.002, 0.008)},
		PrefixRule{Prefix: "gpt-3.5-turbo-", Price: NewPrice(0.0005, 0.0015)},
		PrefixRule{Prefix: "claude-opus-4-6-", Price: NewPrice(0.005, 0.025)},
		PrefixRule{Prefix: "claude-opus-4-1-", Price: NewPrice(0.015, 0.075)},
		PrefixRule{Prefix: "claude-opus-4-", Price: NewPrice(0.015, 0.075)},
		PrefixRule{Prefix: "claude-sonnet-4-", Price: NewPrice(0.003, 0.015)},
		PrefixRule{Prefix: "claude-haiku-4-", Price: NewPrice(0.001, 0.005)},
		PrefixRule{Prefix: "claude-3-7-sonnet-", Price: NewPrice(0.003, 0.015)},
		PrefixRule{Prefix: "claude-3-5-sonnet-", Price: NewPrice(0.003, 0.015)},
		PrefixRule{Prefix: "claude-3-5-haiku-", Price: NewPrice(0.0008, 0.004)},
		PrefixRule{Prefix: "claude-3-opus-", Price: NewPrice(0.015, 0.075)},
		PrefixRule{Prefix: "claude-3-haiku-", Price: NewPrice(0.00025, 0.00125)},
		PrefixRule{Prefix: "gemini-2.5-flash-", Price: NewPrice(0.0003, 0.0025)},
		PrefixRule{Prefix: "gemini-2.0-flash-", Price: NewPrice(0.0001, 0.0004)},
		PrefixRule{Prefix: "gemini-1.5-flash-", Price: NewPrice(0.000075, 0.0003)},
		PrefixRule{Prefix: "gemini-1.5-pro-", Price: NewPrice(0.00125, 0.005)},
		PrefixRule{Prefix: "models/gemini-2.0-flash", Price: NewPrice(0.0001, 0.0004)},
	)
}
