package catalog

// SeedDefaults registers one representative Profile per engine this
// module ships a Backend for, so the Router has real candidates to
// plan over before any background DiscoveryJob has run. Ranks are
// relative, not absolute: lower LatencyRank/CostRank is preferred.
func SeedDefaults(c *Catalog) {
	for _, p := range []Profile{
		{
			ProviderID: "anthropic", ModelID: "claude-sonnet-4-5",
			Classes: []Class{ClassDefault, ClassFrontier},
			LatencyRank: 2, CostRank: 3, MaxContextTokens: 200_000,
			Capabilities: Capabilities{Streaming: true, Tools: true},
		},
		{
			ProviderID: "openai", ModelID: "gpt-4.1",
			Classes: []Class{ClassDefault, ClassFrontier},
			LatencyRank: 2, CostRank: 3, MaxContextTokens: 128_000,
			Capabilities: Capabilities{Streaming: true, Tools: true},
		},
		{
			ProviderID: "bedrock", ModelID: "anthropic.claude-3-5-sonnet-20241022-v2:0",
			Classes: []Class{ClassDefault, ClassLongContext},
			LatencyRank: 3, CostRank: 3, MaxContextTokens: 200_000,
			Capabilities: Capabilities{Streaming: false, Tools: true},
		},
		{
			ProviderID: "gemini", ModelID: "gemini-2.0-flash",
			Classes: []Class{ClassDefault, ClassFast, ClassCheap},
			LatencyRank: 1, CostRank: 1, MaxContextTokens: 1_000_000,
			Capabilities: Capabilities{Streaming: true, Tools: true},
		},
		{
			ProviderID: "ollama", ModelID: "llama3.1",
			Classes: []Class{ClassDefault, ClassCheap, ClassFast},
			LatencyRank: 1, CostRank: 0, MaxContextTokens: 128_000,
			Capabilities: Capabilities{Streaming: true, Tools: true},
		},
	} {
		c.Register(p)
	}
}
