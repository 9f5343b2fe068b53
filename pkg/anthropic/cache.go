package anthropic

// BuildCachedSystemBlocks constructs system content blocks with an
// ephemeral cache breakpoint. Every photo in a run shares the same stage
// prompt, so later calls read it from the prompt cache.
func BuildCachedSystemBlocks(text string) []SystemBlock {
	return []SystemBlock{
		{
			Text: text,
			CacheControl: &CacheControl{
				TTL: "5m",
			},
		},
	}
}
