package anthropic

// BuildCachedSystemBlocks constructs a system block with a cache breakpoint.
// Enrichment sends the same instructions for every record, so they are
// cached for five minutes.
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
