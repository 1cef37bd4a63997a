package anthropic

// BuildCachedSystemBlocks constructs system content blocks with a cache
// breakpoint at the given TTL (default 5m).
func BuildCachedSystemBlocks(text, ttl string) []SystemBlock {
	if ttl == "" {
		ttl = "5m"
	}
	return []SystemBlock{
		{
			Text: text,
			CacheControl: &CacheControl{
				TTL: ttl,
			},
		},
	}
}
