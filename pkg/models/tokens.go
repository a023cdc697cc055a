package models

// EstimateTokens approximates the token count of s as ceil(len(s)/4).
// Cheap and deterministic; used consistently by the skill injector, the
// context packer, and budget accounting so estimates agree across components.
func EstimateTokens(s string) int {
	if s == "" {
		return 0
	}
	return (len(s) + 3) / 4
}

// EstimateItemTokens sums the token estimates of the given strings.
func EstimateItemTokens(parts ...string) int {
	total := 0
	for _, p := range parts {
		total += EstimateTokens(p)
	}
	return total
}
