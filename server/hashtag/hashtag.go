package hashtag

import (
	"strings"

	"github.com/mattermost/mattermost-plugin-sosconsole/server/alert"
)

// Generate creates formatted hashtag text for an alert post, so channel
// members can search past alerts with Mattermost's hashtag search.
//
// Order of hashtags:
// 1. Kind (#SOS)
// 2. Status (#Open, #Dispatched, #Resolved)
// 3. Markers (#Test, #NoLocation)
//
// Returns formatted string (e.g., "🏷️ #SOS, #Open, #Test")
func Generate(a alert.Alert) string {
	allTags := []string{"#SOS", statusTag(a.Status)}

	if a.IsTest {
		allTags = append(allTags, "#Test")
	}
	if a.Coordinates == nil {
		allTags = append(allTags, "#NoLocation")
	}

	return formatHashtagText(deduplicateTags(allTags))
}

// statusTag maps a status to its hashtag, "#Open" when unset.
func statusTag(status alert.Status) string {
	clean := strings.TrimSpace(string(status))
	if clean == "" {
		return "#Open"
	}
	return "#" + camelCase(strings.ReplaceAll(strings.ToLower(clean), "_", " "))
}

// deduplicateTags removes duplicate tags (case-insensitive) while preserving order.
func deduplicateTags(tags []string) []string {
	seen := make(map[string]bool)
	var uniqueTags []string

	for _, tag := range tags {
		tagLower := strings.ToLower(tag)
		if !seen[tagLower] {
			uniqueTags = append(uniqueTags, tag)
			seen[tagLower] = true
		}
	}

	return uniqueTags
}

// formatHashtagText formats hashtags as comma-separated text with emoji prefix.
func formatHashtagText(tags []string) string {
	if len(tags) == 0 {
		return ""
	}

	return "🏷️ " + strings.Join(tags, ", ")
}

// camelCase capitalizes the first letter of each word and removes spaces.
func camelCase(text string) string {
	var result strings.Builder

	for _, word := range strings.Fields(text) {
		result.WriteString(strings.ToUpper(word[:1]))
		result.WriteString(word[1:])
	}

	return result.String()
}
