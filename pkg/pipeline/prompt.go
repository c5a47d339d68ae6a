package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"audio-advisor/pkg/models"
)

const topGenreCount = 3

// The instruction line ends in a space before the newline; existing clients
// compare prompts byte for byte.
const promptTemplate = "You are a professional music producer.\n" +
	"\n" +
	"This track blends elements of: %s.\n" +
	"\n" +
	"User's question: \"%s\"\n" +
	"\n" +
	"Give 3 specific, technical, and actionable suggestions to improve this track. \n" +
	"Avoid restating the question. Be concise and direct."

// BuildPrompt renders the completion prompt from the three highest scoring
// genres and the user's question. It never mutates classification.
func BuildPrompt(classification []models.Classification, userText string) string {
	return fmt.Sprintf(promptTemplate, GenreSummary(classification), userText)
}

// GenreSummary formats the top genres as "label (xx.x%)" joined by ", ".
func GenreSummary(classification []models.Classification) string {
	ranked := make([]models.Classification, len(classification))
	copy(ranked, classification)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Label < ranked[j].Label
	})
	if len(ranked) > topGenreCount {
		ranked = ranked[:topGenreCount]
	}

	parts := make([]string, 0, len(ranked))
	for _, c := range ranked {
		parts = append(parts, fmt.Sprintf("%s (%.1f%%)", c.Label, c.Score*100))
	}
	return strings.Join(parts, ", ")
}
