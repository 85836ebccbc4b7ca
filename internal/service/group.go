package service

import (
	"sort"
	"strconv"

	"github.com/para-comments-api/internal/models"
)

// GroupByParagraph turns a flat comment list into paragraph-keyed groups
// ordered by popularity. The sort is stable on descending likes only, so
// ties keep the document's insertion order.
func GroupByParagraph(comments []models.Comment) map[string][]models.Comment {
	sorted := make([]models.Comment, len(comments))
	copy(sorted, comments)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Likes > sorted[j].Likes
	})

	grouped := make(map[string][]models.Comment)
	for _, c := range sorted {
		key := strconv.Itoa(c.ParaIndex)
		grouped[key] = append(grouped[key], c)
	}
	return grouped
}
