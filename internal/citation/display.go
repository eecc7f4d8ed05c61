package citation

import (
	"strconv"
	"strings"

	"github.com/xxxsen/datachat/internal/model"
)

// NormalizeForDisplay rewrites the markers of answer for the web chat view.
// Every repeat of a chunk, adjacent or not, collapses onto the display index
// it got on first appearance. Markers are replaced with ` ^K^ ` and the kept
// citations are returned in first-seen order.
func NormalizeForDisplay(answer model.Answer) model.NormalizedAnswer {
	markers := Scan(answer.Answer, len(answer.Citations))
	kept := make([]model.Citation, 0, len(markers))
	indexByKey := make(map[string]int, len(markers))

	var sb strings.Builder
	sb.Grow(len(answer.Answer))
	cursor := 0
	for _, m := range markers {
		sb.WriteString(answer.Answer[cursor:m.Start])
		cursor = m.End
		if !m.Valid {
			sb.WriteString(m.Raw)
			continue
		}
		src := answer.Citations[m.Index]
		key := dedupKey(src, m.Index)
		display, ok := indexByKey[key]
		if !ok {
			display = len(kept) + 1
			c := src.Clone()
			c.ID = strconv.Itoa(m.Index + 1)
			c.ReindexID = strconv.Itoa(display)
			kept = append(kept, c)
			indexByKey[key] = display
		}
		sb.WriteString(superscript(display))
	}
	sb.WriteString(answer.Answer[cursor:])

	return model.NormalizedAnswer{
		MarkdownFormatText: sb.String(),
		Citations:          EnumerateParts(kept),
	}
}

func superscript(n int) string {
	return " ^" + strconv.Itoa(n) + "^ "
}

// dedupKey is the identity of a citation for de-duplication. Citations
// without a chunk id fall back to their list position.
func dedupKey(c model.Citation, index int) string {
	if c.ChunkID != nil {
		return "chunk:" + c.ChunkID.String()
	}
	return "pos:" + strconv.Itoa(index)
}

// EnumerateParts numbers citations sharing a filepath 1, 2, 3... in list
// order and stores the number in PartIndex.
func EnumerateParts(citations []model.Citation) []model.Citation {
	seen := make(map[string]int, len(citations))
	for i := range citations {
		path := ""
		if citations[i].FilePath != nil {
			path = *citations[i].FilePath
		}
		seen[path]++
		citations[i].PartIndex = seen[path]
	}
	return citations
}
