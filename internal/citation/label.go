package citation

import (
	"strconv"
	"strings"

	"github.com/xxxsen/datachat/internal/model"
)

const (
	filePathTruncationLimit = 50
	filePathKeep            = 20
)

// LabelOptions controls how Label renders a citation.
type LabelOptions struct {
	// Truncate shortens file paths longer than 50 characters.
	Truncate bool
	// PartOffset is added to the chunk id to form the part number.
	PartOffset int
	// UsePartIndex prefers the per-file part number set by EnumerateParts.
	UsePartIndex bool
}

var (
	// DisplayLabelOptions is what the web reference list uses: parts are
	// numbered from chunk_id+1.
	DisplayLabelOptions = LabelOptions{Truncate: true, PartOffset: 1}
	// CardLabelOptions is what the chat card uses: chunk_id is the part.
	CardLabelOptions = LabelOptions{PartOffset: 0}
)

// Label derives the human readable name of a citation. ordinal is the
// 1-based position of the citation in the already de-duplicated list.
func Label(c model.Citation, ordinal int, opts LabelOptions) string {
	hasPath := c.FilePath != nil && *c.FilePath != ""
	hasChunk := c.ChunkID != nil
	if hasPath && hasChunk {
		return formatPath(*c.FilePath, opts.Truncate) + " - Part " + partNumber(c, opts)
	}
	// a path alone or a chunk alone is not enough to name a part
	return "Citation " + strconv.Itoa(ordinal)
}

func partNumber(c model.Citation, opts LabelOptions) string {
	if opts.UsePartIndex && c.PartIndex > 0 {
		return strconv.Itoa(c.PartIndex)
	}
	if n, ok := leadingInt(c.ChunkID.String()); ok {
		return strconv.Itoa(n + opts.PartOffset)
	}
	return c.ChunkID.String()
}

// leadingInt parses the optionally signed decimal prefix of s, so "3_a"
// and "2.0" read as 3 and 2.
func leadingInt(s string) (int, bool) {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0, false
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}

func formatPath(path string, truncate bool) string {
	runes := []rune(path)
	if !truncate || len(runes) <= filePathTruncationLimit {
		return path
	}
	return string(runes[:filePathKeep]) + "..." + string(runes[len(runes)-filePathKeep:])
}
