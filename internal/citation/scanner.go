package citation

import (
	"regexp"
	"strconv"
)

var markerRegex = regexp.MustCompile(`\[doc(\d{1,3})\]`)

// Marker is one inline `[docN]` occurrence in an answer.
type Marker struct {
	Raw   string
	Start int
	End   int
	// Index is the 0-based offset into the citation list (N-1).
	Index int
	// Valid is false when Index falls outside the citation list.
	Valid bool
}

// Scan returns every marker of answer in left-to-right order, duplicates
// included. n is the length of the citation list the markers index into.
func Scan(answer string, n int) []Marker {
	locs := markerRegex.FindAllStringSubmatchIndex(answer, -1)
	if len(locs) == 0 {
		return nil
	}
	markers := make([]Marker, 0, len(locs))
	for _, loc := range locs {
		num, err := strconv.Atoi(answer[loc[2]:loc[3]])
		if err != nil {
			continue
		}
		index := num - 1
		markers = append(markers, Marker{
			Raw:   answer[loc[0]:loc[1]],
			Start: loc[0],
			End:   loc[1],
			Index: index,
			Valid: index >= 0 && index < n,
		})
	}
	return markers
}
