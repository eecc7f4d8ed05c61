package citation

import (
	"strconv"
	"strings"

	"github.com/xxxsen/datachat/internal/model"
)

// NormalizeForCard rewrites the markers of answerText for the chat card.
// Only back-to-back repeats of the same citation are dropped from the text;
// other repeats keep a `[K]` marker pointing at the number their chunk got
// first. One action is produced per distinct chunk, in first-seen order.
func NormalizeForCard(citations []model.Citation, answerText string) model.CardResult {
	markers := Scan(answerText, len(citations))
	actions := make([]model.RenderedAction, 0, len(markers))
	docIDByChunk := make(map[string]int, len(markers))

	var sb strings.Builder
	sb.Grow(len(answerText))
	cursor := 0
	prevKey := ""
	docID := 1
	for _, m := range markers {
		sb.WriteString(answerText[cursor:m.Start])
		cursor = m.End
		if !m.Valid {
			sb.WriteString(m.Raw)
			prevKey = ""
			continue
		}
		c := citations[m.Index]
		chunkKey := dedupKey(c, m.Index)
		key := chunkKey + "_" + c.ID
		if key == prevKey {
			continue
		}
		prevKey = key
		assigned, ok := docIDByChunk[chunkKey]
		if !ok {
			assigned = docID
			docIDByChunk[chunkKey] = assigned
			actions = append(actions, renderAction(c, assigned))
			docID++
		}
		sb.WriteString("[" + strconv.Itoa(assigned) + "]")
	}
	sb.WriteString(answerText[cursor:])

	return model.CardResult{
		Actions:       actions,
		RewrittenText: sb.String(),
	}
}

func renderAction(c model.Citation, docID int) model.RenderedAction {
	action := model.RenderedAction{
		Index:   docID,
		Title:   Label(c, docID, CardLabelOptions),
		Content: c.Content,
	}
	if c.ChunkID != nil {
		id := *c.ChunkID
		action.ChunkID = &id
	}
	if c.URL != nil {
		action.URL = *c.URL
	}
	return action
}

// DefaultBatchSize is the number of action buttons a card row can hold.
const DefaultBatchSize = 5

// BatchActions splits actions into consecutive groups of at most size.
func BatchActions(actions []model.RenderedAction, size int) [][]model.RenderedAction {
	if size <= 0 {
		size = DefaultBatchSize
	}
	batches := make([][]model.RenderedAction, 0, (len(actions)+size-1)/size)
	for start := 0; start < len(actions); start += size {
		end := start + size
		if end > len(actions) {
			end = len(actions)
		}
		batches = append(batches, actions[start:end])
	}
	return batches
}
