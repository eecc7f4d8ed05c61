package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ChunkID identifies a fragment within its source document. The backend
// emits it either as a JSON number or as a string.
type ChunkID string

func (c *ChunkID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty chunk_id")
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = ChunkID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("decode chunk_id: %w", err)
	}
	*c = ChunkID(n.String())
	return nil
}

func (c ChunkID) MarshalJSON() ([]byte, error) {
	if n, ok := c.Int(); ok && strconv.Itoa(n) == string(c) {
		return []byte(string(c)), nil
	}
	return json.Marshal(string(c))
}

// Int reports the chunk id as an integer when it is an integer literal.
func (c ChunkID) Int() (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(string(c)))
	if err != nil {
		return 0, false
	}
	return n, true
}

func (c ChunkID) String() string {
	return string(c)
}

// Citation is one retrieved source fragment referenced by the model.
// Optional fields are pointers so that "absent" and "empty" stay distinct.
type Citation struct {
	Content   string          `json:"content"`
	ID        string          `json:"id"`
	Title     *string         `json:"title"`
	FilePath  *string         `json:"filepath"`
	URL       *string         `json:"url"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	ChunkID   *ChunkID        `json:"chunk_id"`
	ReindexID string          `json:"reindex_id,omitempty"`
	PartIndex int             `json:"part_index,omitempty"`
	Label     string          `json:"label,omitempty"`
}

// Clone returns a deep copy; normalizers never mutate their input.
func (c Citation) Clone() Citation {
	out := c
	out.Title = cloneString(c.Title)
	out.FilePath = cloneString(c.FilePath)
	out.URL = cloneString(c.URL)
	if c.ChunkID != nil {
		id := *c.ChunkID
		out.ChunkID = &id
	}
	if c.Metadata != nil {
		out.Metadata = append(json.RawMessage(nil), c.Metadata...)
	}
	return out
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// Answer is the raw model output handed to the normalizer.
type Answer struct {
	Answer    string     `json:"answer"`
	Citations []Citation `json:"citations"`
}

// NormalizedAnswer is the output of the display variant.
type NormalizedAnswer struct {
	MarkdownFormatText string     `json:"markdownFormatText"`
	Citations          []Citation `json:"citations"`
}

// RenderedAction is one reference entry of the card variant, one per
// distinct chunk.
type RenderedAction struct {
	Index   int      `json:"index"`
	ChunkID *ChunkID `json:"chunk_id"`
	Title   string   `json:"title"`
	URL     string   `json:"url,omitempty"`
	Content string   `json:"content"`
}

// CardResult is the output of the card variant.
type CardResult struct {
	Actions       []RenderedAction `json:"actions"`
	RewrittenText string           `json:"rewrittenText"`
}
