package stream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/datachat/internal/model"
)

// MaxObjectSize bounds a single JSON object of the stream, including one
// spread over several lines.
const MaxObjectSize = 1 << 20

// Extraction is what a conversation stream boils down to: the answer text
// with its inline markers and the citation list those markers index into.
type Extraction struct {
	ConversationID string
	Answer         string
	Citations      []model.Citation
	Intent         json.RawMessage
	Error          string
	Chunks         int
}

// ToAnswer pairs the answer text with the citations its markers index into.
func (e *Extraction) ToAnswer() model.Answer {
	return model.Answer{Answer: e.Answer, Citations: e.Citations}
}

// Decode reads a newline-delimited JSON conversation stream. Assistant
// contents are concatenated in arrival order; the last tool message provides
// the citations. A tool payload that is not valid JSON yields an empty
// citation list rather than an error.
func Decode(ctx context.Context, r io.Reader) (*Extraction, error) {
	logger := logutil.GetLogger(ctx)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxObjectSize)

	ext := &Extraction{Citations: []model.Citation{}}
	var answer strings.Builder
	var pending []byte
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("decode stream: %w", err)
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var obj []byte
		if len(pending) > 0 {
			joined := append(append(pending, '\n'), line...)
			switch {
			case json.Valid(joined):
				obj, pending = joined, nil
			case incomplete(joined):
				pending = joined
				if len(pending) > MaxObjectSize {
					logger.Warn("drop oversized stream object", zap.Int("size", len(pending)))
					pending = nil
				}
				continue
			default:
				logger.Warn("drop incomplete stream object", zap.Int("size", len(pending)))
				pending = nil
			}
		}
		if obj == nil {
			switch {
			case json.Valid(line):
				obj = line
			case incomplete(line):
				pending = append([]byte(nil), line...)
				continue
			default:
				logger.Warn("skip malformed stream line", zap.Int("size", len(line)))
				continue
			}
		}

		var chunk model.ConversationChunk
		if err := json.Unmarshal(obj, &chunk); err != nil {
			logger.Warn("skip malformed stream chunk", zap.Error(err))
			continue
		}
		ext.Chunks++
		applyChunk(ctx, ext, &answer, &chunk)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read stream: %w", err)
	}
	if len(pending) > 0 {
		logger.Warn("stream ended inside an object", zap.Int("size", len(pending)))
	}
	ext.Answer = answer.String()
	return ext, nil
}

// incomplete reports whether data is the well formed beginning of a JSON
// value that has not been closed yet.
func incomplete(data []byte) bool {
	var v json.RawMessage
	err := json.NewDecoder(bytes.NewReader(data)).Decode(&v)
	return errors.Is(err, io.ErrUnexpectedEOF)
}

func applyChunk(ctx context.Context, ext *Extraction, answer *strings.Builder, chunk *model.ConversationChunk) {
	if ext.ConversationID == "" {
		ext.ConversationID = chunk.ID
	}
	if chunk.Error != "" {
		ext.Error = chunk.Error
	}
	if len(chunk.Choices) == 0 {
		return
	}
	for _, msg := range chunk.Choices[0].Messages {
		switch msg.Role {
		case model.RoleTool:
			citations, intent := parseToolContent(ctx, msg.Content)
			ext.Citations = citations
			ext.Intent = intent
		case model.RoleAssistant:
			answer.WriteString(msg.Content)
		case model.RoleError:
			ext.Error = msg.Content
		}
	}
}

func parseToolContent(ctx context.Context, content string) ([]model.Citation, json.RawMessage) {
	var tool model.ToolContent
	if err := json.Unmarshal([]byte(content), &tool); err != nil {
		logutil.GetLogger(ctx).Warn("invalid tool message, ignore citations", zap.Error(err))
		return []model.Citation{}, nil
	}
	if tool.Citations == nil {
		tool.Citations = []model.Citation{}
	}
	return tool.Citations, tool.Intent
}
