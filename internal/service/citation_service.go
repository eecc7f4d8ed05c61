package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/datachat/internal/cache"
	"github.com/xxxsen/datachat/internal/citation"
	"github.com/xxxsen/datachat/internal/model"
	appErr "github.com/xxxsen/datachat/internal/pkg/errors"
	"github.com/xxxsen/datachat/internal/stream"
)

// TurnStore persists normalized answers. A nil store disables history.
type TurnStore interface {
	Create(ctx context.Context, turn *model.Turn) error
	Get(ctx context.Context, id string) (*model.Turn, error)
	ListByConversation(ctx context.Context, conversationID string) ([]model.Turn, error)
}

type CitationServiceOptions struct {
	BlobHostSuffixes []string
	FilePathPrefix   string
	TruncateLabels   bool
	// PartNumberByFile numbers parts per file in reference order instead of
	// deriving them from the chunk id.
	PartNumberByFile bool
	CardBatchSize    int
	MaxAnswerChars   int
	CacheSize        int
	CacheTTL         time.Duration
	// Shared, when set, backs the in-process cache so replicas reuse each
	// other's results.
	Shared cache.Shared
}

type CitationService struct {
	rewriter     *citation.LinkRewriter
	displayLabel citation.LabelOptions
	batchSize    int
	maxChars     int
	turns        TurnStore
	cache        *expirable.LRU[string, citation.Result]
	shared       cache.Shared
	cacheTTL     time.Duration
	now          func() time.Time
}

// CardView is the card variant output together with its button rows.
type CardView struct {
	model.CardResult
	Batches [][]model.RenderedAction `json:"batches"`
}

// StreamResult is a normalized conversation stream.
type StreamResult struct {
	TurnID         string                   `json:"turn_id,omitempty"`
	ConversationID string                   `json:"conversation_id"`
	Variant        string                   `json:"variant"`
	Text           string                   `json:"text"`
	Citations      []model.Citation         `json:"citations,omitempty"`
	Actions        []model.RenderedAction   `json:"actions,omitempty"`
	Batches        [][]model.RenderedAction `json:"batches,omitempty"`
	Intent         json.RawMessage          `json:"intent,omitempty"`
	Error          string                   `json:"error,omitempty"`
}

func NewCitationService(opts CitationServiceOptions, turns TurnStore) *CitationService {
	label := citation.DisplayLabelOptions
	label.Truncate = opts.TruncateLabels
	label.UsePartIndex = opts.PartNumberByFile
	size := opts.CacheSize
	if size <= 0 {
		size = 1024
	}
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &CitationService{
		rewriter:     citation.NewLinkRewriter(opts.BlobHostSuffixes, opts.FilePathPrefix),
		displayLabel: label,
		batchSize:    opts.CardBatchSize,
		maxChars:     opts.MaxAnswerChars,
		turns:        turns,
		cache:        expirable.NewLRU[string, citation.Result](size, nil, ttl),
		shared:       opts.Shared,
		cacheTTL:     ttl,
		now:          time.Now,
	}
}

func (s *CitationService) NormalizeDisplay(ctx context.Context, answer model.Answer) (model.NormalizedAnswer, error) {
	res, err := s.normalize(ctx, citation.DisplayStrategy, answer.Answer, answer.Citations)
	if err != nil {
		return model.NormalizedAnswer{}, err
	}
	if res.Citations == nil {
		res.Citations = []model.Citation{}
	}
	return model.NormalizedAnswer{MarkdownFormatText: res.Text, Citations: res.Citations}, nil
}

func (s *CitationService) NormalizeCard(ctx context.Context, citations []model.Citation, text string) (CardView, error) {
	res, err := s.normalize(ctx, citation.CardStrategy, text, citations)
	if err != nil {
		return CardView{}, err
	}
	if res.Actions == nil {
		res.Actions = []model.RenderedAction{}
	}
	return CardView{
		CardResult: model.CardResult{Actions: res.Actions, RewrittenText: res.Text},
		Batches:    citation.BatchActions(res.Actions, s.batchSize),
	}, nil
}

// NormalizeStream decodes a conversation stream, normalizes the answer with
// the requested variant and records the turn when history is enabled.
func (s *CitationService) NormalizeStream(ctx context.Context, r io.Reader, variant, conversationID string) (*StreamResult, error) {
	strategy, err := citation.StrategyFor(variant)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", appErr.ErrInvalid, err)
	}
	ext, err := stream.Decode(ctx, r)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", appErr.ErrInvalidStream, err)
	}
	if conversationID == "" {
		conversationID = ext.ConversationID
	}
	out := &StreamResult{
		ConversationID: conversationID,
		Variant:        strategy.Name(),
		Intent:         ext.Intent,
		Error:          ext.Error,
	}
	if strings.TrimSpace(ext.Answer) == "" {
		if ext.Error != "" {
			return out, nil
		}
		return nil, fmt.Errorf("%w: stream carries no answer", appErr.ErrInvalid)
	}
	answer := ext.ToAnswer()
	res, err := s.normalize(ctx, strategy, answer.Answer, answer.Citations)
	if err != nil {
		return nil, err
	}
	out.Text = res.Text
	out.Citations = res.Citations
	out.Actions = res.Actions
	if strategy.Name() == citation.VariantCard {
		out.Batches = citation.BatchActions(res.Actions, s.batchSize)
	}
	out.TurnID = s.saveTurn(ctx, ext, out)
	return out, nil
}

func (s *CitationService) ListTurns(ctx context.Context, conversationID string) ([]model.Turn, error) {
	if s.turns == nil {
		return nil, appErr.ErrHistoryDisabled
	}
	if strings.TrimSpace(conversationID) == "" {
		return nil, appErr.ErrInvalid
	}
	return s.turns.ListByConversation(ctx, conversationID)
}

func (s *CitationService) GetTurn(ctx context.Context, id string) (*model.Turn, error) {
	if s.turns == nil {
		return nil, appErr.ErrHistoryDisabled
	}
	if strings.TrimSpace(id) == "" {
		return nil, appErr.ErrInvalid
	}
	return s.turns.Get(ctx, id)
}

func (s *CitationService) normalize(ctx context.Context, strategy citation.Strategy, text string, citations []model.Citation) (citation.Result, error) {
	if strings.TrimSpace(text) == "" {
		return citation.Result{}, appErr.ErrInvalid
	}
	if s.maxChars > 0 && len(text) > s.maxChars {
		return citation.Result{}, appErr.ErrInvalid
	}
	key, err := s.cacheKey(strategy.Name(), text, citations)
	if err == nil {
		if cached, ok := s.lookup(ctx, key); ok {
			return cached, nil
		}
	}
	res := s.decorate(strategy.Normalize(text, citations))
	logutil.GetLogger(ctx).Debug("answer normalized",
		zap.String("variant", strategy.Name()),
		zap.Int("input_citations", len(citations)),
		zap.Int("citations", len(res.Citations)),
		zap.Int("actions", len(res.Actions)),
	)
	if err == nil {
		s.store(ctx, key, res)
	}
	return res, nil
}

func (s *CitationService) lookup(ctx context.Context, key string) (citation.Result, bool) {
	if cached, ok := s.cache.Get(key); ok {
		return cloneResult(cached), true
	}
	if s.shared == nil {
		return citation.Result{}, false
	}
	data, ok, err := s.shared.Get(ctx, key)
	if err != nil {
		logutil.GetLogger(ctx).Warn("read shared cache failed", zap.Error(err))
		return citation.Result{}, false
	}
	if !ok {
		return citation.Result{}, false
	}
	var res citation.Result
	if err := json.Unmarshal(data, &res); err != nil {
		logutil.GetLogger(ctx).Warn("decode shared cache entry failed", zap.Error(err))
		return citation.Result{}, false
	}
	s.cache.Add(key, cloneResult(res))
	return res, true
}

func (s *CitationService) store(ctx context.Context, key string, res citation.Result) {
	s.cache.Add(key, cloneResult(res))
	if s.shared == nil {
		return
	}
	data, err := json.Marshal(res)
	if err != nil {
		return
	}
	if err := s.shared.Set(ctx, key, data, s.cacheTTL); err != nil {
		logutil.GetLogger(ctx).Warn("write shared cache failed", zap.Error(err))
	}
}

// decorate rewrites blob storage links to the file endpoint and fills
// display labels.
func (s *CitationService) decorate(res citation.Result) citation.Result {
	for i := range res.Citations {
		c := &res.Citations[i]
		c.Content = s.rewriter.Rewrite(c.Content)
		if c.URL != nil {
			if target, ok := s.rewriter.RewriteURL(*c.URL); ok {
				c.URL = &target
			}
		}
		c.Label = citation.Label(*c, i+1, s.displayLabel)
	}
	for i := range res.Actions {
		a := &res.Actions[i]
		a.Content = s.rewriter.Rewrite(a.Content)
		if target, ok := s.rewriter.RewriteURL(a.URL); ok {
			a.URL = target
		}
	}
	return res
}

func (s *CitationService) saveTurn(ctx context.Context, ext *stream.Extraction, out *StreamResult) string {
	if s.turns == nil || out.ConversationID == "" {
		return ""
	}
	logger := logutil.GetLogger(ctx).With(zap.String("conversation_id", out.ConversationID))
	var refs interface{} = out.Citations
	if out.Variant == citation.VariantCard {
		refs = out.Actions
	}
	data, err := json.Marshal(refs)
	if err != nil {
		logger.Error("encode turn references failed", zap.Error(err))
		return ""
	}
	turn := &model.Turn{
		ID:             uuid.NewString(),
		ConversationID: out.ConversationID,
		Variant:        out.Variant,
		Answer:         ext.Answer,
		NormalizedText: out.Text,
		Citations:      string(data),
		Intent:         string(ext.Intent),
		Ctime:          s.now().Unix(),
	}
	if err := s.turns.Create(ctx, turn); err != nil {
		logger.Error("save turn failed", zap.Error(err))
		return ""
	}
	logger.Info("turn saved", zap.String("turn_id", turn.ID), zap.String("variant", turn.Variant))
	return turn.ID
}

func (s *CitationService) cacheKey(variant, text string, citations []model.Citation) (string, error) {
	data, err := json.Marshal(citations)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	h.Write([]byte(text))
	h.Write([]byte{0})
	h.Write(data)
	return variant + ":" + hex.EncodeToString(h.Sum(nil)), nil
}

func cloneResult(res citation.Result) citation.Result {
	out := citation.Result{Text: res.Text}
	if res.Citations != nil {
		out.Citations = make([]model.Citation, len(res.Citations))
		for i, c := range res.Citations {
			out.Citations[i] = c.Clone()
		}
	}
	if res.Actions != nil {
		out.Actions = make([]model.RenderedAction, len(res.Actions))
		for i, a := range res.Actions {
			out.Actions[i] = a
			if a.ChunkID != nil {
				id := *a.ChunkID
				out.Actions[i].ChunkID = &id
			}
		}
	}
	return out
}
