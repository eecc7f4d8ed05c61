package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/datachat/internal/cache"
	"github.com/xxxsen/datachat/internal/model"
	appErr "github.com/xxxsen/datachat/internal/pkg/errors"
	"github.com/xxxsen/datachat/internal/stream"
)

type memTurnStore struct {
	turns   []model.Turn
	failErr error
}

func (m *memTurnStore) Create(ctx context.Context, turn *model.Turn) error {
	if m.failErr != nil {
		return m.failErr
	}
	m.turns = append(m.turns, *turn)
	return nil
}

func (m *memTurnStore) Get(ctx context.Context, id string) (*model.Turn, error) {
	for i := range m.turns {
		if m.turns[i].ID == id {
			t := m.turns[i]
			return &t, nil
		}
	}
	return nil, appErr.ErrNotFound
}

func (m *memTurnStore) ListByConversation(ctx context.Context, conversationID string) ([]model.Turn, error) {
	out := make([]model.Turn, 0)
	for _, t := range m.turns {
		if t.ConversationID == conversationID {
			out = append(out, t)
		}
	}
	return out, nil
}

func chunkID(v string) *model.ChunkID {
	id := model.ChunkID(v)
	return &id
}

func strPtr(v string) *string {
	return &v
}

func newTestService(turns TurnStore) *CitationService {
	svc := NewCitationService(CitationServiceOptions{
		TruncateLabels: true,
		CardBatchSize:  2,
		MaxAnswerChars: 1000,
		CacheSize:      16,
		CacheTTL:       time.Minute,
	}, turns)
	svc.now = func() time.Time { return time.Unix(1700000000, 0) }
	return svc
}

func sampleCitations() []model.Citation {
	return []model.Citation{
		{
			Content:  "[guide](https://acct.blob.core.windows.net/docs/folder/guide.md) intro",
			ID:       "a",
			Title:    strPtr("guide"),
			FilePath: strPtr("folder/guide.md"),
			URL:      strPtr("https://acct.blob.core.windows.net/docs/folder/guide.md"),
			ChunkID:  chunkID("0"),
		},
		{
			Content:  "plain body",
			ID:       "b",
			FilePath: strPtr("folder/faq.md"),
			ChunkID:  chunkID("3"),
		},
	}
}

func TestNormalizeDisplay(t *testing.T) {
	svc := newTestService(nil)
	out, err := svc.NormalizeDisplay(context.Background(), model.Answer{
		Answer:    "A [doc1] B [doc2] C [doc1]",
		Citations: sampleCitations(),
	})
	require.NoError(t, err)
	require.Equal(t, "A  ^1^  B  ^2^  C  ^1^ ", out.MarkdownFormatText)
	require.Len(t, out.Citations, 2)

	first := out.Citations[0]
	require.Equal(t, "[guide](/api/v1/files/folder/guide.md) intro", first.Content)
	require.Equal(t, "/api/v1/files/folder/guide.md", *first.URL)
	require.Equal(t, "folder/guide.md - Part 1", first.Label)
	require.Equal(t, "1", first.ReindexID)

	second := out.Citations[1]
	require.Equal(t, "plain body", second.Content)
	require.Equal(t, "folder/faq.md - Part 4", second.Label)
}

func TestNormalizeDisplay_CacheReturnsCopies(t *testing.T) {
	svc := newTestService(nil)
	answer := model.Answer{Answer: "x [doc1]", Citations: sampleCitations()}

	first, err := svc.NormalizeDisplay(context.Background(), answer)
	require.NoError(t, err)
	first.Citations[0].Label = "mutated"
	*first.Citations[0].URL = "mutated"

	second, err := svc.NormalizeDisplay(context.Background(), answer)
	require.NoError(t, err)
	require.Equal(t, "folder/guide.md - Part 1", second.Citations[0].Label)
	require.Equal(t, "/api/v1/files/folder/guide.md", *second.Citations[0].URL)
	require.Equal(t, 1, svc.cache.Len())
}

func TestNormalizeDisplay_SharedCache(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	shared := cache.NewRedisCache(client, "t:")

	opts := CitationServiceOptions{CacheTTL: time.Minute, Shared: shared}
	first := NewCitationService(opts, nil)
	second := NewCitationService(opts, nil)
	answer := model.Answer{Answer: "x [doc2]", Citations: sampleCitations()}

	want, err := first.NormalizeDisplay(context.Background(), answer)
	require.NoError(t, err)
	require.Len(t, mr.Keys(), 1)

	got, err := second.NormalizeDisplay(context.Background(), answer)
	require.NoError(t, err)
	require.Equal(t, want, got)
	require.Equal(t, 1, second.cache.Len())
}

func TestNormalizeDisplay_SharedCacheDown(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	svc := NewCitationService(CitationServiceOptions{Shared: cache.NewRedisCache(client, "t:")}, nil)
	out, err := svc.NormalizeDisplay(context.Background(), model.Answer{Answer: "x [doc1]", Citations: sampleCitations()})
	require.NoError(t, err)
	require.Equal(t, "x  ^1^ ", out.MarkdownFormatText)
}

func TestNormalizeDisplay_PartNumberByFile(t *testing.T) {
	svc := NewCitationService(CitationServiceOptions{PartNumberByFile: true}, nil)
	citations := []model.Citation{
		{Content: "a", FilePath: strPtr("doc.md"), ChunkID: chunkID("7")},
		{Content: "b", FilePath: strPtr("doc.md"), ChunkID: chunkID("9")},
	}
	out, err := svc.NormalizeDisplay(context.Background(), model.Answer{Answer: "[doc1][doc2]", Citations: citations})
	require.NoError(t, err)
	require.Equal(t, "doc.md - Part 1", out.Citations[0].Label)
	require.Equal(t, "doc.md - Part 2", out.Citations[1].Label)
}

func TestNormalizeDisplay_Invalid(t *testing.T) {
	svc := newTestService(nil)
	_, err := svc.NormalizeDisplay(context.Background(), model.Answer{Answer: "   "})
	require.ErrorIs(t, err, appErr.ErrInvalid)

	_, err = svc.NormalizeDisplay(context.Background(), model.Answer{Answer: strings.Repeat("x", 1001)})
	require.ErrorIs(t, err, appErr.ErrInvalid)
}

func TestNormalizeCard(t *testing.T) {
	svc := newTestService(nil)
	citations := sampleCitations()
	citations = append(citations, model.Citation{Content: "third", ID: "c", ChunkID: chunkID("5")})

	view, err := svc.NormalizeCard(context.Background(), citations, "A [doc1][doc1] B [doc2] C [doc3] D [doc1]")
	require.NoError(t, err)
	require.Equal(t, "A [1] B [2] C [3] D [1]", view.RewrittenText)
	require.Len(t, view.Actions, 3)
	require.Equal(t, "folder/guide.md - Part 0", view.Actions[0].Title)
	require.Equal(t, "/api/v1/files/folder/guide.md", view.Actions[0].URL)
	require.Equal(t, "Citation 3", view.Actions[2].Title)
	require.Len(t, view.Batches, 2)
	require.Len(t, view.Batches[0], 2)
	require.Len(t, view.Batches[1], 1)
}

func streamBody(t *testing.T, id string, citations []model.Citation, parts ...string) string {
	t.Helper()
	tool, err := json.Marshal(model.ToolContent{Citations: citations})
	require.NoError(t, err)
	lines := make([]string, 0, len(parts)+1)
	toolChunk, err := json.Marshal(model.ConversationChunk{
		ID:      id,
		Choices: []model.Choice{{Messages: []model.ChatMessage{{Role: model.RoleTool, Content: string(tool)}}}},
	})
	require.NoError(t, err)
	lines = append(lines, string(toolChunk))
	for _, p := range parts {
		chunk, err := json.Marshal(model.ConversationChunk{
			ID:      id,
			Choices: []model.Choice{{Messages: []model.ChatMessage{{Role: model.RoleAssistant, Content: p}}}},
		})
		require.NoError(t, err)
		lines = append(lines, string(chunk))
	}
	return strings.Join(lines, "\n") + "\n"
}

func TestNormalizeStream_DisplaySavesTurn(t *testing.T) {
	store := &memTurnStore{}
	svc := newTestService(store)
	body := streamBody(t, "conv-1", sampleCitations(), "Hello [doc1]", " again [doc1].")

	res, err := svc.NormalizeStream(context.Background(), strings.NewReader(body), "", "")
	require.NoError(t, err)
	require.Equal(t, "display", res.Variant)
	require.Equal(t, "conv-1", res.ConversationID)
	require.Equal(t, "Hello  ^1^  again  ^1^ .", res.Text)
	require.Len(t, res.Citations, 1)
	require.NotEmpty(t, res.TurnID)

	require.Len(t, store.turns, 1)
	turn := store.turns[0]
	require.Equal(t, res.TurnID, turn.ID)
	require.Equal(t, "Hello [doc1] again [doc1].", turn.Answer)
	require.Equal(t, res.Text, turn.NormalizedText)
	require.Equal(t, int64(1700000000), turn.Ctime)

	var saved []model.Citation
	require.NoError(t, json.Unmarshal([]byte(turn.Citations), &saved))
	require.Len(t, saved, 1)
}

func TestNormalizeStream_CardWithExplicitConversation(t *testing.T) {
	store := &memTurnStore{}
	svc := newTestService(store)
	body := streamBody(t, "conv-1", sampleCitations(), "A [doc1][doc1] B [doc2]")

	res, err := svc.NormalizeStream(context.Background(), strings.NewReader(body), "card", "override")
	require.NoError(t, err)
	require.Equal(t, "card", res.Variant)
	require.Equal(t, "override", res.ConversationID)
	require.Equal(t, "A [1] B [2]", res.Text)
	require.Len(t, res.Actions, 2)
	require.Len(t, res.Batches, 1)
	require.Equal(t, "override", store.turns[0].ConversationID)
}

func TestNormalizeStream_SaveFailureIsNotFatal(t *testing.T) {
	store := &memTurnStore{failErr: errors.New("db down")}
	svc := newTestService(store)
	body := streamBody(t, "conv-1", sampleCitations(), "A [doc1]")

	res, err := svc.NormalizeStream(context.Background(), strings.NewReader(body), "display", "")
	require.NoError(t, err)
	require.Empty(t, res.TurnID)
	require.Equal(t, "A  ^1^ ", res.Text)
}

func TestNormalizeStream_Errors(t *testing.T) {
	svc := newTestService(nil)

	_, err := svc.NormalizeStream(context.Background(), strings.NewReader(""), "popup", "")
	require.ErrorIs(t, err, appErr.ErrInvalid)

	_, err = svc.NormalizeStream(context.Background(), strings.NewReader(""), "display", "")
	require.ErrorIs(t, err, appErr.ErrInvalid)

	errChunk := `{"id":"c","choices":[{"messages":[{"role":"error","content":"quota exceeded"}]}]}` + "\n"
	res, err := svc.NormalizeStream(context.Background(), strings.NewReader(errChunk), "display", "")
	require.NoError(t, err)
	require.Equal(t, "quota exceeded", res.Error)
	require.Empty(t, res.Text)
}

func TestTurnsHistory(t *testing.T) {
	disabled := newTestService(nil)
	_, err := disabled.ListTurns(context.Background(), "c1")
	require.ErrorIs(t, err, appErr.ErrHistoryDisabled)
	_, err = disabled.GetTurn(context.Background(), "t1")
	require.ErrorIs(t, err, appErr.ErrHistoryDisabled)

	store := &memTurnStore{turns: []model.Turn{
		{ID: "t1", ConversationID: "c1"},
		{ID: "t2", ConversationID: "c2"},
	}}
	svc := newTestService(store)
	items, err := svc.ListTurns(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, items, 1)

	turn, err := svc.GetTurn(context.Background(), "t2")
	require.NoError(t, err)
	require.Equal(t, "c2", turn.ConversationID)

	_, err = svc.GetTurn(context.Background(), "missing")
	require.ErrorIs(t, err, appErr.ErrNotFound)
	_, err = svc.ListTurns(context.Background(), " ")
	require.ErrorIs(t, err, appErr.ErrInvalid)
}

func TestNormalizeStream_OversizedLine(t *testing.T) {
	svc := newTestService(nil)
	body := strings.Repeat("x", stream.MaxObjectSize+16)
	_, err := svc.NormalizeStream(context.Background(), strings.NewReader(body), "display", "")
	require.ErrorIs(t, err, appErr.ErrInvalidStream)
}
