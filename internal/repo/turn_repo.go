package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/datachat/internal/model"
	"github.com/xxxsen/datachat/internal/pkg/dbutil"
	appErr "github.com/xxxsen/datachat/internal/pkg/errors"
)

const (
	turnTable = "turns"
	// MaxTurnsPerConversation caps a single history read.
	MaxTurnsPerConversation = 200
)

var turnFields = []string{
	"id", "conversation_id", "variant", "answer", "normalized_text", "citations", "intent", "ctime",
}

type TurnRepo struct {
	db *sql.DB
}

func NewTurnRepo(db *sql.DB) *TurnRepo {
	return &TurnRepo{db: db}
}

func (r *TurnRepo) Create(ctx context.Context, turn *model.Turn) error {
	data := map[string]interface{}{
		"id":              turn.ID,
		"conversation_id": turn.ConversationID,
		"variant":         turn.Variant,
		"answer":          turn.Answer,
		"normalized_text": turn.NormalizedText,
		"citations":       turn.Citations,
		"intent":          turn.Intent,
		"ctime":           turn.Ctime,
	}
	sqlStr, args, err := builder.BuildInsert(turnTable, []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	if _, err := r.db.ExecContext(ctx, sqlStr, args...); err != nil {
		if dbutil.IsConflict(err) {
			return appErr.ErrConflict
		}
		return err
	}
	return nil
}

func (r *TurnRepo) Get(ctx context.Context, id string) (*model.Turn, error) {
	where := map[string]interface{}{
		"id": id,
	}
	sqlStr, args, err := builder.BuildSelect(turnTable, where, turnFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	var turn model.Turn
	err = r.db.QueryRowContext(ctx, sqlStr, args...).Scan(
		&turn.ID, &turn.ConversationID, &turn.Variant, &turn.Answer,
		&turn.NormalizedText, &turn.Citations, &turn.Intent, &turn.Ctime,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	return &turn, nil
}

// ListByConversation returns the turns of a conversation, oldest first.
func (r *TurnRepo) ListByConversation(ctx context.Context, conversationID string) ([]model.Turn, error) {
	where := map[string]interface{}{
		"conversation_id": conversationID,
		"_orderby":        "ctime asc",
		"_limit":          []uint{0, MaxTurnsPerConversation},
	}
	sqlStr, args, err := builder.BuildSelect(turnTable, where, turnFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.Turn, 0)
	for rows.Next() {
		var item model.Turn
		if err := rows.Scan(
			&item.ID, &item.ConversationID, &item.Variant, &item.Answer,
			&item.NormalizedText, &item.Citations, &item.Intent, &item.Ctime,
		); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// DeleteBefore removes turns created before cutoff (unix seconds).
func (r *TurnRepo) DeleteBefore(ctx context.Context, cutoff int64) (int64, error) {
	where := map[string]interface{}{
		"ctime <": cutoff,
	}
	sqlStr, args, err := builder.BuildDelete(turnTable, where)
	if err != nil {
		return 0, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	res, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
