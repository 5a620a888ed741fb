package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreatePending inserts the initial row for o.RequestID with status pending.
func (s *Store) CreatePending(ctx context.Context, o *Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	o.Status = StatusPending
	o.CreatedAt, o.UpdatedAt = now, now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO request_logs (request_id, prompt_slug, user_id, chat_id, params,
			llm_ok, telegram_ok, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, 0, ?, ?, ?)
	`, o.RequestID, o.PromptSlug, o.UserID, o.ChatID, paramsJSON(o.Params),
		string(o.Status), formatTime(now), formatTime(now))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("request %q: %w", o.RequestID, ErrConflict)
		}
		return err
	}
	return nil
}

// UpsertOutcome writes the final state of o. An existing row for the same
// request id is updated in place, keeping its creation time.
func (s *Store) UpsertOutcome(ctx context.Context, o *Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO request_logs (request_id, prompt_slug, user_id, chat_id, params,
			rendered_system, rendered_user, llm_ok, llm_error, llm_response_text,
			telegram_ok, telegram_error, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(request_id) DO UPDATE SET
			prompt_slug=excluded.prompt_slug, user_id=excluded.user_id, chat_id=excluded.chat_id,
			params=excluded.params, rendered_system=excluded.rendered_system,
			rendered_user=excluded.rendered_user, llm_ok=excluded.llm_ok,
			llm_error=excluded.llm_error, llm_response_text=excluded.llm_response_text,
			telegram_ok=excluded.telegram_ok, telegram_error=excluded.telegram_error,
			status=excluded.status, updated_at=excluded.updated_at
	`, o.RequestID, o.PromptSlug, o.UserID, o.ChatID, paramsJSON(o.Params),
		nullString(o.RenderedSystem), nullString(o.RenderedUser), boolInt(o.LLMOK),
		nullString(o.LLMError), nullString(o.LLMResponseText), boolInt(o.TelegramOK),
		nullString(o.TelegramError), string(o.Status), formatTime(o.CreatedAt), formatTime(now))
	return err
}

// GetLatestByRequestID returns the current outcome for requestID or ErrNotFound.
func (s *Store) GetLatestByRequestID(ctx context.Context, requestID string) (*Outcome, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, request_id, prompt_slug, user_id, chat_id, params, rendered_system,
			rendered_user, llm_ok, llm_error, llm_response_text, telegram_ok, telegram_error,
			status, created_at, updated_at
		FROM request_logs
		WHERE request_id = ?
		ORDER BY id DESC
		LIMIT 1
	`, requestID)

	o, err := scanOutcome(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("request %q: %w", requestID, ErrNotFound)
	}
	return o, err
}

func scanOutcome(row scanner) (*Outcome, error) {
	var o Outcome
	var params, renderedSystem, renderedUser, llmError, llmText, tgError sql.NullString
	var llmOK, tgOK int
	var status, createdAt, updatedAt string

	err := row.Scan(&o.ID, &o.RequestID, &o.PromptSlug, &o.UserID, &o.ChatID, &params,
		&renderedSystem, &renderedUser, &llmOK, &llmError, &llmText, &tgOK, &tgError,
		&status, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	if params.Valid {
		_ = fromJSON(params.String, &o.Params)
	}
	o.RenderedSystem = stringPtr(renderedSystem)
	o.RenderedUser = stringPtr(renderedUser)
	o.LLMOK = llmOK != 0
	o.LLMError = stringPtr(llmError)
	o.LLMResponseText = stringPtr(llmText)
	o.TelegramOK = tgOK != 0
	o.TelegramError = stringPtr(tgError)
	o.Status = Status(status)
	o.CreatedAt = parseTime(createdAt)
	o.UpdatedAt = parseTime(updatedAt)
	return &o, nil
}

func paramsJSON(p map[string]any) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: toJSON(p), Valid: true}
}
