package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const promptColumns = `id, slug, name, system_template, user_template, provider, model,
	temperature, max_tokens, created_at, updated_at`

// ListPrompts returns all prompts ordered by slug.
func (s *Store) ListPrompts(ctx context.Context) ([]*Prompt, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+promptColumns+` FROM prompts ORDER BY slug`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var prompts []*Prompt
	for rows.Next() {
		p, err := scanPrompt(rows)
		if err != nil {
			return nil, err
		}
		prompts = append(prompts, p)
	}
	return prompts, rows.Err()
}

// GetPrompt returns the prompt with the given slug or ErrNotFound.
func (s *Store) GetPrompt(ctx context.Context, slug string) (*Prompt, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+promptColumns+` FROM prompts WHERE slug = ?`, slug)
	p, err := scanPrompt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("prompt %q: %w", slug, ErrNotFound)
	}
	return p, err
}

// CreatePrompt inserts p. A taken slug yields ErrConflict.
func (s *Store) CreatePrompt(ctx context.Context, p *Prompt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO prompts (slug, name, system_template, user_template, provider, model,
			temperature, max_tokens, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.Slug, p.Name, optionalText(p.SystemTemplate), p.UserTemplate, p.Provider, p.Model,
		p.Temperature, p.MaxTokens, formatTime(now), formatTime(now))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("prompt %q: %w", p.Slug, ErrConflict)
		}
		return err
	}

	if id, err := res.LastInsertId(); err == nil {
		p.ID = id
	}
	p.CreatedAt, p.UpdatedAt = now, now
	return nil
}

// UpdatePrompt applies patch to the prompt with the given slug.
func (s *Store) UpdatePrompt(ctx context.Context, slug string, patch PromptPatch) (*Prompt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	p, err := scanPrompt(tx.QueryRowContext(ctx, `SELECT `+promptColumns+` FROM prompts WHERE slug = ?`, slug))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("prompt %q: %w", slug, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	patch.Apply(p)
	p.UpdatedAt = time.Now().UTC()

	_, err = tx.ExecContext(ctx, `
		UPDATE prompts SET name = ?, system_template = ?, user_template = ?, provider = ?,
			model = ?, temperature = ?, max_tokens = ?, updated_at = ?
		WHERE id = ?
	`, p.Name, optionalText(p.SystemTemplate), p.UserTemplate, p.Provider, p.Model,
		p.Temperature, p.MaxTokens, formatTime(p.UpdatedAt), p.ID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return p, nil
}

// SavePrompt inserts p or replaces every field of the prompt with the same slug.
func (s *Store) SavePrompt(ctx context.Context, p *Prompt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := formatTime(time.Now())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO prompts (slug, name, system_template, user_template, provider, model,
			temperature, max_tokens, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(slug) DO UPDATE SET
			name=excluded.name, system_template=excluded.system_template,
			user_template=excluded.user_template, provider=excluded.provider,
			model=excluded.model, temperature=excluded.temperature,
			max_tokens=excluded.max_tokens, updated_at=excluded.updated_at
	`, p.Slug, p.Name, optionalText(p.SystemTemplate), p.UserTemplate, p.Provider, p.Model,
		p.Temperature, p.MaxTokens, now, now)
	return err
}

// DeletePrompt removes the prompt with the given slug.
func (s *Store) DeletePrompt(ctx context.Context, slug string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM prompts WHERE slug = ?`, slug)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("prompt %q: %w", slug, ErrNotFound)
	}
	return nil
}

func scanPrompt(row scanner) (*Prompt, error) {
	var p Prompt
	var system sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&p.ID, &p.Slug, &p.Name, &system, &p.UserTemplate, &p.Provider, &p.Model,
		&p.Temperature, &p.MaxTokens, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	p.SystemTemplate = system.String
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
}

func optionalText(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
