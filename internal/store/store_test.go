package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "app.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func strPtr(s string) *string { return &s }

func samplePrompt(slug string) *Prompt {
	return &Prompt{
		Slug:           slug,
		Name:           "Daily forecast",
		SystemTemplate: "You are {{.persona}}",
		UserTemplate:   "Forecast for {{.sign}}",
		Provider:       "openai",
		Model:          "gpt-4o-mini",
		Temperature:    0.2,
		MaxTokens:      512,
	}
}

func TestPromptCRUD(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	p := samplePrompt("daily")
	require.NoError(t, s.CreatePrompt(ctx, p))
	assert.NotZero(t, p.ID)

	got, err := s.GetPrompt(ctx, "daily")
	require.NoError(t, err)
	assert.Equal(t, "Forecast for {{.sign}}", got.UserTemplate)
	assert.Equal(t, "You are {{.persona}}", got.SystemTemplate)

	err = s.CreatePrompt(ctx, samplePrompt("daily"))
	assert.True(t, errors.Is(err, ErrConflict), "got %v", err)

	updated, err := s.UpdatePrompt(ctx, "daily", PromptPatch{Name: strPtr("Renamed")})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	assert.Equal(t, "Forecast for {{.sign}}", updated.UserTemplate, "absent fields must be kept")

	require.NoError(t, s.CreatePrompt(ctx, samplePrompt("alpha")))
	list, err := s.ListPrompts(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "alpha", list[0].Slug)

	require.NoError(t, s.DeletePrompt(ctx, "daily"))
	_, err = s.GetPrompt(ctx, "daily")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, errors.Is(s.DeletePrompt(ctx, "daily"), ErrNotFound))

	_, err = s.UpdatePrompt(ctx, "ghost", PromptPatch{Name: strPtr("x")})
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSavePromptReplaces(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.SavePrompt(ctx, samplePrompt("daily")))
	p := samplePrompt("daily")
	p.SystemTemplate = ""
	p.MaxTokens = 0
	require.NoError(t, s.SavePrompt(ctx, p))

	got, err := s.GetPrompt(ctx, "daily")
	require.NoError(t, err)
	assert.Empty(t, got.SystemTemplate)
	assert.Zero(t, got.MaxTokens)
}

func TestPromptPatchApply(t *testing.T) {
	p := samplePrompt("daily")
	temp := 1.5
	PromptPatch{Temperature: &temp, SystemTemplate: strPtr("")}.Apply(p)
	assert.Equal(t, 1.5, p.Temperature)
	assert.Empty(t, p.SystemTemplate)
	assert.Equal(t, "Daily forecast", p.Name)
	assert.True(t, PromptPatch{}.Empty())
}

func TestOutcomePendingThenUpsert(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	pending := &Outcome{
		RequestID:  "req-1",
		PromptSlug: SlugRaw,
		ChatID:     42,
		Params:     map[string]any{"sign": "leo"},
	}
	require.NoError(t, s.CreatePending(ctx, pending))

	got, err := s.GetLatestByRequestID(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
	assert.False(t, got.LLMOK)
	assert.Nil(t, got.LLMResponseText)
	assert.Equal(t, "leo", got.Params["sign"])

	final := &Outcome{
		RequestID:       "req-1",
		PromptSlug:      SlugRaw,
		ChatID:          42,
		Params:          map[string]any{"sign": "leo"},
		LLMOK:           true,
		LLMResponseText: strPtr("Hello!"),
		TelegramOK:      true,
		Status:          StatusDelivered,
	}
	require.NoError(t, s.UpsertOutcome(ctx, final))

	got, err = s.GetLatestByRequestID(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, StatusDelivered, got.Status)
	assert.True(t, got.LLMOK)
	assert.True(t, got.TelegramOK)
	require.NotNil(t, got.LLMResponseText)
	assert.Equal(t, "Hello!", *got.LLMResponseText)
	assert.Equal(t, pending.CreatedAt.Unix(), got.CreatedAt.Unix(), "creation time survives the update")
}

func TestUpsertTwiceKeepsOneRowSecondWins(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	first := &Outcome{RequestID: "req-2", PromptSlug: "daily", LLMError: strPtr("boom"), Status: StatusFailed}
	second := &Outcome{RequestID: "req-2", PromptSlug: "daily", LLMOK: true, LLMResponseText: strPtr("ok"), TelegramOK: true, Status: StatusDelivered}

	require.NoError(t, s.UpsertOutcome(ctx, first))
	require.NoError(t, s.UpsertOutcome(ctx, second))

	n, err := countOutcomes(ctx, s, "req-2")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := s.GetLatestByRequestID(ctx, "req-2")
	require.NoError(t, err)
	assert.True(t, got.LLMOK)
	assert.Nil(t, got.LLMError)
	assert.Equal(t, StatusDelivered, got.Status)
}

func TestGetLatestByRequestIDNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetLatestByRequestID(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestConcurrentOutcomeWrites(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("req-%d", i)
			if err := s.CreatePending(ctx, &Outcome{RequestID: id, PromptSlug: SlugRaw}); err != nil {
				errs <- err
				return
			}
			errs <- s.UpsertOutcome(ctx, &Outcome{RequestID: id, PromptSlug: SlugRaw, Status: StatusFailed})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
}

func countOutcomes(ctx context.Context, s *Store, requestID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM request_logs WHERE request_id = ?`, requestID).Scan(&n)
	return n, err
}
