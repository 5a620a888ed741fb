package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kayz/tgbridge/internal/llm"
	"github.com/kayz/tgbridge/internal/store"
	"github.com/kayz/tgbridge/internal/telegram"
)

type fakeStore struct {
	mu      sync.Mutex
	prompts map[string]*store.Prompt
	rows    map[string]store.Outcome
	ops     []string
}

func newFakeStore(prompts ...*store.Prompt) *fakeStore {
	s := &fakeStore{prompts: map[string]*store.Prompt{}, rows: map[string]store.Outcome{}}
	for _, p := range prompts {
		s.prompts[p.Slug] = p
	}
	return s
}

func (s *fakeStore) GetPrompt(_ context.Context, slug string) (*store.Prompt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.prompts[slug]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *fakeStore) CreatePending(_ context.Context, o *store.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[o.RequestID]; ok {
		return errors.New("duplicate request id")
	}
	o.Status = store.StatusPending
	s.rows[o.RequestID] = *o
	s.ops = append(s.ops, "pending:"+o.RequestID)
	return nil
}

func (s *fakeStore) UpsertOutcome(ctx context.Context, o *store.Outcome) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[o.RequestID] = *o
	s.ops = append(s.ops, "upsert:"+o.RequestID)
	return nil
}

func (s *fakeStore) row(id string) (store.Outcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.rows[id]
	return o, ok
}

func (s *fakeStore) opsSnapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ops...)
}

type fakeLLM struct {
	mu    sync.Mutex
	calls []llm.Request
	reply func(ctx context.Context, req llm.Request) (string, error)
}

func (f *fakeLLM) Complete(ctx context.Context, req llm.Request) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if f.reply == nil {
		return "ok", nil
	}
	return f.reply(ctx, req)
}

func (f *fakeLLM) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type sentDoc struct {
	chatID   int64
	filename string
	caption  string
	size     int
}

type fakeMessenger struct {
	mu      sync.Mutex
	texts   []string
	docs    []sentDoc
	textErr func(call int, text string) error
	docErr  error
}

func (m *fakeMessenger) SendText(_ context.Context, _ string, _ int64, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	call := len(m.texts)
	m.texts = append(m.texts, text)
	if m.textErr != nil {
		return m.textErr(call, text)
	}
	return nil
}

func (m *fakeMessenger) SendDocument(_ context.Context, _ string, chatID int64, filename string, data []byte, caption string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs = append(m.docs, sentDoc{chatID: chatID, filename: filename, caption: caption, size: len(data)})
	return m.docErr
}

func (m *fakeMessenger) sentTexts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.texts...)
}

type fakeDocs struct {
	err error
}

func (d *fakeDocs) Render(text string, _ time.Time) ([]byte, error) {
	if d.err != nil {
		return nil, d.err
	}
	return []byte("%PDF-" + text), nil
}

func (d *fakeDocs) Filename(now time.Time) string { return "DailyMind-" + now.Format("2006-01-02") + ".pdf" }

func (d *fakeDocs) Caption() string { return "Ваш прогноз" }

func deliveryFailure(sent int) error {
	return &telegram.DeliveryError{Message: "Telegram error 403: Forbidden: bot was blocked by the user", SentParts: sent}
}
