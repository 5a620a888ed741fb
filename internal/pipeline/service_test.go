package pipeline

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kayz/tgbridge/internal/llm"
	"github.com/kayz/tgbridge/internal/store"
)

func TestSubmitAsyncReturnsBeforeProcessing(t *testing.T) {
	h := newHarness(t)
	release := make(chan struct{})
	h.llm.reply = func(context.Context, llm.Request) (string, error) {
		<-release
		return "Hello!", nil
	}
	svc := NewService(h.pipeline, NewDispatcher(2))

	ack, err := svc.SubmitAsync(context.Background(), "async", []byte(`{"prompt":"Say hi","chat_id":42,"bot_api_key":"123456:ABCDEFGHIJ"}`))
	require.NoError(t, err)
	assert.Equal(t, "accepted", ack.Status)
	assert.Nil(t, ack.Error)

	row, ok := h.store.row(ack.RequestID)
	require.True(t, ok)
	assert.Equal(t, store.StatusPending, row.Status)

	close(release)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, svc.Close(ctx))

	row, _ = h.store.row(ack.RequestID)
	assert.Equal(t, store.StatusDelivered, row.Status)
	assert.Equal(t, []string{"Hello!"}, h.messenger.sentTexts())
}

func TestSubmitAsyncValidationFailureIsAccepted(t *testing.T) {
	h := newHarness(t)
	svc := NewService(h.pipeline, NewDispatcher(1))

	ack, err := svc.SubmitAsync(context.Background(), "async", []byte(`{"prompt":"Say hi"}`))
	require.NoError(t, err)
	require.NotNil(t, ack.Error)
	assert.Equal(t, "validation_error", *ack.Error)

	row, ok := h.store.row(ack.RequestID)
	require.True(t, ok)
	assert.Equal(t, store.SlugInvalid, row.PromptSlug)
	assert.Equal(t, 0, h.llm.count())
}

func TestSubmitAsyncAfterCloseRecordsFailure(t *testing.T) {
	h := newHarness(t)
	svc := NewService(h.pipeline, NewDispatcher(1))
	require.NoError(t, svc.Close(context.Background()))

	_, err := svc.SubmitAsync(context.Background(), "async", []byte(`{"prompt":"Say hi","chat_id":42,"bot_api_key":"123456:ABCDEFGHIJ"}`))
	require.ErrorIs(t, err, ErrShuttingDown)

	row, ok := h.store.row("req0001")
	require.True(t, ok)
	assert.Equal(t, store.StatusFailed, row.Status)
	assert.Equal(t, 0, h.llm.count())
}

func TestSubmitSyncWritesOnce(t *testing.T) {
	h := newHarness(t)
	res, err := NewService(h.pipeline, NewDispatcher(1)).SubmitSync(context.Background(),
		[]byte(`{"prompt":"Say hi","chat_id":42,"bot_api_key":"123456:ABCDEFGHIJ"}`))
	require.NoError(t, err)
	assert.Equal(t, "", res.FailedStage())
	assert.Equal(t, []string{"upsert:" + res.RequestID}, h.store.opsSnapshot())
}

func TestDispatcherBoundsConcurrency(t *testing.T) {
	d := NewDispatcher(2)
	var running, peak atomic.Int32
	for i := 0; i < 8; i++ {
		require.NoError(t, d.Go("task", func() {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			running.Add(-1)
		}))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, d.Close(ctx))
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestDispatcherContainsPanics(t *testing.T) {
	d := NewDispatcher(1)
	var ran atomic.Bool
	require.NoError(t, d.Go("bad", func() { panic("boom") }))
	require.NoError(t, d.Go("good", func() { ran.Store(true) }))
	require.NoError(t, d.Close(context.Background()))
	assert.True(t, ran.Load())
}

func TestPreview(t *testing.T) {
	h := newHarness(t, dailyPrompt())
	h.llm.reply = func(_ context.Context, req llm.Request) (string, error) { return "Stars align for " + req.User, nil }
	svc := NewService(h.pipeline, NewDispatcher(1))

	out, err := svc.Preview(context.Background(), "horoscope", map[string]any{"sign": "Leo", "date": "today"})
	require.NoError(t, err)
	assert.Equal(t, "Forecast for Leo on today", out.RenderedUser)
	assert.Equal(t, "gpt-4.1", out.Model)
	assert.Contains(t, out.Text, "Stars align")
	assert.Empty(t, h.messenger.sentTexts())
	assert.Empty(t, h.store.opsSnapshot())

	_, err = svc.Preview(context.Background(), "nope", nil)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
