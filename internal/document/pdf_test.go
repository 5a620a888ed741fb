package document

import (
	"bytes"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/kayz/tgbridge/internal/config"
	"github.com/ledongthuc/pdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := New(config.DefaultConfig().Document)
	require.NoError(t, err)
	return r
}

func TestRenderProducesReadablePDF(t *testing.T) {
	r := newRenderer(t)
	text := "**Your day ahead**\n\nA calm morning turns into a busy afternoon.\n\n- Call an old friend\n- Take a walk\n1. Finish the report"

	data, err := r.Render(text, time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(data, []byte("%PDF-")))

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	assert.Equal(t, 1, reader.NumPage())
}

func TestRenderLongTextPaginates(t *testing.T) {
	r := newRenderer(t)
	text := "Headline\n\n" + strings.Repeat("A long paragraph of forecast text that keeps going. ", 40) + "\n\n"
	text = strings.Repeat(text, 6)

	data, err := r.Render(text, time.Now())
	require.NoError(t, err)

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	assert.Greater(t, reader.NumPage(), 1)
}

func TestRenderEmptyTextFails(t *testing.T) {
	_, err := newRenderer(t).Render(" \n\n ", time.Now())
	assert.Error(t, err)
}

func TestRenderBadFontFails(t *testing.T) {
	dir := t.TempDir()
	font := dir + "/broken.ttf"
	require.NoError(t, os.WriteFile(font, []byte("not a font"), 0644))

	cfg := config.DefaultConfig().Document
	cfg.FontPath = font
	r, err := New(cfg)
	require.NoError(t, err)

	_, err = r.Render("Hello", time.Now())
	assert.Error(t, err)
}

func TestNewRejectsMissingAsset(t *testing.T) {
	cfg := config.DefaultConfig().Document
	cfg.LogoPath = "/nonexistent/logo.png"
	_, err := New(cfg)
	assert.Error(t, err)
}

func TestFilenameAndCaption(t *testing.T) {
	r := newRenderer(t)
	assert.Equal(t, "DailyMind-2026-10-16.pdf", r.Filename(time.Date(2026, 10, 16, 23, 0, 0, 0, time.UTC)))
	assert.Equal(t, "Ваш прогноз", r.Caption())
}

func TestParseBlocks(t *testing.T) {
	blocks := parseBlocks("## Title\nfirst line\nsecond line\n\n* item one\n2) item two\n\nlast")
	require.Len(t, blocks, 5)
	assert.Equal(t, block{blockHeadline, "Title"}, blocks[0])
	assert.Equal(t, block{blockParagraph, "first line second line"}, blocks[1])
	assert.Equal(t, block{blockBullet, "item one"}, blocks[2])
	assert.Equal(t, block{blockBullet, "item two"}, blocks[3])
	assert.Equal(t, block{blockParagraph, "last"}, blocks[4])
}
