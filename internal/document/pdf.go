// Package document renders LLM output into a branded PDF.
package document

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/kayz/tgbridge/internal/config"
	"github.com/kayz/tgbridge/internal/security"
)

const (
	pageMargin   = 18.0
	headerHeight = 28.0
	bodyFamily   = "Body"
)

var brandColor = [3]int{41, 65, 122}

// Renderer produces PDF bytes. It is safe for concurrent use: every call
// builds its own document.
type Renderer struct {
	brand    string
	prefix   string
	caption  string
	logo     string
	font     string
	fontBold string
}

// New resolves the configured logo and font files.
func New(cfg config.DocumentConfig) (*Renderer, error) {
	r := &Renderer{brand: cfg.Brand, prefix: cfg.FilenamePrefix, caption: cfg.Caption}
	var err error
	if r.logo, err = security.ResolveAssetPath(cfg.LogoPath); err != nil {
		return nil, fmt.Errorf("pdf logo: %w", err)
	}
	if r.font, err = security.ResolveAssetPath(cfg.FontPath); err != nil {
		return nil, fmt.Errorf("pdf font: %w", err)
	}
	if r.fontBold, err = security.ResolveAssetPath(cfg.FontBoldPath); err != nil {
		return nil, fmt.Errorf("pdf bold font: %w", err)
	}
	if r.prefix == "" {
		r.prefix = "document"
	}
	return r, nil
}

// Filename returns "<prefix>-YYYY-MM-DD.pdf" for the given day.
func (r *Renderer) Filename(now time.Time) string {
	return fmt.Sprintf("%s-%s.pdf", r.prefix, now.Format("2006-01-02"))
}

// Caption is the text attached to the uploaded document.
func (r *Renderer) Caption() string {
	return r.caption
}

// Render lays out text on A4 pages.
func (r *Renderer) Render(text string, now time.Time) ([]byte, error) {
	blocks := parseBlocks(text)
	if len(blocks) == 0 {
		return nil, errors.New("pdf: nothing to render")
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pageMargin, pageMargin+headerHeight, pageMargin)
	pdf.SetAutoPageBreak(true, pageMargin)
	pdf.SetTitle(r.brand, true)
	pdf.SetCreator(r.brand, true)

	regular, bold, tr := r.fonts(pdf)
	use := func(f face, size float64) { pdf.SetFont(f.family, f.style, size) }
	pdf.SetHeaderFunc(func() { r.header(pdf, bold, tr, now) })
	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		use(regular, 8)
		pdf.SetTextColor(140, 140, 140)
		pdf.CellFormat(0, 6, fmt.Sprintf("%d", pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	width, _ := pdf.GetPageSize()
	bodyWidth := width - 2*pageMargin
	for _, b := range blocks {
		switch b.kind {
		case blockHeadline:
			use(bold, 17)
			pdf.SetTextColor(brandColor[0], brandColor[1], brandColor[2])
			pdf.MultiCell(bodyWidth, 8, tr(b.text), "", "L", false)
			pdf.Ln(3)
		case blockBullet:
			use(regular, 11)
			pdf.SetTextColor(30, 30, 30)
			pdf.SetX(pageMargin + 2)
			pdf.CellFormat(5, 6, tr("•"), "", 0, "L", false, 0, "")
			pdf.MultiCell(bodyWidth-7, 6, tr(b.text), "", "L", false)
			pdf.Ln(1)
		case blockParagraph:
			use(regular, 11)
			pdf.SetTextColor(30, 30, 30)
			pdf.MultiCell(bodyWidth, 6, tr(b.text), "", "J", false)
			pdf.Ln(3)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("pdf: %w", err)
	}
	return buf.Bytes(), nil
}

type face struct {
	family string
	style  string
}

// fonts registers the configured TTF faces when present, otherwise falls back
// to core Helvetica with a cp1252 translator.
func (r *Renderer) fonts(pdf *fpdf.Fpdf) (regular, bold face, tr func(string) string) {
	if r.font == "" {
		return face{"Helvetica", ""}, face{"Helvetica", "B"}, pdf.UnicodeTranslatorFromDescriptor("")
	}
	pdf.AddUTF8Font(bodyFamily, "", r.font)
	regular = face{bodyFamily, ""}
	bold = regular
	if r.fontBold != "" {
		pdf.AddUTF8Font(bodyFamily, "B", r.fontBold)
		bold = face{bodyFamily, "B"}
	}
	return regular, bold, func(s string) string { return s }
}

func (r *Renderer) header(pdf *fpdf.Fpdf, bold face, tr func(string) string, now time.Time) {
	width, _ := pdf.GetPageSize()
	pdf.SetFillColor(brandColor[0], brandColor[1], brandColor[2])
	pdf.Rect(0, 0, width, headerHeight, "F")

	x := pageMargin
	if r.logo != "" {
		pdf.ImageOptions(r.logo, x, 6, 0, headerHeight-12, false, fpdf.ImageOptions{ReadDpi: true}, 0, "")
		x += headerHeight
	}
	pdf.SetTextColor(255, 255, 255)
	pdf.SetFont(bold.family, bold.style, 16)
	pdf.SetXY(x, 9)
	pdf.CellFormat(0, 10, tr(strings.ToUpper(r.brand)), "", 0, "L", false, 0, "")
	pdf.SetXY(width-pageMargin-40, 9)
	pdf.SetFont(bold.family, bold.style, 10)
	pdf.CellFormat(40, 10, now.Format("02.01.2006"), "", 0, "R", false, 0, "")
	pdf.SetXY(pageMargin, pageMargin+headerHeight)
}
