package document

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"
)

type PDFParser struct {
	log *zap.Logger
}

func NewPDFParser() *PDFParser {
	return &PDFParser{
		log: zap.L().With(
			zap.String("service", "document"),
			zap.String("parser", "pdf"),
		),
	}
}

func (p *PDFParser) Supports(ext string) bool {
	return strings.EqualFold(ext, ".pdf")
}

func (p *PDFParser) Parse(path string) (doc *Document, err error) {
	if err := checkFile(path); err != nil {
		return nil, err
	}

	// the reader panics on some malformed cross-reference tables
	defer func() {
		if r := recover(); r != nil {
			doc = nil
			err = fmt.Errorf("pdf: %s: %v", path, r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("pdf: %s: %w", path, err)
	}
	defer f.Close()

	log := p.log.With(
		zap.String("action", "parse"),
		zap.String("path", path),
	)

	total := r.NumPage()

	var (
		pages []Page
		texts []string
	)

	for i := 1; i <= total; i++ {
		text, err := pageText(r, i)
		if err != nil {
			log.Warn("page skipped", zap.Int("page", i), zap.Error(err))
			continue
		}

		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		pages = append(pages, Page{Number: i, Text: text})
		texts = append(texts, text)
	}

	meta := baseMetadata(path, "pdf")
	meta["page_count"] = total
	meta["pages_parsed"] = len(pages)

	info := r.Trailer().Key("Info")
	if title := strings.TrimSpace(info.Key("Title").Text()); title != "" {
		meta["title"] = title
	}
	if author := strings.TrimSpace(info.Key("Author").Text()); author != "" {
		meta["author"] = author
	}

	return &Document{
		Text:     strings.Join(texts, "\n\n"),
		Pages:    pages,
		Metadata: meta,
	}, nil
}

func pageText(r *pdf.Reader, n int) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("extract page %d: %v", n, rec)
		}
	}()

	page := r.Page(n)
	if page.V.IsNull() {
		return "", nil
	}

	return page.GetPlainText(nil)
}
