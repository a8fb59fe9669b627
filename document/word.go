package document

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

type WordParser struct{}

func NewWordParser() *WordParser {
	return &WordParser{}
}

func (p *WordParser) Supports(ext string) bool {
	return strings.EqualFold(ext, ".docx")
}

func (p *WordParser) Parse(path string) (*Document, error) {
	if err := checkFile(path); err != nil {
		return nil, err
	}

	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("docx: %s: %w", path, err)
	}
	defer zr.Close()

	var body, core *zip.File
	for _, f := range zr.File {
		switch f.Name {
		case "word/document.xml":
			body = f
		case "docProps/core.xml":
			core = f
		}
	}

	if body == nil {
		return nil, fmt.Errorf("docx: %s: missing word/document.xml", path)
	}

	paragraphs, err := readZipXML(body, wordParagraphs)
	if err != nil {
		return nil, fmt.Errorf("docx: %s: %w", path, err)
	}

	meta := baseMetadata(path, "docx")
	meta["paragraph_count"] = len(paragraphs)

	if core != nil {
		props, err := readZipXML(core, coreProperties)
		if err != nil {
			return nil, fmt.Errorf("docx: %s: %w", path, err)
		}

		for k, v := range props {
			meta[k] = v
		}
	}

	return &Document{
		Text:     strings.Join(paragraphs, "\n"),
		Metadata: meta,
	}, nil
}

func readZipXML[T any](f *zip.File, read func(*xml.Decoder) (T, error)) (T, error) {
	var zero T

	rc, err := f.Open()
	if err != nil {
		return zero, err
	}
	defer rc.Close()

	return read(xml.NewDecoder(rc))
}

// wordParagraphs collects the text of every non-empty <w:p>. A paragraph
// nested in a text box is emitted on its own, before the paragraph that
// holds it.
func wordParagraphs(dec *xml.Decoder) ([]string, error) {
	var (
		paragraphs []string
		open       []*strings.Builder
		inText     bool
	)

	top := func() *strings.Builder {
		if len(open) == 0 {
			return nil
		}
		return open[len(open)-1]
	}

	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				open = append(open, new(strings.Builder))
			case "t":
				inText = true
			case "tab":
				if b := top(); b != nil {
					b.WriteByte('\t')
				}
			case "br", "cr":
				if b := top(); b != nil {
					b.WriteByte('\n')
				}
			}

		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				b := top()
				if b == nil {
					continue
				}
				open = open[:len(open)-1]

				if text := strings.TrimSpace(b.String()); text != "" {
					paragraphs = append(paragraphs, text)
				}
			}

		case xml.CharData:
			if b := top(); inText && b != nil {
				b.Write(t)
			}
		}
	}

	return paragraphs, nil
}

var coreFields = map[string]string{
	"title":    "title",
	"creator":  "author",
	"subject":  "subject",
	"created":  "created",
	"modified": "modified",
}

func coreProperties(dec *xml.Decoder) (map[string]string, error) {
	props := make(map[string]string)

	var field string
	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			field = coreFields[t.Name.Local]

		case xml.EndElement:
			field = ""

		case xml.CharData:
			if field == "" {
				continue
			}

			if v := strings.TrimSpace(string(t)); v != "" {
				props[field] = v
			}
		}
	}

	return props, nil
}
