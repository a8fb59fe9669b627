package document

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/simplifiedchinese"
)

type namedEncoding struct {
	name string
	enc  encoding.Encoding
}

// gb2312 is a strict subset of gbk, so it has no entry of its own.
var fallbackEncodings = []namedEncoding{
	{"gbk", simplifiedchinese.GBK},
	{"gb18030", simplifiedchinese.GB18030},
	{"latin-1", charmap.ISO8859_1},
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// decodeText tries utf-8 first and then each fallback encoding. A decode
// fails when it yields replacement runes the input did not contain.
func decodeText(data []byte) (string, string, error) {
	if utf8.Valid(data) {
		return string(bytes.TrimPrefix(data, utf8BOM)), "utf-8", nil
	}

	for _, fe := range fallbackEncodings {
		out, err := fe.enc.NewDecoder().Bytes(data)
		if err != nil {
			zap.L().Debug("decode failed",
				zap.String("encoding", fe.name),
				zap.Error(err),
			)
			continue
		}

		if bytes.ContainsRune(out, utf8.RuneError) {
			continue
		}

		return string(out), fe.name, nil
	}

	return "", "", fmt.Errorf("%w: no encoding could decode the file", ErrInvalidArgument)
}

type TextParser struct {
	exts extensionSet
}

func NewTextParser() *TextParser {
	return &TextParser{
		exts: newExtensionSet(".txt", ".text", ".log", ".csv"),
	}
}

func (p *TextParser) Supports(ext string) bool {
	return p.exts.has(ext)
}

func (p *TextParser) Parse(path string) (*Document, error) {
	return parsePlain(path, "text")
}

func parsePlain(path, fileType string) (*Document, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}

	text, enc, err := decodeText(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	meta := baseMetadata(path, fileType)
	meta["encoding"] = enc
	meta["line_count"] = lineCount(text)
	meta["char_count"] = utf8.RuneCountInString(text)

	return &Document{
		Text:     text,
		Metadata: meta,
	}, nil
}

func lineCount(text string) int {
	if text == "" {
		return 0
	}

	n := strings.Count(text, "\n")
	if !strings.HasSuffix(text, "\n") {
		n++
	}
	return n
}

type MarkdownParser struct {
	exts extensionSet
}

func NewMarkdownParser() *MarkdownParser {
	return &MarkdownParser{
		exts: newExtensionSet(".md", ".markdown"),
	}
}

func (p *MarkdownParser) Supports(ext string) bool {
	return p.exts.has(ext)
}

func (p *MarkdownParser) Parse(path string) (*Document, error) {
	doc, err := parsePlain(path, "markdown")
	if err != nil {
		return nil, err
	}

	if title, ok := markdownTitle(doc.Text); ok {
		doc.Metadata["title"] = title
	}

	return doc, nil
}

// markdownTitle returns the first heading line with its marker removed.
func markdownTitle(text string) (string, bool) {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "#") {
			continue
		}

		title := strings.TrimSpace(strings.TrimLeft(line, "#"))
		if title == "" {
			continue
		}
		return title, true
	}
	return "", false
}
