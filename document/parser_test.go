package document

import (
	"archive/zip"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/simplifiedchinese"
)

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func writeDocx(t *testing.T, dir, name string, files map[string]string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)

		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())

	return path
}

const docxBody = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>First paragraph</w:t></w:r><w:r><w:t xml:space="preserve"> continues.</w:t></w:r></w:p>
    <w:p></w:p>
    <w:p><w:r><w:t>Second</w:t><w:tab/><w:t>tabbed</w:t></w:r></w:p>
  </w:body>
</w:document>`

const docxCore = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties"
  xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:dcterms="http://purl.org/dc/terms/">
  <dc:title>Handbook</dc:title>
  <dc:creator>Ops Team</dc:creator>
  <dcterms:created>2024-01-02T03:04:05Z</dcterms:created>
</cp:coreProperties>`

func TestTextParserEncodings(t *testing.T) {
	assert := assert.New(t)
	dir := t.TempDir()

	gbk, err := simplifiedchinese.GBK.NewEncoder().String("你好，世界\n第二行")
	require.NoError(t, err)

	latin, err := charmap.ISO8859_1.NewEncoder().String("café au lait")
	require.NoError(t, err)

	for _, tc := range []struct {
		name     string
		data     []byte
		text     string
		encoding string
	}{
		{"utf8.txt", []byte("plain ascii\nand ünïcode"), "plain ascii\nand ünïcode", "utf-8"},
		{"bom.txt", append([]byte{0xEF, 0xBB, 0xBF}, "with bom"...), "with bom", "utf-8"},
		{"gbk.txt", []byte(gbk), "你好，世界\n第二行", "gbk"},
		{"latin.log", []byte(latin), "café au lait", "latin-1"},
	} {
		path := writeFile(t, dir, tc.name, tc.data)

		doc, err := NewTextParser().Parse(path)
		require.NoError(t, err, tc.name)

		assert.Equal(tc.text, doc.Text, tc.name)
		assert.Equal(tc.encoding, doc.Metadata["encoding"], tc.name)
		assert.Equal("text", doc.Metadata["file_type"])
		assert.Equal(tc.name, doc.Metadata["source"])
	}
}

func TestMarkdownTitle(t *testing.T) {
	assert := assert.New(t)
	dir := t.TempDir()

	path := writeFile(t, dir, "guide.md", []byte("intro text\n\n##  Getting Started \n\nbody\n# Later"))

	doc, err := NewMarkdownParser().Parse(path)
	require.NoError(t, err)

	assert.Equal("Getting Started", doc.Metadata["title"])
	assert.Equal("markdown", doc.Metadata["file_type"])
	assert.Equal(6, doc.Metadata["line_count"])

	path = writeFile(t, dir, "plain.markdown", []byte("no headings"))
	doc, err = NewMarkdownParser().Parse(path)
	require.NoError(t, err)
	assert.NotContains(doc.Metadata, "title")
}

func TestWordParser(t *testing.T) {
	assert := assert.New(t)
	dir := t.TempDir()

	path := writeDocx(t, dir, "handbook.docx", map[string]string{
		"word/document.xml": docxBody,
		"docProps/core.xml": docxCore,
	})

	doc, err := NewWordParser().Parse(path)
	require.NoError(t, err)

	assert.Equal("First paragraph continues.\nSecond\ttabbed", doc.Text)
	assert.Equal(2, doc.Metadata["paragraph_count"])
	assert.Equal("Handbook", doc.Metadata["title"])
	assert.Equal("Ops Team", doc.Metadata["author"])
	assert.Equal("2024-01-02T03:04:05Z", doc.Metadata["created"])
}

func TestWordParserTextBox(t *testing.T) {
	assert := assert.New(t)
	dir := t.TempDir()

	body := `<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p>
      <w:r><w:t xml:space="preserve">Before the box, </w:t></w:r>
      <w:r><w:pict><w:txbxContent>
        <w:p><w:r><w:t>Boxed note</w:t></w:r></w:p>
      </w:txbxContent></w:pict></w:r>
      <w:r><w:t>after the box.</w:t></w:r>
    </w:p>
  </w:body>
</w:document>`

	path := writeDocx(t, dir, "boxed.docx", map[string]string{
		"word/document.xml": body,
	})

	doc, err := NewWordParser().Parse(path)
	require.NoError(t, err)

	assert.Equal("Boxed note\nBefore the box, after the box.", doc.Text)
	assert.Equal(2, doc.Metadata["paragraph_count"])
}

func TestWordParserCorrupt(t *testing.T) {
	dir := t.TempDir()

	path := writeFile(t, dir, "broken.docx", []byte("this is not a zip archive"))
	_, err := NewWordParser().Parse(path)
	assert.Error(t, err)

	path = writeDocx(t, dir, "empty.docx", map[string]string{"other.xml": "<a/>"})
	_, err = NewWordParser().Parse(path)
	assert.Error(t, err)
}

func TestRegistry(t *testing.T) {
	assert := assert.New(t)
	dir := t.TempDir()
	r := DefaultRegistry()

	_, err := r.Parse(filepath.Join(dir, "missing.txt"))
	assert.ErrorIs(err, ErrNotFound)

	path := writeFile(t, dir, "image.png", []byte{0x89, 'P', 'N', 'G'})
	_, err = r.Parse(path)
	assert.ErrorIs(err, ErrUnsupportedFileType)

	p, err := r.Parser("REPORT.PDF")
	assert.NoError(err)
	assert.IsType(&PDFParser{}, p)

	p, err = r.Parser("notes.MD")
	assert.NoError(err)
	assert.IsType(&MarkdownParser{}, p)

	assert.True(r.Supported("a.docx"))
	assert.False(r.Supported("a.doc"))
}

func TestPDFParserRejectsGarbage(t *testing.T) {
	dir := t.TempDir()

	path := writeFile(t, dir, "fake.pdf", []byte("%PDF-1.4 but nothing else"))
	_, err := NewPDFParser().Parse(path)
	assert.Error(t, err)

	_, err = NewPDFParser().Parse(filepath.Join(dir, "missing.pdf"))
	assert.ErrorIs(t, err, ErrNotFound)
}

// buildPDF lays out a minimal PDF with one page per content stream.
func buildPDF(title string, contents ...string) []byte {
	kids := make([]string, len(contents))
	for i := range contents {
		kids[i] = fmt.Sprintf("%d 0 R", 5+2*i)
	}

	objs := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(contents)),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
		fmt.Sprintf("<< /Title (%s) /Author (People Team) >>", title),
	}

	for i, c := range contents {
		objs = append(objs,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", 6+2*i),
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(c), c),
		)
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")

	offsets := make([]int, len(objs))
	for i, obj := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R /Info 4 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)

	return buf.Bytes()
}

func showText(text string) string {
	return fmt.Sprintf("BT /F1 12 Tf 72 712 Td (%s) Tj ET", text)
}

func TestPDFParserPages(t *testing.T) {
	assert := assert.New(t)
	dir := t.TempDir()

	data := buildPDF("Handbook", showText("Hello page one"), showText("Second page text"))
	path := writeFile(t, dir, "handbook.pdf", data)

	doc, err := NewPDFParser().Parse(path)
	require.NoError(t, err)

	assert.Equal("Hello page one\n\nSecond page text", doc.Text)
	require.Len(t, doc.Pages, 2)
	assert.Equal(Page{Number: 1, Text: "Hello page one"}, doc.Pages[0])
	assert.Equal(Page{Number: 2, Text: "Second page text"}, doc.Pages[1])

	assert.Equal("pdf", doc.Metadata["file_type"])
	assert.Equal(2, doc.Metadata["page_count"])
	assert.Equal(2, doc.Metadata["pages_parsed"])
	assert.Equal("Handbook", doc.Metadata["title"])
	assert.Equal("People Team", doc.Metadata["author"])

	svc, err := NewService(Config{ChunkSize: 100, ChunkOverlap: 10})
	require.NoError(t, err)

	chunks, err := svc.ChunkDocument(doc, nil)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(1, chunks[0].Metadata["page"])
	assert.Equal(2, chunks[1].Metadata["page"])
}

func TestPDFParserSkipsBrokenPage(t *testing.T) {
	assert := assert.New(t)
	dir := t.TempDir()

	// Tf with three operands cannot be interpreted
	broken := "BT /F1 12 12 Tf 72 712 Td (lost) Tj ET"

	data := buildPDF("Mixed", showText("First page"), broken, showText("Third page"))
	path := writeFile(t, dir, "mixed.pdf", data)

	doc, err := NewPDFParser().Parse(path)
	require.NoError(t, err)

	require.Len(t, doc.Pages, 2)
	assert.Equal(1, doc.Pages[0].Number)
	assert.Equal(3, doc.Pages[1].Number)
	assert.Equal("First page\n\nThird page", doc.Text)
	assert.NotContains(doc.Text, "lost")

	assert.Equal(3, doc.Metadata["page_count"])
	assert.Equal(2, doc.Metadata["pages_parsed"])
}
