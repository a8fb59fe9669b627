package document

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/flarexio/ragblade/embedding"
	"github.com/flarexio/ragblade/embedding/hashing"
	"github.com/flarexio/ragblade/vector"
)

type documentServiceTestSuite struct {
	suite.Suite
	dir      string
	embedder *embedding.Service
	paths    []string
}

func (suite *documentServiceTestSuite) SetupSuite() {
	suite.dir = suite.T().TempDir()
	suite.embedder = embedding.NewService(
		embedding.Config{Dimension: 384},
		embedding.StaticLoader(hashing.New(384)),
	)

	p1 := "Vector indexes store fixed width embeddings and answer nearest neighbour queries."
	p2 := "Documents are parsed by extension, then split into overlapping chunks of text."
	p3 := "Retrieval embeds the question and returns the highest scoring chunks as context."

	suite.paths = []string{
		writeFile(suite.T(), suite.dir, "guide.txt", []byte(p1+"\n\n"+p2+"\n\n"+p3)),
		writeDocx(suite.T(), suite.dir, "corrupt.docx", map[string]string{
			"word/document.xml": "<w:document><w:body><w:p>",
		}),
		writeFile(suite.T(), suite.dir, "notes.md", []byte("# Notes\n\nShort markdown file.")),
	}
}

func (suite *documentServiceTestSuite) newService(withEmbedder, withStore bool) (*Service, *vector.Service) {
	store, err := vector.NewService(vector.Config{
		Dimension:  384,
		Metric:     string(vector.MetricInnerProduct),
		PersistDir: suite.T().TempDir(),
	})
	suite.Require().NoError(err)

	opts := []Option{}
	if withEmbedder {
		opts = append(opts, WithEmbedder(suite.embedder))
	}
	if withStore {
		opts = append(opts, WithVectorStore(store))
	}

	svc, err := NewService(Config{ChunkSize: 100, ChunkOverlap: 20}, opts...)
	suite.Require().NoError(err)

	return svc, store
}

func (suite *documentServiceTestSuite) TestIngestSuccess() {
	assert := suite.Assert()
	ctx := context.Background()

	svc, store := suite.newService(true, true)

	result, err := svc.IngestDocument(ctx, suite.paths[0], Metadata{"scene_id": "docs"})
	suite.Require().NoError(err)

	assert.Equal(StatusSuccess, result.Status)
	assert.Equal(3, result.ChunkCount)
	assert.Equal([]int64{0, 1, 2}, result.VectorIDs)
	assert.Empty(result.Embeddings)
	assert.Equal(3, store.Stats().TotalVectors)

	// query with chunk 2's exact text
	query, err := suite.embedder.Embedding(ctx, result.Chunks[2].Text, true)
	suite.Require().NoError(err)

	hits, err := store.Search(query, 1, true)
	suite.Require().NoError(err)
	suite.Require().Len(hits, 1)

	assert.Equal(result.VectorIDs[2], hits[0].ID)
	assert.InDelta(1.0, hits[0].Score, 1e-4)
	assert.Equal(result.Chunks[2].Text, hits[0].Metadata[ContentKey])
	assert.Equal("docs", hits[0].Metadata["scene_id"])
	assert.Equal("guide.txt", hits[0].Metadata["source"])
	assert.Equal(2, hits[0].Metadata["chunk_index"])
	assert.Equal(3, hits[0].Metadata["total_chunks"])
}

func (suite *documentServiceTestSuite) TestIngestPartial() {
	assert := suite.Assert()
	ctx := context.Background()

	noStore, _ := suite.newService(true, false)
	result, err := noStore.IngestDocument(ctx, suite.paths[0], nil)
	suite.Require().NoError(err)

	assert.Equal(StatusPartial, result.Status)
	assert.Len(result.Embeddings, 3)
	assert.Empty(result.VectorIDs)

	noEmbedder, store := suite.newService(false, true)
	result, err = noEmbedder.IngestDocument(ctx, suite.paths[0], nil)
	suite.Require().NoError(err)

	assert.Equal(StatusPartial, result.Status)
	assert.Len(result.Chunks, 3)
	assert.Empty(result.Embeddings)
	assert.Equal(0, store.Stats().TotalVectors)
}

func (suite *documentServiceTestSuite) TestIngestFailed() {
	assert := suite.Assert()
	ctx := context.Background()

	svc, _ := suite.newService(true, true)

	result, err := svc.IngestDocument(ctx, filepath.Join(suite.dir, "missing.txt"), nil)
	assert.ErrorIs(err, ErrNotFound)
	assert.Equal(StatusFailed, result.Status)
	assert.NotEmpty(result.Error)

	blank := writeFile(suite.T(), suite.dir, "blank.txt", []byte("  \n\n "))
	result, err = svc.IngestDocument(ctx, blank, nil)
	assert.ErrorIs(err, ErrEmptyDocument)
	assert.Equal(StatusFailed, result.Status)
}

type failingStore struct{}

func (failingStore) AddVectors([][]float32, []map[string]any) ([]int64, error) {
	return nil, errors.New("disk full")
}

func (suite *documentServiceTestSuite) TestIngestStoreErrorIsHard() {
	svc, err := NewService(Config{ChunkSize: 100, ChunkOverlap: 20},
		WithEmbedder(suite.embedder),
		WithVectorStore(failingStore{}),
	)
	suite.Require().NoError(err)

	result, err := svc.IngestDocument(context.Background(), suite.paths[0], nil)
	suite.Error(err)
	suite.Equal(StatusFailed, result.Status)
	suite.Len(result.Embeddings, 3)
}

func (suite *documentServiceTestSuite) TestBatchIngest() {
	assert := suite.Assert()

	svc, store := suite.newService(true, true)

	var progress []string
	results := svc.BatchIngestDocuments(context.Background(), suite.paths, nil,
		func(current, total int, path string) {
			assert.Equal(3, total)
			assert.Equal(len(progress)+1, current)
			progress = append(progress, filepath.Base(path))
		},
	)

	suite.Require().Len(results, 3)
	assert.Equal([]string{"guide.txt", "corrupt.docx", "notes.md"}, progress)

	assert.Equal(StatusSuccess, results[0].Status)
	assert.Equal(StatusFailed, results[1].Status)
	assert.Contains(results[1].Error, "docx")
	assert.Equal(StatusSuccess, results[2].Status)

	// ids continue across files
	assert.Equal([]int64{3}, results[2].VectorIDs)
	assert.Equal(4, store.Stats().TotalVectors)
}

func (suite *documentServiceTestSuite) TestBatchIngestCancelled() {
	svc, _ := suite.newService(true, true)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := svc.BatchIngestDocuments(ctx, suite.paths[:1], nil, nil)
	suite.Require().Len(results, 1)
	suite.Equal(StatusFailed, results[0].Status)
}

func TestDocumentServiceTestSuite(t *testing.T) {
	suite.Run(t, new(documentServiceTestSuite))
}

func TestChunkDocumentMetadata(t *testing.T) {
	assert := assert.New(t)

	svc, err := NewService(Config{ChunkSize: 20, ChunkOverlap: 0})
	require.NoError(t, err)

	doc := &Document{
		Pages: []Page{
			{Number: 1, Text: "first page text"},
			{Number: 3, Text: "third page has more text in it"},
		},
		Metadata: Metadata{"file_type": "pdf", "source": "a.pdf", "char_count": 99},
	}

	chunks, err := svc.ChunkDocument(doc, Metadata{"source": "override.pdf", "category": "manual"})
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	for i, c := range chunks {
		assert.Equal(i, c.Index)
		assert.Equal(i, c.Metadata["chunk_index"])
		assert.Equal(3, c.Metadata["total_chunks"])
		assert.Equal(len([]rune(c.Text)), c.Metadata["chunk_size"])
		assert.Equal("override.pdf", c.Metadata["source"])
		assert.Equal("manual", c.Metadata["category"])
		assert.NotContains(c.Metadata, "char_count")
	}

	assert.Equal(1, chunks[0].Metadata["page"])
	assert.Equal(3, chunks[1].Metadata["page"])
	assert.Equal(3, chunks[2].Metadata["page"])

	// the source document metadata is left alone
	assert.Equal(99, doc.Metadata["char_count"])
}

func TestNewServiceRejectsBadConfig(t *testing.T) {
	_, err := NewService(Config{ChunkSize: 50, ChunkOverlap: 50})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = NewService(Config{Strategy: "sentences"})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestPreview(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("a b c", Preview(" a\n b\tc ", 10))
	assert.Equal("向量检…", Preview("向量检索", 3))
	assert.Equal(strings.Repeat("x", 5)+"…", Preview(strings.Repeat("x", 9), 5))
}
