package ragblade

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/flarexio/ragblade/document"
	"github.com/flarexio/ragblade/embedding"
	"github.com/flarexio/ragblade/embedding/hashing"
	"github.com/flarexio/ragblade/llm"
	"github.com/flarexio/ragblade/persistence/bolt"
	"github.com/flarexio/ragblade/persistence/chromem"
	"github.com/flarexio/ragblade/record"
	"github.com/flarexio/ragblade/vector"
)

const (
	hrText  = "Employees must submit leave requests two weeks before the planned absence."
	engText = "Deployments run every Tuesday after the integration tests pass on the main branch."
)

type memorySnapshots struct {
	objects map[string][]byte
}

func (m *memorySnapshots) Upload(ctx context.Context, localPath string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}

	m.objects[filepath.Base(localPath)] = data
	return nil
}

func (m *memorySnapshots) Download(ctx context.Context, localPath string) error {
	data, ok := m.objects[filepath.Base(localPath)]
	if !ok {
		return errors.New("snapshot not found")
	}

	return os.WriteFile(localPath, data, 0644)
}

type ragbladeServiceTestSuite struct {
	suite.Suite
	dir       string
	embedder  *embedding.Service
	vectors   *vector.Service
	snapshots *memorySnapshots
	prompts   []string
	svc       Service
}

func (suite *ragbladeServiceTestSuite) SetupTest() {
	suite.dir = suite.T().TempDir()
	suite.prompts = nil

	suite.embedder = embedding.NewService(
		embedding.Config{Dimension: 384},
		embedding.StaticLoader(hashing.New(384)),
	)

	vectors, err := vector.NewService(vector.Config{
		Dimension:  384,
		Metric:     string(vector.MetricInnerProduct),
		IndexType:  string(vector.IndexTypeFlat),
		PersistDir: filepath.Join(suite.dir, "index"),
	})
	suite.Require().NoError(err)
	suite.vectors = vectors

	records, err := bolt.NewRecordStore(filepath.Join(suite.dir, "records.db"))
	suite.Require().NoError(err)

	catalog, err := chromem.NewCatalog(record.CatalogConfig{}, func(ctx context.Context, text string) ([]float32, error) {
		return suite.embedder.Embedding(ctx, text, true)
	})
	suite.Require().NoError(err)

	generator := llm.GeneratorFunc(func(ctx context.Context, system, prompt string) (string, error) {
		suite.prompts = append(suite.prompts, prompt)
		return "Two weeks ahead [1].", nil
	})

	suite.snapshots = &memorySnapshots{objects: make(map[string][]byte)}

	cfg := DefaultConfig()
	cfg.Scenes = map[string]Scene{
		"hr": {Name: "HR", Persona: "You are the HR assistant."},
	}

	svc, err := NewService(context.Background(), cfg,
		WithEmbedding(suite.embedder),
		WithVectorService(vectors),
		WithGenerator(generator),
		WithRecordStore(records),
		WithCatalog(catalog),
		WithSnapshotStore(suite.snapshots),
	)
	suite.Require().NoError(err)

	suite.svc = svc
}

func (suite *ragbladeServiceTestSuite) TearDownTest() {
	suite.svc.Close()
}

func (suite *ragbladeServiceTestSuite) write(name, text string) string {
	path := filepath.Join(suite.dir, name)
	suite.Require().NoError(os.WriteFile(path, []byte(text), 0644))
	return path
}

func (suite *ragbladeServiceTestSuite) ingestBoth() (*IngestResult, *IngestResult) {
	ctx := context.Background()

	hr, err := suite.svc.Ingest(ctx, suite.write("leave.txt", hrText), IngestOptions{SceneID: "hr", Category: "policy"})
	suite.Require().NoError(err)

	eng, err := suite.svc.Ingest(ctx, suite.write("deploy.txt", engText), IngestOptions{SceneID: "eng"})
	suite.Require().NoError(err)

	return hr, eng
}

func (suite *ragbladeServiceTestSuite) TestIngest() {
	assert := suite.Assert()

	hr, _ := suite.ingestBoth()

	assert.NoError(record.Record{ID: hr.DocID}.Validate())
	assert.Equal(document.StatusSuccess, hr.Status)
	assert.Equal(1, hr.ChunkCount)
	assert.Equal([]int64{0}, hr.VectorIDs)

	records, err := suite.svc.ListDocuments(context.Background(), record.Filter{SceneID: "hr"})
	suite.Require().NoError(err)
	suite.Require().Len(records, 1)

	r := records[0]
	assert.Equal(hr.DocID, r.ID)
	assert.Equal("leave.txt", r.Filename)
	assert.Equal("policy", r.Category)
	assert.Equal("text", r.Metadata["file_type"])
	assert.Equal(hrText, r.ContentPreview)
}

func (suite *ragbladeServiceTestSuite) TestIngestMissingFile() {
	result, err := suite.svc.Ingest(context.Background(), filepath.Join(suite.dir, "nope.txt"), IngestOptions{})
	suite.ErrorIs(err, document.ErrNotFound)
	suite.Equal(document.StatusFailed, result.Status)

	records, err := suite.svc.ListDocuments(context.Background(), record.Filter{})
	suite.Require().NoError(err)
	suite.Empty(records)
}

func (suite *ragbladeServiceTestSuite) TestBatchIngest() {
	assert := suite.Assert()

	paths := []string{
		suite.write("a.txt", hrText),
		filepath.Join(suite.dir, "missing.md"),
		suite.write("b.txt", engText),
	}

	results, err := suite.svc.BatchIngest(context.Background(), paths, IngestOptions{})
	suite.Require().NoError(err)
	suite.Require().Len(results, 3)

	assert.Equal(document.StatusSuccess, results[0].Status)
	assert.Equal(document.StatusFailed, results[1].Status)
	assert.NotEmpty(results[1].Error)
	assert.Equal(document.StatusSuccess, results[2].Status)
	assert.NotEqual(results[0].DocID, results[2].DocID)
}

type failingRecords struct {
	record.Store
}

func (failingRecords) Put(ctx context.Context, r record.Record) error {
	return errors.New("disk full")
}

func (suite *ragbladeServiceTestSuite) TestBatchIngestRecordFailure() {
	assert := suite.Assert()
	ctx := context.Background()

	records, err := bolt.NewRecordStore(filepath.Join(suite.dir, "failing.db"))
	suite.Require().NoError(err)

	svc, err := NewService(ctx, DefaultConfig(),
		WithEmbedding(suite.embedder),
		WithVectorService(suite.vectors),
		WithRecordStore(failingRecords{records}),
	)
	suite.Require().NoError(err)
	defer svc.Close()

	results, err := svc.BatchIngest(ctx, []string{suite.write("a.txt", hrText)}, IngestOptions{})
	suite.Require().NoError(err)
	suite.Require().Len(results, 1)

	r := results[0]
	assert.Equal(document.StatusFailed, r.Status)
	assert.Contains(r.Error, "disk full")
	assert.Empty(r.VectorIDs)

	// the orphaned vectors are tombstoned
	assert.Equal(1, suite.vectors.Stats().RemovedCount)

	_, err = svc.Ingest(ctx, suite.write("b.txt", engText), IngestOptions{})
	assert.ErrorContains(err, "disk full")
}

func (suite *ragbladeServiceTestSuite) TestRetrieve() {
	assert := suite.Assert()
	ctx := context.Background()

	hr, eng := suite.ingestBoth()

	result, err := suite.svc.Retrieve(ctx, RetrieveQuery{Query: hrText, TopK: 1})
	suite.Require().NoError(err)
	suite.Require().Len(result.Documents, 1)

	doc := result.Documents[0]
	assert.Equal(RetrieveSuccess, result.Status)
	assert.Equal(hrText, doc.Content)
	assert.Equal("leave.txt", doc.Source)
	assert.Equal(hr.DocID, doc.DocID)
	assert.Equal("hr", doc.SceneID)
	assert.Equal(0, doc.ChunkIndex)
	assert.InDelta(1.0, doc.Score, 1e-4)

	// the scene filter wins over similarity
	anything := float32(-1)
	result, err = suite.svc.Retrieve(ctx, RetrieveQuery{
		Query:          hrText,
		SceneID:        "eng",
		ScoreThreshold: &anything,
	})
	suite.Require().NoError(err)
	suite.Require().Len(result.Documents, 1)
	assert.Equal(eng.DocID, result.Documents[0].DocID)

	strict := float32(0.99)
	result, err = suite.svc.Retrieve(ctx, RetrieveQuery{
		Query:          hrText,
		ScoreThreshold: &strict,
	})
	suite.Require().NoError(err)
	suite.Require().Len(result.Documents, 1)
	assert.Equal(hr.DocID, result.Documents[0].DocID)

	_, err = suite.svc.Retrieve(ctx, RetrieveQuery{Query: "  "})
	assert.ErrorIs(err, ErrEmptyQuery)
}

func (suite *ragbladeServiceTestSuite) TestRemoveDocument() {
	assert := suite.Assert()
	ctx := context.Background()

	hr, eng := suite.ingestBoth()

	removed, err := suite.svc.RemoveDocument(ctx, hr.DocID)
	suite.Require().NoError(err)
	assert.Equal(1, removed)

	anything := float32(-1)
	result, err := suite.svc.Retrieve(ctx, RetrieveQuery{Query: hrText, ScoreThreshold: &anything})
	suite.Require().NoError(err)
	suite.Require().Len(result.Documents, 1)
	assert.Equal(eng.DocID, result.Documents[0].DocID)

	records, err := suite.svc.ListDocuments(ctx, record.Filter{})
	suite.Require().NoError(err)
	assert.Len(records, 1)

	_, err = suite.svc.RemoveDocument(ctx, hr.DocID)
	assert.ErrorIs(err, record.ErrRecordNotFound)

	stats, err := suite.svc.Stats(ctx)
	suite.Require().NoError(err)
	assert.Equal(1, stats.Vectors.RemovedCount)
	assert.Equal(1, stats.Documents)
}

func (suite *ragbladeServiceTestSuite) TestGenerate() {
	assert := suite.Assert()

	suite.ingestBoth()

	req := GenerateRequest{
		RetrieveQuery: RetrieveQuery{Query: hrText, SceneID: "hr"},
		History: []Turn{
			{User: "hello", Assistant: "Hi, how can I help?"},
		},
	}

	answer, err := suite.svc.Generate(context.Background(), req)
	suite.Require().NoError(err)

	assert.Equal("Two weeks ahead [1].", answer.Answer)
	suite.Require().Len(answer.Sources, 1)
	assert.Equal(1, answer.Sources[0].Index)
	assert.Equal("leave.txt", answer.Sources[0].Source)

	suite.Require().Len(suite.prompts, 1)
	assert.Contains(suite.prompts[0], "User: hello\n")
	assert.Contains(suite.prompts[0], "[1] (source: leave.txt)\n"+hrText)
}

func (suite *ragbladeServiceTestSuite) TestSearchDocuments() {
	assert := suite.Assert()
	ctx := context.Background()

	_, eng := suite.ingestBoth()

	hits, err := suite.svc.SearchDocuments(ctx, "deployments every Tuesday", 1)
	suite.Require().NoError(err)
	suite.Require().Len(hits, 1)

	assert.Equal(eng.DocID, hits[0].ID)
	assert.Equal("deploy.txt", hits[0].Filename)

	_, err = suite.svc.SearchDocuments(ctx, "", 1)
	assert.ErrorIs(err, ErrEmptyQuery)
}

func (suite *ragbladeServiceTestSuite) TestSaveAndLoad() {
	assert := suite.Assert()
	ctx := context.Background()

	suite.ingestBoth()

	suite.Require().NoError(suite.svc.Save(ctx))
	assert.Len(suite.snapshots.objects, 2)

	indexPath, metadataPath, err := suite.vectors.Paths("", "")
	suite.Require().NoError(err)
	suite.Require().NoError(os.Remove(indexPath))
	suite.Require().NoError(os.Remove(metadataPath))

	suite.vectors.Clear()
	assert.Equal(0, suite.vectors.Stats().TotalVectors)

	suite.Require().NoError(suite.svc.Load(ctx))
	assert.FileExists(indexPath)
	assert.Equal(2, suite.vectors.Stats().TotalVectors)

	// page and chunk index survive the JSON round trip
	result, err := suite.svc.Retrieve(ctx, RetrieveQuery{Query: engText, TopK: 1})
	suite.Require().NoError(err)
	suite.Require().Len(result.Documents, 1)
	assert.Equal("deploy.txt", result.Documents[0].Source)
	assert.Equal(0, result.Documents[0].ChunkIndex)
}

func (suite *ragbladeServiceTestSuite) TestStats() {
	assert := suite.Assert()

	suite.ingestBoth()

	stats, err := suite.svc.Stats(context.Background())
	suite.Require().NoError(err)

	assert.Equal(2, stats.Vectors.TotalVectors)
	assert.Equal(384, stats.Vectors.Dimension)
	assert.Equal(2, stats.Documents)
	assert.NotNil(stats.Cache)
	assert.Equal("func", stats.LLM)
}

func TestRagbladeServiceTestSuite(t *testing.T) {
	suite.Run(t, new(ragbladeServiceTestSuite))
}

func TestServiceWithoutComponents(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	svc, err := NewService(ctx, DefaultConfig())
	if err != nil {
		assert.Fail(err.Error())
		return
	}
	defer svc.Close()

	result, err := svc.Retrieve(ctx, RetrieveQuery{Query: "anything"})
	assert.NoError(err)
	assert.Equal(RetrieveError, result.Status)
	assert.Empty(result.Documents)
	assert.NotEmpty(result.Message)

	_, err = svc.Generate(ctx, GenerateRequest{RetrieveQuery: RetrieveQuery{Query: "anything"}})
	assert.ErrorIs(err, ErrNoLLMConfigured)

	_, err = svc.ListDocuments(ctx, record.Filter{})
	assert.ErrorIs(err, ErrRecordStoreNotSet)

	_, err = svc.SearchDocuments(ctx, "anything", 3)
	assert.ErrorIs(err, ErrCatalogNotSet)

	assert.ErrorIs(svc.Save(ctx), ErrVectorServiceNotSet)
}
