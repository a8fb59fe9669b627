package ragblade

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gopkg.in/yaml.v3"
)

func TestConfigYAMLUnmarshal(t *testing.T) {
	assert := assert.New(t)

	input := `embedding:
  model: hashing
  dimension: 256
vector:
  index_type: hnsw
  metric: L2
  persist_dir: /var/lib/ragblade
document:
  chunk_size: 300
  chunk_overlap: 30
llm:
  provider: anthropic
  model: claude-haiku-4-5
retrieval:
  top_k: 8
  score_threshold: 0.25
  timeout: 45s
scenes:
  hr:
    name: Human Resources
    persona: You answer questions about company policy.
auto_save: 5m`

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(input), &cfg); err != nil {
		assert.Fail(err.Error())
		return
	}

	assert.Equal(256, cfg.Embedding.Dimension)
	assert.Equal(32, cfg.Embedding.BatchSize, "defaults survive a partial file")
	assert.Equal("hnsw", cfg.Vector.IndexType)
	assert.Equal("L2", cfg.Vector.Metric)
	assert.Equal(300, cfg.Document.ChunkSize)
	assert.Equal("anthropic", cfg.LLM.Provider)
	assert.Equal(1024, cfg.LLM.MaxTokens)
	assert.Equal(8, cfg.Retrieval.TopK)
	assert.InDelta(0.25, cfg.Retrieval.ScoreThreshold, 1e-6)
	assert.Equal(45*time.Second, cfg.Retrieval.Timeout.Duration())
	assert.Equal("Human Resources", cfg.Scenes["hr"].Name)
	assert.Equal(5*time.Minute, cfg.AutoSave.Duration())
}

func TestDurationJSON(t *testing.T) {
	assert := assert.New(t)

	bs, err := json.Marshal(Duration(90 * time.Second))
	assert.NoError(err)
	assert.Equal(`"1m30s"`, string(bs))

	var d Duration
	assert.NoError(json.Unmarshal([]byte(`"250ms"`), &d))
	assert.Equal(250*time.Millisecond, d.Duration())

	assert.Error(json.Unmarshal([]byte(`"soon"`), &d))
}

func TestIngestResultJSON(t *testing.T) {
	assert := assert.New(t)

	input := `{"doc_id":"abc","path":"a.txt","status":"success","chunk_count":2,"vector_ids":[4,5]}`

	var result IngestResult
	if err := json.Unmarshal([]byte(input), &result); err != nil {
		assert.Fail(err.Error())
		return
	}

	assert.Equal("abc", result.DocID)
	assert.Equal("a.txt", result.Path)
	assert.Equal([]int64{4, 5}, result.VectorIDs)
}
