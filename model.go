package ragblade

import (
	"encoding/json"
	"errors"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flarexio/ragblade/document"
	"github.com/flarexio/ragblade/embedding"
	"github.com/flarexio/ragblade/llm"
	"github.com/flarexio/ragblade/record"
	"github.com/flarexio/ragblade/vector"
)

var (
	ErrNoLLMConfigured     = errors.New("no llm configured")
	ErrVectorServiceNotSet = errors.New("vector service not set")
	ErrRecordStoreNotSet   = errors.New("record store not set")
	ErrCatalogNotSet       = errors.New("document catalog not set")
	ErrEmptyQuery          = errors.New("empty query")
	ErrUnsupportedMethod   = errors.New("method not implemented")
	ErrInvalidRequestType  = errors.New("invalid request type")
	ErrInvalidResponseType = errors.New("invalid response type")
)

type Config struct {
	Embedding embedding.Config     `yaml:"embedding"`
	Vector    vector.Config        `yaml:"vector"`
	Document  document.Config      `yaml:"document"`
	LLM       llm.Config           `yaml:"llm"`
	Retrieval RetrievalConfig      `yaml:"retrieval"`
	Scenes    map[string]Scene     `yaml:"scenes"`
	Records   record.StoreConfig   `yaml:"records"`
	Catalog   record.CatalogConfig `yaml:"catalog"`
	Snapshot  SnapshotConfig       `yaml:"snapshot"`

	// AutoSave persists the index periodically while it has unsaved
	// changes. Zero disables it.
	AutoSave Duration `yaml:"auto_save"`
}

func DefaultConfig() Config {
	return Config{
		Embedding: embedding.DefaultConfig(),
		Vector:    vector.DefaultConfig(),
		Document:  document.DefaultConfig(),
		LLM: llm.Config{
			MaxTokens:   1024,
			Temperature: 0.2,
		},
		Retrieval: RetrievalConfig{
			TopK: 5,
		},
		Records: record.StoreConfig{
			Enabled: true,
		},
		Catalog: record.CatalogConfig{
			Enabled:    true,
			Persistent: true,
			Collection: "documents",
		},
	}
}

type RetrievalConfig struct {
	TopK           int      `yaml:"top_k"`
	ScoreThreshold float32  `yaml:"score_threshold"`
	Timeout        Duration `yaml:"timeout"`
}

// Scene partitions the knowledge base by topic and gives the assistant
// a persona for it.
type Scene struct {
	Name    string `json:"name" yaml:"name"`
	Persona string `json:"persona" yaml:"persona"`
}

const DefaultPersona = "You are a knowledgeable assistant that answers questions using a curated knowledge base."

type SnapshotConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Endpoint     string `yaml:"endpoint"`
	Bucket       string `yaml:"bucket"`
	Prefix       string `yaml:"prefix"`
	AccessKeyEnv string `yaml:"access_key_env"`
	SecretKeyEnv string `yaml:"secret_key_env"`
	Secure       bool   `yaml:"secure"`
}

type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	str := d.Duration().String()
	return json.Marshal(str)
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}

	duration, err := time.ParseDuration(str)
	if err != nil {
		return err
	}

	*d = Duration(duration)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return d.Duration().String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var str string
	if err := value.Decode(&str); err != nil {
		return err
	}

	duration, err := time.ParseDuration(str)
	if err != nil {
		return err
	}

	*d = Duration(duration)
	return nil
}

type IngestOptions struct {
	SceneID  string         `json:"scene_id,omitempty"`
	Category string         `json:"category,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// IngestResult is the pipeline result plus the id of the record kept
// for the document.
type IngestResult struct {
	DocID string `json:"doc_id,omitempty"`
	*document.IngestResult
}

type RetrieveQuery struct {
	Query          string   `json:"query" form:"query"`
	SceneID        string   `json:"scene_id,omitempty" form:"scene_id"`
	TopK           int      `json:"top_k,omitempty" form:"top_k"`
	ScoreThreshold *float32 `json:"score_threshold,omitempty" form:"score_threshold"`
}

type RetrieveStatus string

const (
	RetrieveSuccess RetrieveStatus = "success"
	RetrieveError   RetrieveStatus = "error"
)

type RetrievedDoc struct {
	ID         int64   `json:"id"`
	Content    string  `json:"content"`
	Score      float32 `json:"score"`
	Source     string  `json:"source"`
	Page       int     `json:"page,omitempty"`
	ChunkIndex int     `json:"chunk_index"`
	DocID      string  `json:"doc_id,omitempty"`
	SceneID    string  `json:"scene_id,omitempty"`
}

type RetrieveResult struct {
	Status    RetrieveStatus `json:"status"`
	Query     string         `json:"query"`
	SceneID   string         `json:"scene_id,omitempty"`
	Documents []RetrievedDoc `json:"documents"`
	Message   string         `json:"message,omitempty"`
}

// Turn is one exchange of a conversation.
type Turn struct {
	User      string `json:"user"`
	Assistant string `json:"assistant"`
}

type GenerateRequest struct {
	RetrieveQuery
	History []Turn `json:"history,omitempty"`
}

type Source struct {
	Index  int     `json:"index"`
	Source string  `json:"source"`
	Page   int     `json:"page,omitempty"`
	Score  float32 `json:"score"`
}

type Answer struct {
	Answer    string         `json:"answer"`
	Sources   []Source       `json:"sources"`
	Documents []RetrievedDoc `json:"documents,omitempty"`
}

type Stats struct {
	Vectors   *vector.Stats         `json:"vectors,omitempty"`
	Cache     *embedding.CacheStats `json:"cache,omitempty"`
	Documents int                   `json:"documents"`
	LLM       string                `json:"llm,omitempty"`
}
