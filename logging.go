package ragblade

import (
	"context"

	"go.uber.org/zap"

	"github.com/flarexio/ragblade/record"
)

func LoggingMiddleware(log *zap.Logger) ServiceMiddleware {
	log = log.With(
		zap.String("service", "ragblade"),
	)

	return func(next Service) Service {
		log.Info("service initialized")

		return &loggingMiddleware{
			log:  log,
			next: next,
		}
	}
}

type loggingMiddleware struct {
	log  *zap.Logger
	next Service
}

func (mw *loggingMiddleware) Close() error {
	log := mw.log.With(
		zap.String("action", "close"),
	)

	err := mw.next.Close()
	if err != nil {
		log.Error(err.Error())
		return err
	}

	log.Info("service closed")
	return nil
}

func (mw *loggingMiddleware) Ingest(ctx context.Context, path string, opts IngestOptions) (*IngestResult, error) {
	log := mw.log.With(
		zap.String("action", "ingest"),
		zap.String("path", path),
		zap.String("scene_id", opts.SceneID),
	)

	result, err := mw.next.Ingest(ctx, path, opts)
	if err != nil {
		log.Error(err.Error())
		return result, err
	}

	log.Info("document ingested",
		zap.String("doc_id", result.DocID),
		zap.String("status", string(result.Status)),
		zap.Int("chunks", result.ChunkCount),
	)
	return result, nil
}

func (mw *loggingMiddleware) BatchIngest(ctx context.Context, paths []string, opts IngestOptions) ([]*IngestResult, error) {
	log := mw.log.With(
		zap.String("action", "batch_ingest"),
		zap.Int("files", len(paths)),
		zap.String("scene_id", opts.SceneID),
	)

	results, err := mw.next.BatchIngest(ctx, paths, opts)
	if err != nil {
		log.Error(err.Error())
		return results, err
	}

	counts := make(map[string]int)
	for _, r := range results {
		if r.IngestResult != nil {
			counts[string(r.Status)]++
		}
	}

	log.Info("batch ingested", zap.Any("status", counts))
	return results, nil
}

func (mw *loggingMiddleware) Retrieve(ctx context.Context, query RetrieveQuery) (*RetrieveResult, error) {
	log := mw.log.With(
		zap.String("action", "retrieve"),
		zap.String("query", query.Query),
		zap.String("scene_id", query.SceneID),
		zap.Int("top_k", query.TopK),
	)

	result, err := mw.next.Retrieve(ctx, query)
	if err != nil {
		log.Error(err.Error())
		return nil, err
	}

	if result.Status == RetrieveError {
		log.Warn(result.Message)
		return result, nil
	}

	log.Info("chunks retrieved", zap.Int("count", len(result.Documents)))
	return result, nil
}

func (mw *loggingMiddleware) Generate(ctx context.Context, req GenerateRequest) (*Answer, error) {
	log := mw.log.With(
		zap.String("action", "generate"),
		zap.String("query", req.Query),
		zap.String("scene_id", req.SceneID),
		zap.Int("history", len(req.History)),
	)

	answer, err := mw.next.Generate(ctx, req)
	if err != nil {
		log.Error(err.Error())
		return nil, err
	}

	log.Info("answer generated", zap.Int("sources", len(answer.Sources)))
	return answer, nil
}

func (mw *loggingMiddleware) RemoveDocument(ctx context.Context, id string) (int, error) {
	log := mw.log.With(
		zap.String("action", "remove_document"),
		zap.String("doc_id", id),
	)

	removed, err := mw.next.RemoveDocument(ctx, id)
	if err != nil {
		log.Error(err.Error())
		return removed, err
	}

	log.Info("document removed", zap.Int("vectors", removed))
	return removed, nil
}

func (mw *loggingMiddleware) ListDocuments(ctx context.Context, filter record.Filter) ([]record.Record, error) {
	log := mw.log.With(
		zap.String("action", "list_documents"),
		zap.String("scene_id", filter.SceneID),
		zap.String("category", filter.Category),
	)

	records, err := mw.next.ListDocuments(ctx, filter)
	if err != nil {
		log.Error(err.Error())
		return nil, err
	}

	log.Debug("documents listed", zap.Int("count", len(records)))
	return records, nil
}

func (mw *loggingMiddleware) SearchDocuments(ctx context.Context, query string, k int) ([]record.Hit, error) {
	log := mw.log.With(
		zap.String("action", "search_documents"),
		zap.String("query", query),
		zap.Int("k", k),
	)

	hits, err := mw.next.SearchDocuments(ctx, query, k)
	if err != nil {
		log.Error(err.Error())
		return nil, err
	}

	log.Info("documents found", zap.Int("count", len(hits)))
	return hits, nil
}

func (mw *loggingMiddleware) Stats(ctx context.Context) (*Stats, error) {
	stats, err := mw.next.Stats(ctx)
	if err != nil {
		mw.log.Error(err.Error(), zap.String("action", "stats"))
		return nil, err
	}

	return stats, nil
}

func (mw *loggingMiddleware) Save(ctx context.Context) error {
	log := mw.log.With(
		zap.String("action", "save"),
	)

	err := mw.next.Save(ctx)
	if err != nil {
		log.Error(err.Error())
		return err
	}

	log.Info("index saved")
	return nil
}

func (mw *loggingMiddleware) Load(ctx context.Context) error {
	log := mw.log.With(
		zap.String("action", "load"),
	)

	err := mw.next.Load(ctx)
	if err != nil {
		log.Error(err.Error())
		return err
	}

	log.Info("index loaded")
	return nil
}
