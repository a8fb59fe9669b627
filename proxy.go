package ragblade

import (
	"context"

	"github.com/flarexio/ragblade/record"
)

// ProxyMiddleware turns a set of remote endpoints into a Service.
func ProxyMiddleware(endpoints *EndpointSet) ServiceMiddleware {
	return func(next Service) Service {
		return &proxyMiddleware{
			endpoints: endpoints,
		}
	}
}

type proxyMiddleware struct {
	endpoints *EndpointSet
}

func (mw *proxyMiddleware) Close() error {
	return ErrUnsupportedMethod
}

func (mw *proxyMiddleware) Ingest(ctx context.Context, path string, opts IngestOptions) (*IngestResult, error) {
	req := IngestRequest{
		Path:          path,
		IngestOptions: opts,
	}

	resp, err := mw.endpoints.Ingest(ctx, req)
	if err != nil {
		return nil, err
	}

	result, ok := resp.(*IngestResult)
	if !ok {
		return nil, ErrInvalidResponseType
	}

	return result, nil
}

func (mw *proxyMiddleware) BatchIngest(ctx context.Context, paths []string, opts IngestOptions) ([]*IngestResult, error) {
	req := BatchIngestRequest{
		Paths:         paths,
		IngestOptions: opts,
	}

	resp, err := mw.endpoints.BatchIngest(ctx, req)
	if err != nil {
		return nil, err
	}

	results, ok := resp.([]*IngestResult)
	if !ok {
		return nil, ErrInvalidResponseType
	}

	return results, nil
}

func (mw *proxyMiddleware) Retrieve(ctx context.Context, query RetrieveQuery) (*RetrieveResult, error) {
	resp, err := mw.endpoints.Retrieve(ctx, query)
	if err != nil {
		return nil, err
	}

	result, ok := resp.(*RetrieveResult)
	if !ok {
		return nil, ErrInvalidResponseType
	}

	return result, nil
}

func (mw *proxyMiddleware) Generate(ctx context.Context, req GenerateRequest) (*Answer, error) {
	resp, err := mw.endpoints.Generate(ctx, req)
	if err != nil {
		return nil, err
	}

	answer, ok := resp.(*Answer)
	if !ok {
		return nil, ErrInvalidResponseType
	}

	return answer, nil
}

func (mw *proxyMiddleware) RemoveDocument(ctx context.Context, id string) (int, error) {
	resp, err := mw.endpoints.RemoveDocument(ctx, id)
	if err != nil {
		return 0, err
	}

	result, ok := resp.(*RemoveDocumentResponse)
	if !ok {
		return 0, ErrInvalidResponseType
	}

	return result.Removed, nil
}

func (mw *proxyMiddleware) ListDocuments(ctx context.Context, filter record.Filter) ([]record.Record, error) {
	resp, err := mw.endpoints.ListDocuments(ctx, filter)
	if err != nil {
		return nil, err
	}

	records, ok := resp.([]record.Record)
	if !ok {
		return nil, ErrInvalidResponseType
	}

	return records, nil
}

func (mw *proxyMiddleware) SearchDocuments(ctx context.Context, query string, k int) ([]record.Hit, error) {
	req := SearchDocumentsRequest{
		Query: query,
		K:     k,
	}

	resp, err := mw.endpoints.SearchDocuments(ctx, req)
	if err != nil {
		return nil, err
	}

	hits, ok := resp.([]record.Hit)
	if !ok {
		return nil, ErrInvalidResponseType
	}

	return hits, nil
}

func (mw *proxyMiddleware) Stats(ctx context.Context) (*Stats, error) {
	resp, err := mw.endpoints.Stats(ctx, nil)
	if err != nil {
		return nil, err
	}

	stats, ok := resp.(*Stats)
	if !ok {
		return nil, ErrInvalidResponseType
	}

	return stats, nil
}

func (mw *proxyMiddleware) Save(ctx context.Context) error {
	_, err := mw.endpoints.Save(ctx, nil)
	return err
}

func (mw *proxyMiddleware) Load(ctx context.Context) error {
	_, err := mw.endpoints.Load(ctx, nil)
	return err
}
