package ragblade

import (
	"context"

	"github.com/go-kit/kit/endpoint"

	"github.com/flarexio/ragblade/record"
)

type EndpointSet struct {
	Ingest          endpoint.Endpoint
	BatchIngest     endpoint.Endpoint
	Retrieve        endpoint.Endpoint
	Generate        endpoint.Endpoint
	RemoveDocument  endpoint.Endpoint
	ListDocuments   endpoint.Endpoint
	SearchDocuments endpoint.Endpoint
	Stats           endpoint.Endpoint
	Save            endpoint.Endpoint
	Load            endpoint.Endpoint
}

func MakeEndpoints(svc Service) *EndpointSet {
	return &EndpointSet{
		Ingest:          IngestEndpoint(svc),
		BatchIngest:     BatchIngestEndpoint(svc),
		Retrieve:        RetrieveEndpoint(svc),
		Generate:        GenerateEndpoint(svc),
		RemoveDocument:  RemoveDocumentEndpoint(svc),
		ListDocuments:   ListDocumentsEndpoint(svc),
		SearchDocuments: SearchDocumentsEndpoint(svc),
		Stats:           StatsEndpoint(svc),
		Save:            SaveEndpoint(svc),
		Load:            LoadEndpoint(svc),
	}
}

type IngestRequest struct {
	Path string `json:"path" binding:"required"`
	IngestOptions
}

func IngestEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(IngestRequest)
		if !ok {
			return nil, ErrInvalidRequestType
		}

		return svc.Ingest(ctx, req.Path, req.IngestOptions)
	}
}

type BatchIngestRequest struct {
	Paths []string `json:"paths" binding:"required"`
	IngestOptions
}

func BatchIngestEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(BatchIngestRequest)
		if !ok {
			return nil, ErrInvalidRequestType
		}

		return svc.BatchIngest(ctx, req.Paths, req.IngestOptions)
	}
}

type RetrieveRequest = RetrieveQuery

func RetrieveEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(RetrieveRequest)
		if !ok {
			return nil, ErrInvalidRequestType
		}

		return svc.Retrieve(ctx, req)
	}
}

func GenerateEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(GenerateRequest)
		if !ok {
			return nil, ErrInvalidRequestType
		}

		return svc.Generate(ctx, req)
	}
}

type RemoveDocumentResponse struct {
	DocID   string `json:"doc_id"`
	Removed int    `json:"removed"`
}

func RemoveDocumentEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		id, ok := request.(string)
		if !ok {
			return nil, ErrInvalidRequestType
		}

		removed, err := svc.RemoveDocument(ctx, id)
		if err != nil {
			return nil, err
		}

		return &RemoveDocumentResponse{id, removed}, nil
	}
}

type ListDocumentsRequest = record.Filter

func ListDocumentsEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(ListDocumentsRequest)
		if !ok {
			return nil, ErrInvalidRequestType
		}

		return svc.ListDocuments(ctx, req)
	}
}

type SearchDocumentsRequest struct {
	Query string `json:"query" form:"query" binding:"required"`
	K     int    `json:"k,omitempty" form:"k"`
}

func SearchDocumentsEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(SearchDocumentsRequest)
		if !ok {
			return nil, ErrInvalidRequestType
		}

		return svc.SearchDocuments(ctx, req.Query, req.K)
	}
}

func StatsEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		return svc.Stats(ctx)
	}
}

func SaveEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		return nil, svc.Save(ctx)
	}
}

func LoadEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		return nil, svc.Load(ctx)
	}
}
