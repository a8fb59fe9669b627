package nats

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-kit/kit/endpoint"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/micro"

	"github.com/flarexio/ragblade"
	"github.com/flarexio/ragblade/record"
)

// RequestTimeout bounds a request whose context carries no deadline.
var RequestTimeout = 2 * time.Minute

func MakeEndpoints(nc *nats.Conn, prefix string) *ragblade.EndpointSet {
	return &ragblade.EndpointSet{
		Ingest:          IngestEndpoint(nc, prefix+".ingest"),
		BatchIngest:     BatchIngestEndpoint(nc, prefix+".batch_ingest"),
		Retrieve:        RetrieveEndpoint(nc, prefix+".retrieve"),
		Generate:        GenerateEndpoint(nc, prefix+".generate"),
		RemoveDocument:  RemoveDocumentEndpoint(nc, prefix+".remove_document"),
		ListDocuments:   ListDocumentsEndpoint(nc, prefix+".list_documents"),
		SearchDocuments: SearchDocumentsEndpoint(nc, prefix+".search_documents"),
		Stats:           StatsEndpoint(nc, prefix+".stats"),
		Save:            CommandEndpoint(nc, prefix+".save"),
		Load:            CommandEndpoint(nc, prefix+".load"),
	}
}

func requestMsg(ctx context.Context, nc *nats.Conn, topic string, data []byte) (*nats.Msg, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, RequestTimeout)
		defer cancel()
	}

	resp, err := nc.RequestWithContext(ctx, topic, data)
	if err != nil {
		return nil, err
	}

	if err := Error(resp); err != nil {
		return nil, err
	}

	return resp, nil
}

func IngestEndpoint(nc *nats.Conn, topic string) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(ragblade.IngestRequest)
		if !ok {
			return nil, ragblade.ErrInvalidRequestType
		}

		data, err := json.Marshal(&req)
		if err != nil {
			return nil, err
		}

		resp, err := requestMsg(ctx, nc, topic, data)
		if err != nil {
			return nil, err
		}

		var result *ragblade.IngestResult
		if err := json.Unmarshal(resp.Data, &result); err != nil {
			return nil, err
		}

		return result, nil
	}
}

func BatchIngestEndpoint(nc *nats.Conn, topic string) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(ragblade.BatchIngestRequest)
		if !ok {
			return nil, ragblade.ErrInvalidRequestType
		}

		data, err := json.Marshal(&req)
		if err != nil {
			return nil, err
		}

		resp, err := requestMsg(ctx, nc, topic, data)
		if err != nil {
			return nil, err
		}

		var results []*ragblade.IngestResult
		if err := json.Unmarshal(resp.Data, &results); err != nil {
			return nil, err
		}

		return results, nil
	}
}

func RetrieveEndpoint(nc *nats.Conn, topic string) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(ragblade.RetrieveRequest)
		if !ok {
			return nil, ragblade.ErrInvalidRequestType
		}

		data, err := json.Marshal(&req)
		if err != nil {
			return nil, err
		}

		resp, err := requestMsg(ctx, nc, topic, data)
		if err != nil {
			return nil, err
		}

		var result *ragblade.RetrieveResult
		if err := json.Unmarshal(resp.Data, &result); err != nil {
			return nil, err
		}

		return result, nil
	}
}

func GenerateEndpoint(nc *nats.Conn, topic string) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(ragblade.GenerateRequest)
		if !ok {
			return nil, ragblade.ErrInvalidRequestType
		}

		data, err := json.Marshal(&req)
		if err != nil {
			return nil, err
		}

		resp, err := requestMsg(ctx, nc, topic, data)
		if err != nil {
			return nil, err
		}

		var answer *ragblade.Answer
		if err := json.Unmarshal(resp.Data, &answer); err != nil {
			return nil, err
		}

		return answer, nil
	}
}

func RemoveDocumentEndpoint(nc *nats.Conn, topic string) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		docID, ok := request.(string)
		if !ok {
			return nil, ragblade.ErrInvalidRequestType
		}

		resp, err := requestMsg(ctx, nc, topic, []byte(docID))
		if err != nil {
			return nil, err
		}

		var result *ragblade.RemoveDocumentResponse
		if err := json.Unmarshal(resp.Data, &result); err != nil {
			return nil, err
		}

		return result, nil
	}
}

func ListDocumentsEndpoint(nc *nats.Conn, topic string) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(ragblade.ListDocumentsRequest)
		if !ok {
			return nil, ragblade.ErrInvalidRequestType
		}

		data, err := json.Marshal(&req)
		if err != nil {
			return nil, err
		}

		resp, err := requestMsg(ctx, nc, topic, data)
		if err != nil {
			return nil, err
		}

		var records []record.Record
		if err := json.Unmarshal(resp.Data, &records); err != nil {
			return nil, err
		}

		return records, nil
	}
}

func SearchDocumentsEndpoint(nc *nats.Conn, topic string) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(ragblade.SearchDocumentsRequest)
		if !ok {
			return nil, ragblade.ErrInvalidRequestType
		}

		data, err := json.Marshal(&req)
		if err != nil {
			return nil, err
		}

		resp, err := requestMsg(ctx, nc, topic, data)
		if err != nil {
			return nil, err
		}

		var hits []record.Hit
		if err := json.Unmarshal(resp.Data, &hits); err != nil {
			return nil, err
		}

		return hits, nil
	}
}

func StatsEndpoint(nc *nats.Conn, topic string) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		resp, err := requestMsg(ctx, nc, topic, nil)
		if err != nil {
			return nil, err
		}

		var stats *ragblade.Stats
		if err := json.Unmarshal(resp.Data, &stats); err != nil {
			return nil, err
		}

		return stats, nil
	}
}

// CommandEndpoint calls an operation that takes no input and replies OK.
func CommandEndpoint(nc *nats.Conn, topic string) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		_, err := requestMsg(ctx, nc, topic, nil)
		return nil, err
	}
}

func Error(msg *nats.Msg) error {
	if msg == nil {
		return errors.New("nil message")
	}

	code := msg.Header.Get(micro.ErrorCodeHeader)
	if code == "" {
		return nil
	}

	description := msg.Header.Get(micro.ErrorHeader)
	if description == "" {
		description = "unknown error"
	}

	return errors.New(code + ":" + description)
}
