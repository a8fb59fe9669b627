package nats

import (
	"github.com/nats-io/nats.go/micro"

	"github.com/flarexio/ragblade"
)

func AddEndpoints(group micro.Group, endpoints *ragblade.EndpointSet) {
	group.AddEndpoint("ingest", IngestHandler(endpoints.Ingest))
	group.AddEndpoint("batch_ingest", BatchIngestHandler(endpoints.BatchIngest))
	group.AddEndpoint("retrieve", RetrieveHandler(endpoints.Retrieve))
	group.AddEndpoint("generate", GenerateHandler(endpoints.Generate))
	group.AddEndpoint("remove_document", RemoveDocumentHandler(endpoints.RemoveDocument))
	group.AddEndpoint("list_documents", ListDocumentsHandler(endpoints.ListDocuments))
	group.AddEndpoint("search_documents", SearchDocumentsHandler(endpoints.SearchDocuments))
	group.AddEndpoint("stats", StatsHandler(endpoints.Stats))
	group.AddEndpoint("save", CommandHandler(endpoints.Save))
	group.AddEndpoint("load", CommandHandler(endpoints.Load))
}
