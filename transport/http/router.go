package http

import (
	"github.com/gin-gonic/gin"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/flarexio/ragblade"

	mcpE "github.com/flarexio/ragblade/mcp"
)

func AddRouters(r *gin.Engine, endpoints *ragblade.EndpointSet) {
	// RESTful API routes
	api := r.Group("/api")
	{
		api.POST("/documents", IngestHandler(endpoints.Ingest))
		api.POST("/documents/batch", BatchIngestHandler(endpoints.BatchIngest))
		api.GET("/documents", ListDocumentsHandler(endpoints.ListDocuments))
		api.GET("/documents/search", SearchDocumentsHandler(endpoints.SearchDocuments))
		api.DELETE("/documents/:doc_id", RemoveDocumentHandler(endpoints.RemoveDocument))
		api.GET("/retrieve", RetrieveHandler(endpoints.Retrieve))
		api.POST("/generate", GenerateHandler(endpoints.Generate))
		api.GET("/stats", StatsHandler(endpoints.Stats))
		api.POST("/index/save", IndexHandler(endpoints.Save))
		api.POST("/index/load", IndexHandler(endpoints.Load))
	}
}

func AddStreamableRouters(r *gin.Engine, endpoints map[mcp.MCPMethod]mcpE.MCPEndpoint) {
	mcp := r.Group("/mcp")
	{
		mcp.POST("/", MCPStreamableHandler(endpoints))
	}
}
