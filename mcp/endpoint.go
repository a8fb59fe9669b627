package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/flarexio/ragblade"
)

type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      mcp.RequestId   `json:"id"`
	Method  mcp.MCPMethod   `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

func errorResponse(id any, code int, message string) mcp.JSONRPCError {
	return mcp.JSONRPCError{
		JSONRPC: mcp.JSONRPC_VERSION,
		ID:      mcp.NewRequestId(id),
		Error: struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
			Data    any    `json:"data,omitempty"`
		}{
			Code:    code,
			Message: message,
		},
	}
}

type MCPEndpoint func(ctx context.Context, req JSONRPCRequest) mcp.JSONRPCMessage

const MCPSERVER_INSTRUCTIONS string = `RAGBlade answers questions from a curated knowledge base of ingested documents.

Available tools:
- retrieve_knowledge: Return the passages most relevant to a query, with their sources
- ask_knowledge_base: Answer a question in natural language, citing the passages used
- search_documents: Find whole documents about a topic

Pass scene_id to restrict a call to one knowledge scene.`

const (
	ToolRetrieveKnowledge = "retrieve_knowledge"
	ToolAskKnowledgeBase  = "ask_knowledge_base"
	ToolSearchDocuments   = "search_documents"
)

// Tools lists the tools served by CallToolEndpoint.
func Tools() []mcp.Tool {
	return []mcp.Tool{
		mcp.NewTool(ToolRetrieveKnowledge,
			mcp.WithDescription("Retrieve the knowledge base passages most relevant to a query."),
			mcp.WithString("query",
				mcp.Required(),
				mcp.Description("What to look for"),
			),
			mcp.WithString("scene_id",
				mcp.Description("Restrict the search to one scene"),
			),
			mcp.WithNumber("top_k",
				mcp.Description("Maximum number of passages to return"),
			),
		),
		mcp.NewTool(ToolAskKnowledgeBase,
			mcp.WithDescription("Answer a question from the knowledge base and cite the sources used."),
			mcp.WithString("question",
				mcp.Required(),
				mcp.Description("The question to answer"),
			),
			mcp.WithString("scene_id",
				mcp.Description("Restrict the answer to one scene"),
			),
		),
		mcp.NewTool(ToolSearchDocuments,
			mcp.WithDescription("Find ingested documents about a topic."),
			mcp.WithString("query",
				mcp.Required(),
				mcp.Description("Topic to search for"),
			),
			mcp.WithNumber("k",
				mcp.Description("Maximum number of documents to return"),
			),
		),
	}
}

// MakeEndpoints binds every supported MCP method to svc.
func MakeEndpoints(svc ragblade.Service) map[mcp.MCPMethod]MCPEndpoint {
	return map[mcp.MCPMethod]MCPEndpoint{
		mcp.MethodInitialize: InitializeEndpoint(svc),
		mcp.MethodPing:       PingEndpoint(svc),
		mcp.MethodToolsList:  ListToolsEndpoint(svc),
		mcp.MethodToolsCall:  CallToolEndpoint(svc),
	}
}

func InitializeEndpoint(svc ragblade.Service) MCPEndpoint {
	return func(ctx context.Context, req JSONRPCRequest) mcp.JSONRPCMessage {
		var params mcp.InitializeParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errorResponse(req.ID, mcp.INVALID_PARAMS, err.Error())
		}

		protocolVersion := mcp.LATEST_PROTOCOL_VERSION
		if clientVersion := params.ProtocolVersion; clientVersion != "" {
			if slices.Contains(mcp.ValidProtocolVersions, clientVersion) {
				protocolVersion = clientVersion
			}
		}

		result := &mcp.InitializeResult{
			ProtocolVersion: protocolVersion,
			Capabilities: mcp.ServerCapabilities{
				Tools: &struct {
					ListChanged bool `json:"listChanged,omitempty"`
				}{},
			},
			ServerInfo: mcp.Implementation{
				Name:    "ragblade",
				Version: "1.0.0",
			},
			Instructions: MCPSERVER_INSTRUCTIONS,
		}

		return mcp.JSONRPCResponse{
			JSONRPC: mcp.JSONRPC_VERSION,
			ID:      req.ID,
			Result:  result,
		}
	}
}

func PingEndpoint(svc ragblade.Service) MCPEndpoint {
	return func(ctx context.Context, req JSONRPCRequest) mcp.JSONRPCMessage {
		return mcp.JSONRPCResponse{
			JSONRPC: mcp.JSONRPC_VERSION,
			ID:      req.ID,
			Result:  struct{}{}, // empty response
		}
	}
}

func ListToolsEndpoint(svc ragblade.Service) MCPEndpoint {
	return func(ctx context.Context, req JSONRPCRequest) mcp.JSONRPCMessage {
		result := &mcp.ListToolsResult{
			Tools: Tools(),
		}

		return mcp.JSONRPCResponse{
			JSONRPC: mcp.JSONRPC_VERSION,
			ID:      req.ID,
			Result:  result,
		}
	}
}

type callToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

type retrieveArguments struct {
	Query   string `json:"query"`
	SceneID string `json:"scene_id"`
	TopK    int    `json:"top_k"`
}

type askArguments struct {
	Question string `json:"question"`
	SceneID  string `json:"scene_id"`
}

type searchArguments struct {
	Query string `json:"query"`
	K     int    `json:"k"`
}

var ErrUnknownTool = errors.New("unknown tool")

func CallToolEndpoint(svc ragblade.Service) MCPEndpoint {
	return func(ctx context.Context, req JSONRPCRequest) mcp.JSONRPCMessage {
		var params callToolParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errorResponse(req.ID, mcp.INVALID_PARAMS, err.Error())
		}

		if len(params.Arguments) == 0 {
			params.Arguments = json.RawMessage("{}")
		}

		var (
			result *mcp.CallToolResult
			err    error
		)

		switch params.Name {
		case ToolRetrieveKnowledge:
			var args retrieveArguments
			if err := json.Unmarshal(params.Arguments, &args); err != nil {
				return errorResponse(req.ID, mcp.INVALID_PARAMS, err.Error())
			}

			result, err = retrieveKnowledge(ctx, svc, args)

		case ToolAskKnowledgeBase:
			var args askArguments
			if err := json.Unmarshal(params.Arguments, &args); err != nil {
				return errorResponse(req.ID, mcp.INVALID_PARAMS, err.Error())
			}

			result, err = askKnowledgeBase(ctx, svc, args)

		case ToolSearchDocuments:
			var args searchArguments
			if err := json.Unmarshal(params.Arguments, &args); err != nil {
				return errorResponse(req.ID, mcp.INVALID_PARAMS, err.Error())
			}

			result, err = searchDocuments(ctx, svc, args)

		default:
			msg := fmt.Sprintf("%s: %s", ErrUnknownTool.Error(), params.Name)
			return errorResponse(req.ID, mcp.INVALID_PARAMS, msg)
		}

		if err != nil {
			// tool failures are reported to the model, not the client
			result = mcp.NewToolResultError(err.Error())
		}

		return mcp.JSONRPCResponse{
			JSONRPC: mcp.JSONRPC_VERSION,
			ID:      req.ID,
			Result:  result,
		}
	}
}

func retrieveKnowledge(ctx context.Context, svc ragblade.Service, args retrieveArguments) (*mcp.CallToolResult, error) {
	result, err := svc.Retrieve(ctx, ragblade.RetrieveQuery{
		Query:   args.Query,
		SceneID: args.SceneID,
		TopK:    args.TopK,
	})
	if err != nil {
		return nil, err
	}

	if result.Status == ragblade.RetrieveError {
		return mcp.NewToolResultError(result.Message), nil
	}

	if len(result.Documents) == 0 {
		return mcp.NewToolResultText("No relevant passages were found."), nil
	}

	var sb strings.Builder
	for i, doc := range result.Documents {
		fmt.Fprintf(&sb, "[%d] %s (score %.3f)\n%s\n\n", i+1, sourceLabel(doc.Source, doc.Page), doc.Score, doc.Content)
	}

	return mcp.NewToolResultText(strings.TrimSpace(sb.String())), nil
}

func askKnowledgeBase(ctx context.Context, svc ragblade.Service, args askArguments) (*mcp.CallToolResult, error) {
	answer, err := svc.Generate(ctx, ragblade.GenerateRequest{
		RetrieveQuery: ragblade.RetrieveQuery{
			Query:   args.Question,
			SceneID: args.SceneID,
		},
	})
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString(answer.Answer)

	if len(answer.Sources) > 0 {
		sb.WriteString("\n\nSources:\n")
		for _, src := range answer.Sources {
			fmt.Fprintf(&sb, "[%d] %s\n", src.Index, sourceLabel(src.Source, src.Page))
		}
	}

	return mcp.NewToolResultText(strings.TrimSpace(sb.String())), nil
}

func searchDocuments(ctx context.Context, svc ragblade.Service, args searchArguments) (*mcp.CallToolResult, error) {
	hits, err := svc.SearchDocuments(ctx, args.Query, args.K)
	if err != nil {
		return nil, err
	}

	bs, err := json.Marshal(hits)
	if err != nil {
		return nil, err
	}

	return mcp.NewToolResultText(string(bs)), nil
}

func sourceLabel(source string, page int) string {
	if page > 0 {
		return fmt.Sprintf("%s, page %d", source, page)
	}
	return source
}
