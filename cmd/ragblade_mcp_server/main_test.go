package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"

	mcpE "github.com/flarexio/ragblade/mcp"
)

func TestStdioMCPServer(t *testing.T) {
	assert := assert.New(t)

	input := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"ping"}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`not json`,
		`{"jsonrpc":"2.0","id":2,"method":"resources/list"}`,
	}, "\n")

	var out bytes.Buffer
	s := NewStdioMCPServer(strings.NewReader(input), &out)

	ping := func(ctx context.Context, req mcpE.JSONRPCRequest) mcp.JSONRPCMessage {
		return mcp.JSONRPCResponse{
			JSONRPC: mcp.JSONRPC_VERSION,
			ID:      req.ID,
			Result:  struct{}{},
		}
	}

	assert.NoError(s.AddEndpoint(mcp.MethodPing, ping))
	assert.Error(s.AddEndpoint(mcp.MethodPing, ping))

	err := s.Listen(context.Background())
	assert.NoError(err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if !assert.Len(lines, 2) {
		return
	}

	var first map[string]any
	assert.NoError(json.Unmarshal([]byte(lines[0]), &first))
	assert.EqualValues(1, first["id"])
	assert.Contains(first, "result")

	var second map[string]any
	assert.NoError(json.Unmarshal([]byte(lines[1]), &second))
	assert.EqualValues(2, second["id"])
	assert.Contains(second, "error")
}
