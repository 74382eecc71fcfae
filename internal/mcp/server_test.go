package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comfy-pilot/bridge/internal/logging"
)

func echoTool() Tool {
	return Tool{
		Name:        "echo",
		Description: "echoes its arguments",
		InputSchema: emptySchema,
		Run: func(_ context.Context, args json.RawMessage) interface{} {
			var m map[string]interface{}
			_ = json.Unmarshal(args, &m)
			return m
		},
	}
}

func panicTool() Tool {
	return Tool{
		Name:        "boom",
		Description: "always panics",
		InputSchema: emptySchema,
		Run: func(context.Context, json.RawMessage) interface{} {
			panic("kaput")
		},
	}
}

// serve runs the server over the given input lines and returns one decoded
// response per output line.
func serve(t *testing.T, tools []Tool, lines ...string) []map[string]interface{} {
	t.Helper()
	in := strings.NewReader(strings.Join(lines, "\n") + "\n")
	var out bytes.Buffer

	srv := NewServer(tools, in, &out, logging.NewNop())
	require.NoError(t, srv.Serve(context.Background()))

	var responses []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		if line == "" {
			continue
		}
		var resp map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &resp))
		responses = append(responses, resp)
	}
	return responses
}

func TestInitialize(t *testing.T) {
	resps := serve(t, []Tool{echoTool()},
		`{"jsonrpc": "2.0", "id": 1, "method": "initialize"}`)
	require.Len(t, resps, 1)

	result := resps[0]["result"].(map[string]interface{})
	assert.Equal(t, "2024-11-05", result["protocolVersion"])
	info := result["serverInfo"].(map[string]interface{})
	assert.Equal(t, "comfy-pilot-mcp", info["name"])
}

func TestInitializedNotificationGetsNoResponse(t *testing.T) {
	resps := serve(t, []Tool{echoTool()},
		`{"jsonrpc": "2.0", "method": "notifications/initialized"}`,
		`{"jsonrpc": "2.0", "id": 2, "method": "tools/list"}`)
	require.Len(t, resps, 1)
	assert.Equal(t, float64(2), resps[0]["id"])
}

func TestToolsList(t *testing.T) {
	resps := serve(t, []Tool{echoTool(), panicTool()},
		`{"jsonrpc": "2.0", "id": 1, "method": "tools/list"}`)
	require.Len(t, resps, 1)

	result := resps[0]["result"].(map[string]interface{})
	tools := result["tools"].([]interface{})
	require.Len(t, tools, 2)
	first := tools[0].(map[string]interface{})
	assert.Equal(t, "echo", first["name"])
	assert.NotEmpty(t, first["description"])
	assert.NotNil(t, first["inputSchema"])
}

func TestToolsCallReturnsTextContent(t *testing.T) {
	resps := serve(t, []Tool{echoTool()},
		`{"jsonrpc": "2.0", "id": 1, "method": "tools/call", "params": {"name": "echo", "arguments": {"x": 1}}}`)
	require.Len(t, resps, 1)

	result := resps[0]["result"].(map[string]interface{})
	content := result["content"].([]interface{})
	require.Len(t, content, 1)
	item := content[0].(map[string]interface{})
	assert.Equal(t, "text", item["type"])
	assert.JSONEq(t, `{"x": 1}`, item["text"].(string))
}

func TestUnknownToolIsMethodNotFound(t *testing.T) {
	resps := serve(t, []Tool{echoTool()},
		`{"jsonrpc": "2.0", "id": 1, "method": "tools/call", "params": {"name": "nope", "arguments": {}}}`)
	require.Len(t, resps, 1)

	rpcErr := resps[0]["error"].(map[string]interface{})
	assert.Equal(t, float64(-32601), rpcErr["code"])
}

func TestUnknownMethodIsMethodNotFound(t *testing.T) {
	resps := serve(t, []Tool{echoTool()},
		`{"jsonrpc": "2.0", "id": 1, "method": "resources/list"}`)
	require.Len(t, resps, 1)

	rpcErr := resps[0]["error"].(map[string]interface{})
	assert.Equal(t, float64(-32601), rpcErr["code"])
}

func TestMalformedLineIsParseError(t *testing.T) {
	resps := serve(t, []Tool{echoTool()},
		`{not json`,
		`{"jsonrpc": "2.0", "id": 1, "method": "tools/list"}`)
	require.Len(t, resps, 2)

	rpcErr := resps[0]["error"].(map[string]interface{})
	assert.Equal(t, float64(-32700), rpcErr["code"])
	// The loop survives the bad line.
	assert.NotNil(t, resps[1]["result"])
}

func TestPanickingToolBecomesErrorResult(t *testing.T) {
	resps := serve(t, []Tool{panicTool()},
		`{"jsonrpc": "2.0", "id": 1, "method": "tools/call", "params": {"name": "boom", "arguments": {}}}`)
	require.Len(t, resps, 1)

	result := resps[0]["result"].(map[string]interface{})
	content := result["content"].([]interface{})
	text := content[0].(map[string]interface{})["text"].(string)
	assert.Contains(t, text, "kaput")
}

func TestImageResultRendersImageContent(t *testing.T) {
	imgTool := Tool{
		Name:        "img",
		InputSchema: emptySchema,
		Run: func(context.Context, json.RawMessage) interface{} {
			return &ImageResult{
				NodeID:    9,
				NodeTitle: "Preview",
				Filename:  "out.png",
				MediaType: "image/png",
				Base64:    "aGVsbG8=",
			}
		},
	}

	resps := serve(t, []Tool{imgTool},
		`{"jsonrpc": "2.0", "id": 1, "method": "tools/call", "params": {"name": "img", "arguments": {}}}`)
	require.Len(t, resps, 1)

	content := resps[0]["result"].(map[string]interface{})["content"].([]interface{})
	require.Len(t, content, 2)
	text := content[0].(map[string]interface{})
	assert.Equal(t, "text", text["type"])
	assert.Contains(t, text["text"], "out.png")
	image := content[1].(map[string]interface{})
	assert.Equal(t, "image", image["type"])
	assert.Equal(t, "aGVsbG8=", image["data"])
	assert.Equal(t, "image/png", image["mimeType"])
}

func TestToolNamesMatchCatalog(t *testing.T) {
	tools := NewTools(ToolsOptions{}, logging.NewNop()).All()
	names := ToolNames()
	require.Len(t, tools, len(names))
	for i, tool := range tools {
		assert.Equal(t, names[i], tool.Name)
	}
}
