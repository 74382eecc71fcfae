package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comfy-pilot/bridge/internal/graph"
	"github.com/comfy-pilot/bridge/internal/logging"
)

// fakeBackend stands in for both the bridge and the graph host, which share
// request shapes but live on different ports in production.
type fakeBackend struct {
	mu       sync.Mutex
	commands []map[string]interface{}

	workflow    string
	workflowAPI string
	history     string
	nextNodeID  int
}

func (f *fakeBackend) recorded() []map[string]interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]interface{}(nil), f.commands...)
}

func (f *fakeBackend) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/claude-code/graph-command", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Action string                 `json:"action"`
			Params map[string]interface{} `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		f.mu.Lock()
		f.commands = append(f.commands, map[string]interface{}{"action": body.Action, "params": body.Params})
		f.mu.Unlock()

		switch body.Action {
		case "create_node":
			f.mu.Lock()
			f.nextNodeID++
			id := f.nextNodeID
			f.mu.Unlock()
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"status": "ok", "node_id": id})
		case "get_workflow_api":
			_, _ = w.Write([]byte(`{"workflow_api": ` + f.workflowAPI + `}`))
		case "queue_prompt":
			_ = json.NewEncoder(w).Encode(map[string]string{"prompt_id": "p-7", "status": "ok"})
		default:
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
		}
	})

	mux.HandleFunc("/claude-code/workflow", func(w http.ResponseWriter, r *http.Request) {
		if f.workflow == "" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error": "no workflow data available"}`))
			return
		}
		_, _ = w.Write([]byte(`{"workflow": ` + f.workflow + `, "workflow_api": null, "timestamp": 1}`))
	})

	mux.HandleFunc("/object_info", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"KSampler": {"display_name": "KSampler", "category": "sampling", "description": "Denoises a latent",
				"input": {"required": {"seed": ["INT", {}], "sampler_name": [["euler", "ddim"]]}},
				"output": ["LATENT"]},
			"PreviewImage": {"display_name": "Preview Image", "category": "image", "input": {"required": {"images": ["IMAGE"]}}, "output": []}
		}`))
	})

	mux.HandleFunc("/history", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(f.history))
	})

	mux.HandleFunc("/view", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "img.png", r.URL.Query().Get("filename"))
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("pngbytes"))
	})

	return httptest.NewServer(mux)
}

func newTestTools(t *testing.T, url string) *Tools {
	t.Helper()
	return NewTools(ToolsOptions{
		BridgeURL: url,
		Graph:     graph.Options{BaseURL: url, Timeout: 2 * time.Second},
		Timeout:   2 * time.Second,
	}, logging.NewNop())
}

func TestRunQueuesThroughBrowser(t *testing.T) {
	backend := &fakeBackend{workflowAPI: `{"output": {"3": {"class_type": "KSampler"}}}`}
	srv := backend.server(t)
	defer srv.Close()

	tools := newTestTools(t, srv.URL)
	result := tools.run(context.Background(), "queue", nil)
	assert.Equal(t, "queued", result["status"])
	assert.Equal(t, "p-7", result["prompt_id"])
}

func TestRunValidatesNodeIDs(t *testing.T) {
	backend := &fakeBackend{workflowAPI: `{"output": {"3": {"class_type": "KSampler"}}}`}
	srv := backend.server(t)
	defer srv.Close()

	tools := newTestTools(t, srv.URL)

	result := tools.run(context.Background(), "queue", []string{"3"})
	assert.Equal(t, "queued", result["status"])

	result = tools.run(context.Background(), "queue", []string{"99"})
	assert.Contains(t, result["error"], "not found")
}

func TestRunUnknownAction(t *testing.T) {
	backend := &fakeBackend{}
	srv := backend.server(t)
	defer srv.Close()

	result := newTestTools(t, srv.URL).run(context.Background(), "dance", nil)
	assert.Contains(t, result["error"], "Unknown action")
}

func TestEditGraphRefChaining(t *testing.T) {
	backend := &fakeBackend{}
	srv := backend.server(t)
	defer srv.Close()

	tools := newTestTools(t, srv.URL)
	ops := json.RawMessage(`[
		{"action": "create", "node_type": "KSampler", "ref": "sampler"},
		{"action": "create", "node_type": "PreviewImage", "ref": "preview"},
		{"action": "connect", "from_node": "sampler", "from_slot": 0, "to_node": "preview", "to_slot": 0},
		{"action": "set", "node_id": "sampler", "property": "seed", "value": 42}
	]`)

	result := tools.editGraph(context.Background(), ops)
	assert.Equal(t, 4, result["total"])
	assert.Equal(t, 4, result["succeeded"])
	assert.Equal(t, 0, result["failed"])

	commands := backend.recorded()
	require.Len(t, commands, 4)

	connect := commands[2]
	assert.Equal(t, "connect_nodes", connect["action"])
	params := connect["params"].(map[string]interface{})
	// Refs resolved to the ids the creates returned.
	assert.Equal(t, "1", params["from_node_id"])
	assert.Equal(t, "2", params["to_node_id"])

	set := commands[3]
	assert.Equal(t, "set_node_property", set["action"])
	setParams := set["params"].(map[string]interface{})
	assert.Equal(t, "1", setParams["node_id"])
	assert.Equal(t, "seed", setParams["property_name"])
	assert.Equal(t, float64(42), setParams["value"])
}

func TestEditGraphRejectsUnknownNodeType(t *testing.T) {
	backend := &fakeBackend{}
	srv := backend.server(t)
	defer srv.Close()

	result := newTestTools(t, srv.URL).editGraph(context.Background(),
		json.RawMessage(`{"action": "create", "node_type": "NotReal"}`))

	assert.Equal(t, 1, result["total"])
	assert.Equal(t, 1, result["failed"])
	results := result["results"].([]map[string]interface{})
	assert.Contains(t, results[0]["error"], "unknown node type")
	assert.Empty(t, backend.recorded())
}

func TestGetNodeTypesCategoryIndex(t *testing.T) {
	backend := &fakeBackend{}
	srv := backend.server(t)
	defer srv.Close()

	result := newTestTools(t, srv.URL).getNodeTypes(context.Background(), nil, "", nil)
	assert.Equal(t, 2, result["total_nodes"])
	categories := result["categories"].(map[string][]string)
	assert.Equal(t, []string{"KSampler"}, categories["sampling"])
}

func TestGetNodeTypesSearch(t *testing.T) {
	backend := &fakeBackend{}
	srv := backend.server(t)
	defer srv.Close()

	tools := newTestTools(t, srv.URL)
	result := tools.getNodeTypes(context.Background(), "denoise", "", []string{"input_types"})
	assert.Equal(t, 1, result["matches"])

	nodes := result["nodes"].(map[string]interface{})
	sampler := nodes["KSampler"].(map[string]interface{})
	types := sampler["input_types"].(map[string]string)
	assert.Equal(t, "INT", types["seed"])
	assert.Equal(t, "COMBO", types["sampler_name"])
}

func TestGetWorkflowPrefersLiveSnapshot(t *testing.T) {
	backend := &fakeBackend{workflow: `{"nodes": [{"id": 1, "type": "KSampler"}]}`}
	srv := backend.server(t)
	defer srv.Close()

	result := newTestTools(t, srv.URL).getWorkflow(context.Background())
	assert.Equal(t, "live", result["source"])
}

func TestGetWorkflowFallsBackToHistory(t *testing.T) {
	backend := &fakeBackend{history: `{
		"old": {"prompt": [1, "old", {}], "outputs": {}},
		"new": {"prompt": [5, "new", {}], "outputs": {}}
	}`}
	srv := backend.server(t)
	defer srv.Close()

	result := newTestTools(t, srv.URL).getWorkflow(context.Background())
	assert.Equal(t, "history", result["source"])
	assert.Equal(t, "new", result["prompt_id"])
}

func TestSummarizeWorkflow(t *testing.T) {
	backend := &fakeBackend{workflow: `{
		"nodes": [
			{"id": 1, "type": "KSampler", "pos": [0, 0], "widgets_values": [42]},
			{"id": 2, "type": "PreviewImage", "title": "Out", "pos": [200, 0]}
		],
		"links": [[1, 1, 0, 2, 0, "IMAGE"]]
	}`}
	srv := backend.server(t)
	defer srv.Close()

	result := newTestTools(t, srv.URL).summarizeWorkflow(context.Background())
	assert.Equal(t, 2, result["total_nodes"])
	assert.Equal(t, 1, result["total_connections"])

	nodes := result["nodes"].([]map[string]interface{})
	assert.Equal(t, "KSampler", nodes[0]["title"]) // falls back to type
	assert.Equal(t, "Out", nodes[1]["title"])
}

func TestGetNodeInfoJoinsCatalog(t *testing.T) {
	backend := &fakeBackend{workflow: `{"nodes": [{"id": 1, "type": "KSampler", "pos": [0, 0]}]}`}
	srv := backend.server(t)
	defer srv.Close()

	tools := newTestTools(t, srv.URL)
	result := tools.getNodeInfo(context.Background(), "1")
	assert.Equal(t, "KSampler", result["type"])
	typeInfo := result["type_info"].(map[string]interface{})
	assert.Equal(t, "Denoises a latent", typeInfo["description"])

	result = tools.getNodeInfo(context.Background(), "99")
	assert.Contains(t, result["error"], "not found")
}

func TestViewImage(t *testing.T) {
	backend := &fakeBackend{
		workflow: `{"nodes": [{"id": 9, "type": "PreviewImage"}]}`,
		history: `{"p1": {"prompt": [1, "p1", {}], "outputs": {"9": {"images": [
			{"filename": "img.png", "subfolder": "", "type": "temp"}
		]}}}}`,
	}
	srv := backend.server(t)
	defer srv.Close()

	result := newTestTools(t, srv.URL).viewImage(context.Background(), "", 0)
	img, ok := result.(*ImageResult)
	require.True(t, ok, "expected image result, got %v", result)

	assert.Equal(t, "img.png", img.Filename)
	assert.Equal(t, "image/png", img.MediaType)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("pngbytes")), img.Base64)
}

func TestViewImageNoImageNodes(t *testing.T) {
	backend := &fakeBackend{workflow: `{"nodes": [{"id": 1, "type": "KSampler"}]}`}
	srv := backend.server(t)
	defer srv.Close()

	result := newTestTools(t, srv.URL).viewImage(context.Background(), "", 0)
	m, ok := result.(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, m["error"], "No preview or save image nodes")
}
