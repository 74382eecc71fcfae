package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/comfy-pilot/bridge/internal/graph"
	"github.com/comfy-pilot/bridge/internal/logging"
	"github.com/go-resty/resty/v2"
)

// Tools binds the tool set to its backends: the bridge's relay endpoints and
// the graph host's own API.
type Tools struct {
	bridge *resty.Client
	graph  *graph.Client
	log    *logging.Logger
}

// ToolsOptions configures the backends.
type ToolsOptions struct {
	// BridgeURL is the bridge server root, e.g. http://127.0.0.1:8189.
	BridgeURL string
	// Graph configures the graph host client.
	Graph graph.Options
	// Timeout applies to bridge requests. Relay submissions block up to the
	// relay deadline, so this must exceed it.
	Timeout time.Duration
}

// NewTools builds the tool set.
func NewTools(opts ToolsOptions, log *logging.Logger) *Tools {
	if log == nil {
		log = logging.NewNop()
	}
	if opts.BridgeURL == "" {
		opts.BridgeURL = "http://127.0.0.1:8189"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	return &Tools{
		bridge: resty.New().SetBaseURL(opts.BridgeURL).SetTimeout(opts.Timeout),
		graph:  graph.NewClient(opts.Graph, log),
		log:    log,
	}
}

func errMap(format string, args ...interface{}) map[string]interface{} {
	return map[string]interface{}{"error": fmt.Sprintf(format, args...)}
}

func hasError(m map[string]interface{}) bool {
	_, ok := m["error"]
	return ok
}

// sendGraphCommand relays an action to the browser through the bridge and
// returns the decoded result. Transport failures come back in the same
// {"error": ...} convention the browser uses, so callers handle one shape.
func (t *Tools) sendGraphCommand(ctx context.Context, action string, params interface{}) map[string]interface{} {
	resp, err := t.bridge.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{"action": action, "params": params}).
		Post("/claude-code/graph-command")
	if err != nil {
		return errMap("failed to reach bridge: %v", err)
	}

	var result map[string]interface{}
	if uerr := json.Unmarshal(resp.Body(), &result); uerr != nil {
		return errMap("invalid response from bridge: %v", uerr)
	}
	if result == nil {
		result = map[string]interface{}{}
	}
	return result
}

// getWorkflow prefers the live snapshot pushed by the browser, falling back
// to the most recent history entry when no browser is attached.
func (t *Tools) getWorkflow(ctx context.Context) map[string]interface{} {
	resp, err := t.bridge.R().SetContext(ctx).Get("/claude-code/workflow")
	if err == nil && resp.IsSuccess() {
		var live map[string]interface{}
		if json.Unmarshal(resp.Body(), &live) == nil && live["workflow"] != nil {
			return map[string]interface{}{
				"source":       "live",
				"workflow":     live["workflow"],
				"workflow_api": live["workflow_api"],
				"timestamp":    live["timestamp"],
			}
		}
	}

	raw, gerr := t.graph.History(ctx, "")
	if gerr != nil {
		return errMap("failed to get workflow: %v", gerr)
	}

	var history map[string]struct {
		Prompt  json.RawMessage `json:"prompt"`
		Outputs json.RawMessage `json:"outputs"`
	}
	if json.Unmarshal(raw, &history) != nil || len(history) == 0 {
		return map[string]interface{}{
			"message": "No workflow found. Make sure the graph editor is open in a browser with the bridge plugin loaded.",
		}
	}

	// History entries carry a queue counter as the first prompt element;
	// the highest counter is the most recent run.
	latestID, latestCounter := "", -1.0
	var latest struct {
		Prompt  json.RawMessage
		Outputs json.RawMessage
	}
	for id, entry := range history {
		var tuple []json.RawMessage
		counter := 0.0
		if json.Unmarshal(entry.Prompt, &tuple) == nil && len(tuple) > 0 {
			_ = json.Unmarshal(tuple[0], &counter)
		}
		if latestID == "" || counter > latestCounter {
			latestID, latestCounter = id, counter
			latest.Prompt, latest.Outputs = entry.Prompt, entry.Outputs
		}
	}

	return map[string]interface{}{
		"source":    "history",
		"prompt_id": latestID,
		"workflow":  json.RawMessage(latest.Prompt),
		"outputs":   json.RawMessage(latest.Outputs),
	}
}

// getStatus aggregates queue, system, and optionally history state.
func (t *Tools) getStatus(ctx context.Context, include []string) map[string]interface{} {
	if len(include) == 0 {
		include = []string{"queue", "system"}
	}

	result := map[string]interface{}{}
	for _, section := range include {
		switch section {
		case "queue":
			result["queue"] = t.rawOrError(t.graph.Queue(ctx))
		case "system":
			result["system"] = t.rawOrError(t.graph.SystemStats(ctx))
		case "history":
			result["history"] = t.rawOrError(t.graph.History(ctx, ""))
		}
	}
	return result
}

func (t *Tools) rawOrError(raw json.RawMessage, err error) interface{} {
	if err != nil {
		return errMap("%v", err)
	}
	return raw
}

// run queues the current workflow or interrupts the running one. Queueing
// goes through the browser so the graph in front of the user is what runs.
func (t *Tools) run(ctx context.Context, action string, nodeIDs []string) map[string]interface{} {
	switch action {
	case "interrupt":
		if err := t.graph.Interrupt(ctx); err != nil {
			return errMap("%v", err)
		}
		return map[string]interface{}{"status": "interrupted"}

	case "queue":
		apiResult := t.sendGraphCommand(ctx, "get_workflow_api", map[string]interface{}{})
		if hasError(apiResult) {
			return apiResult
		}
		workflowAPI, _ := apiResult["workflow_api"].(map[string]interface{})
		if len(workflowAPI) == 0 {
			return errMap("No workflow available. Make sure the graph editor is open in a browser.")
		}

		if len(nodeIDs) > 0 {
			prompt := workflowAPI
			if output, ok := workflowAPI["output"].(map[string]interface{}); ok {
				prompt = output
			}
			var invalid []string
			for _, id := range nodeIDs {
				if _, ok := prompt[id]; !ok {
					invalid = append(invalid, id)
				}
			}
			if len(invalid) > 0 {
				return errMap("Node(s) not found in workflow: %v", invalid)
			}
		}

		result := t.sendGraphCommand(ctx, "queue_prompt", map[string]interface{}{})
		if hasError(result) {
			return result
		}
		return map[string]interface{}{"status": "queued", "prompt_id": result["prompt_id"]}
	}

	return errMap("Unknown action: %s. Use 'queue' or 'interrupt'.", action)
}

func (t *Tools) getQueue(ctx context.Context) interface{} {
	return t.rawOrError(t.graph.Queue(ctx))
}

func (t *Tools) getSystemStats(ctx context.Context) interface{} {
	return t.rawOrError(t.graph.SystemStats(ctx))
}

func (t *Tools) getHistory(ctx context.Context, promptID string) interface{} {
	return t.rawOrError(t.graph.History(ctx, promptID))
}

func (t *Tools) interrupt(ctx context.Context) interface{} {
	if err := t.graph.Interrupt(ctx); err != nil {
		return errMap("%v", err)
	}
	return map[string]interface{}{"status": "interrupted"}
}

func (t *Tools) clearHistory(ctx context.Context) interface{} {
	if err := t.graph.ClearHistory(ctx); err != nil {
		return errMap("%v", err)
	}
	return map[string]interface{}{"status": "cleared"}
}

// decodeArgs tolerates absent arguments.
func decodeArgs(args json.RawMessage, into interface{}) error {
	if len(args) == 0 {
		return nil
	}
	return json.Unmarshal(args, into)
}

// stringList accepts a single string, a list of strings, or numbers, and
// normalizes to a string slice. Assistants are loose about this.
func stringList(v interface{}) []string {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		if x == "" {
			return nil
		}
		return []string{x}
	case []interface{}:
		out := make([]string, 0, len(x))
		for _, item := range x {
			out = append(out, asString(item))
		}
		return out
	default:
		return []string{asString(v)}
	}
}

func asString(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		if x == float64(int64(x)) {
			return fmt.Sprintf("%d", int64(x))
		}
		return fmt.Sprintf("%v", x)
	default:
		return fmt.Sprintf("%v", v)
	}
}
