package mcp

import (
	"context"
	"encoding/json"
)

func schema(s string) json.RawMessage { return json.RawMessage(s) }

var emptySchema = schema(`{"type": "object", "properties": {}, "required": []}`)

// ToolNames lists the advertised tool names, for the bridge status endpoint.
func ToolNames() []string {
	return []string{
		"get_workflow", "summarize_workflow", "get_node_types", "get_node_info",
		"get_status", "run", "edit_graph", "view_image",
		"get_queue", "get_system_stats", "get_history", "interrupt", "clear_history",
	}
}

// All returns the full tool set bound to t.
func (t *Tools) All() []Tool {
	return []Tool{
		{
			Name:        "get_workflow",
			Description: "Get the current workflow. Returns the full node graph with all nodes, connections, and widget values. Use summarize_workflow for a lighter overview.",
			InputSchema: emptySchema,
			Run: func(ctx context.Context, _ json.RawMessage) interface{} {
				return t.getWorkflow(ctx)
			},
		},
		{
			Name:        "summarize_workflow",
			Description: "Get a compact summary of the current workflow: node list with positions and widget values, plus connections.",
			InputSchema: emptySchema,
			Run: func(ctx context.Context, _ json.RawMessage) interface{} {
				return t.summarizeWorkflow(ctx)
			},
		},
		{
			Name:        "get_node_types",
			Description: "List available node types. Without filters, returns a category index. Use 'search' (string or list) or 'category' to filter, and 'fields' to request inputs, outputs, description, input_types, or output_types.",
			InputSchema: schema(`{"type": "object", "properties": {
				"search": {"description": "Search term or list of terms"},
				"category": {"type": "string"},
				"fields": {"type": "array", "items": {"type": "string"}}
			}, "required": []}`),
			Run: func(ctx context.Context, args json.RawMessage) interface{} {
				var a struct {
					Search   interface{} `json:"search"`
					Category string      `json:"category"`
					Fields   []string    `json:"fields"`
				}
				if err := decodeArgs(args, &a); err != nil {
					return errMap("invalid arguments: %v", err)
				}
				return t.getNodeTypes(ctx, a.Search, a.Category, a.Fields)
			},
		},
		{
			Name:        "get_node_info",
			Description: "Get detailed info about one node of the current workflow, including its type's input and output definitions.",
			InputSchema: schema(`{"type": "object", "properties": {
				"node_id": {"type": "string"}
			}, "required": ["node_id"]}`),
			Run: func(ctx context.Context, args json.RawMessage) interface{} {
				var a struct {
					NodeID interface{} `json:"node_id"`
				}
				if err := decodeArgs(args, &a); err != nil {
					return errMap("invalid arguments: %v", err)
				}
				return t.getNodeInfo(ctx, asString(a.NodeID))
			},
		},
		{
			Name:        "get_status",
			Description: "Get queue, system, and optionally history status. 'include' selects sections; default is queue and system.",
			InputSchema: schema(`{"type": "object", "properties": {
				"include": {"type": "array", "items": {"type": "string", "enum": ["queue", "system", "history"]}}
			}, "required": []}`),
			Run: func(ctx context.Context, args json.RawMessage) interface{} {
				var a struct {
					Include []string `json:"include"`
				}
				if err := decodeArgs(args, &a); err != nil {
					return errMap("invalid arguments: %v", err)
				}
				return t.getStatus(ctx, a.Include)
			},
		},
		{
			Name:        "run",
			Description: "Run or control workflow execution. action 'queue' runs the workflow in the browser; 'interrupt' stops the current generation. node_ids optionally validates that specific nodes exist before queueing.",
			InputSchema: schema(`{"type": "object", "properties": {
				"action": {"type": "string", "enum": ["queue", "interrupt"], "default": "queue"},
				"node_ids": {"description": "Node id or list of node ids to validate"}
			}, "required": []}`),
			Run: func(ctx context.Context, args json.RawMessage) interface{} {
				var a struct {
					Action  string      `json:"action"`
					NodeIDs interface{} `json:"node_ids"`
				}
				if err := decodeArgs(args, &a); err != nil {
					return errMap("invalid arguments: %v", err)
				}
				if a.Action == "" {
					a.Action = "queue"
				}
				return t.run(ctx, a.Action, stringList(a.NodeIDs))
			},
		},
		{
			Name:        "edit_graph",
			Description: "Edit the workflow graph with one or more operations: create, delete, move, resize, set, connect, disconnect. Creates may carry a 'ref' tag that later operations use in place of a node id.",
			InputSchema: schema(`{"type": "object", "properties": {
				"operations": {"description": "Single operation object or list of operations, each with an 'action' field"}
			}, "required": ["operations"]}`),
			Run: func(ctx context.Context, args json.RawMessage) interface{} {
				var a struct {
					Operations json.RawMessage `json:"operations"`
				}
				if err := decodeArgs(args, &a); err != nil {
					return errMap("invalid arguments: %v", err)
				}
				return t.editGraph(ctx, a.Operations)
			},
		},
		{
			Name:        "view_image",
			Description: "View an output image from a Preview Image or Save Image node. Defaults to the first image node when node_id is omitted.",
			InputSchema: schema(`{"type": "object", "properties": {
				"node_id": {"type": "string"},
				"image_index": {"type": "integer", "default": 0}
			}, "required": []}`),
			Run: func(ctx context.Context, args json.RawMessage) interface{} {
				var a struct {
					NodeID     interface{} `json:"node_id"`
					ImageIndex int         `json:"image_index"`
				}
				if err := decodeArgs(args, &a); err != nil {
					return errMap("invalid arguments: %v", err)
				}
				return t.viewImage(ctx, asString(a.NodeID), a.ImageIndex)
			},
		},
		{
			Name:        "get_queue",
			Description: "Get the current execution queue.",
			InputSchema: emptySchema,
			Run: func(ctx context.Context, _ json.RawMessage) interface{} {
				return t.getQueue(ctx)
			},
		},
		{
			Name:        "get_system_stats",
			Description: "Get system and device statistics from the graph host.",
			InputSchema: emptySchema,
			Run: func(ctx context.Context, _ json.RawMessage) interface{} {
				return t.getSystemStats(ctx)
			},
		},
		{
			Name:        "get_history",
			Description: "Get prompt history, optionally for a specific prompt id.",
			InputSchema: schema(`{"type": "object", "properties": {
				"prompt_id": {"type": "string"}
			}, "required": []}`),
			Run: func(ctx context.Context, args json.RawMessage) interface{} {
				var a struct {
					PromptID string `json:"prompt_id"`
				}
				if err := decodeArgs(args, &a); err != nil {
					return errMap("invalid arguments: %v", err)
				}
				return t.getHistory(ctx, a.PromptID)
			},
		},
		{
			Name:        "interrupt",
			Description: "Interrupt the current generation.",
			InputSchema: emptySchema,
			Run: func(ctx context.Context, _ json.RawMessage) interface{} {
				return t.interrupt(ctx)
			},
		},
		{
			Name:        "clear_history",
			Description: "Clear the prompt history.",
			InputSchema: emptySchema,
			Run: func(ctx context.Context, _ json.RawMessage) interface{} {
				return t.clearHistory(ctx)
			},
		},
	}
}
