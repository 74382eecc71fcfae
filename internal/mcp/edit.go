package mcp

import (
	"context"
	"encoding/json"
)

// editOp is one graph mutation. Node references may be real ids or the ref
// tag of a create earlier in the same batch.
type editOp struct {
	Action   string                 `json:"action"`
	Ref      string                 `json:"ref"`
	NodeType string                 `json:"node_type"`
	PosX     *float64               `json:"pos_x"`
	PosY     *float64               `json:"pos_y"`
	Title    string                 `json:"title"`
	NodeID   interface{}            `json:"node_id"`
	NodeIDs  interface{}            `json:"node_ids"`
	X        *float64               `json:"x"`
	Y        *float64               `json:"y"`
	RelTo    interface{}            `json:"relative_to"`
	Direct   string                 `json:"direction"`
	Gap      *float64               `json:"gap"`
	Width    *float64               `json:"width"`
	Height   *float64               `json:"height"`
	Property string                 `json:"property"`
	Value    interface{}            `json:"value"`
	Props    map[string]interface{} `json:"properties"`
	FromNode interface{}            `json:"from_node"`
	FromSlot *float64               `json:"from_slot"`
	ToNode   interface{}            `json:"to_node"`
	ToSlot   *float64               `json:"to_slot"`
}

// editGraph applies a batch of graph operations through the browser. Creates
// may tag themselves with a ref that later operations use in place of a node
// id, so a whole subgraph can be built in one call. The result is always the
// aggregate shape, even for a single operation.
func (t *Tools) editGraph(ctx context.Context, operations json.RawMessage) map[string]interface{} {
	ops, err := decodeOps(operations)
	if err != nil {
		return errMap("invalid operations: %v", err)
	}
	if len(ops) == 0 {
		return errMap("operations is required")
	}

	catalog, err := t.graph.NodeCatalog(ctx)
	if err != nil {
		return errMap("failed to load node catalog: %v", err)
	}

	created := map[string]string{} // ref tag -> real node id
	results := make([]map[string]interface{}, 0, len(ops))

	for i, op := range ops {
		result := map[string]interface{}{"action": op.Action, "index": i}

		switch op.Action {
		case "create":
			t.applyCreate(ctx, op, catalog, created, result)
		case "delete":
			t.applyDelete(ctx, op, created, result)
		case "move":
			t.applyMove(ctx, op, created, result, true)
		case "resize":
			t.applyMove(ctx, op, created, result, false)
		case "set":
			t.applySet(ctx, op, created, result)
		case "connect":
			t.applyLink(ctx, op, created, result, "connect_nodes")
		case "disconnect":
			t.applyLink(ctx, op, created, result, "disconnect_nodes")
		default:
			result["error"] = "unknown action: " + op.Action
		}

		results = append(results, result)
	}

	succeeded := 0
	for _, r := range results {
		if !hasError(r) {
			succeeded++
		}
	}
	return map[string]interface{}{
		"total":     len(results),
		"succeeded": succeeded,
		"failed":    len(results) - succeeded,
		"results":   results,
	}
}

func decodeOps(raw json.RawMessage) ([]editOp, error) {
	var ops []editOp
	if err := json.Unmarshal(raw, &ops); err == nil {
		return ops, nil
	}
	var single editOp
	if err := json.Unmarshal(raw, &single); err != nil {
		return nil, err
	}
	return []editOp{single}, nil
}

func (t *Tools) applyCreate(ctx context.Context, op editOp, catalog map[string]json.RawMessage, created map[string]string, result map[string]interface{}) {
	if op.NodeType == "" {
		result["error"] = "node_type is required"
		return
	}
	if _, ok := catalog[op.NodeType]; !ok {
		result["error"] = "unknown node type: " + op.NodeType
		return
	}

	params := map[string]interface{}{
		"type":  op.NodeType,
		"pos_x": floatOr(op.PosX, 100),
		"pos_y": floatOr(op.PosY, 100),
	}
	if op.Title != "" {
		params["title"] = op.Title
	}
	merge(result, t.sendGraphCommand(ctx, "create_node", params))

	if id, ok := result["node_id"]; ok && op.Ref != "" {
		created[op.Ref] = asString(id)
	}
}

func (t *Tools) applyDelete(ctx context.Context, op editOp, created map[string]string, result map[string]interface{}) {
	ids := stringList(op.NodeIDs)
	if len(ids) == 0 {
		ids = stringList(op.NodeID)
	}
	if len(ids) == 0 {
		result["error"] = "node_id is required"
		return
	}
	for _, id := range ids {
		merge(result, t.sendGraphCommand(ctx, "delete_node", map[string]interface{}{
			"node_id": resolveRef(id, created),
		}))
	}
}

func (t *Tools) applyMove(ctx context.Context, op editOp, created map[string]string, result map[string]interface{}, positional bool) {
	id := asString(op.NodeID)
	if id == "" {
		result["error"] = "node_id is required"
		return
	}

	params := map[string]interface{}{
		"node_id": resolveRef(id, created),
		"width":   op.Width,
		"height":  op.Height,
	}
	if positional {
		params["x"] = op.X
		params["y"] = op.Y
		params["gap"] = floatOr(op.Gap, 30)
		if op.Direct != "" {
			params["direction"] = op.Direct
		}
		if rel := asString(op.RelTo); rel != "" {
			params["relative_to"] = resolveRef(rel, created)
		}
	}
	merge(result, t.sendGraphCommand(ctx, "move_node", params))
}

func (t *Tools) applySet(ctx context.Context, op editOp, created map[string]string, result map[string]interface{}) {
	id := asString(op.NodeID)
	if id == "" {
		result["error"] = "node_id is required"
		return
	}

	props := map[string]interface{}{}
	for k, v := range op.Props {
		props[k] = v
	}
	if op.Property != "" {
		props[op.Property] = op.Value
	}
	if len(props) == 0 {
		result["error"] = "property or properties is required"
		return
	}

	for name, value := range props {
		merge(result, t.sendGraphCommand(ctx, "set_node_property", map[string]interface{}{
			"node_id":       resolveRef(id, created),
			"property_name": name,
			"value":         value,
		}))
	}
}

func (t *Tools) applyLink(ctx context.Context, op editOp, created map[string]string, result map[string]interface{}, action string) {
	from, to := asString(op.FromNode), asString(op.ToNode)
	if from == "" || to == "" {
		result["error"] = "from_node and to_node are required"
		return
	}
	merge(result, t.sendGraphCommand(ctx, action, map[string]interface{}{
		"from_node_id": resolveRef(from, created),
		"from_slot":    floatOr(op.FromSlot, 0),
		"to_node_id":   resolveRef(to, created),
		"to_slot":      floatOr(op.ToSlot, 0),
	}))
}

func resolveRef(id string, created map[string]string) string {
	if real, ok := created[id]; ok {
		return real
	}
	return id
}

func floatOr(v *float64, def float64) float64 {
	if v != nil {
		return *v
	}
	return def
}

func merge(dst, src map[string]interface{}) {
	for k, v := range src {
		dst[k] = v
	}
}
