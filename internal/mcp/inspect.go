package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"sort"
	"strings"
)

// nodeMeta is the slice of a catalog entry the inspection tools need.
type nodeMeta struct {
	DisplayName string                                `json:"display_name"`
	Category    string                                `json:"category"`
	Description string                                `json:"description"`
	Input       map[string]map[string]json.RawMessage `json:"input"`
	Output      json.RawMessage                       `json:"output"`
	OutputName  json.RawMessage                       `json:"output_name"`
}

func decodeMeta(raw json.RawMessage) nodeMeta {
	var m nodeMeta
	_ = json.Unmarshal(raw, &m)
	return m
}

func (m nodeMeta) minimal(name string, fields []string) map[string]interface{} {
	display := m.DisplayName
	if display == "" {
		display = name
	}
	category := m.Category
	if category == "" {
		category = "uncategorized"
	}
	out := map[string]interface{}{
		"display_name": display,
		"category":     category,
	}

	for _, f := range fields {
		switch f {
		case "description":
			out["description"] = m.Description
		case "inputs":
			out["inputs"] = m.Input
		case "outputs", "output_types":
			out[f] = m.Output
		case "input_types":
			out["input_types"] = m.inputTypes()
		}
	}
	return out
}

// inputTypes reduces input definitions to their type names. Combo inputs are
// defined by a choices array rather than a type string.
func (m nodeMeta) inputTypes() map[string]string {
	types := map[string]string{}
	for _, group := range []string{"required", "optional"} {
		for name, def := range m.Input[group] {
			var parts []json.RawMessage
			if json.Unmarshal(def, &parts) != nil || len(parts) == 0 {
				continue
			}
			var typeName string
			if json.Unmarshal(parts[0], &typeName) == nil {
				types[name] = typeName
			} else {
				types[name] = "COMBO"
			}
		}
	}
	return types
}

// getNodeTypes lists or searches the graph host's node catalog. Without
// filters it returns only a category index; the full catalog runs to tens of
// megabytes and would swamp the assistant's context.
func (t *Tools) getNodeTypes(ctx context.Context, search interface{}, category string, fields []string) map[string]interface{} {
	catalog, err := t.graph.NodeCatalog(ctx)
	if err != nil {
		return errMap("failed to load node catalog: %v", err)
	}

	terms := stringList(search)

	if len(terms) == 0 && category == "" {
		categories := map[string][]string{}
		for name, raw := range catalog {
			meta := decodeMeta(raw)
			cat := meta.Category
			if cat == "" {
				cat = "uncategorized"
			}
			categories[cat] = append(categories[cat], name)
		}
		for _, names := range categories {
			sort.Strings(names)
		}
		return map[string]interface{}{
			"total_nodes": len(catalog),
			"categories":  categories,
			"hint":        "Use 'search' to find specific nodes, or 'category' to list nodes in a category.",
		}
	}

	searchNodes := func(term string) map[string]interface{} {
		q := strings.ToLower(term)
		matches := map[string]interface{}{}
		for name, raw := range catalog {
			meta := decodeMeta(raw)
			if strings.Contains(strings.ToLower(name), q) ||
				strings.Contains(strings.ToLower(meta.DisplayName), q) ||
				strings.Contains(strings.ToLower(meta.Description), q) {
				matches[name] = meta.minimal(name, fields)
			}
		}
		return matches
	}

	if len(terms) == 1 {
		matches := searchNodes(terms[0])
		return map[string]interface{}{
			"search":  terms[0],
			"matches": len(matches),
			"nodes":   matches,
		}
	}
	if len(terms) > 1 {
		grouped := map[string]interface{}{}
		for _, term := range terms {
			matches := searchNodes(term)
			grouped[term] = map[string]interface{}{
				"matches": len(matches),
				"nodes":   matches,
			}
		}
		return map[string]interface{}{
			"searches":       grouped,
			"total_searches": len(terms),
		}
	}

	q := strings.ToLower(category)
	matches := map[string]interface{}{}
	for name, raw := range catalog {
		meta := decodeMeta(raw)
		if strings.Contains(strings.ToLower(meta.Category), q) {
			matches[name] = meta.minimal(name, fields)
		}
	}
	return map[string]interface{}{
		"category": category,
		"matches":  len(matches),
		"nodes":    matches,
	}
}

// workflowMap normalizes the workflow payload, which may arrive decoded or
// as raw JSON depending on the source.
func workflowMap(v interface{}) map[string]interface{} {
	switch x := v.(type) {
	case map[string]interface{}:
		return x
	case json.RawMessage:
		var m map[string]interface{}
		if json.Unmarshal(x, &m) == nil {
			return m
		}
	}
	return nil
}

// getNodeInfo describes one node of the current workflow, joined with its
// catalog entry when available.
func (t *Tools) getNodeInfo(ctx context.Context, nodeID string) map[string]interface{} {
	if nodeID == "" {
		return errMap("node_id is required")
	}

	data := t.getWorkflow(ctx)
	if hasError(data) || data["message"] != nil {
		return data
	}
	workflow := workflowMap(data["workflow"])

	if nodes, ok := workflow["nodes"].([]interface{}); ok {
		for _, item := range nodes {
			node, ok := item.(map[string]interface{})
			if !ok || asString(node["id"]) != nodeID {
				continue
			}

			result := map[string]interface{}{
				"id":             node["id"],
				"type":           node["type"],
				"title":          node["title"],
				"pos":            node["pos"],
				"size":           node["size"],
				"widgets_values": node["widgets_values"],
				"inputs":         node["inputs"],
				"outputs":        node["outputs"],
			}
			if result["title"] == nil {
				result["title"] = node["type"]
			}

			if typeName, ok := node["type"].(string); ok {
				if catalog, err := t.graph.NodeCatalog(ctx); err == nil {
					if raw, ok := catalog[typeName]; ok {
						meta := decodeMeta(raw)
						result["type_info"] = map[string]interface{}{
							"display_name": meta.DisplayName,
							"description":  meta.Description,
							"category":     meta.Category,
							"input":        meta.Input,
							"output":       meta.Output,
							"output_name":  meta.OutputName,
						}
					}
				}
			}
			return result
		}
		return errMap("Node %s not found in workflow", nodeID)
	}

	// API format.
	if node, ok := workflow[nodeID].(map[string]interface{}); ok {
		return map[string]interface{}{
			"id":     nodeID,
			"type":   node["class_type"],
			"inputs": node["inputs"],
		}
	}
	return errMap("Node %s not found in workflow", nodeID)
}

// summarizeWorkflow reduces the workflow to node and connection lists, a
// far smaller payload than the full graph.
func (t *Tools) summarizeWorkflow(ctx context.Context) map[string]interface{} {
	data := t.getWorkflow(ctx)
	if hasError(data) || data["message"] != nil {
		return data
	}
	workflow := workflowMap(data["workflow"])

	if rawNodes, ok := workflow["nodes"].([]interface{}); ok {
		nodes := make([]map[string]interface{}, 0, len(rawNodes))
		for _, item := range rawNodes {
			node, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			info := map[string]interface{}{
				"id":    node["id"],
				"type":  node["type"],
				"title": node["title"],
				"pos":   node["pos"],
			}
			if info["title"] == nil {
				info["title"] = node["type"]
			}
			if widgets, ok := node["widgets_values"]; ok {
				info["widgets"] = widgets
			}
			nodes = append(nodes, info)
		}

		connections := []map[string]interface{}{}
		if links, ok := workflow["links"].([]interface{}); ok {
			for _, item := range links {
				link, ok := item.([]interface{})
				if !ok || len(link) < 6 {
					continue
				}
				connections = append(connections, map[string]interface{}{
					"link_id":   link[0],
					"from_node": link[1],
					"from_slot": link[2],
					"to_node":   link[3],
					"to_slot":   link[4],
					"type":      link[5],
				})
			}
		}

		return map[string]interface{}{
			"total_nodes":       len(nodes),
			"nodes":             nodes,
			"total_connections": len(connections),
			"connections":       connections,
		}
	}

	// API format.
	nodes := []map[string]interface{}{}
	for id, item := range workflow {
		node, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		nodes = append(nodes, map[string]interface{}{
			"id":     id,
			"type":   node["class_type"],
			"inputs": node["inputs"],
		})
	}
	return map[string]interface{}{
		"total_nodes": len(nodes),
		"nodes":       nodes,
	}
}

func isImageNodeType(nodeType string) bool {
	t := strings.ToLower(nodeType)
	return strings.Contains(t, "preview") ||
		strings.Contains(t, "saveimage") ||
		strings.Contains(t, "save image")
}

// viewImage fetches an output image of a preview or save node, defaulting to
// the first image node when none is named.
func (t *Tools) viewImage(ctx context.Context, nodeID string, imageIndex int) interface{} {
	data := t.getWorkflow(ctx)
	if hasError(data) {
		return data
	}
	workflow := workflowMap(data["workflow"])

	type imageNode struct {
		ID    interface{} `json:"id"`
		Type  string      `json:"type"`
		Title string      `json:"title"`
	}
	var imageNodes []imageNode
	if nodes, ok := workflow["nodes"].([]interface{}); ok {
		for _, item := range nodes {
			node, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			nodeType, _ := node["type"].(string)
			if !isImageNodeType(nodeType) {
				continue
			}
			title, _ := node["title"].(string)
			if title == "" {
				title = nodeType
			}
			imageNodes = append(imageNodes, imageNode{ID: node["id"], Type: nodeType, Title: title})
		}
	}
	if len(imageNodes) == 0 {
		return errMap("No preview or save image nodes found in workflow")
	}

	var target *imageNode
	if nodeID != "" {
		for i := range imageNodes {
			if asString(imageNodes[i].ID) == nodeID {
				target = &imageNodes[i]
				break
			}
		}
		if target == nil {
			return map[string]interface{}{
				"error":                 "Node " + nodeID + " is not an image node",
				"available_image_nodes": imageNodes,
			}
		}
	} else {
		target = &imageNodes[0]
	}
	targetID := asString(target.ID)

	rawHistory, err := t.graph.History(ctx, "")
	if err != nil {
		return errMap("Could not get history. Run the workflow first to generate images.")
	}

	var history map[string]struct {
		Outputs map[string]struct {
			Images []struct {
				Filename  string `json:"filename"`
				Subfolder string `json:"subfolder"`
				Type      string `json:"type"`
			} `json:"images"`
		} `json:"outputs"`
	}
	_ = json.Unmarshal(rawHistory, &history)

	var filename, subfolder, imgType string
	found := false
	for _, entry := range history {
		outputs, ok := entry.Outputs[targetID]
		if !ok || len(outputs.Images) <= imageIndex {
			continue
		}
		img := outputs.Images[imageIndex]
		filename, subfolder, imgType = img.Filename, img.Subfolder, img.Type
		found = true
		break
	}
	if !found {
		return map[string]interface{}{
			"error":                 "No images found for node " + targetID + ". Run the workflow first.",
			"node":                  target,
			"available_image_nodes": imageNodes,
		}
	}
	if imgType == "" {
		imgType = "output"
	}

	imageData, mediaType, err := t.graph.ViewImage(ctx, filename, subfolder, imgType)
	if err != nil {
		return errMap("Failed to fetch image: %v", err)
	}

	return &ImageResult{
		NodeID:     target.ID,
		NodeTitle:  target.Title,
		NodeType:   target.Type,
		Filename:   filename,
		ImageIndex: imageIndex,
		MediaType:  mediaType,
		Base64:     base64.StdEncoding.EncodeToString(imageData),
	}
}
