package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/comfy-pilot/bridge/internal/logging"
	"go.uber.org/zap"
)

const protocolVersion = "2024-11-05"

// JSON-RPC error codes.
const (
	codeMethodNotFound = -32601
	codeParseError     = -32700
	codeInternalError  = -32000
)

// Tool is one callable unit exposed through tools/list and tools/call.
type Tool struct {
	Name        string
	Description string
	InputSchema json.RawMessage
	Run         func(ctx context.Context, args json.RawMessage) interface{}
}

// ImageResult is a tool result carrying image bytes. The server renders it
// as mixed text and image content instead of plain JSON.
type ImageResult struct {
	NodeID     interface{} `json:"node_id"`
	NodeTitle  string      `json:"node_title"`
	NodeType   string      `json:"node_type"`
	Filename   string      `json:"filename"`
	ImageIndex int         `json:"image_index"`
	MediaType  string      `json:"media_type"`
	Base64     string      `json:"base64_data"`
}

type request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type toolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

type contentItem struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// Server speaks the protocol over an in/out pair, normally stdin/stdout.
type Server struct {
	tools  []Tool
	byName map[string]Tool
	in     io.Reader
	out    io.Writer
	outMu  sync.Mutex
	log    *logging.Logger
}

// NewServer builds a server around the given tool set.
func NewServer(tools []Tool, in io.Reader, out io.Writer, log *logging.Logger) *Server {
	if log == nil {
		log = logging.NewNop()
	}
	byName := make(map[string]Tool, len(tools))
	for _, t := range tools {
		byName[t.Name] = t
	}
	return &Server{
		tools:  tools,
		byName: byName,
		in:     in,
		out:    out,
		log:    log,
	}
}

// Serve reads requests until EOF or ctx cancellation. Malformed lines
// produce a parse error response rather than terminating the loop.
func (s *Server) Serve(ctx context.Context) error {
	scanner := bufio.NewScanner(s.in)
	// Workflow payloads in arguments can be large.
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req request
		if err := json.Unmarshal(line, &req); err != nil {
			s.send(response{
				JSONRPC: "2.0",
				Error:   &rpcError{Code: codeParseError, Message: "parse error: " + err.Error()},
			})
			continue
		}

		resp := s.handle(ctx, &req)
		if resp != nil {
			s.send(*resp)
		}
	}
	return scanner.Err()
}

func (s *Server) handle(ctx context.Context, req *request) *response {
	switch req.Method {
	case "initialize":
		return &response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result: map[string]interface{}{
				"protocolVersion": protocolVersion,
				"serverInfo": map[string]string{
					"name":    "comfy-pilot-mcp",
					"version": "1.0.0",
				},
				"capabilities": map[string]interface{}{
					"tools": map[string]interface{}{},
				},
			},
		}

	case "notifications/initialized":
		// Notifications get no response.
		return nil

	case "tools/list":
		descriptors := make([]toolDescriptor, 0, len(s.tools))
		for _, t := range s.tools {
			descriptors = append(descriptors, toolDescriptor{
				Name:        t.Name,
				Description: t.Description,
				InputSchema: t.InputSchema,
			})
		}
		return &response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result:  map[string]interface{}{"tools": descriptors},
		}

	case "tools/call":
		return s.callTool(ctx, req)

	default:
		return &response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &rpcError{Code: codeMethodNotFound, Message: "method not found: " + req.Method},
		}
	}
}

func (s *Server) callTool(ctx context.Context, req *request) *response {
	var params struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return &response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &rpcError{Code: codeInternalError, Message: "invalid tools/call params: " + err.Error()},
		}
	}

	tool, ok := s.byName[params.Name]
	if !ok {
		return &response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &rpcError{Code: codeMethodNotFound, Message: "unknown tool: " + params.Name},
		}
	}

	result := s.runTool(ctx, tool, params.Arguments)

	if img, ok := result.(*ImageResult); ok {
		return &response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result: map[string]interface{}{
				"content": []contentItem{
					{
						Type: "text",
						Text: fmt.Sprintf("Image from node %v (%s): %s", img.NodeID, img.NodeTitle, img.Filename),
					},
					{
						Type:     "image",
						Data:     img.Base64,
						MimeType: img.MediaType,
					},
				},
			},
		}
	}

	text, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		text = []byte(fmt.Sprintf(`{"error": "unencodable tool result: %v"}`, err))
	}
	return &response{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []contentItem{{Type: "text", Text: string(text)}},
		},
	}
}

// runTool isolates panics so one bad call cannot take the connection down.
func (s *Server) runTool(ctx context.Context, tool Tool, args json.RawMessage) (result interface{}) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("tool panicked", zap.String("tool", tool.Name), zap.Any("panic", r))
			result = map[string]string{"error": fmt.Sprintf("tool execution failed: %v", r)}
		}
	}()
	return tool.Run(ctx, args)
}

func (s *Server) send(resp response) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	data, err := json.Marshal(resp)
	if err != nil {
		s.log.Error("response marshal failed", zap.Error(err))
		return
	}
	data = append(data, '\n')
	if _, err := s.out.Write(data); err != nil {
		s.log.Error("response write failed", zap.Error(err))
	}
}
