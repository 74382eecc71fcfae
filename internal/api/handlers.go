package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/comfy-pilot/bridge/internal/envmgr"
	"github.com/comfy-pilot/bridge/internal/graph"
	"github.com/comfy-pilot/bridge/internal/logging"
	"github.com/comfy-pilot/bridge/internal/relay"
	"github.com/comfy-pilot/bridge/internal/session"
	"github.com/comfy-pilot/bridge/internal/skills"
	"github.com/comfy-pilot/bridge/internal/workflow"
)

// Handlers groups the HTTP endpoints and their collaborators.
type Handlers struct {
	relay    *relay.Relay
	store    *workflow.Store
	graph    *graph.Client
	registry *session.Registry
	skills   *skills.Client
	env      *envmgr.Manager
	mcpTools []string
	log      *logging.Logger
}

// NewHandlers creates the endpoint set. mcpTools is the advertised tool list
// for the mcp-status endpoint; nil means the sidecar is not wired in.
func NewHandlers(r *relay.Relay, store *workflow.Store, g *graph.Client, reg *session.Registry, sk *skills.Client, env *envmgr.Manager, mcpTools []string, log *logging.Logger) *Handlers {
	if log == nil {
		log = logging.NewNop()
	}
	return &Handlers{
		relay:    r,
		store:    store,
		graph:    g,
		registry: reg,
		skills:   sk,
		env:      env,
		mcpTools: mcpTools,
		log:      log,
	}
}

// graphCommandPost is the union of the two POST payloads: a submission
// carries action/params, a resolution carries command_id/result.
type graphCommandPost struct {
	Action    string          `json:"action"`
	Params    json.RawMessage `json:"params"`
	CommandID string          `json:"command_id"`
	Result    json.RawMessage `json:"result"`
}

// PollCommand hands the oldest pending command to the consumer, or
// {"command": null} when the queue is empty. The fetch is destructive.
func (h *Handlers) PollCommand(c *gin.Context) {
	cmd, ok := h.relay.FetchNext()
	if !ok {
		c.JSON(http.StatusOK, gin.H{"command": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"command": cmd})
}

// PostCommand multiplexes submissions and resolutions on one route, matching
// the wire contract the browser extension already speaks.
func (h *Handlers) PostCommand(c *gin.Context) {
	var body graphCommandPost
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body: " + err.Error()})
		return
	}

	if body.CommandID != "" || len(body.Result) > 0 {
		h.resolveCommand(c, body)
		return
	}
	h.submitCommand(c, body)
}

func (h *Handlers) submitCommand(c *gin.Context, body graphCommandPost) {
	if body.Action == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "action is required"})
		return
	}

	relaySubmissions.Inc()
	result, err := h.relay.Submit(c.Request.Context(), body.Action, body.Params)
	if err != nil {
		if errors.Is(err, relay.ErrTimeout) {
			relayTimeouts.Inc()
			c.JSON(http.StatusGatewayTimeout, gin.H{"error": "timeout waiting for result from graph client"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if len(result) == 0 {
		result = json.RawMessage(`null`)
	}
	c.Data(http.StatusOK, "application/json", result)
}

func (h *Handlers) resolveCommand(c *gin.Context, body graphCommandPost) {
	if body.CommandID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "command_id is required"})
		return
	}
	relayResolutions.Inc()
	h.relay.Resolve(body.CommandID, body.Result)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// AbandonedResult fetches a result whose submitter timed out before it
// arrived. The fetch is destructive; a second request for the same id 404s.
func (h *Handlers) AbandonedResult(c *gin.Context) {
	id := c.Param("id")
	payload, ok := h.relay.TakeResult(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no stored result for command " + id})
		return
	}
	if len(payload) == 0 {
		payload = json.RawMessage(`null`)
	}
	c.Data(http.StatusOK, "application/json", payload)
}

// GetWorkflow returns the last workflow snapshot pushed by the browser.
func (h *Handlers) GetWorkflow(c *gin.Context) {
	if !h.store.HasWorkflow() {
		c.JSON(http.StatusNotFound, gin.H{"error": "no workflow data available"})
		return
	}
	snap := h.store.Get()
	c.JSON(http.StatusOK, gin.H{
		"workflow":     snap.Workflow,
		"workflow_api": snap.WorkflowAPI,
		"timestamp":    snap.Timestamp,
	})
}

type workflowPost struct {
	Workflow    json.RawMessage `json:"workflow"`
	WorkflowAPI json.RawMessage `json:"workflow_api"`
	Timestamp   int64           `json:"timestamp"`
}

// PostWorkflow stores the latest graph snapshot. At least one of workflow and
// workflow_api must be present.
func (h *Handlers) PostWorkflow(c *gin.Context) {
	var body workflowPost
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body: " + err.Error()})
		return
	}
	if len(body.Workflow) == 0 && len(body.WorkflowAPI) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "workflow or workflow_api is required"})
		return
	}

	h.store.Set(workflow.Snapshot{
		Workflow:    body.Workflow,
		WorkflowAPI: body.WorkflowAPI,
		Timestamp:   body.Timestamp,
	})
	h.log.Debug("workflow snapshot stored",
		zap.Int("workflow_bytes", len(body.Workflow)),
		zap.Int("api_bytes", len(body.WorkflowAPI)))
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type runNodePost struct {
	NodeID string `json:"node_id"`
}

// RunNode queues the stored API-format workflow on the graph host, verifying
// the requested node exists in it first.
func (h *Handlers) RunNode(c *gin.Context) {
	var body runNodePost
	if err := c.ShouldBindJSON(&body); err != nil || body.NodeID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "node_id is required"})
		return
	}

	snap := h.store.Get()
	if len(snap.WorkflowAPI) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no workflow available; load one in the browser first"})
		return
	}

	prompt, err := promptFromAPI(snap.WorkflowAPI)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "stored workflow_api is not valid JSON"})
		return
	}
	if _, ok := prompt[body.NodeID]; !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "node " + body.NodeID + " not found in workflow"})
		return
	}

	raw, err := json.Marshal(prompt)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	promptID, err := h.graph.QueuePrompt(c.Request.Context(), raw, "bridge-"+uuid.NewString())
	if err != nil {
		h.log.Error("queue prompt failed", zap.String("node_id", body.NodeID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "queued",
		"prompt_id": promptID,
		"node_id":   body.NodeID,
	})
}

// promptFromAPI extracts the node map from an API-format export, which may be
// either the prompt itself or an {"output": ..., "workflow": ...} envelope.
func promptFromAPI(raw json.RawMessage) (map[string]json.RawMessage, error) {
	var outer map[string]json.RawMessage
	if err := json.Unmarshal(raw, &outer); err != nil {
		return nil, err
	}
	if output, ok := outer["output"]; ok {
		var prompt map[string]json.RawMessage
		if err := json.Unmarshal(output, &prompt); err != nil {
			return nil, err
		}
		return prompt, nil
	}
	return outer, nil
}

// McpStatus reports whether the sidecar tool server is wired in and which
// tools it advertises.
func (h *Handlers) McpStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"available": len(h.mcpTools) > 0,
		"tools":     h.mcpTools,
	})
}

// Stats summarizes runtime state for dashboards and debugging.
func (h *Handlers) Stats(c *gin.Context) {
	pending, waiting, stored := h.relay.Stats()

	wf := gin.H{"present": h.store.HasWorkflow(), "bytes": h.store.Size()}
	if at := h.store.UpdatedAt(); !at.IsZero() {
		wf["updated_at"] = at.Unix()
	}

	c.JSON(http.StatusOK, gin.H{
		"sessions": h.registry.Count(),
		"relay": gin.H{
			"pending": pending,
			"waiting": waiting,
			"stored":  stored,
		},
		"workflow": wf,
	})
}

// Skills lists the skill catalog, optionally filtered by ?search=.
func (h *Handlers) Skills(c *gin.Context) {
	reg, err := h.skills.Registry(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	all := reg.All()
	if q := c.Query("search"); q != "" {
		all = skills.Search(all, q)
	}
	if all == nil {
		all = []skills.Skill{}
	}
	c.JSON(http.StatusOK, gin.H{"total": len(all), "skills": all})
}

// EnvStatus reports the skill environment state.
func (h *Handlers) EnvStatus(c *gin.Context) {
	st := h.env.Status()
	resp := gin.H{
		"flox_installed": st.Installed,
		"env_installed":  st.EnvInstalled,
		"active_env":     st.ActiveEnv,
		"env_path":       st.EnvPath,
		"activate_cmd":   h.env.ActivateCommand(),
	}
	if st.EnvInstalled {
		if manifest, err := h.env.Manifest(); err == nil {
			resp["manifest"] = manifest
		}
	}
	c.JSON(http.StatusOK, resp)
}

// Health is the liveness probe.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
