// Package skills discovers, fetches, and caches workflow skill metadata from
// the public registry. The registry is a raw-hosted JSON catalog; a local
// cache copy serves as fallback when the network is down.
package skills

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/comfy-pilot/bridge/internal/logging"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const (
	defaultRegistryURL = "https://raw.githubusercontent.com/ConstantineB6/Comfy-Pilot/main/skills/skill-registry.json"
	defaultBaseURL     = "https://raw.githubusercontent.com/ConstantineB6/Comfy-Pilot/main/skills"
)

// Skill is a registry catalog entry.
type Skill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Author      string   `json:"author"`
	Category    string   `json:"category"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	Path        string   `json:"path"`
	Rating      float64  `json:"rating"`
	Downloads   int      `json:"downloads"`
	Status      string   `json:"status"`
	Featured    bool     `json:"featured"`
}

// Registry is the full catalog, split into curated and community sections.
type Registry struct {
	CoreSkills      []Skill `json:"core_skills"`
	CommunitySkills []Skill `json:"community_skills"`
}

// All returns every skill, core first.
func (r *Registry) All() []Skill {
	out := make([]Skill, 0, len(r.CoreSkills)+len(r.CommunitySkills))
	out = append(out, r.CoreSkills...)
	out = append(out, r.CommunitySkills...)
	return out
}

// Detail is the full skill.json contents plus the bundled workflow when one
// is published.
type Detail struct {
	Skill        Skill
	Inputs       json.RawMessage `json:"inputs"`
	Outputs      json.RawMessage `json:"outputs"`
	Performance  json.RawMessage `json:"performance"`
	NodesCreated []string        `json:"nodes_created"`
	Examples     json.RawMessage `json:"examples"`
	Workflow     json.RawMessage `json:"-"`
}

// Options configures the client.
type Options struct {
	// RegistryURL is the catalog location.
	RegistryURL string
	// BaseURL is the root under which skill files live.
	BaseURL string
	// CacheDir holds the registry fallback copy.
	CacheDir string
	// Timeout applies per request.
	Timeout time.Duration
}

func (o *Options) withDefaults() {
	if o.RegistryURL == "" {
		o.RegistryURL = defaultRegistryURL
	}
	if o.BaseURL == "" {
		o.BaseURL = defaultBaseURL
	}
	if o.CacheDir == "" {
		if dir, err := os.UserCacheDir(); err == nil {
			o.CacheDir = filepath.Join(dir, "comfy-skills")
		}
	}
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
}

// Client fetches skills from the registry.
type Client struct {
	resty *resty.Client
	opts  Options
	log   *logging.Logger
}

// NewClient builds a registry client.
func NewClient(opts Options, log *logging.Logger) *Client {
	opts.withDefaults()
	if log == nil {
		log = logging.NewNop()
	}
	return &Client{
		resty: resty.New().SetTimeout(opts.Timeout),
		opts:  opts,
		log:   log,
	}
}

// Registry fetches the catalog, refreshing the on-disk cache on success and
// falling back to it when the fetch fails.
func (c *Client) Registry(ctx context.Context) (*Registry, error) {
	resp, err := c.resty.R().SetContext(ctx).Get(c.opts.RegistryURL)
	if err == nil && resp.IsSuccess() {
		var reg Registry
		if uerr := json.Unmarshal(resp.Body(), &reg); uerr != nil {
			return nil, fmt.Errorf("decode registry: %w", uerr)
		}
		c.writeCache(resp.Body())
		return &reg, nil
	}

	if err == nil {
		err = fmt.Errorf("registry fetch: status %d", resp.StatusCode())
	}
	c.log.Warn("registry fetch failed, trying cache", zap.Error(err))

	cached, cerr := c.readCache()
	if cerr != nil {
		return nil, err
	}
	var reg Registry
	if uerr := json.Unmarshal(cached, &reg); uerr != nil {
		return nil, err
	}
	return &reg, nil
}

// Search filters skills by a case-insensitive match against id, name,
// description, or tags.
func Search(all []Skill, query string) []Skill {
	q := strings.ToLower(query)
	var out []Skill
	for _, s := range all {
		if strings.Contains(strings.ToLower(s.Name), q) ||
			strings.Contains(strings.ToLower(s.Description), q) ||
			strings.Contains(strings.ToLower(s.ID), q) ||
			tagMatch(s.Tags, q) {
			out = append(out, s)
		}
	}
	return out
}

func tagMatch(tags []string, q string) bool {
	for _, t := range tags {
		if strings.Contains(strings.ToLower(t), q) {
			return true
		}
	}
	return false
}

// Detail fetches the skill.json for a catalog entry. The workflow.json is
// optional; a missing one is not an error.
func (c *Client) Detail(ctx context.Context, skill Skill) (*Detail, error) {
	resp, err := c.resty.R().SetContext(ctx).Get(c.fileURL(skill, "skill.json"))
	if err != nil {
		return nil, fmt.Errorf("fetch skill %s: %w", skill.ID, err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("fetch skill %s: status %d", skill.ID, resp.StatusCode())
	}

	var detail Detail
	if err := json.Unmarshal(resp.Body(), &detail); err != nil {
		return nil, fmt.Errorf("decode skill %s: %w", skill.ID, err)
	}
	detail.Skill = skill

	if wf, err := c.resty.R().SetContext(ctx).Get(c.fileURL(skill, "workflow.json")); err == nil && wf.IsSuccess() {
		detail.Workflow = json.RawMessage(wf.Body())
	}
	return &detail, nil
}

// Download writes the skill's files into dest. The README is optional
// upstream, so a missing file is skipped rather than failed.
func (c *Client) Download(ctx context.Context, skill Skill, dest string) error {
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return err
	}

	for _, name := range []string{"skill.json", "workflow.json", "README.md"} {
		resp, err := c.resty.R().SetContext(ctx).Get(c.fileURL(skill, name))
		if err != nil || !resp.IsSuccess() {
			c.log.Debug("skipping missing skill file",
				zap.String("skill", skill.ID), zap.String("file", name))
			continue
		}
		if err := os.WriteFile(filepath.Join(dest, name), resp.Body(), 0o644); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) fileURL(skill Skill, name string) string {
	path := skill.Path
	if path != "" && !strings.HasSuffix(path, "/") {
		path += "/"
	}
	return c.opts.BaseURL + "/" + path + name
}

func (c *Client) cachePath() string {
	return filepath.Join(c.opts.CacheDir, "registry.json")
}

func (c *Client) writeCache(data []byte) {
	if c.opts.CacheDir == "" {
		return
	}
	if err := os.MkdirAll(c.opts.CacheDir, 0o755); err != nil {
		return
	}
	if err := os.WriteFile(c.cachePath(), data, 0o644); err != nil {
		c.log.Debug("registry cache write failed", zap.Error(err))
	}
}

func (c *Client) readCache() ([]byte, error) {
	if c.opts.CacheDir == "" {
		return nil, os.ErrNotExist
	}
	return os.ReadFile(c.cachePath())
}
