// internal/kolosal/engines.go
package kolosal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mwiater/kolosalctl/internal/logging"
	"github.com/xeipuuv/gojsonschema"
)

// Engine is one entry from the server's engine listing.
type Engine struct {
	ID     string
	Status string
	Raw    map[string]any
}

// EngineRegistration asks the server to fetch a model and create an engine for it.
type EngineRegistration struct {
	EngineID        string         `json:"engine_id" validate:"required,max=256"`
	SourceURL       string         `json:"model_path" validate:"required"`
	LocalPath       string         `json:"-"`
	LoadImmediately bool           `json:"load_immediately"`
	MainGPUID       int            `json:"main_gpu_id" validate:"gte=0"`
	LoadParams      map[string]any `json:"loading_parameters"`
}

// DefaultLoadParams returns the loading parameters used when a registration has none.
func DefaultLoadParams() map[string]any {
	return map[string]any{
		"n_ctx":         4096,
		"n_keep":        2048,
		"use_mmap":      true,
		"use_mlock":     true,
		"n_parallel":    4,
		"cont_batching": true,
		"warmup":        false,
		"n_gpu_layers":  50,
		"n_batch":       2048,
		"n_ubatch":      512,
	}
}

var validate = validator.New()

// loadParamsSchema constrains the keys the server is known to read. Anything else is
// passed through untouched.
const loadParamsSchema = `{
  "type": "object",
  "properties": {
    "n_ctx":         {"type": "integer", "minimum": 1},
    "n_keep":        {"type": "integer", "minimum": 0},
    "use_mmap":      {"type": "boolean"},
    "use_mlock":     {"type": "boolean"},
    "n_parallel":    {"type": "integer", "minimum": 1},
    "cont_batching": {"type": "boolean"},
    "warmup":        {"type": "boolean"},
    "n_gpu_layers":  {"type": "integer", "minimum": 0},
    "n_batch":       {"type": "integer", "minimum": 1},
    "n_ubatch":      {"type": "integer", "minimum": 1}
  },
  "additionalProperties": true
}`

var loadParamsLoader = gojsonschema.NewStringLoader(loadParamsSchema)

// ValidateLoadParams checks params against the known loading-parameter types.
func ValidateLoadParams(params map[string]any) error {
	result, err := gojsonschema.Validate(loadParamsLoader, gojsonschema.NewGoLoader(params))
	if err != nil {
		return fmt.Errorf("validate loading parameters: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("invalid loading parameters: %s", strings.Join(msgs, "; "))
	}
	return nil
}

// Validate checks the registration before it is sent.
func (r EngineRegistration) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("invalid engine registration: %w", err)
	}
	if r.LoadParams != nil {
		return ValidateLoadParams(r.LoadParams)
	}
	return nil
}

// ListEngines returns the engines the server knows about. It reads /v1/engines and
// falls back to /engines for older servers.
func (c *Client) ListEngines(ctx context.Context) ([]Engine, error) {
	resp, err := c.http.Do(ctx, c.get("/v1/engines", "/v1/engines"))
	if err != nil {
		logging.Logger().Debug().Err(err).Msg("engine listing failed on /v1/engines, trying /engines")
		resp, err = c.http.Do(ctx, c.get("/engines", "/engines"))
		if err != nil {
			return nil, fmt.Errorf("list engines: %w", err)
		}
	}
	engines, err := parseEngines(resp.Body)
	if err != nil {
		return nil, &ParseError{Op: "list engines", Err: err}
	}
	return engines, nil
}

// parseEngines accepts either a bare array or {"engines": [...]}. Entries without an
// id or engine_id are dropped.
func parseEngines(body []byte) ([]Engine, error) {
	trimmed := bytes.TrimSpace(body)
	var items []map[string]any
	switch {
	case bytes.HasPrefix(trimmed, []byte("[")):
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, err
		}
	case bytes.HasPrefix(trimmed, []byte("{")):
		var wrapper struct {
			Engines []map[string]any `json:"engines"`
		}
		if err := json.Unmarshal(trimmed, &wrapper); err != nil {
			return nil, err
		}
		items = wrapper.Engines
	default:
		return nil, fmt.Errorf("unexpected engines payload %q", truncate(string(trimmed), 64))
	}

	engines := make([]Engine, 0, len(items))
	for _, item := range items {
		id := stringField(item, "id")
		if id == "" {
			id = stringField(item, "engine_id")
		}
		if id == "" {
			continue
		}
		engines = append(engines, Engine{ID: id, Status: stringField(item, "status"), Raw: item})
	}
	return engines, nil
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// EngineExists reports whether id is among the server's engines.
func (c *Client) EngineExists(ctx context.Context, id string) (bool, error) {
	engines, err := c.ListEngines(ctx)
	if err != nil {
		return false, err
	}
	for _, e := range engines {
		if e.ID == id {
			return true, nil
		}
	}
	return false, nil
}

// RegisterEngine submits reg unless an engine with the same ID already exists, in
// which case it returns (false, nil) without posting. It does not wait for the
// download; use Monitor for that. After a successful submission the configured
// Persister records the engine; a persist failure is logged, not returned.
func (c *Client) RegisterEngine(ctx context.Context, reg EngineRegistration) (bool, error) {
	if reg.LoadParams == nil {
		reg.LoadParams = DefaultLoadParams()
	}
	if err := reg.Validate(); err != nil {
		return false, err
	}
	log := logging.Logger().With().Str("engine", reg.EngineID).Logger()

	exists, err := c.EngineExists(ctx, reg.EngineID)
	if err != nil {
		log.Debug().Err(err).Msg("could not list engines, submitting registration anyway")
	}
	if exists {
		log.Info().Msg("engine already registered")
		return false, nil
	}

	body, err := json.Marshal(reg)
	if err != nil {
		return false, fmt.Errorf("encode engine registration: %w", err)
	}
	logging.LogRequest("out", c.conn.BaseURL, reg.EngineID, "register", body)
	if _, err := c.http.Do(ctx, c.post("/engines", "/engines", body)); err != nil {
		return false, fmt.Errorf("register engine %s: %w", reg.EngineID, err)
	}

	if c.persister != nil {
		path := reg.LocalPath
		if path == "" {
			path = reg.SourceURL
		}
		if err := c.persister.Persist(reg.EngineID, path); err != nil {
			log.Warn().Err(err).Msg("engine registered but server config was not updated")
		}
	}
	return true, nil
}
