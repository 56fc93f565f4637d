// internal/persist/persist.go
// Package persist records registered models in kolosal-server's config.yaml so they
// survive a server restart.
package persist

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/mwiater/kolosalctl/internal/kolosal"
	"github.com/mwiater/kolosalctl/internal/logging"
	"gopkg.in/yaml.v3"
)

var (
	// ErrConfigNotFound means the server configuration file does not exist. It is never
	// created from scratch.
	ErrConfigNotFound = errors.New("server config file not found")
	// ErrNoModelsSection means the document has no top-level models key.
	ErrNoModelsSection = errors.New("server config has no models section")
)

// DefaultPath is the server configuration in the working directory.
const DefaultPath = "config.yaml"

type modelEntry struct {
	ID              string         `yaml:"id"`
	Path            string         `yaml:"path"`
	LoadImmediately bool           `yaml:"load_immediately"`
	MainGPUID       int            `yaml:"main_gpu_id"`
	PreloadContext  bool           `yaml:"preload_context"`
	LoadParams      map[string]any `yaml:"load_params"`
}

// YAMLPersister appends model entries to a YAML config while keeping its comments and
// key order.
type YAMLPersister struct {
	Path string

	mu sync.Mutex
}

var _ kolosal.Persister = (*YAMLPersister)(nil)

// NewYAML returns a persister for path, or DefaultPath when path is empty.
func NewYAML(path string) *YAMLPersister {
	if path == "" {
		path = DefaultPath
	}
	return &YAMLPersister{Path: path}
}

// Persist adds engineID with the given model path under models. An existing entry
// with the same id is left alone.
func (p *YAMLPersister) Persist(engineID, path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	info, err := os.Stat(p.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrConfigNotFound, p.Path)
	}
	if err != nil {
		return fmt.Errorf("stat %s: %w", p.Path, err)
	}
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return fmt.Errorf("read %s: %w", p.Path, err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse %s: %w", p.Path, err)
	}
	models, err := modelsNode(&doc)
	if err != nil {
		return fmt.Errorf("%s: %w", p.Path, err)
	}

	if hasModel(models, engineID) {
		logging.Logger().Debug().Str("engine", engineID).Msg("model already in server config")
		return nil
	}

	var entry yaml.Node
	if err := entry.Encode(modelEntry{
		ID:             engineID,
		Path:           path,
		PreloadContext: true,
		LoadParams:     kolosal.DefaultLoadParams(),
	}); err != nil {
		return fmt.Errorf("encode model entry: %w", err)
	}
	models.Content = append(models.Content, &entry)

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return fmt.Errorf("encode %s: %w", p.Path, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode %s: %w", p.Path, err)
	}
	if err := os.WriteFile(p.Path, buf.Bytes(), info.Mode().Perm()); err != nil {
		return fmt.Errorf("write %s: %w", p.Path, err)
	}
	logging.Logger().Info().Str("engine", engineID).Str("config", p.Path).Msg("model added to server config")
	return nil
}

// modelsNode returns the sequence under the top-level models key, turning a null or
// empty value into an empty sequence.
func modelsNode(doc *yaml.Node) (*yaml.Node, error) {
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, ErrNoModelsSection
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, ErrNoModelsSection
	}
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value != "models" {
			continue
		}
		v := root.Content[i+1]
		switch {
		case v.Kind == yaml.SequenceNode:
			return v, nil
		case v.Kind == yaml.ScalarNode && (v.Tag == "!!null" || v.Value == ""):
			v.Kind = yaml.SequenceNode
			v.Tag = "!!seq"
			v.Value = ""
			v.Style = 0
			return v, nil
		default:
			return nil, fmt.Errorf("models is not a list (line %d)", v.Line)
		}
	}
	return nil, ErrNoModelsSection
}

func hasModel(models *yaml.Node, id string) bool {
	for _, item := range models.Content {
		if item.Kind != yaml.MappingNode {
			continue
		}
		for i := 0; i+1 < len(item.Content); i += 2 {
			if item.Content[i].Value == "id" && item.Content[i+1].Value == id {
				return true
			}
		}
	}
	return false
}
