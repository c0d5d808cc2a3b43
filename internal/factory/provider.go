package factory

import (
	"os"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"github.com/fabriqa/takt/pkg/schema"
)

// Parse decodes master data from YAML (JSON parses too, being a YAML
// subset) and builds the lookup indexes.
func Parse(data []byte) (*MasterData, error) {
	var md MasterData
	if err := yaml.Unmarshal(data, &md); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"decode master data: %s", err.Error()).WithCause(err)
	}
	if err := md.index(); err != nil {
		return nil, err
	}
	return &md, nil
}

// Load reads and parses a master data file.
func Load(path string) (*MasterData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore,
			"read master data file: %s", err.Error()).WithCause(err)
	}
	return Parse(data)
}

// Provider hands out the active MasterData. Readers get a consistent
// snapshot; Reload swaps the pointer so in-flight runs keep the dataset
// they started with.
type Provider struct {
	current atomic.Pointer[MasterData]
}

// NewProvider creates a Provider serving the given dataset.
func NewProvider(md *MasterData) *Provider {
	p := &Provider{}
	p.current.Store(md)
	return p
}

// Current returns the active dataset.
func (p *Provider) Current() *MasterData {
	return p.current.Load()
}

// Swap atomically replaces the active dataset.
func (p *Provider) Swap(md *MasterData) {
	p.current.Store(md)
}

// ReloadFile parses a file and swaps it in only when it validates; the
// previous dataset stays active on any error.
func (p *Provider) ReloadFile(path string) (*MasterData, error) {
	md, err := Load(path)
	if err != nil {
		return nil, err
	}
	p.Swap(md)
	return md, nil
}
