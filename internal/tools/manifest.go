// ABOUTME: TOML provider manifests describing externally registered tool providers.
// ABOUTME: Loaded at startup so the registry is populated without code changes.

package tools

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Manifest is one provider manifest file. Example:
//
//	name = "embedder"
//	endpoint = "http://127.0.0.1:7777/rpc"
//	timeout = "15s"
type Manifest struct {
	Name     string `toml:"name"`
	Endpoint string `toml:"endpoint"`
	Timeout  string `toml:"timeout"`

	timeout time.Duration
}

// validate checks required fields and parses the timeout.
func (m *Manifest) validate(path string) error {
	if m.Name == "" {
		return fmt.Errorf("manifest %s: name is required", path)
	}
	if m.Endpoint == "" {
		return fmt.Errorf("manifest %s: endpoint is required", path)
	}
	if m.Timeout != "" {
		d, err := time.ParseDuration(m.Timeout)
		if err != nil {
			return fmt.Errorf("manifest %s: parsing timeout %q: %w", path, m.Timeout, err)
		}
		m.timeout = d
	}
	return nil
}

// LoadManifests reads every *.toml file in dir and returns the providers
// they describe. A missing directory yields no providers and no error, so a
// fresh install starts with an empty registry.
func LoadManifests(dir string) ([]*HTTPProvider, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading manifest directory: %w", err)
	}

	var providers []*HTTPProvider
	seen := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".toml" {
			continue
		}
		path := filepath.Join(dir, entry.Name())

		var m Manifest
		if _, err := toml.DecodeFile(path, &m); err != nil {
			return nil, fmt.Errorf("parsing manifest %s: %w", path, err)
		}
		if err := m.validate(path); err != nil {
			return nil, err
		}
		if prev, dup := seen[m.Name]; dup {
			return nil, fmt.Errorf("manifest %s: provider %q already declared in %s", path, m.Name, prev)
		}
		seen[m.Name] = path

		providers = append(providers, NewHTTPProvider(m.Name, m.Endpoint, m.timeout))
	}
	return providers, nil
}
