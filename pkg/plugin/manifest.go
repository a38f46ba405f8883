package plugin

import (
	"bytes"
	"os"
	"sort"

	"github.com/bsv-blockchain/plugindex/errors"
	"github.com/bsv-blockchain/plugindex/settings"
	"github.com/bsv-blockchain/plugindex/ulogger"
	"github.com/pelletier/go-toml/v2"
)

// ManifestEntry is one [<network>.plugin.<name>] table of the plugin manifest.
type ManifestEntry struct {
	Module   string                 `toml:"module"`
	Version  string                 `toml:"version"`
	LokadIDs []string               `toml:"lokad_ids"`
	Reads    []string               `toml:"reads"`
	Command  []string               `toml:"command"`
	Options  map[string]interface{} `toml:"options"`
}

// ManifestNetwork is the [<network>] table holding the plugin tables.
type ManifestNetwork struct {
	Plugin map[string]*ManifestEntry `toml:"plugin"`
}

// Manifest holds the plugin entries of every network section in the file.
type Manifest map[string]*ManifestNetwork

// BoolOption returns options.<key>, or defaultValue when it is not set.
func (e *ManifestEntry) BoolOption(key string, defaultValue bool) (bool, error) {
	v, ok := e.Options[key]
	if !ok {
		return defaultValue, nil
	}

	b, ok := v.(bool)
	if !ok {
		return false, errors.NewConfigurationError("option %q must be a boolean, got %T", key, v)
	}

	return b, nil
}

// ParseManifest decodes a manifest. Unknown keys are rejected so that typos do
// not silently disable a plugin.
func ParseManifest(data []byte) (Manifest, error) {
	manifest := Manifest{}

	if err := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields().Decode(&manifest); err != nil {
		return nil, errors.NewConfigurationError("malformed plugin manifest", err)
	}

	return manifest, nil
}

// Entries returns the plugin entries of a network, sorted by plugin name.
func (m Manifest) Entries(network string) []string {
	section, ok := m[network]
	if !ok || section == nil {
		return nil
	}

	names := make([]string, 0, len(section.Plugin))
	for name := range section.Plugin {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Build instantiates every plugin of the network section and returns the registry.
func (m Manifest) Build(logger ulogger.Logger, tSettings *settings.Settings, network string) (*Registry, error) {
	names := m.Entries(network)
	plugins := make([]Plugin, 0, len(names))

	for _, name := range names {
		entry := m[network].Plugin[name]
		if entry == nil {
			return nil, errors.NewConfigurationError("plugin %q has an empty manifest entry", name)
		}

		p, err := buildPlugin(logger, tSettings, name, entry)
		if err != nil {
			return nil, err
		}

		plugins = append(plugins, p)
	}

	return NewRegistry(logger, plugins...)
}

func buildPlugin(logger ulogger.Logger, tSettings *settings.Settings, name string, entry *ManifestEntry) (Plugin, error) {
	module := entry.Module
	if module == "" {
		module = name
	}

	if len(entry.LokadIDs) == 0 {
		return nil, errors.NewConfigurationError("plugin %q has no LOKAD IDs", name)
	}

	lokadIDs := make([][]byte, len(entry.LokadIDs))

	for i, s := range entry.LokadIDs {
		id, err := ParseLokadID(s)
		if err != nil {
			return nil, errors.NewConfigurationError("plugin %q", name, err)
		}

		lokadIDs[i] = id
	}

	version := entry.Version
	if version == "" {
		version = "0.0.0"
	}

	factory, err := lookupModule(module)
	if err != nil {
		return nil, errors.NewConfigurationError("plugin %q", name, err)
	}

	id := &Identity{
		Name:     name,
		Module:   module,
		Version:  version,
		LokadIDs: lokadIDs,
		Reads:    entry.Reads,
	}

	p, err := factory(logger, tSettings, id, entry)
	if err != nil {
		return nil, errors.NewConfigurationError("failed to load plugin %q", name, err)
	}

	return p, nil
}

// LoadRegistry loads the manifest configured in tSettings and builds the
// registry for the configured network. A missing manifest yields an empty
// registry; any other problem is returned and must stop the index.
func LoadRegistry(logger ulogger.Logger, tSettings *settings.Settings) (*Registry, error) {
	path := tSettings.PluginIndex.ManifestPath

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Infof("[PluginRegistry] no plugin manifest at %s, running without plugins", path)
			return NewRegistry(logger)
		}

		return nil, errors.NewConfigurationError("failed to read plugin manifest %s", path, err)
	}

	manifest, err := ParseManifest(data)
	if err != nil {
		return nil, err
	}

	return manifest.Build(logger, tSettings, tSettings.Network)
}
