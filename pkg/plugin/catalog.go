package plugin

import (
	"sort"
	"sync"

	"github.com/bsv-blockchain/plugindex/errors"
	"github.com/bsv-blockchain/plugindex/settings"
	"github.com/bsv-blockchain/plugindex/ulogger"
)

// Factory builds a plugin from its manifest entry.
type Factory func(logger ulogger.Logger, tSettings *settings.Settings, id *Identity, entry *ManifestEntry) (Plugin, error)

var (
	availableModulesMu sync.RWMutex
	availableModules   = map[string]Factory{}
)

// RegisterModule makes a plugin implementation available to manifests under name.
// Registering the same name twice panics.
func RegisterModule(name string, factory Factory) {
	availableModulesMu.Lock()
	defer availableModulesMu.Unlock()

	if _, exists := availableModules[name]; exists {
		panic("plugin module registered twice: " + name)
	}

	availableModules[name] = factory
}

// Modules returns the names of all registered implementations.
func Modules() []string {
	availableModulesMu.RLock()
	defer availableModulesMu.RUnlock()

	names := make([]string, 0, len(availableModules))
	for name := range availableModules {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

func lookupModule(name string) (Factory, error) {
	availableModulesMu.RLock()
	defer availableModulesMu.RUnlock()

	factory, ok := availableModules[name]
	if !ok {
		return nil, errors.NewConfigurationError("unknown plugin module %q", name)
	}

	return factory, nil
}

func init() {
	RegisterModule("pushdata", func(_ ulogger.Logger, _ *settings.Settings, id *Identity, entry *ManifestEntry) (Plugin, error) {
		inherit, err := entry.BoolOption("inherit", true)
		if err != nil {
			return nil, err
		}

		group, err := entry.BoolOption("group", false)
		if err != nil {
			return nil, err
		}

		return NewPushDataPlugin(id, inherit, group), nil
	})

	RegisterModule("exec", func(_ ulogger.Logger, tSettings *settings.Settings, id *Identity, entry *ManifestEntry) (Plugin, error) {
		maxOutput := 0
		if tSettings != nil {
			maxOutput = tSettings.PluginIndex.ExecMaxOutputBytes
		}

		return NewExecPlugin(id, entry.Command, maxOutput)
	})
}
