package plugin

import (
	"sort"
	"strings"

	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/plugindex/errors"
	"github.com/bsv-blockchain/plugindex/ulogger"
)

// Registry is the immutable set of loaded plugins, indexed by name and by LOKAD ID.
type Registry struct {
	plugins []Plugin
	byName  map[string]Plugin
	byLokad map[string][]Plugin
}

// NewRegistry validates the plugins and builds the lookup tables. It fails on
// duplicate names, plugins without LOKAD IDs and reads of unknown plugins.
func NewRegistry(logger ulogger.Logger, plugins ...Plugin) (*Registry, error) {
	r := &Registry{
		plugins: make([]Plugin, 0, len(plugins)),
		byName:  make(map[string]Plugin, len(plugins)),
		byLokad: make(map[string][]Plugin),
	}

	for _, p := range plugins {
		id := p.Identity()
		if id == nil || id.Name == "" {
			return nil, errors.NewConfigurationError("plugin without a name")
		}

		if _, exists := r.byName[id.Name]; exists {
			return nil, errors.NewConfigurationError("duplicate plugin name %q", id.Name)
		}

		if len(id.LokadIDs) == 0 {
			return nil, errors.NewConfigurationError("plugin %q has no LOKAD IDs", id.Name)
		}

		r.byName[id.Name] = p
		r.plugins = append(r.plugins, p)
	}

	for _, p := range r.plugins {
		id := p.Identity()

		for _, read := range id.Reads {
			if _, ok := r.byName[read]; !ok {
				return nil, errors.NewConfigurationError("plugin %q reads unknown plugin %q", id.Name, read)
			}
		}

		seen := make(map[string]struct{}, len(id.LokadIDs))

		for _, lokadID := range id.LokadIDs {
			if len(lokadID) == 0 {
				return nil, errors.NewConfigurationError("plugin %q has an empty LOKAD ID", id.Name)
			}

			if _, dup := seen[string(lokadID)]; dup {
				continue
			}

			seen[string(lokadID)] = struct{}{}
			r.byLokad[string(lokadID)] = append(r.byLokad[string(lokadID)], p)
		}

		logger.Infof("Loaded plugin %s.%s (version %s) with LOKAD IDs [%s]", id.Name, id.Module, id.Version, formatLokadIDs(id.LokadIDs))
	}

	// plugins sharing a LOKAD ID run in name order
	for _, list := range r.byLokad {
		sort.Slice(list, func(i, j int) bool {
			return list[i].Identity().Name < list[j].Identity().Name
		})
	}

	return r, nil
}

// Lookup returns the plugins registered for lokadID, or nil.
func (r *Registry) Lookup(lokadID []byte) []Plugin {
	if r == nil {
		return nil
	}

	return r.byLokad[string(lokadID)]
}

// Dispatch returns the plugins a transaction must be run through: those
// registered for the LOKAD ID pushed after the OP_RETURN of its first output.
func (r *Registry) Dispatch(tx *bt.Tx) []Plugin {
	if r == nil || tx == nil || len(tx.Outputs) == 0 {
		return nil
	}

	lokadID, ok := ProtocolID(tx.Outputs[0].LockingScript)
	if !ok {
		return nil
	}

	return r.Lookup(lokadID)
}

func (r *Registry) Get(name string) (Plugin, bool) {
	if r == nil {
		return nil, false
	}

	p, ok := r.byName[name]

	return p, ok
}

// Plugins returns the loaded plugins in load order.
func (r *Registry) Plugins() []Plugin {
	if r == nil {
		return nil
	}

	return r.plugins
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}

	return len(r.plugins)
}

func formatLokadIDs(ids [][]byte) string {
	formatted := make([]string, len(ids))
	for i, id := range ids {
		formatted[i] = FormatLokadID(id)
	}

	return strings.Join(formatted, ", ")
}
