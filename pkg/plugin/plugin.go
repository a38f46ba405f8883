// Package plugin defines the plugin contract of the output-annotation index: the
// identity a plugin registers under, the read-only view it is invoked with, the
// results it returns and the registry that dispatches transactions by LOKAD ID.
package plugin

import (
	"context"

	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/bsv-blockchain/plugindex/model"
)

// Identity describes a loaded plugin.
type Identity struct {
	// Name is unique within a registry and keys every record the plugin writes.
	Name string
	// Module names the implementation the plugin was built from.
	Module  string
	Version string
	// LokadIDs are the protocol identifiers the plugin is dispatched for.
	LokadIDs [][]byte
	// Reads lists other plugins whose input data this plugin may see, in addition
	// to its own.
	Reads []string
}

// Visible returns the plugin names whose data is exposed on the inputs handed to
// this plugin.
func (i *Identity) Visible() []string {
	names := make([]string, 0, 1+len(i.Reads))
	names = append(names, i.Name)

	for _, r := range i.Reads {
		if r != i.Name {
			names = append(names, r)
		}
	}

	return names
}

// Output is one result entry: the data and groups to attach to output Idx.
type Output struct {
	Idx    uint32
	Data   [][]byte
	Groups [][]byte
}

// TxView is everything a plugin may look at: the transaction itself and, for
// every input, the data of the spent output restricted to the plugin's visible
// names. Plugins must not modify it.
type TxView struct {
	TxID   *chainhash.Hash
	Tx     *bt.Tx
	Inputs []model.PluginMap
}

// Plugin computes annotations for a transaction. Run must be a pure function of
// the view: the index calls it once per transaction and relies on the result
// being the same whenever the same view is presented.
type Plugin interface {
	Identity() *Identity
	Run(ctx context.Context, view *TxView) ([]*Output, error)
}
