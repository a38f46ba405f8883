package plugin

import (
	"bytes"
	"context"
)

// PushDataPlugin is the reference lineage plugin. Every push following the LOKAD
// ID in the OP_RETURN output is attached to the output at the next position
// (push i goes to output i+1). When inheriting, the data of the input at the
// same position as the push is appended after the new push, so lineage grows
// newest first.
type PushDataPlugin struct {
	id      *Identity
	inherit bool
	group   bool
}

func NewPushDataPlugin(id *Identity, inherit bool, group bool) *PushDataPlugin {
	return &PushDataPlugin{
		id:      id,
		inherit: inherit,
		group:   group,
	}
}

func (p *PushDataPlugin) Identity() *Identity {
	return p.id
}

func (p *PushDataPlugin) Run(_ context.Context, view *TxView) ([]*Output, error) {
	if len(view.Tx.Outputs) == 0 {
		return nil, nil
	}

	payload, ok := OpReturnPayload(view.Tx.Outputs[0].LockingScript)
	if !ok || len(payload) == 0 {
		return nil, nil
	}

	pushes := payload[1:]
	outputs := make([]*Output, 0, len(pushes))

	for idx, op := range pushes {
		if idx+1 >= len(view.Tx.Outputs) {
			break
		}

		// non-push opcodes contribute an empty segment
		pushed := bytes.Clone(op.Data)
		if pushed == nil {
			pushed = []byte{}
		}

		data := [][]byte{pushed}

		if p.inherit && idx < len(view.Inputs) {
			if entry, found := view.Inputs[idx][p.id.Name]; found {
				data = append(data, entry.Data...)
			}
		}

		output := &Output{
			Idx:  uint32(idx + 1),
			Data: data,
		}

		if p.group {
			output.Groups = [][]byte{pushed}
		}

		outputs = append(outputs, output)
	}

	return outputs, nil
}
