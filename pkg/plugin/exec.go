package plugin

import (
	"bytes"
	"context"
	"encoding/hex"
	"os/exec"
	"time"

	"github.com/bsv-blockchain/plugindex/errors"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ExecPlugin runs an external command per transaction. The command receives an
// execRequest as JSON on stdin and must answer with an execResponse on stdout.
// All byte strings are hex encoded. The command is killed when ctx is done.
type ExecPlugin struct {
	id             *Identity
	command        []string
	maxOutputBytes int
}

type execEntry struct {
	Data   []string `json:"data"`
	Groups []string `json:"groups,omitempty"`
}

type execInput struct {
	Plugins map[string]execEntry `json:"plugins"`
}

type execRequest struct {
	Plugin string      `json:"plugin"`
	TxID   string      `json:"txid"`
	Tx     string      `json:"tx"`
	Inputs []execInput `json:"inputs"`
}

type execOutput struct {
	Idx    uint32   `json:"idx"`
	Data   []string `json:"data"`
	Groups []string `json:"groups,omitempty"`
}

type execResponse struct {
	Outputs []execOutput `json:"outputs"`
	Error   string       `json:"error,omitempty"`
}

func NewExecPlugin(id *Identity, command []string, maxOutputBytes int) (*ExecPlugin, error) {
	if len(command) == 0 || command[0] == "" {
		return nil, errors.NewConfigurationError("exec plugin %q has no command", id.Name)
	}

	return &ExecPlugin{
		id:             id,
		command:        command,
		maxOutputBytes: maxOutputBytes,
	}, nil
}

func (p *ExecPlugin) Identity() *Identity {
	return p.id
}

func (p *ExecPlugin) Run(ctx context.Context, view *TxView) ([]*Output, error) {
	request := execRequest{
		Plugin: p.id.Name,
		TxID:   view.TxID.String(),
		Tx:     hex.EncodeToString(view.Tx.Bytes()),
		Inputs: make([]execInput, len(view.Inputs)),
	}

	for i, input := range view.Inputs {
		request.Inputs[i].Plugins = make(map[string]execEntry, len(input))

		for name, entry := range input {
			request.Inputs[i].Plugins[name] = execEntry{
				Data:   encodeSegments(entry.Data),
				Groups: encodeSegments(entry.Groups),
			}
		}
	}

	requestBytes, err := json.Marshal(request)
	if err != nil {
		return nil, errors.NewPluginInvocationError("failed to encode request for plugin %s", p.id.Name, err)
	}

	stdout := &limitedBuffer{limit: p.maxOutputBytes}
	stderr := &limitedBuffer{limit: 4096}

	// #nosec G204 the command comes from the operator's manifest
	cmd := exec.CommandContext(ctx, p.command[0], p.command[1:]...)
	cmd.Stdin = bytes.NewReader(requestBytes)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = time.Second

	if err = cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, errors.NewPluginInvocationError("plugin %s did not finish", p.id.Name, ctx.Err())
		}

		return nil, errors.NewPluginInvocationError("plugin %s failed: %s", p.id.Name, stderr.String(), err)
	}

	if stdout.overflow {
		return nil, errors.NewPluginInvocationError("plugin %s wrote more than %d bytes", p.id.Name, p.maxOutputBytes)
	}

	var response execResponse
	if err = json.Unmarshal(stdout.Bytes(), &response); err != nil {
		return nil, errors.NewPluginInvocationError("plugin %s returned invalid JSON", p.id.Name, err)
	}

	if response.Error != "" {
		return nil, errors.NewPluginInvocationError("plugin %s reported: %s", p.id.Name, response.Error)
	}

	outputs := make([]*Output, len(response.Outputs))

	for i, o := range response.Outputs {
		data, err := decodeSegments(o.Data)
		if err != nil {
			return nil, errors.NewPluginResultError("plugin %s returned invalid data for output %d", p.id.Name, o.Idx, err)
		}

		groups, err := decodeSegments(o.Groups)
		if err != nil {
			return nil, errors.NewPluginResultError("plugin %s returned invalid groups for output %d", p.id.Name, o.Idx, err)
		}

		outputs[i] = &Output{Idx: o.Idx, Data: data, Groups: groups}
	}

	return outputs, nil
}

// encodeSegments converts segments to the hex form used on the exec wire.
func encodeSegments(segments [][]byte) []string {
	encoded := make([]string, len(segments))
	for i, s := range segments {
		encoded[i] = hex.EncodeToString(s)
	}

	return encoded
}

func decodeSegments(encoded []string) ([][]byte, error) {
	if len(encoded) == 0 {
		return nil, nil
	}

	segments := make([][]byte, len(encoded))

	for i, s := range encoded {
		b, err := hex.DecodeString(s)
		if err != nil {
			return nil, err
		}

		segments[i] = b
	}

	return segments, nil
}

// limitedBuffer keeps at most limit bytes and records whether more were written.
type limitedBuffer struct {
	bytes.Buffer
	limit    int
	overflow bool
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if b.limit > 0 && b.Len()+len(p) > b.limit {
		b.overflow = true
		_, _ = b.Buffer.Write(p[:max(0, b.limit-b.Len())])

		return len(p), nil
	}

	return b.Buffer.Write(p)
}
