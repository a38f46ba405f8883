package model

import (
	"bytes"
	"sort"

	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/plugindex/errors"
)

// PluginEntry is the ordered data one plugin attached to one output, plus the
// groups the output was placed in. An entry with no Data is an explicit empty
// annotation and is distinct from the plugin having no entry at all.
type PluginEntry struct {
	Data   [][]byte
	Groups [][]byte
}

// PluginMap maps a plugin name to its entry on a single output or input.
type PluginMap map[string]*PluginEntry

// PluginRecord is a PluginEntry bound to the output and plugin that own it.
type PluginRecord struct {
	Vout   uint32
	Plugin string
	Entry  *PluginEntry
}

func (e *PluginEntry) Equal(other *PluginEntry) bool {
	if e == nil || other == nil {
		return e == other
	}

	return segmentsEqual(e.Data, other.Data) && segmentsEqual(e.Groups, other.Groups)
}

func (e *PluginEntry) Clone() *PluginEntry {
	if e == nil {
		return nil
	}

	return &PluginEntry{
		Data:   cloneSegments(e.Data),
		Groups: cloneSegments(e.Groups),
	}
}

// Bytes serializes the entry as two varint prefixed lists of varint prefixed segments.
func (e *PluginEntry) Bytes() []byte {
	size := 2
	for _, d := range e.Data {
		size += 9 + len(d)
	}

	for _, g := range e.Groups {
		size += 9 + len(g)
	}

	buf := make([]byte, 0, size)
	buf = appendSegments(buf, e.Data)
	buf = appendSegments(buf, e.Groups)

	return buf
}

func NewPluginEntryFromBytes(b []byte) (*PluginEntry, error) {
	data, n, err := readSegments(b)
	if err != nil {
		return nil, errors.NewProcessingError("failed to read plugin data segments", err)
	}

	groups, m, err := readSegments(b[n:])
	if err != nil {
		return nil, errors.NewProcessingError("failed to read plugin group segments", err)
	}

	if n+m != len(b) {
		return nil, errors.NewProcessingError("plugin entry has %d trailing bytes", len(b)-n-m)
	}

	return &PluginEntry{Data: data, Groups: groups}, nil
}

// Restrict returns the subset of the map visible to the given plugin names.
func (m PluginMap) Restrict(names ...string) PluginMap {
	restricted := make(PluginMap, len(names))

	for _, name := range names {
		if entry, ok := m[name]; ok {
			restricted[name] = entry
		}
	}

	return restricted
}

// Names returns the plugin names present in the map in sorted order.
func (m PluginMap) Names() []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

func (m PluginMap) Equal(other PluginMap) bool {
	if len(m) != len(other) {
		return false
	}

	for name, entry := range m {
		otherEntry, ok := other[name]
		if !ok || !entry.Equal(otherEntry) {
			return false
		}
	}

	return true
}

func segmentsEqual(a, b [][]byte) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if !bytes.Equal(a[i], b[i]) {
			return false
		}
	}

	return true
}

func cloneSegments(segments [][]byte) [][]byte {
	if segments == nil {
		return nil
	}

	cloned := make([][]byte, len(segments))
	for i, s := range segments {
		cloned[i] = bytes.Clone(s)
	}

	return cloned
}

func appendSegments(buf []byte, segments [][]byte) []byte {
	buf = append(buf, bt.VarInt(uint64(len(segments))).Bytes()...)

	for _, s := range segments {
		buf = append(buf, bt.VarInt(uint64(len(s))).Bytes()...)
		buf = append(buf, s...)
	}

	return buf
}

func readSegments(b []byte) ([][]byte, int, error) {
	count, offset, err := readVarInt(b)
	if err != nil {
		return nil, 0, err
	}

	if count > uint64(len(b)) {
		return nil, 0, errors.NewProcessingError("segment count %d exceeds buffer size", count)
	}

	segments := make([][]byte, 0, count)

	for i := uint64(0); i < count; i++ {
		l, n, err := readVarInt(b[offset:])
		if err != nil {
			return nil, 0, err
		}

		offset += n

		if l > uint64(len(b)-offset) {
			return nil, 0, errors.NewProcessingError("segment %d length %d exceeds buffer", i, l)
		}

		segments = append(segments, bytes.Clone(b[offset:offset+int(l)]))
		offset += int(l)
	}

	return segments, offset, nil
}

// readVarInt decodes a bitcoin varint, refusing to read past the end of b.
func readVarInt(b []byte) (uint64, int, error) {
	if len(b) == 0 {
		return 0, 0, errors.NewProcessingError("unexpected end of data reading varint")
	}

	size := 1

	switch b[0] {
	case 0xfd:
		size = 3
	case 0xfe:
		size = 5
	case 0xff:
		size = 9
	}

	if len(b) < size {
		return 0, 0, errors.NewProcessingError("unexpected end of data reading %d byte varint", size)
	}

	v, n := bt.NewVarIntFromBytes(b[:size])

	return uint64(v), n, nil
}
