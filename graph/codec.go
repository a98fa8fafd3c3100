package graph

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// encodeNode encodes the row of n, keyed by column. Edges are not
// encoded.
func encodeNode(n *Node) ([]byte, error) {
	fields := n.Fields()
	row := make(map[string]any, len(fields))
	for _, f := range fields {
		v, err := f.Value()
		if err != nil {
			return nil, err
		}
		row[f.Descriptor().Name] = v
	}
	b, err := msgpack.Marshal(row)
	if err != nil {
		return nil, fmt.Errorf("graph: encode node %s: %w", n.Guid, err)
	}
	return b, nil
}

// decodeNode scans a row encoded by encodeNode into a new node.
func decodeNode(b []byte) (*Node, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(b))
	dec.UseLooseInterfaceDecoding(true)
	var row map[string]any
	if err := dec.Decode(&row); err != nil {
		return nil, fmt.Errorf("graph: decode node: %w", err)
	}
	n := &Node{}
	for _, f := range n.Fields() {
		if err := f.Scan(row[f.Descriptor().Name]); err != nil {
			return nil, fmt.Errorf("graph: decode node: %w", err)
		}
	}
	return n, nil
}
