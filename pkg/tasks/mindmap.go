package tasks

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// NodeID accepts both string and numeric ids from the model.
type NodeID string

func (id *NodeID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = NodeID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("node id must be a string or number: %w", err)
	}
	*id = NodeID(n.String())
	return nil
}

type MindMapNode struct {
	ID    NodeID `json:"id"`
	Label string `json:"label"`
	Type  string `json:"type"`
	Color string `json:"color"`
}

type MindMapEdge struct {
	Source   NodeID `json:"source"`
	Target   NodeID `json:"target"`
	Animated bool   `json:"animated"`
}

// MindMapGraph is the node/edge structure rendered by the side panel.
type MindMapGraph struct {
	Nodes []MindMapNode `json:"nodes"`
	Edges []MindMapEdge `json:"edges"`
}

// DanglingEdges returns the edges whose source or target is not a node id.
func (g *MindMapGraph) DanglingEdges() []MindMapEdge {
	ids := make(map[NodeID]struct{}, len(g.Nodes))
	for _, n := range g.Nodes {
		ids[n.ID] = struct{}{}
	}
	var out []MindMapEdge
	for _, e := range g.Edges {
		_, okSource := ids[e.Source]
		_, okTarget := ids[e.Target]
		if !okSource || !okTarget {
			out = append(out, e)
		}
	}
	return out
}

// ParseMindMap decodes a completion into a graph. When strict decoding fails
// the Markdown code fences are stripped and decoding is attempted once more.
func ParseMindMap(raw string) (*MindMapGraph, error) {
	graph, err := decodeGraph(raw)
	if err == nil {
		return graph, nil
	}

	clean := strings.ReplaceAll(raw, "```json", "")
	clean = strings.ReplaceAll(clean, "```", "")
	graph, err = decodeGraph(strings.TrimSpace(clean))
	if err != nil {
		return nil, fmt.Errorf("failed to parse mind map JSON: %w", err)
	}
	return graph, nil
}

func decodeGraph(raw string) (*MindMapGraph, error) {
	if strings.TrimSpace(raw) == "" {
		raw = "{}"
	}
	var g MindMapGraph
	if err := json.Unmarshal([]byte(raw), &g); err != nil {
		return nil, err
	}
	if g.Nodes == nil {
		g.Nodes = []MindMapNode{}
	}
	if g.Edges == nil {
		g.Edges = []MindMapEdge{}
	}
	return &g, nil
}
