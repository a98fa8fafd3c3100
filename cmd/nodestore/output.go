package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/syssam/nodestore/dialect/sql"
	"github.com/syssam/nodestore/graph"
	"github.com/syssam/nodestore/pool"
)

type nodeView struct {
	Ref       string          `json:"ref"`
	Parent    string          `json:"parent"`
	Name      string          `json:"name,omitempty"`
	Number    *float64        `json:"number,omitempty"`
	Date      *time.Time      `json:"date,omitempty"`
	String    *string         `json:"string,omitempty"`
	Binary    int             `json:"binary_bytes,omitempty"`
	BodyType  string          `json:"body_type,omitempty"`
	Body      json.RawMessage `json:"body,omitempty"`
	Order     int64           `json:"order"`
	SubTypes  string          `json:"sub_types,omitempty"`
	Created   time.Time       `json:"created"`
	Modified  time.Time       `json:"modified"`
	Revision  int64           `json:"revision"`
	Children  []*nodeView     `json:"children,omitempty"`
	Relations []*nodeView     `json:"relations,omitempty"`
	ParentOf  *nodeView       `json:"parent_node,omitempty"`
}

func viewOf(n *graph.Node) *nodeView {
	return viewOfSeen(n, map[*graph.Node]bool{})
}

// viewOfSeen renders the edges of each node once; a node met again
// within its own subtree is rendered without edges.
func viewOfSeen(n *graph.Node, seen map[*graph.Node]bool) *nodeView {
	v := &nodeView{
		Ref:      n.Ref().String(),
		Parent:   n.Parent.String(),
		Name:     n.Name,
		Number:   n.NumberValue,
		Date:     n.DateValue,
		String:   n.StringValue,
		Binary:   len(n.BinaryValue),
		BodyType: n.BodyType,
		Order:    n.Order,
		SubTypes: n.SubTypes.Serialize(),
		Created:  n.Created,
		Modified: n.Modified,
		Revision: n.Revision,
	}
	if n.Body != "" && json.Valid([]byte(n.Body)) {
		v.Body = json.RawMessage(n.Body)
	}
	if seen[n] {
		return v
	}
	seen[n] = true
	defer delete(seen, n)
	if children, err := n.Edges.ChildrenOrErr(); err == nil {
		for _, c := range children {
			v.Children = append(v.Children, viewOfSeen(c, seen))
		}
	}
	if relations, err := n.Edges.RelationsOrErr(); err == nil {
		for _, r := range relations {
			v.Relations = append(v.Relations, viewOfSeen(r, seen))
		}
	}
	if p, err := n.Edges.ParentOrErr(); err == nil && p != nil {
		v.ParentOf = viewOfSeen(p, seen)
	}
	return v
}

type typeView struct {
	Type    string `json:"type"`
	Ordinal int    `json:"ordinal"`
	Table   string `json:"table"`
}

type validationView struct {
	Table    string `json:"table"`
	Result   string `json:"result"`
	Breaking bool   `json:"breaking"`
}

type statsView struct {
	Dialect string            `json:"dialect"`
	Address string            `json:"address"`
	Tables  int               `json:"tables"`
	Pool    pool.Stats        `json:"pool"`
	Queries sql.StatsSnapshot `json:"statements"`
}

// print writes v as JSON, or calls text with a tabular printer.
func (a *app) print(cmd *cobra.Command, v any, text func(*printer)) error {
	if a.output == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	p := &printer{w: tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)}
	text(p)
	return p.w.Flush()
}

func (a *app) printNodes(cmd *cobra.Command, nodes []*graph.Node) error {
	views := make([]*nodeView, len(nodes))
	for i, n := range nodes {
		views[i] = viewOf(n)
	}
	return a.print(cmd, views, func(p *printer) {
		p.row("REF", "NAME", "ORDER", "MODIFIED")
		for _, v := range views {
			p.row(v.Ref, v.Name, fmt.Sprint(v.Order), v.Modified.Format(time.RFC3339))
		}
	})
}

type printer struct {
	w *tabwriter.Writer
}

func (p *printer) line(s string) {
	fmt.Fprintln(p.w, s)
}

func (p *printer) row(cols ...string) {
	fmt.Fprintln(p.w, strings.Join(cols, "\t"))
}

// node writes v and its loaded edges, indented by depth.
func (p *printer) node(v *nodeView, depth int) {
	indent := strings.Repeat("  ", depth)
	p.row(indent+"ref", v.Ref)
	p.row(indent+"parent", v.Parent)
	if v.Name != "" {
		p.row(indent+"name", v.Name)
	}
	if v.Number != nil {
		p.row(indent+"number", fmt.Sprint(*v.Number))
	}
	if v.Date != nil {
		p.row(indent+"date", v.Date.Format(time.RFC3339Nano))
	}
	if v.String != nil {
		p.row(indent+"string", *v.String)
	}
	if v.Binary > 0 {
		p.row(indent+"binary", fmt.Sprintf("%d bytes", v.Binary))
	}
	if v.BodyType != "" {
		p.row(indent+"body", v.BodyType)
	}
	if v.SubTypes != "" {
		p.row(indent+"sub types", v.SubTypes)
	}
	p.row(indent+"order", fmt.Sprint(v.Order))
	p.row(indent+"revision", fmt.Sprint(v.Revision))
	p.row(indent+"modified", v.Modified.Format(time.RFC3339Nano))
	for _, c := range v.Children {
		p.row(indent+"child", "")
		p.node(c, depth+1)
	}
	for _, r := range v.Relations {
		p.row(indent+"relation", "")
		p.node(r, depth+1)
	}
	if v.ParentOf != nil {
		p.row(indent+"parent node", "")
		p.node(v.ParentOf, depth+1)
	}
}
