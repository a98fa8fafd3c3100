package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/syssam/nodestore/graph"
)

func (a *app) tablesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List the tables of the store schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tables, err := a.client.Tables(cmd.Context())
			if err != nil {
				return err
			}
			return a.print(cmd, tables, func(p *printer) {
				for _, t := range tables {
					p.line(t)
				}
			})
		},
	}
}

func (a *app) typesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List the declared node types and their tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var views []typeView
			for _, def := range a.types.Definitions() {
				tags, err := a.types.Tags(def)
				if err != nil {
					return err
				}
				for _, t := range tags {
					views = append(views, typeView{Type: t.String(), Ordinal: t.Ordinal, Table: graph.TableName(t)})
				}
			}
			return a.print(cmd, views, func(p *printer) {
				p.row("TYPE", "ORDINAL", "TABLE")
				for _, v := range views {
					p.row(v.Type, fmt.Sprint(v.Ordinal), v.Table)
				}
			})
		},
	}
}

func (a *app) getCmd() *cobra.Command {
	var (
		children  []string
		relations []string
		allRels   bool
		parent    bool
	)
	cmd := &cobra.Command{
		Use:   "get REF",
		Short: "Show a node and the edges selected by flags",
		Example: `  nodestore get ItemType=Folder/0b5c6e0e-... --children ItemType=Document
  nodestore get ItemType=Document/9a1f... --all-relations --parent -o json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := a.ref(args[0])
			if err != nil {
				return err
			}
			var opts []graph.ResolveOption
			if len(children) > 0 {
				types, err := a.tags(children)
				if err != nil {
					return err
				}
				opts = append(opts, graph.ChildrenOfType(types...))
			}
			switch {
			case allRels:
				opts = append(opts, graph.RelationsOfType())
			case len(relations) > 0:
				types, err := a.tags(relations)
				if err != nil {
					return err
				}
				opts = append(opts, graph.RelationsOfType(types...))
			}
			if parent {
				opts = append(opts, graph.WithParent())
			}
			n, err := a.client.GetByReference(cmd.Context(), ref, graph.Resolve(opts...))
			if err != nil {
				return err
			}
			v := viewOf(n)
			return a.print(cmd, v, func(p *printer) { p.node(v, 0) })
		},
	}
	cmd.Flags().StringSliceVar(&children, "children", nil, "load children of these types, recursively")
	cmd.Flags().StringSliceVar(&relations, "relations", nil, "load relations of these types")
	cmd.Flags().BoolVar(&allRels, "all-relations", false, "load relations of every type")
	cmd.Flags().BoolVar(&parent, "parent", false, "load the parent")
	return cmd
}

func (a *app) childrenCmd() *cobra.Command {
	var recursive bool
	cmd := &cobra.Command{
		Use:   "children REF [TYPE...]",
		Short: "List the children of a node",
		Long: `List the children of a node, of the given types or of every type.
With --recursive the walk continues through every child found.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := a.ref(args[0])
			if err != nil {
				return err
			}
			types, err := a.tags(args[1:])
			if err != nil {
				return err
			}
			list := a.client.GetDirectChildren
			if recursive {
				list = a.client.GetChildren
			}
			nodes, err := list(cmd.Context(), ref, types...)
			if err != nil {
				return err
			}
			return a.printNodes(cmd, nodes)
		},
	}
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "walk through every child found")
	return cmd
}

func (a *app) relationsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "relations REF [TYPE...]",
		Short: "List the nodes related to a node",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := a.ref(args[0])
			if err != nil {
				return err
			}
			types, err := a.tags(args[1:])
			if err != nil {
				return err
			}
			nodes, err := a.client.GetRelations(cmd.Context(), ref, types...)
			if err != nil {
				return err
			}
			return a.printNodes(cmd, nodes)
		},
	}
}

func (a *app) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete REF",
		Short: "Delete the row of a node; its edges are kept",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := a.ref(args[0])
			if err != nil {
				return err
			}
			if err := a.client.Delete(cmd.Context(), ref); err != nil {
				return err
			}
			cmd.Printf("deleted %s\n", ref)
			return nil
		},
	}
}

func (a *app) dropTableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "drop-table TYPE",
		Short: "Drop the table of a node type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := a.types.Parse(args[0])
			if err != nil {
				return err
			}
			if err := a.client.DropTable(cmd.Context(), t); err != nil {
				return err
			}
			cmd.Printf("dropped %s\n", graph.TableName(t))
			return nil
		},
	}
}

func (a *app) validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate TYPE...",
		Short: "Compare node tables with the node column layout",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			types, err := a.tags(args)
			if err != nil {
				return err
			}
			breaking := 0
			views := make([]validationView, 0, len(types))
			for _, t := range types {
				res, err := a.client.ValidateTable(cmd.Context(), t)
				if err != nil {
					return err
				}
				if res.HasBreakingChanges() {
					breaking++
				}
				views = append(views, validationView{Table: graph.TableName(t), Result: res.String(), Breaking: res.HasBreakingChanges()})
			}
			err = a.print(cmd, views, func(p *printer) {
				for _, v := range views {
					p.line(v.Table + ": " + v.Result)
				}
			})
			if err == nil && breaking > 0 {
				err = fmt.Errorf("%d table(s) with breaking changes", breaking)
			}
			return err
		},
	}
}

func (a *app) statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show table, pool and statement counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tables, err := a.client.Tables(cmd.Context())
			if err != nil {
				return err
			}
			v := statsView{
				Dialect: a.client.Config().Database.Dialect,
				Address: a.client.Config().Database.Address(),
				Tables:  len(tables),
				Pool:    a.client.PoolStats(),
				Queries: a.client.QueryStats(),
			}
			return a.print(cmd, v, func(p *printer) {
				p.row("dialect", v.Dialect)
				p.row("address", v.Address)
				p.row("tables", fmt.Sprint(v.Tables))
				p.row("pool", v.Pool.String())
				p.row("statements", v.Queries.String())
			})
		},
	}
}
