package commands

import (
	"fmt"
	"io"
	"slices"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fixhub/fixhub/internal/cli/ui"
	"github.com/fixhub/fixhub/internal/entities"
	"github.com/fixhub/fixhub/internal/orm/schema"
)

// NewEntitiesCommand lists the registered entities, or describes one
func NewEntitiesCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "entities [entity]",
		Short: "List registered entities or describe one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := entities.Registry()
			if err != nil {
				return fmt.Errorf("invalid entity definitions: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(args) == 0 {
				listEntities(out, registry, flags.noColor)
				return nil
			}

			meta, err := registry.Get(args[0])
			if err != nil {
				ui.UnknownEntityError(cmd.ErrOrStderr(), args[0], registry.Keys(), flags.noColor)
				return err
			}
			describeEntity(out, meta, flags.noColor)
			return nil
		},
	}
}

func listEntities(w io.Writer, registry *schema.Registry, noColor bool) {
	table := ui.NewTable(w, noColor, "Entity", "Table", "Fields", "Scoped by", "Dependents")
	for _, key := range registry.Keys() {
		meta, _ := registry.Get(key)
		table.AddRow(
			meta.Key,
			meta.Table,
			fmt.Sprint(len(meta.Fields)),
			scopes(meta),
			fmt.Sprint(len(meta.Dependents)),
		)
	}
	table.Render()
}

func describeEntity(w io.Writer, meta *schema.EntityMetadata, noColor bool) {
	ui.Heading(w, meta.Key, noColor)

	kv := ui.NewKeyValueTable(w, noColor)
	kv.AddRow("Table", meta.Table)
	kv.AddRow("Primary key", meta.PrimaryKey)
	if meta.IdentityField != "" {
		kv.AddRow("Identity", meta.IdentityField)
	}
	kv.AddRow("Default sort", meta.DefaultSort.Field+" "+strings.ToLower(meta.DefaultSort.Direction))
	kv.AddRow("Searchable", orNone(meta.SearchableFields))
	kv.AddRow("Filterable", orNone(meta.FilterableFields))
	kv.AddRow("Row scope", scopes(meta))
	switch {
	case meta.ReadOnly:
		kv.AddRow("Writable by", "nobody")
	case meta.WriteAccess != "":
		kv.AddRow("Writable by", meta.WriteAccess+"+")
	}
	if meta.Computed != nil {
		kv.AddRow("Computed", fmt.Sprintf("%s (%s-YYYYMMDD-XXXXXX)", meta.Computed.Field, meta.Computed.Prefix))
	}
	if p := meta.Protection; p != nil {
		kv.AddRow("Protected", fmt.Sprintf("%s in %s", p.ProtectedByField, strings.Join(p.ProtectedValues, ", ")))
	}
	var deps []string
	for _, d := range meta.Dependents {
		deps = append(deps, d.Table+"."+d.ForeignKey)
	}
	kv.AddRow("Dependents", orNone(deps))
	kv.Render()
	fmt.Fprintln(w)

	names := make([]string, 0, len(meta.Fields))
	for name := range meta.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	table := ui.NewTable(w, noColor, "Field", "Type", "Required", "Visible to")
	for _, name := range names {
		f := meta.Fields[name]
		required := ""
		if slices.Contains(meta.RequiredFields, name) {
			required = "yes"
		}
		access := f.Access
		switch access {
		case "":
			access = "everyone"
		case schema.AccessNone:
			access = "nobody"
		default:
			access += "+"
		}
		table.AddRow(name, f.Type.String(), required, access)
	}
	table.Render()
}

// scopes renders the RLS policy to column mapping, e.g.
// "assigned_only=assigned_technician_id"
func scopes(meta *schema.EntityMetadata) string {
	if meta.RLSResource == "" {
		return "-"
	}
	policies := make([]string, 0, len(meta.RLSColumns))
	for policy, column := range meta.RLSColumns {
		policies = append(policies, policy+"="+column)
	}
	sort.Strings(policies)
	return orNone(policies)
}

func orNone(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}
