package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/aretw0/expipe/pkg/codec"
	"github.com/aretw0/expipe/pkg/core"
)

var (
	moduleAction string
	moduleEntity string
	moduleName   string
)

var moduleCmd = &cobra.Command{
	Use:   "module",
	Short: "Read and write modules",
	Long: `Read and write the modules of a project, or of one of its actions or
entities with --action / --entity. Nested modules are addressed with a
slash: "rig/camera".`,
}

// owner resolves the module owner selected by the flags.
func owner(ctx context.Context, p *core.Project) (core.ModuleOwner, error) {
	switch {
	case moduleAction != "" && moduleEntity != "":
		return nil, fmt.Errorf("--action and --entity are mutually exclusive")
	case moduleAction != "":
		return p.GetAction(ctx, moduleAction)
	case moduleEntity != "":
		return p.GetEntity(ctx, moduleEntity)
	}
	return p, nil
}

// lookup walks a slash-separated module path below o.
func lookup(ctx context.Context, o core.ModuleOwner, path string) (*core.Module, error) {
	var m *core.Module
	for _, name := range core.Split(path) {
		next, err := o.GetModule(ctx, name)
		if err != nil {
			return nil, err
		}
		m, o = next, next
	}
	if m == nil {
		return nil, fmt.Errorf("%w: empty module path", core.ErrInvalid)
	}
	return m, nil
}

var moduleShowCmd = &cobra.Command{
	Use:   "show <module>",
	Short: "Print a module as JSON",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		h, p, err := openProject(ctx)
		if err != nil {
			fatal("Failed to open project", err)
		}
		defer h.Close()

		o, err := owner(ctx, p)
		if err != nil {
			fatal("Failed to open owner", err)
		}
		m, err := lookup(ctx, o, args[0])
		if err != nil {
			fatal("Failed to open module", err)
		}
		data, err := m.ToJSON(ctx)
		if err != nil {
			fatal("Failed to render module", err)
		}
		fmt.Println(string(data))
	},
}

var moduleSetCmd = &cobra.Command{
	Use:   "set <module> <key=value>...",
	Short: "Set values in a module, creating it if needed",
	Long: `Set values in a module. Values are read as YAML scalars; a number
followed by a unit ("200 V/V") is stored as a quantity.`,
	Args: cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		h, p, err := openProject(ctx)
		if err != nil {
			fatal("Failed to open project", err)
		}
		defer h.Close()

		values := make(map[string]any, len(args)-1)
		for _, kv := range args[1:] {
			k, v, ok := strings.Cut(kv, "=")
			if !ok {
				fatal("Bad assignment", fmt.Errorf("%q is not key=value", kv))
			}
			values[k] = parseValue(v)
		}

		o, err := owner(ctx, p)
		if err != nil {
			fatal("Failed to open owner", err)
		}
		segs := core.Split(args[0])
		if len(segs) == 0 {
			fatal("Bad module", fmt.Errorf("%w: empty module path", core.ErrInvalid))
		}
		if len(segs) > 1 {
			parent, err := lookup(ctx, o, core.Join(segs[:len(segs)-1]...))
			if err != nil {
				fatal("Failed to open module", err)
			}
			o = parent
		}
		m, err := o.RequireModule(ctx, segs[len(segs)-1])
		if err != nil {
			fatal("Failed to open module", err)
		}
		if err := m.Update(ctx, values); err != nil {
			fatal("Failed to update module", err)
		}
		fmt.Println("Updated", m)
	},
}

// parseValue reads a command-line value.
func parseValue(s string) any {
	if num, unit, ok := strings.Cut(strings.TrimSpace(s), " "); ok {
		if f, err := strconv.ParseFloat(num, 64); err == nil {
			if _, err := codec.ParseUnit(strings.TrimSpace(unit)); err == nil {
				return codec.Q(f, strings.TrimSpace(unit))
			}
		}
	}
	var v any
	if err := yaml.Unmarshal([]byte(s), &v); err != nil || v == nil {
		return s
	}
	switch v.(type) {
	case map[string]any, []any:
		return s
	}
	return v
}

var moduleTemplateCmd = &cobra.Command{
	Use:   "template <template>",
	Short: "Create a module from a project template",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		h, p, err := openProject(ctx)
		if err != nil {
			fatal("Failed to open project", err)
		}
		defer h.Close()

		o, err := owner(ctx, p)
		if err != nil {
			fatal("Failed to open owner", err)
		}
		m, err := o.CreateModule(ctx, moduleName, core.FromTemplate(args[0]))
		if err != nil {
			fatal("Failed to create module", err)
		}
		fmt.Println("Created", m)
	},
}

func init() {
	rootCmd.AddCommand(moduleCmd)
	moduleCmd.AddCommand(moduleShowCmd, moduleSetCmd, moduleTemplateCmd)
	moduleCmd.PersistentFlags().StringVar(&moduleAction, "action", "", "Operate on the modules of this action")
	moduleCmd.PersistentFlags().StringVar(&moduleEntity, "entity", "", "Operate on the modules of this entity")
	moduleTemplateCmd.Flags().StringVar(&moduleName, "name", "", "Module name (default: the template identifier)")
}
