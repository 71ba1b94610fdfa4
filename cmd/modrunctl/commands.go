package main

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/modrun/modrun"
	"github.com/modrun/modrun/proptype"
)

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every registered module type (property types are not listed)",
		RunE: func(cmd *cobra.Command, args []string) error {
			types := modrun.RegisteredTypes()
			sort.Strings(types)
			fmt.Fprintf(cmd.OutOrStdout(), "%s registered module type(s):\n", humanize.Comma(int64(len(types))))
			for _, t := range types {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", t)
			}
			return nil
		},
	}
}

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <config.toml>",
		Short: "Load a config and report each module's readiness",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mm, err := buildManager(args[0])
			if err != nil {
				return err
			}
			keys := mm.Keys()
			sort.Strings(keys)
			allReady := true
			for _, key := range keys {
				m, err := mm.At(key)
				if err != nil {
					return err
				}
				if m.Ready() {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: ready\n", key)
					continue
				}
				allReady = false
				report := m.ListNotReady()
				fmt.Fprintf(cmd.OutOrStdout(), "%s: not ready (inputs=%v submodules=%v)\n", key, report.Inputs, report.Submodules)
			}
			if !allReady {
				return fmt.Errorf("modrunctl: one or more modules are not ready")
			}
			return nil
		},
	}
}

func newDescribeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "describe <config.toml> <module-key>",
		Short: "Print a module's resolved input/submodule/result state",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			mm, err := buildManager(args[0])
			if err != nil {
				return err
			}
			desc, err := mm.Describe(args[1])
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), desc)
			return nil
		},
	}
}

func newRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run <config.toml> <module-key> <property-type> [args...]",
		Short: "Run a module as a registered property type with positional arguments",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			mm, err := buildManager(args[0])
			if err != nil {
				return err
			}
			pt, err := modrun.LookupPropertyType(args[2])
			if err != nil {
				return err
			}
			coerced, err := coerceArgs(pt, args[3:])
			if err != nil {
				return err
			}
			results, err := mm.RunAs(context.Background(), args[1], pt, coerced...)
			if err != nil {
				return err
			}
			eff, err := proptype.EffectiveResults(pt)
			if err != nil {
				return err
			}
			for i := 0; i < eff.Len(); i++ {
				name := eff.NameAt(i)
				fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", name, results[name])
			}
			return nil
		},
	}
}

// coerceArgs converts raw CLI string arguments into the Go types
// pt's effective input fields declare, so "modrunctl run ... 1.23 4.56"
// can populate float64 fields without the shell having typed values.
func coerceArgs(pt proptype.PropertyType, raw []string) ([]any, error) {
	eff, err := proptype.EffectiveInputs(pt)
	if err != nil {
		return nil, err
	}
	if len(raw) != eff.Len() {
		return nil, fmt.Errorf("modrunctl: %s expects %d argument(s), got %d", pt.Name(), eff.Len(), len(raw))
	}
	out := make([]any, eff.Len())
	for i, s := range raw {
		typ := eff.FieldAt(i).Type()
		if typ == nil {
			out[i] = s
			continue
		}
		v, err := coerceOne(typ, s)
		if err != nil {
			return nil, fmt.Errorf("modrunctl: argument %d (%s): %w", i, eff.NameAt(i), err)
		}
		out[i] = v
	}
	return out, nil
}

// coerceOne parses s into typ's exact concrete Go type, not merely a kind
// family, since proptype.WrapInputs compares reflect.Type identity.
func coerceOne(typ reflect.Type, s string) (any, error) {
	switch typ.Kind() {
	case reflect.String:
		return reflect.ValueOf(s).Convert(typ).Interface(), nil
	case reflect.Bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, err
		}
		return reflect.ValueOf(b).Convert(typ).Interface(), nil
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, err
		}
		return reflect.ValueOf(f).Convert(typ).Interface(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, err
		}
		return reflect.ValueOf(n).Convert(typ).Interface(), nil
	default:
		return nil, fmt.Errorf("unsupported argument kind %s for CLI coercion", typ.Kind())
	}
}
