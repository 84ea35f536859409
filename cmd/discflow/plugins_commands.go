package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"discflow/internal/plugin"
)

func newPluginsCommand(ctx *commandContext) *cobra.Command {
	pluginsCmd := &cobra.Command{
		Use:   "plugins",
		Short: "Inspect and toggle loaded plugins",
	}
	pluginsCmd.AddCommand(newPluginsListCommand(ctx))
	pluginsCmd.AddCommand(newPluginsToggleCommand(ctx, "enable", "Enable a plugin for future runs", true))
	pluginsCmd.AddCommand(newPluginsToggleCommand(ctx, "disable", "Skip a plugin in future runs", false))
	return pluginsCmd
}

func newPluginsListCommand(ctx *commandContext) *cobra.Command {
	var showGUID bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List loaded plugins in run order",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := ctx.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer sess.Close()

			out := cmd.OutOrStdout()
			printPlugins(out, sess.registry, showGUID)
			printFailures(out, sess.registry.Failures())
			return nil
		},
	}
	cmd.Flags().BoolVar(&showGUID, "guid", false, "Show plugin GUIDs and origins")
	return cmd
}

func printPlugins(out io.Writer, reg *plugin.Registry, showGUID bool) {
	headers := []string{"Capability", "Name", "Order", "Version", "Enabled"}
	aligns := []columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft}
	if showGUID {
		headers = append(headers, "GUID", "Origin")
		aligns = append(aligns, alignLeft, alignLeft)
	}

	var rows [][]string
	for _, c := range plugin.Capabilities() {
		for _, e := range reg.ByCapability(c) {
			row := []string{c.Label(), e.Name, strconv.Itoa(e.RunOrder), e.Version, yesNo(reg.IsEnabled(e.GUID))}
			if showGUID {
				row = append(row, e.GUID, e.Origin)
			}
			rows = append(rows, row)
		}
	}
	if len(rows) == 0 {
		fmt.Fprintln(out, "No plugins loaded")
		return
	}
	fmt.Fprintln(out, renderTable(headers, rows, aligns))
}

func printFailures(out io.Writer, failures []plugin.LoadFailure) {
	if len(failures) == 0 {
		return
	}
	rows := make([][]string, 0, len(failures))
	for _, f := range failures {
		subject := f.Name
		if subject == "" {
			subject = f.Type
		}
		rows = append(rows, []string{f.Location, f.Path, subject, f.Err.Error()})
	}
	fmt.Fprintf(out, "\n%d module(s) failed to load:\n", len(failures))
	fmt.Fprintln(out, renderTable([]string{"Location", "Path", "Plugin", "Error"}, rows, nil))
}

func newPluginsToggleCommand(ctx *commandContext, verb, short string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <name|guid>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := ctx.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer sess.Close()

			entry, ok := sess.registry.Resolve(args[0])
			if !ok {
				return fmt.Errorf("no loaded plugin matches %q (see `discflow plugins list --guid`)", args[0])
			}
			if err := sess.store.SetPluginEnabled(cmd.Context(), entry.GUID, enabled); err != nil {
				return fmt.Errorf("%s plugin: %w", verb, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %q (%s): enabled=%s\n", entry.Capability.Label(), entry.Name, entry.GUID, yesNo(enabled))
			return nil
		},
	}
}
