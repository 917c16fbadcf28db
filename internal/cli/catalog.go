package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func aliasCommand(r *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alias",
		Short: "Manage weapon aliases",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "add <alias> <weapon>",
		Short: "Map an alias onto an existing catalog weapon",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := r.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			alias, err := a.Services.Catalog.AddAlias(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			if r.jsonOut {
				return r.printJSON(alias)
			}
			fmt.Fprintf(r.out, "alias %q -> %s\n", alias.Alias, args[1])
			return nil
		},
	})
	return cmd
}

func catalogCommand(r *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage the weapon catalog",
	}
	var overlay string
	importCmd := &cobra.Command{
		Use:   "import <weapons.csv>",
		Short: "Load weapons from CSV and generate their aliases",
		Long: `Load weapons from a CSV file with the header name,category,damage,heat,tonnage,crits.
Existing weapons are kept. Generated aliases never shadow an existing weapon
name or alias. --overlay applies a yaml file of the form

  aliases:
    "ER LL": "ER Large Laser"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			a, err := r.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			rep, err := a.Services.Catalog.Import(cmd.Context(), f)
			if err != nil {
				return err
			}
			overlaid := 0
			if overlay != "" {
				of, err := os.Open(overlay)
				if err != nil {
					return err
				}
				defer of.Close()
				if overlaid, err = a.Services.Catalog.ApplyOverlay(cmd.Context(), of); err != nil {
					return err
				}
			}
			if r.jsonOut {
				return r.printJSON(map[string]any{"import": rep, "overlay_aliases": overlaid})
			}
			fmt.Fprintf(r.out, "rows=%d weapons=%d aliases_added=%d skipped=%d overlay_aliases=%d\n",
				rep.Rows, rep.Weapons, rep.AliasesAdded, rep.SkippedRows, overlaid)
			for _, msg := range rep.SkippedMessages {
				fmt.Fprintf(r.out, "  skipped: %s\n", msg)
			}
			return nil
		},
	}
	importCmd.Flags().StringVar(&overlay, "overlay", "", "yaml alias overlay applied after the import")
	cmd.AddCommand(importCmd)
	return cmd
}
