package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/futurelot/nscache/config"
	"github.com/futurelot/nscache/env"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <config-file>",
		Short: "Check a cache config file and print the namespaces it defines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := env.NewLogger(cmd)
			cfg, err := config.Load(args[0])
			if err != nil {
				return err
			}
			log.Debug("loaded %s with %d namespaces", args[0], len(cfg.Namespaces))
			if resolved, _ := cmd.Flags().GetBool("print"); resolved {
				return writeYAML(cmd.OutOrStdout(), cfg)
			}
			printNamespaces(cmd.OutOrStdout(), cfg)
			fmt.Fprintf(cmd.OutOrStdout(), "\n%s is valid\n", args[0])
			return nil
		},
	}
	cmd.Flags().Bool("print", false, "print the resolved config as YAML")
	return cmd
}

func newDefaultsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "defaults",
		Short: "Print the built-in config as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeYAML(cmd.OutOrStdout(), config.Defaults())
		},
	}
}

func writeYAML(w io.Writer, cfg *config.Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return err
	}
	return enc.Close()
}

func printNamespaces(w io.Writer, cfg *config.Config) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAMESPACE\tTTL\tMAX ENTRIES\tMAX BYTES\tREFRESH\tSWR\tCOMPRESSION\tPRIORITY\tPERSIST")
	for _, name := range cfg.NamespaceNames() {
		nc := cfg.Namespaces[name].CacheConfig().WithDefaults()
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%t\t%t\t%s\t%t\n",
			name, nc.TTL, nc.MaxEntries, nc.MaxBytes, nc.RefreshInterval,
			nc.StaleWhileRevalidate, nc.Compression, nc.DefaultPriority, nc.PersistToDisk)
	}
	tw.Flush()
}
