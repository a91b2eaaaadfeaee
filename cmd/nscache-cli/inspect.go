package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/futurelot/nscache/cache"
	"github.com/futurelot/nscache/config"
	"github.com/futurelot/nscache/env"
	"github.com/spf13/cobra"
)

func newInspectCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect [snapshot-file]",
		Short: "Print the entries of a namespace snapshot",
		Long: `Print the entries of a namespace snapshot.

The snapshot is read from a file written by the file store, or with --config
and --namespace from the snapshot store described by a config file.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := env.NewLogger(cmd)
			data, err := readSnapshot(cmd, args)
			if err != nil {
				return err
			}
			snap, err := cache.DecodeSnapshot(data)
			if err != nil {
				return err
			}
			log.Debug("decoded snapshot %s of %s (%d bytes)", snap.ID, snap.Namespace, len(data))
			asJSON, _ := cmd.Flags().GetBool("json")
			if asJSON {
				return printSnapshotJSON(cmd.OutOrStdout(), snap, time.Now())
			}
			return printSnapshot(cmd.OutOrStdout(), snap, time.Now())
		},
	}
	cmd.Flags().String("config", "", "read the snapshot from the store configured in this file")
	cmd.Flags().String("namespace", "", "namespace to read with --config")
	cmd.Flags().Bool("json", false, "print JSON instead of a table")
	return cmd
}

func readSnapshot(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 1 {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read snapshot file: %s", args[0])
		}
		return data, nil
	}
	configFile, _ := cmd.Flags().GetString("config")
	namespace, _ := cmd.Flags().GetString("namespace")
	if configFile == "" || namespace == "" {
		return nil, errors.New("either a snapshot file or --config and --namespace are required")
	}
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), cache.DefaultStoreTimeout)
	defer cancel()
	store, err := cfg.Store(ctx)
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, errors.Newf("%s configures no snapshot backend", configFile)
	}
	defer store.Close()
	return store.Load(ctx, namespace)
}

type entryStatus string

const (
	statusFresh   entryStatus = "fresh"
	statusExpired entryStatus = "expired"
	statusCorrupt entryStatus = "corrupt"
)

func status(key string, se cache.SnapshotEntry, now time.Time) entryStatus {
	switch {
	case !se.Verify(key):
		return statusCorrupt
	case se.Entry.Stale(now):
		return statusExpired
	default:
		return statusFresh
	}
}

func sortedKeys(snap *cache.Snapshot) []string {
	keys := make([]string, 0, len(snap.Entries))
	for key := range snap.Entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func printSnapshot(w io.Writer, snap *cache.Snapshot, now time.Time) error {
	fmt.Fprintf(w, "namespace: %s\nsnapshot:  %s (version %d)\nsaved at:  %s\nentries:   %d\n\n",
		snap.Namespace, snap.ID, snap.Version, snap.SavedAt.Format(time.RFC3339), len(snap.Entries))
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tPRIORITY\tSIZE\tCOMPRESSED\tACCESSES\tCREATED\tEXPIRES\tSTATUS")
	for _, key := range sortedKeys(snap) {
		se := snap.Entries[key]
		e := se.Entry
		fmt.Fprintf(tw, "%s\t%s\t%d\t%t\t%d\t%s\t%s\t%s\n",
			key, e.Priority, e.SizeBytes, e.IsCompressed, e.AccessCount,
			e.CreatedAt.Format(time.RFC3339), e.ExpiresAt.Format(time.RFC3339), status(key, se, now))
	}
	return tw.Flush()
}

type jsonEntry struct {
	cache.Entry
	Status entryStatus `json:"status"`
}

type jsonSnapshot struct {
	ID        string      `json:"id"`
	Version   int         `json:"version"`
	Namespace string      `json:"namespace"`
	SavedAt   time.Time   `json:"saved_at"`
	Entries   []jsonEntry `json:"entries"`
}

func printSnapshotJSON(w io.Writer, snap *cache.Snapshot, now time.Time) error {
	out := jsonSnapshot{
		ID:        snap.ID,
		Version:   snap.Version,
		Namespace: snap.Namespace,
		SavedAt:   snap.SavedAt,
		Entries:   make([]jsonEntry, 0, len(snap.Entries)),
	}
	for _, key := range sortedKeys(snap) {
		se := snap.Entries[key]
		out.Entries = append(out.Entries, jsonEntry{Entry: se.Entry, Status: status(key, se, now)})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
