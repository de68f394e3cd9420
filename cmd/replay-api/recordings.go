package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/MarcoPoloResearchLab/replay/internal/config"
	"github.com/MarcoPoloResearchLab/replay/internal/logging"
	"github.com/MarcoPoloResearchLab/replay/internal/recording"
	"github.com/MarcoPoloResearchLab/replay/internal/store"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func newRecordingsCommand() *cobra.Command {
	recordingsCmd := &cobra.Command{
		Use:   "recordings",
		Short: "Inspect and manage saved recordings",
	}

	recordingsCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List saved recordings in creation order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(recordingStore store.Store) error {
				return listRecordings(cmd.Context(), recordingStore, cmd.OutOrStdout())
			})
		},
	})

	recordingsCmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a saved recording",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := recording.NewRecordingID(args[0])
			if err != nil {
				return err
			}
			return withStore(func(recordingStore store.Store) error {
				if err := recordingStore.Delete(cmd.Context(), id); err != nil {
					return err
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", id)
				return err
			})
		},
	})

	return recordingsCmd
}

func withStore(run func(store.Store) error) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	logger, err := logging.NewConsoleLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	recordingStore, closeStore, err := openStore(appConfig, logger)
	if err != nil {
		logger.Error("open recording store", zap.Error(err))
		return err
	}
	defer closeStore()
	return run(recordingStore)
}

func listRecordings(ctx context.Context, recordingStore store.Store, out io.Writer) error {
	summaries, err := recordingStore.Summaries(ctx)
	if err != nil {
		return err
	}
	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tNAME\tCREATED\tDURATION\tSNAPSHOTS\tAUDIO")
	for _, summary := range summaries {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%d\t%t\n",
			summary.ID,
			summary.Name,
			summary.CreatedAt.UTC().Format(time.RFC3339),
			time.Duration(summary.Duration)*time.Millisecond,
			summary.SnapshotCount,
			summary.HasAudio,
		)
	}
	return writer.Flush()
}
