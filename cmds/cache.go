package cmds

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"livetv-guide/config"
	"livetv-guide/database"
	"livetv-guide/logger"
	"livetv-guide/model"
	"livetv-guide/tuner"
	"livetv-guide/updater"
)

// openEngine opens the cache for a one-shot command. Such commands only
// fill an empty cache and never clear it.
func openEngine(ctx context.Context, prepare bool) (*tuner.Engine, error) {
	c := *config.GetConfig()
	c.SyncOnBoot = false
	c.ClearOnBoot = false

	engine, err := tuner.Open(ctx, &c, logger.Default)
	if err != nil {
		return nil, err
	}
	if !prepare {
		return engine, nil
	}

	if err := engine.Prepare(ctx); err != nil {
		_ = engine.Close()
		return nil, err
	}
	return engine, nil
}

func NewSyncCLI() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Fetch both feeds now and rebuild the cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEngine(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer engine.Close()

			reconfigured, err := engine.ReconcileSettings(cmd.Context())
			if err == nil && !reconfigured {
				err = engine.Updater.Sync(cmd.Context())
			}
			if err != nil {
				return describe(err)
			}

			return printCounts(cmd.Context(), cmd.OutOrStdout(), engine.Store)
		},
	}
}

var (
	playlistURL string
	scheduleURL string
)

func NewConfigureCLI() *cobra.Command {
	configureCmd := &cobra.Command{
		Use:   "configure",
		Short: "Switch to new feed locations, rebuilding the cache from scratch",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEngine(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer engine.Close()

			err = engine.Reconfigure(cmd.Context(), model.Settings{PlaylistURL: playlistURL, ScheduleURL: scheduleURL})
			if err != nil {
				return describe(err)
			}

			return printCounts(cmd.Context(), cmd.OutOrStdout(), engine.Store)
		},
	}

	configureCmd.Flags().StringVarP(&playlistURL, "playlist", "p", "", "M3U playlist URL (http, https or file)")
	configureCmd.Flags().StringVarP(&scheduleURL, "schedule", "s", "", "XMLTV schedule URL, optional")
	_ = configureCmd.MarkFlagRequired("playlist")

	return configureCmd
}

func NewClearCLI() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Empty the cache, keeping the feed settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEngine(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer engine.Close()

			if err := engine.Updater.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Cache cleared.")
			return nil
		},
	}
}

func printCounts(ctx context.Context, w io.Writer, store database.Store) error {
	channels, err := store.Count(ctx, database.Channels)
	if err != nil {
		return err
	}
	programmes, err := store.Count(ctx, database.Programmes)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%d channels, %d programmes cached.\n", channels, programmes)
	return nil
}

// describe turns field level configuration problems into one readable
// error.
func describe(err error) error {
	fields := updater.FieldMessages(err)
	if fields == nil {
		return err
	}

	names := make([]string, 0, len(fields))
	for field := range fields {
		names = append(names, field)
	}
	sort.Strings(names)

	msg := ""
	for _, field := range names {
		if msg != "" {
			msg += "; "
		}
		msg += fmt.Sprintf("%s: %s", field, fields[field])
	}
	if cause := errors.Unwrap(err); cause != nil {
		return fmt.Errorf("%s (%w)", msg, cause)
	}
	return errors.New(msg)
}
