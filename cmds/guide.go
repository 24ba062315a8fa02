package cmds

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"livetv-guide/guide"
	"livetv-guide/model"
)

const timeLayout = "Mon 15:04"

func NewChannelsCLI() *cobra.Command {
	return &cobra.Command{
		Use:   "channels",
		Short: "List the cached channels in directory order",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEngine(cmd.Context(), true)
			if err != nil {
				return describe(err)
			}
			defer engine.Close()

			current, _ := engine.Directory.Current()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "\tNUMBER\tID\tNAME")
			for _, ch := range engine.Directory.Channels() {
				marker := ""
				if ch.ID == current.ID {
					marker = "*"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", marker, number(ch), ch.ID, ch.Name)
			}
			return w.Flush()
		},
	}
}

func NewNowCLI() *cobra.Command {
	return &cobra.Command{
		Use:   "now [number]",
		Short: "Show the active channel and what it is airing, optionally tuning to a number first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEngine(cmd.Context(), true)
			if err != nil {
				return describe(err)
			}
			defer engine.Close()

			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid channel number %q", args[0])
				}
				if _, found := engine.Directory.SelectByNumber(n); !found {
					return fmt.Errorf("no channel with number %d", n)
				}
			}

			ch, ok := engine.Directory.Current()
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "No channels cached.")
				return nil
			}

			programme, err := engine.Lookup.Current(cmd.Context(), ch.ID, time.Now())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s\n", number(ch), ch.Name)
			if programme == nil {
				fmt.Fprintln(out, "  Nothing scheduled")
				return nil
			}
			printProgramme(out, programme.Start, *programme)
			return nil
		},
	}
}

var guideHours int

func NewGuideCLI() *cobra.Command {
	guideCmd := &cobra.Command{
		Use:   "guide [channel-id]",
		Short: "List upcoming programmes for the active or the given channel",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if guideHours <= 0 {
				return fmt.Errorf("hours must be positive")
			}

			engine, err := openEngine(cmd.Context(), true)
			if err != nil {
				return describe(err)
			}
			defer engine.Close()

			ch, ok := engine.Directory.Current()
			if len(args) == 1 {
				ch, ok = engine.Directory.SelectID(args[0])
			}
			if !ok {
				return fmt.Errorf("channel not found")
			}

			listings, err := engine.Lookup.Upcoming(cmd.Context(), ch.ID, time.Now(), time.Duration(guideHours)*time.Hour)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s\n", number(ch), ch.Name)
			if len(listings) == 0 {
				fmt.Fprintln(out, "  Nothing scheduled")
			}
			for _, l := range listings {
				printProgramme(out, l.Start, l.Programme)
			}
			return nil
		},
	}

	guideCmd.Flags().IntVar(&guideHours, "hours", int(guide.DefaultHorizon/time.Hour), "how far ahead to look")

	return guideCmd
}

func number(ch model.Channel) string {
	if ch.Number == nil {
		return "-"
	}
	return strconv.Itoa(*ch.Number)
}

func printProgramme(w io.Writer, start time.Time, p model.Programme) {
	title := p.Title
	if p.SubTitle != "" {
		title += ": " + p.SubTitle
	}
	if p.Season != nil && p.Episode != nil {
		title += fmt.Sprintf(" (S%02dE%02d)", *p.Season, *p.Episode)
	}
	fmt.Fprintf(w, "  %s - %s  %s\n", start.Local().Format(timeLayout), p.Stop.Local().Format(timeLayout), title)
}
