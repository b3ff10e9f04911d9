package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"gavel/internal/ipc"
	"gavel/internal/services"
)

func newAddCommand(ctx *commandContext) *cobra.Command {
	var committee string
	var title string
	var date string

	cmd := &cobra.Command{
		Use:   "add <url>",
		Short: "Register a hearing for processing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Add(ipc.AddRequest{
					SourceURL:     args[0],
					CommitteeCode: committee,
					Title:         title,
					HearingDate:   date,
				})
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if resp.Created {
					fmt.Fprintf(out, "Registered hearing %d (%s, %s)\n", resp.Hearing.ID, resp.Hearing.CommitteeCode, resp.Hearing.HearingDate)
				} else {
					fmt.Fprintf(out, "Hearing already registered with id %d\n", resp.Hearing.ID)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&committee, "committee", "", "Committee code (required)")
	cmd.Flags().StringVar(&title, "title", "", "Hearing title")
	cmd.Flags().StringVar(&date, "date", "", "Hearing date (YYYY-MM-DD)")
	return cmd
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var stages []string
	var stalledOnly bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered hearings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.List(stages, stalledOnly)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp.Hearings)
				}
				if len(resp.Hearings) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No hearings found")
					return nil
				}
				table := renderTable(
					hearingListHeaders(),
					buildHearingListRows(resp.Hearings),
					hearingListAlignments(),
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&stages, "stage", "s", nil, "Filter by lifecycle stage (repeatable)")
	cmd.Flags().BoolVar(&stalledOnly, "stalled", false, "Show only stalled hearings")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")
	return cmd
}

func newSearchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Search hearings by title, committee, or URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Search(args[0])
				if err != nil {
					return err
				}
				if len(resp.Hearings) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No hearings matched")
					return nil
				}
				table := renderTable(
					hearingListHeaders(),
					buildHearingListRows(resp.Hearings),
					hearingListAlignments(),
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one hearing in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseHearingID(args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Describe(id)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp)
				}
				printHearingDetail(cmd.OutOrStdout(), resp)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of text")
	return cmd
}

func newAdvanceCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "advance <id> <stage>",
		Short: "Request immediate processing of a hearing's next stage",
		Long: "Request that the daemon run the stage action leading out of the given\n" +
			"lifecycle stage for the hearing. The target must match the hearing's\n" +
			"current stage; a hearing another worker holds is reported as busy.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseHearingID(args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				_, err := client.Advance(id, args[1])
				switch {
				case errors.Is(err, services.ErrLockContention):
					return fmt.Errorf("hearing %d is already being processed; wait for the running attempt to finish", id)
				case errors.Is(err, services.ErrStalled):
					return fmt.Errorf("hearing %d is stalled; clear it with `gavel reset %d` first", id, id)
				case err != nil:
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Hearing %d accepted for processing\n", id)
				return nil
			})
		},
	}
}

func newApproveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "approve <id>",
		Short: "Approve a transcribed hearing for publication",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return errors.New("approve requires exactly one hearing id")
			}
			id, err := parseHearingID(args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.Approve(id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Hearing %d approved\n", id)
				return nil
			})
		},
	}
}

func newCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel the in-flight attempt for a hearing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseHearingID(args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Cancel(id)
				if err != nil {
					return err
				}
				if resp.Cancelled {
					fmt.Fprintf(cmd.OutOrStdout(), "Cancellation requested for hearing %d\n", id)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "No attempt in flight for hearing %d\n", id)
				}
				return nil
			})
		},
	}
}

func newResetCommand(ctx *commandContext) *cobra.Command {
	var resetAll bool
	var targetStage string

	cmd := &cobra.Command{
		Use:   "reset [id...]",
		Short: "Clear stalled hearings, or rewind one hearing to an earlier stage",
		Long: "Without --stage, clears the stalled flag and failure budget on the named\n" +
			"hearings (or on every stalled hearing with --all) so the scheduler retries\n" +
			"the stage that stalled. With --stage, rewinds exactly one hearing to the\n" +
			"named earlier stage and discards artifact state recorded past it.",
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseHearingIDs(args)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Reset(ipc.ResetRequest{
					IDs:   ids,
					All:   resetAll,
					Stage: targetStage,
				})
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if strings.TrimSpace(targetStage) != "" {
					fmt.Fprintf(out, "Hearing %d reset to %s\n", ids[0], strings.ToLower(strings.TrimSpace(targetStage)))
					return nil
				}
				switch resp.Updated {
				case 0:
					fmt.Fprintln(out, "No stalled hearings to reset")
				case 1:
					fmt.Fprintln(out, "Reset 1 stalled hearing")
				default:
					fmt.Fprintf(out, "Reset %d stalled hearings\n", resp.Updated)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&resetAll, "all", false, "Reset every stalled hearing")
	cmd.Flags().StringVar(&targetStage, "stage", "", "Rewind one hearing to this earlier stage")
	return cmd
}

func newRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id...>",
		Short: "Delete hearing records",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseHearingIDs(args)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				out := cmd.OutOrStdout()
				for _, id := range ids {
					resp, err := client.Remove(id)
					if err != nil {
						return err
					}
					if resp.Removed {
						fmt.Fprintf(out, "Hearing %d removed\n", id)
					} else {
						fmt.Fprintf(out, "Hearing %d not found\n", id)
					}
				}
				return nil
			})
		},
	}
}

func newAttemptsCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "attempts <id>",
		Short: "Show the processing attempt history for a hearing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseHearingID(args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Attempts(id)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp.Attempts)
				}
				if len(resp.Attempts) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "No attempts recorded for hearing %d\n", id)
					return nil
				}
				table := renderTable(
					[]string{"Stage", "Started", "Ended", "Outcome", "Error"},
					buildAttemptRows(resp.Attempts),
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")
	return cmd
}

func parseHearingID(arg string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid hearing id %q", arg)
	}
	return id, nil
}

func parseHearingIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := parseHearingID(arg)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
