package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/histcache/internal/ir"
	"github.com/roach88/histcache/internal/store"
)

// AppendOptions holds flags for the append command.
type AppendOptions struct {
	*RootOptions
	Payload string
	Seq     string // explicit sequence number; empty assigns the next one
}

// AppendResult is the outcome of an append.
type AppendResult struct {
	ReportID ir.ReportID `json:"report_id"`
	Entry    EntryView   `json:"entry"`
	Inserted bool        `json:"inserted"`
}

// NewAppendCommand creates the append command.
func NewAppendCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AppendOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "append <report-id> <action-name>",
		Short: "Append an action to the authoritative log",
		Long: `Append an action to a report's log.

Without --seq the action gets the next sequence number. With --seq an
identical action already stored is accepted without change; a different
action under the same sequence number is a conflict.

Examples:
  histcache append 42 ADDCOMMENT --payload '{"text":"looks good"}'
  histcache append 42 BILLABLEDELEGATE --seq 7`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAppend(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Payload, "payload", "", "action payload as a JSON object")
	cmd.Flags().StringVar(&opts.Seq, "seq", "", "explicit sequence number")

	return cmd
}

func runAppend(opts *AppendOptions, reportArg, actionName string, cmd *cobra.Command) error {
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr(), Verbose: opts.Verbose}

	report, err := parseReportID(reportArg)
	if err != nil {
		return out.Fail(ExitCommandError, CodeInvalidArgument, "invalid report ID", err)
	}

	var payload ir.IRObject
	if opts.Payload != "" {
		if err := json.Unmarshal([]byte(opts.Payload), &payload); err != nil {
			return out.Fail(ExitCommandError, CodeInvalidArgument, "invalid --payload JSON", err)
		}
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	st, err := store.Open(opts.Database)
	if err != nil {
		return out.Fail(ExitCommandError, CodeStore, "failed to open database", err)
	}
	defer st.Close()

	result := AppendResult{ReportID: report, Inserted: true}

	if opts.Seq == "" {
		entry, err := st.AppendNext(ctx, report, actionName, payload)
		if err != nil {
			return out.Fail(ExitCommandError, CodeStore, "failed to append action", err)
		}
		result.Entry = entryViews([]ir.Entry{entry}, nil)[0]
	} else {
		seq, err := strconv.ParseInt(opts.Seq, 10, 64)
		if err != nil {
			return out.Fail(ExitCommandError, CodeInvalidArgument, "invalid --seq", err)
		}
		entry := ir.Entry{Seq: seq, ActionName: actionName, Payload: payload}
		if err := entry.Validate(); err != nil {
			return out.Fail(ExitCommandError, CodeMalformed, "invalid --seq", err)
		}

		inserted, err := st.Append(ctx, report, entry)
		switch {
		case errors.Is(err, store.ErrConflict):
			return out.Fail(ExitFailure, CodeConflict, fmt.Sprintf("sequence number %d already stored with different content", seq), err)
		case err != nil:
			return out.Fail(ExitCommandError, CodeStore, "failed to append action", err)
		}
		result.Entry = entryViews([]ir.Entry{entry}, nil)[0]
		result.Inserted = inserted
	}

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), CLIResponse{Status: "ok", Data: result})
	}

	w := cmd.OutOrStdout()
	if result.Inserted {
		fmt.Fprintf(w, "Appended to report %d:\n", report)
	} else {
		fmt.Fprintf(w, "Already stored in report %d:\n", report)
	}
	formatEntry(w, result.Entry)
	return nil
}
