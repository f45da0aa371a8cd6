package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/roach88/histcache/internal/engine"
	"github.com/roach88/histcache/internal/ir"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Check failed (scenarios failed, replay did not converge)
	ExitCommandError = 2 // Command error (bad arguments, database unreadable, fetch failed)
)

// Stable error codes for JSON error envelopes.
const (
	CodeInvalidArgument = "E001" // report ID, sequence number or payload unparseable
	CodeStore           = "E002" // database could not be opened or written
	CodeFetch           = "E003" // source fetch failed
	CodeMalformed       = "E004" // entry rejected as malformed
	CodeConflict        = "E005" // sequence number already stored with other content
	CodeNotConverged    = "E006" // replayed cache differs from the log
	CodeTestFailed      = "E007" // one or more scenarios failed
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// errorCode maps an engine error to its stable code.
func errorCode(err error) string {
	switch {
	case engine.IsFetchError(err):
		return CodeFetch
	case engine.IsMalformedError(err):
		return CodeMalformed
	default:
		return CodeStore
	}
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status    string    `json:"status"`               // "ok" or "error"
	Data      any       `json:"data,omitempty"`       // success payload
	Error     *CLIError `json:"error,omitempty"`      // error details
	RequestID string    `json:"request_id,omitempty"` // fetch correlation, when one was made
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // "E001", "E002", etc.
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Fail reports err in the configured format and returns it as an ExitError.
func (f *OutputFormatter) Fail(exitCode int, code, message string, err error) error {
	var details any
	if err != nil {
		details = err.Error()
	}
	if outErr := f.Error(code, message, details); outErr != nil {
		return outErr
	}
	return WrapExitError(exitCode, message, err)
}

// VerboseLog outputs a message only if verbose mode is enabled.
// Uses ErrWriter if set, otherwise falls back to Writer.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

// writeJSON writes an indented response envelope.
func writeJSON(w io.Writer, response CLIResponse) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(response)
}

// parseReportID parses a positional report ID argument.
func parseReportID(arg string) (ir.ReportID, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid report ID %q: %w", arg, err)
	}
	return ir.ReportID(id), nil
}

// EntryView is the CLI rendering of one history entry.
type EntryView struct {
	Seq        int64       `json:"seq"`
	ActionName string      `json:"action_name"`
	Payload    ir.IRObject `json:"payload,omitempty"`
	Hidden     bool        `json:"hidden,omitempty"`
}

func entryViews(entries []ir.Entry, hidden func(ir.Entry) bool) []EntryView {
	views := make([]EntryView, len(entries))
	for i, e := range entries {
		views[i] = EntryView{Seq: e.Seq, ActionName: e.ActionName, Payload: e.Payload}
		if hidden != nil {
			views[i].Hidden = hidden(e)
		}
	}
	return views
}

// formatEntry renders one entry as a text line.
func formatEntry(w io.Writer, v EntryView) {
	marker := " "
	if v.Hidden {
		marker = "h"
	}
	if v.Payload == nil {
		fmt.Fprintf(w, "%s %6d  %s\n", marker, v.Seq, v.ActionName)
		return
	}
	payload, err := ir.MarshalCanonical(v.Payload)
	if err != nil {
		payload = []byte("<unprintable>")
	}
	fmt.Fprintf(w, "%s %6d  %s  %s\n", marker, v.Seq, v.ActionName, payload)
}
