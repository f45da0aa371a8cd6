package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/histcache/internal/ir"
)

// ReadHistory returns the report's log oldest-first.
//
// Offset 0 returns the complete log. Any other offset returns only entries
// with a sequence number strictly greater than offset.
//
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) ReadHistory(ctx context.Context, report ir.ReportID, offset int64) ([]ir.Entry, error) {
	query := `
		SELECT seq, action_name, payload
		FROM report_actions
		WHERE report_id = ?
		ORDER BY seq ASC
	`
	args := []any{int64(report)}
	if offset > 0 {
		query = `
		SELECT seq, action_name, payload
		FROM report_actions
		WHERE report_id = ? AND seq > ?
		ORDER BY seq ASC
	`
		args = append(args, offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query report %d: %w", report, err)
	}
	defer rows.Close()

	entries := []ir.Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("report %d: %w", report, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate report %d: %w", report, err)
	}

	return entries, nil
}

// Fetch serves a history request from the log. It satisfies engine.Source.
func (s *Store) Fetch(ctx context.Context, req ir.FetchRequest) ([]ir.Entry, error) {
	return s.ReadHistory(ctx, req.ReportID, req.Offset)
}

// Reports lists every report with at least one action, ascending.
func (s *Store) Reports(ctx context.Context) ([]ir.ReportID, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT report_id FROM report_actions ORDER BY report_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query reports: %w", err)
	}
	defer rows.Close()

	reports := []ir.ReportID{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan report id: %w", err)
		}
		reports = append(reports, ir.ReportID(id))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reports: %w", err)
	}

	return reports, nil
}

// ReadEntry returns one action. The bool is false when it does not exist.
func (s *Store) ReadEntry(ctx context.Context, report ir.ReportID, seq int64) (ir.Entry, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT seq, action_name, payload
		FROM report_actions
		WHERE report_id = ? AND seq = ?
	`, int64(report), seq)

	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Entry{}, false, nil
	}
	if err != nil {
		return ir.Entry{}, false, fmt.Errorf("report %d seq %d: %w", report, seq, err)
	}
	return e, true, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (ir.Entry, error) {
	var (
		e       ir.Entry
		payload sql.NullString
	)
	if err := row.Scan(&e.Seq, &e.ActionName, &payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ir.Entry{}, err
		}
		return ir.Entry{}, fmt.Errorf("scan action: %w", err)
	}

	obj, err := unmarshalPayload(payload)
	if err != nil {
		return ir.Entry{}, fmt.Errorf("seq %d: %w", e.Seq, err)
	}
	e.Payload = obj
	return e, nil
}
