package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/histcache/internal/ir"
)

// ErrConflict is returned when an append reuses a sequence number with
// different content.
var ErrConflict = errors.New("sequence number already holds a different action")

// Append inserts entry into the report's log.
// Uses ON CONFLICT(report_id, seq) DO NOTHING for idempotency: appending the
// same entry twice returns inserted=false. Appending a different entry under
// an existing sequence number returns ErrConflict.
func (s *Store) Append(ctx context.Context, report ir.ReportID, entry ir.Entry) (inserted bool, err error) {
	if err := entry.Validate(); err != nil {
		return false, fmt.Errorf("append report %d: %w", report, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("append report %d: begin tx: %w", report, err)
	}
	defer tx.Rollback() // No-op if committed

	inserted, err = appendTx(ctx, tx, report, entry)
	if err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("append report %d: commit: %w", report, err)
	}
	return inserted, nil
}

// AppendNext assigns the next sequence number (newest + 1, or 1 for an
// empty log) and inserts the action.
func (s *Store) AppendNext(ctx context.Context, report ir.ReportID, actionName string, payload ir.IRObject) (ir.Entry, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ir.Entry{}, fmt.Errorf("append next report %d: begin tx: %w", report, err)
	}
	defer tx.Rollback() // No-op if committed

	var newest int64
	if err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) FROM report_actions WHERE report_id = ?
	`, int64(report)).Scan(&newest); err != nil {
		return ir.Entry{}, fmt.Errorf("append next report %d: read newest: %w", report, err)
	}

	entry := ir.Entry{Seq: newest + 1, ActionName: actionName, Payload: payload}
	if _, err := appendTx(ctx, tx, report, entry); err != nil {
		return ir.Entry{}, err
	}

	if err := tx.Commit(); err != nil {
		return ir.Entry{}, fmt.Errorf("append next report %d: commit: %w", report, err)
	}
	return entry, nil
}

func appendTx(ctx context.Context, tx *sql.Tx, report ir.ReportID, entry ir.Entry) (bool, error) {
	digest, err := ir.EntryDigest(entry)
	if err != nil {
		return false, fmt.Errorf("append report %d: %w", report, err)
	}
	payload, err := marshalPayload(entry.Payload)
	if err != nil {
		return false, fmt.Errorf("append report %d seq %d: %w", report, entry.Seq, err)
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO report_actions
		(report_id, seq, action_name, payload, digest)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(report_id, seq) DO NOTHING
	`,
		int64(report),
		entry.Seq,
		entry.ActionName,
		payload,
		digest,
	)
	if err != nil {
		return false, fmt.Errorf("append report %d seq %d: %w", report, entry.Seq, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("append report %d seq %d: rows affected: %w", report, entry.Seq, err)
	}
	if affected > 0 {
		return true, nil
	}

	var existing string
	if err := tx.QueryRowContext(ctx, `
		SELECT digest FROM report_actions WHERE report_id = ? AND seq = ?
	`, int64(report), entry.Seq).Scan(&existing); err != nil {
		return false, fmt.Errorf("append report %d seq %d: read existing: %w", report, entry.Seq, err)
	}
	if existing != digest {
		return false, fmt.Errorf("append report %d seq %d: %w", report, entry.Seq, ErrConflict)
	}
	return false, nil
}
