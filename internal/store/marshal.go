package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/roach88/histcache/internal/ir"
)

// marshalPayload converts a payload to canonical JSON TEXT for storage.
// A nil payload is stored as NULL so it keeps its digest.
func marshalPayload(payload ir.IRObject) (sql.NullString, error) {
	if payload == nil {
		return sql.NullString{}, nil
	}
	data, err := ir.MarshalCanonical(payload)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshal payload: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// unmarshalPayload parses stored payload TEXT.
// Uses ir.IRObject.UnmarshalJSON which decodes integers via json.Number
// to avoid float64 precision loss for values > 2^53.
func unmarshalPayload(data sql.NullString) (ir.IRObject, error) {
	if !data.Valid {
		return nil, nil
	}
	var obj ir.IRObject
	if err := json.Unmarshal([]byte(data.String), &obj); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	if obj == nil {
		obj = ir.IRObject{}
	}
	return obj, nil
}
