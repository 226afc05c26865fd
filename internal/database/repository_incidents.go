package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// ============================================================================
// INCIDENTS
// ============================================================================

// CreateIncident appends an audit record. Incidents are never updated or
// deleted after insertion.
func (r *Repository) CreateIncident(ctx context.Context, inc *Incident) error {
	var details []byte
	if inc.Details != nil {
		var err error
		details, err = json.Marshal(inc.Details)
		if err != nil {
			return fmt.Errorf("marshal incident details: %w", err)
		}
	}

	query := `
		INSERT INTO incidents (model_id, incident_type, severity, message, details, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	return r.db.Pool.QueryRow(
		ctx, query,
		inc.ModelID, inc.Type, inc.Severity, inc.Message, details, inc.Timestamp,
	).Scan(&inc.ID)
}

// ListIncidents retrieves the most recent incidents, newest first. A zero
// modelID returns system-wide and per-model incidents alike.
func (r *Repository) ListIncidents(ctx context.Context, modelID int64, limit int) ([]*Incident, error) {
	query := `
		SELECT id, model_id, incident_type, severity, message, details, resolved, timestamp
		FROM incidents`
	args := []any{limit}
	if modelID != 0 {
		query += ` WHERE model_id = $2`
		args = append(args, modelID)
	}
	query += ` ORDER BY timestamp DESC, id DESC LIMIT $1`

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var incidents []*Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		incidents = append(incidents, inc)
	}
	return incidents, rows.Err()
}

// LatestIncidentByType retrieves the most recent incident of a given type, or
// ErrNotFound when none exists. Used to make emergency stop-all idempotent.
func (r *Repository) LatestIncidentByType(ctx context.Context, incidentType string) (*Incident, error) {
	query := `
		SELECT id, model_id, incident_type, severity, message, details, resolved, timestamp
		FROM incidents
		WHERE incident_type = $1
		ORDER BY timestamp DESC, id DESC
		LIMIT 1
	`
	rows, err := r.db.Pool.Query(ctx, query, incidentType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}
	return scanIncident(rows)
}

func scanIncident(rows pgx.Rows) (*Incident, error) {
	inc := &Incident{}
	var details []byte
	err := rows.Scan(
		&inc.ID, &inc.ModelID, &inc.Type, &inc.Severity, &inc.Message,
		&details, &inc.Resolved, &inc.Timestamp,
	)
	if err != nil {
		return nil, err
	}
	if len(details) > 0 {
		if err := json.Unmarshal(details, &inc.Details); err != nil {
			return nil, fmt.Errorf("unmarshal incident details: %w", err)
		}
	}
	return inc, nil
}
