package storage

import (
	"context"
	"encoding/json"

	"github.com/clinicbook/clinicbook/libs/db"
)

// Notification is one delivery attempt in the audit log, one row per channel.
type Notification struct {
	EventType      string
	AggregateID    string
	ProfessionalID string
	Channel        string
	Recipient      string
	Payload        map[string]any
	Status         string
	FailureReason  string
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Insert(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n.Payload)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO notifications (event_type, aggregate_id, professional_id, channel, recipient, payload, status, failure_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, n.EventType, n.AggregateID, n.ProfessionalID, n.Channel, n.Recipient, payload, n.Status, n.FailureReason)
	return err
}
