package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/andredfaria/daily/internal/store"
)

type entryWriter interface {
	InsertAuditEntry(ctx context.Context, entry store.AuditEntry) error
}

// PostgresSink appends records to the audit_log table.
type PostgresSink struct {
	store entryWriter
}

func NewPostgresSink(s entryWriter) *PostgresSink {
	return &PostgresSink{store: s}
}

func (s *PostgresSink) Name() string { return "postgres" }

func (s *PostgresSink) Write(ctx context.Context, rec Record) error {
	detail := []byte("{}")
	if len(rec.Detail) > 0 {
		encoded, err := json.Marshal(rec.Detail)
		if err != nil {
			return fmt.Errorf("marshal audit detail: %w", err)
		}
		detail = encoded
	}
	return s.store.InsertAuditEntry(ctx, store.AuditEntry{
		ActorID:    rec.ActorID,
		ActorEmail: rec.ActorEmail,
		ProfileID:  rec.ProfileID,
		Action:     string(rec.Action),
		IdentityID: rec.IdentityID,
		Detail:     detail,
		CreatedAt:  rec.At,
	})
}
