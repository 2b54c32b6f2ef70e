package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Sternrassler/connsync/pkg/records"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Appender persists one record into a collection unless a record with the
// same identity key is already there.
type Appender interface {
	AppendIfAbsent(ctx context.Context, scope records.Scope, record records.Record) (bool, error)
}

// StoreNotifier is the in-process persistence collaborator: every RecordAdded
// is appended to the collection of its scope.
type StoreNotifier struct {
	store  Appender
	logger zerolog.Logger
}

// NewStoreNotifier creates a notifier that appends to store.
func NewStoreNotifier(store Appender) *StoreNotifier {
	if store == nil {
		panic("store is required")
	}
	return &StoreNotifier{
		store:  store,
		logger: log.With().Str("component", "store-notifier").Logger(),
	}
}

// RecordAdded implements Notifier.
func (n *StoreNotifier) RecordAdded(ctx context.Context, ev RecordAdded) error {
	err := n.append(ctx, ev)
	observe("store", TypeRecordAdded, err)
	return err
}

func (n *StoreNotifier) append(ctx context.Context, ev RecordAdded) error {
	var rec records.Record
	if err := json.Unmarshal(ev.Record, &rec); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	scope := records.Scope{Tenant: ev.Tenant, Subject: ev.Subject, Platform: ev.Platform}
	appended, err := n.store.AppendIfAbsent(ctx, scope, rec)
	if err != nil {
		return fmt.Errorf("append record: %w", err)
	}
	if !appended {
		n.logger.Debug().
			Str("run_id", ev.RunID).
			Str("created_at", string(rec.CreatedAt)).
			Str("first_name", rec.FirstName).
			Msg("Record already stored, skipping")
	}
	return nil
}

// RunComplete implements Notifier.
func (n *StoreNotifier) RunComplete(ctx context.Context, ev RunCompleted) error {
	n.logger.Info().
		Str("run_id", ev.RunID).
		Str("platform", ev.Platform).
		Str("tenant", ev.Tenant).
		Str("subject", ev.Subject).
		Msg("Collection up to date")
	observe("store", TypeRunCompleted, nil)
	return nil
}
