package store

import (
	"context"
	"time"

	"github.com/amishk599/jobagent/internal/model"
)

// NopStore is a no-op store used in dry-run mode. It never persists anything,
// so every posting reports as inserted on each run.
type NopStore struct{}

func NewNopStore() *NopStore { return &NopStore{} }

func (s *NopStore) Upsert(context.Context, model.Posting) (model.UpsertOutcome, error) {
	return model.Inserted, nil
}
func (s *NopStore) RecordRun(context.Context, model.IngestRun) error { return nil }
func (s *NopStore) LastSuccessfulRun(context.Context, string, string, string) (time.Time, error) {
	return time.Time{}, nil
}
