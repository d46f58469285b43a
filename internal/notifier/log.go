package notifier

import (
	"log/slog"

	"github.com/amishk599/jobagent/internal/model"
)

// Ensure LogNotifier implements model.Notifier.
var _ model.Notifier = (*LogNotifier)(nil)

// LogNotifier writes new postings to the given logger as structured messages.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier returns a notifier that logs each posting via slog.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs each posting with its key facets. Never fails.
func (n *LogNotifier) Notify(postings []model.Posting) error {
	for _, p := range postings {
		args := []any{
			"provider", p.Provider,
			"company", p.Company,
			"title", p.Title,
			"location", p.Location,
			"level", p.RoleLevel,
			"work_type", p.WorkType,
			"url", p.URL,
		}
		if p.PostedAt != nil {
			args = append(args, "posted_at", *p.PostedAt)
		}
		n.logger.Info("new posting", args...)
	}
	return nil
}
