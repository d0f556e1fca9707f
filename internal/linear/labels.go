package linear

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/featureforge/slack-linear-bot/internal/model"
	"github.com/featureforge/slack-linear-bot/pkg/logger"
)

// LabelLister is the slice of the Linear client the label map needs.
type LabelLister interface {
	TeamLabels(ctx context.Context, teamID string) ([]model.Label, error)
}

// PriorityLabels maps the customer priority enum to tracker label ids.
// Populated once at startup and read-only afterwards; if labels are renamed
// in Linear the map is stale until the process restarts.
type PriorityLabels struct {
	ids map[model.Priority]string
}

// NewPriorityLabels builds a map directly, bypassing the API lookup.
func NewPriorityLabels(ids map[model.Priority]string) *PriorityLabels {
	return &PriorityLabels{ids: ids}
}

// Lookup returns the label id for a priority, if one was found at startup.
func (p *PriorityLabels) Lookup(priority model.Priority) (string, bool) {
	if p == nil || priority == "" {
		return "", false
	}
	id, ok := p.ids[priority]
	return id, ok
}

// Len reports how many priorities resolved to a label.
func (p *PriorityLabels) Len() int {
	if p == nil {
		return 0
	}
	return len(p.ids)
}

// matched by case-insensitive substring, so "Customer: Must Have Soon"
// style label names resolve too.
var prioritySubstrings = map[model.Priority]string{
	model.PriorityNiceToHave:   "nice to have",
	model.PriorityMustHaveSoon: "must have soon",
	model.PriorityMustHaveNow:  "must have now",
}

// FetchPriorityLabels queries the team's label set and builds the priority
// map. Priorities without a matching label are simply absent from the map.
func FetchPriorityLabels(ctx context.Context, api LabelLister, teamID string, log *logger.Logger) (*PriorityLabels, error) {
	labels, err := api.TeamLabels(ctx, teamID)
	if err != nil {
		return nil, err
	}

	ids := make(map[model.Priority]string)
	for _, label := range labels {
		name := strings.ToLower(label.Name)
		for priority, substr := range prioritySubstrings {
			if strings.Contains(name, substr) {
				ids[priority] = label.ID
			}
		}
	}

	log.Info("customer priority labels resolved",
		zap.Int("count", len(ids)),
		zap.Int("team_labels", len(labels)),
	)
	return &PriorityLabels{ids: ids}, nil
}
