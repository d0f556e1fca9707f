package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/featureforge/slack-linear-bot/internal/linear"
	"github.com/featureforge/slack-linear-bot/internal/model"
	"github.com/featureforge/slack-linear-bot/pkg/logger"
	"github.com/featureforge/slack-linear-bot/pkg/metrics"
)

// Placeholder values injected when the pipeline degraded. A draft still
// carrying either one must never become a ticket.
const (
	FallbackTitle       = "Feature Request from Slack"
	FallbackDescription = "No description provided"
)

// ErrDraftIncomplete blocks finalization of an empty or placeholder draft.
var ErrDraftIncomplete = errors.New("draft is missing a usable title or description")

// ValidateDraft enforces the finalization invariant: title and description
// must both be non-empty and must not equal their literal placeholders.
func ValidateDraft(title, description string) error {
	if strings.TrimSpace(title) == "" || title == FallbackTitle {
		return fmt.Errorf("%w: title", ErrDraftIncomplete)
	}
	if strings.TrimSpace(description) == "" || description == FallbackDescription {
		return fmt.Errorf("%w: description", ErrDraftIncomplete)
	}
	return nil
}

// TrackerAPI is the tracker capability the finalizer consumes, implemented
// by the Linear client.
type TrackerAPI interface {
	CreateIssue(ctx context.Context, req model.TicketRequest) (*model.Issue, error)
	SearchCustomers(ctx context.Context, name string) ([]model.Customer, error)
	CreateCustomer(ctx context.Context, name string) (*model.Customer, error)
	CreateCustomerNeed(ctx context.Context, issueID, customerID, body string) error
	LinkSlackThread(ctx context.Context, issueID, url string) (string, error)
}

// FinalizeInput carries the confirmed draft plus the optional linking
// context gathered along the way.
type FinalizeInput struct {
	Draft        model.TicketRequest
	Priority     model.Priority
	CustomerName string
	OriginalText string
	Permalink    string
}

// FinalizeResult is the created issue plus soft warnings from best-effort
// linking steps.
type FinalizeResult struct {
	Issue    *model.Issue
	Warnings []string
}

// TicketService turns confirmed drafts into tracker issues.
type TicketService struct {
	tracker TrackerAPI
	labels  *linear.PriorityLabels
	logger  *logger.Logger
}

// NewTicketService creates a new ticket service.
func NewTicketService(tracker TrackerAPI, labels *linear.PriorityLabels, log *logger.Logger) *TicketService {
	return &TicketService{
		tracker: tracker,
		labels:  labels,
		logger:  log,
	}
}

// Finalize creates the issue and then performs the secondary linking steps.
// Customer and permalink linking are best-effort: their failures become
// warnings, never errors, and never undo the created issue. Re-invoking
// Finalize with the same input creates another issue; nothing here
// deduplicates.
func (s *TicketService) Finalize(ctx context.Context, in FinalizeInput) (*FinalizeResult, error) {
	ctx, span := tracer.Start(ctx, "ticket.Finalize")
	defer span.End()

	if err := ValidateDraft(in.Draft.Title, in.Draft.Description); err != nil {
		return nil, err
	}

	req := in.Draft
	if id, ok := s.labels.Lookup(in.Priority); ok {
		req.LabelIDs = []string{id}
		s.logger.Info("attaching customer priority label",
			zap.String("priority", string(in.Priority)),
			zap.String("label_id", id),
		)
	}

	issue, err := s.tracker.CreateIssue(ctx, req)
	if err != nil {
		metrics.TicketsTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("creating issue: %w", err)
	}
	metrics.TicketsTotal.WithLabelValues("created").Inc()
	span.SetAttributes(attribute.String("issue.identifier", issue.Identifier))

	var warnings []string

	if strings.TrimSpace(in.CustomerName) != "" {
		if err := s.linkCustomer(ctx, issue.ID, in.CustomerName, in.OriginalText); err != nil {
			s.logger.Warn("customer linking failed",
				zap.String("issue", issue.Identifier),
				zap.String("customer", in.CustomerName),
				zap.Error(err),
			)
			metrics.TicketLinkFailures.WithLabelValues("customer").Inc()
			warnings = append(warnings, fmt.Sprintf("could not link customer %q", in.CustomerName))
		}
	}

	if in.Permalink != "" {
		if _, err := s.tracker.LinkSlackThread(ctx, issue.ID, in.Permalink); err != nil {
			s.logger.Warn("Slack thread attachment failed",
				zap.String("issue", issue.Identifier),
				zap.Error(err),
			)
			metrics.TicketLinkFailures.WithLabelValues("attachment").Inc()
			warnings = append(warnings, "could not link the Slack thread")
		}
	}

	return &FinalizeResult{Issue: issue, Warnings: warnings}, nil
}

// linkCustomer finds or creates the named customer, then records a customer
// need tying it to the issue with the original message as context.
func (s *TicketService) linkCustomer(ctx context.Context, issueID, name, body string) error {
	customers, err := s.tracker.SearchCustomers(ctx, name)
	if err != nil {
		return fmt.Errorf("searching customers: %w", err)
	}

	var customer model.Customer
	if len(customers) > 0 {
		customer = customers[0]
		s.logger.Info("reusing existing customer",
			zap.String("customer_id", customer.ID),
			zap.String("name", customer.Name),
		)
	} else {
		created, err := s.tracker.CreateCustomer(ctx, name)
		if err != nil {
			return fmt.Errorf("creating customer: %w", err)
		}
		customer = *created
		s.logger.Info("created new customer",
			zap.String("customer_id", customer.ID),
			zap.String("name", customer.Name),
		)
	}

	if err := s.tracker.CreateCustomerNeed(ctx, issueID, customer.ID, body); err != nil {
		return fmt.Errorf("creating customer need: %w", err)
	}
	return nil
}
