// Package linear is a minimal client for the Linear GraphQL API, covering
// the handful of operations the bot needs: issue creation, team labels,
// customer lookup/creation, customer needs, and Slack attachment linking.
package linear

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/featureforge/slack-linear-bot/internal/model"
	"github.com/featureforge/slack-linear-bot/pkg/logger"
)

const defaultEndpoint = "https://api.linear.app/graphql"

// Client talks to the Linear GraphQL API.
type Client struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
	logger     *logger.Logger
}

// NewClient creates a new Linear client.
func NewClient(apiKey string, log *logger.Logger) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("Linear API key is required")
	}

	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		endpoint:   defaultEndpoint,
		apiKey:     apiKey,
		logger:     log,
	}, nil
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors"`
}

// do executes one GraphQL request and decodes the data payload into out.
func (c *Client) do(ctx context.Context, query string, variables map[string]any, out any) error {
	body, err := json.Marshal(graphQLRequest{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("Linear API request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("Linear API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var gqlResp graphQLResponse
	if err := json.Unmarshal(respBody, &gqlResp); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	if len(gqlResp.Errors) > 0 {
		msgs := make([]string, len(gqlResp.Errors))
		for i, e := range gqlResp.Errors {
			msgs[i] = e.Message
		}
		return fmt.Errorf("Linear API errors: %s", strings.Join(msgs, "; "))
	}

	if out != nil {
		if err := json.Unmarshal(gqlResp.Data, out); err != nil {
			return fmt.Errorf("decoding data: %w", err)
		}
	}
	return nil
}

const issueCreateMutation = `
mutation IssueCreate($input: IssueCreateInput!) {
  issueCreate(input: $input) {
    success
    issue {
      id
      identifier
      title
      url
    }
  }
}`

// CreateIssue creates a tracker issue and returns it.
func (c *Client) CreateIssue(ctx context.Context, req model.TicketRequest) (*model.Issue, error) {
	input := map[string]any{
		"teamId":      req.TeamID,
		"title":       req.Title,
		"description": req.Description,
	}
	if len(req.LabelIDs) > 0 {
		input["labelIds"] = req.LabelIDs
	}

	var data struct {
		IssueCreate struct {
			Success bool        `json:"success"`
			Issue   model.Issue `json:"issue"`
		} `json:"issueCreate"`
	}
	if err := c.do(ctx, issueCreateMutation, map[string]any{"input": input}, &data); err != nil {
		return nil, err
	}
	if !data.IssueCreate.Success {
		return nil, errors.New("issue creation was not successful")
	}

	c.logger.Info("Linear issue created",
		zap.String("id", data.IssueCreate.Issue.ID),
		zap.String("identifier", data.IssueCreate.Issue.Identifier),
		zap.String("url", data.IssueCreate.Issue.URL),
	)
	return &data.IssueCreate.Issue, nil
}

const teamLabelsQuery = `
query TeamLabels($teamId: String!) {
  team(id: $teamId) {
    labels {
      nodes {
        id
        name
      }
    }
  }
}`

// TeamLabels lists the labels configured on a team.
func (c *Client) TeamLabels(ctx context.Context, teamID string) ([]model.Label, error) {
	var data struct {
		Team struct {
			Labels struct {
				Nodes []model.Label `json:"nodes"`
			} `json:"labels"`
		} `json:"team"`
	}
	if err := c.do(ctx, teamLabelsQuery, map[string]any{"teamId": teamID}, &data); err != nil {
		return nil, err
	}
	return data.Team.Labels.Nodes, nil
}

const customerSearchQuery = `
query SearchCustomers($filter: CustomerFilter!) {
  customers(filter: $filter) {
    nodes {
      id
      name
    }
  }
}`

// SearchCustomers finds customers whose name contains the given substring,
// case-insensitively.
func (c *Client) SearchCustomers(ctx context.Context, name string) ([]model.Customer, error) {
	variables := map[string]any{
		"filter": map[string]any{
			"name": map[string]any{
				"containsIgnoreCase": strings.TrimSpace(name),
			},
		},
	}

	var data struct {
		Customers struct {
			Nodes []model.Customer `json:"nodes"`
		} `json:"customers"`
	}
	if err := c.do(ctx, customerSearchQuery, variables, &data); err != nil {
		return nil, err
	}
	return data.Customers.Nodes, nil
}

const customerCreateMutation = `
mutation CustomerCreate($input: CustomerCreateInput!) {
  customerCreate(input: $input) {
    success
    customer {
      id
      name
    }
  }
}`

// CreateCustomer creates a new customer record.
func (c *Client) CreateCustomer(ctx context.Context, name string) (*model.Customer, error) {
	var data struct {
		CustomerCreate struct {
			Success  bool           `json:"success"`
			Customer model.Customer `json:"customer"`
		} `json:"customerCreate"`
	}
	variables := map[string]any{"input": map[string]any{"name": strings.TrimSpace(name)}}
	if err := c.do(ctx, customerCreateMutation, variables, &data); err != nil {
		return nil, err
	}
	if !data.CustomerCreate.Success {
		return nil, errors.New("customer creation was not successful")
	}
	return &data.CustomerCreate.Customer, nil
}

const customerNeedCreateMutation = `
mutation CustomerNeedCreate($input: CustomerNeedCreateInput!) {
  customerNeedCreate(input: $input) {
    success
  }
}`

// CreateCustomerNeed links a customer to an issue with contextual body text.
func (c *Client) CreateCustomerNeed(ctx context.Context, issueID, customerID, body string) error {
	variables := map[string]any{
		"input": map[string]any{
			"issueId":    issueID,
			"customerId": customerID,
			"body":       body,
		},
	}

	var data struct {
		CustomerNeedCreate struct {
			Success bool `json:"success"`
		} `json:"customerNeedCreate"`
	}
	if err := c.do(ctx, customerNeedCreateMutation, variables, &data); err != nil {
		return err
	}
	if !data.CustomerNeedCreate.Success {
		return errors.New("customer need creation was not successful")
	}
	return nil
}

const attachmentLinkSlackMutation = `
mutation AttachmentLinkSlack($issueId: String!, $url: String!) {
  attachmentLinkSlack(issueId: $issueId, url: $url, syncToCommentThread: true) {
    success
    attachment {
      id
    }
  }
}`

// LinkSlackThread attaches a Slack permalink to an issue and asks Linear to
// mirror future issue comments back into the Slack thread. Returns the
// attachment id.
func (c *Client) LinkSlackThread(ctx context.Context, issueID, url string) (string, error) {
	var data struct {
		AttachmentLinkSlack struct {
			Success    bool `json:"success"`
			Attachment struct {
				ID string `json:"id"`
			} `json:"attachment"`
		} `json:"attachmentLinkSlack"`
	}
	variables := map[string]any{"issueId": issueID, "url": url}
	if err := c.do(ctx, attachmentLinkSlackMutation, variables, &data); err != nil {
		return "", err
	}
	if !data.AttachmentLinkSlack.Success {
		return "", errors.New("Slack attachment link was not successful")
	}
	return data.AttachmentLinkSlack.Attachment.ID, nil
}
