package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-insights/internal/config"
	"github.com/spec-kit/ticket-insights/internal/domain"
)

// Client is the read-only surface of the ticketing provider's API.
type Client interface {
	// ListClosedTickets returns tickets closed within [fromUTC, toUTC).
	// The caller is responsible for keeping the range under the
	// provider's result-size ceiling; pagination within the range is
	// handled here.
	ListClosedTickets(ctx context.Context, fromUTC, toUTC time.Time) ([]domain.ClosedTicket, error)
	ListUsers(ctx context.Context) ([]domain.Assignee, error)
}

type httpClient struct {
	cfg    config.UpstreamConfig
	http   *http.Client
	logger *zap.Logger
}

// NewClient builds an HTTP client for the configured provider.
func NewClient(cfg config.UpstreamConfig, logger *zap.Logger) Client {
	return &httpClient{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.RequestTimeout()},
		logger: logger,
	}
}

type closedTicketsResponse struct {
	Tickets []struct {
		TicketID   string    `json:"ticket_id"`
		AssigneeID *string   `json:"assignee_id"`
		ClosedAt   time.Time `json:"closed_at"`
		State      string    `json:"state"`
	} `json:"tickets"`
	HasMore bool `json:"has_more"`
}

type usersResponse struct {
	Users []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"users"`
}

func (c *httpClient) ListClosedTickets(ctx context.Context, fromUTC, toUTC time.Time) ([]domain.ClosedTicket, error) {
	var result []domain.ClosedTicket

	for page := 1; ; page++ {
		params := url.Values{}
		params.Set("from", fromUTC.UTC().Format(time.RFC3339))
		params.Set("to", toUTC.UTC().Format(time.RFC3339))
		params.Set("page", strconv.Itoa(page))
		params.Set("per_page", strconv.Itoa(c.cfg.PageSize))

		var resp closedTicketsResponse
		if err := c.getJSON(ctx, "/v1/tickets/closed", params, &resp); err != nil {
			return nil, fmt.Errorf("list closed tickets page %d: %w", page, err)
		}

		for _, t := range resp.Tickets {
			ticket := domain.ClosedTicket{
				TicketID: t.TicketID,
				ClosedAt: t.ClosedAt,
				State:    t.State,
			}
			if t.AssigneeID != nil {
				ticket.AssigneeID = *t.AssigneeID
			}
			result = append(result, ticket)
		}

		if !resp.HasMore {
			return result, nil
		}
		if err := sleepCtx(ctx, c.cfg.Pacing()); err != nil {
			return nil, err
		}
	}
}

func (c *httpClient) ListUsers(ctx context.Context) ([]domain.Assignee, error) {
	var resp usersResponse
	if err := c.getJSON(ctx, "/v1/users", nil, &resp); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	users := make([]domain.Assignee, 0, len(resp.Users))
	for _, u := range resp.Users {
		users = append(users, domain.Assignee{ID: u.ID, Name: u.Name})
	}
	return users, nil
}

// getJSON performs a GET with retry and exponential backoff. Timeouts,
// connection errors, 429 and 5xx responses are retryable; other status
// codes fail immediately.
func (c *httpClient) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	endpoint := c.cfg.BaseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.cfg.RetryBase() * time.Duration(1<<(attempt-1))
			c.logger.Warn("retrying upstream request",
				zap.String("path", path),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
				zap.Error(lastErr),
			)
			if err := sleepCtx(ctx, backoff); err != nil {
				return err
			}
		}

		retryable, err := c.doOnce(ctx, endpoint, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable {
			return err
		}
	}
	return fmt.Errorf("retries exhausted: %w", lastErr)
}

func (c *httpClient) doOnce(ctx context.Context, endpoint string, out any) (retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.APIToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return true, err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		return true, fmt.Errorf("upstream returned %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("upstream returned %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("decode response: %w", err)
	}
	return false, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
