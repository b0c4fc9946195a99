package eventbrite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const defaultBaseURL = "https://www.eventbriteapi.com"

// ErrNotFound means Eventbrite reported 404 for an object it told us about.
// Callers skip these instead of retrying.
var ErrNotFound = errors.New("eventbrite object not found")

// RateLimitError means the hourly quota is exhausted. Retryable.
type RateLimitError struct {
	Detail string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("eventbrite rate limit exceeded: %s", e.Detail)
}

// Client holds one organization's private token.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	log        *zap.Logger
}

type Option func(*Client)

func WithBaseURL(base string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(base, "/") }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func NewClient(token string, log *zap.Logger, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    defaultBaseURL,
		token:      token,
		log:        log.Named("eventbrite"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type apiError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (c *Client) get(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if limit := resp.Header.Get("X-Rate-Limit"); limit != "" {
		c.log.Debug("rate limit", zap.String("header", limit))
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &RateLimitError{Detail: resp.Header.Get("X-Rate-Limit")}
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode >= 400:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		var apiErr apiError
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("GET %s: %s: %s", rawURL, apiErr.Error, apiErr.ErrorDescription)
		}
		return fmt.Errorf("GET %s: unexpected status %d", rawURL, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) expandURL(path, expand string) string {
	u := c.baseURL + path
	if expand != "" {
		u += "?expand=" + url.QueryEscape(expand)
	}
	return u
}

// GetEvent fetches one event, optionally with expansions such as
// "ticket_classes".
func (c *Client) GetEvent(ctx context.Context, eventID, expand string) (*Event, error) {
	var event Event
	if err := c.get(ctx, c.expandURL("/v3/events/"+eventID+"/", expand), &event); err != nil {
		return nil, err
	}
	return &event, nil
}

// GetEventAttendee fetches one attendee of an event.
func (c *Client) GetEventAttendee(ctx context.Context, eventID, attendeeID, expand string) (*Attendee, error) {
	var attendee Attendee
	path := "/v3/events/" + eventID + "/attendees/" + attendeeID + "/"
	if err := c.get(ctx, c.expandURL(path, expand), &attendee); err != nil {
		return nil, err
	}
	return &attendee, nil
}

// GetOrder fetches one order, optionally expanding its attendees.
func (c *Client) GetOrder(ctx context.Context, orderID, expand string) (*Order, error) {
	var order Order
	if err := c.get(ctx, c.expandURL("/v3/orders/"+orderID+"/", expand), &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// FetchResource fetches an arbitrary API URL, as delivered in a webhook
// payload, and returns the raw object.
func (c *Client) FetchResource(ctx context.Context, apiURL string) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.get(ctx, apiURL, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

type organizationsPage struct {
	Organizations []Organization `json:"organizations"`
	Pagination    Pagination     `json:"pagination"`
}

// ListOrganizations lists the organizations the token can act for.
func (c *Client) ListOrganizations(ctx context.Context) ([]Organization, error) {
	var out []Organization
	next := c.baseURL + "/v3/users/me/organizations/"
	for next != "" {
		var page organizationsPage
		if err := c.get(ctx, next, &page); err != nil {
			return nil, err
		}
		out = append(out, page.Organizations...)
		next = c.continueFrom(c.baseURL+"/v3/users/me/organizations/", page.Pagination)
	}
	return out, nil
}

type eventsPage struct {
	Events     []Event    `json:"events"`
	Pagination Pagination `json:"pagination"`
}

// ListEvents lists every event of an Eventbrite organization.
func (c *Client) ListEvents(ctx context.Context, organizationID string) ([]Event, error) {
	base := c.baseURL + "/v3/organizations/" + organizationID + "/events/"
	var out []Event
	next := base
	for next != "" {
		var page eventsPage
		if err := c.get(ctx, next, &page); err != nil {
			return nil, err
		}
		out = append(out, page.Events...)
		next = c.continueFrom(base, page.Pagination)
	}
	return out, nil
}

type attendeesPage struct {
	Attendees  []Attendee `json:"attendees"`
	Pagination Pagination `json:"pagination"`
}

// ListAttendees lists every attendee of an event.
func (c *Client) ListAttendees(ctx context.Context, eventID string) ([]Attendee, error) {
	base := c.baseURL + "/v3/events/" + eventID + "/attendees/"
	var out []Attendee
	next := base
	for next != "" {
		var page attendeesPage
		if err := c.get(ctx, next, &page); err != nil {
			return nil, err
		}
		out = append(out, page.Attendees...)
		next = c.continueFrom(base, page.Pagination)
	}
	return out, nil
}

func (c *Client) continueFrom(base string, p Pagination) string {
	if !p.HasMoreItems {
		return ""
	}
	c.log.Debug("more items, fetching next page")
	return base + "?continuation=" + url.QueryEscape(p.Continuation)
}
