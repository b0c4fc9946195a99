package paypal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultBaseURL = "https://api.paypal.com"

// Client talks to the PayPal OAuth, reporting and billing APIs with one
// organization's credentials. The access token is fetched lazily and
// refreshed once on a 401.
type Client struct {
	httpClient *http.Client
	baseURL    string
	clientID   string
	secret     string
	log        *zap.Logger

	mu          sync.Mutex
	accessToken string
}

// Option mutates a Client at construction time.
type Option func(*Client)

// WithBaseURL points the client at a different API host, used by tests and
// the sandbox environment.
func WithBaseURL(base string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(base, "/") }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func NewClient(clientID, secret string, log *zap.Logger, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    defaultBaseURL,
		clientID:   clientID,
		secret:     secret,
		log:        log.Named("paypal"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
}

func (c *Client) authenticate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	body := strings.NewReader("grant_type=client_credentials")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/oauth2/token", body)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.clientID, c.secret)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetch access token: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch access token: unexpected status %d", resp.StatusCode)
	}

	var token tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return fmt.Errorf("decode access token: %w", err)
	}
	c.accessToken = token.AccessToken
	return nil
}

func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	token := c.accessToken
	c.mu.Unlock()
	if token != "" {
		return token, nil
	}
	if err := c.authenticate(ctx); err != nil {
		return "", err
	}
	c.mu.Lock()
	token = c.accessToken
	c.mu.Unlock()
	return token, nil
}

// getJSON fetches rawURL with bearer auth, re-authenticating once when the
// token has expired.
func (c *Client) getJSON(ctx context.Context, rawURL string, out any) error {
	for attempt := 0; ; attempt++ {
		token, err := c.token(ctx)
		if err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}

		if resp.StatusCode == http.StatusUnauthorized && attempt == 0 {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			c.log.Debug("access token expired, re-authenticating")
			if err := c.authenticate(ctx); err != nil {
				return err
			}
			continue
		}

		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
			return fmt.Errorf("GET %s: unexpected status %d: %s", rawURL, resp.StatusCode, body)
		}
		return json.NewDecoder(resp.Body).Decode(out)
	}
}

// GetSubscription fetches and parses one billing subscription.
func (c *Client) GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	var raw json.RawMessage
	endpoint := c.baseURL + "/v1/billing/subscriptions/" + subscriptionID
	if err := c.getJSON(ctx, endpoint, &raw); err != nil {
		return nil, fmt.Errorf("get subscription %s: %w", subscriptionID, err)
	}
	return ParseSubscription(raw)
}

type transactionsPage struct {
	TransactionDetails []json.RawMessage `json:"transaction_details"`
	Links              []struct {
		Href string `json:"href"`
		Rel  string `json:"rel"`
	} `json:"links"`
}

// ListTransactions fetches every transaction in [start, end] from the
// reporting API, following pagination links. Payloads stay raw so they can be
// queued and parsed by the worker that processes them.
func (c *Client) ListTransactions(ctx context.Context, start, end time.Time) ([]json.RawMessage, error) {
	params := url.Values{}
	params.Set("page_size", "500")
	params.Set("page", "1")
	params.Set("start_date", start.UTC().Format(dateFormat))
	params.Set("end_date", end.UTC().Format(dateFormat))
	params.Set("fields", "all")
	next := c.baseURL + "/v1/reporting/transactions?" + params.Encode()

	var out []json.RawMessage
	for next != "" {
		var page transactionsPage
		if err := c.getJSON(ctx, next, &page); err != nil {
			return nil, fmt.Errorf("list transactions: %w", err)
		}
		out = append(out, page.TransactionDetails...)

		next = ""
		for _, link := range page.Links {
			if link.Rel == "next" {
				next = link.Href
				c.log.Info("following next page of transaction results")
				break
			}
		}
	}
	return out, nil
}
