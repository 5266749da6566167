// Package people provides the Go SDK for the Mochi People API.
//
// Covers friends, invitations, groups and the chat-creation handoff with a
// sub-module access pattern. Every response passes through a normalizer so
// callers see exactly one shape per resource, and reads go through a keyed
// query cache that mutations invalidate.
//
// Example:
//
//	client := people.NewClient("token-...", people.WithBaseURL("https://mochi.example"))
//
//	list, _ := client.Friends.List(ctx)
//	client.Friends.AcceptInvite(ctx, list.Received[0].ID)
//
//	detail, _ := client.Groups.Get(ctx, "grp-1")
//	client.Groups.AddMember(ctx, people.AddMemberOptions{Group: detail.Group.ID, Member: "u-9", Type: people.MemberUser})
//
//	chat, _ := client.Chat.Create(ctx, "Lunch", []string{"u-1", "u-2"})
package people

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// ============================================================================
// Environment
// ============================================================================

type Environment string

const (
	Production Environment = "production"
	Local      Environment = "local"
)

var environments = map[Environment]string{
	Production: "https://mochi-os.org",
	Local:      "http://localhost:8081",
}

const (
	DefaultBaseURL = "https://mochi-os.org"
	DefaultAppPath = "/people"
	DefaultTimeout = 30 * time.Second
)

// ============================================================================
// Client
// ============================================================================

type Client struct {
	token       string
	baseURL     string
	appPath     string
	httpClient  *http.Client
	logger      *slog.Logger
	development bool
	cache       *QueryCache
	registerer  prometheus.Registerer
	normalize   *Normalizer

	Friends       *FriendsClient
	Welcome       *WelcomeClient
	Groups        *GroupsClient
	Chat          *ChatClient
	Notifications *NotificationsClient
}

type ClientOption func(*Client)

func WithBaseURL(url string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimRight(url, "/") }
}

func WithEnvironment(env Environment) ClientOption {
	return func(c *Client) {
		if u, ok := environments[env]; ok {
			c.baseURL = u
		}
	}
}

// WithAppPath sets the path prefix the app-relative endpoints ("-/...") are
// resolved against.
func WithAppPath(path string) ClientOption {
	return func(c *Client) { c.appPath = "/" + strings.Trim(path, "/") }
}

func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = timeout }
}

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = client }
}

// WithToken overrides the token passed to NewClient.
func WithToken(token string) ClientOption {
	return func(c *Client) { c.token = token }
}

func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// WithDevelopment enables diagnostics that are silent in production, such as
// warnings about unexpected response shapes.
func WithDevelopment(dev bool) ClientOption {
	return func(c *Client) { c.development = dev }
}

// WithCache injects the query cache. Sharing one cache between clients shares
// their invalidation scope.
func WithCache(cache *QueryCache) ClientOption {
	return func(c *Client) { c.cache = cache }
}

// WithMetrics registers the cache counters of the client's own cache on reg.
// It has no effect together with WithCache.
func WithMetrics(reg prometheus.Registerer) ClientOption {
	return func(c *Client) { c.registerer = reg }
}

// NewClient creates a new People client.
// token is optional; pass "" when the transport authenticates by other means.
func NewClient(token string, opts ...ClientOption) *Client {
	c := &Client{
		token:   token,
		baseURL: DefaultBaseURL,
		appPath: DefaultAppPath,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}

	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if c.cache == nil {
		c.cache = NewQueryCache(c.logger, WithCacheMetrics(NewCacheMetrics(c.registerer)))
	}

	c.normalize = &Normalizer{Logger: c.logger, Development: c.development}

	c.Friends = &FriendsClient{client: c}
	c.Welcome = &WelcomeClient{client: c}
	c.Groups = &GroupsClient{client: c}
	c.Chat = &ChatClient{client: c}
	c.Notifications = &NotificationsClient{client: c}
	return c
}

// SetToken sets or updates the bearer token.
func (c *Client) SetToken(token string) {
	c.token = token
}

// Cache returns the query cache backing this client's reads.
func (c *Client) Cache() *QueryCache {
	return c.cache
}

// Close ends the session: every cached entry is discarded.
func (c *Client) Close() {
	c.cache.Clear()
}

// ============================================================================
// Internal request helper
// ============================================================================

// encoding selects how a request body is written on the wire.
type encoding int

const (
	encodeNone encoding = iota
	encodeJSON
	encodeForm
)

type request struct {
	method   string
	endpoint Endpoint
	encoding encoding
	json     any
	form     url.Values
	query    url.Values
}

func (c *Client) resolve(e Endpoint) string {
	p := string(e)
	if strings.HasPrefix(p, "-/") {
		return c.baseURL + c.appPath + "/" + p
	}
	return c.baseURL + p
}

func (c *Client) doRequest(ctx context.Context, r request) (any, error) {
	u := c.resolve(r.endpoint)
	if len(r.query) > 0 {
		u += "?" + r.query.Encode()
	}

	var bodyReader io.Reader
	contentType := ""
	switch r.encoding {
	case encodeJSON:
		b, err := json.Marshal(r.json)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(b)
		contentType = "application/json"
	case encodeForm:
		bodyReader = strings.NewReader(r.form.Encode())
		contentType = "application/x-www-form-urlencoded"
	}

	req, err := http.NewRequestWithContext(ctx, r.method, u, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Method: r.method, Path: string(r.endpoint), Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Method: r.method, Path: string(r.endpoint), StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &TransportError{Method: r.method, Path: string(r.endpoint), StatusCode: resp.StatusCode, Body: data}
	}

	c.logger.Debug("people request", "method", r.method, "path", string(r.endpoint), "status", resp.StatusCode)
	return decodeLoose(data), nil
}

// decodeLoose parses a response body into generic JSON values. Bodies that are
// empty or not JSON decode to nil, which every normalizer absorbs.
func decodeLoose(data []byte) any {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	var v any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil
	}
	return v
}

// mutate performs a mutation and, only after a 2xx, marks the given cache
// keys stale.
func (c *Client) mutate(ctx context.Context, r request, invalidate []CacheKey) (*MutationAck, error) {
	raw, err := c.doRequest(ctx, r)
	if err != nil {
		return nil, err
	}
	c.cache.Invalidate(invalidate...)
	return NormalizeMutation(raw), nil
}

func formValues(pairs ...string) url.Values {
	v := url.Values{}
	for i := 0; i+1 < len(pairs); i += 2 {
		v.Set(pairs[i], pairs[i+1])
	}
	return v
}
