// Package notion implements the habit backend over a Notion database.
//
// Every habit is a database property named "<emoji> <text>[@h,...]"; every day is a page
// carrying an Index title and a Date property.
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/tidwall/gjson"

	"github.com/BTreeMap/HabitPipe/internal/habitsource"
	"github.com/BTreeMap/HabitPipe/internal/models"
)

const (
	// DefaultBaseURL is the public Notion API endpoint.
	DefaultBaseURL = "https://api.notion.com/v1"
	// APIVersion is sent as the Notion-Version header.
	APIVersion = "2022-06-28"
	// DefaultTimeout bounds each API call.
	DefaultTimeout = 15 * time.Second
)

// Client is a minimal Notion REST client.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another endpoint (tests, proxies).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// NewClient creates a Client authenticated with apiKey.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:  apiKey,
		baseURL: DefaultBaseURL,
		http:    &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// do sends a JSON request and returns the parsed response body.
func (c *Client) do(ctx context.Context, op, method, path string, body interface{}) (gjson.Result, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return gjson.Result{}, &habitsource.BackendError{Op: op, Err: err}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return gjson.Result{}, &habitsource.BackendError{Op: op, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Notion-Version", APIVersion)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	slog.Debug("notion.Client.do: sending request", "op", op, "method", method, "path", path)
	resp, err := c.http.Do(req)
	if err != nil {
		slog.Error("notion.Client.do: request failed", "op", op, "error", err)
		return gjson.Result{}, &habitsource.BackendError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, &habitsource.BackendError{Op: op, Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		msg := gjson.GetBytes(raw, "message").String()
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		slog.Error("notion.Client.do: API error", "op", op, "status", resp.StatusCode, "message", msg)
		return gjson.Result{}, &habitsource.BackendError{Op: op, Status: resp.StatusCode, Err: errors.New(msg)}
	}
	return gjson.ParseBytes(raw), nil
}

// Database returns the Backend for one habit database.
func (c *Client) Database(databaseID string) *Backend {
	return &Backend{client: c, databaseID: databaseID}
}

// NewFactory returns a habitsource.Factory building Notion-backed habit databases.
func NewFactory(c *Client, opts ...habitsource.Option) habitsource.Factory {
	return habitsource.NewFactory(func(databaseID string) habitsource.Backend {
		return c.Database(databaseID)
	}, opts...)
}

// Backend implements habitsource.Backend for one Notion database.
type Backend struct {
	client     *Client
	databaseID string
}

// Properties implements habitsource.Backend.
func (b *Backend) Properties(ctx context.Context) ([]habitsource.Property, error) {
	res, err := b.client.do(ctx, "get database", http.MethodGet, "/databases/"+b.databaseID, nil)
	if err != nil {
		return nil, err
	}
	var props []habitsource.Property
	res.Get("properties").ForEach(func(key, value gjson.Result) bool {
		name := value.Get("name").String()
		if name == "" {
			name = key.String()
		}
		props = append(props, habitsource.Property{
			ID:   value.Get("id").String(),
			Name: name,
			Type: value.Get("type").String(),
		})
		return true
	})
	return props, nil
}

func (b *Backend) updateProperties(ctx context.Context, op string, properties map[string]interface{}) error {
	_, err := b.client.do(ctx, op, http.MethodPatch, "/databases/"+b.databaseID, map[string]interface{}{
		"properties": properties,
	})
	return err
}

// CreateProperty implements habitsource.Backend.
func (b *Backend) CreateProperty(ctx context.Context, name string, t models.HabitType) error {
	return b.updateProperties(ctx, "create property", map[string]interface{}{
		name: map[string]interface{}{string(t): map[string]interface{}{}},
	})
}

// RenameProperty implements habitsource.Backend.
func (b *Backend) RenameProperty(ctx context.Context, name, newName string) error {
	return b.updateProperties(ctx, "rename property", map[string]interface{}{
		name: map[string]interface{}{"name": newName},
	})
}

// DeleteProperty implements habitsource.Backend. Notion removes a property set to null.
func (b *Backend) DeleteProperty(ctx context.Context, name string) error {
	return b.updateProperties(ctx, "delete property", map[string]interface{}{
		name: nil,
	})
}

// LatestPages implements habitsource.Backend.
func (b *Backend) LatestPages(ctx context.Context, limit int) ([]models.TodayPage, error) {
	res, err := b.client.do(ctx, "query database", http.MethodPost, "/databases/"+b.databaseID+"/query", map[string]interface{}{
		"sorts":     []map[string]string{{"property": models.PropertyDate, "direction": "descending"}},
		"page_size": limit,
	})
	if err != nil {
		return nil, err
	}
	var pages []models.TodayPage
	for _, r := range res.Get("results").Array() {
		pages = append(pages, parsePage(r))
	}
	return pages, nil
}

func parsePage(r gjson.Result) models.TodayPage {
	page := models.TodayPage{
		ID:     r.Get("id").String(),
		Values: make(map[string]models.PageValue),
	}
	if start := r.Get("properties.Date.date.start").String(); len(start) >= 10 {
		page.Date = start[:10]
	}
	index := r.Get("properties.Index.title.0.plain_text").String()
	if index == "" {
		index = r.Get("properties.Index.title.0.text.content").String()
	}
	page.Index, _ = strconv.Atoi(index)

	r.Get("properties").ForEach(func(key, value gjson.Result) bool {
		name := key.String()
		if name == models.PropertyDate || name == models.PropertyIndex {
			return true
		}
		switch t := models.HabitType(value.Get("type").String()); t {
		case models.HabitTypeNumber:
			v := models.PageValue{Type: t}
			if n := value.Get("number"); n.Exists() && n.Type == gjson.Number {
				f := n.Float()
				v.Number = &f
			}
			page.Values[name] = v
		case models.HabitTypeCheckbox:
			page.Values[name] = models.PageValue{Type: t, Checkbox: value.Get("checkbox").Bool()}
		case models.HabitTypeDate:
			page.Values[name] = models.PageValue{Type: t, Date: value.Get("date.start").String()}
		}
		return true
	})
	return page
}

func propertyPayload(v models.PageValue) interface{} {
	switch v.Type {
	case models.HabitTypeNumber:
		if v.Number == nil {
			return map[string]interface{}{"number": nil}
		}
		return map[string]interface{}{"number": *v.Number}
	case models.HabitTypeCheckbox:
		return map[string]interface{}{"checkbox": v.Checkbox}
	default:
		return map[string]interface{}{"date": map[string]string{"start": v.Date}}
	}
}

// CreatePage implements habitsource.Backend.
func (b *Backend) CreatePage(ctx context.Context, index int, date string, values map[string]models.PageValue) error {
	properties := map[string]interface{}{
		models.PropertyIndex: map[string]interface{}{
			"title": []map[string]interface{}{{"text": map[string]string{"content": strconv.Itoa(index)}}},
		},
		models.PropertyDate: map[string]interface{}{"date": map[string]string{"start": date}},
	}
	for name, v := range values {
		properties[name] = propertyPayload(v)
	}
	_, err := b.client.do(ctx, "create page", http.MethodPost, "/pages", map[string]interface{}{
		"parent":     map[string]string{"database_id": b.databaseID},
		"properties": properties,
	})
	return err
}

// UpdatePage implements habitsource.Backend.
func (b *Backend) UpdatePage(ctx context.Context, pageID string, values map[string]models.PageValue) error {
	properties := make(map[string]interface{}, len(values))
	for name, v := range values {
		properties[name] = propertyPayload(v)
	}
	_, err := b.client.do(ctx, "update page", http.MethodPatch, fmt.Sprintf("/pages/%s", pageID), map[string]interface{}{
		"properties": properties,
	})
	return err
}

// Compile-time check that Backend implements habitsource.Backend.
var _ habitsource.Backend = (*Backend)(nil)
