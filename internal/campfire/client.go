// Package campfire is a small client for the Campfire community API: the
// caller's profile, groups, their members, events and event attendees.
package campfire

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

	"github.com/raidingdoncaster/Snorlax-Gatekeeper/internal/model"
)

const DefaultBaseURL = "https://campfire-api.nianticlabs.com/v1"

var (
	ErrMissingToken     = errors.New("campfire token missing")
	ErrUnexpectedStatus = errors.New("unexpected status")
)

// APIError is a non-2xx answer.
type APIError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("campfire: %s %s: %d %s", e.Method, e.Path, e.Status, http.StatusText(e.Status))
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

func (e *APIError) Unwrap() error { return ErrUnexpectedStatus }

type Client struct {
	Token   string
	BaseURL string
	HTTP    *http.Client
}

func New(token, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		Token:   token,
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 15 * time.Second},
	}
}

// Get issues an authenticated GET for endpoint (e.g. "/me") and decodes the
// JSON body into out.
func (c *Client) Get(ctx context.Context, endpoint string, params url.Values, out any) error {
	if c.Token == "" {
		return ErrMissingToken
	}

	u := c.BaseURL + endpoint
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	req.Header.Set("Content-Type", "application/json")

	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("campfire: GET %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &APIError{Method: http.MethodGet, Path: endpoint, Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("campfire: decode %s: %w", endpoint, err)
	}
	return nil
}

// Me returns the caller's profile as sent by the API.
func (c *Client) Me(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	if err := c.Get(ctx, "/me", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GroupInfo(ctx context.Context, groupID string) (map[string]any, error) {
	var out map[string]any
	if err := c.Get(ctx, "/groups/"+url.PathEscape(groupID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GroupMembers(ctx context.Context, groupID string) ([]model.Member, error) {
	var out struct {
		Members []model.Member `json:"members"`
	}
	if err := c.Get(ctx, "/groups/"+url.PathEscape(groupID)+"/members", nil, &out); err != nil {
		return nil, err
	}
	return orEmpty(out.Members), nil
}

func (c *Client) GroupEvents(ctx context.Context, groupID string) ([]model.Event, error) {
	var out struct {
		Events []model.Event `json:"events"`
	}
	if err := c.Get(ctx, "/groups/"+url.PathEscape(groupID)+"/events", nil, &out); err != nil {
		return nil, err
	}
	return orEmpty(out.Events), nil
}

func (c *Client) EventAttendees(ctx context.Context, eventID string) ([]model.Attendee, error) {
	var out struct {
		Attendees []model.Attendee `json:"attendees"`
	}
	if err := c.Get(ctx, "/events/"+url.PathEscape(eventID)+"/attendees", nil, &out); err != nil {
		return nil, err
	}
	return orEmpty(out.Attendees), nil
}

// History loads a group's members and, for each of its events, who attended.
// Attendee lists are fetched one event at a time; the first failure aborts.
func (c *Client) History(ctx context.Context, groupID string) (model.GroupHistory, error) {
	members, err := c.GroupMembers(ctx, groupID)
	if err != nil {
		return model.GroupHistory{}, err
	}
	events, err := c.GroupEvents(ctx, groupID)
	if err != nil {
		return model.GroupHistory{}, err
	}

	h := model.GroupHistory{
		GroupID: groupID,
		Members: members,
		History: make([]model.EventAttendance, 0, len(events)),
	}
	for _, ev := range events {
		attendees, err := c.EventAttendees(ctx, string(ev.ID))
		if err != nil {
			return model.GroupHistory{}, err
		}
		h.History = append(h.History, model.EventAttendance{Event: ev, Attendees: attendees})
	}
	return h, nil
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
