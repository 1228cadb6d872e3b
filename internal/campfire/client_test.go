package campfire

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/raidingdoncaster/Snorlax-Gatekeeper/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, routes map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, ok := routes[r.URL.Path]
		if !ok {
			http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGet_SendsBearerAndParams(t *testing.T) {
	var gotQuery url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		gotQuery = r.URL.Query()
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := New("tok", srv.URL+"/")
	var out map[string]any
	require.NoError(t, c.Get(context.Background(), "/me", url.Values{"page": {"2"}}, &out))
	assert.Equal(t, true, out["ok"])
	assert.Equal(t, "2", gotQuery.Get("page"))
}

func TestGet_MissingToken(t *testing.T) {
	c := New("", "http://127.0.0.1:0")
	_, err := c.Me(context.Background())
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestGet_Non2xx(t *testing.T) {
	srv := newTestServer(t, nil)
	c := New("tok", srv.URL)

	_, err := c.Me(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnexpectedStatus)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "/me", apiErr.Path)
	assert.Contains(t, err.Error(), "404")

	bad := New("wrong", srv.URL)
	_, err = bad.Me(context.Background())
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
}

func TestNew_DefaultBaseURL(t *testing.T) {
	assert.Equal(t, DefaultBaseURL, New("tok", "").BaseURL)
}

func TestListsDefaultToEmpty(t *testing.T) {
	srv := newTestServer(t, map[string]any{
		"/groups/g1/members":   map[string]any{},
		"/groups/g1/events":    map[string]any{"events": nil},
		"/events/e1/attendees": map[string]any{"other": 1},
	})
	c := New("tok", srv.URL)
	ctx := context.Background()

	members, err := c.GroupMembers(ctx, "g1")
	require.NoError(t, err)
	assert.NotNil(t, members)
	assert.Empty(t, members)

	events, err := c.GroupEvents(ctx, "g1")
	require.NoError(t, err)
	assert.NotNil(t, events)
	assert.Empty(t, events)

	attendees, err := c.EventAttendees(ctx, "e1")
	require.NoError(t, err)
	assert.NotNil(t, attendees)
}

func TestGroupInfo(t *testing.T) {
	srv := newTestServer(t, map[string]any{
		"/groups/g1": map[string]any{"id": "g1", "name": "Doncaster Raiders"},
	})
	info, err := New("tok", srv.URL).GroupInfo(context.Background(), "g1")
	require.NoError(t, err)
	assert.Equal(t, "Doncaster Raiders", info["name"])
}

func TestHistory(t *testing.T) {
	srv := newTestServer(t, map[string]any{
		"/groups/g1/members": map[string]any{"members": []map[string]any{
			{"id": 17, "name": "Red", "avatar": "r.png"},
		}},
		"/groups/g1/events": map[string]any{"events": []map[string]any{
			{"id": "e1", "title": "Raid Hour", "description": "**Bring** passes", "start_time": "2024-05-01T18:00:00Z", "location": "Market"},
			{"id": 2, "title": "Community Day"},
		}},
		"/events/e1/attendees": map[string]any{"attendees": []map[string]any{{"id": "17", "name": "Red"}}},
		"/events/2/attendees":  map[string]any{},
	})

	h, err := New("tok", srv.URL).History(context.Background(), "g1")
	require.NoError(t, err)

	assert.Equal(t, "g1", h.GroupID)
	require.Len(t, h.Members, 1)
	assert.Equal(t, model.FlexString("17"), h.Members[0].ID)

	require.Len(t, h.History, 2)
	assert.Equal(t, "Raid Hour", h.History[0].Event.Title)
	assert.Equal(t, model.FlexString("Market"), h.History[0].Event.Location)
	require.Len(t, h.History[0].Attendees, 1)
	assert.Equal(t, "Red", h.History[0].Attendees[0].Name)
	assert.Equal(t, model.FlexString("2"), h.History[1].Event.ID)
	assert.Empty(t, h.History[1].Attendees)
}

func TestHistory_AttendeeFailureAborts(t *testing.T) {
	srv := newTestServer(t, map[string]any{
		"/groups/g1/members": map[string]any{"members": []any{}},
		"/groups/g1/events":  map[string]any{"events": []map[string]any{{"id": "missing"}}},
	})

	_, err := New("tok", srv.URL).History(context.Background(), "g1")
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
}
