package notion

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/BTreeMap/HabitPipe/internal/habitsource"
	"github.com/BTreeMap/HabitPipe/internal/models"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
}

func newTestServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request, body string)) (*Client, *[]recordedRequest) {
	t.Helper()
	var requests []recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, APIVersion, r.Header.Get("Notion-Version"))
		raw, _ := io.ReadAll(r.Body)
		requests = append(requests, recordedRequest{Method: r.Method, Path: r.URL.Path, Body: string(raw)})
		handler(w, r, string(raw))
	}))
	t.Cleanup(srv.Close)
	return NewClient("secret", WithBaseURL(srv.URL)), &requests
}

const databaseJSON = `{
  "object": "database",
  "id": "db1",
  "properties": {
    "Index": {"id": "title", "name": "Index", "type": "title", "title": {}},
    "Date": {"id": "a%3Bb", "name": "Date", "type": "date", "date": {}},
    "💪 Pushups@9,18": {"id": "p1", "name": "💪 Pushups@9,18", "type": "number", "number": {}},
    "📚 Read": {"id": "p2", "name": "📚 Read", "type": "checkbox", "checkbox": {}},
    "Notes": {"id": "p3", "name": "Notes", "type": "rich_text", "rich_text": {}}
  }
}`

const queryJSON = `{
  "object": "list",
  "results": [
    {
      "id": "page-1",
      "properties": {
        "Index": {"type": "title", "title": [{"plain_text": "7", "text": {"content": "7"}}]},
        "Date": {"type": "date", "date": {"start": "2024-03-10T00:00:00.000+00:00"}},
        "💪 Pushups@9,18": {"type": "number", "number": 25},
        "📚 Read": {"type": "checkbox", "checkbox": true},
        "⏰ Wake up": {"type": "date", "date": {"start": "2024-03-10T07:00:00Z"}}
      }
    }
  ]
}`

func TestBackend_Properties(t *testing.T) {
	client, requests := newTestServer(t, func(w http.ResponseWriter, r *http.Request, body string) {
		_, _ = io.WriteString(w, databaseJSON)
	})

	props, err := client.Database("db1").Properties(context.Background())
	require.NoError(t, err)
	assert.Len(t, props, 5)
	require.Len(t, *requests, 1)
	assert.Equal(t, http.MethodGet, (*requests)[0].Method)
	assert.Equal(t, "/databases/db1", (*requests)[0].Path)

	byName := map[string]habitsource.Property{}
	for _, p := range props {
		byName[p.Name] = p
	}
	assert.Equal(t, "number", byName["💪 Pushups@9,18"].Type)
	assert.Equal(t, "p2", byName["📚 Read"].ID)
}

func TestBackend_DatabaseHabits(t *testing.T) {
	client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request, body string) {
		_, _ = io.WriteString(w, databaseJSON)
	})

	db := habitsource.NewDatabase("db1", client.Database("db1"))
	habits, err := db.GetHabits(context.Background())
	require.NoError(t, err)
	require.Len(t, habits, 2, "reserved and unsupported properties are skipped")

	h, err := db.GetHabitByEmoji(context.Background(), "💪")
	require.NoError(t, err)
	assert.Equal(t, []int{9, 18}, h.Reminders)
	assert.Equal(t, "💪 Pushups", h.Name)
}

func TestBackend_LatestPages(t *testing.T) {
	client, requests := newTestServer(t, func(w http.ResponseWriter, r *http.Request, body string) {
		_, _ = io.WriteString(w, queryJSON)
	})

	pages, err := client.Database("db1").LatestPages(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, pages, 1)

	page := pages[0]
	assert.Equal(t, "page-1", page.ID)
	assert.Equal(t, 7, page.Index)
	assert.Equal(t, "2024-03-10", page.Date)
	require.NotNil(t, page.Values["💪 Pushups@9,18"].Number)
	assert.Equal(t, 25.0, *page.Values["💪 Pushups@9,18"].Number)
	assert.True(t, page.Values["📚 Read"].Checkbox)
	assert.Equal(t, "2024-03-10T07:00:00Z", page.Values["⏰ Wake up"].Date)

	body := gjson.Parse((*requests)[0].Body)
	assert.Equal(t, "/databases/db1/query", (*requests)[0].Path)
	assert.Equal(t, "Date", body.Get("sorts.0.property").String())
	assert.Equal(t, "descending", body.Get("sorts.0.direction").String())
	assert.Equal(t, int64(1), body.Get("page_size").Int())
}

func TestBackend_PropertyUpdates(t *testing.T) {
	client, requests := newTestServer(t, func(w http.ResponseWriter, r *http.Request, body string) {
		_, _ = io.WriteString(w, `{}`)
	})
	backend := client.Database("db1")
	ctx := context.Background()

	require.NoError(t, backend.CreateProperty(ctx, "📚 Read", models.HabitTypeCheckbox))
	require.NoError(t, backend.RenameProperty(ctx, "📚 Read", "📚 Read@8"))
	require.NoError(t, backend.DeleteProperty(ctx, "📚 Read@8"))
	require.Len(t, *requests, 3)

	for _, req := range *requests {
		assert.Equal(t, http.MethodPatch, req.Method)
		assert.Equal(t, "/databases/db1", req.Path)
	}

	var created map[string]map[string]map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte((*requests)[0].Body), &created))
	assert.Contains(t, created["properties"]["📚 Read"], "checkbox")

	assert.Equal(t, "📚 Read@8", gjson.Get((*requests)[1].Body, `properties.📚 Read.name`).String())

	deleted := gjson.Get((*requests)[2].Body, `properties.📚 Read@8`)
	assert.True(t, deleted.Exists())
	assert.Equal(t, gjson.Null, deleted.Type)
}

func TestBackend_CreateAndUpdatePage(t *testing.T) {
	client, requests := newTestServer(t, func(w http.ResponseWriter, r *http.Request, body string) {
		_, _ = io.WriteString(w, `{"object":"page","id":"page-2"}`)
	})
	backend := client.Database("db1")
	ctx := context.Background()
	n := 12.5

	require.NoError(t, backend.CreatePage(ctx, 8, "2024-03-11", map[string]models.PageValue{
		"💪 Pushups": {Type: models.HabitTypeNumber, Number: &n},
	}))
	require.NoError(t, backend.UpdatePage(ctx, "page-2", map[string]models.PageValue{
		"📚 Read": {Type: models.HabitTypeCheckbox, Checkbox: true},
	}))

	created := gjson.Parse((*requests)[0].Body)
	assert.Equal(t, "/pages", (*requests)[0].Path)
	assert.Equal(t, "db1", created.Get("parent.database_id").String())
	assert.Equal(t, "8", created.Get("properties.Index.title.0.text.content").String())
	assert.Equal(t, "2024-03-11", created.Get("properties.Date.date.start").String())
	assert.Equal(t, 12.5, created.Get(`properties.💪 Pushups.number`).Float())

	updated := gjson.Parse((*requests)[1].Body)
	assert.Equal(t, http.MethodPatch, (*requests)[1].Method)
	assert.Equal(t, "/pages/page-2", (*requests)[1].Path)
	assert.True(t, updated.Get(`properties.📚 Read.checkbox`).Bool())
}

func TestClient_APIErrorBecomesBackendError(t *testing.T) {
	client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request, body string) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"object":"error","status":404,"code":"object_not_found","message":"Could not find database"}`)
	})

	_, err := client.Database("nope").Properties(context.Background())
	require.Error(t, err)
	var berr *habitsource.BackendError
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, http.StatusNotFound, berr.Status)
	assert.Contains(t, err.Error(), "Could not find database")
	assert.Equal(t, habitsource.KindBackend, habitsource.KindOf(err))
}
