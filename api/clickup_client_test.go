package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resolvedelta/config"
	"resolvedelta/models"
)

func newTestClient(handler http.Handler) (*ClickUpClient, *httptest.Server) {
	return newTestClientWithPolicy(handler, config.DefaultPolicy())
}

func newTestClientWithPolicy(handler http.Handler, policy config.Policy) (*ClickUpClient, *httptest.Server) {
	server := httptest.NewServer(handler)
	cfg := &config.Config{
		ClickUpURL:             server.URL,
		ClickUpAPIToken:        "test-token",
		ClickUpListID:          "list-1",
		ExternalIDFieldHint:    "external id",
		BusinessValueFieldHint: "business value",
	}
	return NewClickUpClient(cfg, policy), server
}

func TestCheckAuth(t *testing.T) {
	var gotAuth string
	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"user": {"id": 1}}`))
	}))
	defer server.Close()

	require.NoError(t, client.CheckAuth())
	assert.Equal(t, "test-token", gotAuth)
}

func TestCheckAuthFailure(t *testing.T) {
	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"err": "Token invalid"}`))
	}))
	defer server.Close()

	err := client.CheckAuth()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Token invalid")
}

func TestListTasks(t *testing.T) {
	response := `{
	  "tasks": [
	    {
	      "id": "abc123",
	      "name": "Team Roster View",
	      "description": "As a coach I want the roster",
	      "status": {"status": "in progress"},
	      "date_updated": "1722499200000",
	      "points": 3,
	      "tags": [{"name": "Core"}],
	      "custom_fields": [
	        {"name": "External ID", "value": "S-7"},
	        {"name": "Business Value", "value": "High"}
	      ],
	      "checklists": [
	        {"id": "cl1", "name": "Acceptance Criteria", "items": [
	          {"name": "Roster loads"},
	          {"name": "Roster sorts"}
	        ]}
	      ]
	    },
	    {"id": "broken", "name": ""}
	  ]
	}`

	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/list/list-1/task", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("include_closed"))
		w.Write([]byte(response))
	}))
	defer server.Close()

	stories, err := client.ListTasks("list-1")
	require.NoError(t, err)

	// 名前のないタスクはスキップされる
	require.Len(t, stories, 1)
	story := stories[0]
	assert.Equal(t, "S-7", story.ExternalID) // カスタムフィールドが優先される
	assert.Equal(t, "abc123", story.TaskID)
	assert.Equal(t, "Team Roster View", story.Title)
	assert.Equal(t, "in progress", story.Status)
	assert.Equal(t, 3, story.Points)
	assert.Equal(t, models.BusinessValueCritical, story.BusinessValue)
	assert.Equal(t, []string{"core"}, story.Tags)
	assert.Equal(t, []string{"Roster loads", "Roster sorts"}, story.AcceptanceCriteria)
	require.NotNil(t, story.Meta)
	assert.Equal(t, models.SourceClickUp, story.Meta.Source)
	assert.Equal(t, "2024-08-01T08:00:00Z", story.Meta.UpdatedAt) // ミリ秒エポックから変換
}

func TestListTasksDefaults(t *testing.T) {
	response := `{"tasks": [{"id": "abc", "name": "Bare task"}]}`

	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(response))
	}))
	defer server.Close()

	stories, err := client.ListTasks("list-1")
	require.NoError(t, err)
	require.Len(t, stories, 1)

	story := stories[0]
	assert.Equal(t, "abc", story.ExternalID) // カスタムフィールドがなければタスクID
	assert.Equal(t, "captured", story.Status)
	assert.Equal(t, "Bare task", story.UserStory) // 説明がなければタイトルで埋める
	assert.Equal(t, models.BusinessValueImportant, story.BusinessValue)
}

func TestGetTask(t *testing.T) {
	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/task/abc123", r.URL.Path)
		w.Write([]byte(`{"id": "abc123", "name": "Team Roster View", "status": {"status": "in review"}, "date_updated": "1722499200000"}`))
	}))
	defer server.Close()

	task, err := client.GetTask("abc123")
	require.NoError(t, err)
	assert.Equal(t, "abc123", task.ID)
	assert.Equal(t, "Team Roster View", task.Name)
	assert.Equal(t, "in review", task.Status)
	assert.Equal(t, "2024-08-01T08:00:00Z", task.DateUpdated)
}

func TestCreateTask(t *testing.T) {
	var createPayload map[string]any
	var checklistItems []string

	mux := http.NewServeMux()
	mux.HandleFunc("/list/list-1/task", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &createPayload))
		w.Write([]byte(`{"id": "new1", "url": "https://app.clickup.com/t/new1"}`))
	})
	mux.HandleFunc("/task/new1", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id": "new1", "name": "Export payroll report", "checklists": []}`))
	})
	mux.HandleFunc("/task/new1/checklist", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"checklist": {"id": "cl1"}}`))
	})
	mux.HandleFunc("/checklist/cl1/checklist_item", func(w http.ResponseWriter, r *http.Request) {
		var item map[string]string
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &item))
		checklistItems = append(checklistItems, item["name"])
		w.Write([]byte(`{}`))
	})

	client, server := newTestClient(mux)
	defer server.Close()

	story := models.Story{
		Title:              "Export payroll report",
		UserStory:          "As an admin I export payroll",
		Points:             2,
		BusinessValue:      models.BusinessValueCritical,
		Status:             "captured",
		Tags:               []string{"backend"},
		AcceptanceCriteria: []string{"CSV downloads", "Columns match"},
	}

	taskID, url, err := client.CreateTask("list-1", story, "batch-1")
	require.NoError(t, err)
	assert.Equal(t, "new1", taskID)
	assert.Equal(t, "https://app.clickup.com/t/new1", url)

	assert.Equal(t, "Export payroll report", createPayload["name"])
	assert.Equal(t, "captured", createPayload["status"])
	assert.Equal(t, float64(1), createPayload["priority"]) // Criticalはurgent
	assert.Contains(t, createPayload["tags"], "sync-batch-batch-1")
	assert.Contains(t, createPayload["markdown_description"], "As an admin I export payroll")

	assert.Equal(t, []string{"CSV downloads", "Columns match"}, checklistItems)
}

func TestUpdateTask(t *testing.T) {
	var updatePayload map[string]any

	mux := http.NewServeMux()
	mux.HandleFunc("/task/abc123", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &updatePayload))
		w.Write([]byte(`{}`))
	})

	client, server := newTestClient(mux)
	defer server.Close()

	changes := []models.FieldChange{
		{Field: "title", Before: "Old", After: "Team Roster View"},
		{Field: "userStory", Before: "short", After: "longer story"},
		{Field: "status", Before: "captured", After: "in review"},
		{Field: "points", Before: 0, After: 5},
		{Field: "tags", Before: []string{"a"}, After: []string{"a", "b"}},
	}

	require.NoError(t, client.UpdateTask("abc123", changes, "batch-1"))

	assert.Equal(t, "Team Roster View", updatePayload["name"])
	assert.Equal(t, "longer story", updatePayload["description"])
	assert.Equal(t, "in review", updatePayload["status"])
	assert.Equal(t, float64(5), updatePayload["points"])
	assert.Contains(t, updatePayload["tags"], "sync-batch-batch-1")
}

func TestAddComment(t *testing.T) {
	var commentPayload map[string]string

	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/task/abc123/comment", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &commentPayload))
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	require.NoError(t, client.AddComment("abc123", "hello"))
	assert.Equal(t, "hello", commentPayload["comment_text"])
}

func TestTagOrphan(t *testing.T) {
	var renamed string
	var commented bool

	mux := http.NewServeMux()
	mux.HandleFunc("/task/abc123", func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]string
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &payload))
		renamed = payload["name"]
		w.Write([]byte(`{}`))
	})
	mux.HandleFunc("/task/abc123/comment", func(w http.ResponseWriter, r *http.Request) {
		commented = true
		w.Write([]byte(`{}`))
	})

	client, server := newTestClient(mux)
	defer server.Close()

	require.NoError(t, client.TagOrphan("abc123", "Legacy import task", "batch-1"))
	assert.Equal(t, "(ORPHAN) Legacy import task", renamed)
	assert.True(t, commented)
}

func TestTagOrphanIdempotent(t *testing.T) {
	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("タグ付け済みのタスクにリクエストが飛びました: %s", r.URL.Path)
	}))
	defer server.Close()

	require.NoError(t, client.TagOrphan("abc123", "(ORPHAN) Legacy import task", "batch-1"))
}

func TestOrphanTaggingUsesInjectedPrefix(t *testing.T) {
	var renamed []string

	mux := http.NewServeMux()
	mux.HandleFunc("/task/abc123", func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]string
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &payload))
		renamed = append(renamed, payload["name"])
		w.Write([]byte(`{}`))
	})
	mux.HandleFunc("/task/abc123/comment", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})

	policy := config.DefaultPolicy()
	policy.OrphanPrefix = "(GONE) "

	client, server := newTestClientWithPolicy(mux, policy)
	defer server.Close()

	// 付与・除去・冪等判定のすべてが注入された接頭辞に従う
	require.NoError(t, client.TagOrphan("abc123", "Legacy import task", "batch-1"))
	require.NoError(t, client.TagOrphan("abc123", "(GONE) Legacy import task", "batch-1"))
	require.NoError(t, client.RemoveOrphanTag("abc123", "(GONE) Legacy import task", "batch-1"))
	assert.Equal(t, []string{"(GONE) Legacy import task", "Legacy import task"}, renamed)
}

func TestRemoveOrphanTag(t *testing.T) {
	var renamed string

	mux := http.NewServeMux()
	mux.HandleFunc("/task/abc123", func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]string
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &payload))
		renamed = payload["name"]
		w.Write([]byte(`{}`))
	})
	mux.HandleFunc("/task/abc123/comment", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})

	client, server := newTestClient(mux)
	defer server.Close()

	require.NoError(t, client.RemoveOrphanTag("abc123", "(ORPHAN) Legacy import task", "batch-1"))
	assert.Equal(t, "Legacy import task", renamed)

	// 接頭辞がなければ何もしない
	renamed = ""
	require.NoError(t, client.RemoveOrphanTag("abc123", "Legacy import task", "batch-1"))
	assert.Empty(t, renamed)
}
