package notion

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/exbordia/exbordia/internal/log"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New("secret-token", log.NewNop(), WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNew_Validation(t *testing.T) {
	if _, err := New("", log.NewNop()); err == nil {
		t.Error("New with empty token succeeded, want error")
	}
	if _, err := New("tok", nil); err == nil {
		t.Error("New with nil logger succeeded, want error")
	}
}

func TestClient_QueryDatabase_Pagination(t *testing.T) {
	var cursors []string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if !strings.HasSuffix(r.URL.Path, "/v1/databases/db-1/query") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret-token" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.Header.Get("Notion-Version"); got != DefaultVersion {
			t.Errorf("Notion-Version = %q", got)
		}

		var req QueryDatabaseRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		cursors = append(cursors, req.StartCursor)

		resp := QueryDatabaseResponse{Object: "list"}
		if req.StartCursor == "" {
			resp.Results = []Page{{ID: "page-1"}, {ID: "page-2"}}
			resp.HasMore = true
			resp.NextCursor = "cursor-2"
		} else {
			resp.Results = []Page{{ID: "page-3"}}
		}
		json.NewEncoder(w).Encode(resp)
	})

	c := newTestClient(t, handler)
	pages, err := c.QueryDatabase(context.Background(), "db-1")
	if err != nil {
		t.Fatalf("QueryDatabase: %v", err)
	}

	if len(pages) != 3 {
		t.Fatalf("got %d pages, want 3", len(pages))
	}
	if pages[2].ID != "page-3" {
		t.Errorf("last page id = %q, want page-3", pages[2].ID)
	}
	if len(cursors) != 2 || cursors[1] != "cursor-2" {
		t.Errorf("cursors = %v, want [\"\" cursor-2]", cursors)
	}
}

func TestClient_QueryDatabase_EmptyID(t *testing.T) {
	c, err := New("tok", log.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.QueryDatabase(context.Background(), ""); err == nil {
		t.Error("QueryDatabase with empty id succeeded, want error")
	}
}

func TestClient_QueryDatabase_APIError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"object":"error","status":401,"message":"API token is invalid."}`)
	})

	c := newTestClient(t, handler)
	_, err := c.QueryDatabase(context.Background(), "db-1")
	if err == nil {
		t.Fatal("QueryDatabase succeeded, want error on 401")
	}
	if !strings.Contains(err.Error(), "401") {
		t.Errorf("error %q does not mention the status code", err)
	}
}

func TestClient_GetBlockChildren_FlattensNested(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}

		var resp BlockChildrenResponse
		switch {
		case strings.Contains(r.URL.Path, "/v1/blocks/page-1/children"):
			resp.Results = []Block{
				{ID: "b1", Type: "toggle", HasChildren: true, Toggle: &TextBlock{RichText: rt("Sección")}},
				{ID: "b2", Type: "paragraph", Paragraph: &TextBlock{RichText: rt("fin")}},
			}
		case strings.Contains(r.URL.Path, "/v1/blocks/b1/children"):
			resp.Results = []Block{
				{ID: "b1a", Type: "paragraph", Paragraph: &TextBlock{RichText: rt("anidado")}},
			}
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(resp)
	})

	c := newTestClient(t, handler)
	blocks, err := c.GetBlockChildren(context.Background(), "page-1")
	if err != nil {
		t.Fatalf("GetBlockChildren: %v", err)
	}

	var ids []string
	for _, b := range blocks {
		ids = append(ids, b.ID)
	}
	want := []string{"b1", "b1a", "b2"}
	if len(ids) != len(want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids = %v, want nested blocks flattened after parent %v", ids, want)
			break
		}
	}
}

func TestClient_GetBlockChildren_NestedFailureSkipped(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "/v1/blocks/broken/children") {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		resp := BlockChildrenResponse{Results: []Block{
			{ID: "broken", Type: "toggle", HasChildren: true},
			{ID: "ok", Type: "paragraph", Paragraph: &TextBlock{RichText: rt("texto")}},
		}}
		json.NewEncoder(w).Encode(resp)
	})

	c := newTestClient(t, handler)
	blocks, err := c.GetBlockChildren(context.Background(), "page-1")
	if err != nil {
		t.Fatalf("GetBlockChildren: %v", err)
	}
	if len(blocks) != 2 {
		t.Fatalf("got %d blocks, want the top level despite the nested failure", len(blocks))
	}
}
