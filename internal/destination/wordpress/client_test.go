package wordpress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/steveyegge/feedsync/internal/schema"
)

func TestClient_Create(t *testing.T) {
	var got map[string]interface{}
	var user, pass string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/wp-json/wp/v2/reports" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		user, pass, _ = r.BasicAuth()
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id": 321}`)
	}))
	defer server.Close()

	client := NewClient(server.URL+"/", WithCredentials("editor", "abcd efgh"))
	id, err := client.Create(context.Background(), &schema.Payload{
		Title:       "Hello",
		Body:        "<p>x</p>",
		Status:      "draft",
		Author:      2,
		PublishDate: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
		ContentType: "reports",
		Taxonomy:    "reports-category",
		CategoryIDs: []int64{5},
	})
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if id != 321 {
		t.Errorf("id = %d, want 321", id)
	}
	if user != "editor" || pass != "abcd efgh" {
		t.Errorf("basic auth = %q/%q", user, pass)
	}
	if got["title"] != "Hello" || got["date_gmt"] != "2024-01-01T12:00:00" {
		t.Errorf("body = %v", got)
	}
	if cats, ok := got["reports-category"].([]interface{}); !ok || len(cats) != 1 || cats[0] != float64(5) {
		t.Errorf("reports-category = %v", got["reports-category"])
	}
}

func TestClient_UpdateUsesCategoriesKey(t *testing.T) {
	var got map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/wp-json/wp/v2/posts/9" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		fmt.Fprint(w, `{"id": 9}`)
	}))
	defer server.Close()

	id, err := NewClient(server.URL).Update(context.Background(), 9, &schema.Payload{
		Title: "T", ContentType: "post", Taxonomy: "category", CategoryIDs: []int64{3},
	})
	if err != nil {
		t.Fatalf("Update() failed: %v", err)
	}
	if id != 9 {
		t.Errorf("id = %d, want 9", id)
	}
	if _, ok := got["categories"]; !ok {
		t.Errorf("body = %v, want categories key", got)
	}
}

func TestClient_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"code":"rest_cannot_create","message":"Sorry, you are not allowed"}`)
	}))
	defer server.Close()

	_, err := NewClient(server.URL).Create(context.Background(), &schema.Payload{Title: "x"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusForbidden || apiErr.Code != "rest_cannot_create" {
		t.Errorf("apiErr = %+v", apiErr)
	}
}

func TestClient_Delete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Query().Get("force") != "true" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL)
		}
		if r.URL.Path == "/wp-json/wp/v2/reports/404" {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"code":"rest_post_invalid_id","message":"Invalid post ID."}`)
			return
		}
		fmt.Fprint(w, `{"deleted": true}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, WithContentType("reports"))
	ok, err := client.Delete(context.Background(), 7)
	if err != nil || !ok {
		t.Errorf("Delete(7) = %v, %v; want true, nil", ok, err)
	}
	ok, err = client.Delete(context.Background(), 404)
	if err != nil || ok {
		t.Errorf("Delete(404) = %v, %v; want false, nil", ok, err)
	}
}

func TestClient_NormalizeTemplate(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprint(w, `{"id": 1}`)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	if err := client.NormalizeTemplate(context.Background(), 1, "post"); err != nil {
		t.Fatalf("NormalizeTemplate(post) failed: %v", err)
	}
	if err := client.NormalizeTemplate(context.Background(), 1, "reports"); err != nil {
		t.Fatalf("NormalizeTemplate(reports) failed: %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
