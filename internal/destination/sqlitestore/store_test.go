package sqlitestore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/steveyegge/feedsync/internal/schema"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "content.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testPayload() *schema.Payload {
	return &schema.Payload{
		Title:       "Hello",
		Body:        "<p>hi</p>",
		Status:      schema.PostStatusDraft,
		Author:      1,
		PublishDate: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
		ContentType: "reports",
		Taxonomy:    "reports-category",
		CategoryIDs: []int64{5, 9},
	}
}

func TestCreate_Get(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)

	id, err := s.Create(ctx, testPayload())
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if id <= 0 {
		t.Fatalf("Create() id = %d, want > 0", id)
	}

	post, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if post.Title != "Hello" || post.ContentType != "reports" {
		t.Errorf("post = %+v", post)
	}
	if !post.PublishDate.Equal(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("PublishDate = %v", post.PublishDate)
	}
	terms := post.Terms["reports-category"]
	if len(terms) != 2 || terms[0] != 5 || terms[1] != 9 {
		t.Errorf("terms = %v, want [5 9]", terms)
	}
}

func TestUpdate_ReplacesTerms(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)
	id, err := s.Create(ctx, testPayload())
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	p := testPayload()
	p.Title = "Hello again"
	p.CategoryIDs = []int64{7}
	got, err := s.Update(ctx, id, p)
	if err != nil {
		t.Fatalf("Update() failed: %v", err)
	}
	if got != id {
		t.Errorf("Update() id = %d, want %d", got, id)
	}

	post, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if post.Title != "Hello again" {
		t.Errorf("Title = %q", post.Title)
	}
	if terms := post.Terms["reports-category"]; len(terms) != 1 || terms[0] != 7 {
		t.Errorf("terms = %v, want [7]", terms)
	}
}

func TestUpdate_Missing(t *testing.T) {
	s := testStore(t)
	_, err := s.Update(context.Background(), 99, testPayload())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)
	id, err := s.Create(ctx, testPayload())
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if err := s.SetFeaturedImage(ctx, id, "https://cdn.example.com/a.png"); err != nil {
		t.Fatalf("SetFeaturedImage() failed: %v", err)
	}

	ok, err := s.Delete(ctx, id)
	if err != nil || !ok {
		t.Fatalf("Delete() = %v, %v; want true, nil", ok, err)
	}

	ok, err = s.Delete(ctx, id)
	if err != nil || ok {
		t.Errorf("second Delete() = %v, %v; want false, nil", ok, err)
	}

	var metaRows int
	if err := s.conn.QueryRow(`SELECT COUNT(*) FROM post_meta`).Scan(&metaRows); err != nil {
		t.Fatalf("count meta failed: %v", err)
	}
	if metaRows != 0 {
		t.Errorf("post_meta rows = %d, want 0 after cascade", metaRows)
	}
}

func TestNormalizeTemplate(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)
	id, err := s.Create(ctx, testPayload())
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	if err := s.NormalizeTemplate(ctx, id, "post"); err != nil {
		t.Fatalf("NormalizeTemplate(post) failed: %v", err)
	}
	post, _ := s.Get(ctx, id)
	if _, ok := post.Meta[MetaPageTemplate]; ok {
		t.Error("posts should not get a page template")
	}

	if err := s.NormalizeTemplate(ctx, id, "reports"); err != nil {
		t.Fatalf("NormalizeTemplate(reports) failed: %v", err)
	}
	post, _ = s.Get(ctx, id)
	if post.Meta[MetaPageTemplate] != "default" {
		t.Errorf("template = %q, want default", post.Meta[MetaPageTemplate])
	}
}
