// Package enginetest provides in-memory collaborators for exercising the
// sync engine in tests.
package enginetest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/steveyegge/feedsync/internal/engine"
	"github.com/steveyegge/feedsync/internal/schema"
)

// Feed is a FeedSource returning a fixed list of entries.
type Feed struct {
	mu      sync.Mutex
	Entries []*schema.FeedEntry
	Err     error
	Fetches int
}

// NewFeed returns a Feed serving entries.
func NewFeed(entries ...*schema.FeedEntry) *Feed {
	return &Feed{Entries: entries}
}

func (f *Feed) FetchEntries(ctx context.Context, feedURL string) ([]*schema.FeedEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Fetches++
	if f.Err != nil {
		return nil, f.Err
	}
	out := make([]*schema.FeedEntry, len(f.Entries))
	copy(out, f.Entries)
	return out, nil
}

// Entry builds a FeedEntry with the given id and title.
func Entry(id, title string) *schema.FeedEntry {
	return &schema.FeedEntry{ID: id, Title: title, RawContent: "<p>" + title + "</p>"}
}

// ErrInjected is returned by Destination for titles or ids marked to fail.
var ErrInjected = errors.New("injected failure")

// Destination is an in-memory destination store.
type Destination struct {
	mu      sync.Mutex
	nextID  int64
	Records map[int64]*schema.Payload

	// FailTitles makes Create and Update fail for payloads with these titles.
	FailTitles map[string]bool
	// FailDeletes makes Delete fail for these ids.
	FailDeletes map[int64]bool

	Creates int
	Updates int
	Deletes []int64
}

// NewDestination returns an empty Destination.
func NewDestination() *Destination {
	return &Destination{
		Records:     make(map[int64]*schema.Payload),
		FailTitles:  make(map[string]bool),
		FailDeletes: make(map[int64]bool),
	}
}

// Fail makes writes for title fail (or succeed again when fail is false).
func (d *Destination) Fail(title string, fail bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.FailTitles[title] = fail
}

func (d *Destination) Create(ctx context.Context, payload *schema.Payload) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Creates++
	if d.FailTitles[payload.Title] {
		return 0, fmt.Errorf("create %q: %w", payload.Title, ErrInjected)
	}
	d.nextID++
	copied := *payload
	d.Records[d.nextID] = &copied
	return d.nextID, nil
}

func (d *Destination) Update(ctx context.Context, localID int64, payload *schema.Payload) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Updates++
	if d.FailTitles[payload.Title] {
		return 0, fmt.Errorf("update %d: %w", localID, ErrInjected)
	}
	if _, ok := d.Records[localID]; !ok {
		return 0, fmt.Errorf("record %d not found", localID)
	}
	copied := *payload
	d.Records[localID] = &copied
	return localID, nil
}

func (d *Destination) Delete(ctx context.Context, localID int64) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Deletes = append(d.Deletes, localID)
	if d.FailDeletes[localID] {
		return false, fmt.Errorf("delete %d: %w", localID, ErrInjected)
	}
	if _, ok := d.Records[localID]; !ok {
		return false, nil
	}
	delete(d.Records, localID)
	return true, nil
}

// Calls returns the number of create and update calls made so far.
func (d *Destination) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Creates + d.Updates
}

// Len returns the number of stored records.
func (d *Destination) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.Records)
}

// Settings is a fixed SettingsProvider.
type Settings schema.Settings

func (s Settings) Settings() schema.Settings { return schema.Settings(s) }

// Hooks records media and template hook calls and can be made to fail.
type Hooks struct {
	mu        sync.Mutex
	Media     []int64
	Templates []int64
	Err       error
}

func (h *Hooks) ImportMedia(ctx context.Context, localID int64, body string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Media = append(h.Media, localID)
	return h.Err
}

func (h *Hooks) NormalizeTemplate(ctx context.Context, localID int64, contentType string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Templates = append(h.Templates, localID)
	return h.Err
}

// Observer records every notification.
type Observer struct {
	mu        sync.Mutex
	Items     []engine.ItemOutcome
	Syncs     []*engine.SyncReport
	Batches   []*engine.BatchReport
	Rollbacks []*engine.RollbackReport
}

func (o *Observer) OnItemProcessed(outcome engine.ItemOutcome) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Items = append(o.Items, outcome)
}

func (o *Observer) OnSyncComplete(report *engine.SyncReport) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Syncs = append(o.Syncs, report)
}

func (o *Observer) OnBatchComplete(report *engine.BatchReport) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Batches = append(o.Batches, report)
}

func (o *Observer) OnRollback(report *engine.RollbackReport) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Rollbacks = append(o.Rollbacks, report)
}

var (
	_ engine.FeedSource         = (*Feed)(nil)
	_ engine.Destination        = (*Destination)(nil)
	_ engine.SettingsProvider   = Settings{}
	_ engine.MediaImporter      = (*Hooks)(nil)
	_ engine.TemplateNormalizer = (*Hooks)(nil)
	_ engine.Observer           = (*Observer)(nil)
)
