package schema

import "testing"

func TestSyncRecordValidate(t *testing.T) {
	tests := []struct {
		name    string
		record  SyncRecord
		wantErr bool
	}{
		{"valid", SyncRecord{ExternalID: "a", Status: StatusImported, LocalRecordID: 3}, false},
		{"missing id", SyncRecord{Status: StatusImported}, true},
		{"unknown status", SyncRecord{ExternalID: "a", Status: "done"}, true},
		{"negative local id", SyncRecord{ExternalID: "a", Status: StatusError, LocalRecordID: -1}, true},
		{"negative retry", SyncRecord{ExternalID: "a", Status: StatusError, RetryCount: -2}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.record.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFailedAttempts(t *testing.T) {
	r := SyncRecord{ExternalID: "a", Status: StatusError, RetryCount: 0}
	if got := r.FailedAttempts(); got != 1 {
		t.Errorf("FailedAttempts() = %d, want 1", got)
	}

	r.RetryCount = 2
	if got := r.FailedAttempts(); got != 3 {
		t.Errorf("FailedAttempts() = %d, want 3", got)
	}

	// Failed updates of an imported entry: the first failure already stored 1.
	r.LocalRecordID = 42
	r.RetryCount = 1
	if got := r.FailedAttempts(); got != 1 {
		t.Errorf("FailedAttempts() with local record = %d, want 1", got)
	}
	r.RetryCount = 3
	if got := r.FailedAttempts(); got != 3 {
		t.Errorf("FailedAttempts() with local record = %d, want 3", got)
	}
	r.RetryCount = 0
	if got := r.FailedAttempts(); got != 1 {
		t.Errorf("FailedAttempts() with local record and zero count = %d, want 1", got)
	}

	r.Status = StatusPending
	if got := r.FailedAttempts(); got != 0 {
		t.Errorf("FailedAttempts() on pending = %d, want 0", got)
	}
}

func TestFeedEntryValidate(t *testing.T) {
	e := FeedEntry{Title: "no id"}
	if err := e.Validate(); err == nil {
		t.Error("expected error for entry without id")
	}
	e.ID = "guid-1"
	if err := e.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
