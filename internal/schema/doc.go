// Package schema defines the data structures shared by the feedsync packages.
//
// # Overview
//
// Three kinds of values flow through a sync:
//
//   - FeedEntry: one item of the upstream feed, read-only once fetched
//   - Payload: the destination record built from an entry by the mapper
//   - SyncRecord: one ledger row per external identifier
//
// # Ledger Rows
//
// A SyncRecord is keyed by ExternalID. Writing a record with a key that
// already exists replaces the row:
//
//	{
//	  "external_id": "https://example.substack.com/p/hello-world",
//	  "local_record_id": 42,
//	  "title": "Hello World",
//	  "last_synced_at": "2024-01-01T12:00:00Z",
//	  "status": "imported",
//	  "retry_count": 0
//	}
//
// # Statuses
//
//   - imported - entry was created in the destination store
//   - updated  - existing destination record was refreshed
//   - error    - the last destination write failed
//   - pending  - retry counter was reset, entry will be attempted again
package schema
