// Package engine synchronizes an external feed into a destination store.
//
// For every feed entry the engine looks up its ledger row by external id,
// decides between skip, import and update, calls the destination, and records
// the outcome in the ledger. A full run processes the whole feed; a batch run
// processes one slice of it so that long feeds can be synced across many
// short calls.
//
// Rollback reverses prior syncs by scope, deleting destination records and
// pruning the matching ledger rows.
//
// Usage:
//
//	eng, err := engine.New(engine.Deps{
//	    Ledger:      ledgerDB,
//	    Feed:        feed.NewSource(),
//	    Destination: store,
//	    Mapper:      mapper.New(nil),
//	    Settings:    cfgStore,
//	}, engine.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	report, err := eng.RunFullSync(ctx)
package engine
