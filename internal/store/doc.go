// Package store persists plugin preferences and stage history in SQLite.
//
// Preferences are keyed by plugin GUID, read once when the store opens and
// written through on every change, so the pipeline can query them without
// touching the database. Stage results recorded by the pipeline controller
// back the `discflow history` command.
package store
