// Package docdb is a small embedded document database with live queries.
//
// Documents are JSON objects stored in SQLite, one table per collection,
// keyed by the primary key declared in the collection's [Schema]. The
// database file lives at <Dir>/<Name>.sqlite and survives restarts.
//
// # Collections
//
// A collection is registered with [AddCollection]. The schema is persisted
// alongside the documents; registering a different schema under the same
// name and version fails with [ErrSchemaConflict]. A higher version drops
// the stored documents and records the new schema.
//
// # Live Queries
//
// [Collection.Watch] returns a [Subscription] that delivers the full result
// set once on subscribe and again after every insert, patch, remove or
// import, whichever code path issued it. Each [Snapshot] carries the
// [Event] that caused it. With [Config.WatchExternal], commits made by other
// processes are detected through fsnotify plus SQLite's data_version and
// re-emitted as [OpExternal].
//
// # Development Mode
//
// With [Config.DevMode] every write is validated against the schema and
// schema diagnostics are logged on registration. Without it only the
// primary key is checked.
//
// # Concurrency
//
// Safe for concurrent use. SQLite is used through a single connection, so
// statements are serialized; [DB.Close] waits for in-flight operations.
package docdb
