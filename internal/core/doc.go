// Package core provides the table abstraction and sync pipeline for feed data.
//
// This package contains all domain logic independent of any transport or
// storage layer. It can be driven by the HTTP server, the CLI, or tests
// without modification.
//
// # Architecture
//
//   - Tables: a [Table] declares its columns and a [TableResolver] that
//     produces feed items. Tables are registered at startup with [Register].
//   - Columns: each [Column] carries a [ColumnResolver] that turns one feed
//     item into a nullable text cell.
//   - Streaming: [Table.Stream] resolves items in feed order and pushes
//     each [Row] to a [Sink]. The first bad record aborts the stream.
//   - Service: [Service.Sync] selects tables, streams them concurrently and
//     hands the rows to a [Persister] once streaming succeeded.
//
// # Table Registry
//
//	core.Register(core.NewTable("CVE", "NVD vulnerabilities", []core.Column{
//	    {Name: "cve_id", PrimaryKey: true, Resolver: core.Extract(func(r feed.Record) string { return r.CVEID })},
//	    {Name: "description", Resolver: core.Extract(func(r feed.Record) string { return r.Description })},
//	}, resolver))
//
// # Error Handling
//
// Pipeline stages fail with [FetchError], [MappingError] or
// [PersistenceError]. [MapError] turns any of them into a [UserMessage]
// with a support code (FEED, MAP, DB, SYNC, TBL, RATE, ERR000).
package core
