// Package memengine provides an in-memory event log with the same batch read semantics as postgresengine.
//
// It is meant for tests and local tools. Writers claim transaction ids with Begin,
// and readers only see rows of transactions below the lowest open one.
package memengine
