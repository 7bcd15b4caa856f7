// Package testutil provides test doubles shared by engine, checks and
// harness tests.
//
// MemConn is an in-memory Connection: tables are model.Tables, reads honour
// the partition filter and predicates, and every call is recorded so tests
// can assert exactly which statements were issued.
package testutil
