// Package store provides persistence implementations for execution history
// and workflow definitions. The ExecutionStore interface is defined in the
// root smartflow package (../store_interface.go) to avoid import cycles.
//
// This package contains concrete implementations:
//   - DynamoDBStore: AWS DynamoDB single-table backend
//   - PostgresStore: PostgreSQL backend (pgx driver)
//   - MemoryStore: In-memory backend for tests and local runs
//
// DynamoDB schema design follows single-table patterns defined in schema.go.
package store
