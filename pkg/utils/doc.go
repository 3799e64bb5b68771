// Package utils provides small helpers shared across hermes.
//
// BacktickIdentifier and QualifiedName quote ClickHouse identifiers for generated
// tracking DDL and queries:
//
//	utils.BacktickIdentifier("hermes.revision_state")
//	// Result: `hermes`.`revision_state`
//
//	utils.QualifiedName("hermes", "revision_leases")
//	// Result: `hermes`.`revision_leases`
//
// NullableString builds bindings for Nullable columns, mapping "" to NULL.
package utils
