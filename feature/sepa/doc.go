// Package sepa implements the SEPA mandate import pipeline.
//
// Each source record expands into three linked remote entities, created or
// updated in a fixed dependency order: the recurring contribution, the
// (first) contribution referencing it, and the mandate referencing both.
// Re-running the import with identical input issues no further writes: the
// transaction identifiers default to a content hash of the source data and
// every upsert is gated by the attribute delta.
package sepa
