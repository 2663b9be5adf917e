// Package sync implements the entity synchronization engine: identity
// resolution, cached reference-data lookups and the reconciliation protocol
// that folds locally-known attribute sets into remote entities.
//
// # Architecture
//
// The package consists of three cooperating parts:
//
// 1. Engine: get-or-create and create-or-update operations over the remote
// call layer. Every update-class reconciliation computes an attribute delta
// first; an empty delta never issues a write, which makes repeated imports of
// identical source data idempotent.
//
// 2. Merge policies: update (local wins for attributes present locally),
// fill (local values only where the remote value is empty) and replace (the
// remote attribute set becomes exactly the local one).
//
// 3. Lookup cache: a process-lifetime, concurrency-safe mapping from
// (category, key) to resolved identifier for slowly-changing reference data.
// Negative results are cached like positive ones, and concurrent resolvers
// requesting the same key share a single remote lookup.
//
// # Identity and ambiguity
//
// Lookups that match more than one entity fail with ErrAmbiguous rather than
// picking an arbitrary match. Reference-data resolvers are the exception and
// degrade a many-match to a cached "not found" with a warning, because their
// results only feed optional attributes. Contact resolution always aborts on
// ambiguity: a wrong contact identity corrupts every foreign key derived
// from it.
package sync
