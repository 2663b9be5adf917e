// Package source defines the record source boundary of the import pipelines:
// any producer of a finite, ordered sequence of flat attribute mappings.
//
// Three backends are provided: CSV files (local or fetched from object
// storage) and a MySQL staging table. Pipelines only see the Source
// interface, so tests feed them in-memory records.
package source
