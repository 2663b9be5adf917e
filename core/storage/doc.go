// Package storage provides the object-storage client used to fetch import
// files (CSV drops from upstream systems) out of a Minio/S3 bucket.
//
// The client is exposed through a small read-only interface so record sources
// and tests can substitute a mock; see the mocks subpackage.
package storage
