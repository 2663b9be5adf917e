// Package database provides the connection to the optional MySQL staging
// database. Deployments that stage import records in a table instead of
// dropping CSV files use it as a record source backend.
package database
