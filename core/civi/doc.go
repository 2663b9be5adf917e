// Package civi implements the remote call layer for the CiviCRM REST API.
//
// A call is a flat parameter mapping containing at least "entity" and
// "action". The client injects authentication and version metadata, selects
// the HTTP method by action semantics (create/delete mutate and use POST,
// everything else uses GET) and decodes the structured reply.
//
// Two failure classes are distinguished:
//
//   - TransportError: the call did not return a well-formed response
//     (connection failure, non-200 status, undecodable body).
//   - APIError: the reply decoded fine but the remote service reported a
//     logical failure; the remote message is carried along.
//
// Every call is timed and logged with its action, entity type and
// primary/secondary identifiers, regardless of outcome.
package civi
