// Package utils provides small conversion helpers shared across the importer.
//
// Remote replies are decoded into untyped maps, so identifiers, flags and
// amounts arrive as a mix of strings, floats and ints. These helpers coerce
// them without panicking on unexpected shapes.
package utils
