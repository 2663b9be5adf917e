// Package banking implements the bank account import pipeline for the
// CiviBanking extension.
//
// Accounts carry no natural key of their own; they are located through
// their references (IBAN or national account numbers), which are option
// values in the civicrm_banking.reference_types group. The reference mode
// decides whether remote references missing from the record are kept or
// removed.
package banking
