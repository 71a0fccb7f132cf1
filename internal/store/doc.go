// Package store declares the persistence contract for run bookkeeping.
// Implementations live in other packages; this package must not import
// database drivers or concrete clients.
package store
