// Package suppression implements the account-wide suppression list.
//
// This is the single source of truth for whether an address may receive
// mail. Entries flow in from the bounce collector, FBL ingestion, operator
// imports and unsubscribe actions, and the dispatch gate checks membership
// before every send.
//
// The service layer contains pure business logic and depends on the
// Repository interface defined in repository.go. It never imports
// net/http or database/sql directly.
package suppression
