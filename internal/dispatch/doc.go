// Package dispatch implements the gate consulted before every campaign send.
//
// The gate checks suppression membership first, then consumes one unit of
// the sending domain's rate budget. An exhausted budget is backpressure,
// not an error: the caller defers and retries after the window turns over.
// Budget consumption is atomic so concurrent senders can never push a
// domain past its effective rate.
package dispatch
