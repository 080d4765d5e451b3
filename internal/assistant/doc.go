// Package assistant runs farmer chat turns against a language model.
//
// A turn resolves the farmer's rolling summary, replays the session history
// into the injected cache on first use, builds the prompt, invokes the model
// (blocking or streamed), records the exchange, and then refreshes the
// summary. The exchange is recorded only after the model reply is complete.
// A failed summary refresh keeps the prior summary and does not fail the turn.
package assistant
