// Package pipeline moves documents from the embedding service into a vector
// store.
//
// A run has two stages joined by a bounded channel:
//   - the producer embeds documents and sends each outcome downstream
//   - the consumer turns embedded documents into points and writes them to
//     the store in fixed-size batches
//
// Outcomes reach the consumer in input order, also when embedding runs on a
// worker pool. Per-document and per-batch failures are logged and counted;
// only startup failures and cancellation end a run early.
package pipeline
