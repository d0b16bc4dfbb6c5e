// Package datawizard owns logical data handles on behalf of the runtime:
// registration of user buffers, partitioning into sub-handles, per-node
// replica coherence (MSI-style: invalid/shared/owner), and the async
// transfer orchestration a worker's input fetch drives.
//
// A handle's own mutex is the sole writer of its replica state machine;
// transfer completion is delivered as a callback into that state machine,
// never mutated concurrently from elsewhere.
package datawizard
