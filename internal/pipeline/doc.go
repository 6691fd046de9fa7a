// Package pipeline sequences the five review stages and owns the fallback
// policy that keeps a run terminating with a usable result.
//
// # Stage sequence
//
// extraction → deduplication → support-filter → comment-generation → review.
// Each stage consumes the prior stage's surviving working set; stage N+1 never
// starts until stage N's fan-out has fully joined. Within a stage, tasks run
// concurrently with bounded parallelism, and each task's failure is isolated:
// it contributes an empty result and never cancels its siblings.
//
// # Fallback policy
//
//	extraction          zero issues, error recorded, pipeline continues
//	deduplication       cannot fail (pure, synchronous)
//	support-filter      pass all issues through unfiltered
//	comment-generation  per-task drop only
//	review              deterministic local severity tally
//
// Run never returns an error. Unexpected internal defects are caught at the
// outermost boundary and converted into a degraded but well-formed result
// with a complete telemetry record.
package pipeline
