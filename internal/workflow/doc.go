// Package workflow runs an evaluation as a durable Temporal workflow.
//
// Each pipeline stage is one activity. The workflow starts with ingestion
// and then follows the next stage named by every hand-off, so a worker
// crash resumes at the stage that was in flight rather than at the start.
// Stages persist their own output, which makes an activity retry safe:
// a retried stage overwrites its namespace entry wholesale.
//
// Stage errors reach the workflow as Temporal application errors whose type
// is the error class. Validation, Source and NotFound errors are
// non-retryable; Internal errors are retried under the activity policy.
//
// Workflow code must stay deterministic. It performs no I/O and reads no
// clock; everything else is delegated to the activities.
package workflow
