// Package service contains the application use cases of the verification
// engine. It orchestrates domain logic (internal/domain) and persistence
// (internal/store) without depending on a specific store implementation.
//
// Key components:
//
// 1. AssignmentService:
//   - Assigns each learner to the rule-based or model-based scheduler on
//     first use and keeps that choice stable
//   - Runs the one-way, one-time migration to the model-based scheduler
//
// 2. SelectorService:
//   - Picks the most overdue card due today and the question to ask about it
//   - Generates and persists new questions when no stored one is usable
//
// 3. QualityService:
//   - Runs the batch side of question statistics: enqueueing flagged rows
//     and version-checked recalculation
//
// Services receive dependencies through constructor injection and return
// sentinel errors for expected conditions; the API layer maps them to HTTP
// status codes. The verification subpackage holds the attempt workflow.
package service
