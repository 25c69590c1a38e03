package domain

import "errors"

var (
	// ErrCatalogUnavailable is returned when the assessment catalog errors or
	// returns an empty question set. Retryable: the user may start again.
	ErrCatalogUnavailable = errors.New("assessment catalog unavailable")
	// ErrNotEligible rejects a course quiz for a user who is not enrolled or
	// who already holds a confirmed certificate for the course.
	ErrNotEligible = errors.New("user not eligible for this assessment")
	// ErrAttemptNotFound is returned when no attempt exists for the session key.
	ErrAttemptNotFound = errors.New("attempt not found")
	// ErrInvalidPhase rejects an operation the current phase does not permit.
	ErrInvalidPhase = errors.New("operation not allowed in current phase")
	// ErrSubmissionFailed marks a locally graded attempt whose downstream
	// award call failed. The result stands; only the failed step may be retried.
	ErrSubmissionFailed = errors.New("result ready but downstream submission failed")
	// ErrMintAlreadyInFlight rejects a duplicate concurrent mint trigger.
	ErrMintAlreadyInFlight = errors.New("mint request already in flight")
	// ErrMintCommitFailed means the artifact was published but the on-chain
	// commit failed; a retry reuses the published artifact id.
	ErrMintCommitFailed = errors.New("on-chain completion commit failed")
	// ErrRestartUnavailable rejects restarting once minting has begun.
	ErrRestartUnavailable = errors.New("attempt cannot be restarted after minting began")
)
