package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/singleflight"

	"skillbridge-quiz-service/internal/domain"
)

// AttemptRepository abstracts how live attempts are stored (in-memory, Redis-backed, etc).
type AttemptRepository interface {
	GetOrCreate(key, user string, kind domain.AssessmentKind, courseID string) *Attempt
	Get(key string) (*Attempt, bool)
	Delete(key string)
}

// CatalogRepository loads assessment content (from cache/backing store).
type CatalogRepository interface {
	GetAssessment(ctx context.Context, kind domain.AssessmentKind, courseID string) (domain.Assessment, error)
}

// CompletionReader exposes the chain-side view of a user's progress,
// used to gate course-quiz eligibility before any catalog fetch.
type CompletionReader interface {
	CompletionStatus(ctx context.Context, userAddress string) (domain.CompletionStatus, error)
}

// RewardIssuer requests the entry-test token reward. Fire-and-report:
// a failure never regresses the attempt's result.
type RewardIssuer interface {
	AwardEntryReward(ctx context.Context, userAddress string, correctCount int) error
}

// ArtifactPublisher durably stores the attempt summary and returns its id.
type ArtifactPublisher interface {
	PublishArtifact(ctx context.Context, summary domain.AttemptSummary) (string, error)
}

// ChainCommitter marks the course completed on-chain and associates the
// certificate with the published artifact. Safe to call again with the
// same artifact id after a prior failure.
type ChainCommitter interface {
	CommitCompletion(ctx context.Context, userAddress, courseID, artifactID string) error
}

// ProfileReader fetches certificate identity fields. Best-effort: absence
// must never block minting.
type ProfileReader interface {
	Profile(ctx context.Context, userAddress string) (domain.Profile, bool, error)
}

// CertificateLedger is the durable backing for the at-most-one-certificate
// invariant per (user, course).
type CertificateLedger interface {
	Confirmed(ctx context.Context, userAddress, courseID string) (bool, error)
	MarkConfirmed(ctx context.Context, userAddress, courseID string) error
}

// CompletionStore persists completion records across restarts. Optional.
type CompletionStore interface {
	Save(ctx context.Context, record domain.CompletionRecord) error
}

// Deps wires the attempt service's collaborators. Completions may be nil.
type Deps struct {
	Attempts    AttemptRepository
	Catalog     CatalogRepository
	Status      CompletionReader
	Rewards     RewardIssuer
	Publisher   ArtifactPublisher
	Chain       ChainCommitter
	Profiles    ProfileReader
	Certs       CertificateLedger
	Completions CompletionStore
	// TickInterval defaults to one second; tests shorten it.
	TickInterval time.Duration
}

// AttemptService contains the quiz-and-certification use cases.
type AttemptService struct {
	attempts     AttemptRepository
	catalog      CatalogRepository
	status       CompletionReader
	rewards      RewardIssuer
	publisher    ArtifactPublisher
	chain        ChainCommitter
	profiles     ProfileReader
	certs        CertificateLedger
	completions  CompletionStore
	tickInterval time.Duration
	startGroup   singleflight.Group
}

func NewAttemptService(deps Deps) *AttemptService {
	interval := deps.TickInterval
	if interval <= 0 {
		interval = time.Second
	}
	return &AttemptService{
		attempts:     deps.Attempts,
		catalog:      deps.Catalog,
		status:       deps.Status,
		rewards:      deps.Rewards,
		publisher:    deps.Publisher,
		chain:        deps.Chain,
		profiles:     deps.Profiles,
		certs:        deps.Certs,
		completions:  deps.Completions,
		tickInterval: interval,
	}
}

// AttemptKey identifies the one live attempt per (user, kind, course).
func AttemptKey(userAddress string, kind domain.AssessmentKind, courseID string) string {
	return userAddress + "|" + string(kind) + "|" + courseID
}

// Open ensures an attempt session exists for the key (creating it in
// NOT_STARTED if needed) so transports can subscribe before starting.
func (s *AttemptService) Open(_ context.Context, userAddress string, kind domain.AssessmentKind, courseID string) (string, domain.AttemptSnapshot) {
	key := AttemptKey(userAddress, kind, courseID)
	attempt := s.attempts.GetOrCreate(key, userAddress, kind, courseID)
	return key, attempt.Snapshot()
}

// Start checks eligibility, loads the assessment, and activates the attempt.
// Concurrent duplicate starts for the same key are coalesced into one.
func (s *AttemptService) Start(ctx context.Context, userAddress string, kind domain.AssessmentKind, courseID string) (domain.AttemptSnapshot, error) {
	if kind == domain.KindCourse {
		if courseID == "" {
			return domain.AttemptSnapshot{}, domain.ErrNotEligible
		}
		status, err := s.status.CompletionStatus(ctx, userAddress)
		if err != nil {
			return domain.AttemptSnapshot{}, fmt.Errorf("completion status: %w", err)
		}
		if !contains(status.EnrolledCourseIDs, courseID) {
			return domain.AttemptSnapshot{}, domain.ErrNotEligible
		}
		confirmed, err := s.certs.Confirmed(ctx, userAddress, courseID)
		if err != nil {
			// Never default to eligible while the ledger is unreachable:
			// it is the durable backing for at-most-one certificate.
			return domain.AttemptSnapshot{}, fmt.Errorf("certificate ledger: %w", err)
		}
		if confirmed {
			return domain.AttemptSnapshot{}, domain.ErrNotEligible
		}
	}

	key := AttemptKey(userAddress, kind, courseID)
	result, err, _ := s.startGroup.Do(key, func() (interface{}, error) {
		assessment, err := s.catalog.GetAssessment(ctx, kind, courseID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrCatalogUnavailable, err)
		}
		// No questions or a non-positive time limit means malformed
		// catalog content; an attempt must never run untimed.
		if len(assessment.Questions) == 0 || assessment.TimeLimitSeconds <= 0 {
			return nil, domain.ErrCatalogUnavailable
		}

		attempt := s.attempts.GetOrCreate(key, userAddress, kind, courseID)
		snap, timerStop, err := attempt.Begin(assessment)
		if err != nil {
			return nil, err
		}
		go s.runTimer(key, attempt, timerStop)
		return snap, nil
	})
	if err != nil {
		return domain.AttemptSnapshot{}, err
	}
	return result.(domain.AttemptSnapshot), nil
}

// runTimer drives the countdown until expiry or until the attempt leaves
// ACTIVE (the stop channel closes on every such path).
func (s *AttemptService) runTimer(key string, attempt *Attempt, stop <-chan struct{}) {
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			expired, _ := attempt.Tick()
			if expired {
				if _, err := s.Submit(context.Background(), key); err != nil {
					log.Printf("timer submit for %s: %v", key, err)
				}
				return
			}
		}
	}
}

// RecordAnswer upserts the user's choice for a question index.
func (s *AttemptService) RecordAnswer(_ context.Context, key string, questionIndex int, optionKey string) (domain.AttemptSnapshot, error) {
	attempt, ok := s.attempts.Get(key)
	if !ok {
		return domain.AttemptSnapshot{}, domain.ErrAttemptNotFound
	}
	return attempt.RecordAnswer(questionIndex, optionKey), nil
}

// Navigate moves the question cursor by delta.
func (s *AttemptService) Navigate(_ context.Context, key string, delta int) (domain.AttemptSnapshot, error) {
	attempt, ok := s.attempts.Get(key)
	if !ok {
		return domain.AttemptSnapshot{}, domain.ErrAttemptNotFound
	}
	return attempt.Navigate(delta), nil
}

// Submit grades the attempt. Both the manual action and timer expiry route
// here; whichever arrives second finds the phase already advanced and is a
// no-op. For entry tests the reward request fires once the result is ready;
// its failure is reported but leaves the result standing.
func (s *AttemptService) Submit(ctx context.Context, key string) (domain.AttemptSnapshot, error) {
	attempt, ok := s.attempts.Get(key)
	if !ok {
		return domain.AttemptSnapshot{}, domain.ErrAttemptNotFound
	}

	result, accepted := attempt.Submit()
	if !accepted {
		return attempt.Snapshot(), nil
	}

	if attempt.kind == domain.KindEntry {
		if err := s.rewards.AwardEntryReward(ctx, attempt.user, result.CorrectCount); err != nil {
			attempt.AwardSettled(false)
			return attempt.Snapshot(), fmt.Errorf("%w: %v", domain.ErrSubmissionFailed, err)
		}
		attempt.AwardSettled(true)
	}
	return attempt.Snapshot(), nil
}

// RetryEntryAward re-issues only the failed reward call for an entry test
// that graded successfully but could not be awarded.
func (s *AttemptService) RetryEntryAward(ctx context.Context, key string) (domain.AttemptSnapshot, error) {
	attempt, ok := s.attempts.Get(key)
	if !ok {
		return domain.AttemptSnapshot{}, domain.ErrAttemptNotFound
	}
	if attempt.kind != domain.KindEntry || !attempt.AwardPending() {
		return attempt.Snapshot(), domain.ErrInvalidPhase
	}
	snap := attempt.Snapshot()
	if snap.Result == nil {
		return snap, domain.ErrInvalidPhase
	}
	if err := s.rewards.AwardEntryReward(ctx, attempt.user, snap.Result.CorrectCount); err != nil {
		return snap, fmt.Errorf("%w: %v", domain.ErrSubmissionFailed, err)
	}
	attempt.AwardSettled(true)
	return attempt.Snapshot(), nil
}

// RequestMint runs the certificate workflow for a passed course quiz:
// best-effort profile fetch, publish the completion artifact (once), then
// commit on-chain with the artifact id. A failed commit parks the attempt
// in MINT_PENDING and a retry reuses the already-published artifact.
func (s *AttemptService) RequestMint(ctx context.Context, key string) (domain.AttemptSnapshot, error) {
	attempt, ok := s.attempts.Get(key)
	if !ok {
		return domain.AttemptSnapshot{}, domain.ErrAttemptNotFound
	}

	confirmed, err := s.certs.Confirmed(ctx, attempt.user, attempt.courseID)
	if err != nil {
		return attempt.Snapshot(), fmt.Errorf("certificate ledger: %w", err)
	}
	if confirmed {
		return attempt.Snapshot(), domain.ErrNotEligible
	}

	ticket, err := attempt.BeginMint()
	if err != nil {
		return attempt.Snapshot(), err
	}

	artifactID := ticket.ArtifactID
	if artifactID == "" {
		summary := ticket.Summary
		summary.UserName, summary.UserEmail = s.identity(ctx, attempt.user)

		artifactID, err = s.publisher.PublishArtifact(ctx, summary)
		if err != nil {
			attempt.FinishMint(false)
			return attempt.Snapshot(), fmt.Errorf("%w: %v", domain.ErrSubmissionFailed, err)
		}
		record := attempt.SetArtifact(artifactID)
		s.persistCompletion(ctx, record)
	}

	if err := s.chain.CommitCompletion(ctx, attempt.user, attempt.courseID, artifactID); err != nil {
		attempt.FinishMint(false)
		return attempt.Snapshot(), fmt.Errorf("%w: %v", domain.ErrMintCommitFailed, err)
	}

	record := attempt.FinishMint(true)
	if err := s.certs.MarkConfirmed(ctx, attempt.user, attempt.courseID); err != nil {
		log.Printf("mark certificate confirmed for %s/%s: %v", attempt.user, attempt.courseID, err)
	}
	s.persistCompletion(ctx, record)
	return attempt.Snapshot(), nil
}

// identity resolves certificate name/email, substituting placeholders when
// the profile is absent or the lookup fails.
func (s *AttemptService) identity(ctx context.Context, userAddress string) (string, string) {
	profile, found, err := s.profiles.Profile(ctx, userAddress)
	if err != nil || !found {
		return "Anonymous", "NA"
	}
	name, email := profile.UserName, profile.Email
	if name == "" {
		name = "Anonymous"
	}
	if email == "" {
		email = "NA"
	}
	return name, email
}

func (s *AttemptService) persistCompletion(ctx context.Context, record domain.CompletionRecord) {
	if s.completions == nil {
		return
	}
	if err := s.completions.Save(ctx, record); err != nil {
		log.Printf("persist completion record for %s/%s: %v", record.UserAddress, record.CourseID, err)
	}
}

// Restart discards the attempt and returns it to NOT_STARTED. Rejected once
// minting has begun.
func (s *AttemptService) Restart(_ context.Context, key string) (domain.AttemptSnapshot, error) {
	attempt, ok := s.attempts.Get(key)
	if !ok {
		return domain.AttemptSnapshot{}, domain.ErrAttemptNotFound
	}
	return attempt.Restart()
}

// Snapshot returns the current view of an attempt.
func (s *AttemptService) Snapshot(_ context.Context, key string) (domain.AttemptSnapshot, error) {
	attempt, ok := s.attempts.Get(key)
	if !ok {
		return domain.AttemptSnapshot{}, domain.ErrAttemptNotFound
	}
	return attempt.Snapshot(), nil
}

// Subscribe returns a channel that receives snapshot updates for an attempt.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *AttemptService) Subscribe(_ context.Context, key string) (<-chan domain.AttemptSnapshot, func(), error) {
	attempt, ok := s.attempts.Get(key)
	if !ok {
		return nil, nil, domain.ErrAttemptNotFound
	}
	ch, cancel := attempt.Subscribe()
	return ch, cancel, nil
}

// Leave tears down the session: the countdown stops and the attempt is
// dropped from the store.
func (s *AttemptService) Leave(_ context.Context, key string) {
	attempt, ok := s.attempts.Get(key)
	if !ok {
		return
	}
	attempt.Close()
	s.attempts.Delete(key)
}

func contains(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

// IsNoRetry reports whether an error is terminal for the current attempt
// (ineligibility, already-minted) as opposed to safely retryable.
func IsNoRetry(err error) bool {
	return errors.Is(err, domain.ErrNotEligible) || errors.Is(err, domain.ErrRestartUnavailable)
}
