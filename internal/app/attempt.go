package app

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"skillbridge-quiz-service/internal/domain"
)

// Attempt is the in-memory aggregate for one user's run through an
// assessment: answer ledger, countdown, phase machine, and mint bookkeeping.
// All mutation happens under its lock; network calls never do.
type Attempt struct {
	id        string
	key       string
	user      string
	kind      domain.AssessmentKind
	courseID  string
	createdAt time.Time
	now       func() time.Time

	mu           sync.RWMutex
	assessment   domain.Assessment
	phase        domain.Phase
	currentIndex int
	answers      map[int]string
	remaining    int
	result       *domain.GradeResult
	completedAt  time.Time
	awardPending bool
	completion   *domain.CompletionRecord
	mintInFlight bool
	timerStop    chan struct{}
	subscribers  map[chan domain.AttemptSnapshot]struct{}
}

func newAttempt(key, user string, kind domain.AssessmentKind, courseID string) *Attempt {
	return newAttemptWithClock(key, user, kind, courseID, time.Now)
}

// newAttemptWithClock allows deterministic timestamps in tests.
func newAttemptWithClock(key, user string, kind domain.AssessmentKind, courseID string, now func() time.Time) *Attempt {
	return &Attempt{
		id:          uuid.NewString(),
		key:         key,
		user:        user,
		kind:        kind,
		courseID:    courseID,
		createdAt:   now(),
		now:         now,
		phase:       domain.PhaseNotStarted,
		answers:     make(map[int]string),
		subscribers: make(map[chan domain.AttemptSnapshot]struct{}),
	}
}

// NewAttempt is exported for infrastructure layers that need to seed attempts.
func NewAttempt(key, user string, kind domain.AssessmentKind, courseID string) *Attempt {
	return newAttempt(key, user, kind, courseID)
}

// NewAttemptWithClock is test-only for deterministic timestamps.
func NewAttemptWithClock(key, user string, kind domain.AssessmentKind, courseID string, now func() time.Time) *Attempt {
	return newAttemptWithClock(key, user, kind, courseID, now)
}

// ID returns the attempt's unique identifier.
func (a *Attempt) ID() string { return a.id }

// Key returns the store key (user|kind|courseId).
func (a *Attempt) Key() string { return a.key }

// Begin loads the assessment and moves the attempt to ACTIVE. The returned
// channel is closed on every path that leaves ACTIVE so the caller's timer
// goroutine can never outlive the countdown.
func (a *Attempt) Begin(assessment domain.Assessment) (domain.AttemptSnapshot, <-chan struct{}, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.phase != domain.PhaseNotStarted {
		return a.snapshotLocked(), nil, domain.ErrInvalidPhase
	}

	a.assessment = assessment
	a.phase = domain.PhaseActive
	a.currentIndex = 0
	a.answers = make(map[int]string)
	a.remaining = assessment.TimeLimitSeconds
	a.result = nil
	a.awardPending = false
	a.timerStop = make(chan struct{})
	return a.broadcastLocked(), a.timerStop, nil
}

// RecordAnswer upserts the ledger entry for a question index. Silent no-op
// outside ACTIVE or for an out-of-range index.
func (a *Attempt) RecordAnswer(questionIndex int, optionKey string) domain.AttemptSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.phase != domain.PhaseActive {
		return a.snapshotLocked()
	}
	if questionIndex < 0 || questionIndex >= len(a.assessment.Questions) {
		return a.snapshotLocked()
	}
	a.answers[questionIndex] = optionKey
	return a.broadcastLocked()
}

// Navigate moves the cursor by delta, clamped to [0, totalCount-1].
// Answering is not required to move forward.
func (a *Attempt) Navigate(delta int) domain.AttemptSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.phase != domain.PhaseActive {
		return a.snapshotLocked()
	}
	next := a.currentIndex + delta
	if next < 0 {
		next = 0
	}
	if max := len(a.assessment.Questions) - 1; next > max {
		next = max
	}
	a.currentIndex = next
	return a.broadcastLocked()
}

// Tick advances the countdown by one second. It reports true exactly once:
// when the clock reaches zero while the attempt is still ACTIVE.
func (a *Attempt) Tick() (bool, domain.AttemptSnapshot) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.phase != domain.PhaseActive || a.remaining <= 0 {
		return false, a.snapshotLocked()
	}
	a.remaining--
	expired := a.remaining == 0
	return expired, a.broadcastLocked()
}

// Submit grades the attempt with whatever answers exist and moves it to
// RESULT_READY. The second return is false when the attempt is not ACTIVE,
// which makes the manual-submit/timer-expiry race a no-op for the loser.
func (a *Attempt) Submit() (domain.GradeResult, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.phase != domain.PhaseActive {
		return domain.GradeResult{}, false
	}
	a.stopTimerLocked()
	a.phase = domain.PhaseSubmitted

	result := Grade(a.answers, a.assessment)
	a.result = &result
	a.completedAt = a.now()
	if a.kind == domain.KindEntry {
		a.awardPending = true
	}
	a.phase = domain.PhaseResultReady
	a.broadcastLocked()
	return result, true
}

// AwardSettled clears or re-arms the pending entry-reward flag.
func (a *Attempt) AwardSettled(ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.awardPending = !ok
}

// AwardPending reports whether the entry reward call still needs a retry.
func (a *Attempt) AwardPending() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.awardPending
}

// MintTicket carries everything the mint workflow needs outside the lock.
type MintTicket struct {
	ArtifactID string
	Summary    domain.AttemptSummary
}

// BeginMint acquires the single-flight mint slot. Allowed from RESULT_READY
// on a passed course quiz (first request) or from MINT_PENDING (retry after
// a failed publish or commit). A concurrent holder is rejected outright.
func (a *Attempt) BeginMint() (MintTicket, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.mintInFlight {
		return MintTicket{}, domain.ErrMintAlreadyInFlight
	}

	switch a.phase {
	case domain.PhaseResultReady:
		if a.kind != domain.KindCourse || a.result == nil || !a.result.Passed {
			return MintTicket{}, domain.ErrInvalidPhase
		}
		a.phase = domain.PhaseMintPending
		a.completion = &domain.CompletionRecord{
			CourseID:      a.courseID,
			UserAddress:   a.user,
			MintRequested: true,
		}
	case domain.PhaseMintPending:
		// retry path; completion record already exists
	default:
		return MintTicket{}, domain.ErrInvalidPhase
	}

	a.mintInFlight = true
	a.broadcastLocked()
	return MintTicket{
		ArtifactID: a.completion.ArtifactID,
		Summary:    a.summaryLocked(),
	}, nil
}

// SetArtifact records the published artifact id so retries reuse it instead
// of publishing a duplicate. Returns the record for durable storage.
func (a *Attempt) SetArtifact(artifactID string) domain.CompletionRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.completion.ArtifactID = artifactID
	record := *a.completion
	a.broadcastLocked()
	return record
}

// FinishMint releases the mint slot. On confirmation the attempt becomes
// MINTED; on failure it stays MINT_PENDING so a retry can pick it up.
func (a *Attempt) FinishMint(confirmed bool) domain.CompletionRecord {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.mintInFlight = false
	if confirmed {
		a.completion.MintConfirmed = true
		a.phase = domain.PhaseMinted
	}
	record := domain.CompletionRecord{}
	if a.completion != nil {
		record = *a.completion
	}
	a.broadcastLocked()
	return record
}

// Restart discards the attempt state and returns to NOT_STARTED. Disallowed
// once minting has begun, preserving the at-most-one-certificate invariant.
func (a *Attempt) Restart() (domain.AttemptSnapshot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.phase == domain.PhaseMintPending || a.phase == domain.PhaseMinted {
		return a.snapshotLocked(), domain.ErrRestartUnavailable
	}
	a.stopTimerLocked()
	a.phase = domain.PhaseNotStarted
	a.assessment = domain.Assessment{}
	a.currentIndex = 0
	a.answers = make(map[int]string)
	a.remaining = 0
	a.result = nil
	a.awardPending = false
	a.completion = nil
	return a.broadcastLocked(), nil
}

// Close stops the countdown and drops all subscribers. Used on teardown.
func (a *Attempt) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopTimerLocked()
	for ch := range a.subscribers {
		delete(a.subscribers, ch)
		close(ch)
	}
}

func (a *Attempt) stopTimerLocked() {
	if a.timerStop != nil {
		close(a.timerStop)
		a.timerStop = nil
	}
}

// Snapshot returns the current transport-facing view.
func (a *Attempt) Snapshot() domain.AttemptSnapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snapshotLocked()
}

// Subscribe returns a channel receiving snapshot updates. The caller must
// invoke the returned cancel function to avoid leaks.
func (a *Attempt) Subscribe() (<-chan domain.AttemptSnapshot, func()) {
	ch := make(chan domain.AttemptSnapshot, 8)

	a.mu.Lock()
	a.subscribers[ch] = struct{}{}
	initial := a.snapshotLocked()
	a.mu.Unlock()

	ch <- initial

	cancel := func() {
		a.mu.Lock()
		if _, ok := a.subscribers[ch]; ok {
			delete(a.subscribers, ch)
			close(ch)
		}
		a.mu.Unlock()
	}
	return ch, cancel
}

func (a *Attempt) broadcastLocked() domain.AttemptSnapshot {
	snap := a.snapshotLocked()
	for ch := range a.subscribers {
		select {
		case ch <- snap:
		default:
			// Drop the stale update so a slow consumer cannot block the attempt.
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
	return snap
}

func (a *Attempt) snapshotLocked() domain.AttemptSnapshot {
	snap := domain.AttemptSnapshot{
		AttemptID:        a.id,
		Kind:             a.kind,
		CourseID:         a.courseID,
		Phase:            a.phase,
		CurrentIndex:     a.currentIndex,
		TotalQuestions:   len(a.assessment.Questions),
		AnsweredCount:    len(a.answers),
		RemainingSeconds: a.remaining,
		Result:           a.result,
		UpdatedAt:        a.now(),
	}
	if a.phase == domain.PhaseActive && a.currentIndex < len(a.assessment.Questions) {
		q := a.assessment.Questions[a.currentIndex]
		snap.Question = &domain.QuestionView{Prompt: q.Prompt, Options: q.Options}
	}
	if len(a.answers) > 0 {
		answers := make(map[int]string, len(a.answers))
		for i, k := range a.answers {
			answers[i] = k
		}
		snap.Answers = answers
	}
	if a.completion != nil {
		snap.ArtifactID = a.completion.ArtifactID
		snap.MintConfirmed = a.completion.MintConfirmed
	}
	return snap
}

// summaryLocked builds the artifact payload from the graded attempt.
// Identity fields are filled by the caller after the profile lookup.
func (a *Attempt) summaryLocked() domain.AttemptSummary {
	answers := make(map[int]string, len(a.answers))
	for i, k := range a.answers {
		answers[i] = k
	}
	summary := domain.AttemptSummary{
		CourseID:    a.courseID,
		CourseTitle: a.assessment.CourseTitle,
		UserAddress: a.user,
		Answers:     answers,
		CompletedAt: a.completedAt,
	}
	if a.result != nil {
		summary.Score = a.result.CorrectCount
		summary.Total = a.result.TotalCount
		summary.Percentage = a.result.Percentage
	}
	return summary
}
