package domain

import "time"

// AssessmentKind distinguishes the platform entry test from course quizzes.
type AssessmentKind string

const (
	KindEntry  AssessmentKind = "entry"
	KindCourse AssessmentKind = "course"
)

// Phase enumerates the attempt lifecycle states.
type Phase string

const (
	PhaseNotStarted  Phase = "NOT_STARTED"
	PhaseActive      Phase = "ACTIVE"
	PhaseSubmitted   Phase = "SUBMITTED"
	PhaseResultReady Phase = "RESULT_READY"
	PhaseMintPending Phase = "MINT_PENDING"
	PhaseMinted      Phase = "MINTED"
)

// Option is one answer choice. Options keep their insertion order for display.
type Option struct {
	Key  string `json:"key"`
	Text string `json:"text"`
}

// Question models an MCQ question with exactly one correct option key.
type Question struct {
	Prompt     string   `json:"prompt"`
	Options    []Option `json:"options"`
	CorrectKey string   `json:"correctKey"`
}

// Assessment is one quiz definition, immutable once loaded.
type Assessment struct {
	ID                string         `json:"id"`
	Kind              AssessmentKind `json:"kind"`
	CourseID          string         `json:"courseId,omitempty"`
	CourseTitle       string         `json:"courseTitle,omitempty"`
	Questions         []Question     `json:"questions"`
	TimeLimitSeconds  int            `json:"timeLimitSeconds"`
	PassingPercentage float64        `json:"passingPercentage,omitempty"`
}

// GradeResult is the immutable outcome of grading one attempt.
type GradeResult struct {
	CorrectCount int     `json:"correctCount"`
	TotalCount   int     `json:"totalCount"`
	Percentage   float64 `json:"percentage"`
	Passed       bool    `json:"passed"`
}

// CompletionRecord tracks the mint lifecycle for a passed course quiz.
// At most one record per (user, course) may ever reach MintConfirmed.
type CompletionRecord struct {
	CourseID      string `json:"courseId"`
	UserAddress   string `json:"userAddress"`
	ArtifactID    string `json:"artifactId"`
	MintRequested bool   `json:"mintRequested"`
	MintConfirmed bool   `json:"mintConfirmed"`
}

// AttemptSummary is the durable artifact payload for a finished attempt.
type AttemptSummary struct {
	CourseID    string         `json:"courseId"`
	CourseTitle string         `json:"courseTitle"`
	UserAddress string         `json:"userAddress"`
	UserName    string         `json:"userName"`
	UserEmail   string         `json:"userEmail"`
	Answers     map[int]string `json:"answers"`
	Score       int            `json:"score"`
	Total       int            `json:"total"`
	Percentage  float64        `json:"percentage"`
	CompletedAt time.Time      `json:"completedAt"`
}

// CompletionStatus is the chain-side view of a user's progress.
type CompletionStatus struct {
	HasCompletedEntryTest bool     `json:"hasCompletedEntryTest"`
	EnrolledCourseIDs     []string `json:"enrolledCourseIds"`
}

// Profile carries the identity fields stamped onto certificates.
type Profile struct {
	UserName string `json:"userName"`
	Email    string `json:"email"`
}

// QuestionView is a question as shown to the taker, correct key withheld.
type QuestionView struct {
	Prompt  string   `json:"prompt"`
	Options []Option `json:"options"`
}

// AttemptSnapshot is the transport-facing view of a running attempt.
type AttemptSnapshot struct {
	AttemptID        string         `json:"attemptId"`
	Kind             AssessmentKind `json:"kind"`
	CourseID         string         `json:"courseId,omitempty"`
	Phase            Phase          `json:"phase"`
	CurrentIndex     int            `json:"currentIndex"`
	TotalQuestions   int            `json:"totalQuestions"`
	AnsweredCount    int            `json:"answeredCount"`
	RemainingSeconds int            `json:"remainingSeconds"`
	Question         *QuestionView  `json:"question,omitempty"`
	Answers          map[int]string `json:"answers,omitempty"`
	Result           *GradeResult   `json:"result,omitempty"`
	ArtifactID       string         `json:"artifactId,omitempty"`
	MintConfirmed    bool           `json:"mintConfirmed"`
	UpdatedAt        time.Time      `json:"updatedAt"`
}
