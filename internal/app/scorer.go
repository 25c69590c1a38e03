package app

import "skillbridge-quiz-service/internal/domain"

// Grade compares recorded answers against the assessment's question set.
// Unanswered indexes count as incorrect, never as an error, and the
// percentage denominator is always the total question count so skipped
// questions cannot inflate the score. Deterministic for identical inputs.
func Grade(answers map[int]string, assessment domain.Assessment) domain.GradeResult {
	total := len(assessment.Questions)
	correct := 0
	for i := range assessment.Questions {
		if chosen, ok := answers[i]; ok && chosen == assessment.Questions[i].CorrectKey {
			correct++
		}
	}

	percentage := 0.0
	if total > 0 {
		percentage = 100 * float64(correct) / float64(total)
	}

	// Entry tests are always "completed"; course quizzes pass on threshold.
	passed := true
	if assessment.Kind == domain.KindCourse {
		passed = percentage >= assessment.PassingPercentage
	}

	return domain.GradeResult{
		CorrectCount: correct,
		TotalCount:   total,
		Percentage:   percentage,
		Passed:       passed,
	}
}
