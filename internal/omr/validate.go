package omr

import (
	"fmt"
	"sort"
)

// Validate checks an answer key before it is stored: subject ranges must be
// within [1, TotalQuestions], pairwise disjoint, and cover every question;
// the answer sequence must have one valid option per question. The returned
// error names the offending subjects or questions.
func Validate(k AnswerKey) error {
	if k.TotalQuestions <= 0 {
		return fmt.Errorf("%w: total_questions must be positive, got %d", ErrAnswerCountMismatch, k.TotalQuestions)
	}
	if k.NumOptions <= 0 {
		return fmt.Errorf("%w: num_options must be positive, got %d", ErrInvalidOption, k.NumOptions)
	}
	if len(k.Answers) != k.TotalQuestions {
		return fmt.Errorf("%w: %d answers for %d questions", ErrAnswerCountMismatch, len(k.Answers), k.TotalQuestions)
	}
	for i, a := range k.Answers {
		if a < 0 || a > k.NumOptions {
			return fmt.Errorf("%w: answer %d at question %d (options 1..%d)", ErrInvalidOption, a, i+1, k.NumOptions)
		}
	}

	for _, s := range k.Subjects {
		if s.Start < 1 || s.End > k.TotalQuestions || s.Start > s.End {
			return fmt.Errorf("%w: subject %q range [%d,%d] outside [1,%d]", ErrRangeBounds, s.Subject, s.Start, s.End, k.TotalQuestions)
		}
	}

	// Sort a copy by start; adjacent comparison then finds overlaps and gaps.
	ranges := make([]SubjectRange, len(k.Subjects))
	copy(ranges, k.Subjects)
	sort.Slice(ranges, func(i, j int) bool { return ranges[i].Start < ranges[j].Start })

	next := 1 // first uncovered question
	for _, s := range ranges {
		if s.Start < next {
			return fmt.Errorf("%w: subject %q starts at %d inside an earlier range", ErrRangeOverlap, s.Subject, s.Start)
		}
		if s.Start > next {
			return fmt.Errorf("%w: questions %d..%d belong to no subject", ErrRangeGap, next, s.Start-1)
		}
		next = s.End + 1
	}
	if next != k.TotalQuestions+1 {
		return fmt.Errorf("%w: questions %d..%d belong to no subject", ErrRangeGap, next, k.TotalQuestions)
	}
	return nil
}
