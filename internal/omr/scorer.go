package omr

import (
	"fmt"
	"math"
)

// Scorer options

type Option func(*config)

type config struct {
	AmbiguityThreshold float64 // confidence below this flags the question
}

func WithAmbiguityThreshold(t float64) Option {
	return func(c *config) { c.AmbiguityThreshold = t }
}

// DefaultAmbiguityThreshold flags questions whose detection confidence is
// below 0.5 for human review.
const DefaultAmbiguityThreshold = 0.5

// Score grades one detected sheet against one answer key. Pure and
// deterministic: the same inputs always produce the same Result.
//
// Per question: a blank mark (or an ambiguous mark whose confidence is below
// the threshold) is unanswered; a mark equal to the key's answer is correct;
// anything else is incorrect. An ambiguous mark never matches a key answer,
// so a confidently-ambiguous question counts as incorrect.
//
// Scores are scaled: TotalScore = correct/total * MaxScore (key's MaxScore,
// DefaultMaxScore when unset) and Percentage = correct/total * 100, both
// rounded to 2 decimals, half away from zero.
func Score(d DetectedSheet, k AnswerKey, opts ...Option) (Result, error) {
	cfg := &config{AmbiguityThreshold: DefaultAmbiguityThreshold}
	for _, o := range opts {
		o(cfg)
	}

	n := k.TotalQuestions
	if len(d.Answers) != n {
		return Result{}, fmt.Errorf("%w: %d detected answers for %d questions", ErrShapeMismatch, len(d.Answers), n)
	}
	if d.Confidence != nil && len(d.Confidence) != n {
		return Result{}, fmt.Errorf("%w: %d confidence values for %d questions", ErrShapeMismatch, len(d.Confidence), n)
	}
	if len(k.Answers) != n {
		return Result{}, fmt.Errorf("%w: key has %d answers for %d questions", ErrAnswerCountMismatch, len(k.Answers), n)
	}
	for i, a := range k.Answers {
		if a < 0 || a > k.NumOptions {
			return Result{}, fmt.Errorf("%w: key answer %d at question %d (options 1..%d)", ErrInvalidOption, a, i+1, k.NumOptions)
		}
	}
	for i, a := range d.Answers {
		if a < MarkAmbiguous || a > k.NumOptions {
			return Result{}, fmt.Errorf("%w: detected mark %d at question %d (options 1..%d)", ErrInvalidOption, a, i+1, k.NumOptions)
		}
	}

	conf := func(i int) float64 {
		if d.Confidence == nil {
			return 1
		}
		return d.Confidence[i]
	}

	res := Result{SubjectScores: map[string]int{}}
	for _, s := range k.Subjects {
		res.SubjectScores[s.Subject] = 0
	}

	var confSum float64
	for i := 0; i < n; i++ {
		c := conf(i)
		confSum += c
		if c < cfg.AmbiguityThreshold {
			res.Ambiguous = append(res.Ambiguous, i+1)
		}
		switch {
		case d.Answers[i] == MarkBlank,
			d.Answers[i] == MarkAmbiguous && c < cfg.AmbiguityThreshold:
			res.UnansweredCount++
		case k.Answers[i] != 0 && d.Answers[i] == k.Answers[i]:
			res.CorrectCount++
			for _, s := range k.Subjects {
				if q := i + 1; q >= s.Start && q <= s.End {
					res.SubjectScores[s.Subject]++
				}
			}
		default:
			res.IncorrectCount++
		}
	}

	res.MaxScore = k.MaxScore
	if res.MaxScore <= 0 {
		res.MaxScore = DefaultMaxScore
	}
	if n > 0 {
		frac := float64(res.CorrectCount) / float64(n)
		res.TotalScore = round2(frac * res.MaxScore)
		res.Percentage = round2(frac * 100)
		res.ConfidenceScore = round2(confSum / float64(n))
	}
	return res, nil
}

// round2 rounds to 2 decimal places, half away from zero.
func round2(x float64) float64 {
	return math.Copysign(math.Floor(math.Abs(x)*100+0.5), x) / 100
}
