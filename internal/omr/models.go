package omr

import "time"

// Detected-answer sentinels. Any positive value is a 1-based option index.
const (
	MarkBlank     = 0  // no bubble filled
	MarkAmbiguous = -1 // detector could not decide between bubbles
)

// DefaultMaxScore is the score scale applied when an answer key does not set
// its own. The dashboard schema stores scores out of 100 regardless of the
// number of questions, so raw correct-counts are scaled onto this range.
const DefaultMaxScore = 100

// SubjectRange maps a subject to an inclusive 1-based question range.
type SubjectRange struct {
	Subject string `json:"subject"`
	Start   int    `json:"start"`
	End     int    `json:"end"`
}

// AnswerKey is the grading truth for one sheet layout version.
// Subjects must partition [1, TotalQuestions]; see Validate.
type AnswerKey struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Version        string         `json:"version"` // sheet layout: "A".."D"
	TotalQuestions int            `json:"total_questions"`
	NumOptions     int            `json:"num_options"`
	MaxScore       float64        `json:"max_score"`
	Subjects       []SubjectRange `json:"subjects"`
	Answers        []int          `json:"answers"` // per question: 1..NumOptions, 0 reserved for "no correct option"
	CreatedAt      int64          `json:"created_at,omitempty"`
}

// DetectedSheet is the vision pipeline's per-question output for one sheet.
// Confidence may be nil when the detector reports none; Score then treats
// every question as fully confident.
type DetectedSheet struct {
	Answers    []int     `json:"answers"`
	Confidence []float64 `json:"confidence,omitempty"` // each in [0,1]
}

// Result is the outcome of scoring one detected sheet against one key.
// Counts always satisfy Correct+Incorrect+Unanswered == TotalQuestions.
type Result struct {
	SubjectScores   map[string]int `json:"subject_scores"`
	TotalScore      float64        `json:"total_score"`
	MaxScore        float64        `json:"max_score"`
	Percentage      float64        `json:"percentage"`
	CorrectCount    int            `json:"correct_answers"`
	IncorrectCount  int            `json:"incorrect_answers"`
	UnansweredCount int            `json:"unanswered"`
	Ambiguous       []int          `json:"ambiguous_answers"` // 1-based question numbers
	ConfidenceScore float64        `json:"confidence_score"`
}

// ResultRecord is one scored sheet as seen by the aggregator.
type ResultRecord struct {
	Result    Result
	Version   string
	Timestamp time.Time
}

// SubjectStat is the mean correct-count (or percentage, for versions) over
// the results that reported the subject, plus how many did.
type SubjectStat struct {
	Average float64 `json:"average"`
	Count   int     `json:"count"`
}

// Bucket is one bar of the score-distribution histogram.
type Bucket struct {
	Label string `json:"label"` // e.g. "50-60"
	Count int    `json:"count"`
}

// TrendPoint is one calendar day of the trailing trend window.
type TrendPoint struct {
	Date    string  `json:"date"` // YYYY-MM-DD
	Average float64 `json:"average"`
	Count   int     `json:"count"`
}

// CohortStats is the dashboard's aggregate view over many results.
type CohortStats struct {
	TotalResults       int                    `json:"total_results"`
	AverageScore       float64                `json:"average_score"`
	HighestScore       float64                `json:"highest_score"`
	LowestScore        float64                `json:"lowest_score"`
	SubjectPerformance map[string]SubjectStat `json:"subject_performance"`
	VersionPerformance map[string]SubjectStat `json:"version_performance"`
	ScoreDistribution  []Bucket               `json:"score_distribution"`
	RecentTrend        []TrendPoint           `json:"recent_trend"`
}

// Sheet statuses.
const (
	StatusUploaded   = "uploaded"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusFlagged    = "flagged"
)

// Sheet is the upload metadata for one scanned answer sheet.
type Sheet struct {
	ID          string `json:"id"`
	StudentID   string `json:"student_id"`
	StudentName string `json:"student_name,omitempty"`
	Version     string `json:"version"`
	ImageKey    string `json:"image_key"`
	Status      string `json:"status"`
	StatusNote  string `json:"status_note,omitempty"` // failure reason or review comment
	UploadedAt  int64  `json:"uploaded_at"`
	UpdatedAt   int64  `json:"updated_at"`
}

// SheetResult is a persisted Result row. Results are append-only: a re-score
// inserts a new row and readers take the latest by CreatedAt.
type SheetResult struct {
	ID               string `json:"id"`
	SheetID          string `json:"sheet_id"`
	KeyID            string `json:"key_id"`
	DetectedAnswers  []int  `json:"detected_answers"`
	Result
	ProcessingTimeMs int64 `json:"processing_time_ms"`
	CreatedAt        int64 `json:"created_at"`
}
