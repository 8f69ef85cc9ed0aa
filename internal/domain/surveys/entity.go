package surveys

import "time"

// ResponseID identifies one stored submission.
type ResponseID string

// QuestionID is the key a question is answered under, e.g. "Q1".
type QuestionID string

// Answer value object. Value is set for scale answers, Text carries free text
// or the label of the chosen scale option.
type Answer struct {
	Value *int   `json:"value,omitempty"`
	Text  string `json:"text,omitempty"`
}

// AnswerInput is an answer as the client sent it, before the schema checks it.
type AnswerInput struct {
	Value *float64
	Text  string
}

// Participant metadata. Used for deduplication hints only, never as identity.
type Participant struct {
	ParticipantID string `json:"participant_id"`
	SessionID     string `json:"session_id,omitempty"`
	Age           string `json:"age,omitempty"`
	Gender        string `json:"gender,omitempty"`
	Education     string `json:"education,omitempty"`
}

// Scores derived from the numeric answers of a response.
type Scores struct {
	Total     int            `json:"total_score"`
	Average   float64        `json:"average_score"`
	Scored    int            `json:"scored_answers"`
	Subscales map[string]int `json:"subscales,omitempty"`
}

// Aggregate Root: Response. Immutable once persisted.
type Response struct {
	ID          ResponseID            `json:"submission_id"`
	SubmittedAt time.Time             `json:"submission_timestamp"`
	Participant Participant           `json:"participant"`
	Answers     map[QuestionID]Answer `json:"responses"`
	Scores      Scores                `json:"scores"`
}
