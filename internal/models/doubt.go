package models

import "time"

// DoubtMessage is one raw question from a discussion export.
type DoubtMessage struct {
	AuthorRole string `json:"author_role"`
	Text       string `json:"text"`
}

// DoubtUpload is a batch of doubt messages ingested in one call. It is immutable once created.
type DoubtUpload struct {
	ID         string         `json:"id" db:"id"`
	CourseCode string         `json:"course_code" db:"course_code"`
	Source     string         `json:"source" db:"source"`
	Messages   []DoubtMessage `json:"messages" db:"messages"`
	CreatedAt  time.Time      `json:"created_at" db:"created_at"`
}

// TopicCluster is a group of similar doubt messages.
type TopicCluster struct {
	Label            string   `json:"label"`
	Keywords         []string `json:"keywords"`
	Members          []int    `json:"-"` // indexes into the clustered message list
	Size             int      `json:"size"`
	ExampleQuestions []string `json:"example_questions"`
	Unclustered      bool     `json:"unclustered,omitempty"`
}

// SummaryResult is the output of summarizing all doubts for a course.
type SummaryResult struct {
	CourseCode     string         `json:"course_code"`
	OverallSummary string         `json:"overall_summary"`
	Topics         []TopicCluster `json:"topics"`
	Insights       []string       `json:"insights,omitempty"`
	TotalMessages  int            `json:"total_messages"`
	GeneratedAt    time.Time      `json:"generated_at"`
}
