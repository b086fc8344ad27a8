package models

import "time"

// Display records served by the LMS backend. Their contract is owned by the
// backend; these types only carry what the portal shows.

// Course is a catalog entry
type Course struct {
	ID          string    `json:"id"`
	Title       string    `json:"title" validate:"required"`
	Description string    `json:"description,omitempty"`
	Instructor  string    `json:"instructor,omitempty"`
	Lessons     []Lesson  `json:"lessons,omitempty"`
	Published   bool      `json:"published"`
	CreatedAt   time.Time `json:"createdAt,omitempty"`
}

// Lesson belongs to a course
type Lesson struct {
	ID       string `json:"id"`
	CourseID string `json:"courseId"`
	Title    string `json:"title"`
	Order    int    `json:"order"`
	VideoURL string `json:"videoUrl,omitempty"`
	Quiz     *Quiz  `json:"quiz,omitempty"`
}

// Quiz is attached to a lesson
type Quiz struct {
	ID        string         `json:"id"`
	Questions []QuizQuestion `json:"questions"`
}

// QuizQuestion is a single multiple-choice question
type QuizQuestion struct {
	Prompt  string   `json:"prompt"`
	Options []string `json:"options"`
}

// Assignment is coursework with a due date
type Assignment struct {
	ID       string    `json:"id"`
	CourseID string    `json:"courseId" validate:"required"`
	Title    string    `json:"title" validate:"required"`
	DueDate  time.Time `json:"dueDate,omitempty"`
	MaxScore float64   `json:"maxScore,omitempty"`
}

// Exam is a scheduled assessment
type Exam struct {
	ID          string    `json:"id"`
	CourseID    string    `json:"courseId" validate:"required"`
	Title       string    `json:"title" validate:"required"`
	ScheduledAt time.Time `json:"scheduledAt,omitempty"`
	DurationMin int       `json:"durationMinutes,omitempty"`
}

// Grade is a student's score on an assignment or exam
type Grade struct {
	ID           string  `json:"id"`
	StudentID    string  `json:"studentId"`
	CourseID     string  `json:"courseId"`
	AssignmentID string  `json:"assignmentId,omitempty"`
	ExamID       string  `json:"examId,omitempty"`
	Score        float64 `json:"score"`
	MaxScore     float64 `json:"maxScore"`
}

// Percent returns the score as a percentage, 0 when MaxScore is unset
func (g *Grade) Percent() float64 {
	if g.MaxScore <= 0 {
		return 0
	}
	return g.Score / g.MaxScore * 100
}

// Report is an aggregated admin report
type Report struct {
	ID          string         `json:"id"`
	Kind        string         `json:"kind"`
	GeneratedAt time.Time      `json:"generatedAt"`
	Data        map[string]any `json:"data,omitempty"`
}

// User is an LMS account as listed by admin screens
type User struct {
	ID     string   `json:"id"`
	Email  string   `json:"email" validate:"required,email"`
	Name   string   `json:"name"`
	Role   Role     `json:"role"`
	Groups []string `json:"groups,omitempty"`
}

// Certificate is issued on course completion
type Certificate struct {
	ID        string    `json:"id"`
	StudentID string    `json:"studentId"`
	CourseID  string    `json:"courseId"`
	IssuedAt  time.Time `json:"issuedAt"`
	URL       string    `json:"url,omitempty"`
}
