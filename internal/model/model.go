package model

import (
	"context"
)

// User is the account record returned by the backend's /auth/me endpoint.
// CreditsUsed reflects server-side usage accounting and is only ever
// overwritten wholesale by a fresh fetch.
type User struct {
	ID          int64  `json:"id"`
	Email       string `json:"email"`
	CreditsUsed int    `json:"credits_used"`
}

// AuthResponse is returned by a successful login.
type AuthResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// UploadResponse is returned after the backend has extracted text from the
// uploaded papers. SessionID scopes every subsequent call.
type UploadResponse struct {
	SessionID      string   `json:"session_id"`
	FilesProcessed int      `json:"files_processed"`
	ExtractedText  []string `json:"extracted_text"`
	CreditsUsed    int      `json:"credits_used"`
	Message        string   `json:"message"`
}

// QuestionEntry is a single question found during analysis.
type QuestionEntry struct {
	Question string `json:"question"`
	Marks    int    `json:"marks"`
	Topic    string `json:"topic"`
	Year     string `json:"year,omitempty"`
	Section  string `json:"section,omitempty"`
}

// TopicFrequency describes how often a topic appeared across the papers.
type TopicFrequency struct {
	Topic      string   `json:"topic"`
	Count      int      `json:"count"`
	Years      []string `json:"years"`
	Percentage float64  `json:"percentage"`
}

// AnalysisResult is the pattern analysis for one upload session.
type AnalysisResult struct {
	SessionID        string           `json:"session_id"`
	TotalQuestions   int              `json:"total_questions"`
	Topics           []TopicFrequency `json:"topics"`
	YearDistribution map[string]int   `json:"year_distribution"`
	PredictedTopics  []string         `json:"predicted_topics"`
	PatternInsights  []string         `json:"pattern_insights"`
	AllQuestions     []QuestionEntry  `json:"all_questions"`
}

// GeneratedQuestion is one question of the predicted paper.
type GeneratedQuestion struct {
	Number   int    `json:"number"`
	Question string `json:"question"`
	Marks    int    `json:"marks"`
	Section  string `json:"section"`
	Topic    string `json:"topic"`
}

// GeneratedSection groups questions of the predicted paper.
type GeneratedSection struct {
	Name         string              `json:"name"`
	Instructions string              `json:"instructions"`
	Questions    []GeneratedQuestion `json:"questions"`
	TotalMarks   int                 `json:"total_marks"`
}

// GeneratedPaper is the predicted question paper.
type GeneratedPaper struct {
	SessionID           string             `json:"session_id"`
	Title               string             `json:"title"`
	Subject             string             `json:"subject"`
	TotalMarks          int                `json:"total_marks"`
	Duration            string             `json:"duration"`
	GeneralInstructions []string           `json:"general_instructions"`
	Sections            []GeneratedSection `json:"sections"`
}

// AnsweredQuestion is one question of the paper with its worked answer.
type AnsweredQuestion struct {
	Number   int    `json:"number"`
	Question string `json:"question"`
	Marks    int    `json:"marks"`
	Section  string `json:"section"`
	Answer   string `json:"answer"`
}

// AnswerSet holds the worked answers for a generated paper.
type AnswerSet struct {
	SessionID         string             `json:"session_id"`
	Title             string             `json:"title"`
	AnsweredQuestions []AnsweredQuestion `json:"answered_questions"`
}

type userCtxKey struct{}

// ContextWithUser stores the authenticated user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}
