package wizard

import (
	"errors"
	"testing"

	"github.com/paperlens/paperlens/internal/model"
)

func startedState(t *testing.T, sessionID string) *State {
	t.Helper()
	s := New()
	s.StartSession(&model.UploadResponse{SessionID: sessionID})
	return s
}

func TestCurrentStepDerivation(t *testing.T) {
	analysis := &model.AnalysisResult{SessionID: "s1"}
	paper := &model.GeneratedPaper{SessionID: "s1"}
	answers := &model.AnswerSet{SessionID: "s1"}

	tests := []struct {
		name     string
		analysis bool
		paper    bool
		answers  bool
		want     Step
	}{
		{"empty", false, false, false, StepUpload},
		{"analysis only", true, false, false, StepAnalysis},
		{"analysis and paper", true, true, false, StepPaper},
		{"all artifacts", true, true, true, StepAnswers},
		// Presence of a later artifact dominates even if an earlier one
		// is missing (should not happen in normal flow, but the rule is
		// pure over presence).
		{"paper only", false, true, false, StepPaper},
		{"answers only", false, false, true, StepAnswers},
		{"paper and answers", false, true, true, StepAnswers},
		{"analysis and answers", true, false, true, StepAnswers},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := startedState(t, "s1")
			if tt.analysis {
				if err := s.SetAnalysis(analysis); err != nil {
					t.Fatalf("SetAnalysis: %v", err)
				}
			}
			if tt.paper {
				if err := s.SetPaper(paper); err != nil {
					t.Fatalf("SetPaper: %v", err)
				}
			}
			if tt.answers {
				if err := s.SetAnswers(answers); err != nil {
					t.Fatalf("SetAnswers: %v", err)
				}
			}
			if got := s.CurrentStep(); got != tt.want {
				t.Errorf("CurrentStep() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestStartSessionClearsForeignArtifacts(t *testing.T) {
	s := startedState(t, "s1")
	if err := s.SetAnalysis(&model.AnalysisResult{SessionID: "s1"}); err != nil {
		t.Fatalf("SetAnalysis: %v", err)
	}
	if err := s.SetPaper(&model.GeneratedPaper{SessionID: "s1"}); err != nil {
		t.Fatalf("SetPaper: %v", err)
	}

	s.StartSession(&model.UploadResponse{SessionID: "s2"})

	if got := s.SessionID(); got != "s2" {
		t.Errorf("SessionID() = %q, want s2", got)
	}
	if got := s.CurrentStep(); got != StepUpload {
		t.Errorf("CurrentStep() after new session = %d, want %d", got, StepUpload)
	}
	snap := s.Snapshot()
	if snap.Analysis != nil || snap.Paper != nil || snap.Answers != nil {
		t.Error("artifacts from the previous session leaked into the new one")
	}
}

func TestStartSessionSameIDKeepsArtifacts(t *testing.T) {
	s := startedState(t, "s1")
	if err := s.SetAnalysis(&model.AnalysisResult{SessionID: "s1"}); err != nil {
		t.Fatalf("SetAnalysis: %v", err)
	}

	s.StartSession(&model.UploadResponse{SessionID: "s1"})

	if s.Snapshot().Analysis == nil {
		t.Error("re-adopting the same session should not clear its artifacts")
	}
}

func TestSetWithoutSession(t *testing.T) {
	s := New()
	err := s.SetAnalysis(&model.AnalysisResult{SessionID: "s1"})
	if !errors.Is(err, ErrNoSession) {
		t.Errorf("SetAnalysis without session = %v, want ErrNoSession", err)
	}
}

func TestSessionMismatchForcesReset(t *testing.T) {
	s := startedState(t, "s1")
	if err := s.SetAnalysis(&model.AnalysisResult{SessionID: "s1"}); err != nil {
		t.Fatalf("SetAnalysis: %v", err)
	}

	err := s.SetPaper(&model.GeneratedPaper{SessionID: "s2"})
	if !errors.Is(err, ErrSessionMismatch) {
		t.Fatalf("SetPaper with foreign session = %v, want ErrSessionMismatch", err)
	}

	// The mismatch means everything held was stale: back to step 1.
	if got := s.CurrentStep(); got != StepUpload {
		t.Errorf("CurrentStep() after mismatch = %d, want %d", got, StepUpload)
	}
	if got := s.SessionID(); got != "" {
		t.Errorf("SessionID() after mismatch = %q, want empty", got)
	}
}

func TestForwardProgressIsAdditive(t *testing.T) {
	s := startedState(t, "s1")
	if err := s.SetAnalysis(&model.AnalysisResult{SessionID: "s1"}); err != nil {
		t.Fatalf("SetAnalysis: %v", err)
	}
	if err := s.SetPaper(&model.GeneratedPaper{SessionID: "s1"}); err != nil {
		t.Fatalf("SetPaper: %v", err)
	}
	if err := s.SetAnswers(&model.AnswerSet{SessionID: "s1"}); err != nil {
		t.Fatalf("SetAnswers: %v", err)
	}

	snap := s.Snapshot()
	if snap.Analysis == nil || snap.Paper == nil || snap.Answers == nil {
		t.Error("setting a later artifact must not clear an earlier one")
	}
	if snap.Step != StepAnswers {
		t.Errorf("Snapshot().Step = %d, want %d", snap.Step, StepAnswers)
	}
}

func TestReset(t *testing.T) {
	s := startedState(t, "s1")
	if err := s.SetAnalysis(&model.AnalysisResult{SessionID: "s1"}); err != nil {
		t.Fatalf("SetAnalysis: %v", err)
	}

	s.Reset()

	if got := s.SessionID(); got != "" {
		t.Errorf("SessionID() after reset = %q, want empty", got)
	}
	if got := s.CurrentStep(); got != StepUpload {
		t.Errorf("CurrentStep() after reset = %d, want %d", got, StepUpload)
	}
}
