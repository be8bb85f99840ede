// Package wizard holds the four-step pipeline state: one active session and
// the artifacts it has produced so far. Updates are shallow merges through
// named operations; the current step is derived, never stored.
package wizard

import (
	"errors"
	"fmt"
	"sync"

	"github.com/paperlens/paperlens/internal/model"
)

// Step is one of the four sequential wizard stages.
type Step int

const (
	// StepUpload is the initial stage, no session yet.
	StepUpload Step = 1
	// StepAnalysis means the papers were analyzed.
	StepAnalysis Step = 2
	// StepPaper means a predicted paper was generated.
	StepPaper Step = 3
	// StepAnswers means worked answers are available.
	StepAnswers Step = 4
)

// ErrNoSession is returned when an artifact arrives before any upload.
var ErrNoSession = errors.New("no active session, upload papers first")

// ErrSessionMismatch is returned when an artifact references a different
// session than the active one. The state is reset to step 1 before the
// error is returned, since the mismatch means everything held is stale.
var ErrSessionMismatch = errors.New("artifact belongs to a different session")

// State is the wizard record. All fields are private; mutate through the
// named operations only.
type State struct {
	mu        sync.Mutex
	sessionID string
	analysis  *model.AnalysisResult
	paper     *model.GeneratedPaper
	answers   *model.AnswerSet
}

// Snapshot is a point-in-time copy of the wizard record for rendering.
type Snapshot struct {
	SessionID string
	Analysis  *model.AnalysisResult
	Paper     *model.GeneratedPaper
	Answers   *model.AnswerSet
	Step      Step
}

// New creates an empty wizard at step 1.
func New() *State {
	return &State{}
}

// StartSession adopts the session from an upload response. Artifacts held
// from a previous session are cleared so nothing leaks across sessions.
func (s *State) StartSession(up *model.UploadResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sessionID != "" && s.sessionID != up.SessionID {
		s.clear()
	}
	s.sessionID = up.SessionID
}

// SetAnalysis attaches the analysis result to the active session.
func (s *State) SetAnalysis(a *model.AnalysisResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkSession(a.SessionID); err != nil {
		return err
	}
	s.analysis = a
	return nil
}

// SetPaper attaches the generated paper to the active session. Earlier
// artifacts are kept; forward progress is additive.
func (s *State) SetPaper(p *model.GeneratedPaper) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkSession(p.SessionID); err != nil {
		return err
	}
	s.paper = p
	return nil
}

// SetAnswers attaches the answer set to the active session.
func (s *State) SetAnswers(a *model.AnswerSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkSession(a.SessionID); err != nil {
		return err
	}
	s.answers = a
	return nil
}

// Reset discards the session and all artifacts, returning to step 1.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionID = ""
	s.clear()
}

// SessionID returns the active session identifier, or "".
func (s *State) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// CurrentStep derives the step from which artifacts are present.
func (s *State) CurrentStep() Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deriveStep(s.analysis, s.paper, s.answers)
}

// Snapshot returns a consistent copy of the record for rendering.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		SessionID: s.sessionID,
		Analysis:  s.analysis,
		Paper:     s.paper,
		Answers:   s.answers,
		Step:      deriveStep(s.analysis, s.paper, s.answers),
	}
}

// checkSession enforces that an artifact references the active session.
// Callers must hold s.mu.
func (s *State) checkSession(sessionID string) error {
	if s.sessionID == "" {
		return ErrNoSession
	}
	if sessionID != s.sessionID {
		got, want := sessionID, s.sessionID
		s.sessionID = ""
		s.clear()
		return fmt.Errorf("%w: got %q, active %q", ErrSessionMismatch, got, want)
	}
	return nil
}

func (s *State) clear() {
	s.analysis = nil
	s.paper = nil
	s.answers = nil
}

// deriveStep is the single step-derivation rule: answers win over paper,
// paper over analysis, else step 1.
func deriveStep(analysis *model.AnalysisResult, paper *model.GeneratedPaper, answers *model.AnswerSet) Step {
	switch {
	case answers != nil:
		return StepAnswers
	case paper != nil:
		return StepPaper
	case analysis != nil:
		return StepAnalysis
	default:
		return StepUpload
	}
}
