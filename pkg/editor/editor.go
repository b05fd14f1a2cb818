// Package editor models the crop screen as a pure transition function from
// (model, event) to (model, commands). The hosting screen renders the model
// and executes the commands; nothing here touches storage or the display.
package editor

import (
	"github.com/menta2k/pawcrop/pkg/session"
	"github.com/menta2k/pawcrop/pkg/types"
)

// Event is a user or layout input delivered to Update
type Event interface {
	isEvent()
}

// GeometryChanged reports a new container size, e.g. after rotation
type GeometryChanged struct{ Container types.Size }

// ZoomChanged carries the pinch factor since the gesture began
type ZoomChanged struct{ Factor float64 }

// ZoomEnded marks the end of a pinch
type ZoomEnded struct{}

// PanChanged carries the cumulative drag translation since the gesture began
type PanChanged struct{ Translation types.Vector }

// PanEnded marks the end of a drag
type PanEnded struct{}

// ResetRequested restores the unzoomed view
type ResetRequested struct{}

// CommitRequested finishes the edit and emits the crop
type CommitRequested struct{}

// CancelRequested closes the editor without emitting anything
type CancelRequested struct{}

func (GeometryChanged) isEvent() {}
func (ZoomChanged) isEvent()     {}
func (ZoomEnded) isEvent()       {}
func (PanChanged) isEvent()      {}
func (PanEnded) isEvent()        {}
func (ResetRequested) isEvent()  {}
func (CommitRequested) isEvent() {}
func (CancelRequested) isEvent() {}

// Command is a side effect requested by Update
type Command interface {
	isCommand()
}

// Persist asks the host to store the committed crop
type Persist struct{ Crop types.CropData }

// Close asks the host to dismiss the editor
type Close struct{ Committed bool }

func (Persist) isCommand() {}
func (Close) isCommand()   {}

// Model is the editor state. It is a value: Update never mutates its input.
type Model struct {
	Session session.Session
	Closed  bool
	Result  *types.CropData
}

// NewModel wraps a ready session
func NewModel(s *session.Session) Model {
	return Model{Session: *s}
}

// Update applies one event. Events after Close are ignored.
func Update(m Model, ev Event) (Model, []Command) {
	if m.Closed {
		return m, nil
	}

	s := m.Session
	var cmds []Command

	switch e := ev.(type) {
	case GeometryChanged:
		s.Fit(e.Container)
	case ZoomChanged:
		s.ApplyZoom(e.Factor)
	case ZoomEnded:
		s.EndZoom()
	case PanChanged:
		s.ApplyPan(e.Translation)
	case PanEnded:
		s.CommitPan()
	case ResetRequested:
		s.Reset()
	case CommitRequested:
		crop := s.CommitCrop()
		m.Result = &crop
		m.Closed = true
		cmds = append(cmds, Persist{Crop: crop}, Close{Committed: true})
	case CancelRequested:
		m.Closed = true
		cmds = append(cmds, Close{Committed: false})
	}

	m.Session = s
	return m, cmds
}

// Run folds a sequence of events over m and collects every command.
func Run(m Model, events []Event) (Model, []Command) {
	var all []Command
	for _, ev := range events {
		var cmds []Command
		m, cmds = Update(m, ev)
		all = append(all, cmds...)
	}
	return m, all
}
