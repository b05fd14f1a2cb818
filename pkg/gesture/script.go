// Package gesture reads recorded gesture scripts and turns them into editor
// events. A script looks like:
//
//	container: {width: 400, height: 400}
//	events:
//	  - zoom: 2.0
//	  - zoom_end
//	  - pan: {x: 100, y: 0}
//	  - pan_end
//	  - commit
package gesture

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/menta2k/pawcrop/pkg/editor"
	"github.com/menta2k/pawcrop/pkg/types"
)

// ErrUnknownEvent is returned for an event name the editor does not know
var ErrUnknownEvent = errors.New("unknown gesture event")

// Script is a recorded edit interaction
type Script struct {
	Container types.Size     `yaml:"container"`
	Events    []editor.Event `yaml:"-"`
}

type rawScript struct {
	Container types.Size `yaml:"container"`
	Events    []step     `yaml:"events"`
}

type step struct {
	event editor.Event
}

// Load reads a script from a YAML file
func Load(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read gesture script: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML gesture script
func Parse(data []byte) (*Script, error) {
	var raw rawScript
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse gesture script: %w", err)
	}

	script := &Script{Container: raw.Container}
	for _, st := range raw.Events {
		script.Events = append(script.Events, st.event)
	}
	return script, nil
}

func (s *step) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		ev, err := bareEvent(node.Value)
		if err != nil {
			return fmt.Errorf("line %d: %w", node.Line, err)
		}
		s.event = ev
		return nil
	case yaml.MappingNode:
		if len(node.Content) != 2 {
			return fmt.Errorf("line %d: event must have exactly one key", node.Line)
		}
		ev, err := valuedEvent(node.Content[0].Value, node.Content[1])
		if err != nil {
			return fmt.Errorf("line %d: %w", node.Line, err)
		}
		s.event = ev
		return nil
	default:
		return fmt.Errorf("line %d: unexpected event node", node.Line)
	}
}

func bareEvent(name string) (editor.Event, error) {
	switch name {
	case "zoom_end":
		return editor.ZoomEnded{}, nil
	case "pan_end":
		return editor.PanEnded{}, nil
	case "reset":
		return editor.ResetRequested{}, nil
	case "commit":
		return editor.CommitRequested{}, nil
	case "cancel":
		return editor.CancelRequested{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, name)
}

func valuedEvent(name string, value *yaml.Node) (editor.Event, error) {
	switch name {
	case "zoom":
		var factor float64
		if err := value.Decode(&factor); err != nil {
			return nil, fmt.Errorf("zoom: %w", err)
		}
		return editor.ZoomChanged{Factor: factor}, nil
	case "pan":
		v, err := decodeVector(value)
		if err != nil {
			return nil, fmt.Errorf("pan: %w", err)
		}
		return editor.PanChanged{Translation: v}, nil
	case "container":
		var size types.Size
		if err := value.Decode(&size); err != nil {
			return nil, fmt.Errorf("container: %w", err)
		}
		return editor.GeometryChanged{Container: size}, nil
	}
	if value.Kind == yaml.ScalarNode && (value.Value == "" || value.Tag == "!!null") {
		return bareEvent(name)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, name)
}

// decodeVector accepts either {x: 1, y: 2} or [1, 2]
func decodeVector(node *yaml.Node) (types.Vector, error) {
	if node.Kind == yaml.SequenceNode {
		var pair []float64
		if err := node.Decode(&pair); err != nil {
			return types.Vector{}, err
		}
		if len(pair) != 2 {
			return types.Vector{}, fmt.Errorf("expected two components, got %d", len(pair))
		}
		return types.Vector{X: pair[0], Y: pair[1]}, nil
	}
	var v types.Vector
	err := node.Decode(&v)
	return v, err
}
