// Package planrunner interprets a YAML test plan as a sequence of actions
// against a browser.Session. It is a thin collaborator over the session
// controller's API, not part of the core.
package planrunner

import (
	"bytes"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Plan is the top-level document: a named group of steps run in order.
type Plan struct {
	Group string `yaml:"group"`
	Title string `yaml:"title"`
	Steps []Step `yaml:"steps"`
}

// Condition is one entry of a block/sleep-ms condition list. conds_met is
// OR across the list (resolved Open Question, see DESIGN.md): any single
// condition becoming true satisfies the wait.
type Condition struct {
	Timer   string `yaml:"timer,omitempty"`
	Elapsed int    `yaml:"elapsed,omitempty"`
	Window  string `yaml:"window,omitempty"`
	Status  string `yaml:"status,omitempty"`
}

// Check is one entry of a plot-check step's checks list.
type Check struct {
	TextContains string `yaml:"text-contains,omitempty"`
	BitmapCount  *int   `yaml:"bitmap-count,omitempty"`
}

// Step is one test-plan action. Which fields are meaningful depends on
// Action; UnmarshalYAML validates the required fields per action at parse
// time rather than at run time.
type Step struct {
	Action string

	Tag       string
	URL       string
	RepeatURL string
	Window    string

	TimeMS  int
	TimeTag string

	Conditions []Condition

	RepeatMin  int
	RepeatStep int
	Values     []string
	Steps      []Step

	Min *int
	Max *int

	Checks []Check

	Realm    string
	Username string
	Password string

	JS string

	LogSource   string
	LogFoldable string
	LogLevel    string
	LogSubstr   string
}

type rawStep struct {
	Action      string      `yaml:"action"`
	Tag         string      `yaml:"tag"`
	URL         string      `yaml:"url"`
	RepeatURL   string      `yaml:"repeaturl"`
	Window      string      `yaml:"window"`
	Time        yaml.Node   `yaml:"time"`
	Conditions  []Condition `yaml:"conditions"`
	Min         *int        `yaml:"min"`
	Step        *int        `yaml:"step"`
	Values      []string    `yaml:"values"`
	Steps       []Step      `yaml:"steps"`
	Max         *int        `yaml:"max"`
	Checks      []Check     `yaml:"checks"`
	Realm       string      `yaml:"realm"`
	Username    string      `yaml:"username"`
	Password    string      `yaml:"password"`
	JS          string      `yaml:"js"`
	LogSource   string      `yaml:"log-source"`
	LogFoldable string      `yaml:"log-foldable"`
	LogLevel    string      `yaml:"log-level"`
	LogSubstr   string      `yaml:"log-substr"`
}

// UnmarshalYAML decodes one step into a typed struct keyed on its "action"
// discriminator, never a generic interface{} tree walked at run time.
func (s *Step) UnmarshalYAML(value *yaml.Node) error {
	// Node.Decode does not inherit the outer decoder's KnownFields setting,
	// so the step is re-decoded through a strict decoder of its own.
	buf, err := yaml.Marshal(value)
	if err != nil {
		return fmt.Errorf("planrunner: re-encode step: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(buf))
	dec.KnownFields(true)
	var raw rawStep
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("planrunner: decode step: %w", err)
	}

	s.Action = raw.Action
	s.Tag = raw.Tag
	s.URL = raw.URL
	s.RepeatURL = raw.RepeatURL
	s.Window = raw.Window
	s.Conditions = raw.Conditions
	s.Values = raw.Values
	s.Steps = raw.Steps
	s.Max = raw.Max
	s.Min = raw.Min
	s.Checks = raw.Checks
	s.Realm = raw.Realm
	s.Username = raw.Username
	s.Password = raw.Password
	s.JS = raw.JS
	s.LogSource = raw.LogSource
	s.LogFoldable = raw.LogFoldable
	s.LogLevel = raw.LogLevel
	s.LogSubstr = raw.LogSubstr

	s.RepeatStep = 1
	if raw.Step != nil {
		s.RepeatStep = *raw.Step
	}
	if raw.Min != nil {
		s.RepeatMin = *raw.Min
	}

	if raw.Time.Kind != 0 {
		var n int
		if err := raw.Time.Decode(&n); err == nil {
			s.TimeMS = n
		} else {
			var tag string
			if err := raw.Time.Decode(&tag); err != nil {
				return fmt.Errorf("planrunner: step %q: time must be an int or a repeat tag: %w", raw.Action, err)
			}
			s.TimeTag = tag
		}
	}

	switch raw.Action {
	case "launch", "quit":
	case "window-new":
		if s.Tag == "" {
			return fmt.Errorf("planrunner: window-new requires tag")
		}
	case "window-close", "navigate", "stop", "plot-check", "clear-log":
		if s.Window == "" {
			return fmt.Errorf("planrunner: %s requires window", raw.Action)
		}
	case "wait-log":
		if s.Window == "" {
			return fmt.Errorf("planrunner: wait-log requires window")
		}
	case "js-exec":
		if s.Window == "" {
			return fmt.Errorf("planrunner: js-exec requires window")
		}
		if s.JS == "" {
			return fmt.Errorf("planrunner: js-exec requires js")
		}
	case "sleep-ms":
		if s.TimeMS == 0 && s.TimeTag == "" {
			return fmt.Errorf("planrunner: sleep-ms requires time")
		}
	case "block":
		if len(s.Conditions) == 0 {
			return fmt.Errorf("planrunner: block requires conditions")
		}
	case "repeat":
		if s.Tag == "" {
			return fmt.Errorf("planrunner: repeat requires tag")
		}
	case "timer-start", "timer-stop", "timer-check", "timer-restart":
		if s.Tag == "" {
			return fmt.Errorf("planrunner: %s requires tag", raw.Action)
		}
	case "add-auth", "remove-auth", "add-cert", "remove-cert":
		// Every field of AuthRecord/CertRecord may legitimately be the empty
		// string (a wildcard entry), so nothing here is required.
	default:
		return fmt.Errorf("planrunner: unknown action %q", raw.Action)
	}
	return nil
}

// LoadPlan parses a YAML document into a Plan, rejecting unknown top-level
// and step keys so a typo in a plan file fails loudly instead of silently
// no-opping.
func LoadPlan(r io.Reader) (*Plan, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var p Plan
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("planrunner: parse plan: %w", err)
	}
	return &p, nil
}
