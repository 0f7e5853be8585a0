package voice

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	ActionSessionStart  = "session.start"
	ActionSessionPause  = "session.pause"
	ActionSessionResume = "session.resume"
	ActionSessionEnd    = "session.end"
	ActionSessionReset  = "session.reset"
	ActionNotesSave     = "notes.save"

	// Actions with this prefix are carried out by the host view.
	hostActionPrefix = "host."
)

var ErrUnknownAction = errors.New("unknown voice action")

//go:embed default_grammar.yaml
var defaultGrammarYAML []byte

type CommandSpec struct {
	Name        string   `yaml:"name" validate:"required"`
	Patterns    []string `yaml:"patterns" validate:"required,min=1,dive,required"`
	Category    Category `yaml:"category" validate:"required,oneof=session navigation ai utility"`
	Action      string   `yaml:"action" validate:"required"`
	Description string   `yaml:"description"`
}

type Grammar struct {
	Language string        `yaml:"language"`
	WakeWord string        `yaml:"wake_word"`
	Commands []CommandSpec `yaml:"commands" validate:"required,min=1,unique=Name,dive"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func ParseGrammar(data []byte) (*Grammar, error) {
	var g Grammar
	if err := yaml.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parse grammar: %w", err)
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return &g, nil
}

func LoadGrammar(path string) (*Grammar, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read grammar %s: %w", path, err)
	}
	return ParseGrammar(data)
}

// DefaultGrammar returns the built-in English and Hebrew command set.
func DefaultGrammar() *Grammar {
	g, err := ParseGrammar(defaultGrammarYAML)
	if err != nil {
		panic(fmt.Sprintf("built-in grammar is invalid: %v", err))
	}
	return g
}

func (g *Grammar) Validate() error {
	if err := validate.Struct(g); err != nil {
		return fmt.Errorf("invalid grammar: %w", err)
	}
	for _, c := range g.Commands {
		if !KnownAction(c.Action) {
			return fmt.Errorf("command %s: %w %q", c.Name, ErrUnknownAction, c.Action)
		}
	}
	return nil
}

func KnownAction(name string) bool {
	switch name {
	case ActionSessionStart, ActionSessionPause, ActionSessionResume, ActionSessionEnd, ActionSessionReset, ActionNotesSave:
		return true
	}
	return strings.HasPrefix(name, hostActionPrefix) && len(name) > len(hostActionPrefix)
}

// Bindings maps action names to the server-side functions that carry them out.
type Bindings map[string]Action

type SessionOps interface {
	Start() error
	Pause() error
	Resume() error
	End() error
	Reset() error
}

func SessionBindings(ops SessionOps, saveNotes func()) Bindings {
	b := Bindings{
		ActionSessionStart:  func(context.Context) error { return ops.Start() },
		ActionSessionPause:  func(context.Context) error { return ops.Pause() },
		ActionSessionResume: func(context.Context) error { return ops.Resume() },
		ActionSessionEnd:    func(context.Context) error { return ops.End() },
		ActionSessionReset:  func(context.Context) error { return ops.Reset() },
	}
	if saveNotes != nil {
		b[ActionNotesSave] = func(context.Context) error {
			saveNotes()
			return nil
		}
	}
	return b
}

// Compile turns the grammar into a rule table. Host actions carry no
// server-side function.
func (g *Grammar) Compile(bindings Bindings) ([]Rule, error) {
	rules := make([]Rule, 0, len(g.Commands))
	for _, c := range g.Commands {
		rule := Rule{
			Name:        c.Name,
			Patterns:    c.Patterns,
			Category:    c.Category,
			Description: c.Description,
			ActionName:  c.Action,
		}
		if !strings.HasPrefix(c.Action, hostActionPrefix) {
			run, ok := bindings[c.Action]
			if !ok {
				return nil, fmt.Errorf("command %s: %w %q", c.Name, ErrUnknownAction, c.Action)
			}
			rule.Run = run
		}
		rules = append(rules, rule)
	}
	return rules, nil
}
