package voice

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultGrammar_CompilesWithSessionBindings(t *testing.T) {
	g := DefaultGrammar()
	if g.Language != "he-IL" {
		t.Fatalf("unexpected language: %s", g.Language)
	}
	ops := &mockSessionOps{}
	saved := false
	rules, err := g.Compile(SessionBindings(ops, func() { saved = true }))
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	if len(rules) != len(g.Commands) {
		t.Fatalf("expected %d rules, got %d", len(g.Commands), len(rules))
	}
	byName := map[string]Rule{}
	for _, r := range rules {
		byName[r.Name] = r
	}
	if byName["next"].Run != nil {
		t.Fatal("expected host action to have no server-side function")
	}
	if err := byName["start"].Run(context.Background()); err != nil {
		t.Fatalf("start action failed: %v", err)
	}
	if err := byName["save"].Run(context.Background()); err != nil {
		t.Fatalf("save action failed: %v", err)
	}
	if ops.calls["start"] != 1 || !saved {
		t.Fatalf("expected bound actions to run, calls=%v saved=%v", ops.calls, saved)
	}
}

func TestParseGrammar_ValidationErrors(t *testing.T) {
	cases := map[string]string{
		"no commands": "language: en-US\ncommands: []\n",
		"missing patterns": `commands:
  - name: start
    category: session
    action: session.start
`,
		"bad category": `commands:
  - name: start
    category: fun
    action: session.start
    patterns: [start]
`,
		"duplicate names": `commands:
  - name: start
    category: session
    action: session.start
    patterns: [start]
  - name: start
    category: session
    action: session.start
    patterns: [begin]
`,
		"unknown action": `commands:
  - name: start
    category: session
    action: session.launch
    patterns: [start]
`,
		"not yaml": "commands: [",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseGrammar([]byte(body)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestParseGrammar_UnknownActionIsSentinel(t *testing.T) {
	_, err := ParseGrammar([]byte(`commands:
  - name: x
    category: utility
    action: nope
    patterns: [x]
`))
	if !errors.Is(err, ErrUnknownAction) {
		t.Fatalf("expected ErrUnknownAction, got %v", err)
	}
}

func TestCompile_MissingBindingFails(t *testing.T) {
	g := DefaultGrammar()
	_, err := g.Compile(Bindings{})
	if !errors.Is(err, ErrUnknownAction) {
		t.Fatalf("expected missing binding error, got %v", err)
	}
}

func TestLoadGrammar_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grammar.yaml")
	body := `language: en-US
wake_word: hey doctor
commands:
  - name: pause
    category: session
    action: session.pause
    patterns: [pause, hold on]
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write grammar: %v", err)
	}
	g, err := LoadGrammar(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if g.WakeWord != "hey doctor" || len(g.Commands) != 1 {
		t.Fatalf("unexpected grammar: %+v", g)
	}

	if _, err := LoadGrammar(filepath.Join(t.TempDir(), "missing.yaml")); err == nil || !strings.Contains(err.Error(), "read grammar") {
		t.Fatalf("expected read error, got %v", err)
	}
}

func TestKnownAction(t *testing.T) {
	for _, name := range []string{"session.start", "notes.save", "host.next"} {
		if !KnownAction(name) {
			t.Fatalf("expected %s to be known", name)
		}
	}
	for _, name := range []string{"", "host.", "session.fly"} {
		if KnownAction(name) {
			t.Fatalf("expected %q to be unknown", name)
		}
	}
}
