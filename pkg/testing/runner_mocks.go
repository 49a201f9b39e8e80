package testing

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/sgl-project/fastcopy/pkg/runner"
)

// Invocation records one call made through a ScriptedRunner.
type Invocation struct {
	Name string
	Args []string
}

func (i Invocation) String() string {
	return strings.TrimSpace(i.Name + " " + strings.Join(i.Args, " "))
}

// Script decides the outcome of a single invocation.
type Script func(ctx context.Context, name string, args ...string) (*runner.Result, error)

// ScriptedRunner implements runner.Runner by dispatching on the binary name.
// Binaries without a script fail to start.
type ScriptedRunner struct {
	mu      sync.Mutex
	scripts map[string]Script
	calls   []Invocation
}

var _ runner.Runner = (*ScriptedRunner)(nil)

func NewScriptedRunner() *ScriptedRunner {
	return &ScriptedRunner{scripts: map[string]Script{}}
}

// On registers the script run for name.
func (s *ScriptedRunner) On(name string, script Script) *ScriptedRunner {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts[name] = script
	return s
}

// Exit registers a script that exits with code and stderr without side effects.
func (s *ScriptedRunner) Exit(name string, code int, stderr string) *ScriptedRunner {
	return s.On(name, func(context.Context, string, ...string) (*runner.Result, error) {
		return &runner.Result{ExitCode: code, Stderr: stderr}, nil
	})
}

func (s *ScriptedRunner) Run(ctx context.Context, name string, args ...string) (*runner.Result, error) {
	s.mu.Lock()
	s.calls = append(s.calls, Invocation{Name: name, Args: append([]string(nil), args...)})
	script, ok := s.scripts[name]
	s.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("exec: %q: executable file not found in $PATH", name)
	}
	return script(ctx, name, args...)
}

// Calls returns the invocations seen so far.
func (s *ScriptedRunner) Calls() []Invocation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Invocation(nil), s.calls...)
}

// Called reports whether name was invoked at least once.
func (s *ScriptedRunner) Called(name string) bool {
	for _, c := range s.Calls() {
		if c.Name == name {
			return true
		}
	}
	return false
}

// LookPathFor returns an availability probe that only knows the given names.
func LookPathFor(names ...string) func(string) bool {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return func(name string) bool {
		_, ok := set[name]
		return ok
	}
}
