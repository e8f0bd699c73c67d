package e2e

import (
	"fmt"
	"strings"
	"testing"

	"github.com/kuitang/mango3-e2e/internal/errs"
)

// Plan runs named steps in dependency order. A step that writes the session
// store is declared once, and every step that reads it Needs it; file order
// and test-name order are irrelevant.
type Plan struct {
	steps []*step
	index map[string]*step
}

type step struct {
	name  string
	needs []string
	fn    func(t *testing.T)
}

// NewPlan returns an empty plan.
func NewPlan() *Plan {
	return &Plan{index: make(map[string]*step)}
}

// Step declares fn under name, to run after every step in needs has passed.
func (p *Plan) Step(name string, fn func(t *testing.T), needs ...string) *Plan {
	s := &step{name: name, needs: needs, fn: fn}
	p.steps = append(p.steps, s)
	if _, dup := p.index[name]; !dup {
		p.index[name] = s
	}
	return p
}

// Order returns step names so every step follows its needs. Among ready
// steps, declaration order wins.
func (p *Plan) Order() ([]string, error) {
	var problems []string
	for _, s := range p.steps {
		if p.index[s.name] != s {
			problems = append(problems, fmt.Sprintf("step %q declared twice", s.name))
		}
		for _, n := range s.needs {
			if _, ok := p.index[n]; !ok {
				problems = append(problems, fmt.Sprintf("step %q needs unknown step %q", s.name, n))
			}
		}
	}
	if len(problems) > 0 {
		return nil, errs.New(errs.InvalidArgument, strings.Join(problems, "; "))
	}

	done := make(map[string]bool, len(p.steps))
	order := make([]string, 0, len(p.steps))
	for len(order) < len(p.steps) {
		progressed := false
		for _, s := range p.steps {
			if done[s.name] || !allDone(done, s.needs) {
				continue
			}
			done[s.name] = true
			order = append(order, s.name)
			progressed = true
			break
		}
		if !progressed {
			var stuck []string
			for _, s := range p.steps {
				if !done[s.name] {
					stuck = append(stuck, s.name)
				}
			}
			return nil, errs.New(errs.InvalidArgument, "dependency cycle among steps: "+strings.Join(stuck, ", "))
		}
	}
	return order, nil
}

func allDone(done map[string]bool, names []string) bool {
	for _, n := range names {
		if !done[n] {
			return false
		}
	}
	return true
}

// Subtest runs fn as a subtest of t and reports whether it passed, like
// t.Run. A skipped subtest also skips t, so a step that only delegates to
// subtests is not recorded as passed when they were skipped.
func Subtest(t *testing.T, name string, fn func(t *testing.T)) bool {
	t.Helper()
	var skipped bool
	ok := t.Run(name, func(t *testing.T) {
		defer func() { skipped = t.Skipped() }()
		fn(t)
	})
	if ok && skipped {
		t.SkipNow()
	}
	return ok
}

// Run executes the plan as subtests of t. A step whose need failed or was
// skipped is skipped with the reason. Skips inside a step only count when
// they reach the step itself; use Subtest or Fixture.Run for nested work.
func (p *Plan) Run(t *testing.T) {
	t.Helper()
	order, err := p.Order()
	if err != nil {
		t.Fatalf("invalid test plan: %v", err)
	}

	passed := make(map[string]bool, len(order))
	for _, name := range order {
		s := p.index[name]
		var blocked string
		for _, n := range s.needs {
			if !passed[n] {
				blocked = n
				break
			}
		}

		var skipped bool
		ok := t.Run(name, func(t *testing.T) {
			defer func() { skipped = t.Skipped() }()
			if blocked != "" {
				t.Skipf("skipped: step %q did not pass", blocked)
			}
			s.fn(t)
		})
		passed[name] = ok && !skipped
	}
}
