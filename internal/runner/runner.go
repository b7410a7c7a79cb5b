// File: internal/runner/runner.go
// Description: Executes test cases step by step against a browser session.
// Steps are small quoted-argument directives; the first failing step stops
// the run and is reported by index.

package runner

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/voidwalkr/restitch/api/schemas"
)

// directivePattern splits a step into its verb and the quoted argument list.
var (
	directivePattern = regexp.MustCompile(`^\s*([a-z_]+)((?:\s+"[^"]*")*)\s*$`)
	quotedArgPattern = regexp.MustCompile(`"([^"]*)"`)
)

// parseStep breaks a step directive into a verb and its arguments.
func parseStep(step string) (verb string, args []string, err error) {
	m := directivePattern.FindStringSubmatch(step)
	if m == nil {
		return "", nil, fmt.Errorf("unrecognized step directive: %s", strings.TrimSpace(step))
	}
	verb = m[1]
	for _, q := range quotedArgPattern.FindAllStringSubmatch(m[2], -1) {
		args = append(args, q[1])
	}
	return verb, args, nil
}

// SessionRunner implements schemas.TestRunner on top of a browser session.
type SessionRunner struct {
	session schemas.SessionContext
	logger  *zap.Logger
}

var _ schemas.TestRunner = (*SessionRunner)(nil)

// NewSessionRunner wraps a session as a test runner.
func NewSessionRunner(session schemas.SessionContext, logger *zap.Logger) (*SessionRunner, error) {
	if session == nil {
		return nil, fmt.Errorf("session cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	return &SessionRunner{session: session, logger: logger.Named("runner")}, nil
}

// Run executes every step in order. The first failing step produces a
// non-passing result with its index; the error return is reserved for
// context cancellation.
func (r *SessionRunner) Run(ctx context.Context, tc schemas.TestCase) (schemas.ExecutionResult, error) {
	r.logger.Debug("Executing test case", zap.String("test", tc.ID), zap.Int("steps", len(tc.Steps)))

	for i, step := range tc.Steps {
		if err := ctx.Err(); err != nil {
			return schemas.ExecutionResult{Passed: false, FailedStep: i, Detail: err.Error()}, err
		}
		if err := r.runStep(ctx, step); err != nil {
			if ctx.Err() != nil {
				return schemas.ExecutionResult{Passed: false, FailedStep: i, Detail: err.Error()}, ctx.Err()
			}
			r.logger.Debug("Step failed",
				zap.String("test", tc.ID), zap.Int("step", i), zap.Error(err))
			return schemas.ExecutionResult{Passed: false, FailedStep: i, Detail: err.Error()}, nil
		}
	}
	return schemas.ExecutionResult{Passed: true, FailedStep: -1}, nil
}

func (r *SessionRunner) runStep(ctx context.Context, step string) error {
	verb, args, err := parseStep(step)
	if err != nil {
		return err
	}

	switch verb {
	case "navigate":
		if len(args) != 1 {
			return fmt.Errorf("navigate expects 1 argument, got %d", len(args))
		}
		return r.session.Navigate(ctx, args[0])
	case "click":
		if len(args) != 1 {
			return fmt.Errorf("click expects 1 argument, got %d", len(args))
		}
		return r.session.Click(ctx, schemas.Locator(args[0]))
	case "type":
		if len(args) != 2 {
			return fmt.Errorf("type expects 2 arguments, got %d", len(args))
		}
		return r.session.Type(ctx, schemas.Locator(args[0]), args[1])
	case "select":
		if len(args) != 2 {
			return fmt.Errorf("select expects 2 arguments, got %d", len(args))
		}
		return r.session.Select(ctx, schemas.Locator(args[0]), args[1])
	case "wait":
		if len(args) != 1 {
			return fmt.Errorf("wait expects 1 argument, got %d", len(args))
		}
		return r.session.WaitVisible(ctx, schemas.Locator(args[0]))
	default:
		return fmt.Errorf("unknown step verb %q", verb)
	}
}
