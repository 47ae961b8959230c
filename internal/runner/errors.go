package runner

import (
	"fmt"
	"time"

	"github.com/copyleftdev/scryshot/internal/scenario"
)

// ValidationError rejects a run before anything is launched.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string { return "invalid run: " + e.Err.Error() }
func (e *ValidationError) Unwrap() error { return e.Err }

// LaunchError means the browser could not be started. It aborts the run.
type LaunchError struct {
	Backend string
	Err     error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch %s browser: %v", e.Backend, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// StepTimeoutError: a selector, text or navigation was not satisfied in time.
type StepTimeoutError struct {
	Target  string
	Timeout time.Duration
	Err     error
}

func (e *StepTimeoutError) Error() string {
	return fmt.Sprintf("%s not satisfied within %s", e.Target, e.Timeout)
}

func (e *StepTimeoutError) Unwrap() error { return e.Err }

func (e *StepTimeoutError) Kind() scenario.ErrorKind { return scenario.KindStepTimeout }

// AssertionFailure: an assert_visible target never became visible.
type AssertionFailure struct {
	Target  string
	Timeout time.Duration
	Err     error
}

func (e *AssertionFailure) Error() string {
	return fmt.Sprintf("expected %s to be visible within %s", e.Target, e.Timeout)
}

func (e *AssertionFailure) Unwrap() error { return e.Err }

func (e *AssertionFailure) Kind() scenario.ErrorKind { return scenario.KindAssertion }

// NavigationError: navigation failed for a reason other than a timeout.
type NavigationError struct {
	URL string
	Err error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigate to %s: %v", e.URL, e.Err)
}

func (e *NavigationError) Unwrap() error { return e.Err }

func (e *NavigationError) Kind() scenario.ErrorKind { return scenario.KindNavigation }

// IOError: a screenshot could not be captured or written.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("artifact %s: %v", e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

func (e *IOError) Kind() scenario.ErrorKind { return scenario.KindIO }

// StepError covers every other step failure, such as an element that cannot
// be clicked or a malformed selector.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

func (e *StepError) Kind() scenario.ErrorKind { return scenario.KindStep }

// ContextError: the scenario's browsing context or page could not be opened.
type ContextError struct {
	Err error
}

func (e *ContextError) Error() string {
	return "acquire browsing context: " + e.Err.Error()
}

func (e *ContextError) Unwrap() error { return e.Err }

func (e *ContextError) Kind() scenario.ErrorKind { return scenario.KindContext }

// CanceledError: the run's context ended while the step was executing.
type CanceledError struct {
	Err error
}

func (e *CanceledError) Error() string {
	return "run canceled: " + e.Err.Error()
}

func (e *CanceledError) Unwrap() error { return e.Err }

func (e *CanceledError) Kind() scenario.ErrorKind { return scenario.KindCanceled }
