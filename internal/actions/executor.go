package actions

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Executor runs the configured actions by name
type Executor struct {
	handlers map[ActionType]ActionHandler
	actions  map[string]Action
	log      logrus.FieldLogger
	wg       sync.WaitGroup
}

// NewExecutor creates an executor for the given actions, addressed by name.
// ports may be nil when no MIDI driver is in use.
func NewExecutor(list []Action, ports OutPorts, log logrus.FieldLogger) *Executor {
	e := &Executor{
		handlers: map[ActionType]ActionHandler{
			ActionTypeProgram:      &ProgramHandler{},
			ActionTypeShellCommand: &ShellHandler{},
			ActionTypeMidi:         NewMidiHandler(ports),
		},
		actions: make(map[string]Action, len(list)),
		log:     log,
	}
	for _, a := range list {
		e.actions[a.Name] = a
	}
	return e
}

// Execute runs an action synchronously and returns its output
func (e *Executor) Execute(action Action) (string, error) {
	handler, ok := e.handlers[action.Type]
	if !ok {
		return "", errors.Errorf("unknown action type %q", action.Type)
	}
	if !handler.IsSupported() {
		return "", errors.Errorf("action type %s not supported here", action.Type)
	}

	return handler.Execute(action.Code)
}

// Validate checks an action without running it
func (e *Executor) Validate(action Action) error {
	handler, ok := e.handlers[action.Type]
	if !ok {
		return errors.Errorf("unknown action type %q", action.Type)
	}
	return handler.Validate(action.Code)
}

// Fire runs the named action in the background. Failures, including a
// missing helper, are logged and never returned.
func (e *Executor) Fire(name string) {
	log := e.log.WithField("action", name)
	action, ok := e.actions[name]
	if !ok {
		log.Warn("Unknown action, skipped")
		return
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		out, err := e.Execute(action)
		switch {
		case errors.Is(err, ErrHelperMissing):
			log.WithError(err).Warn("Action helper missing, skipped")
		case err != nil:
			log.WithError(err).Warn("Action failed")
		default:
			log.WithField("output", out).Debug("Action finished")
		}
	}()
}

// Wait blocks until every fired action has finished
func (e *Executor) Wait() {
	e.wg.Wait()
}
