package syncengine

import (
	"context"
	"errors"
	"fmt"

	"github.com/looplab/fsm"
)

const (
	eventClear   = "clear"
	eventStart   = "start"
	eventSucceed = "succeed"
	eventFail    = "fail"
)

var statusTransitions = fsm.Events{
	{Name: eventClear, Src: []string{string(StatusIdle), string(StatusLoading), string(StatusLoaded), string(StatusError)}, Dst: string(StatusIdle)},
	{Name: eventStart, Src: []string{string(StatusIdle), string(StatusLoading), string(StatusLoaded), string(StatusError)}, Dst: string(StatusLoading)},
	{Name: eventSucceed, Src: []string{string(StatusLoading), string(StatusLoaded), string(StatusError)}, Dst: string(StatusLoaded)},
	{Name: eventFail, Src: []string{string(StatusLoading), string(StatusLoaded), string(StatusError)}, Dst: string(StatusError)},
}

var eventTargets = map[string]Status{
	eventClear:   StatusIdle,
	eventStart:   StatusLoading,
	eventSucceed: StatusLoaded,
	eventFail:    StatusError,
}

// statusMachine is not safe for concurrent use; the loader calls it under
// its own lock.
type statusMachine struct {
	fsm *fsm.FSM
}

func newStatusMachine() *statusMachine {
	return &statusMachine{fsm: fsm.NewFSM(string(StatusIdle), statusTransitions, fsm.Callbacks{})}
}

func (m *statusMachine) Current() Status {
	return Status(m.fsm.Current())
}

// Fire moves the machine and returns the resulting status. Re-entering the
// current state is not an error. A rejected transition still lands on the
// event's destination so the published status never lags the data.
func (m *statusMachine) Fire(event string) (Status, error) {
	from := m.Current()
	err := m.fsm.Event(context.Background(), event)
	if err != nil {
		var noTransition fsm.NoTransitionError
		if !errors.As(err, &noTransition) {
			dst := eventTargets[event]
			m.fsm.SetState(string(dst))
			return dst, fmt.Errorf("status %s on %q: %w", from, event, err)
		}
	}
	return m.Current(), nil
}
