package fsm

import (
	"context"
	"sync"

	"github.com/looplab/fsm"
)

// MachineStateMachine validates vending machine status transitions.
// All status mutations in the store go through it; no caller flips
// status strings on its own.
type MachineStateMachine struct {
	fsm *fsm.FSM
	mu  sync.Mutex
}

func NewMachineStateMachine() *MachineStateMachine {
	msm := &MachineStateMachine{}
	msm.fsm = fsm.NewFSM(
		MachineStateIdle,
		fsm.Events{
			{Name: MachineEventAssign, Src: []string{MachineStateIdle}, Dst: MachineStateChooseProduct},
			{Name: MachineEventPurchase, Src: []string{MachineStateChooseProduct}, Dst: MachineStateProcessing},
			{Name: MachineEventDeliver, Src: []string{MachineStateProcessing}, Dst: MachineStateIdle},
			{Name: MachineEventReset, Src: []string{MachineStateChooseProduct, MachineStateProcessing}, Dst: MachineStateIdle},
		},
		fsm.Callbacks{},
	)
	return msm
}

func (msm *MachineStateMachine) CanTransition(currentState, event string) bool {
	msm.mu.Lock()
	defer msm.mu.Unlock()
	msm.fsm.SetState(currentState)
	return msm.fsm.Can(event)
}

func (msm *MachineStateMachine) Transition(ctx context.Context, currentState, event string) (string, error) {
	msm.mu.Lock()
	defer msm.mu.Unlock()
	msm.fsm.SetState(currentState)
	if err := msm.fsm.Event(ctx, event); err != nil {
		return "", err
	}
	return msm.fsm.Current(), nil
}

func (msm *MachineStateMachine) AvailableEvents(currentState string) []string {
	msm.mu.Lock()
	defer msm.mu.Unlock()
	msm.fsm.SetState(currentState)
	return msm.fsm.AvailableTransitions()
}
