package statemachine

import "github.com/CashierHQ/cashier-sub000/domain"

// LinkActionMachine drives the per-user LinkAction.State field
// (ChooseWallet -> Completed -> CompletedLink), a supplemented feature
// (SPEC_FULL.md §C.1) read from original_source's update_action flow:
// the same update_action call that resolves an Action also advances the
// LinkAction row tracking that user's progress on that link.
type LinkActionMachine struct{}

func NewLinkActionMachine() *LinkActionMachine { return &LinkActionMachine{} }

// OnActionResolved advances la in place once its backing Action reaches
// a terminal state. CompletedLink is reached only when the Action's
// resolution also saturated the link's use counter (the same condition
// statemachine.Link.OnActionResolved uses to move a Link to
// InactiveEnded) — otherwise a successful Action simply marks the user
// as Completed, available to start a fresh Action later.
func (m *LinkActionMachine) OnActionResolved(la *domain.LinkAction, actionState domain.State, linkSaturated bool) {
	if !actionState.Terminal() || actionState != domain.StateSuccess {
		return
	}
	if linkSaturated {
		la.State = domain.LinkUserStateCompletedLink
	} else {
		la.State = domain.LinkUserStateCompleted
	}
}
