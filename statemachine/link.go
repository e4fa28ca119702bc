// Package statemachine drives the Action, Link and LinkAction lifecycle
// state machines, gated by explicit transition tables (spec.md §4.8,
// §4.9).
package statemachine

import (
	"github.com/CashierHQ/cashier-sub000/cashiererr"
	"github.com/CashierHQ/cashier-sub000/domain"
)

// linkAllowedActions implements spec.md §4.9's table: which ActionTypes
// are legal while a Link sits in a given LinkState. ReceivePayment links
// use ActionTypeUse to mean "Send"; Send*/Airdrop links use it to mean
// "Receive" — the distinction is purely in which LinkType gates it, not
// a separate ActionType.
var linkAllowedActions = map[domain.LinkState]map[domain.ActionType]bool{
	domain.LinkStateChooseLinkType: {domain.ActionTypeCreateLink: true},
	domain.LinkStateAddAssets:      {domain.ActionTypeCreateLink: true},
	domain.LinkStateCreateLink:     {domain.ActionTypeCreateLink: true},
	domain.LinkStateActive:        {domain.ActionTypeUse: true},
	domain.LinkStateInactive:      {domain.ActionTypeWithdraw: true},
	domain.LinkStateInactiveEnded: {},
}

// Link is the link-lifecycle state machine of spec.md §4.9.
type Link struct{}

// NewLink constructs the (stateless) Link state machine.
func NewLink() *Link { return &Link{} }

// AllowAction checks whether actionType may be attempted against a link
// currently in state s, returning a ValidationError if not.
func (l *Link) AllowAction(s domain.LinkState, actionType domain.ActionType) error {
	allowed := linkAllowedActions[s]
	if !allowed[actionType] {
		return cashiererr.Validation("action_not_allowed_in_link_state",
			"action type %s is not allowed while link is in state %s", actionType, s)
	}
	return nil
}

// OnActionResolved applies the automatic Link transitions spec.md §4.9
// names: CreateLink->Active on a successful CreateLink Action,
// Active->InactiveEnded when the use counter saturates after a
// successful Receive/Send, Inactive->InactiveEnded on a successful
// Withdraw. It mutates link in place and is a no-op if none apply.
func (l *Link) OnActionResolved(link *domain.Link, actionType domain.ActionType, resolvedState domain.State) {
	if resolvedState != domain.StateSuccess {
		return
	}
	switch {
	case actionType == domain.ActionTypeCreateLink && link.State == domain.LinkStateCreateLink:
		link.State = domain.LinkStateActive
	case actionType == domain.ActionTypeUse && link.State == domain.LinkStateActive && link.Saturated():
		link.State = domain.LinkStateInactiveEnded
	case actionType == domain.ActionTypeWithdraw && link.State == domain.LinkStateInactive:
		link.State = domain.LinkStateInactiveEnded
	}
}

// Continue advances a link through its creation wizard
// (ChooseLinkType -> AddAssets -> CreateLink); Back reverses it. Both
// return a ValidationError when the link is in a state they cannot
// move from.
func (l *Link) Continue(link *domain.Link) error {
	switch link.State {
	case domain.LinkStateChooseLinkType:
		link.State = domain.LinkStateAddAssets
	case domain.LinkStateAddAssets:
		link.State = domain.LinkStateCreateLink
	default:
		return cashiererr.Validation("invalid_continue", "cannot Continue from state %s", link.State)
	}
	return nil
}

func (l *Link) Back(link *domain.Link) error {
	switch link.State {
	case domain.LinkStateAddAssets:
		link.State = domain.LinkStateChooseLinkType
	case domain.LinkStateCreateLink:
		link.State = domain.LinkStateAddAssets
	default:
		return cashiererr.Validation("invalid_back", "cannot Back from state %s", link.State)
	}
	return nil
}

// Disable implements the creator's explicit Active -> Inactive
// transition (spec.md §4.9: "Active->Inactive on explicit disable by
// the creator").
func (l *Link) Disable(link *domain.Link) error {
	if link.State != domain.LinkStateActive {
		return cashiererr.Validation("invalid_disable", "cannot disable link in state %s", link.State)
	}
	link.State = domain.LinkStateInactive
	return nil
}
