package statemachine

import (
	"context"

	"github.com/CashierHQ/cashier-sub000/build"
	"github.com/CashierHQ/cashier-sub000/cashiererr"
	"github.com/CashierHQ/cashier-sub000/domain"
	"github.com/CashierHQ/cashier-sub000/executor"
	"github.com/CashierHQ/cashier-sub000/icrc112"
	"github.com/CashierHQ/cashier-sub000/validator"
)

var log = build.NewSubLogger(build.SubsystemStateMach)

// Action drives an Action through Created -> Processing ->
// {Success, Fail} via its three entry points (spec.md §4.8), grounded
// on the teacher's htlcswitch.paymentControl transition-table shape.
type Action struct {
	link      *Link
	builder   *icrc112.Builder
	validator *validator.Validator
	executor  *executor.Executor
}

func NewAction(link *Link, builder *icrc112.Builder, v *validator.Validator, e *executor.Executor) *Action {
	return &Action{link: link, builder: builder, validator: v, executor: e}
}

// AuthorizeCreate implements spec.md §4.8's authorisation rule: only the
// creator may CreateLink/Withdraw; anyone may Use (Receive/Send);
// anonymous callers (domain.IsAnonymous) may only Use.
func AuthorizeCreate(link *domain.Link, actionType domain.ActionType, caller string) error {
	if domain.IsAnonymous(caller) && actionType != domain.ActionTypeUse {
		return cashiererr.Unauthorized("anonymous_not_allowed",
			"anonymous callers may only perform Use actions, got %s", actionType)
	}
	switch actionType {
	case domain.ActionTypeCreateLink, domain.ActionTypeWithdraw:
		if caller != link.Creator {
			return cashiererr.Unauthorized("creator_only", "%s is restricted to the link creator", actionType)
		}
	}
	return nil
}

// CreateAction implements spec.md §4.8's create_action entry point.
// hasUncompleted is supplied by the caller (service.Service), which has
// already queried storage for an existing uncompleted Action of the
// same type for this user (spec.md §3 invariant 6); the pre-condition
// check itself lives here so it can't be skipped by a future caller.
func (a *Action) CreateAction(link *domain.Link, actionType domain.ActionType, caller string, intents []domain.Intent, hasUncompleted bool) (*domain.Action, error) {
	if err := AuthorizeCreate(link, actionType, caller); err != nil {
		return nil, err
	}
	if err := a.link.AllowAction(link.State, actionType); err != nil {
		return nil, err
	}
	if hasUncompleted {
		return nil, cashiererr.Validation("duplicate_action",
			"an uncompleted %s action already exists for this user on this link", actionType)
	}

	return &domain.Action{
		ID:      domain.NewID(),
		Type:    actionType,
		State:   domain.StateCreated,
		Creator: caller,
		LinkID:  link.ID,
		Intents: intents,
	}, nil
}

// ProcessResult is returned by ProcessAction: the ICRC-112 groups the
// wallet must execute (nil/empty if the Action had no wallet-side leg
// and was resolved immediately), plus the Action's new state.
type ProcessResult struct {
	Groups []icrc112.Group
	State  domain.State
}

// ProcessAction implements spec.md §4.8's process_action entry point:
// transitions Created -> Processing, builds ICRC-112 requests for any
// wallet-side Transactions, and — for Intents with no wallet leg at all
// (Receive/Withdraw) — runs the Executor and resolves the Action within
// this same call.
func (a *Action) ProcessAction(ctx context.Context, action *domain.Action, ledgerOf func(intentID string) domain.Asset, treasury, linkSub domain.Principal, items []executor.BatchItem) (*ProcessResult, error) {
	if action.State != domain.StateCreated {
		return nil, cashiererr.Validation("invalid_action_state",
			"process_action requires state Created, got %s", action.State)
	}
	action.State = domain.StateProcessing

	groups, err := a.builder.Build(ctx, action, ledgerOf, treasury, linkSub)
	if err != nil {
		return nil, err
	}
	if len(groups) > 0 {
		return &ProcessResult{Groups: groups, State: domain.StateProcessing}, nil
	}

	// No wallet-side leg: run the canister-side Transactions now and
	// resolve the Action within this call (spec.md §4.8).
	outcomes := a.executor.ExecuteCanisterTxsBatch(ctx, items)
	applyOutcomes(action, outcomes)
	resolved := a.Resolve(action)
	return &ProcessResult{State: resolved}, nil
}

// UpdateResult is returned by UpdateAction.
type UpdateResult struct {
	State domain.State
}

// UpdateAction implements spec.md §4.8's update_action entry point: runs
// the Validator against live ledger state for every wallet Transaction
// the caller reports an outcome for, executes remaining canister
// Transactions, then resolves per-Intent and per-Action state.
// walletOutcomes maps Transaction id -> the caller's claimed outcome
// (true = wallet says it landed); this claim is never trusted outright
// — it is confirmed against the ledger via the Validator, falling back
// to ManualCheckStatus with real sibling evidence when the ledger query
// itself is inconclusive. Callers that already know a Transaction
// succeeded omit it here and it is left to its current recorded state.
// canisterItemsFn is called only after every wallet outcome is resolved,
// so a canister Transaction whose DependsOn this very call just
// resolved to Success (e.g. the CreateLink fee's transfer_from,
// unblocked by its approve landing in this same update_action) is
// picked up instead of deferred to the next call.
func (a *Action) UpdateAction(ctx context.Context, action *domain.Action, walletOutcomes map[string]bool, canisterItemsFn func(*domain.Action) []executor.BatchItem) *UpdateResult {
	for i := range action.Intents {
		intent := &action.Intents[i]
		for j := range intent.Transactions {
			tx := &intent.Transactions[j]
			if tx.FromCallType != domain.CallTypeWallet || tx.State != domain.StateProcessing {
				continue
			}
			claimed, known := walletOutcomes[tx.ID]
			if !known {
				continue
			}
			a.resolveWalletTransaction(ctx, action, intent, tx, claimed)
		}
	}

	if canisterItems := canisterItemsFn(action); len(canisterItems) > 0 {
		outcomes := a.executor.ExecuteCanisterTxsBatch(ctx, canisterItems)
		applyOutcomes(action, outcomes)
	}

	state := a.Resolve(action)
	return &UpdateResult{State: state}
}

// TriggerTransactionResult is returned by TriggerTransaction.
type TriggerTransactionResult struct {
	State domain.State
}

// TriggerTransaction implements spec.md §5/§69's trigger_transaction
// entry point: execute the single canister-side Transaction item now
// (the caller has already confirmed it is due — dependency resolved,
// still Created) and resolve per-Intent and per-Action state the same
// way UpdateAction's canister batch does.
func (a *Action) TriggerTransaction(ctx context.Context, action *domain.Action, item executor.BatchItem) *TriggerTransactionResult {
	outcomes := a.executor.ExecuteCanisterTxsBatch(ctx, []executor.BatchItem{item})
	applyOutcomes(action, outcomes)
	state := a.Resolve(action)
	return &TriggerTransactionResult{State: state}
}

// resolveWalletTransaction implements spec.md §4.5's "runs Validator on
// every wallet Transaction" step: a client-reported success is only
// accepted once validateAgainstLedger confirms it; a refuted ledger
// query on a client-reported failure marks it Fail; a refuted query on a
// claimed success, or an inconclusive query, falls back to
// ManualCheckStatus armed with this Intent's real sibling Transactions,
// rather than the caller's unverified claim.
func (a *Action) resolveWalletTransaction(ctx context.Context, action *domain.Action, intent *domain.Intent, tx *domain.Transaction, claimed bool) {
	confirmed, err := a.validateAgainstLedger(ctx, action, intent, tx)
	if err == nil && confirmed {
		tx.State = domain.StateSuccess
		return
	}
	if err == nil && !confirmed && !claimed {
		tx.State = domain.StateFail
		return
	}

	siblings := validator.SiblingOutcomeFrom(intent.Transactions, tx.ID)
	if state := a.validator.ManualCheckStatus(ctx, tx, siblings); state != domain.StateProcessing {
		tx.State = state
	}
}

// validateAgainstLedger dispatches to the Validator method matching tx's
// protocol: ValidateBalanceTransfer for an Icrc1Transfer deposit,
// ValidateAllowance for the Icrc2Approve leg of a fee intent.
// expectedCumulative sums every wallet Icrc1Transfer Intent's amount
// into the same destination within this Action (spec.md §4.5), since
// more than one deposit can land in the same sub-account before any of
// them is confirmed.
func (a *Action) validateAgainstLedger(ctx context.Context, action *domain.Action, intent *domain.Intent, tx *domain.Transaction) (bool, error) {
	switch tx.Protocol {
	case domain.ProtocolIcrc1Transfer:
		return a.validator.ValidateBalanceTransfer(ctx, intent, cumulativeWalletDeposit(action, intent.Payload.To))
	case domain.ProtocolIcrc2Approve:
		return a.validator.ValidateAllowance(ctx, intent, intent.Payload.To)
	default:
		return false, nil
	}
}

// cumulativeWalletDeposit sums the Amount of every wallet-side
// Icrc1Transfer Intent in action whose destination is dest, the
// "expected cumulative inflow" ValidateBalanceTransfer checks against
// (spec.md §4.5): more than one deposit can target the same sub-account
// within a single Action.
func cumulativeWalletDeposit(action *domain.Action, dest domain.Principal) uint64 {
	var total uint64
	for i := range action.Intents {
		in := &action.Intents[i]
		if in.Payload.To != dest {
			continue
		}
		for j := range in.Transactions {
			if in.Transactions[j].FromCallType == domain.CallTypeWallet && in.Transactions[j].Protocol == domain.ProtocolIcrc1Transfer {
				total += in.Payload.Amount
				break
			}
		}
	}
	return total
}

// Resolve recomputes and writes back every Intent's state, then the
// Action's state, per spec.md §3 invariants 3-4.
func (a *Action) Resolve(action *domain.Action) domain.State {
	for i := range action.Intents {
		action.Intents[i].State = action.Intents[i].DeriveState()
	}
	action.State = action.DeriveState()
	log.Debugf("action=%s resolved to %s", action.ID, action.State)
	return action.State
}

// applyOutcomes writes executor.Outcome results back onto the matching
// Transactions within action by id.
func applyOutcomes(action *domain.Action, outcomes []executor.Outcome) {
	byID := make(map[string]domain.State, len(outcomes))
	for _, o := range outcomes {
		byID[o.Transaction.ID] = o.State
	}
	for i := range action.Intents {
		for j := range action.Intents[i].Transactions {
			tx := &action.Intents[i].Transactions[j]
			if s, ok := byID[tx.ID]; ok {
				tx.State = s
			}
		}
	}
}
