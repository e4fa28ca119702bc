package service

import (
	"context"

	"github.com/CashierHQ/cashier-sub000/assembler"
	"github.com/CashierHQ/cashier-sub000/cashiererr"
	"github.com/CashierHQ/cashier-sub000/domain"
	"github.com/CashierHQ/cashier-sub000/executor"
	"github.com/CashierHQ/cashier-sub000/icrc112"
	"github.com/CashierHQ/cashier-sub000/requestlock"
	"github.com/CashierHQ/cashier-sub000/supervisor"
)

// ResolveCaller implements spec.md §4.8's caller-identifier rule: an
// authenticated caller is identified by userID as-is; an anonymous
// caller (no prior wallet-linking) is identified by
// domain.AnonymousCreator(wallet), spec.md's `ANON#<wallet>` form.
func (s *Service) ResolveCaller(ctx context.Context, wallet string) (string, error) {
	userID, ok, err := s.db.UserWallets().UserIDFor(wallet)
	if err != nil {
		return "", err
	}
	if ok {
		return userID, nil
	}
	return domain.AnonymousCreator(wallet), nil
}

// treasury and linkSubAccount resolve the two fixed ledger accounts the
// Assembler and Executor need: the configured treasury principal, and
// the link's own custodial sub-account (domain.Link.SubAccount).
func (s *Service) treasury() domain.Principal { return domain.Principal(s.cfg.TreasuryPrincipal) }
func (s *Service) linkSubAccount(link *domain.Link) domain.Principal {
	return link.SubAccount(domain.Principal(s.cfg.ServicePrincipal))
}

// assembleInput builds an assembler.Input for link/caller at the current
// instant, carrying the configured fees and fixed accounts.
func (s *Service) assembleInput(link *domain.Link, caller domain.Principal) assembler.Input {
	return assembler.Input{
		Link:           link,
		Caller:         caller,
		CreatedAt:      s.now(),
		LedgerFee:      s.cfg.LedgerFee,
		CreateLinkFee:  s.cfg.CreateLinkFee,
		Treasury:       s.treasury(),
		LinkSubAccount: s.linkSubAccount(link),
	}
}

// hasUncompleted implements spec.md §3 invariant 6: at most one Action
// in a non-terminal state per (link_id, action_type, user_id).
func (s *Service) hasUncompleted(linkID string, actionType domain.ActionType, userID string) (bool, error) {
	rows, err := s.db.LinkActions().ByPrefix(linkID, actionType, userID)
	if err != nil {
		return false, err
	}
	for _, row := range rows {
		action, err := s.db.Actions().Get(row.ActionID)
		if err != nil {
			continue
		}
		if !action.State.Terminal() {
			return true, nil
		}
	}
	return false, nil
}

// CreateActionInput implements spec.md §6's CreateActionInput.
type CreateActionInput struct {
	LinkID     string
	ActionType domain.ActionType
	Caller     string // already resolved via ResolveCaller
}

// CreateAction implements spec.md §4.8's create_action entry point.
func (s *Service) CreateAction(ctx context.Context, in CreateActionInput) (*domain.Action, error) {
	if err := s.checkRateLimit(in.Caller, "create_action"); err != nil {
		return nil, err
	}

	var action *domain.Action
	err := s.withLock(requestlock.CreateActionKey(in.LinkID, in.Caller), func() error {
		link, err := s.db.Links().Get(in.LinkID)
		if err != nil {
			return err
		}
		uncompleted, err := s.hasUncompleted(in.LinkID, in.ActionType, in.Caller)
		if err != nil {
			return err
		}

		intents, err := s.assembler.Assemble(link.LinkType, in.ActionType, s.assembleInput(link, domain.Principal(in.Caller)))
		if err != nil {
			return err
		}

		action, err = s.actionSM.CreateAction(link, in.ActionType, in.Caller, intents, uncompleted)
		if err != nil {
			return err
		}
		if err := s.db.Actions().Put(action); err != nil {
			return err
		}
		if err := s.db.LinkActions().Put(&domain.LinkAction{
			LinkID: in.LinkID, ActionType: in.ActionType, UserID: in.Caller,
			ActionID: action.ID, State: domain.LinkUserStateChooseWallet,
		}); err != nil {
			return err
		}
		return s.db.UserLinks().Add(in.Caller, in.LinkID)
	})
	if err != nil {
		return nil, err
	}
	actionsTotal.WithLabelValues("create_action", action.State.String()).Inc()
	log.Infof("action=%s created link=%s type=%s caller=%s", action.ID, in.LinkID, in.ActionType, in.Caller)
	return action, nil
}

// ProcessResult is returned by ProcessAction.
type ProcessResult struct {
	Action *domain.Action
	Groups []icrc112.Group
}

// ProcessAction implements spec.md §4.8's process_action entry point.
func (s *Service) ProcessAction(ctx context.Context, linkID, actionID, caller string) (*ProcessResult, error) {
	if err := s.checkRateLimit(caller, "process_action"); err != nil {
		return nil, err
	}

	var result *ProcessResult
	err := s.withLock(requestlock.ProcessActionKey(caller, linkID, actionID), func() error {
		action, err := s.db.Actions().Get(actionID)
		if err != nil {
			return err
		}
		if action.Creator != caller {
			return cashiererr.Unauthorized("not_action_owner", "caller did not create this action")
		}
		link, err := s.db.Links().Get(linkID)
		if err != nil {
			return err
		}

		ledgerOf := s.ledgerOfFunc(action)
		items := s.runnableCanisterItems(action)

		procResult, err := s.actionSM.ProcessAction(ctx, action, ledgerOf, s.treasury(), s.linkSubAccount(link), items)
		if err != nil {
			return err
		}

		if len(procResult.Groups) > 0 {
			// Every wallet-side Transaction just handed to the wallet in
			// an ICRC-112 group is now in flight: mark it Processing and
			// arm a timeout, so the Timeout Supervisor can reclaim it
			// even if the wallet never replies (spec.md §4.10).
			s.armScheduledWalletTxs(action)
		}

		if err := s.db.Actions().Put(action); err != nil {
			return err
		}
		if procResult.State.Terminal() {
			if err := s.finalizeResolvedAction(action); err != nil {
				return err
			}
		}
		result = &ProcessResult{Action: action, Groups: procResult.Groups}
		return nil
	})
	if err == nil {
		actionsTotal.WithLabelValues("process_action", result.Action.State.String()).Inc()
	}
	return result, err
}

// UpdateActionInput implements spec.md §6's UpdateActionInput:
// WalletOutcomes maps a wallet Transaction id to whether the wallet
// (via icrc114_validate) confirmed it landed.
type UpdateActionInput struct {
	LinkID         string
	ActionID       string
	Caller         string
	WalletOutcomes map[string]bool
}

// UpdateAction implements spec.md §4.8's update_action entry point.
func (s *Service) UpdateAction(ctx context.Context, in UpdateActionInput) (*domain.Action, error) {
	if err := s.checkRateLimit(in.Caller, "update_action"); err != nil {
		return nil, err
	}

	var action *domain.Action
	err := s.withLock(requestlock.UpdateActionKey(in.Caller, in.LinkID, in.ActionID), func() error {
		var err error
		action, err = s.db.Actions().Get(in.ActionID)
		if err != nil {
			return err
		}
		if action.Creator != in.Caller {
			return cashiererr.Unauthorized("not_action_owner", "caller did not create this action")
		}

		// Disarm the Timeout Supervisor for every wallet Transaction the
		// caller is reporting an outcome for, before the Validator gets a
		// chance to resolve it below.
		for i := range action.Intents {
			intent := &action.Intents[i]
			for j := range intent.Transactions {
				tx := &intent.Transactions[j]
				if _, known := in.WalletOutcomes[tx.ID]; known && tx.FromCallType == domain.CallTypeWallet {
					s.supervisor.Disarm(tx.ID)
				}
			}
		}

		result := s.actionSM.UpdateAction(ctx, action, in.WalletOutcomes, s.runnableCanisterItems)
		if err := s.db.Actions().Put(action); err != nil {
			return err
		}
		if result.State.Terminal() {
			return s.finalizeResolvedAction(action)
		}
		return nil
	})
	if err == nil {
		actionsTotal.WithLabelValues("update_action", action.State.String()).Inc()
	}
	return action, err
}

// armScheduledWalletTxs transitions every wallet Transaction the Builder
// just scheduled (Created or a retried Fail) to Processing and arms a
// Timeout Supervisor timer for it, so a wallet that never replies is
// reclaimed after cfg.TxTimeout instead of leaving the Action stuck.
func (s *Service) armScheduledWalletTxs(action *domain.Action) {
	for i := range action.Intents {
		intent := &action.Intents[i]
		for j := range intent.Transactions {
			tx := &intent.Transactions[j]
			if tx.FromCallType != domain.CallTypeWallet {
				continue
			}
			if tx.State != domain.StateCreated && tx.State != domain.StateFail {
				continue
			}
			tx.State = domain.StateProcessing
			s.supervisor.Arm(supervisor.Watched{
				ActionID: action.ID, IntentID: intent.ID, TransactionID: tx.ID,
				CreatedAtTime: tx.CreatedAtTime,
			})
		}
	}
}

// ledgerOfFunc adapts an Action's Intents into the icrc112.LedgerResolver
// the Builder needs: it has no ledger knowledge of its own.
func (s *Service) ledgerOfFunc(action *domain.Action) func(intentID string) domain.Asset {
	byID := make(map[string]domain.Asset, len(action.Intents))
	for _, intent := range action.Intents {
		byID[intent.ID] = intent.Payload.Asset
	}
	return func(intentID string) domain.Asset { return byID[intentID] }
}

// runnableCanisterItems collects every canister-side Transaction still
// Created whose DependsOn (if any) has already resolved Success,
// building the executor.BatchItem the state machine dispatches this
// call. Called once from ProcessAction (where only dependency-free
// canister Transactions — Receive/Withdraw's direct link transfer —
// can possibly qualify) and again from UpdateAction after wallet
// outcomes are applied (unblocking the CreateLink fee's transfer_from).
func (s *Service) runnableCanisterItems(action *domain.Action) []executor.BatchItem {
	stateByID := make(map[string]domain.State)
	for _, intent := range action.Intents {
		for _, t := range intent.Transactions {
			stateByID[t.ID] = t.State
		}
	}

	var items []executor.BatchItem
	for i := range action.Intents {
		intent := &action.Intents[i]
		for j := range intent.Transactions {
			tx := &intent.Transactions[j]
			if tx.FromCallType != domain.CallTypeCanister || tx.State != domain.StateCreated {
				continue
			}
			if tx.DependsOn != "" && stateByID[tx.DependsOn] != domain.StateSuccess {
				continue
			}
			items = append(items, executor.BatchItem{
				Tx:         tx,
				Intent:     intent,
				IsFee:      tx.Protocol == domain.ProtocolIcrc2TransferFrom,
				IsWithdraw: action.Type == domain.ActionTypeWithdraw,
				Spender:    s.treasury(),
			})
		}
	}
	return items
}

// TriggerTransaction implements spec.md §5/§69's trigger_transaction
// entry point: execute one specific canister-side Transaction on
// demand, guarded by its own per-Transaction lock (spec.md §4.2) so
// concurrent wallet-side retries race for a single winner instead of
// double-executing it.
func (s *Service) TriggerTransaction(ctx context.Context, transactionID, caller string) (*domain.Action, error) {
	var action *domain.Action
	err := s.withLock(requestlock.TriggerTransactionKey(transactionID), func() error {
		actionID, err := s.db.Actions().ActionIDForTransaction(transactionID)
		if err != nil {
			return err
		}
		action, err = s.db.Actions().Get(actionID)
		if err != nil {
			return err
		}
		if action.Creator != caller {
			return cashiererr.Unauthorized("not_action_owner", "caller did not create this action")
		}

		item, ok := findRunnableItem(s.runnableCanisterItems(action), transactionID)
		if !ok {
			return cashiererr.Validation("transaction_not_runnable",
				"transaction %s is not a pending canister-side transaction with its dependency resolved", transactionID)
		}

		result := s.actionSM.TriggerTransaction(ctx, action, item)
		if err := s.db.Actions().Put(action); err != nil {
			return err
		}
		if result.State.Terminal() {
			return s.finalizeResolvedAction(action)
		}
		return nil
	})
	if err == nil {
		actionsTotal.WithLabelValues("trigger_transaction", action.State.String()).Inc()
	}
	return action, err
}

// findRunnableItem picks the single executor.BatchItem matching
// transactionID out of items, if present.
func findRunnableItem(items []executor.BatchItem, transactionID string) (executor.BatchItem, bool) {
	for _, item := range items {
		if item.Tx.ID == transactionID {
			return item, true
		}
	}
	return executor.BatchItem{}, false
}

// finalizeResolvedAction implements the rest of spec.md §4.8's
// update_action/process_action contract once an Action reaches a
// terminal state: run the Accountant (spec.md §4.7), advance the Link
// and LinkAction state machines (spec.md §4.9, SPEC_FULL.md §C.1), and
// persist both.
func (s *Service) finalizeResolvedAction(action *domain.Action) error {
	link, err := s.db.Links().Get(action.LinkID)
	if err != nil {
		return err
	}

	s.accountant.Settle(link, action.Type, action.Intents)
	s.linkSM.OnActionResolved(link, action.Type, action.State)
	if err := s.db.Links().Put(link); err != nil {
		return err
	}

	rows, err := s.db.LinkActions().ByPrefix(action.LinkID, action.Type, action.Creator)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if row.ActionID != action.ID {
			continue
		}
		la := row
		s.linkActSM.OnActionResolved(&la, action.State, link.Saturated())
		if err := s.db.LinkActions().Put(&la); err != nil {
			return err
		}
		break
	}

	for i := range action.Intents {
		for j := range action.Intents[i].Transactions {
			s.supervisor.Disarm(action.Intents[i].Transactions[j].ID)
		}
	}
	return nil
}
