// Package accountant implements the partial-success accounting of
// spec.md §4.7: after an Action resolves, each affected AssetInfo's
// amount_available is updated independently of whether sibling Intents
// for other assets succeeded or failed.
package accountant

import (
	"github.com/CashierHQ/cashier-sub000/build"
	"github.com/CashierHQ/cashier-sub000/domain"
)

var log = build.NewSubLogger(build.SubsystemAccountant)

// Accountant applies per-asset balance updates to a Link after an
// Action resolves.
type Accountant struct{}

func New() *Accountant { return &Accountant{} }

// Settle updates link.AssetInfos and link.LinkUseActionCounter for a
// resolved action of actionType, per spec.md §4.7's rules. It must be
// called exactly once per resolved Action, after
// statemachine.Action.Resolve has set each Intent's final State.
//
// Decided open question (spec.md §9, SPEC_FULL.md §9): the use counter
// increments once per Action "on any asset success", not only on full
// success.
func (a *Accountant) Settle(link *domain.Link, actionType domain.ActionType, intents []domain.Intent) {
	switch actionType {
	case domain.ActionTypeCreateLink:
		a.settleCreateLink(link, intents)
	case domain.ActionTypeUse:
		a.settleUse(link, intents)
	case domain.ActionTypeWithdraw:
		a.settleWithdraw(link, intents)
	}
}

// settleCreateLink implements spec.md §4.7's "partial CreateLink" rule:
// successful W->L deposit Intents raise amount_available for their
// asset; failed ones leave it at 0 (a retry re-executes only the failed
// Transactions, which is why amount_available is never lowered here).
func (a *Accountant) settleCreateLink(link *domain.Link, intents []domain.Intent) {
	for _, intent := range intents {
		if intent.Task != domain.TaskTransferWalletToLink {
			continue
		}
		info := link.AssetInfoFor(intent.Payload.Asset.LedgerPrincipal)
		if info == nil {
			continue
		}
		if intent.State == domain.StateSuccess {
			info.AmountAvailable += netOfFees(intent)
			log.Debugf("createlink deposit settled asset=%s amount_available=%d", info.Asset.LedgerPrincipal, info.AmountAvailable)
		}
		// Fail: leave AmountAvailable untouched (spec.md §4.7).
	}
}

// settleUse implements spec.md §4.7's Receive/Send rules: a successful
// Receive of asset A decrements amount_available[A] by
// amount_per_link_use_action[A]; a failed Receive leaves it unchanged.
// The use counter increments once per Action when at least one asset
// succeeded.
func (a *Accountant) settleUse(link *domain.Link, intents []domain.Intent) {
	anySuccess := false
	for _, intent := range intents {
		if intent.Task != domain.TaskTransferLinkToWallet && intent.Task != domain.TaskTransferWalletToLink {
			continue
		}
		info := link.AssetInfoFor(intent.Payload.Asset.LedgerPrincipal)
		if info == nil {
			continue
		}
		if intent.State != domain.StateSuccess {
			continue
		}
		anySuccess = true
		switch intent.Task {
		case domain.TaskTransferLinkToWallet:
			if info.AmountAvailable >= info.AmountPerLinkUseAction {
				info.AmountAvailable -= info.AmountPerLinkUseAction
			} else {
				info.AmountAvailable = 0
			}
		case domain.TaskTransferWalletToLink:
			// ReceivePayment's "Send": the sender funds the link,
			// raising availability for a later creator Withdraw.
			info.AmountAvailable += netOfFees(intent)
		}
	}
	if anySuccess {
		link.LinkUseActionCounter++
		log.Debugf("link=%s use counter incremented to %d", link.ID, link.LinkUseActionCounter)
	}
}

// settleWithdraw implements spec.md §4.7's Withdraw rule: successful
// L->Wallet transfers zero the corresponding amount_available; failed
// ones keep their prior value.
func (a *Accountant) settleWithdraw(link *domain.Link, intents []domain.Intent) {
	for _, intent := range intents {
		if intent.Task != domain.TaskTransferLinkToWallet {
			continue
		}
		info := link.AssetInfoFor(intent.Payload.Asset.LedgerPrincipal)
		if info == nil {
			continue
		}
		if intent.State == domain.StateSuccess {
			info.AmountAvailable = 0
		}
	}
}

// netOfFees is a no-op placeholder making explicit that a W->L deposit's
// Intent.Payload.Amount already includes the pre-funded per-use ledger
// fees (assembler.walletToLinkIntent); amount_available tracks the
// amount actually deposited, fees included, since they are spent back
// out one per future use.
func netOfFees(intent domain.Intent) uint64 {
	return intent.Payload.Amount
}
