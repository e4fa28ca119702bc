// Package assembler maps (link_type, action_type) to a graph of Intents
// and Transactions (spec.md §4.6), table-driven per SPEC_FULL.md §4.6
// (one lookup table, never an interface hierarchy per link/action type).
package assembler

import (
	"time"

	"github.com/CashierHQ/cashier-sub000/cashiererr"
	"github.com/CashierHQ/cashier-sub000/domain"
)

// Input is everything a buildFunc needs to produce an Action's Intent
// graph for one (link_type, action_type) pair.
type Input struct {
	Link      *domain.Link
	Caller    domain.Principal // the wallet principal of whoever is invoking this action
	CreatedAt time.Time
	LedgerFee uint64 // per-transfer ledger fee, same across assets in this port
	CreateLinkFee uint64
	Treasury  domain.Principal
	LinkSubAccount domain.Principal
}

type key struct {
	linkType   domain.LinkType
	actionType domain.ActionType
}

type buildFunc func(in Input) ([]domain.Intent, error)

// Assembler holds the (link_type, action_type) -> buildFunc table.
type Assembler struct {
	table map[key]buildFunc
}

// New builds the assembler with every mapping from spec.md §4.6's table.
func New() *Assembler {
	a := &Assembler{table: make(map[key]buildFunc)}
	a.table[key{domain.LinkTypeSendTip, domain.ActionTypeCreateLink}] = sendTipCreateLink
	a.table[key{domain.LinkTypeSendTip, domain.ActionTypeUse}] = sendTipUse
	a.table[key{domain.LinkTypeSendTip, domain.ActionTypeWithdraw}] = sendTipWithdraw
	a.table[key{domain.LinkTypeSendAirdrop, domain.ActionTypeCreateLink}] = basketCreateLink
	a.table[key{domain.LinkTypeSendAirdrop, domain.ActionTypeUse}] = basketReceive
	a.table[key{domain.LinkTypeSendTokenBasket, domain.ActionTypeCreateLink}] = basketCreateLink
	a.table[key{domain.LinkTypeSendTokenBasket, domain.ActionTypeUse}] = basketReceive
	a.table[key{domain.LinkTypeReceivePayment, domain.ActionTypeCreateLink}] = receivePaymentCreateLink
	a.table[key{domain.LinkTypeReceivePayment, domain.ActionTypeUse}] = receivePaymentSend
	a.table[key{domain.LinkTypeReceivePayment, domain.ActionTypeWithdraw}] = receivePaymentWithdraw
	return a
}

// Assemble produces the Intent/Transaction graph for (linkType,
// actionType). A missing table entry is a HandleLogicError: spec.md §7
// names exactly this case ("missing intent template for a (link_type,
// action_type) pair") as the canonical internal-inconsistency bug.
func (a *Assembler) Assemble(linkType domain.LinkType, actionType domain.ActionType, in Input) ([]domain.Intent, error) {
	fn, ok := a.table[key{linkType, actionType}]
	if !ok {
		return nil, cashiererr.HandleLogic("missing_intent_template",
			"no intent template for link_type=%s action_type=%s", linkType, actionType)
	}
	return fn(in)
}

func newTransferTx(callType domain.CallType, protocol domain.Protocol, now time.Time, dependsOn string) domain.Transaction {
	return domain.Transaction{
		ID:            domain.NewID(),
		FromCallType:  callType,
		Protocol:      protocol,
		State:         domain.StateCreated,
		CreatedAtTime: now,
		DependsOn:     dependsOn,
	}
}

func newIntent(label string, itype domain.IntentType, task domain.IntentTask, payload domain.IntentPayload, txs ...domain.Transaction) domain.Intent {
	return domain.Intent{
		ID:           domain.NewID(),
		Type:         itype,
		Task:         task,
		Label:        label,
		Payload:      payload,
		State:        domain.StateCreated,
		Transactions: txs,
	}
}

// feeIntent builds the shared "approve then transfer_from" treasury fee
// leg every CreateLink action carries (spec.md §4.6: "plus one FEE ·
// W->Treasury · TransferFrom"). The approve amount is CREATE_LINK_FEE +
// ledger_fee (one approve, one transfer_from), per spec.md §4.6.
func feeIntent(in Input) domain.Intent {
	approveTx := newTransferTx(domain.CallTypeWallet, domain.ProtocolIcrc2Approve, in.CreatedAt, "")
	transferFromTx := newTransferTx(domain.CallTypeCanister, domain.ProtocolIcrc2TransferFrom, in.CreatedAt, approveTx.ID)

	payload := domain.IntentPayload{
		From:          in.Caller,
		To:            in.Treasury,
		Asset:         domain.Asset{LedgerPrincipal: "icp-ledger", Symbol: "ICP"},
		Amount:        in.CreateLinkFee,
		ApproveAmount: in.CreateLinkFee + in.LedgerFee,
		LedgerFee:     in.LedgerFee,
	}
	return newIntent("FEE", domain.IntentTypeTransferFrom, domain.TaskTransferWalletToTreasury, payload, approveTx, transferFromTx)
}

// walletToLinkIntent builds a W->L deposit leg for one asset at
// CreateLink time. The amount pre-funds maxCount future L->Wallet
// transfers' fees, per spec.md §4.6: amount_per_link_use_action ×
// max_use_count + ledger_fee × max_use_count.
func walletToLinkIntent(label string, in Input, info domain.AssetInfo, maxCount uint64) domain.Intent {
	tx := newTransferTx(domain.CallTypeWallet, domain.ProtocolIcrc1Transfer, in.CreatedAt, "")
	amount := info.AmountPerLinkUseAction*maxCount + in.LedgerFee*maxCount
	payload := domain.IntentPayload{
		From:      in.Caller,
		To:        in.LinkSubAccount,
		Asset:     info.Asset,
		Amount:    amount,
		LedgerFee: in.LedgerFee,
	}
	return newIntent(label, domain.IntentTypeTransfer, domain.TaskTransferWalletToLink, payload, tx)
}

// linkToWalletIntent builds an L->Wallet canister-side transfer, used by
// Receive (to the consumer) and Withdraw (to the creator). It has no
// wallet-side Transaction, so the ICRC-112 builder never schedules it;
// the executor precondition is "the Action has reached Processing",
// expressed outside the Transaction graph per spec.md §4.6.
func linkToWalletIntent(label string, from, to domain.Principal, asset domain.Asset, amount, fee uint64, now time.Time) domain.Intent {
	tx := newTransferTx(domain.CallTypeCanister, domain.ProtocolIcrc1Transfer, now, "")
	payload := domain.IntentPayload{From: from, To: to, Asset: asset, Amount: amount, LedgerFee: fee}
	return newIntent(label, domain.IntentTypeTransfer, domain.TaskTransferLinkToWallet, payload, tx)
}

func sendTipCreateLink(in Input) ([]domain.Intent, error) {
	if len(in.Link.AssetInfos) != 1 {
		return nil, cashiererr.HandleLogic("send_tip_asset_count", "SendTip requires exactly one asset")
	}
	info := in.Link.AssetInfos[0]
	deposit := walletToLinkIntent("SEND_TIP_ASSET", in, info, in.Link.LinkUseActionMaxCount)
	return []domain.Intent{deposit, feeIntent(in)}, nil
}

func sendTipUse(in Input) ([]domain.Intent, error) {
	info := in.Link.AssetInfos[0]
	return []domain.Intent{
		linkToWalletIntent("SEND_TIP_ASSET", in.LinkSubAccount, in.Caller, info.Asset,
			info.AmountPerLinkUseAction, in.LedgerFee, in.CreatedAt),
	}, nil
}

func sendTipWithdraw(in Input) ([]domain.Intent, error) {
	info := in.Link.AssetInfos[0]
	// Withdraw transfers the link balance minus one ledger fee, per
	// spec.md §4.6/§9: the ledger balance is authoritative, so the
	// executor resolves the precise amount at execution time; here we
	// schedule the Intent with the caller's best current estimate.
	amount := info.AmountAvailable
	if amount > 0 {
		amount -= in.LedgerFee
	}
	return []domain.Intent{
		linkToWalletIntent("SEND_TIP_ASSET", in.LinkSubAccount, domain.Principal(in.Link.Creator), info.Asset,
			amount, in.LedgerFee, in.CreatedAt),
	}, nil
}

func basketCreateLink(in Input) ([]domain.Intent, error) {
	intents := make([]domain.Intent, 0, len(in.Link.AssetInfos)+1)
	for _, info := range in.Link.AssetInfos {
		intents = append(intents, walletToLinkIntent(info.Label, in, info, in.Link.LinkUseActionMaxCount))
	}
	intents = append(intents, feeIntent(in))
	return intents, nil
}

func basketReceive(in Input) ([]domain.Intent, error) {
	intents := make([]domain.Intent, 0, len(in.Link.AssetInfos))
	for _, info := range in.Link.AssetInfos {
		intents = append(intents, linkToWalletIntent(info.Label, in.LinkSubAccount, in.Caller, info.Asset,
			info.AmountPerLinkUseAction, in.LedgerFee, in.CreatedAt))
	}
	return intents, nil
}

func receivePaymentCreateLink(in Input) ([]domain.Intent, error) {
	// No asset deposit: the creator only pays the creation fee.
	return []domain.Intent{feeIntent(in)}, nil
}

func receivePaymentSend(in Input) ([]domain.Intent, error) {
	intents := make([]domain.Intent, 0, len(in.Link.AssetInfos))
	for _, info := range in.Link.AssetInfos {
		tx := newTransferTx(domain.CallTypeWallet, domain.ProtocolIcrc1Transfer, in.CreatedAt, "")
		payload := domain.IntentPayload{
			From: in.Caller, To: in.LinkSubAccount, Asset: info.Asset,
			Amount: info.AmountPerLinkUseAction, LedgerFee: in.LedgerFee,
		}
		intents = append(intents, newIntent(info.Label, domain.IntentTypeTransfer, domain.TaskTransferWalletToLink, payload, tx))
	}
	return intents, nil
}

func receivePaymentWithdraw(in Input) ([]domain.Intent, error) {
	intents := make([]domain.Intent, 0, len(in.Link.AssetInfos))
	for _, info := range in.Link.AssetInfos {
		amount := info.AmountAvailable
		if amount > 0 {
			amount -= in.LedgerFee
		}
		intents = append(intents, linkToWalletIntent(info.Label, in.LinkSubAccount, domain.Principal(in.Link.Creator), info.Asset,
			amount, in.LedgerFee, in.CreatedAt))
	}
	return intents, nil
}
