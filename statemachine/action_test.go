package statemachine

import (
	"context"
	"testing"
	"time"

	"github.com/CashierHQ/cashier-sub000/candid"
	"github.com/CashierHQ/cashier-sub000/domain"
	"github.com/CashierHQ/cashier-sub000/executor"
	"github.com/CashierHQ/cashier-sub000/icrc112"
	"github.com/CashierHQ/cashier-sub000/ledger"
	"github.com/CashierHQ/cashier-sub000/validator"
	"github.com/stretchr/testify/require"
)

func newHarness() (*Action, *ledger.Fake) {
	fake := ledger.NewFake()
	v := validator.New(fake)
	e := executor.New(fake, v)
	b := icrc112.New(candid.JSONEncoder{}, time.Now, nil)
	return NewAction(NewLink(), b, v, e), fake
}

// noCanisterItems stands in for service.Service's runnableCanisterItems in
// tests that only exercise the wallet-outcome resolution half of UpdateAction.
func noCanisterItems(*domain.Action) []executor.BatchItem { return nil }

func TestAuthorizeCreateCreatorOnlyOps(t *testing.T) {
	link := &domain.Link{Creator: "alice"}
	require.NoError(t, AuthorizeCreate(link, domain.ActionTypeCreateLink, "alice"))
	require.Error(t, AuthorizeCreate(link, domain.ActionTypeCreateLink, "bob"))
	require.NoError(t, AuthorizeCreate(link, domain.ActionTypeUse, "bob"))
}

func TestAuthorizeCreateAnonymousOnlyUse(t *testing.T) {
	link := &domain.Link{Creator: "alice"}
	anon := domain.AnonymousCreator("0xDEAD")
	require.NoError(t, AuthorizeCreate(link, domain.ActionTypeUse, anon))
	require.Error(t, AuthorizeCreate(link, domain.ActionTypeWithdraw, anon))
}

func TestCreateActionRejectsDuplicate(t *testing.T) {
	a, _ := newHarness()
	link := &domain.Link{ID: "link-1", Creator: "alice", State: domain.LinkStateCreateLink}
	_, err := a.CreateAction(link, domain.ActionTypeCreateLink, "alice", nil, true)
	require.Error(t, err)
}

func TestCreateActionRejectsWrongLinkState(t *testing.T) {
	a, _ := newHarness()
	link := &domain.Link{ID: "link-1", Creator: "alice", State: domain.LinkStateActive}
	_, err := a.CreateAction(link, domain.ActionTypeCreateLink, "alice", nil, false)
	require.Error(t, err)
}

func TestProcessActionWithNoWalletLegResolvesImmediately(t *testing.T) {
	a, fake := newHarness()
	fake.SetBalance(domain.Asset{LedgerPrincipal: "icp"}, "link-sub", 1_000_000)

	tx := domain.Transaction{ID: "tx1", FromCallType: domain.CallTypeCanister, Protocol: domain.ProtocolIcrc1Transfer, State: domain.StateCreated, CreatedAtTime: time.Now()}
	intent := domain.Intent{ID: "intent1", Transactions: []domain.Transaction{tx}, Payload: domain.IntentPayload{From: "link-sub", To: "consumer", Asset: domain.Asset{LedgerPrincipal: "icp"}, Amount: 1000, LedgerFee: 10}}
	action := &domain.Action{ID: "action1", State: domain.StateCreated, Intents: []domain.Intent{intent}}

	items := []executor.BatchItem{{Tx: &action.Intents[0].Transactions[0], Intent: &action.Intents[0]}}
	result, err := a.ProcessAction(context.Background(), action, func(string) domain.Asset { return domain.Asset{LedgerPrincipal: "icp"} }, "treasury", "link-sub", items)
	require.NoError(t, err)
	require.Equal(t, domain.StateSuccess, result.State)
	require.Equal(t, domain.StateSuccess, action.State)
}

func TestProcessActionWithWalletLegStaysProcessing(t *testing.T) {
	a, _ := newHarness()
	tx := domain.Transaction{ID: "tx1", FromCallType: domain.CallTypeWallet, Protocol: domain.ProtocolIcrc1Transfer, State: domain.StateCreated, CreatedAtTime: time.Now()}
	intent := domain.Intent{ID: "intent1", Transactions: []domain.Transaction{tx}}
	action := &domain.Action{ID: "action1", State: domain.StateCreated, Intents: []domain.Intent{intent}}

	result, err := a.ProcessAction(context.Background(), action, func(string) domain.Asset { return domain.Asset{LedgerPrincipal: "icp"} }, "treasury", "link-sub", nil)
	require.NoError(t, err)
	require.Len(t, result.Groups, 1)
	require.Equal(t, domain.StateProcessing, action.State)
}

func TestUpdateActionResolvesFromWalletOutcomes(t *testing.T) {
	a, fake := newHarness()
	asset := domain.Asset{LedgerPrincipal: "icp"}
	fake.SetBalance(asset, "link-sub", 1000)

	tx := domain.Transaction{ID: "tx1", FromCallType: domain.CallTypeWallet, Protocol: domain.ProtocolIcrc1Transfer, State: domain.StateProcessing, CreatedAtTime: time.Now()}
	intent := domain.Intent{ID: "intent1", State: domain.StateProcessing, Transactions: []domain.Transaction{tx},
		Payload: domain.IntentPayload{To: "link-sub", Asset: asset, Amount: 1000}}
	action := &domain.Action{ID: "action1", State: domain.StateProcessing, Intents: []domain.Intent{intent}}

	result := a.UpdateAction(context.Background(), action, map[string]bool{"tx1": true}, noCanisterItems)
	require.Equal(t, domain.StateSuccess, result.State)
}

// TestUpdateActionDoesNotTrustUnconfirmedWalletClaim proves a claimed
// success is rejected when the ledger balance doesn't back it: the
// Validator, not the client-reported outcome, decides.
func TestUpdateActionDoesNotTrustUnconfirmedWalletClaim(t *testing.T) {
	a, _ := newHarness() // no balance seeded: ledger never confirms the deposit
	asset := domain.Asset{LedgerPrincipal: "icp"}

	tx := domain.Transaction{ID: "tx1", FromCallType: domain.CallTypeWallet, Protocol: domain.ProtocolIcrc1Transfer, State: domain.StateProcessing, CreatedAtTime: time.Now()}
	intent := domain.Intent{ID: "intent1", State: domain.StateProcessing, Transactions: []domain.Transaction{tx},
		Payload: domain.IntentPayload{To: "link-sub", Asset: asset, Amount: 1000}}
	action := &domain.Action{ID: "action1", State: domain.StateProcessing, Intents: []domain.Intent{intent}}

	result := a.UpdateAction(context.Background(), action, map[string]bool{"tx1": true}, noCanisterItems)
	require.Equal(t, domain.StateProcessing, result.State, "an unconfirmed claim with no sibling evidence stays Processing, not Success")
}

func TestUpdateActionPartialFailureKeepsOtherSuccess(t *testing.T) {
	a, fake := newHarness()
	icpAsset := domain.Asset{LedgerPrincipal: "icp"}
	ckbtcAsset := domain.Asset{LedgerPrincipal: "ckbtc"}
	fake.SetBalance(icpAsset, "link-sub-icp", 1000) // only the ICP deposit is confirmed on-ledger

	icp := domain.Transaction{ID: "tx-icp", FromCallType: domain.CallTypeWallet, Protocol: domain.ProtocolIcrc1Transfer, State: domain.StateProcessing, CreatedAtTime: time.Now()}
	ckbtc := domain.Transaction{ID: "tx-ckbtc", FromCallType: domain.CallTypeWallet, Protocol: domain.ProtocolIcrc1Transfer, State: domain.StateProcessing, CreatedAtTime: time.Now()}
	intentICP := domain.Intent{ID: "i-icp", State: domain.StateProcessing, Transactions: []domain.Transaction{icp},
		Payload: domain.IntentPayload{To: "link-sub-icp", Asset: icpAsset, Amount: 1000}}
	intentCkbtc := domain.Intent{ID: "i-ckbtc", State: domain.StateProcessing, Transactions: []domain.Transaction{ckbtc},
		Payload: domain.IntentPayload{To: "link-sub-ckbtc", Asset: ckbtcAsset, Amount: 1000}}
	action := &domain.Action{ID: "action1", State: domain.StateProcessing, Intents: []domain.Intent{intentICP, intentCkbtc}}

	result := a.UpdateAction(context.Background(), action, map[string]bool{"tx-icp": true, "tx-ckbtc": false}, noCanisterItems)
	require.Equal(t, domain.StateFail, result.State)
	require.Equal(t, domain.StateSuccess, action.Intents[0].State)
	require.Equal(t, domain.StateFail, action.Intents[1].State)
}
