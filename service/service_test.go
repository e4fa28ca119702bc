package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/CashierHQ/cashier-sub000/candid"
	"github.com/CashierHQ/cashier-sub000/cashiererr"
	"github.com/CashierHQ/cashier-sub000/config"
	"github.com/CashierHQ/cashier-sub000/domain"
	"github.com/CashierHQ/cashier-sub000/ledger"
	"github.com/CashierHQ/cashier-sub000/requestlock"
	"github.com/CashierHQ/cashier-sub000/storage"
)

var icp = domain.Asset{LedgerPrincipal: "icp-ledger", Symbol: "ICP"}

func newTestService(t *testing.T) (*Service, *ledger.Fake) {
	t.Helper()
	cfg := config.Default()
	cfg.TreasuryPrincipal = "treasury"
	cfg.ServicePrincipal = "cashier-service"

	db, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	fake := ledger.NewFake()
	svc := New(cfg, db, fake, candid.JSONEncoder{})
	return svc, fake
}

func TestCreateLinkCreatesInChooseLinkType(t *testing.T) {
	svc, _ := newTestService(t)
	link, err := svc.CreateLink(context.Background(), CreateLinkInput{
		Creator: "alice", LinkType: domain.LinkTypeSendTip,
		Title: "tip", MaxUseCount: 1,
		AssetInfos: []domain.AssetInfo{{Asset: icp, Label: "ICP", AmountPerLinkUseAction: 1000}},
	})
	require.NoError(t, err)
	require.Equal(t, domain.LinkStateChooseLinkType, link.State)

	links, err := svc.UserGetLinks(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, links, 1)
}

func TestCreateActionRejectsDuplicateUncompleted(t *testing.T) {
	svc, _ := newTestService(t)
	link, err := svc.CreateLink(context.Background(), CreateLinkInput{
		Creator: "alice", LinkType: domain.LinkTypeSendTip, MaxUseCount: 1,
		AssetInfos: []domain.AssetInfo{{Asset: icp, AmountPerLinkUseAction: 1000}},
	})
	require.NoError(t, err)

	_, err = svc.CreateAction(context.Background(), CreateActionInput{
		LinkID: link.ID, ActionType: domain.ActionTypeCreateLink, Caller: "alice",
	})
	require.NoError(t, err)

	_, err = svc.CreateAction(context.Background(), CreateActionInput{
		LinkID: link.ID, ActionType: domain.ActionTypeCreateLink, Caller: "alice",
	})
	require.Error(t, err)
}

// TestSendTipCreateLinkFullLifecycle drives create_link -> create_action
// -> process_action -> update_action for a SendTip CreateLink action,
// simulating the wallet side (deposit transfer, fee approve) landing on
// the ledger out of band, exactly as a real wallet executing an
// ICRC-112 batch would.
func TestSendTipCreateLinkFullLifecycle(t *testing.T) {
	svc, fake := newTestService(t)
	ctx := context.Background()

	link, err := svc.CreateLink(ctx, CreateLinkInput{
		Creator: "alice", LinkType: domain.LinkTypeSendTip, MaxUseCount: 1,
		AssetInfos: []domain.AssetInfo{{Asset: icp, Label: "ICP", AmountPerLinkUseAction: 1000}},
	})
	require.NoError(t, err)

	title := "continue"
	_ = title
	link, err = svc.UpdateLink(ctx, UpdateLinkInput{LinkID: link.ID, Caller: "alice", Command: LinkCommandContinue})
	require.NoError(t, err)
	link, err = svc.UpdateLink(ctx, UpdateLinkInput{LinkID: link.ID, Caller: "alice", Command: LinkCommandContinue})
	require.NoError(t, err)
	require.Equal(t, domain.LinkStateCreateLink, link.State)

	action, err := svc.CreateAction(ctx, CreateActionInput{
		LinkID: link.ID, ActionType: domain.ActionTypeCreateLink, Caller: "alice",
	})
	require.NoError(t, err)

	procResult, err := svc.ProcessAction(ctx, link.ID, action.ID, "alice")
	require.NoError(t, err)
	require.NotEmpty(t, procResult.Groups)

	var depositTxID, approveTxID, transferFromTxID string
	for _, intent := range procResult.Action.Intents {
		for _, tx := range intent.Transactions {
			switch {
			case tx.Protocol == domain.ProtocolIcrc1Transfer && tx.FromCallType == domain.CallTypeWallet:
				depositTxID = tx.ID
			case tx.Protocol == domain.ProtocolIcrc2Approve:
				approveTxID = tx.ID
			case tx.Protocol == domain.ProtocolIcrc2TransferFrom:
				transferFromTxID = tx.ID
			}
		}
	}
	require.NotEmpty(t, depositTxID)
	require.NotEmpty(t, approveTxID)
	require.NotEmpty(t, transferFromTxID)

	// Simulate the wallet's on-ledger side effects: the deposit transfer
	// really lands in the link sub-account, and the approve really
	// grants the treasury an allowance.
	linkSub := link.SubAccount(domain.Principal("cashier-service"))
	fake.SetBalance(icp, linkSub, 1010)
	fake.SetBalance(icp, "alice", 20_000)
	require.NoError(t, fake.Approve(ctx, icp, "alice", "treasury", 10_000+10, 0, 0))

	updated, err := svc.UpdateAction(ctx, UpdateActionInput{
		LinkID: link.ID, ActionID: action.ID, Caller: "alice",
		WalletOutcomes: map[string]bool{depositTxID: true, approveTxID: true},
	})
	require.NoError(t, err)
	require.Equal(t, domain.StateSuccess, updated.State)

	gotLink, err := svc.GetLink(ctx, link.ID, GetLinkOptions{IncludeAssets: true})
	require.NoError(t, err)
	require.Equal(t, domain.LinkStateActive, gotLink.Link.State)
	require.Equal(t, uint64(1010), gotLink.Link.AssetInfoFor(icp.LedgerPrincipal).AmountAvailable)

	_ = transferFromTxID
}

// TestTriggerTransactionRefusesNonRunnableCanisterLeg drives create_link
// -> create_action -> process_action and checks that trigger_transaction
// refuses the CreateLink fee's transfer_from both before its approve has
// landed and after update_action has already run it.
func TestTriggerTransactionRefusesNonRunnableCanisterLeg(t *testing.T) {
	svc, fake := newTestService(t)
	ctx := context.Background()

	link, err := svc.CreateLink(ctx, CreateLinkInput{
		Creator: "alice", LinkType: domain.LinkTypeSendTip, MaxUseCount: 1,
		AssetInfos: []domain.AssetInfo{{Asset: icp, Label: "ICP", AmountPerLinkUseAction: 1000}},
	})
	require.NoError(t, err)
	link, err = svc.UpdateLink(ctx, UpdateLinkInput{LinkID: link.ID, Caller: "alice", Command: LinkCommandContinue})
	require.NoError(t, err)
	link, err = svc.UpdateLink(ctx, UpdateLinkInput{LinkID: link.ID, Caller: "alice", Command: LinkCommandContinue})
	require.NoError(t, err)

	action, err := svc.CreateAction(ctx, CreateActionInput{
		LinkID: link.ID, ActionType: domain.ActionTypeCreateLink, Caller: "alice",
	})
	require.NoError(t, err)

	procResult, err := svc.ProcessAction(ctx, link.ID, action.ID, "alice")
	require.NoError(t, err)

	var depositTxID, approveTxID, transferFromTxID string
	for _, intent := range procResult.Action.Intents {
		for _, tx := range intent.Transactions {
			switch {
			case tx.Protocol == domain.ProtocolIcrc1Transfer && tx.FromCallType == domain.CallTypeWallet:
				depositTxID = tx.ID
			case tx.Protocol == domain.ProtocolIcrc2Approve:
				approveTxID = tx.ID
			case tx.Protocol == domain.ProtocolIcrc2TransferFrom:
				transferFromTxID = tx.ID
			}
		}
	}
	require.NotEmpty(t, transferFromTxID)

	// The transfer_from depends on the approve; before the approve lands,
	// trigger_transaction must refuse to run it.
	_, err = svc.TriggerTransaction(ctx, transferFromTxID, "alice")
	require.Error(t, err)

	linkSub := link.SubAccount(domain.Principal("cashier-service"))
	fake.SetBalance(icp, linkSub, 1010)
	fake.SetBalance(icp, "alice", 20_000)
	require.NoError(t, fake.Approve(ctx, icp, "alice", "treasury", 10_000+10, 0, 0))

	updated, err := svc.UpdateAction(ctx, UpdateActionInput{
		LinkID: link.ID, ActionID: action.ID, Caller: "alice",
		WalletOutcomes: map[string]bool{depositTxID: true, approveTxID: true},
	})
	require.NoError(t, err)
	// update_action's own runnableCanisterItems call already picked up
	// the now-unblocked transfer_from, so the action is already terminal.
	require.Equal(t, domain.StateSuccess, updated.State)

	// A retry via trigger_transaction on the already-resolved transfer_from
	// finds nothing left to run.
	_, err = svc.TriggerTransaction(ctx, transferFromTxID, "alice")
	require.Error(t, err)
}

// TestTriggerTransactionRejectsNonOwner proves trigger_transaction
// enforces the same caller-is-creator rule as update_action.
func TestTriggerTransactionRejectsNonOwner(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	link, err := svc.CreateLink(ctx, CreateLinkInput{
		Creator: "alice", LinkType: domain.LinkTypeSendTip, MaxUseCount: 1,
		AssetInfos: []domain.AssetInfo{{Asset: icp, Label: "ICP", AmountPerLinkUseAction: 1000}},
	})
	require.NoError(t, err)
	link, err = svc.UpdateLink(ctx, UpdateLinkInput{LinkID: link.ID, Caller: "alice", Command: LinkCommandContinue})
	require.NoError(t, err)
	link, err = svc.UpdateLink(ctx, UpdateLinkInput{LinkID: link.ID, Caller: "alice", Command: LinkCommandContinue})
	require.NoError(t, err)

	action, err := svc.CreateAction(ctx, CreateActionInput{
		LinkID: link.ID, ActionType: domain.ActionTypeCreateLink, Caller: "alice",
	})
	require.NoError(t, err)
	procResult, err := svc.ProcessAction(ctx, link.ID, action.ID, "alice")
	require.NoError(t, err)

	var transferFromTxID string
	for _, intent := range procResult.Action.Intents {
		for _, tx := range intent.Transactions {
			if tx.Protocol == domain.ProtocolIcrc2TransferFrom {
				transferFromTxID = tx.ID
			}
		}
	}
	require.NotEmpty(t, transferFromTxID)

	_, err = svc.TriggerTransaction(ctx, transferFromTxID, "mallory")
	require.Error(t, err)
}

// TestTriggerTransactionRejectsConcurrentCaller mirrors the original
// canister's request_lock integration test: a second caller racing the
// same Transaction id while the first call still holds the lock gets
// KindRequestLockExists, never a second execution of the same
// Transaction.
func TestTriggerTransactionRejectsConcurrentCaller(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	link, err := svc.CreateLink(ctx, CreateLinkInput{
		Creator: "alice", LinkType: domain.LinkTypeSendTip, MaxUseCount: 1,
		AssetInfos: []domain.AssetInfo{{Asset: icp, Label: "ICP", AmountPerLinkUseAction: 1000}},
	})
	require.NoError(t, err)
	link, err = svc.UpdateLink(ctx, UpdateLinkInput{LinkID: link.ID, Caller: "alice", Command: LinkCommandContinue})
	require.NoError(t, err)
	link, err = svc.UpdateLink(ctx, UpdateLinkInput{LinkID: link.ID, Caller: "alice", Command: LinkCommandContinue})
	require.NoError(t, err)

	action, err := svc.CreateAction(ctx, CreateActionInput{
		LinkID: link.ID, ActionType: domain.ActionTypeCreateLink, Caller: "alice",
	})
	require.NoError(t, err)
	procResult, err := svc.ProcessAction(ctx, link.ID, action.ID, "alice")
	require.NoError(t, err)

	var transferFromTxID string
	for _, intent := range procResult.Action.Intents {
		for _, tx := range intent.Transactions {
			if tx.Protocol == domain.ProtocolIcrc2TransferFrom {
				transferFromTxID = tx.ID
			}
		}
	}
	require.NotEmpty(t, transferFromTxID)

	// Simulate a first caller already mid-flight on this very
	// Transaction by holding its lock directly.
	release, err := svc.lock.Guard(requestlock.TriggerTransactionKey(transferFromTxID), svc.now())
	require.NoError(t, err)
	defer release()

	_, err = svc.TriggerTransaction(ctx, transferFromTxID, "alice")
	require.Error(t, err)
	cerr, ok := err.(*cashiererr.Error)
	require.True(t, ok)
	require.Equal(t, cashiererr.KindRequestLockExists, cerr.Kind)
}
