package icrc112

import (
	"context"
	"testing"
	"time"

	"github.com/CashierHQ/cashier-sub000/candid"
	"github.com/CashierHQ/cashier-sub000/domain"
	"github.com/stretchr/testify/require"
)

func newTx(id string, dependsOn string, protocol domain.Protocol, state domain.State, created time.Time) domain.Transaction {
	return domain.Transaction{
		ID:            id,
		FromCallType:  domain.CallTypeWallet,
		Protocol:      protocol,
		State:         state,
		CreatedAtTime: created,
		DependsOn:     dependsOn,
	}
}

func TestBuildIndependentTransactionsShareOneGroup(t *testing.T) {
	now := time.Now()
	action := &domain.Action{
		Intents: []domain.Intent{
			{
				ID:   "intent-approve",
				Payload: domain.IntentPayload{
					To:            "treasury",
					ApproveAmount: 100,
					LedgerFee:     1,
				},
				Transactions: []domain.Transaction{
					newTx("tx-approve", "", domain.ProtocolIcrc2Approve, domain.StateCreated, now),
				},
			},
			{
				ID: "intent-transfer",
				Payload: domain.IntentPayload{
					To:        "link-sub",
					Amount:    1000,
					LedgerFee: 1,
				},
				Transactions: []domain.Transaction{
					newTx("tx-transfer", "", domain.ProtocolIcrc1Transfer, domain.StateCreated, now),
				},
			},
		},
	}

	b := New(candid.JSONEncoder{}, func() time.Time { return now }, nil)
	groups, err := b.Build(context.Background(), action, func(intentID string) domain.Asset {
		return domain.Asset{LedgerPrincipal: "icp-ledger"}
	}, "treasury", "link-sub")
	require.NoError(t, err)
	require.Len(t, groups, 1)
	require.Len(t, groups[0], 2)
}

func TestBuildDependencyOrdersAcrossLevels(t *testing.T) {
	now := time.Now()
	action := &domain.Action{
		Intents: []domain.Intent{
			{
				ID:      "intent-fee",
				Payload: domain.IntentPayload{To: "treasury", ApproveAmount: 50, LedgerFee: 1},
				Transactions: []domain.Transaction{
					newTx("tx-approve", "", domain.ProtocolIcrc2Approve, domain.StateCreated, now),
					newTx("tx-second-approve-dependent", "tx-approve", domain.ProtocolIcrc2Approve, domain.StateCreated, now),
				},
			},
		},
	}

	b := New(candid.JSONEncoder{}, func() time.Time { return now }, nil)
	groups, err := b.Build(context.Background(), action, func(string) domain.Asset {
		return domain.Asset{LedgerPrincipal: "icp-ledger"}
	}, "treasury", "link-sub")
	require.NoError(t, err)
	require.Len(t, groups, 2)
	require.Equal(t, NonceFromID("tx-approve"), groups[0][0].Nonce)
	require.Equal(t, NonceFromID("tx-second-approve-dependent"), groups[1][0].Nonce)
}

func TestBuildDetectsCycle(t *testing.T) {
	now := time.Now()
	action := &domain.Action{
		Intents: []domain.Intent{
			{
				ID: "intent-cycle",
				Transactions: []domain.Transaction{
					newTx("tx-a", "tx-b", domain.ProtocolIcrc1Transfer, domain.StateCreated, now),
					newTx("tx-b", "tx-a", domain.ProtocolIcrc1Transfer, domain.StateCreated, now),
				},
			},
		},
	}

	b := New(candid.JSONEncoder{}, func() time.Time { return now }, nil)
	_, err := b.Build(context.Background(), action, func(string) domain.Asset {
		return domain.Asset{LedgerPrincipal: "icp-ledger"}
	}, "treasury", "link-sub")
	require.Error(t, err)
}

func TestBuildExcludesCanisterSideAndTerminalTransactions(t *testing.T) {
	now := time.Now()
	action := &domain.Action{
		Intents: []domain.Intent{
			{
				ID: "intent-mixed",
				Transactions: []domain.Transaction{
					{ID: "tx-canister", FromCallType: domain.CallTypeCanister, Protocol: domain.ProtocolIcrc2TransferFrom, State: domain.StateCreated, CreatedAtTime: now},
					{ID: "tx-success", FromCallType: domain.CallTypeWallet, Protocol: domain.ProtocolIcrc1Transfer, State: domain.StateSuccess, CreatedAtTime: now},
					{ID: "tx-retry", FromCallType: domain.CallTypeWallet, Protocol: domain.ProtocolIcrc1Transfer, State: domain.StateFail, CreatedAtTime: now},
				},
			},
		},
	}

	b := New(candid.JSONEncoder{}, func() time.Time { return now }, nil)
	groups, err := b.Build(context.Background(), action, func(string) domain.Asset {
		return domain.Asset{LedgerPrincipal: "icp-ledger"}
	}, "treasury", "link-sub")
	require.NoError(t, err)
	require.Len(t, groups, 1)
	require.Len(t, groups[0], 1)
	require.Equal(t, NonceFromID("tx-retry"), groups[0][0].Nonce)
}

func TestBuildRefreshesStaleCreatedAtTime(t *testing.T) {
	stale := time.Now().Add(-25 * time.Hour)
	now := time.Now()
	action := &domain.Action{
		Intents: []domain.Intent{
			{
				ID: "intent-stale",
				Transactions: []domain.Transaction{
					newTx("tx-stale", "", domain.ProtocolIcrc1Transfer, domain.StateCreated, stale),
				},
			},
		},
	}

	var persisted *domain.Transaction
	b := New(candid.JSONEncoder{}, func() time.Time { return now }, func(_ context.Context, tx *domain.Transaction) error {
		persisted = tx
		return nil
	})
	_, err := b.Build(context.Background(), action, func(string) domain.Asset {
		return domain.Asset{LedgerPrincipal: "icp-ledger"}
	}, "treasury", "link-sub")
	require.NoError(t, err)
	require.NotNil(t, persisted)
	require.WithinDuration(t, now, persisted.CreatedAtTime, time.Second)
}
