package executor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/CashierHQ/cashier-sub000/domain"
	"github.com/CashierHQ/cashier-sub000/ledger"
	"github.com/CashierHQ/cashier-sub000/validator"
)

var icp = domain.Asset{LedgerPrincipal: "icp-ledger", Symbol: "ICP"}

func newTx(id string, protocol domain.Protocol) *domain.Transaction {
	return &domain.Transaction{ID: id, Protocol: protocol, State: domain.StateCreated, CreatedAtTime: time.Now()}
}

func TestExecuteTransferFromSucceeds(t *testing.T) {
	fake := ledger.NewFake()
	fake.SetBalance(icp, "alice", 1000)
	require.NoError(t, fake.Approve(context.Background(), icp, "alice", "treasury", 510, 0, 0))

	e := New(fake, validator.New(fake))
	tx := newTx("tx1", domain.ProtocolIcrc2TransferFrom)
	intent := &domain.Intent{Payload: domain.IntentPayload{From: "alice", To: "treasury", Asset: icp, Amount: 500, LedgerFee: 10}}

	out := e.ExecuteTransferFrom(context.Background(), tx, intent, "treasury")
	require.Equal(t, domain.StateSuccess, out.State)
	require.NoError(t, out.Err)
	require.Equal(t, domain.StateSuccess, tx.State)

	bal, err := fake.Balance(context.Background(), icp, "treasury")
	require.NoError(t, err)
	require.Equal(t, uint64(500), bal)
}

func TestExecuteTransferFromDefiniteFailureOnInsufficientAllowance(t *testing.T) {
	fake := ledger.NewFake()
	fake.SetBalance(icp, "alice", 1000)
	// no Approve issued

	e := New(fake, validator.New(fake))
	tx := newTx("tx1", domain.ProtocolIcrc2TransferFrom)
	intent := &domain.Intent{Payload: domain.IntentPayload{From: "alice", To: "treasury", Asset: icp, Amount: 500, LedgerFee: 10}}

	out := e.ExecuteTransferFrom(context.Background(), tx, intent, "treasury")
	require.Equal(t, domain.StateFail, out.State)
	require.ErrorIs(t, out.Err, ledger.ErrInsufficientAllowance)
	require.Equal(t, domain.StateFail, tx.State)
}

func TestExecuteLinkTransferSucceeds(t *testing.T) {
	fake := ledger.NewFake()
	fake.SetBalance(icp, "link-sub", 1000)

	e := New(fake, validator.New(fake))
	tx := newTx("tx1", domain.ProtocolIcrc1Transfer)
	intent := &domain.Intent{Payload: domain.IntentPayload{From: "link-sub", To: "bob", Asset: icp, Amount: 500, LedgerFee: 10}}

	out := e.ExecuteLinkTransfer(context.Background(), tx, intent)
	require.Equal(t, domain.StateSuccess, out.State)

	bal, err := fake.Balance(context.Background(), icp, "bob")
	require.NoError(t, err)
	require.Equal(t, uint64(500), bal)
}

func TestExecuteWithdrawUsesLiveBalanceNotIntentAmount(t *testing.T) {
	fake := ledger.NewFake()
	fake.SetBalance(icp, "link-sub", 300)

	e := New(fake, validator.New(fake))
	tx := newTx("tx1", domain.ProtocolIcrc1Transfer)
	// Intent carries a stale cached amount that no longer matches the
	// live balance; ExecuteWithdraw must ignore it.
	intent := &domain.Intent{Payload: domain.IntentPayload{From: "link-sub", To: "alice", Asset: icp, Amount: 999, LedgerFee: 10}}

	out := e.ExecuteWithdraw(context.Background(), tx, intent)
	require.Equal(t, domain.StateSuccess, out.State)
	require.Equal(t, uint64(290), intent.Payload.Amount)

	bal, err := fake.Balance(context.Background(), icp, "alice")
	require.NoError(t, err)
	require.Equal(t, uint64(290), bal)
}

func TestExecuteWithdrawZeroesOutWhenBalanceBelowFee(t *testing.T) {
	fake := ledger.NewFake()
	fake.SetBalance(icp, "link-sub", 5)

	e := New(fake, validator.New(fake))
	tx := newTx("tx1", domain.ProtocolIcrc1Transfer)
	intent := &domain.Intent{Payload: domain.IntentPayload{From: "link-sub", To: "alice", Asset: icp, LedgerFee: 10}}

	out := e.ExecuteWithdraw(context.Background(), tx, intent)
	require.Equal(t, domain.StateSuccess, out.State)
	require.Equal(t, uint64(0), intent.Payload.Amount)
}

func TestExecuteCanisterTxsBatchRunsItemsIndependently(t *testing.T) {
	fake := ledger.NewFake()
	fake.SetBalance(icp, "alice", 1000)
	require.NoError(t, fake.Approve(context.Background(), icp, "alice", "treasury", 510, 0, 0))
	fake.SetBalance(icp, "link-sub", 200)
	// force the link-sub transfer item to fail with insufficient funds
	// while the fee item succeeds, proving one item's failure leaves the
	// other untouched.
	fake.Fail[string(icp.LedgerPrincipal)+"|link-sub"] = ledger.ErrInsufficientFunds

	e := New(fake, validator.New(fake))
	items := []BatchItem{
		{
			Tx:      newTx("fee", domain.ProtocolIcrc2TransferFrom),
			Intent:  &domain.Intent{Payload: domain.IntentPayload{From: "alice", To: "treasury", Asset: icp, Amount: 500, LedgerFee: 10}},
			IsFee:   true,
			Spender: "treasury",
		},
		{
			Tx:     newTx("transfer", domain.ProtocolIcrc1Transfer),
			Intent: &domain.Intent{Payload: domain.IntentPayload{From: "link-sub", To: "bob", Asset: icp, Amount: 100, LedgerFee: 10}},
		},
	}

	outcomes := e.ExecuteCanisterTxsBatch(context.Background(), items)
	require.Len(t, outcomes, 2)
	require.Equal(t, domain.StateSuccess, outcomes[0].State)
	require.Equal(t, domain.StateFail, outcomes[1].State)
	require.ErrorIs(t, outcomes[1].Err, ledger.ErrInsufficientFunds)
}
