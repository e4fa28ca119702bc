package supervisor

import (
	"sync"
	"testing"
	"time"

	"github.com/CashierHQ/cashier-sub000/domain"
	"github.com/stretchr/testify/require"
)

func TestArmFiresAfterTimeout(t *testing.T) {
	var mu sync.Mutex
	var fired string
	done := make(chan struct{})

	s := New(20*time.Millisecond, time.Now, func(actionID, intentID, txID string) {
		mu.Lock()
		fired = txID
		mu.Unlock()
		close(done)
	})

	s.Arm(Watched{ActionID: "a1", IntentID: "i1", TransactionID: "t1", CreatedAtTime: time.Now()})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, "t1", fired)
}

func TestDisarmPreventsFiring(t *testing.T) {
	fired := false
	s := New(20*time.Millisecond, time.Now, func(string, string, string) { fired = true })

	s.Arm(Watched{TransactionID: "t1", CreatedAtTime: time.Now()})
	s.Disarm("t1")

	time.Sleep(60 * time.Millisecond)
	require.False(t, fired)
}

func TestOverdueTransactionFiresImmediately(t *testing.T) {
	done := make(chan struct{})
	s := New(5*time.Minute, time.Now, func(string, string, string) { close(done) })

	s.Arm(Watched{TransactionID: "t1", CreatedAtTime: time.Now().Add(-10 * time.Minute)})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("overdue timer should fire almost immediately")
	}
}

func TestCascadeFailsIntentAndAction(t *testing.T) {
	action := &domain.Action{
		Intents: []domain.Intent{
			{
				ID:    "i1",
				State: domain.StateProcessing,
				Transactions: []domain.Transaction{
					{ID: "t1", State: domain.StateProcessing},
				},
			},
		},
	}
	Cascade(action, "i1", "t1")
	require.Equal(t, domain.StateFail, action.Intents[0].Transactions[0].State)
	require.Equal(t, domain.StateFail, action.Intents[0].State)
	require.Equal(t, domain.StateFail, action.State)
}
