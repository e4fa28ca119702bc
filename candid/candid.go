// Package candid specifies the boundary to the Candid wire encoder the
// real ICRC-1/2 ledger canisters expect. Candid encoding itself is
// explicitly out of scope (spec.md §1: "ICRC-1/2 ledger canisters
// themselves"); this package only fixes the interface icrc112.Builder
// calls through, plus a JSON-shaped fake used by every test in this
// repository.
package candid

import (
	"encoding/json"

	"github.com/CashierHQ/cashier-sub000/domain"
)

// TransferArg mirrors the ICRC-1 transfer argument shape.
type TransferArg struct {
	To            domain.Principal
	Amount        uint64
	Fee           *uint64
	Memo          []byte
	CreatedAtTime uint64 // nanoseconds since epoch
}

// ApproveArgs mirrors the ICRC-2 approve argument shape.
type ApproveArgs struct {
	Spender       domain.Principal
	Amount        uint64
	Fee           *uint64
	CreatedAtTime uint64
}

// TransferFromArgs mirrors the ICRC-2 transfer_from argument shape.
type TransferFromArgs struct {
	From   domain.Principal
	To     domain.Principal
	Amount uint64
	Fee    *uint64
}

// Encoder turns a typed ledger call argument into the opaque
// candid-encoded bytes an ICRC-112 descriptor carries.
type Encoder interface {
	EncodeTransfer(TransferArg) ([]byte, error)
	EncodeApprove(ApproveArgs) ([]byte, error)
	EncodeTransferFrom(TransferFromArgs) ([]byte, error)
}

// JSONEncoder is a stand-in encoder used by tests and local development:
// it marshals arguments as JSON instead of Candid. It satisfies Encoder
// but must never be wired to a real ledger canister, which only
// understands Candid.
type JSONEncoder struct{}

func (JSONEncoder) EncodeTransfer(a TransferArg) ([]byte, error)         { return json.Marshal(a) }
func (JSONEncoder) EncodeApprove(a ApproveArgs) ([]byte, error)          { return json.Marshal(a) }
func (JSONEncoder) EncodeTransferFrom(a TransferFromArgs) ([]byte, error) { return json.Marshal(a) }
