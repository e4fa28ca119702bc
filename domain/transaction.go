package domain

import "time"

// CallType distinguishes Transactions whose ledger call is issued by the
// caller's wallet (and thus must be scheduled into an ICRC-112 batch)
// from ones the backend canister/service issues itself.
type CallType int

const (
	CallTypeWallet CallType = iota
	CallTypeCanister
)

// Protocol names the ICRC-1/2 ledger method a Transaction invokes.
type Protocol int

const (
	ProtocolIcrc1Transfer Protocol = iota
	ProtocolIcrc2Approve
	ProtocolIcrc2TransferFrom
)

func (p Protocol) String() string {
	switch p {
	case ProtocolIcrc1Transfer:
		return "icrc1_transfer"
	case ProtocolIcrc2Approve:
		return "icrc2_approve"
	case ProtocolIcrc2TransferFrom:
		return "icrc2_transfer_from"
	default:
		return "unknown"
	}
}

// Transaction is a single ledger-level operation. Its identifier doubles
// as the source of the ICRC-112 nonce (see icrc112.NonceFromID): the
// nonce is not cryptographic, it only lets the wallet-side validator
// (icrc114_validate) match a reply to a known request.
type Transaction struct {
	ID             string
	FromCallType   CallType
	Protocol       Protocol
	State          State
	Memo           string
	CreatedAtTime  time.Time
	DependsOn      string // Transaction.ID this one must follow, or ""
	Group          int    // ICRC-112 batch group number assigned by the builder
}

// CanAdvanceTo reports whether the monotonic state rule (spec.md §3
// invariant 2) permits this Transaction to move from its current state
// to next.
func (t *Transaction) CanAdvanceTo(next State) bool {
	return t.State.CanAdvanceTo(next)
}
