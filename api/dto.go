// Package api is the external interface of spec.md §6: request/response
// DTOs plus the net/http handlers that call through to package service. Wire format
// is JSON over HTTP, the same shape cashier.proto's grpc-gateway
// annotations describe — see that file for the contract this package
// implements without a protoc step.
package api

import "github.com/CashierHQ/cashier-sub000/domain"

// AssetInfoDto is the wire shape of domain.AssetInfo.
type AssetInfoDto struct {
	LedgerPrincipal        string `json:"ledger_principal"`
	Symbol                 string `json:"symbol"`
	Label                  string `json:"label"`
	AmountPerLinkUseAction uint64 `json:"amount_per_link_use_action"`
	AmountAvailable        uint64 `json:"amount_available,omitempty"`
}

func assetInfoFrom(a domain.AssetInfo) AssetInfoDto {
	return AssetInfoDto{
		LedgerPrincipal:        string(a.Asset.LedgerPrincipal),
		Symbol:                 a.Asset.Symbol,
		Label:                  a.Label,
		AmountPerLinkUseAction: a.AmountPerLinkUseAction,
		AmountAvailable:        a.AmountAvailable,
	}
}

func assetInfoTo(d AssetInfoDto) domain.AssetInfo {
	return domain.AssetInfo{
		Asset:                  domain.Asset{LedgerPrincipal: domain.Principal(d.LedgerPrincipal), Symbol: d.Symbol},
		Label:                  d.Label,
		AmountPerLinkUseAction: d.AmountPerLinkUseAction,
		AmountAvailable:        d.AmountAvailable,
	}
}

// LinkDto is the wire shape of domain.Link.
type LinkDto struct {
	ID                    string         `json:"id"`
	Creator               string         `json:"creator"`
	LinkType              string         `json:"link_type"`
	State                 string         `json:"state"`
	Title                 string         `json:"title,omitempty"`
	Template              string         `json:"template,omitempty"`
	LinkUseActionCounter  uint64         `json:"link_use_action_counter"`
	LinkUseActionMaxCount uint64         `json:"link_use_action_max_count"`
	AssetInfos            []AssetInfoDto `json:"asset_info,omitempty"`
}

func linkDtoFrom(l *domain.Link) LinkDto {
	infos := make([]AssetInfoDto, len(l.AssetInfos))
	for i, a := range l.AssetInfos {
		infos[i] = assetInfoFrom(a)
	}
	return LinkDto{
		ID: l.ID, Creator: l.Creator, LinkType: l.LinkType.String(), State: l.State.String(),
		Title: l.Title, Template: l.Template,
		LinkUseActionCounter: l.LinkUseActionCounter, LinkUseActionMaxCount: l.LinkUseActionMaxCount,
		AssetInfos: infos,
	}
}

// TransactionDto is the wire shape of domain.Transaction.
type TransactionDto struct {
	ID          string `json:"id"`
	State       string `json:"state"`
	Protocol    string `json:"protocol"`
	FromWallet  bool   `json:"from_wallet"`
	DependsOn   string `json:"depends_on,omitempty"`
}

// IntentDto is the wire shape of domain.Intent.
type IntentDto struct {
	ID           string           `json:"id"`
	Label        string           `json:"label"`
	State        string           `json:"state"`
	Transactions []TransactionDto `json:"transactions"`
}

// ActionDto is the wire shape of domain.Action.
type ActionDto struct {
	ID      string      `json:"id"`
	Type    string      `json:"type"`
	State   string      `json:"state"`
	Creator string      `json:"creator"`
	LinkID  string      `json:"link_id"`
	Intents []IntentDto `json:"intents"`
}

func actionDtoFrom(a *domain.Action) ActionDto {
	intents := make([]IntentDto, len(a.Intents))
	for i, intent := range a.Intents {
		txs := make([]TransactionDto, len(intent.Transactions))
		for j, tx := range intent.Transactions {
			txs[j] = TransactionDto{
				ID: tx.ID, State: tx.State.String(), Protocol: tx.Protocol.String(),
				FromWallet: tx.FromCallType == domain.CallTypeWallet, DependsOn: tx.DependsOn,
			}
		}
		intents[i] = IntentDto{ID: intent.ID, Label: intent.Label, State: intent.State.String(), Transactions: txs}
	}
	return ActionDto{ID: a.ID, Type: a.Type.String(), State: a.State.String(), Creator: a.Creator, LinkID: a.LinkID, Intents: intents}
}

// RequestDto is one ICRC-112 canister-call descriptor the wallet executes.
type RequestDto struct {
	CanisterID string `json:"canister_id"`
	Method     string `json:"method"`
	Arg        []byte `json:"arg"`
	Nonce      uint64 `json:"nonce"`
}

// GroupDto is one ICRC-112 batch, executed strictly after the previous group.
type GroupDto []RequestDto

// CreateLinkRequest is the wire shape of spec.md §6's create_link input.
type CreateLinkRequest struct {
	Creator     string         `json:"creator"`
	LinkType    string         `json:"link_type"`
	Title       string         `json:"title"`
	Template    string         `json:"template"`
	MaxUseCount uint64         `json:"link_use_action_max_count"`
	AssetInfos  []AssetInfoDto `json:"asset_info"`
}

// CreateLinkResponse wraps the created link.
type CreateLinkResponse struct {
	Link LinkDto `json:"link"`
}

// UpdateLinkRequest is the wire shape of spec.md §6's update_link input.
// Pointer fields left nil leave that field untouched.
type UpdateLinkRequest struct {
	LinkID     string         `json:"link_id"`
	Caller     string         `json:"caller"`
	Title      *string        `json:"title,omitempty"`
	Template   *string        `json:"template,omitempty"`
	AssetInfos []AssetInfoDto `json:"asset_info,omitempty"`
	Command    string         `json:"command,omitempty"` // "continue" | "back" | "disable" | ""
}

// UpdateLinkResponse wraps the updated link.
type UpdateLinkResponse struct {
	Link LinkDto `json:"link"`
}

// GetLinkOptions implements SPEC_FULL.md §C.3's supplemented get_link
// response-shaping options, read from original_source's link options struct.
type GetLinkOptions struct {
	IncludeAssets        bool `json:"include_assets"`
	IncludeActionHistory bool `json:"include_action_history"`
}

// GetLinkResponse is the wire shape of spec.md §6's get_link response.
type GetLinkResponse struct {
	Link    LinkDto     `json:"link"`
	Actions []ActionDto `json:"actions,omitempty"`
}

// UserGetLinksResponse wraps the caller's links.
type UserGetLinksResponse struct {
	Links []LinkDto `json:"links"`
}

// CreateActionRequest is the wire shape of spec.md §6's create_action input.
type CreateActionRequest struct {
	LinkID     string `json:"link_id"`
	ActionType string `json:"action_type"`
	Wallet     string `json:"wallet"` // resolved to a caller id via ResolveCaller
}

// CreateActionResponse wraps the created action.
type CreateActionResponse struct {
	Action ActionDto `json:"action"`
}

// ProcessActionRequest is the wire shape of spec.md §6's process_action input.
type ProcessActionRequest struct {
	LinkID   string `json:"link_id"`
	ActionID string `json:"action_id"`
	Wallet   string `json:"wallet"`
}

// ProcessActionResponse carries the ICRC-112 request groups the wallet
// must execute in order, plus the Action's state after this call.
type ProcessActionResponse struct {
	Action ActionDto  `json:"action"`
	Groups []GroupDto `json:"icrc112_requests,omitempty"`
}

// UpdateActionRequest is the wire shape of spec.md §6's update_action
// input: the wallet's report of which of its Transactions landed.
type UpdateActionRequest struct {
	LinkID         string          `json:"link_id"`
	ActionID       string          `json:"action_id"`
	Wallet         string          `json:"wallet"`
	WalletOutcomes map[string]bool `json:"wallet_outcomes"`
}

// UpdateActionResponse wraps the resolved action.
type UpdateActionResponse struct {
	Action ActionDto `json:"action"`
}

// TriggerTransactionRequest is the wire shape of spec.md §5/§69's
// trigger_transaction entry point: a wallet-initiated request to
// execute one specific canister-side Transaction now.
type TriggerTransactionRequest struct {
	TransactionID string `json:"transaction_id"`
	Wallet        string `json:"wallet"`
}

// TriggerTransactionResponse wraps the owning Action after the
// Transaction was executed (or left unchanged if it wasn't runnable).
type TriggerTransactionResponse struct {
	Action ActionDto `json:"action"`
}

// DisableLinkRequest is the wire shape of spec.md §6's
// user_disable_link_v2 input.
type DisableLinkRequest struct {
	LinkID string `json:"link_id"`
	Caller string `json:"caller"`
}

// DisableLinkResponse wraps the disabled link.
type DisableLinkResponse struct {
	Link LinkDto `json:"link"`
}

// LogSettings is the subset of build's logging knobs CashierBackendInitData
// exposes to callers that bootstrap the canister/process (SPEC_FULL.md
// §A.1), mirroring original_source's init-data log_settings field.
type LogSettings struct {
	Level string `json:"level,omitempty"`
}

// CashierBackendInitData is the wire shape of the process's init
// arguments (SPEC_FULL.md §A.3 config, supplemented from original_source).
type CashierBackendInitData struct {
	TreasuryPrincipal string       `json:"treasury_principal,omitempty"`
	LogSettings       *LogSettings `json:"log_settings,omitempty"`
}

// ErrorResponse is the stable error envelope every handler returns on
// failure, carrying cashiererr's Kind tag (spec.md §7: "every entry
// point returns a result variant carrying a structured error with a
// stable kind tag").
type ErrorResponse struct {
	Kind       string `json:"kind"`
	Code       string `json:"code"`
	Detail     string `json:"detail,omitempty"`
	RetryAfter string `json:"retry_after,omitempty"`
}
