package domain

// LinkType enumerates the product surfaces a link can present.
type LinkType int

const (
	LinkTypeSendTip LinkType = iota
	LinkTypeSendAirdrop
	LinkTypeSendTokenBasket
	LinkTypeReceivePayment
)

func (t LinkType) String() string {
	switch t {
	case LinkTypeSendTip:
		return "SendTip"
	case LinkTypeSendAirdrop:
		return "SendAirdrop"
	case LinkTypeSendTokenBasket:
		return "SendTokenBasket"
	case LinkTypeReceivePayment:
		return "ReceivePayment"
	default:
		return "Unknown"
	}
}

// LinkState is the link lifecycle state driven by statemachine.Link.
type LinkState int

const (
	LinkStateChooseLinkType LinkState = iota
	LinkStateAddAssets
	LinkStateCreateLink
	LinkStateActive
	LinkStateInactive
	LinkStateInactiveEnded
)

func (s LinkState) String() string {
	switch s {
	case LinkStateChooseLinkType:
		return "ChooseLinkType"
	case LinkStateAddAssets:
		return "AddAssets"
	case LinkStateCreateLink:
		return "CreateLink"
	case LinkStateActive:
		return "Active"
	case LinkStateInactive:
		return "Inactive"
	case LinkStateInactiveEnded:
		return "InactiveEnded"
	default:
		return "Unknown"
	}
}

// Principal is the textual encoding of a ledger principal (an account
// owner on the ICRC-1/2 ledger). The core treats it as opaque.
type Principal string

// Asset identifies a ledger by the principal of its ledger canister.
type Asset struct {
	LedgerPrincipal Principal
	Symbol          string
}

// AssetInfo carries the per-use price and remaining balance for one
// Asset within a Link.
type AssetInfo struct {
	Asset                  Asset
	Label                  string
	AmountPerLinkUseAction uint64
	AmountAvailable        uint64
}

// Link is a shareable payment-link token.
type Link struct {
	ID                     string
	Creator                string
	LinkType               LinkType
	State                  LinkState
	AssetInfos             []AssetInfo
	LinkUseActionCounter   uint64
	LinkUseActionMaxCount  uint64
	Title                  string
	Template               string
	Metadata               map[string]string
}

// AssetInfoFor returns a pointer to the AssetInfo matching the given
// ledger principal, or nil if the link does not carry that asset.
func (l *Link) AssetInfoFor(p Principal) *AssetInfo {
	for i := range l.AssetInfos {
		if l.AssetInfos[i].Asset.LedgerPrincipal == p {
			return &l.AssetInfos[i]
		}
	}
	return nil
}

// RemainingUses returns how many future use-actions the link has left
// before LinkUseActionCounter saturates LinkUseActionMaxCount.
func (l *Link) RemainingUses() uint64 {
	if l.LinkUseActionCounter >= l.LinkUseActionMaxCount {
		return 0
	}
	return l.LinkUseActionMaxCount - l.LinkUseActionCounter
}

// Saturated reports whether the link has exhausted its allotted uses.
func (l *Link) Saturated() bool {
	return l.LinkUseActionCounter >= l.LinkUseActionMaxCount
}

// SubAccount derives the link's custodial ledger account from the
// service's own principal and the link id, mirroring original_source's
// to_subaccount(link.id): every asset a link holds lives in one
// sub-account of the service's canister account, keyed off the link id
// so no separate per-link keypair is ever needed.
func (l *Link) SubAccount(servicePrincipal Principal) Principal {
	return Principal(string(servicePrincipal) + ".sub." + l.ID)
}
