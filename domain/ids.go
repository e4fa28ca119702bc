// Package domain holds the entity types shared by every orchestration
// component: Link, Action, Intent, Transaction and LinkAction, plus the
// small value types (Principal, Asset, AssetInfo) that hang off them.
package domain

import (
	"strings"

	"github.com/google/uuid"
)

// NewID returns a fresh random identifier suitable for any entity in this
// package. Transaction ids additionally serve as ICRC-112 nonces (see
// Transaction.Nonce), so callers must not assume the string has no
// structure beyond uniqueness.
func NewID() string {
	return uuid.NewString()
}

// AnonymousPrefix tags the synthetic creator identifier assigned to
// wallet-only callers that never authenticated through the gate service.
const AnonymousPrefix = "ANON#"

// AnonymousCreator canonicalizes a wallet address into the stable
// synthetic identifier used as Action.Creator and LinkAction.UserID for
// anonymous callers. Canonicalization lower-cases the address and trims
// surrounding whitespace, matching the normalization original_source
// applies before comparing wallet-derived identifiers.
func AnonymousCreator(wallet string) string {
	return AnonymousPrefix + strings.ToLower(strings.TrimSpace(wallet))
}

// IsAnonymous reports whether an identifier was synthesized by
// AnonymousCreator.
func IsAnonymous(id string) bool {
	return strings.HasPrefix(id, AnonymousPrefix)
}
