package domain

// LinkUserState tracks a single user's progress against one
// (link, action_type) pair, independently of the per-Action state, so
// that "latest action of type T by user U on link L" can be answered
// without scanning every Action. See SPEC_FULL.md §C.1.
type LinkUserState int

const (
	LinkUserStateChooseWallet LinkUserState = iota
	LinkUserStateCompleted
	LinkUserStateCompletedLink
)

func (s LinkUserState) String() string {
	switch s {
	case LinkUserStateChooseWallet:
		return "ChooseWallet"
	case LinkUserStateCompleted:
		return "Completed"
	case LinkUserStateCompletedLink:
		return "CompletedLink"
	default:
		return "Unknown"
	}
}

// LinkAction is the join entity keyed by (LinkID, ActionType, UserID,
// ActionID) described in spec.md §3.
type LinkAction struct {
	LinkID     string
	ActionType ActionType
	UserID     string
	ActionID   string
	State      LinkUserState
}

// PrefixKey returns the composite secondary-index prefix
// (link_id, action_type, user_id) storage.LinkActions uses for
// get_by_prefix lookups (spec.md §6 "Persistent layout").
func (la *LinkAction) PrefixKey() string {
	return LinkActionPrefix(la.LinkID, la.ActionType, la.UserID)
}

// LinkActionPrefix builds the composite prefix independently of a
// LinkAction value, for lookups where only the scalar fields are known.
func LinkActionPrefix(linkID string, actionType ActionType, userID string) string {
	return linkID + "\x00" + actionType.String() + "\x00" + userID
}
