package service

import (
	"context"

	"github.com/CashierHQ/cashier-sub000/cashiererr"
	"github.com/CashierHQ/cashier-sub000/domain"
	"github.com/CashierHQ/cashier-sub000/requestlock"
)

// CreateLinkInput implements spec.md §6's CreateLinkInput: title,
// link_use_action_max_count, an ordered asset_info list, template and
// link_type.
type CreateLinkInput struct {
	Creator       string
	LinkType      domain.LinkType
	Title         string
	Template      string
	MaxUseCount   uint64
	AssetInfos    []domain.AssetInfo
}

// CreateLink implements spec.md §6's create_link: a new Link in
// ChooseLinkType, owned by Creator.
func (s *Service) CreateLink(ctx context.Context, in CreateLinkInput) (*domain.Link, error) {
	if err := s.checkRateLimit(in.Creator, "create_link"); err != nil {
		return nil, err
	}

	var link *domain.Link
	err := s.withLock(requestlock.CreateLinkKey(in.Creator), func() error {
		link = &domain.Link{
			ID:                    domain.NewID(),
			Creator:               in.Creator,
			LinkType:              in.LinkType,
			State:                 domain.LinkStateChooseLinkType,
			Title:                 in.Title,
			Template:              in.Template,
			LinkUseActionMaxCount: in.MaxUseCount,
			AssetInfos:            in.AssetInfos,
		}
		if err := s.db.Links().Put(link); err != nil {
			return err
		}
		return s.db.UserLinks().Add(in.Creator, link.ID)
	})
	if err != nil {
		return nil, err
	}
	log.Infof("link=%s created by=%s type=%s", link.ID, in.Creator, in.LinkType)
	return link, nil
}

// LinkCommand names the wizard/disable transitions UpdateLink can drive,
// per spec.md §4.9's Continue/Back/explicit-disable commands.
type LinkCommand int

const (
	LinkCommandNone LinkCommand = iota
	LinkCommandContinue
	LinkCommandBack
	LinkCommandDisable
)

// UpdateLinkInput implements spec.md §6's update_link: field edits
// (nil pointers leave the field untouched) plus an optional wizard/
// disable Command.
type UpdateLinkInput struct {
	LinkID     string
	Caller     string
	Title      *string
	Template   *string
	AssetInfos []domain.AssetInfo
	Command    LinkCommand
}

// UpdateLink implements spec.md §6's update_link.
func (s *Service) UpdateLink(ctx context.Context, in UpdateLinkInput) (*domain.Link, error) {
	var link *domain.Link
	err := s.withLock(requestlock.CreateLinkKey(in.Caller), func() error {
		var err error
		link, err = s.db.Links().Get(in.LinkID)
		if err != nil {
			return err
		}
		if link.Creator != in.Caller {
			return cashiererr.Unauthorized("creator_only", "only the link creator may update it")
		}

		if in.Title != nil {
			link.Title = *in.Title
		}
		if in.Template != nil {
			link.Template = *in.Template
		}
		if in.AssetInfos != nil {
			link.AssetInfos = in.AssetInfos
		}

		switch in.Command {
		case LinkCommandContinue:
			if err := s.linkSM.Continue(link); err != nil {
				return err
			}
		case LinkCommandBack:
			if err := s.linkSM.Back(link); err != nil {
				return err
			}
		case LinkCommandDisable:
			if err := s.linkSM.Disable(link); err != nil {
				return err
			}
		}
		return s.db.Links().Put(link)
	})
	return link, err
}

// GetLinkOptions implements SPEC_FULL.md §C.3's supplemented get_link
// response shaping, read from original_source's link_v2.rs options
// struct.
type GetLinkOptions struct {
	IncludeAssets        bool
	IncludeActionHistory bool
}

// GetLinkResp implements spec.md §6's get_link response: the Link, plus
// optionally its assets (already embedded on domain.Link, so this flag
// only controls whether the caller bothers sending them) and its Action
// history.
type GetLinkResp struct {
	Link    *domain.Link
	Actions []domain.Action // only populated if options.IncludeActionHistory
}

// GetLink implements spec.md §6's get_link.
func (s *Service) GetLink(ctx context.Context, linkID string, opts GetLinkOptions) (*GetLinkResp, error) {
	link, err := s.db.Links().Get(linkID)
	if err != nil {
		return nil, err
	}
	resp := &GetLinkResp{Link: link}
	if !opts.IncludeAssets {
		resp.Link = &domain.Link{
			ID: link.ID, Creator: link.Creator, LinkType: link.LinkType,
			State: link.State, Title: link.Title, Template: link.Template,
			LinkUseActionCounter: link.LinkUseActionCounter, LinkUseActionMaxCount: link.LinkUseActionMaxCount,
		}
	}
	if opts.IncludeActionHistory {
		actions, err := s.db.Actions().ListByLink(linkID)
		if err != nil {
			return nil, err
		}
		resp.Actions = actions
	}
	return resp, nil
}

// UserGetLinks implements spec.md §6's user_get_links: every Link the
// user has created or interacted with, newest-added last (insertion
// order of storage.UserLinks.Add).
func (s *Service) UserGetLinks(ctx context.Context, userID string) ([]domain.Link, error) {
	ids, err := s.db.UserLinks().List(userID)
	if err != nil {
		return nil, err
	}
	links := make([]domain.Link, 0, len(ids))
	for _, id := range ids {
		link, err := s.db.Links().Get(id)
		if err != nil {
			continue // a link removed from storage is silently dropped from the view
		}
		links = append(links, *link)
	}
	return links, nil
}

// DisableLink implements spec.md §6's user_disable_link_v2: the
// creator's explicit Active -> Inactive transition.
func (s *Service) DisableLink(ctx context.Context, linkID, caller string) (*domain.Link, error) {
	return s.UpdateLink(ctx, UpdateLinkInput{LinkID: linkID, Caller: caller, Command: LinkCommandDisable})
}
