package api

import (
	"net/http"

	"github.com/CashierHQ/cashier-sub000/domain"
	"github.com/CashierHQ/cashier-sub000/icrc112"
	"github.com/CashierHQ/cashier-sub000/service"
)

func groupsToDto(groups []icrc112.Group) []GroupDto {
	out := make([]GroupDto, len(groups))
	for i, g := range groups {
		dto := make(GroupDto, len(g))
		for j, r := range g {
			dto[j] = RequestDto{CanisterID: string(r.CanisterID), Method: r.Method, Arg: r.Arg, Nonce: r.Nonce}
		}
		out[i] = dto
	}
	return out
}

func (s *Server) handleCreateLink(w http.ResponseWriter, r *http.Request) {
	var req CreateLinkRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	linkType, err := parseLinkType(req.LinkType)
	if err != nil {
		writeError(w, err)
		return
	}
	link, err := s.svc.CreateLink(r.Context(), service.CreateLinkInput{
		Creator: req.Creator, LinkType: linkType, Title: req.Title, Template: req.Template,
		MaxUseCount: req.MaxUseCount, AssetInfos: assetInfosFrom(req.AssetInfos),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CreateLinkResponse{Link: linkDtoFrom(link)})
}

func (s *Server) handleUpdateLink(w http.ResponseWriter, r *http.Request) {
	var req UpdateLinkRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	cmd, err := parseCommand(req.Command)
	if err != nil {
		writeError(w, err)
		return
	}
	var assetInfos []domain.AssetInfo
	if req.AssetInfos != nil {
		assetInfos = assetInfosFrom(req.AssetInfos)
	}
	link, err := s.svc.UpdateLink(r.Context(), service.UpdateLinkInput{
		LinkID: req.LinkID, Caller: req.Caller, Title: req.Title, Template: req.Template,
		AssetInfos: assetInfos, Command: cmd,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, UpdateLinkResponse{Link: linkDtoFrom(link)})
}

func (s *Server) handleGetLink(w http.ResponseWriter, r *http.Request) {
	linkID := r.URL.Query().Get("link_id")
	opts := service.GetLinkOptions{
		IncludeAssets:        r.URL.Query().Get("include_assets") == "true",
		IncludeActionHistory: r.URL.Query().Get("include_action_history") == "true",
	}
	resp, err := s.svc.GetLink(r.Context(), linkID, opts)
	if err != nil {
		writeError(w, err)
		return
	}
	out := GetLinkResponse{Link: linkDtoFrom(resp.Link)}
	for _, a := range resp.Actions {
		a := a
		out.Actions = append(out.Actions, actionDtoFrom(&a))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleUserGetLinks(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	links, err := s.svc.UserGetLinks(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	out := UserGetLinksResponse{Links: make([]LinkDto, len(links))}
	for i := range links {
		out.Links[i] = linkDtoFrom(&links[i])
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDisableLink(w http.ResponseWriter, r *http.Request) {
	var req DisableLinkRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	link, err := s.svc.DisableLink(r.Context(), req.LinkID, req.Caller)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DisableLinkResponse{Link: linkDtoFrom(link)})
}

func (s *Server) handleCreateAction(w http.ResponseWriter, r *http.Request) {
	var req CreateActionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	actionType, err := parseActionType(req.ActionType)
	if err != nil {
		writeError(w, err)
		return
	}
	caller, err := s.svc.ResolveCaller(r.Context(), req.Wallet)
	if err != nil {
		writeError(w, err)
		return
	}
	action, err := s.svc.CreateAction(r.Context(), service.CreateActionInput{
		LinkID: req.LinkID, ActionType: actionType, Caller: caller,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CreateActionResponse{Action: actionDtoFrom(action)})
}

func (s *Server) handleProcessAction(w http.ResponseWriter, r *http.Request) {
	var req ProcessActionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	caller, err := s.svc.ResolveCaller(r.Context(), req.Wallet)
	if err != nil {
		writeError(w, err)
		return
	}
	result, err := s.svc.ProcessAction(r.Context(), req.LinkID, req.ActionID, caller)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ProcessActionResponse{
		Action: actionDtoFrom(result.Action), Groups: groupsToDto(result.Groups),
	})
}

func (s *Server) handleUpdateAction(w http.ResponseWriter, r *http.Request) {
	var req UpdateActionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	caller, err := s.svc.ResolveCaller(r.Context(), req.Wallet)
	if err != nil {
		writeError(w, err)
		return
	}
	action, err := s.svc.UpdateAction(r.Context(), service.UpdateActionInput{
		LinkID: req.LinkID, ActionID: req.ActionID, Caller: caller, WalletOutcomes: req.WalletOutcomes,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, UpdateActionResponse{Action: actionDtoFrom(action)})
}

func (s *Server) handleTriggerTransaction(w http.ResponseWriter, r *http.Request) {
	var req TriggerTransactionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	caller, err := s.svc.ResolveCaller(r.Context(), req.Wallet)
	if err != nil {
		writeError(w, err)
		return
	}
	action, err := s.svc.TriggerTransaction(r.Context(), req.TransactionID, caller)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, TriggerTransactionResponse{Action: actionDtoFrom(action)})
}
