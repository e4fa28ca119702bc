package api

import (
	"github.com/CashierHQ/cashier-sub000/cashiererr"
	"github.com/CashierHQ/cashier-sub000/domain"
	"github.com/CashierHQ/cashier-sub000/service"
)

func parseLinkType(s string) (domain.LinkType, error) {
	switch s {
	case "SendTip":
		return domain.LinkTypeSendTip, nil
	case "SendAirdrop":
		return domain.LinkTypeSendAirdrop, nil
	case "SendTokenBasket":
		return domain.LinkTypeSendTokenBasket, nil
	case "ReceivePayment":
		return domain.LinkTypeReceivePayment, nil
	default:
		return 0, cashiererr.Validation("unknown_link_type", "unknown link_type %q", s)
	}
}

func parseActionType(s string) (domain.ActionType, error) {
	switch s {
	case "CreateLink":
		return domain.ActionTypeCreateLink, nil
	case "Use":
		return domain.ActionTypeUse, nil
	case "Withdraw":
		return domain.ActionTypeWithdraw, nil
	default:
		return 0, cashiererr.Validation("unknown_action_type", "unknown action_type %q", s)
	}
}

func parseCommand(s string) (service.LinkCommand, error) {
	switch s {
	case "":
		return service.LinkCommandNone, nil
	case "continue":
		return service.LinkCommandContinue, nil
	case "back":
		return service.LinkCommandBack, nil
	case "disable":
		return service.LinkCommandDisable, nil
	default:
		return 0, cashiererr.Validation("unknown_command", "unknown command %q", s)
	}
}

func assetInfosFrom(dtos []AssetInfoDto) []domain.AssetInfo {
	infos := make([]domain.AssetInfo, len(dtos))
	for i, d := range dtos {
		infos[i] = assetInfoTo(d)
	}
	return infos
}
