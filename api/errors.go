package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/CashierHQ/cashier-sub000/cashiererr"
)

// statusFor maps cashiererr.Kind to the HTTP status grpc-gateway would
// produce from the equivalent gRPC status code (spec.md §7's taxonomy,
// carried over the wire as both an HTTP status and the ErrorResponse.Kind
// tag, since REST callers shouldn't have to parse gRPC status codes).
func statusFor(k cashiererr.Kind) int {
	switch k {
	case cashiererr.KindValidation:
		return http.StatusBadRequest
	case cashiererr.KindUnauthorized:
		return http.StatusForbidden
	case cashiererr.KindNotFound:
		return http.StatusNotFound
	case cashiererr.KindHandleLogic:
		return http.StatusConflict
	case cashiererr.KindRateLimit:
		return http.StatusTooManyRequests
	case cashiererr.KindRequestLockExists:
		return http.StatusConflict
	case cashiererr.KindLedger, cashiererr.KindCanister:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	var cerr *cashiererr.Error
	if !errors.As(err, &cerr) {
		cerr = cashiererr.Wrap(err)
	}
	resp := ErrorResponse{Kind: string(cerr.Kind), Code: cerr.Code, Detail: cerr.Detail}
	if cerr.RetryAfter > 0 {
		resp.RetryAfter = cerr.RetryAfter.String()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusFor(cerr.Kind))
	_ = json.NewEncoder(w).Encode(resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return cashiererr.Validation("malformed_request_body", "%v", err)
	}
	return nil
}
