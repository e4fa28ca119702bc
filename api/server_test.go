package api

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/CashierHQ/cashier-sub000/candid"
	"github.com/CashierHQ/cashier-sub000/config"
	"github.com/CashierHQ/cashier-sub000/ledger"
	"github.com/CashierHQ/cashier-sub000/service"
	"github.com/CashierHQ/cashier-sub000/storage"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.TreasuryPrincipal = "treasury"
	cfg.ServicePrincipal = "cashier-service"

	db, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	svc := service.New(cfg, db, ledger.NewFake(), candid.JSONEncoder{})
	return New(svc, "localhost:0", DefaultShedConfig())
}

func doJSON(t *testing.T, s *Server, method, path string, body interface{}, out interface{}) int {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	if out != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
	}
	return rec.Code
}

func TestHandleCreateLinkRoundTrips(t *testing.T) {
	s := newTestServer(t)

	var resp CreateLinkResponse
	code := doJSON(t, s, "POST", "/v1/links/create", CreateLinkRequest{
		Creator: "alice", LinkType: "SendTip", Title: "tip", MaxUseCount: 1,
		AssetInfos: []AssetInfoDto{{LedgerPrincipal: "icp-ledger", Symbol: "ICP", AmountPerLinkUseAction: 1000}},
	}, &resp)

	require.Equal(t, 200, code)
	require.NotEmpty(t, resp.Link.ID)
	require.Equal(t, "ChooseLinkType", resp.Link.State)
}

func TestHandleCreateLinkRejectsUnknownLinkType(t *testing.T) {
	s := newTestServer(t)

	var errResp ErrorResponse
	code := doJSON(t, s, "POST", "/v1/links/create", CreateLinkRequest{
		Creator: "alice", LinkType: "NotAType", MaxUseCount: 1,
	}, &errResp)

	require.Equal(t, 400, code)
	require.Equal(t, "VALIDATION", errResp.Kind)
}
