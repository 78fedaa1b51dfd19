package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"

	"simplychain/backend/pkg/auth"
)

func adminRouter(adminWallet string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		if adminWallet != "" {
			c.Set(auth.CtxWallet, adminWallet)
			c.Set(auth.CtxRole, "admin")
		}
	})
	router.POST("/register", RegisterAccount)
	router.GET("/account", GetMyAccount)
	router.GET("/admin/accounts", ListAccounts)
	router.POST("/admin/accounts/:wallet/activate", ActivateAccount)
	router.POST("/admin/accounts/:wallet/deactivate", DeactivateAccount)
	router.PUT("/admin/accounts/:wallet/credits", SetCredits)
	return router
}

func jsonBody(t *testing.T, payload interface{}) *bytes.Reader {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("failed to marshal payload: %v", err)
	}
	return bytes.NewReader(body)
}

func accountRows(wallet string, credits int64, isActive, pending bool) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"wallet_address", "company_name", "email", "crediti", "is_active", "pending",
		"crediti_updated_at", "crediti_updated_by", "created_at", "updated_at",
	}).AddRow(wallet, "Acme Srl", "ops@acme.example", credits, isActive, pending, nil, nil, now, now)
}

func TestRegisterAccountHandler(t *testing.T) {
	mock := newHandlerTestEnv(t)

	mock.ExpectExec("INSERT INTO simplychain.accounts.*ON CONFLICT \\(wallet_address\\) DO NOTHING").
		WithArgs("0x742d35cc6634c0532925a3b844bc9e7595f8fa8e", "Acme Srl", "ops@acme.example").
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := postJSON(adminRouter(""), "/register", map[string]string{
		"walletAddress": "0x742d35Cc6634C0532925a3b844Bc9e7595f8fA8e",
		"companyName":   "Acme Srl",
		"email":         "ops@acme.example",
	})
	if w.Code != 201 {
		t.Fatalf("expected 201, got %d (body=%s)", w.Code, w.Body.String())
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRegisterAccountDuplicate(t *testing.T) {
	mock := newHandlerTestEnv(t)

	mock.ExpectExec("INSERT INTO simplychain.accounts.*ON CONFLICT \\(wallet_address\\) DO NOTHING").
		WithArgs("0x742d35cc6634c0532925a3b844bc9e7595f8fa8e", "Acme Srl", "ops@acme.example").
		WillReturnResult(sqlmock.NewResult(0, 0))

	w := postJSON(adminRouter(""), "/register", map[string]string{
		"walletAddress": "0x742d35Cc6634C0532925a3b844Bc9e7595f8fA8e",
		"companyName":   "Acme Srl",
		"email":         "ops@acme.example",
	})
	if w.Code != 409 {
		t.Fatalf("expected 409, got %d (body=%s)", w.Code, w.Body.String())
	}
}

func TestRegisterAccountInvalidWallet(t *testing.T) {
	newHandlerTestEnv(t)

	w := postJSON(adminRouter(""), "/register", map[string]string{
		"walletAddress": "not-an-address",
		"companyName":   "Acme Srl",
		"email":         "ops@acme.example",
	})
	if w.Code != 400 {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestGetMyAccount(t *testing.T) {
	mock := newHandlerTestEnv(t)
	wallet := "0xwallet"

	mock.ExpectQuery("SELECT.*FROM simplychain.accounts.*WHERE wallet_address").
		WithArgs(wallet).
		WillReturnRows(accountRows(wallet, 42, true, false))

	req := httptest.NewRequest(http.MethodGet, "/account", nil)
	w := httptest.NewRecorder()
	adminRouter(wallet).ServeHTTP(w, req)

	if w.Code != 200 {
		t.Fatalf("expected 200, got %d (body=%s)", w.Code, w.Body.String())
	}

	var resp struct {
		Credits  int64 `json:"credits"`
		IsActive bool  `json:"isActive"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Credits != 42 || !resp.IsActive {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestActivateAccountHandler(t *testing.T) {
	mock := newHandlerTestEnv(t)
	wallet := "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT wallet_address FROM simplychain.accounts.*FOR UPDATE").
		WithArgs(wallet).
		WillReturnRows(sqlmock.NewRows([]string{"wallet_address"}).AddRow(wallet))
	mock.ExpectExec("UPDATE simplychain.accounts.*is_active = TRUE").
		WithArgs(int64(25), "admin:0xadmin", wallet).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectQuery("SELECT.*FROM simplychain.accounts.*WHERE wallet_address").
		WithArgs(wallet).
		WillReturnRows(accountRows(wallet, 25, true, false))

	w := postJSON(adminRouter("0xadmin"), "/admin/accounts/"+wallet+"/activate", map[string]int64{
		"initialCredits": 25,
	})
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d (body=%s)", w.Code, w.Body.String())
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDeactivateAccountHandler(t *testing.T) {
	mock := newHandlerTestEnv(t)
	wallet := "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT wallet_address FROM simplychain.accounts.*FOR UPDATE").
		WithArgs(wallet).
		WillReturnRows(sqlmock.NewRows([]string{"wallet_address"}).AddRow(wallet))
	mock.ExpectExec("UPDATE simplychain.accounts.*is_active = FALSE").
		WithArgs("admin:0xadmin", wallet).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	w := postJSON(adminRouter("0xadmin"), "/admin/accounts/"+wallet+"/deactivate", nil)
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d (body=%s)", w.Code, w.Body.String())
	}
}

func TestSetCreditsHandler(t *testing.T) {
	mock := newHandlerTestEnv(t)
	wallet := "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT crediti FROM simplychain.accounts.*FOR UPDATE").
		WithArgs(wallet).
		WillReturnRows(sqlmock.NewRows([]string{"crediti"}).AddRow(3))
	mock.ExpectQuery("UPDATE simplychain.accounts.*SET crediti = \\$1.*RETURNING crediti").
		WithArgs(int64(100), "admin:0xadmin", wallet).
		WillReturnRows(sqlmock.NewRows([]string{"crediti"}).AddRow(100))
	mock.ExpectCommit()

	req := httptest.NewRequest(http.MethodPut, "/admin/accounts/"+wallet+"/credits",
		jsonBody(t, map[string]int64{"credits": 100}))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	adminRouter("0xadmin").ServeHTTP(w, req)

	if w.Code != 200 {
		t.Fatalf("expected 200, got %d (body=%s)", w.Code, w.Body.String())
	}

	var resp struct {
		Credits int64 `json:"credits"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Credits != 100 {
		t.Fatalf("expected credits 100, got %d", resp.Credits)
	}
}

func TestSetCreditsRejectsNegativeHandler(t *testing.T) {
	newHandlerTestEnv(t)
	wallet := "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"

	req := httptest.NewRequest(http.MethodPut, "/admin/accounts/"+wallet+"/credits",
		jsonBody(t, map[string]int64{"credits": -5}))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	adminRouter("0xadmin").ServeHTTP(w, req)

	if w.Code != 400 {
		t.Fatalf("expected 400, got %d (body=%s)", w.Code, w.Body.String())
	}
}

func TestListAccountsPending(t *testing.T) {
	mock := newHandlerTestEnv(t)

	mock.ExpectQuery("SELECT.*FROM simplychain.accounts WHERE pending = \\$1").
		WithArgs(true).
		WillReturnRows(accountRows("0xnew", 0, false, true))

	req := httptest.NewRequest(http.MethodGet, "/admin/accounts?pending=true", nil)
	w := httptest.NewRecorder()
	adminRouter("0xadmin").ServeHTTP(w, req)

	if w.Code != 200 {
		t.Fatalf("expected 200, got %d (body=%s)", w.Code, w.Body.String())
	}

	var resp struct {
		Accounts []struct {
			Pending bool `json:"pending"`
		} `json:"accounts"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(resp.Accounts) != 1 || !resp.Accounts[0].Pending {
		t.Fatalf("unexpected response: %+v", resp)
	}
}
