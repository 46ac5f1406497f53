package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudo-init-do/workerlly/internal/admin"
	"github.com/sudo-init-do/workerlly/internal/fees"
	"github.com/sudo-init-do/workerlly/internal/geo"
	"github.com/sudo-init-do/workerlly/internal/marketplace"
	"github.com/sudo-init-do/workerlly/internal/metrics"
	mware "github.com/sudo-init-do/workerlly/internal/middleware"
	"github.com/sudo-init-do/workerlly/internal/models"
	"github.com/sudo-init-do/workerlly/internal/otp"
	"github.com/sudo-init-do/workerlly/internal/store/memstore"
	"github.com/sudo-init-do/workerlly/internal/tracking"
	"github.com/sudo-init-do/workerlly/internal/user"
	"github.com/sudo-init-do/workerlly/internal/wallet"
)

const secret = "api-test-secret"

type testAPI struct {
	e      *echo.Echo
	tokens map[string]string
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	ctx := context.Background()
	st := memstore.New()
	st.PutUser(models.User{ID: "p1", Name: "Priya", Roles: []string{"provider"}})
	st.PutUser(models.User{ID: "s1", Name: "Sameer", Roles: []string{"seeker"}})
	st.PutCity(models.City{ID: "blr", Name: "Bengaluru", IsActive: true})
	st.PutCategory(models.Category{ID: "plumb", Name: "Plumbing", IsActive: true})
	st.PutRate(models.Rate{ID: "r1", CityID: "blr", CategoryID: "plumb",
		MinHourlyRate: decimal.NewFromInt(100), MaxHourlyRate: decimal.NewFromInt(500)})
	st.PutAddress(models.Address{ID: "a1", UserID: "p1", AddressLine1: "12 MG Road", CityID: "blr",
		Location: geo.Point{Lat: 12.9716, Lon: 77.5946}})

	m := metrics.NewCollector(nil)
	calc := fees.NewCalculator(decimal.NewFromInt(20), decimal.NewFromInt(18))
	ledger := wallet.NewLedger(st, calc, m)
	_, err := ledger.OpenAccount(ctx, "p1", decimal.Zero)
	require.NoError(t, err)
	_, err = ledger.OpenAccount(ctx, "s1", decimal.NewFromInt(100))
	require.NoError(t, err)
	require.NoError(t, ledger.Configure(ctx, "s1", "blr", "plumb"))

	hub := tracking.NewHub(m)
	svc := tracking.NewService(st, hub, nil, 0, m)
	eng := marketplace.NewEngine(marketplace.Deps{
		Store:   st,
		Fees:    calc,
		Ledger:  ledger,
		OTP:     otp.NewFixed("1234", "5678"),
		Tracker: svc,
		Metrics: m,
	})

	e := New(Deps{
		Engine:    eng,
		Ledger:    ledger,
		Tracking:  svc,
		Admin:     admin.NewHandler(st, ledger, hub),
		Users:     user.NewHandler(st),
		Metrics:   m,
		JWTSecret: secret,
	})

	tokens := map[string]string{}
	for id, roles := range map[string][]string{
		"p1":  {"provider"},
		"s1":  {"seeker"},
		"adm": {"admin"},
	} {
		tok, err := mware.Sign(secret, mware.Claims{UserID: id, Roles: roles}, time.Hour)
		require.NoError(t, err)
		tokens[id] = tok
	}
	return &testAPI{e: e, tokens: tokens}
}

func (a *testAPI) call(t *testing.T, as, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if as != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+a.tokens[as])
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type jobResp struct {
	Job models.Job `json:"job"`
}

type errResp struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func TestJobLifecycleOverHTTP(t *testing.T) {
	a := newTestAPI(t)

	rec := a.call(t, "s1", http.MethodPost, "/api/v1/status", echo.Map{"status": "online"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = a.call(t, "p1", http.MethodPost, "/api/v1/jobs", echo.Map{
		"category_id": "plumb",
		"title":       "Fix kitchen sink",
		"address_id":  "a1",
		"hourly_rate": 120,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	job := decode[jobResp](t, rec).Job
	assert.Equal(t, models.JobPending, job.Status)

	rec = a.call(t, "s1", http.MethodPost, "/api/v1/jobs/"+job.ID+"/bids", echo.Map{"amount": "120"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	bid := decode[struct {
		Bid models.Bid `json:"bid"`
	}](t, rec).Bid

	rec = a.call(t, "p1", http.MethodGet, "/api/v1/jobs/"+job.ID+"/bids", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"seeker_name":"Sameer"`)

	rec = a.call(t, "p1", http.MethodPost, "/api/v1/jobs/"+job.ID+"/bids/"+bid.ID+"/accept", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, models.JobOngoing, decode[jobResp](t, rec).Job.Status)

	rec = a.call(t, "s1", http.MethodGet, "/api/v1/wallet", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"wallet_balance":"71.68"`)

	rec = a.call(t, "s1", http.MethodPost, "/api/v1/location", echo.Map{"latitude": 12.97, "longitude": 77.59})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	conf := decode[tracking.Confirmation](t, rec)
	assert.Equal(t, job.ID, conf.JobID)
	assert.False(t, conf.SentToProvider)

	rec = a.call(t, "p1", http.MethodGet, "/api/v1/jobs/"+job.ID+"/track", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, tracking.Online, decode[tracking.Snapshot](t, rec).SeekerStatus)

	rec = a.call(t, "s1", http.MethodPost, "/api/v1/jobs/"+job.ID+"/reached", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = a.call(t, "p1", http.MethodPost, "/api/v1/jobs/"+job.ID+"/start", echo.Map{"otp": "9999"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "OTP_MISMATCH", decode[errResp](t, rec).Code)

	rec = a.call(t, "p1", http.MethodPost, "/api/v1/jobs/"+job.ID+"/start", echo.Map{"otp": "1234"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, models.JobInProgress, decode[jobResp](t, rec).Job.Status)

	rec = a.call(t, "s1", http.MethodPost, "/api/v1/jobs/"+job.ID+"/complete", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "5678", decode[jobResp](t, rec).Job.DoneOTP.Code)

	rec = a.call(t, "p1", http.MethodPost, "/api/v1/jobs/"+job.ID+"/done", echo.Map{"otp": "5678"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	done := decode[jobResp](t, rec).Job
	assert.Equal(t, models.JobCompleted, done.Status)
	assert.Equal(t, 1, done.BillableHours)
	assert.Equal(t, "120.00", done.TotalAmount.StringFixed(2))

	rec = a.call(t, "s1", http.MethodPost, "/api/v1/jobs/"+job.ID+"/pay", echo.Map{"payment_method": "cash"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = a.call(t, "s1", http.MethodPost, "/api/v1/jobs/"+job.ID+"/pay", echo.Map{"payment_method": "cash"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "ALREADY_PAID", decode[errResp](t, rec).Code)

	rec = a.call(t, "s1", http.MethodPost, "/api/v1/jobs/"+job.ID+"/reviews", echo.Map{"rating": 5, "review_text": "clear brief"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = a.call(t, "s1", http.MethodGet, "/api/v1/users/p1/review-stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[marketplace.ReviewStats](t, rec)
	assert.Equal(t, 1, stats.AsProvider.TotalReviews)
	assert.Equal(t, 5.0, stats.AsProvider.Average)
}

func TestErrorResponses(t *testing.T) {
	a := newTestAPI(t)

	rec := a.call(t, "", http.MethodGet, "/api/v1/jobs", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = a.call(t, "s1", http.MethodPost, "/api/v1/jobs", echo.Map{"title": "x"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = a.call(t, "p1", http.MethodPost, "/api/v1/jobs", echo.Map{"address_id": "a1", "hourly_rate": 120})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode[errResp](t, rec)
	assert.Equal(t, "INVALID_INPUT", body.Code)
	assert.Contains(t, body.Error, "category_id is required")

	rec = a.call(t, "p1", http.MethodGet, "/api/v1/jobs/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decode[errResp](t, rec).Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", bytes.NewBufferString("{not json"))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+a.tokens["p1"])
	raw := httptest.NewRecorder()
	a.e.ServeHTTP(raw, req)
	assert.Equal(t, http.StatusBadRequest, raw.Code)
	assert.Equal(t, "INVALID_INPUT", decode[errResp](t, raw).Code)

	rec = a.call(t, "s1", http.MethodPost, "/api/v1/location", echo.Map{"latitude": 12.97, "longitude": 77.59})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "no active job", decode[errResp](t, rec).Error)
}

func TestAdminRoutes(t *testing.T) {
	a := newTestAPI(t)

	assert.Equal(t, http.StatusForbidden, a.call(t, "s1", http.MethodGet, "/api/v1/admin/stats", nil).Code)

	rec := a.call(t, "adm", http.MethodPost, "/api/v1/admin/wallets/s1/credit", echo.Map{"amount": "50"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"wallet_balance":"150"`)
	assert.Contains(t, rec.Body.String(), models.ReasonAdminCredit)

	rec = a.call(t, "adm", http.MethodPost, "/api/v1/admin/wallets/s1/credit", echo.Map{"amount": "-5"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.call(t, "adm", http.MethodGet, "/api/v1/admin/wallets/s1/audit", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"consistent":true`)

	rec = a.call(t, "adm", http.MethodGet, "/api/v1/admin/wallets/audit", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"consistent":true`)

	rec = a.call(t, "adm", http.MethodGet, "/api/v1/admin/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"tracking_subscriptions":0`)
}

func TestJobFollowUpRoutes(t *testing.T) {
	a := newTestAPI(t)
	rec := a.call(t, "s1", http.MethodPost, "/api/v1/status", echo.Map{"status": "online"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	jobID := a.assignedJob(t)

	rec = a.call(t, "s1", http.MethodPost, "/api/v1/jobs/"+jobID+"/delayed-cancel", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = a.call(t, "p1", http.MethodPost, "/api/v1/jobs/"+jobID+"/delayed-cancel", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "INVALID_STATE", decode[errResp](t, rec).Code)

	rec = a.call(t, "s1", http.MethodGet, "/api/v1/jobs/"+jobID+"/invoice", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	inv := decode[struct {
		Invoice struct {
			Number      string `json:"invoice_number"`
			TotalAmount string `json:"total_amount"`
		} `json:"invoice"`
	}](t, rec).Invoice
	assert.Contains(t, inv.Number, "WRKRLY-")
	assert.Equal(t, "28.32", inv.TotalAmount)

	rec = a.call(t, "p1", http.MethodGet, "/api/v1/jobs/"+jobID+"/invoice", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	assert.Equal(t, http.StatusForbidden, a.call(t, "p1", http.MethodPost, "/api/v1/admin/jobs/sweep", nil).Code)
	rec = a.call(t, "adm", http.MethodPost, "/api/v1/admin/jobs/sweep", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"cancelled_count":0`)
}

func TestProfiles(t *testing.T) {
	a := newTestAPI(t)

	rec := a.call(t, "s1", http.MethodGet, "/api/v1/me", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	me := decode[user.Profile](t, rec)
	assert.Equal(t, "Sameer", me.Name)
	require.NotNil(t, me.Stats)
	assert.Equal(t, "100", me.Stats.WalletBalance.String())

	rec = a.call(t, "s1", http.MethodGet, "/api/v1/users/p1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Priya", decode[user.PublicProfile](t, rec).Name)

	rec = a.call(t, "s1", http.MethodGet, "/api/v1/users/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "UNKNOWN_USER", decode[errResp](t, rec).Code)
}

func TestHealthEndpoints(t *testing.T) {
	a := newTestAPI(t)
	assert.Equal(t, http.StatusOK, a.call(t, "", http.MethodGet, "/health", nil).Code)
	assert.Equal(t, http.StatusOK, a.call(t, "", http.MethodGet, "/ready", nil).Code)

	rec := a.call(t, "", http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "workerlly_tracking_subscriptions")
}
