package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudo-init-do/workerlly/internal/tracking"
)

type frame struct {
	Type           string  `json:"type"`
	JobID          string  `json:"job_id"`
	Lat            float64 `json:"lat"`
	Lon            float64 `json:"lon"`
	SentToProvider bool    `json:"sent_to_provider"`
	SeekerStatus   string  `json:"seeker_status"`
	Message        string  `json:"message"`
	Code           string  `json:"code"`
}

// assignedJob posts a job as p1 and accepts s1's bid on it.
func (a *testAPI) assignedJob(t *testing.T) string {
	t.Helper()
	rec := a.call(t, "p1", http.MethodPost, "/api/v1/jobs", echo.Map{
		"category_id": "plumb",
		"title":       "Fix kitchen sink",
		"address_id":  "a1",
		"hourly_rate": 120,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	jobID := decode[jobResp](t, rec).Job.ID

	rec = a.call(t, "s1", http.MethodPost, "/api/v1/jobs/"+jobID+"/bids", echo.Map{"amount": "120"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	bidID := decode[struct {
		Bid struct {
			ID string `json:"id"`
		} `json:"bid"`
	}](t, rec).Bid.ID

	rec = a.call(t, "p1", http.MethodPost, "/api/v1/jobs/"+jobID+"/bids/"+bidID+"/accept", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return jobID
}

func dial(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func next(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func TestWebsocketTracking(t *testing.T) {
	a := newTestAPI(t)
	jobID := a.assignedJob(t)

	srv := httptest.NewServer(a.e)
	t.Cleanup(srv.Close)

	provider := dial(t, srv, a.tokens["p1"])
	require.NoError(t, provider.WriteJSON(echo.Map{"type": tracking.FrameStartTracking, "job_id": jobID}))
	f := next(t, provider)
	assert.Equal(t, tracking.FrameTrackingStart, f.Type)
	assert.Equal(t, jobID, f.JobID)
	assert.Equal(t, tracking.Offline, f.SeekerStatus)

	seeker := dial(t, srv, a.tokens["s1"])
	require.NoError(t, seeker.WriteJSON(echo.Map{"type": tracking.FrameLocationUpdate, "latitude": 12.97, "longitude": 77.59}))
	conf := next(t, seeker)
	assert.Equal(t, tracking.FrameConfirmation, conf.Type)
	assert.True(t, conf.SentToProvider)

	loc := next(t, provider)
	assert.Equal(t, tracking.FrameLocation, loc.Type)
	assert.Equal(t, jobID, loc.JobID)
	assert.InDelta(t, 12.97, loc.Lat, 1e-9)

	require.NoError(t, seeker.WriteJSON(echo.Map{"type": tracking.FrameStartTracking, "job_id": jobID}))
	f = next(t, seeker)
	assert.Equal(t, tracking.FrameError, f.Type)
	assert.Equal(t, "FORBIDDEN", f.Code)

	require.NoError(t, seeker.WriteJSON(echo.Map{"type": tracking.FrameLocationUpdate}))
	f = next(t, seeker)
	assert.Equal(t, "INVALID_INPUT", f.Code)

	require.NoError(t, provider.WriteJSON(echo.Map{"type": tracking.FrameStartTracking, "job_id": "nope"}))
	f = next(t, provider)
	assert.Equal(t, tracking.FrameError, f.Type)
	assert.Equal(t, "NOT_FOUND", f.Code)
}

func TestWebsocketRequiresToken(t *testing.T) {
	a := newTestAPI(t)
	srv := httptest.NewServer(a.e)
	t.Cleanup(srv.Close)

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
