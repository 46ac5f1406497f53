package tracking

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/workerlly/internal/apperr"
	"github.com/sudo-init-do/workerlly/internal/geo"
	"github.com/sudo-init-do/workerlly/internal/logger"
)

const (
	pingInterval = 30 * time.Second
	writeWait    = 10 * time.Second
	sendBuffer   = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type inbound struct {
	Type      string   `json:"type"`
	JobID     string   `json:"job_id"`
	Lat       *float64 `json:"lat"`
	Lon       *float64 `json:"lon"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

func (m inbound) point() (geo.Point, bool) {
	lat, lon := m.Lat, m.Lon
	if lat == nil {
		lat = m.Latitude
	}
	if lon == nil {
		lon = m.Longitude
	}
	if lat == nil || lon == nil {
		return geo.Point{}, false
	}
	return geo.Point{Lat: *lat, Lon: *lon}, true
}

type errorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type jobFrame struct {
	Type  string `json:"type"`
	JobID string `json:"job_id"`
}

// trackingFrame confirms a subscription with the job's current state.
type trackingFrame struct {
	Type  string `json:"type"`
	JobID string `json:"job_id"`
	*Snapshot
}

// Handler serves the unified socket used by seekers to push positions and by
// providers to follow them.
type Handler struct {
	svc  *Service
	ping time.Duration
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc, ping: pingInterval}
}

// Serve expects the auth middleware to have set user_id and roles.
func (h *Handler) Serve(c echo.Context) error {
	userID, _ := c.Get("user_id").(string)
	if userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	roles, _ := c.Get("roles").([]string)

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	ctx := logger.WithUserID(c.Request().Context(), userID)
	cl := &client{
		conn:    conn,
		svc:     h.svc,
		userID:  userID,
		roles:   roles,
		send:    make(chan any, sendBuffer),
		done:    make(chan struct{}),
		tracked: make(map[string]struct{}),
	}
	logger.FromContext(ctx).Info("websocket connected", "roles", roles)

	go cl.writePump(h.ping)
	cl.readPump(ctx)
	return nil
}

// client is one socket. It is a Subscriber for every job it tracks.
type client struct {
	conn   *websocket.Conn
	svc    *Service
	userID string
	roles  []string

	send     chan any
	done     chan struct{}
	doneOnce sync.Once

	mu      sync.Mutex
	tracked map[string]struct{}
}

func (c *client) Deliver(f LocationFrame) bool {
	return c.push(f)
}

func (c *client) Closed(jobID string) {
	c.mu.Lock()
	delete(c.tracked, jobID)
	c.mu.Unlock()
	c.push(jobFrame{Type: FrameTrackingStop, JobID: jobID})
}

// push never blocks; a full buffer drops the frame.
func (c *client) push(v any) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- v:
		return true
	default:
		return false
	}
}

func (c *client) shutdown() {
	c.doneOnce.Do(func() { close(c.done) })
}

func (c *client) hasRole(r string) bool {
	return slices.Contains(c.roles, r)
}

func (c *client) readPump(ctx context.Context) {
	log := logger.FromContext(ctx)
	defer func() {
		c.mu.Lock()
		jobs := make([]string, 0, len(c.tracked))
		for id := range c.tracked {
			jobs = append(jobs, id)
		}
		c.tracked = map[string]struct{}{}
		c.mu.Unlock()
		for _, id := range jobs {
			c.svc.Untrack(context.WithoutCancel(ctx), id, c)
		}
		c.shutdown()
		c.conn.Close()
		log.Info("websocket disconnected")
	}()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("websocket read error", "error", err)
			}
			return
		}
		var msg inbound
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.push(errorFrame{Type: FrameError, Message: "invalid message"})
			continue
		}
		c.handle(ctx, msg)
	}
}

func (c *client) handle(ctx context.Context, msg inbound) {
	switch {
	case msg.Type == FramePong:
	case msg.Type == FrameLocationUpdate && c.hasRole("seeker"):
		p, ok := msg.point()
		if !ok {
			c.push(errorFrame{Type: FrameError, Message: "latitude and longitude are required", Code: string(apperr.InvalidInput)})
			return
		}
		conf, err := c.svc.UpdateLocation(ctx, c.userID, p)
		if err != nil {
			c.pushErr(err)
			return
		}
		c.push(conf)
	case msg.Type == FrameStartTracking && c.hasRole("provider"):
		if msg.JobID == "" {
			c.push(errorFrame{Type: FrameError, Message: "job_id is required for tracking", Code: string(apperr.InvalidInput)})
			return
		}
		snap, err := c.svc.Track(ctx, c.userID, msg.JobID, c)
		if err != nil {
			c.pushErr(err)
			return
		}
		c.mu.Lock()
		c.tracked[msg.JobID] = struct{}{}
		c.mu.Unlock()
		c.push(trackingFrame{Type: FrameTrackingStart, JobID: msg.JobID, Snapshot: snap})
	case msg.Type == FrameStopTracking && c.hasRole("provider"):
		c.mu.Lock()
		delete(c.tracked, msg.JobID)
		c.mu.Unlock()
		c.svc.Untrack(ctx, msg.JobID, c)
		c.push(jobFrame{Type: FrameTrackingStop, JobID: msg.JobID})
	case msg.Type == FrameLocationUpdate, msg.Type == FrameStartTracking, msg.Type == FrameStopTracking:
		c.push(errorFrame{Type: FrameError, Message: msg.Type + " is not allowed for your role", Code: string(apperr.Forbidden)})
	default:
		c.push(errorFrame{Type: FrameError, Message: "unknown message type: " + msg.Type})
	}
}

func (c *client) pushErr(err error) {
	c.push(errorFrame{Type: FrameError, Message: apperr.Message(err), Code: string(apperr.KindOf(err))})
}

func (c *client) writePump(ping time.Duration) {
	ticker := time.NewTicker(ping)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case <-c.done:
			return
		case v := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(v); err != nil {
				c.shutdown()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(map[string]string{"type": FramePing}); err != nil {
				c.shutdown()
				return
			}
		}
	}
}
