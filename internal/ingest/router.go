// Package ingest routes camera frames published over MQTT into monitoring
// sessions, one session per device.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rewired-gh/posturewatch/internal/logger"
	"github.com/rewired-gh/posturewatch/internal/models"
	"github.com/rewired-gh/posturewatch/internal/monitor"
)

// SessionController is the subset of the monitor the router drives.
type SessionController interface {
	StartSession(ctx context.Context, userID string, startedAt time.Time) (models.Session, error)
	Submit(sessionID string, frame []byte, ts time.Time) error
	EndSession(ctx context.Context, sessionID string, endedAt time.Time) (models.Session, error)
}

type deviceSession struct {
	sessionID string
	lastFrame time.Time // capture time of the newest frame
	lastSeen  time.Time // wall-clock arrival of the newest frame
}

// Router maps device topics to sessions.
type Router struct {
	controller  SessionController
	prefix      string
	idleTimeout time.Duration
	now         func() time.Time

	mu      sync.Mutex
	devices map[string]*deviceSession
}

func NewRouter(controller SessionController, prefix string, idleTimeout time.Duration) *Router {
	return &Router{
		controller:  controller,
		prefix:      strings.TrimSuffix(prefix, "/"),
		idleTimeout: idleTimeout,
		now:         time.Now,
		devices:     make(map[string]*deviceSession),
	}
}

// Topics returns the wildcard subscriptions the router serves.
func (r *Router) Topics() []string {
	return []string{r.prefix + "/+/frame", r.prefix + "/+/end"}
}

// Subscribe registers the router on an MQTT client.
func (r *Router) Subscribe(c *Client) error {
	for _, topic := range r.Topics() {
		if err := c.Subscribe(topic, func(topic string, payload []byte) error {
			return r.HandleMessage(context.Background(), topic, payload)
		}); err != nil {
			return err
		}
	}
	return nil
}

func (r *Router) parseTopic(topic string) (device, action string, ok bool) {
	rest, found := strings.CutPrefix(topic, r.prefix+"/")
	if !found {
		return "", "", false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// HandleMessage dispatches one message by topic.
func (r *Router) HandleMessage(ctx context.Context, topic string, payload []byte) error {
	device, action, ok := r.parseTopic(topic)
	if !ok {
		return fmt.Errorf("unexpected topic %q", topic)
	}

	switch action {
	case "frame":
		return r.handleFrame(ctx, device, payload)
	case "end":
		return r.endDevice(ctx, device, parseEnd(payload, r.now()))
	default:
		return fmt.Errorf("unknown action %q on topic %q", action, topic)
	}
}

func (r *Router) handleFrame(ctx context.Context, device string, payload []byte) error {
	now := r.now()
	p, frame, ts, err := parseFrame(payload, now)
	if err != nil {
		return fmt.Errorf("device %s: %w", device, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ds, err := r.sessionFor(ctx, device, p.UserID, ts)
	if err != nil {
		return err
	}

	err = r.controller.Submit(ds.sessionID, frame, ts)
	if errors.Is(err, monitor.ErrSessionEnded) || errors.Is(err, monitor.ErrSessionNotFound) {
		// The session was ended elsewhere; start over for this device.
		delete(r.devices, device)
		if ds, err = r.sessionFor(ctx, device, p.UserID, ts); err != nil {
			return err
		}
		err = r.controller.Submit(ds.sessionID, frame, ts)
	}
	if err != nil {
		return fmt.Errorf("device %s: %w", device, err)
	}

	if ts.After(ds.lastFrame) {
		ds.lastFrame = ts
	}
	ds.lastSeen = now
	return nil
}

// sessionFor returns the device's open session, starting one if needed.
// Callers hold r.mu.
func (r *Router) sessionFor(ctx context.Context, device, userID string, ts time.Time) (*deviceSession, error) {
	if ds, ok := r.devices[device]; ok {
		return ds, nil
	}
	if userID == "" {
		userID = device
	}
	session, err := r.controller.StartSession(ctx, userID, ts)
	if err != nil {
		return nil, fmt.Errorf("failed to start session for device %s: %w", device, err)
	}
	ds := &deviceSession{sessionID: session.ID, lastFrame: ts, lastSeen: r.now()}
	r.devices[device] = ds
	logger.Info("Device %s bound to session %s", device, session.ID)
	return ds, nil
}

func (r *Router) endDevice(ctx context.Context, device string, endedAt time.Time) error {
	r.mu.Lock()
	ds, ok := r.devices[device]
	delete(r.devices, device)
	r.mu.Unlock()
	if !ok {
		logger.Debug("End requested for device %s without an open session", device)
		return nil
	}

	if _, err := r.controller.EndSession(ctx, ds.sessionID, endedAt); err != nil {
		return fmt.Errorf("failed to end session %s: %w", ds.sessionID, err)
	}
	return nil
}

// SweepIdle ends sessions whose device has sent nothing for the idle
// timeout. Each session ends at the capture time of its last frame.
func (r *Router) SweepIdle(ctx context.Context, now time.Time) int {
	if r.idleTimeout <= 0 {
		return 0
	}

	type idle struct {
		device string
		ds     *deviceSession
	}
	var expired []idle

	r.mu.Lock()
	for device, ds := range r.devices {
		if now.Sub(ds.lastSeen) >= r.idleTimeout {
			expired = append(expired, idle{device, ds})
			delete(r.devices, device)
		}
	}
	r.mu.Unlock()

	for _, e := range expired {
		logger.Info("Device %s idle, ending session %s", e.device, e.ds.sessionID)
		if _, err := r.controller.EndSession(ctx, e.ds.sessionID, e.ds.lastFrame); err != nil {
			logger.Warn("Failed to end idle session %s: %v", e.ds.sessionID, err)
		}
	}
	return len(expired)
}

// Devices returns the number of devices with an open session.
func (r *Router) Devices() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.devices)
}
