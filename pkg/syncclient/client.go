package syncclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/huangang/teamsync/internal/models"
	"github.com/huangang/teamsync/internal/protocol"
	"github.com/huangang/teamsync/pkg/logger"
	"github.com/rs/zerolog"
)

var (
	ErrNotConnected       = errors.New("syncclient: not connected")
	ErrReconnectExhausted = errors.New("syncclient: reconnect attempts exhausted")
)

const writeWait = 10 * time.Second

type Options struct {
	// URL is the server's WebSocket endpoint, e.g. ws://localhost:3001/ws.
	URL string
	// ReconnectAttempts bounds consecutive failed dials; the n-th retry
	// waits n*ReconnectDelay.
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	// Policies must match the server's table. Events the server does not
	// echo to their origin are applied locally before emitting.
	Policies protocol.PolicyTable
	Dialer   *websocket.Dialer
	// OnEvent, if set, is called after each server event is applied.
	OnEvent func(out protocol.Outbound, changed bool)
}

// Client keeps one connection to the sync server and mirrors its state
// through a Reconciler.
type Client struct {
	opts Options
	rec  *Reconciler
	log  zerolog.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

func New(opts Options) *Client {
	if opts.ReconnectAttempts <= 0 {
		opts.ReconnectAttempts = 5
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = time.Second
	}
	if opts.Policies == nil {
		opts.Policies = protocol.DefaultPolicies()
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	return &Client{
		opts: opts,
		rec:  NewReconciler(),
		log:  logger.With("syncclient"),
	}
}

func (c *Client) Reconciler() *Reconciler { return c.rec }

func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Run connects and reads until ctx is done, Close is called, or the
// reconnect budget is spent.
func (c *Client) Run(ctx context.Context) error {
	failures := 0
	for {
		conn, _, err := c.opts.Dialer.DialContext(ctx, c.opts.URL, nil)
		if err == nil {
			failures = 0
			if !c.attach(conn) {
				conn.Close()
				return nil
			}
			c.log.Info().Str("url", c.opts.URL).Msg("connected")
			err = c.readLoop(ctx, conn)
			c.detach(conn)
		}

		if c.isClosed() {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		failures++
		if failures > c.opts.ReconnectAttempts {
			return fmt.Errorf("%w: %v", ErrReconnectExhausted, err)
		}
		delay := c.opts.ReconnectDelay * time.Duration(failures)
		c.log.Warn().Err(err).Int("attempt", failures).Dur("delay", delay).Msg("disconnected, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

func (c *Client) attach(conn *websocket.Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.conn = conn
	return true
}

func (c *Client) detach(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	conn.Close()
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if mt != websocket.TextMessage {
			continue
		}

		out, changed, err := c.rec.ApplyFrame(data)
		if err != nil {
			c.log.Debug().Err(err).Msg("frame dropped")
			continue
		}
		if c.opts.OnEvent != nil {
			c.opts.OnEvent(out, changed)
		}
	}
}

// Close ends the connection and stops Run from reconnecting.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	if c.conn == nil {
		return nil
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	return c.conn.Close()
}

// emit sends ev. When predicted is set and the server will not echo it back,
// predicted is applied to the local mirror first. Nothing is queued while
// disconnected.
func (c *Client) emit(ev protocol.Inbound, predicted *protocol.Outbound) error {
	frame, err := protocol.EncodeInbound(ev)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		c.log.Debug().Str("event", ev.Kind()).Msg("emit dropped while disconnected")
		return ErrNotConnected
	}
	if predicted != nil && c.opts.Policies.For(predicted.Event) == protocol.BroadcastOthers {
		c.rec.Apply(*predicted)
	}

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

func predict(out protocol.Outbound) *protocol.Outbound { return &out }

func (c *Client) Join(user models.User) error {
	return c.emit(&protocol.Join{User: user}, predict(protocol.NewUserJoined(user)))
}

func (c *Client) Logout(userID string) error {
	return c.emit(&protocol.Logout{UserID: userID}, nil)
}

func (c *Client) SelectTeam(userID, teamID string) error {
	return c.emit(&protocol.SelectTeam{UserID: userID, TeamID: teamID}, nil)
}

func (c *Client) CreateProject(p models.Project) error {
	return c.emit(&protocol.CreateProject{Project: p}, nil)
}

// UpdateProject sends p. The local mirror takes p as the server will store
// it: progress recomputed from the tasks, and nothing at all when the leader
// is not a known member of the team.
func (c *Client) UpdateProject(p models.Project) error {
	p = p.Clone()
	p.Normalize()
	p.RecomputeProgress()

	var predicted *protocol.Outbound
	if c.rec.LeaderAllowed(&p) {
		predicted = predict(protocol.NewProjectUpdated(p))
	}
	return c.emit(&protocol.UpdateProject{Project: p}, predicted)
}

func (c *Client) SendMessage(teamID string, msg models.ChatMessage) error {
	return c.emit(&protocol.SendMessage{TeamID: teamID, Message: msg}, nil)
}

func (c *Client) AddFile(projectID string, file models.ProjectFile) error {
	return c.emit(&protocol.AddFile{ProjectID: projectID, File: file}, nil)
}

func (c *Client) UpdateFile(projectID, fileID, content string) error {
	return c.emit(&protocol.UpdateFile{ProjectID: projectID, FileID: fileID, Content: content},
		predict(protocol.NewFileUpdated(projectID, fileID, content)))
}

func (c *Client) AddTask(projectID string, task models.Task) error {
	return c.emit(&protocol.AddTask{ProjectID: projectID, Task: task}, nil)
}

func (c *Client) ToggleTask(projectID, taskID string) error {
	return c.emit(&protocol.ToggleTask{ProjectID: projectID, TaskID: taskID}, nil)
}
