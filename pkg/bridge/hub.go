package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"threadlens/pkg/config"
	"threadlens/pkg/decor"
	"threadlens/pkg/permalink"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 8 << 20
	sendBuffer     = 64
	rpcTimeout     = 15 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Plugins connect from editor processes, not browsers.
		return true
	},
}

// Config wires a hub. Matcher and Settings seed every session; the
// resolver and its cache are shared across sessions.
type Config struct {
	Matcher  *permalink.Matcher
	Resolver *decor.Resolver
	Settings config.Settings
	Logger   *zap.SugaredLogger
}

// Hub tracks connected plugin sessions.
type Hub struct {
	cfg config.Settings
	res *decor.Resolver
	mat *permalink.Matcher
	log *zap.SugaredLogger

	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	mu      sync.RWMutex
	clients map[string]*Client
}

// NewHub creates a hub. Run must be started for clients to register.
func NewHub(cfg Config) *Hub {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	if cfg.Matcher == nil {
		cfg.Matcher = permalink.New()
	}
	return &Hub{
		cfg:        cfg.Settings,
		res:        cfg.Resolver,
		mat:        cfg.Matcher,
		log:        cfg.Logger,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[string]*Client),
	}
}

// Run owns the client registry until ctx is canceled, then closes every
// connection's send channel on the way out.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for _, c := range h.clients {
				c.closeSend()
			}
			h.clients = make(map[string]*Client)
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c.id] = c
			h.mu.Unlock()
			h.log.Infow("session connected", "session", c.id)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c.id]; ok {
				delete(h.clients, c.id)
				c.closeSend()
			}
			h.mu.Unlock()
			h.log.Infow("session disconnected", "session", c.id)
		}
	}
}

// ClientCount returns the number of connected sessions.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades the request and starts a session with its own engine.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnw("websocket upgrade failed", "error", err)
		return
	}

	id := uuid.New().String()
	ctx, cancel := context.WithCancel(context.Background())
	client := &Client{
		id:     id,
		hub:    h,
		conn:   conn,
		send:   make(chan any, sendBuffer),
		ctx:    ctx,
		cancel: cancel,
		log:    h.log.With("session", id),
	}

	eng := decor.NewEngine(decor.EngineConfig{
		Matcher:    h.mat,
		Resolver:   h.res,
		Settings:   h.cfg,
		Logger:     client.log,
		OnSnapshot: client.pushSnapshot,
	})
	client.sess = newSession(id, eng, h.cfg)

	select {
	case h.register <- client:
	case <-h.done:
		cancel()
		eng.Close()
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// Client is one plugin connection.
type Client struct {
	id     string
	hub    *Hub
	conn   *websocket.Conn
	sess   *session
	ctx    context.Context
	cancel context.CancelFunc
	log    *zap.SugaredLogger

	mu     sync.RWMutex
	send   chan any
	closed bool
}

// closeSend shuts the send channel exactly once.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// trySend queues a message without blocking. A full queue drops the
// message; decoration pushes are superseded by the next scan anyway.
func (c *Client) trySend(msg any) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.send <- msg:
	default:
		c.log.Warnw("send queue full, dropping message")
	}
}

// pushSnapshot converts a committed snapshot into a decorations or
// cleared push. It runs on engine goroutines.
func (c *Client) pushSnapshot(snap *decor.Snapshot) {
	batches := batchesFrom(snap)
	if len(batches) == 0 {
		c.trySend(ClearedMessage{Type: TypeCleared, DocID: snap.ViewID})
		return
	}
	c.trySend(DecorationsMessage{
		Type:    TypeDecorations,
		DocID:   snap.ViewID,
		Version: snap.Version,
		Layers:  batches,
	})
}

func (c *Client) readPump() {
	defer func() {
		c.cancel()
		c.sess.close()
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
			c.closeSend()
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warnw("read failed", "error", err)
			}
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.log.Warnw("undecodable message", "error", err)
			continue
		}
		c.dispatch(msg)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// dispatch routes one client message. Hover and command answers resolve
// remote objects, so they run off the read loop.
func (c *Client) dispatch(msg ClientMessage) {
	switch msg.Type {
	case TypeOpen:
		if msg.Doc == nil || msg.Doc.ID == "" {
			c.log.Warnw("open without document")
			return
		}
		c.sess.open(*msg.Doc)

	case TypeChange:
		if !c.sess.change(msg.DocID, msg.Text, msg.Version) {
			c.log.Warnw("change for unknown document", "doc", msg.DocID)
		}

	case TypeFocus:
		c.sess.focus(msg.DocID)

	case TypeClose:
		if c.sess.closeDoc(msg.DocID) {
			c.trySend(ClearedMessage{Type: TypeCleared, DocID: msg.DocID})
		}

	case TypeSettings:
		if msg.Settings != nil {
			c.sess.applySettings(msg.Settings)
		}

	case TypeHover:
		go c.answerHover(msg)

	case TypeCommand:
		go c.answerCommand(msg)

	case TypePing:
		c.trySend(PongMessage{Type: TypePong})

	default:
		c.log.Warnw("unknown message type", "type", msg.Type)
	}
}

func (c *Client) answerHover(msg ClientMessage) {
	ctx, cancel := context.WithTimeout(c.ctx, rpcTimeout)
	defer cancel()

	h, ok := c.sess.eng.HoverAt(ctx, msg.DocID, msg.Offset)
	out := HoverResultMessage{Type: TypeHoverResult, ID: msg.ID, Found: ok}
	if ok {
		out.Markdown = h.Markdown
		out.Actions = make([]string, len(h.Actions))
		for i, a := range h.Actions {
			out.Actions[i] = string(a)
		}
	}
	c.trySend(out)
}

func (c *Client) answerCommand(msg ClientMessage) {
	ctx, cancel := context.WithTimeout(c.ctx, rpcTimeout)
	defer cancel()

	result, err := c.runCommand(ctx, msg.Name, msg.Args)
	out := CommandResultMessage{Type: TypeCommandResult, ID: msg.ID, OK: err == nil, Result: result}
	if err != nil {
		out.Error = err.Error()
	}
	c.trySend(out)
}

type commentBuildArgs struct {
	DocID  string `json:"doc_id"`
	Offset int    `json:"offset"`
	Leader string `json:"leader,omitempty"`
}

type trackerStatusArgs struct {
	Ref string `json:"ref,omitempty"`
}

type trackerCommentArgs struct {
	Ref  string `json:"ref"`
	Body string `json:"body"`
}

// runCommand executes one named command. Errors come back in the command
// result; they never affect the connection.
func (c *Client) runCommand(ctx context.Context, name string, args json.RawMessage) (any, error) {
	switch name {
	case CmdCacheClear:
		c.sess.eng.ClearCaches()
		return map[string]any{"cleared": true}, nil

	case CmdDecorationsToggle:
		enabled := !c.sess.eng.Enabled()
		c.sess.eng.SetEnabled(enabled)
		return map[string]any{"enabled": enabled}, nil

	case CmdCommentBuild:
		var a commentBuildArgs
		if err := unmarshalArgs(args, &a); err != nil {
			return nil, err
		}
		block, err := c.sess.eng.BuildComment(ctx, a.DocID, a.Offset, a.Leader)
		if err != nil {
			return nil, err
		}
		return map[string]any{"block": block}, nil

	case CmdTrackerStatus:
		var a trackerStatusArgs
		if err := unmarshalArgs(args, &a); err != nil {
			return nil, err
		}
		if a.Ref == "" {
			return map[string]any{"configured": c.hub.res.HasTracker()}, nil
		}
		issue, err := c.hub.res.Issue(ctx, a.Ref)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"identifier": issue.Identifier,
			"title":      issue.Title,
			"state":      issue.State.Name,
			"url":        issue.URL,
		}, nil

	case CmdTrackerComment:
		var a trackerCommentArgs
		if err := unmarshalArgs(args, &a); err != nil {
			return nil, err
		}
		if a.Ref == "" {
			return nil, fmt.Errorf("tracker.comment: missing ref")
		}
		issue, err := c.hub.res.Issue(ctx, a.Ref)
		if err != nil {
			return nil, err
		}
		comment, err := c.hub.res.CreateComment(ctx, issue.ID, a.Body)
		if err != nil {
			return nil, err
		}
		return map[string]any{"id": comment.ID, "url": comment.URL}, nil

	default:
		return nil, fmt.Errorf("unknown command %q", name)
	}
}

func unmarshalArgs(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("bad command args: %w", err)
	}
	return nil
}
