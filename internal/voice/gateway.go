package voice

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"

	"github.com/nguyentantai21042004/meeting-recorder/internal/logger"
	"github.com/nguyentantai21042004/meeting-recorder/internal/models"
)

var errNotConnected = errors.New("bridge not connected")

var upgrader = websocket.Upgrader{
	// bridges are services, not browsers
	CheckOrigin: func(r *http.Request) bool { return true },
}

// GatewayOptions configure the bridge listener.
type GatewayOptions struct {
	// WorkerTokens maps worker id to the token its bridge authenticates with.
	WorkerTokens map[string]string
	ControlToken string
	RecordDir    string
	PingInterval time.Duration
	MaxFrame     int64
	StopTimeout  time.Duration
	// RequestTimeout bounds how long a control request waits for its reply.
	RequestTimeout time.Duration
}

// Gateway connects the recorder to bridge processes: one control bridge that
// reports voice events and renders presentation, and one bridge per worker
// identity that streams captured audio.
type Gateway struct {
	opts   GatewayOptions
	logger logger.Logger
	events chan Event

	mu         sync.Mutex
	control    *bridgeConn
	workers    map[string]*bridgeConn
	recordings map[string]*gatewayRecording
	pending    map[string]chan envelope
	names      map[string]string
}

// eventQueue buffers voice events between the control reader and the
// events channel so a slow consumer never stalls reply handling.
type eventQueue struct {
	mu     sync.Mutex
	items  []Event
	signal chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{signal: make(chan struct{}, 1)}
}

func (q *eventQueue) push(ev Event) {
	q.mu.Lock()
	q.items = append(q.items, ev)
	q.mu.Unlock()
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *eventQueue) take() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

type bridgeConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	closed  chan struct{}
	once    sync.Once
}

func (b *bridgeConn) send(msg envelope) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	b.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return b.conn.WriteMessage(websocket.TextMessage, data)
}

func (b *bridgeConn) close() {
	b.once.Do(func() {
		close(b.closed)
		b.conn.Close()
	})
}

// NewGateway creates a Gateway with no bridges connected.
func NewGateway(opts GatewayOptions, log logger.Logger) *Gateway {
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.MaxFrame <= 0 {
		opts.MaxFrame = 1 << 20
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = 10 * time.Second
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}
	return &Gateway{
		opts:       opts,
		logger:     log,
		events:     make(chan Event, 256),
		workers:    make(map[string]*bridgeConn),
		recordings: make(map[string]*gatewayRecording),
		pending:    make(map[string]chan envelope),
		names:      make(map[string]string),
	}
}

// Handler serves the bridge endpoints.
func (g *Gateway) Handler() http.Handler {
	router := httprouter.New()
	router.GET("/bridge/control", g.handleControl)
	router.GET("/bridge/worker/:id", g.handleWorker)
	return router
}

// Events yields voice-state changes reported by the control bridge.
func (g *Gateway) Events() <-chan Event {
	return g.events
}

// Capture returns the capture handle of one worker identity.
func (g *Gateway) Capture(workerID string) Capture {
	return &gatewayCapture{gateway: g, workerID: workerID}
}

func (g *Gateway) DisplayName(memberID string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	name, ok := g.names[memberID]
	return name, ok
}

func (g *Gateway) CreateSession(ctx context.Context, name, initiatorID string) (string, error) {
	reply, err := g.request(ctx, envelope{Type: msgCreateSession, Name: name, InitiatorID: initiatorID})
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	if reply.ChannelID == "" {
		return "", fmt.Errorf("create session: bridge returned no channel id")
	}
	return reply.ChannelID, nil
}

func (g *Gateway) CloseSession(ctx context.Context, channelID string) error {
	return g.sendControl(envelope{Type: msgCloseSession, ChannelID: channelID})
}

func (g *Gateway) OpenThread(ctx context.Context, title, content string) (string, error) {
	reply, err := g.request(ctx, envelope{Type: msgOpenThread, Name: title, Content: content})
	if err != nil {
		return "", fmt.Errorf("open thread: %w", err)
	}
	return reply.ThreadID, nil
}

func (g *Gateway) Notify(ctx context.Context, threadID, text string) error {
	return g.sendControl(envelope{Type: msgPost, ThreadID: threadID, Content: text})
}

func (g *Gateway) PostFile(ctx context.Context, threadID, message, filename, content string) error {
	return g.sendControl(envelope{Type: msgPost, ThreadID: threadID, Content: message, Filename: filename, Attachment: content})
}

func (g *Gateway) SetTitle(ctx context.Context, threadID, title string) error {
	return g.sendControl(envelope{Type: msgSetTitle, ThreadID: threadID, Name: title})
}

func (g *Gateway) sendControl(msg envelope) error {
	g.mu.Lock()
	c := g.control
	g.mu.Unlock()
	if c == nil {
		return models.Transient(errNotConnected)
	}
	return c.send(msg)
}

func (g *Gateway) request(ctx context.Context, msg envelope) (envelope, error) {
	ctx, cancel := context.WithTimeout(ctx, g.opts.RequestTimeout)
	defer cancel()

	g.mu.Lock()
	c := g.control
	if c == nil {
		g.mu.Unlock()
		return envelope{}, models.Transient(errNotConnected)
	}
	msg.RequestID = uuid.NewString()
	ch := make(chan envelope, 1)
	g.pending[msg.RequestID] = ch
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		delete(g.pending, msg.RequestID)
		g.mu.Unlock()
	}()

	if err := c.send(msg); err != nil {
		return envelope{}, models.Transient(err)
	}

	select {
	case reply := <-ch:
		if reply.Error != "" {
			return envelope{}, errors.New(reply.Error)
		}
		return reply, nil
	case <-c.closed:
		return envelope{}, models.Transient(errNotConnected)
	case <-ctx.Done():
		return envelope{}, fmt.Errorf("%s: no reply: %w", msg.Type, ctx.Err())
	}
}

// pump forwards queued events until the connection closes.
func (g *Gateway) pump(q *eventQueue, closed <-chan struct{}) {
	for {
		select {
		case <-q.signal:
		case <-closed:
			return
		}
		for _, ev := range q.take() {
			select {
			case g.events <- ev:
			case <-closed:
				return
			}
		}
	}
}

func (g *Gateway) resolve(reply envelope) {
	g.mu.Lock()
	ch, ok := g.pending[reply.RequestID]
	g.mu.Unlock()
	if ok {
		select {
		case ch <- reply:
		default:
		}
	}
}

func (g *Gateway) handleControl(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if !tokenMatches(r, g.opts.ControlToken) {
		http.Error(w, "Invalid token", http.StatusUnauthorized)
		return
	}
	bc, err := g.upgrade(w, r)
	if err != nil {
		return
	}

	g.mu.Lock()
	prev := g.control
	g.control = bc
	g.mu.Unlock()
	if prev != nil {
		prev.close()
	}
	g.logger.Info(r.Context(), "Control bridge connected from %s", r.RemoteAddr)

	queue := newEventQueue()
	go g.pump(queue, bc.closed)

	defer func() {
		g.mu.Lock()
		if g.control == bc {
			g.control = nil
		}
		g.mu.Unlock()
		bc.close()
		g.logger.Warn(context.Background(), "Control bridge disconnected")
	}()

	for {
		mt, data, err := bc.conn.ReadMessage()
		if err != nil {
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			g.logger.Warn(r.Context(), "Dropping malformed control message: %v", err)
			continue
		}
		switch env.Type {
		case msgVoiceState:
			if env.Event == nil {
				continue
			}
			ev := *env.Event
			if ev.At.IsZero() {
				ev.At = time.Now()
			}
			if ev.MemberName != "" {
				g.mu.Lock()
				g.names[ev.MemberID] = ev.MemberName
				g.mu.Unlock()
			}
			queue.push(ev)
		case msgReply:
			g.resolve(env)
		}
	}
}

func (g *Gateway) handleWorker(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	workerID := ps.ByName("id")
	token, known := g.opts.WorkerTokens[workerID]
	if !known {
		http.Error(w, "Unknown worker", http.StatusNotFound)
		return
	}
	if !tokenMatches(r, token) {
		http.Error(w, "Invalid token", http.StatusUnauthorized)
		return
	}
	bc, err := g.upgrade(w, r)
	if err != nil {
		return
	}

	g.mu.Lock()
	prev := g.workers[workerID]
	g.workers[workerID] = bc
	g.mu.Unlock()
	if prev != nil {
		prev.close()
	}
	g.logger.Info(r.Context(), "Worker bridge %s connected", workerID)

	defer func() {
		g.mu.Lock()
		if g.workers[workerID] == bc {
			delete(g.workers, workerID)
		}
		rec := g.recordings[workerID]
		g.mu.Unlock()
		bc.close()
		if rec != nil {
			rec.finish(fmt.Errorf("%w: worker bridge %s disconnected", models.ErrPartialCapture, workerID))
		}
		g.logger.Warn(context.Background(), "Worker bridge %s disconnected", workerID)
	}()

	for {
		mt, data, err := bc.conn.ReadMessage()
		if err != nil {
			return
		}

		g.mu.Lock()
		rec := g.recordings[workerID]
		g.mu.Unlock()

		if mt == websocket.BinaryMessage {
			member, audio, ok := decodeAudioFrame(data)
			if ok && rec != nil {
				rec.write(member, audio)
			}
			continue
		}

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		switch env.Type {
		case msgRecordingStopped:
			if rec != nil && rec.id == env.RecordingID {
				var ferr error
				if env.Error != "" {
					ferr = fmt.Errorf("%w: %s", models.ErrPartialCapture, env.Error)
				}
				rec.finish(ferr)
			}
		case msgRecordingStarted:
			g.logger.Debug(r.Context(), "Worker %s started recording %s", workerID, env.RecordingID)
		case msgReply:
			g.resolve(env)
		}
	}
}

func (g *Gateway) upgrade(w http.ResponseWriter, r *http.Request) (*bridgeConn, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Error(r.Context(), "WebSocket upgrade error: %v", err)
		return nil, err
	}
	conn.SetReadLimit(g.opts.MaxFrame)

	bc := &bridgeConn{conn: conn, closed: make(chan struct{})}
	deadline := 2 * g.opts.PingInterval
	conn.SetReadDeadline(time.Now().Add(deadline))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(deadline))
	})

	go func() {
		ticker := time.NewTicker(g.opts.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-bc.closed:
				return
			case <-ticker.C:
				bc.writeMu.Lock()
				err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
				bc.writeMu.Unlock()
				if err != nil {
					bc.close()
					return
				}
			}
		}
	}()
	return bc, nil
}

func (g *Gateway) workerConn(workerID string) *bridgeConn {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.workers[workerID]
}

func (g *Gateway) clearRecording(workerID string, rec *gatewayRecording) {
	g.mu.Lock()
	if g.recordings[workerID] == rec {
		delete(g.recordings, workerID)
	}
	g.mu.Unlock()
}

func tokenMatches(r *http.Request, want string) bool {
	if want == "" {
		return false
	}
	got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if got == "" {
		got = r.URL.Query().Get("token")
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
