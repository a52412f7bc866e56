package stratum

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"math/rand"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/nmdata575/cryptominer-pro/internal/job"
	"github.com/nmdata575/cryptominer-pro/pkg/util"
)

// State is the session lifecycle state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateSubscribed
	StateAuthorized
	StateMining
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	case StateAuthorized:
		return "authorized"
	case StateMining:
		return "mining"
	default:
		return "unknown"
	}
}

const (
	initialBackoff    = time.Second
	maxBackoff        = 60 * time.Second
	submitTimeout     = 30 * time.Second
	sweepInterval     = 5 * time.Second
	outboundQueueSize = 64

	defaultReadTimeout    = 240 * time.Second
	defaultConnectTimeout = 10 * time.Second
	defaultMaxInflight    = 32
	defaultAuthRetries    = 3
	defaultEventBuffer    = 128
)

var (
	// ErrNotMining is returned by Submit outside the Mining state.
	ErrNotMining = errors.New("session is not mining")

	// ErrRateLimited is returned by Submit when the in-flight cap or the
	// submission rate limiter rejects the share.
	ErrRateLimited = errors.New("submission rate limited")
)

// Config holds session parameters. All are explicit; nothing is read from
// the environment.
type Config struct {
	Host      string
	Port      int
	User      string
	Pass      string
	UserAgent string

	// Diff1 is the coin's difficulty-1 target for share target derivation.
	Diff1 *big.Int

	// MaxInflight caps concurrent unacknowledged submissions; excess
	// submissions are dropped as rate_limited.
	MaxInflight int

	// SubmitRate optionally throttles submissions per second.
	// Zero means unlimited.
	SubmitRate rate.Limit

	ReadTimeout    time.Duration
	ConnectTimeout time.Duration
	AuthRetries    int
	EventBuffer    int
}

func (c Config) withDefaults() Config {
	if c.UserAgent == "" {
		c.UserAgent = "cryptominer-pro/1.0"
	}
	if c.MaxInflight <= 0 {
		c.MaxInflight = defaultMaxInflight
	}
	if c.SubmitRate <= 0 {
		c.SubmitRate = rate.Inf
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = defaultReadTimeout
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = defaultConnectTimeout
	}
	if c.AuthRetries <= 0 {
		c.AuthRetries = defaultAuthRetries
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = defaultEventBuffer
	}
	return c
}

type pendingKind int

const (
	pendingSubscribe pendingKind = iota
	pendingAuthorize
	pendingExtranonce
	pendingSubmit
)

type pendingRequest struct {
	kind   pendingKind
	sentAt time.Time
	jobID  string
}

// Client is a stratum v1 pool session. It owns the connection and all
// session state; the coordinator consumes Events and calls Submit.
type Client struct {
	cfg     Config
	logger  *zap.Logger
	limiter *rate.Limiter

	events chan Event

	state         atomic.Int32
	sessions      atomic.Uint64
	reconnects    atomic.Uint64
	lost          atomic.Uint64
	rateLimited   atomic.Uint64
	jobSeq        atomic.Uint64
	nextID        atomic.Uint64
	miningReached atomic.Bool

	mu           sync.Mutex
	conn         net.Conn
	outbound     chan *Request
	extranonce1  []byte
	en2size      int
	difficulty   float64
	shareTarget  *big.Int
	authorized   bool
	authFails    int
	pending      map[uint64]*pendingRequest
	inflight     int
	redirectHost string
	redirectPort int
}

// NewClient creates a session client. Run must be called to connect.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	cfg = cfg.withDefaults()
	burst := cfg.MaxInflight
	if cfg.SubmitRate == rate.Inf {
		burst = 0
	}
	return &Client{
		cfg:     cfg,
		logger:  logger,
		limiter: rate.NewLimiter(cfg.SubmitRate, burst),
		events:  make(chan Event, cfg.EventBuffer),
		pending: make(map[uint64]*pendingRequest),
	}
}

// Events returns the event stream. The channel is closed when Run returns.
func (c *Client) Events() <-chan Event { return c.events }

// State returns the current lifecycle state.
func (c *Client) State() State { return State(c.state.Load()) }

func (c *Client) setState(s State) { c.state.Store(int32(s)) }

// Run connects and services the session until ctx is canceled or a fatal
// error (auth, resource) occurs. Transient failures reconnect with
// exponential backoff and ±20% jitter.
func (c *Client) Run(ctx context.Context) {
	defer close(c.events)
	defer c.setState(StateDisconnected)

	backoff := initialBackoff
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			delay := jitter(backoff)
			c.logger.Info("reconnecting",
				zap.Duration("delay", delay),
				zap.Uint64("reconnects", c.reconnects.Load()),
			)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		err := c.runSession(ctx)
		if ctx.Err() != nil {
			return
		}

		if c.miningReached.Swap(false) {
			backoff = initialBackoff
		}

		var se *SessionError
		fatal := errors.As(err, &se) && (se.Kind == KindAuth || se.Kind == KindResource)
		c.emit(Disconnected{Err: err, Fatal: fatal})
		if fatal {
			c.logger.Error("session failed permanently", zap.Error(err))
			return
		}
		c.logger.Warn("session ended", zap.Error(err))
	}
}

func (c *Client) runSession(ctx context.Context) error {
	host, port := c.endpoint()
	c.setState(StateConnecting)

	dialer := net.Dialer{Timeout: c.cfg.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return &SessionError{Kind: KindNetwork, Op: "connect", Err: err}
	}

	if c.sessions.Add(1) > 1 {
		c.reconnects.Add(1)
	}
	c.logger.Info("connected to pool", zap.String("host", host), zap.Int("port", port))

	codec := NewCodec(conn, c.cfg.ReadTimeout)
	outbound := make(chan *Request, outboundQueueSize)

	c.mu.Lock()
	c.conn = conn
	c.outbound = outbound
	c.extranonce1 = nil
	c.en2size = 0
	c.authorized = false
	c.authFails = 0
	c.pending = make(map[uint64]*pendingRequest)
	c.inflight = 0
	c.mu.Unlock()

	done := make(chan struct{})
	defer c.teardown(conn)
	defer close(done)

	go c.writeLoop(conn, outbound, done)
	go c.sweepLoop(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	if err := c.send(pendingSubscribe, "mining.subscribe", []interface{}{c.cfg.UserAgent}); err != nil {
		return err
	}

	for {
		m, err := codec.ReadMessage()
		if err != nil {
			return err
		}
		if err := c.handleMessage(m); err != nil {
			return err
		}
	}
}

// teardown closes the connection and reconciles in-flight submissions:
// unacknowledged submits are counted as lost, never retried.
func (c *Client) teardown(conn net.Conn) {
	conn.Close()
	c.setState(StateDisconnected)

	c.mu.Lock()
	var lostIDs []uint64
	for id, p := range c.pending {
		if p.kind == pendingSubmit {
			lostIDs = append(lostIDs, id)
		}
		delete(c.pending, id)
	}
	c.inflight = 0
	c.conn = nil
	c.outbound = nil
	c.mu.Unlock()

	for _, id := range lostIDs {
		c.lost.Add(1)
		c.emit(ShareResult{SubmitID: id, Lost: true, Reason: "disconnected"})
	}
}

func (c *Client) writeLoop(conn net.Conn, outbound <-chan *Request, done <-chan struct{}) {
	encoder := json.NewEncoder(conn)
	for {
		select {
		case req := <-outbound:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := encoder.Encode(req); err != nil {
				// The read loop observes the closed connection and
				// tears the session down.
				conn.Close()
				return
			}
		case <-done:
			return
		}
	}
}

// sweepLoop reconciles pending submits that never got a response.
func (c *Client) sweepLoop(done <-chan struct{}) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			now := time.Now()
			c.mu.Lock()
			var timedOut []uint64
			for id, p := range c.pending {
				if p.kind == pendingSubmit && now.Sub(p.sentAt) > submitTimeout {
					delete(c.pending, id)
					c.inflight--
					timedOut = append(timedOut, id)
				}
			}
			c.mu.Unlock()

			for _, id := range timedOut {
				c.lost.Add(1)
				c.logger.Warn("submission timed out", zap.Uint64("rpc_id", id))
				c.emit(ShareResult{SubmitID: id, Lost: true, Reason: "timeout"})
			}
		}
	}
}

// send queues a control request and registers it for correlation.
func (c *Client) send(kind pendingKind, method string, params []interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.outbound == nil {
		return &SessionError{Kind: KindNetwork, Op: method, Err: errors.New("not connected")}
	}

	id := c.nextID.Add(1)
	req := &Request{ID: id, Method: method, Params: params}
	select {
	case c.outbound <- req:
		c.pending[id] = &pendingRequest{kind: kind, sentAt: time.Now()}
		return nil
	default:
		return &SessionError{Kind: KindNetwork, Op: method, Err: errors.New("outbound queue full")}
	}
}

// Submit queues a mining.submit for the given share. The accept/reject
// outcome arrives later as a ShareResult event carrying the returned id.
func (c *Client) Submit(jobID string, extranonce2 []byte, ntime, nonce uint32) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.outbound == nil || !c.authorized {
		return 0, ErrNotMining
	}
	if c.inflight >= c.cfg.MaxInflight || !c.limiter.Allow() {
		c.rateLimited.Add(1)
		return 0, ErrRateLimited
	}

	id := c.nextID.Add(1)
	req := &Request{
		ID:     id,
		Method: "mining.submit",
		Params: []interface{}{
			c.cfg.User,
			jobID,
			hex.EncodeToString(extranonce2),
			util.Uint32ToHexBE(ntime),
			util.Uint32ToHexBE(nonce),
		},
	}

	select {
	case c.outbound <- req:
		c.pending[id] = &pendingRequest{kind: pendingSubmit, sentAt: time.Now(), jobID: jobID}
		c.inflight++
		return id, nil
	default:
		c.rateLimited.Add(1)
		return 0, ErrRateLimited
	}
}

func (c *Client) handleMessage(m *Message) error {
	if m.IsNotification() {
		return c.handleNotification(m)
	}

	id, ok := m.ResponseID()
	if !ok {
		c.logger.Warn("response without usable id")
		return nil
	}

	c.mu.Lock()
	p := c.pending[id]
	if p != nil {
		delete(c.pending, id)
		if p.kind == pendingSubmit {
			c.inflight--
		}
	}
	c.mu.Unlock()

	if p == nil {
		c.logger.Debug("response for unknown request", zap.Uint64("rpc_id", id))
		return nil
	}

	switch p.kind {
	case pendingSubscribe:
		return c.handleSubscribeResult(m)
	case pendingAuthorize:
		return c.handleAuthorizeResult(m)
	case pendingExtranonce:
		// Optional extension; errors are fine.
		return nil
	case pendingSubmit:
		c.handleSubmitResult(id, p, m)
	}
	return nil
}

func (c *Client) handleNotification(m *Message) error {
	switch m.Method {
	case "mining.notify":
		params, err := m.NotifyParams()
		if err != nil {
			return &SessionError{Kind: KindProtocol, Op: "notify", Err: err}
		}
		j, err := job.FromNotifyParams(params)
		if err != nil {
			return &SessionError{Kind: KindProtocol, Op: "notify", Err: err}
		}

		c.mu.Lock()
		if c.shareTarget == nil {
			// No set_difficulty yet: difficulty 1.
			c.difficulty = 1
			c.shareTarget = new(big.Int).Set(c.cfg.Diff1)
		}
		j.ShareTarget = c.shareTarget
		c.mu.Unlock()

		j.Seq = c.jobSeq.Add(1)
		c.logger.Debug("job received",
			zap.String("job_id", j.ID),
			zap.Bool("clean", j.CleanJobs),
			zap.Int("branches", len(j.MerkleBranch)),
		)
		c.emit(JobNotification{Job: j})

	case "mining.set_difficulty":
		params, err := m.NotifyParams()
		if err != nil {
			return &SessionError{Kind: KindProtocol, Op: "set_difficulty", Err: err}
		}
		if len(params) != 1 {
			return &SessionError{Kind: KindProtocol, Op: "set_difficulty",
				Err: fmt.Errorf("expected 1 param, got %d", len(params))}
		}
		d, ok := params[0].(float64)
		if !ok || d <= 0 {
			return &SessionError{Kind: KindProtocol, Op: "set_difficulty",
				Err: fmt.Errorf("invalid difficulty %v", params[0])}
		}

		target := util.DifficultyToTarget(d, c.cfg.Diff1)
		c.mu.Lock()
		c.difficulty = d
		c.shareTarget = target
		c.mu.Unlock()

		c.logger.Info("difficulty changed", zap.Float64("difficulty", d))
		c.emit(DifficultyChanged{Difficulty: d, Target: target})

	case "mining.set_extranonce":
		params, err := m.NotifyParams()
		if err != nil || len(params) < 2 {
			return &SessionError{Kind: KindProtocol, Op: "set_extranonce", Err: err}
		}
		en1Hex, ok1 := params[0].(string)
		size, ok2 := params[1].(float64)
		if !ok1 || !ok2 || size < 1 || size > 8 {
			return &SessionError{Kind: KindProtocol, Op: "set_extranonce",
				Err: fmt.Errorf("invalid params %v", params)}
		}
		en1, err := hex.DecodeString(en1Hex)
		if err != nil {
			return &SessionError{Kind: KindProtocol, Op: "set_extranonce", Err: err}
		}

		c.mu.Lock()
		c.extranonce1 = en1
		c.en2size = int(size)
		c.mu.Unlock()

		c.logger.Info("extranonce changed", zap.String("extranonce1", en1Hex))
		c.emit(SessionUp{Extranonce1: en1, Extranonce2Size: int(size)})

	case "client.reconnect":
		params, _ := m.NotifyParams()
		c.mu.Lock()
		c.redirectHost, c.redirectPort = "", 0
		if len(params) > 0 {
			if h, ok := params[0].(string); ok {
				c.redirectHost = h
			}
		}
		if len(params) > 1 {
			if p, ok := params[1].(float64); ok {
				c.redirectPort = int(p)
			}
		}
		c.mu.Unlock()
		return &SessionError{Kind: KindNetwork, Op: "reconnect",
			Err: errors.New("server requested reconnect")}

	default:
		params, _ := m.NotifyParams()
		c.emit(ServerMessage{Method: m.Method, Params: params})
	}
	return nil
}

func (c *Client) handleSubscribeResult(m *Message) error {
	if rpcErr := RPCErrorFromRaw(m.Error); rpcErr != nil {
		return &SessionError{Kind: KindProtocol, Op: "subscribe", Err: rpcErr}
	}

	// Result: [[subscription details...], extranonce1_hex, extranonce2_size]
	var result []json.RawMessage
	if err := json.Unmarshal(m.Result, &result); err != nil || len(result) < 3 {
		return &SessionError{Kind: KindProtocol, Op: "subscribe",
			Err: fmt.Errorf("unexpected result %s", string(m.Result))}
	}

	var en1Hex string
	if err := json.Unmarshal(result[1], &en1Hex); err != nil {
		return &SessionError{Kind: KindProtocol, Op: "subscribe", Err: err}
	}
	en1, err := hex.DecodeString(en1Hex)
	if err != nil {
		return &SessionError{Kind: KindProtocol, Op: "subscribe", Err: err}
	}

	var size int
	if err := json.Unmarshal(result[2], &size); err != nil || size < 1 || size > 8 {
		return &SessionError{Kind: KindProtocol, Op: "subscribe",
			Err: fmt.Errorf("invalid extranonce2 size %s", string(result[2]))}
	}

	c.mu.Lock()
	c.extranonce1 = en1
	c.en2size = size
	c.mu.Unlock()
	c.setState(StateSubscribed)

	c.logger.Info("subscribed",
		zap.String("extranonce1", en1Hex),
		zap.Int("extranonce2_size", size),
	)

	return c.send(pendingAuthorize, "mining.authorize", []interface{}{c.cfg.User, c.cfg.Pass})
}

func (c *Client) handleAuthorizeResult(m *Message) error {
	rpcErr := RPCErrorFromRaw(m.Error)
	var granted bool
	if rpcErr == nil {
		json.Unmarshal(m.Result, &granted)
	}

	if !granted {
		c.mu.Lock()
		c.authFails++
		fails := c.authFails
		c.mu.Unlock()

		var reason error = errors.New("pool declined authorization")
		if rpcErr != nil {
			reason = rpcErr
		}
		if fails > c.cfg.AuthRetries {
			return &SessionError{Kind: KindAuth, Op: "authorize", Err: reason}
		}
		c.logger.Warn("authorization rejected, retrying",
			zap.Int("attempt", fails),
			zap.Error(reason),
		)
		return c.send(pendingAuthorize, "mining.authorize", []interface{}{c.cfg.User, c.cfg.Pass})
	}

	c.mu.Lock()
	c.authorized = true
	en1 := append([]byte(nil), c.extranonce1...)
	size := c.en2size
	c.mu.Unlock()

	c.setState(StateAuthorized)
	c.logger.Info("authorized", zap.String("user", c.cfg.User))

	// Mining requires both extranonce1 and authorization; subscribe has
	// already resolved by the time the authorize response arrives.
	if len(en1) > 0 {
		c.setState(StateMining)
		c.miningReached.Store(true)
		c.emit(SessionUp{Extranonce1: en1, Extranonce2Size: size})
	}

	// Best-effort: ask for set_extranonce notifications.
	return c.send(pendingExtranonce, "mining.extranonce.subscribe", []interface{}{})
}

func (c *Client) handleSubmitResult(id uint64, p *pendingRequest, m *Message) {
	rpcErr := RPCErrorFromRaw(m.Error)

	if rpcErr != nil {
		kind := rpcErr.RejectKind()
		level := c.logger.Warn
		if kind == KindLowDiff {
			// A share the worker accepted but the pool rejects below
			// difficulty points at a header or target bug.
			level = c.logger.Error
		}
		level("share rejected",
			zap.Uint64("rpc_id", id),
			zap.String("job_id", p.jobID),
			zap.String("kind", kind.String()),
			zap.String("reason", rpcErr.Message),
		)
		c.emit(ShareResult{SubmitID: id, Accepted: false, Kind: kind, Reason: rpcErr.Message})
		return
	}

	// Some pools answer null for accepted shares.
	accepted := len(m.Result) == 0 || string(m.Result) == "null"
	if !accepted {
		json.Unmarshal(m.Result, &accepted)
	}

	if !accepted {
		c.emit(ShareResult{SubmitID: id, Accepted: false, Kind: KindReject, Reason: "rejected"})
		return
	}

	c.logger.Debug("share accepted", zap.Uint64("rpc_id", id), zap.String("job_id", p.jobID))
	c.emit(ShareResult{SubmitID: id, Accepted: true})
}

func (c *Client) emit(ev Event) {
	c.events <- ev
}

// endpoint returns the next host/port to dial, honoring a pending
// client.reconnect redirect.
func (c *Client) endpoint() (string, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	host, port := c.cfg.Host, c.cfg.Port
	if c.redirectHost != "" {
		host = c.redirectHost
	}
	if c.redirectPort != 0 {
		port = c.redirectPort
	}
	return host, port
}

// jitter applies ±20% to a backoff delay.
func jitter(d time.Duration) time.Duration {
	f := 0.8 + 0.4*rand.Float64()
	return time.Duration(float64(d) * f)
}

// Difficulty returns the current session difficulty.
func (c *Client) Difficulty() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.difficulty
}

// ShareTarget returns the target for newly issued slices. Nil before the
// first difficulty or job is seen.
func (c *Client) ShareTarget() *big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shareTarget == nil {
		return nil
	}
	return new(big.Int).Set(c.shareTarget)
}

// Extranonce returns the session extranonce1 and extranonce2 size.
func (c *Client) Extranonce() ([]byte, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.extranonce1...), c.en2size
}

// Reconnects returns how many times the session re-established after the
// first connect.
func (c *Client) Reconnects() uint64 { return c.reconnects.Load() }

// Lost returns how many submissions timed out or died with a connection.
func (c *Client) Lost() uint64 { return c.lost.Load() }

// RateLimited returns how many submissions were dropped at the cap.
func (c *Client) RateLimited() uint64 { return c.rateLimited.Load() }

// Inflight returns the number of unacknowledged submissions.
func (c *Client) Inflight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inflight
}
