package testutil

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"testing"
)

// StratumPool is an in-process stratum v1 pool for tests. Each accepted
// connection gets a fresh extranonce1 so reconnect behavior is observable.
// Behavior knobs must be set before the client connects.
type StratumPool struct {
	ln net.Listener

	// AuthorizeOK controls the mining.authorize response.
	AuthorizeOK bool

	// SubmitResponse, when set, builds the response for mining.submit.
	// The default accepts every share.
	SubmitResponse func(params []interface{}) (result interface{}, rpcErr interface{})

	// SilentSubmits leaves mining.submit unanswered, for in-flight and
	// timeout reconciliation tests.
	SilentSubmits bool

	// Submissions receives the params of every mining.submit seen.
	Submissions chan []interface{}

	mu       sync.Mutex
	conns    []net.Conn
	sessions int
	closed   bool
}

// NewStratumPool starts a pool on a loopback port and registers cleanup.
func NewStratumPool(t *testing.T) *StratumPool {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	p := &StratumPool{
		ln:          ln,
		AuthorizeOK: true,
		Submissions: make(chan []interface{}, 64),
	}
	go p.acceptLoop()
	t.Cleanup(p.Close)
	return p
}

// Addr returns the host and port the pool listens on.
func (p *StratumPool) Addr() (string, int) {
	addr := p.ln.Addr().(*net.TCPAddr)
	return "127.0.0.1", addr.Port
}

// Close shuts the listener and all live connections.
func (p *StratumPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	conns := append([]net.Conn(nil), p.conns...)
	p.mu.Unlock()

	p.ln.Close()
	for _, c := range conns {
		c.Close()
	}
}

// DropConnections abruptly closes every live miner connection.
func (p *StratumPool) DropConnections() {
	p.mu.Lock()
	conns := p.conns
	p.conns = nil
	p.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}

// Sessions returns how many connections the pool has accepted.
func (p *StratumPool) Sessions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sessions
}

// Notify pushes a mining.notify to all live connections.
func (p *StratumPool) Notify(params []interface{}) {
	p.notifyAll("mining.notify", params)
}

// SetDifficulty pushes a mining.set_difficulty to all live connections.
func (p *StratumPool) SetDifficulty(d float64) {
	p.notifyAll("mining.set_difficulty", []interface{}{d})
}

func (p *StratumPool) notifyAll(method string, params []interface{}) {
	msg := map[string]interface{}{"id": nil, "method": method, "params": params}

	p.mu.Lock()
	conns := append([]net.Conn(nil), p.conns...)
	p.mu.Unlock()

	for _, c := range conns {
		json.NewEncoder(c).Encode(msg)
	}
}

func (p *StratumPool) acceptLoop() {
	for {
		conn, err := p.ln.Accept()
		if err != nil {
			return
		}

		p.mu.Lock()
		p.sessions++
		session := p.sessions
		p.conns = append(p.conns, conn)
		p.mu.Unlock()

		go p.serveConn(conn, session)
	}
}

func (p *StratumPool) serveConn(conn net.Conn, session int) {
	defer conn.Close()

	enc := json.NewEncoder(conn)
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 4096), 64*1024)

	for scanner.Scan() {
		var req struct {
			ID     interface{}   `json:"id"`
			Method string        `json:"method"`
			Params []interface{} `json:"params"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			continue
		}

		switch req.Method {
		case "mining.subscribe":
			// Per-session extranonce1, so reconnects are observable.
			en1 := fmt.Sprintf("f8002c9%d", session)
			enc.Encode(map[string]interface{}{
				"id": req.ID,
				"result": []interface{}{
					[]interface{}{[]interface{}{"mining.notify", "deadbeef"}},
					en1,
					4,
				},
				"error": nil,
			})

		case "mining.authorize":
			enc.Encode(map[string]interface{}{
				"id":     req.ID,
				"result": p.AuthorizeOK,
				"error":  nil,
			})

		case "mining.submit":
			select {
			case p.Submissions <- req.Params:
			default:
			}
			if p.SilentSubmits {
				continue
			}
			var result interface{} = true
			var rpcErr interface{}
			if p.SubmitResponse != nil {
				result, rpcErr = p.SubmitResponse(req.Params)
			}
			enc.Encode(map[string]interface{}{
				"id":     req.ID,
				"result": result,
				"error":  rpcErr,
			})

		case "mining.extranonce.subscribe":
			enc.Encode(map[string]interface{}{
				"id":     req.ID,
				"result": true,
				"error":  nil,
			})
		}
	}
}
