package stratum

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"time"
)

const (
	// writeTimeout is the maximum time to wait for a write to complete.
	writeTimeout = 10 * time.Second

	// maxLineSize is the maximum length of a single JSON-RPC line.
	// Prevents memory exhaustion from an endless unterminated line.
	maxLineSize = 64 * 1024
)

// Request is an outbound client request.
type Request struct {
	ID     uint64        `json:"id"`
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
}

// Message is a single inbound line: a notification (method present) or a
// response (id present, method absent).
type Message struct {
	ID     interface{}     `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
	Result json.RawMessage `json:"result"`
	Error  json.RawMessage `json:"error"`
}

// IsNotification reports whether the message is a server notification.
func (m *Message) IsNotification() bool {
	return m.Method != ""
}

// ResponseID returns the numeric id of a response message.
func (m *Message) ResponseID() (uint64, bool) {
	switch v := m.ID.(type) {
	case float64:
		if v < 0 {
			return 0, false
		}
		return uint64(v), true
	case string:
		var id uint64
		if _, err := fmt.Sscanf(v, "%d", &id); err == nil {
			return id, true
		}
	}
	return 0, false
}

// NotifyParams decodes the positional params array of a notification.
func (m *Message) NotifyParams() ([]interface{}, error) {
	var params []interface{}
	if err := json.Unmarshal(m.Params, &params); err != nil {
		return nil, fmt.Errorf("unmarshal params: %w", err)
	}
	return params, nil
}

// RPCErrorFromRaw parses the error member of a response. A null or absent
// error returns nil.
func RPCErrorFromRaw(raw json.RawMessage) *RPCError {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	// Conventional form: [code, message, data].
	var arr []interface{}
	if err := json.Unmarshal(raw, &arr); err == nil && len(arr) >= 2 {
		code, _ := arr[0].(float64)
		msg, _ := arr[1].(string)
		return &RPCError{Code: int(code), Message: msg}
	}

	// Some pools send {"code":..,"message":..}.
	var obj struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && (obj.Code != 0 || obj.Message != "") {
		return &RPCError{Code: obj.Code, Message: obj.Message}
	}

	return &RPCError{Code: rpcErrOther, Message: string(raw)}
}

// Codec handles newline-delimited JSON framing over one connection. Reads
// and writes must each stay on a single goroutine.
type Codec struct {
	conn        net.Conn
	scanner     *bufio.Scanner
	encoder     *json.Encoder
	readTimeout time.Duration
}

// NewCodec creates a codec for the given connection. readTimeout bounds the
// inactivity window between inbound lines; zero disables the deadline.
func NewCodec(conn net.Conn, readTimeout time.Duration) *Codec {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 4096), maxLineSize)
	return &Codec{
		conn:        conn,
		scanner:     scanner,
		encoder:     json.NewEncoder(conn),
		readTimeout: readTimeout,
	}
}

// ReadMessage reads and parses one line.
func (c *Codec) ReadMessage() (*Message, error) {
	if c.readTimeout > 0 {
		c.conn.SetReadDeadline(time.Now().Add(c.readTimeout))
	}

	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return nil, &SessionError{Kind: KindNetwork, Op: "read", Err: err}
		}
		return nil, &SessionError{Kind: KindNetwork, Op: "read", Err: fmt.Errorf("connection closed")}
	}

	var m Message
	if err := json.Unmarshal(c.scanner.Bytes(), &m); err != nil {
		return nil, &SessionError{Kind: KindProtocol, Op: "read", Err: err}
	}

	return &m, nil
}

// WriteRequest sends one request line.
func (c *Codec) WriteRequest(req *Request) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.encoder.Encode(req); err != nil {
		return &SessionError{Kind: KindNetwork, Op: "write", Err: err}
	}
	return nil
}

// Close closes the underlying connection.
func (c *Codec) Close() error {
	return c.conn.Close()
}
