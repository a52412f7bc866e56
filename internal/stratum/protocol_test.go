package stratum

import (
	"bytes"
	"encoding/json"
	"net"
	"testing"
	"time"
)

// mockConn wraps a bytes.Reader as a minimal net.Conn for testing.
type mockConn struct {
	net.Conn // embedded nil — only Read is used
	r        *bytes.Reader
}

func (m *mockConn) Read(p []byte) (int, error)         { return m.r.Read(p) }
func (m *mockConn) Close() error                       { return nil }
func (m *mockConn) LocalAddr() net.Addr                { return &net.TCPAddr{} }
func (m *mockConn) RemoteAddr() net.Addr               { return &net.TCPAddr{} }
func (m *mockConn) SetDeadline(t time.Time) error      { return nil }
func (m *mockConn) SetReadDeadline(t time.Time) error  { return nil }
func (m *mockConn) SetWriteDeadline(t time.Time) error { return nil }
func (m *mockConn) Write(p []byte) (int, error)        { return len(p), nil }

func codecFor(lines string) *Codec {
	return NewCodec(&mockConn{r: bytes.NewReader([]byte(lines))}, 0)
}

func TestCodec_ReadNotification(t *testing.T) {
	c := codecFor(`{"id":null,"method":"mining.set_difficulty","params":[8]}` + "\n")

	m, err := c.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if !m.IsNotification() || m.Method != "mining.set_difficulty" {
		t.Errorf("message = %+v", m)
	}

	params, err := m.NotifyParams()
	if err != nil {
		t.Fatal(err)
	}
	if len(params) != 1 || params[0].(float64) != 8 {
		t.Errorf("params = %v", params)
	}
}

func TestCodec_ReadResponse(t *testing.T) {
	c := codecFor(`{"id":7,"result":true,"error":null}` + "\n")

	m, err := c.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if m.IsNotification() {
		t.Error("response classified as notification")
	}
	id, ok := m.ResponseID()
	if !ok || id != 7 {
		t.Errorf("id = %d, %v", id, ok)
	}
	if RPCErrorFromRaw(m.Error) != nil {
		t.Error("null error should parse as nil")
	}
}

func TestCodec_MalformedLine(t *testing.T) {
	c := codecFor("not json\n")

	_, err := c.ReadMessage()
	se, ok := err.(*SessionError)
	if !ok || se.Kind != KindProtocol {
		t.Errorf("err = %v, want protocol SessionError", err)
	}
}

func TestCodec_ConnectionClosed(t *testing.T) {
	c := codecFor("")

	_, err := c.ReadMessage()
	se, ok := err.(*SessionError)
	if !ok || se.Kind != KindNetwork {
		t.Errorf("err = %v, want network SessionError", err)
	}
}

func TestRPCErrorFromRaw(t *testing.T) {
	tests := []struct {
		raw      string
		wantNil  bool
		wantCode int
		wantKind ErrorKind
	}{
		{raw: "", wantNil: true},
		{raw: "null", wantNil: true},
		{raw: `[21,"Stale share",null]`, wantCode: 21, wantKind: KindStale},
		{raw: `[23,"Low difficulty share",null]`, wantCode: 23, wantKind: KindLowDiff},
		{raw: `[24,"Unauthorized worker",null]`, wantCode: 24, wantKind: KindAuth},
		{raw: `[20,"Other",null]`, wantCode: 20, wantKind: KindReject},
		{raw: `{"code":21,"message":"Stale"}`, wantCode: 21, wantKind: KindStale},
	}

	for _, tt := range tests {
		got := RPCErrorFromRaw(json.RawMessage(tt.raw))
		if tt.wantNil {
			if got != nil {
				t.Errorf("RPCErrorFromRaw(%q) = %v, want nil", tt.raw, got)
			}
			continue
		}
		if got == nil {
			t.Errorf("RPCErrorFromRaw(%q) = nil", tt.raw)
			continue
		}
		if got.Code != tt.wantCode || got.RejectKind() != tt.wantKind {
			t.Errorf("RPCErrorFromRaw(%q) = code %d kind %s", tt.raw, got.Code, got.RejectKind())
		}
	}
}

func TestErrorKindStrings(t *testing.T) {
	kinds := map[ErrorKind]string{
		KindNetwork:     "network",
		KindProtocol:    "protocol",
		KindAuth:        "auth",
		KindStale:       "stale",
		KindLowDiff:     "low_diff",
		KindReject:      "reject",
		KindRateLimited: "rate_limited",
		KindResource:    "resource",
	}
	for k, want := range kinds {
		if k.String() != want {
			t.Errorf("%d.String() = %s, want %s", k, k.String(), want)
		}
	}
}
