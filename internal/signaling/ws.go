package signaling

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ---------------------------------------------------------------------------
// Server (offerer side)
// ---------------------------------------------------------------------------

// WSServer is the offerer-side WebSocket token exchange. It accepts exactly
// one client presenting the right PIN, sends it the offer token and reads
// back the answer token.
type WSServer struct {
	pin      string
	listener net.Listener
	srv      *http.Server
	connCh   chan *websocket.Conn
	accepted atomic.Bool

	mu   sync.Mutex
	conn *wsConn
}

// ListenWS starts a WS server on addr (host:port, port 0 picks one) guarded
// by a fresh 4-digit PIN.
func ListenWS(addr string) (*WSServer, error) {
	return listenWS(addr, generatePIN(4))
}

func listenWS(addr, pin string) (*WSServer, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to start WS server: %w", err)
	}

	s := &WSServer{
		pin:      pin,
		listener: listener,
		connCh:   make(chan *websocket.Conn, 1),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	s.srv = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		_ = s.srv.Serve(listener)
	}()

	return s, nil
}

// Port returns the TCP port the server listens on.
func (s *WSServer) Port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

// PIN returns the PIN clients must pass as the "pin" query parameter.
func (s *WSServer) PIN() string {
	return s.pin
}

func (s *WSServer) handleWS(w http.ResponseWriter, r *http.Request) {
	pin := r.URL.Query().Get("pin")
	if pin != s.pin {
		http.Error(w, "Invalid PIN", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	// Only accept the first client.
	if s.accepted.CompareAndSwap(false, true) {
		s.connCh <- conn
	} else {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "already connected"))
		conn.Close()
	}
}

// client blocks until the first client connects or ctx is cancelled.
func (s *WSServer) client(ctx context.Context) (*wsConn, error) {
	s.mu.Lock()
	c := s.conn
	s.mu.Unlock()
	if c != nil {
		return c, nil
	}

	select {
	case conn := <-s.connCh:
		c = &wsConn{conn: conn, sendType: MsgTypeOffer, recvType: MsgTypeAnswer}
		s.mu.Lock()
		s.conn = c
		s.mu.Unlock()
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Send waits for the client and sends it the offer token.
func (s *WSServer) Send(ctx context.Context, token string) error {
	c, err := s.client(ctx)
	if err != nil {
		return fmt.Errorf("failed to wait for client: %w", err)
	}
	return c.send(ctx, token)
}

// Receive reads the answer token.
func (s *WSServer) Receive(ctx context.Context) (string, error) {
	c, err := s.client(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to wait for client: %w", err)
	}
	return c.receive(ctx)
}

// Close shuts down the listener and any client connection.
func (s *WSServer) Close() error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	var errs []error
	if conn != nil {
		errs = append(errs, conn.close())
	}
	errs = append(errs, s.srv.Close())
	return errors.Join(errs...)
}

// ---------------------------------------------------------------------------
// Client (answerer side)
// ---------------------------------------------------------------------------

// WSClient is the answerer-side WebSocket token exchange.
type WSClient struct {
	*wsConn
}

// DialWS connects to an offerer's WS server. The URL carries the PIN, e.g.
//
//	wss://example.devtunnels.ms/ws?pin=1234
func DialWS(ctx context.Context, url string) (*WSClient, error) {
	dialer := websocket.DefaultDialer
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to WS server: %w", err)
	}
	return &WSClient{&wsConn{conn: conn, sendType: MsgTypeAnswer, recvType: MsgTypeOffer}}, nil
}

// Send sends the answer token.
func (c *WSClient) Send(ctx context.Context, token string) error { return c.send(ctx, token) }

// Receive reads the offer token.
func (c *WSClient) Receive(ctx context.Context) (string, error) { return c.receive(ctx) }

// Close closes the connection.
func (c *WSClient) Close() error { return c.close() }

// ---------------------------------------------------------------------------
// Shared connection
// ---------------------------------------------------------------------------

type wsConn struct {
	conn     *websocket.Conn
	sendType MessageType
	recvType MessageType

	wmu sync.Mutex
}

func (c *wsConn) send(ctx context.Context, token string) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	deadline, _ := ctx.Deadline()
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	if err := c.conn.WriteJSON(Message{Type: c.sendType, Token: token}); err != nil {
		return fmt.Errorf("WS write: %w", err)
	}
	return nil
}

// receive reads the next message. Cancelling ctx interrupts the read, after
// which the connection is unusable.
func (c *wsConn) receive(ctx context.Context) (string, error) {
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	var msg Message
	if err := c.conn.ReadJSON(&msg); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("WS read: %w", err)
	}

	if msg.Type != c.recvType {
		return "", fmt.Errorf("unexpected %q message, want %q", msg.Type, c.recvType)
	}
	return msg.Token, nil
}

func (c *wsConn) close() error {
	c.wmu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.wmu.Unlock()
	return c.conn.Close()
}

// generatePIN returns a random numeric PIN of the specified length.
func generatePIN(length int) string {
	digits := make([]byte, length)
	for i := range digits {
		n, _ := rand.Int(rand.Reader, big.NewInt(10))
		digits[i] = byte('0') + byte(n.Int64())
	}
	return string(digits)
}
