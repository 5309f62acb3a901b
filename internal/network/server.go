// Package network carries signed transactions over QUIC.
//
// Each transaction travels on its own bidirectional stream as one
// length-prefixed frame and is answered by one JSON reply frame. TLS
// certificates are self-signed carriers of ed25519 keys, so a client can pin
// the node's key instead of trusting a CA.
package network

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	"BandwidthBazaar/internal/logger"
	"BandwidthBazaar/internal/metrics"
)

const (
	// streamTimeout bounds one request/reply exchange.
	streamTimeout = 30 * time.Second

	// maxIncomingStreams caps concurrent submissions per connection.
	maxIncomingStreams = 64
)

// Handler serves one transaction and returns the reply.
type Handler func(tx []byte) Response

// Config holds the configuration for a Server.
type Config struct {
	PrivateKey ed25519.PrivateKey // PrivateKey is the node's ed25519 key
	ListenAddr string             // ListenAddr is the UDP address to listen on, e.g. ":9443"
	Handler    Handler            // Handler executes submitted transactions
}

// Server accepts QUIC connections and answers one transaction per stream.
type Server struct {
	publicKey ed25519.PublicKey // publicKey is the node's ed25519 public key
	handler   Handler           // handler executes submitted transactions
	listener  *quic.Listener    // listener is the QUIC listener

	ctx    context.Context    // ctx is cancelled on Close
	cancel context.CancelFunc // cancel cancels ctx
	wg     sync.WaitGroup     // wg waits for connection and stream goroutines
}

// Listen starts a server on cfg.ListenAddr.
func Listen(cfg Config) (*Server, error) {
	if cfg.PrivateKey == nil {
		return nil, fmt.Errorf("private key is required")
	}

	if cfg.ListenAddr == "" {
		return nil, fmt.Errorf("listen address is required")
	}

	if cfg.Handler == nil {
		return nil, fmt.Errorf("handler is required")
	}

	tlsConfig, err := serverTLS(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("tls config:\n%w", err)
	}

	listener, err := quic.ListenAddr(cfg.ListenAddr, tlsConfig, &quic.Config{
		MaxIdleTimeout:     30 * time.Second,
		KeepAlivePeriod:    10 * time.Second,
		MaxIncomingStreams: maxIncomingStreams,
	})
	if err != nil {
		return nil, fmt.Errorf("listen:\n%w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		publicKey: cfg.PrivateKey.Public().(ed25519.PublicKey),
		handler:   cfg.Handler,
		listener:  listener,
		ctx:       ctx,
		cancel:    cancel,
	}

	s.wg.Add(1)
	go s.acceptLoop()

	logger.Info("quic ingress started", "addr", listener.Addr().String())

	return s, nil
}

// Addr returns the listener's address.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// PublicKey returns the key clients should pin.
func (s *Server) PublicKey() ed25519.PublicKey {
	return s.publicKey
}

// Close stops accepting and waits for open connections to drain.
// Handlers already running finish before Close returns.
func (s *Server) Close() error {
	s.cancel()
	err := s.listener.Close()
	s.wg.Wait()

	return err
}

// acceptLoop accepts incoming connections.
func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept(s.ctx)
		if err != nil {
			return // listener closed
		}

		s.wg.Add(1)
		go s.serveConn(conn)
	}
}

// serveConn accepts streams until the connection or server goes away.
func (s *Server) serveConn(conn *quic.Conn) {
	defer s.wg.Done()

	peerKey, err := extractPublicKey(conn.ConnectionState().TLS)
	if err != nil {
		conn.CloseWithError(1, "no client key")
		return
	}

	peer := hex.EncodeToString(peerKey[:8])
	logger.Debug("ingress connection", "peer", peer, "addr", conn.RemoteAddr().String())

	metrics.IngressConnections.Inc()
	defer metrics.IngressConnections.Dec()

	for {
		stream, err := conn.AcceptStream(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				conn.CloseWithError(0, "shutdown")
			}
			return
		}

		s.wg.Add(1)
		go s.serveStream(peer, stream)
	}
}

// serveStream reads one transaction, executes it and writes the reply.
func (s *Server) serveStream(peer string, stream *quic.Stream) {
	defer s.wg.Done()
	defer stream.Close()

	stream.SetDeadline(time.Now().Add(streamTimeout))

	tx, err := readFrame(stream)
	if err != nil {
		if !errors.Is(err, errFrameTooLarge) {
			logger.Debug("ingress read failed", "peer", peer, "error", err)
			return
		}

		metrics.IngressStreamsTotal.WithLabelValues("too_large").Inc()
		writeResponse(stream, Response{Status: http.StatusRequestEntityTooLarge, Error: "transaction too large"})

		return
	}

	resp := s.handler(tx)

	result := "ok"
	if resp.Status != http.StatusOK {
		result = "rejected"
	}
	metrics.IngressStreamsTotal.WithLabelValues(result).Inc()

	if err := writeResponse(stream, resp); err != nil {
		logger.Debug("ingress write failed", "peer", peer, "error", err)
	}
}
