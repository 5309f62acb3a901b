package network

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/quic-go/quic-go"
)

// DialConfig configures a client connection.
type DialConfig struct {
	PrivateKey ed25519.PrivateKey // PrivateKey identifies the client; nil generates a throwaway key
	ServerKey  ed25519.PublicKey  // ServerKey pins the node's key; nil accepts any key
}

// Conn is a client connection to a node's transaction ingress.
type Conn struct {
	conn      *quic.Conn        // conn is the underlying QUIC connection
	serverKey ed25519.PublicKey // serverKey is the key the node presented
}

// Dial connects to a node's transaction ingress.
func Dial(ctx context.Context, addr string, cfg DialConfig) (*Conn, error) {
	priv := cfg.PrivateKey
	if priv == nil {
		var err error
		if _, priv, err = ed25519.GenerateKey(rand.Reader); err != nil {
			return nil, fmt.Errorf("generate client key:\n%w", err)
		}
	}

	tlsConfig, err := clientTLS(priv, cfg.ServerKey)
	if err != nil {
		return nil, fmt.Errorf("tls config:\n%w", err)
	}

	conn, err := quic.DialAddr(ctx, addr, tlsConfig, &quic.Config{
		MaxIdleTimeout:  30 * time.Second,
		KeepAlivePeriod: 10 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("dial %s:\n%w", addr, err)
	}

	serverKey, err := extractPublicKey(conn.ConnectionState().TLS)
	if err != nil {
		conn.CloseWithError(1, "bad server key")
		return nil, fmt.Errorf("server key:\n%w", err)
	}

	return &Conn{conn: conn, serverKey: serverKey}, nil
}

// ServerKey returns the ed25519 key the node presented.
func (c *Conn) ServerKey() ed25519.PublicKey {
	return c.serverKey
}

// Submit sends one transaction and waits for the node's reply.
func (c *Conn) Submit(ctx context.Context, tx []byte) (*Response, error) {
	stream, err := c.conn.OpenStreamSync(ctx)
	if err != nil {
		return nil, fmt.Errorf("open stream:\n%w", err)
	}
	defer stream.CancelRead(0)

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(streamTimeout)
	}
	stream.SetDeadline(deadline)

	if err := writeFrame(stream, tx); err != nil {
		stream.Close()
		return nil, fmt.Errorf("write tx:\n%w", err)
	}

	// Closing only ends our send direction; the reply is still readable.
	if err := stream.Close(); err != nil {
		return nil, fmt.Errorf("close send:\n%w", err)
	}

	resp, err := readResponse(stream)
	if err != nil {
		return nil, fmt.Errorf("read reply:\n%w", err)
	}

	return resp, nil
}

// Close closes the connection.
func (c *Conn) Close() error {
	return c.conn.CloseWithError(0, "closed")
}
