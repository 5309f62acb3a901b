package client

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"net/http"

	"BandwidthBazaar/internal/network"
)

// DialQUIC routes transaction submission through the node's QUIC ingress at
// addr. Reads keep using HTTP. A non-nil serverKey pins the node's identity.
func (c *Client) DialQUIC(ctx context.Context, addr string, serverKey ed25519.PublicKey) error {
	conn, err := network.Dial(ctx, addr, network.DialConfig{ServerKey: serverKey})
	if err != nil {
		return fmt.Errorf("dial quic ingress:\n%w", err)
	}

	if c.quic != nil {
		c.quic.Close()
	}

	c.quic = conn

	return nil
}

// Close releases the QUIC connection, if any.
func (c *Client) Close() error {
	if c.quic == nil {
		return nil
	}

	err := c.quic.Close()
	c.quic = nil

	return err
}

// submitQUIC sends one transaction over the ingress and decodes the receipt.
func (c *Client) submitQUIC(txBytes []byte, result any) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.http.Timeout)
	defer cancel()

	resp, err := c.quic.Submit(ctx, txBytes)
	if err != nil {
		return fmt.Errorf("quic submit:\n%w", err)
	}

	if resp.Status != http.StatusOK {
		return &APIError{Status: resp.Status, Code: resp.Code, Message: resp.Error}
	}

	return json.Unmarshal(resp.Receipt, result)
}
