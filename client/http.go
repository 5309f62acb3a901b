package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// APIError is a non-2xx response from the node.
type APIError struct {
	Status  int    // Status is the HTTP status code
	Code    string // Code is the error kind, e.g. "InsufficientBalance" or "Replay"
	Message string // Message is the node's error text
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("node returned %d %s: %s", e.Status, e.Code, e.Message)
	}

	return fmt.Sprintf("node returned %d: %s", e.Status, e.Message)
}

// ErrorCode returns the error kind carried by an APIError in err's chain,
// or "" when there is none.
func ErrorCode(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}

	return ""
}

// submitTx sends transaction bytes to a node and decodes the receipt.
// It uses the QUIC ingress when connected, POST /tx otherwise.
func (c *Client) submitTx(txBytes []byte, result any) error {
	if c.quic != nil {
		return c.submitQUIC(txBytes, result)
	}

	resp, err := c.http.Post(
		c.baseURL+"/tx",
		"application/octet-stream",
		bytes.NewReader(txBytes),
	)
	if err != nil {
		return fmt.Errorf("post tx:\n%w", err)
	}
	defer func() { io.Copy(io.Discard, resp.Body); resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return decodeAPIError(resp)
	}

	return json.NewDecoder(resp.Body).Decode(result)
}

// get performs a GET request and decodes the JSON response.
func (c *Client) get(path string, result any) error {
	url := c.baseURL + path

	resp, err := c.http.Get(url)
	if err != nil {
		return fmt.Errorf("GET %s:\n%w", url, err)
	}
	defer func() { io.Copy(io.Discard, resp.Body); resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s:\n%w", url, decodeAPIError(resp))
	}

	return json.NewDecoder(resp.Body).Decode(result)
}

// getRaw performs a GET request and returns the body and headers.
func (c *Client) getRaw(path string) ([]byte, http.Header, error) {
	url := c.baseURL + path

	resp, err := c.http.Get(url)
	if err != nil {
		return nil, nil, fmt.Errorf("GET %s:\n%w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("GET %s:\n%w", url, decodeAPIError(resp))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read %s:\n%w", url, err)
	}

	return data, resp.Header, nil
}

// decodeAPIError builds an APIError from an error response body.
func decodeAPIError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}

	// Non-JSON bodies still produce an error carrying the status.
	_ = json.NewDecoder(resp.Body).Decode(&body)

	return &APIError{Status: resp.StatusCode, Code: body.Code, Message: body.Error}
}
