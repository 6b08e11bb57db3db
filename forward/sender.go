package forward

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/c360/sensorrelay/config"
	"github.com/c360/sensorrelay/errors"
	"github.com/c360/sensorrelay/pkg/tlsutil"
)

// RequestIDHeader carries a per-forward identifier so sink logs can be correlated
const RequestIDHeader = "X-Request-ID"

// maxDrainBytes bounds how much of a response body is read before closing it
const maxDrainBytes = 64 << 10

// Payload is the JSON body posted to the sink
type Payload struct {
	IPAddress string `json:"IPAddress"`
	Data      string `json:"data"`
}

// Encode serializes the payload
func (p Payload) Encode() ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Payload", "Encode", "marshal json")
	}
	return data, nil
}

// Result describes one completed POST
type Result struct {
	URL        string
	StatusCode int
	RequestID  string
	Duration   time.Duration
}

// SinkSource supplies the current sink on every send
type SinkSource interface {
	Sink() config.SinkConfig
}

// Sender performs one forward
type Sender interface {
	Send(ctx context.Context, address, code string) (Result, error)
}

// HTTPSender posts payloads to the sink
type HTTPSender struct {
	client *http.Client
	sinks  SinkSource
}

// NewHTTPSender creates a sender. A nil client gets a default one; per-request
// timeouts come from the sink configuration.
func NewHTTPSender(sinks SinkSource, client *http.Client) *HTTPSender {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPSender{client: client, sinks: sinks}
}

// NewHTTPClient builds the sink client. Without TLS settings the default
// transport is used.
func NewHTTPClient(tlsCfg tlsutil.ClientConfig) (*http.Client, error) {
	if tlsCfg.IsZero() {
		return &http.Client{}, nil
	}

	clientTLS, err := tlsutil.LoadClientTLSConfig(tlsCfg)
	if err != nil {
		return nil, errors.Wrap(err, "HTTPSender", "NewHTTPClient", "load tls config")
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = clientTLS
	return &http.Client{Transport: transport}, nil
}

// Send posts {"IPAddress": address, "data": code} to the sink read at call time.
// Any HTTP response counts as delivered; only transport failures return an error.
func (s *HTTPSender) Send(ctx context.Context, address, code string) (Result, error) {
	sink := s.sinks.Sink()
	result := Result{URL: sink.URL(), RequestID: uuid.NewString()}

	body, err := Payload{IPAddress: address, Data: code}.Encode()
	if err != nil {
		return result, err
	}

	if sink.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, sink.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, result.URL, bytes.NewReader(body))
	if err != nil {
		return result, errors.WrapInvalid(fmt.Errorf("%w: %w", errors.ErrInvalidConfig, err),
			"HTTPSender", "Send", "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(RequestIDHeader, result.RequestID)

	start := time.Now()
	resp, err := s.client.Do(req)
	result.Duration = time.Since(start)
	if err != nil {
		return result, errors.WrapTransient(err, "HTTPSender", "Send", "post to sink")
	}
	defer resp.Body.Close()

	// Drain a bounded amount so small responses keep the connection reusable
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))

	result.StatusCode = resp.StatusCode
	return result, nil
}
