package forward

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"
)

// Sentinel errors for the forwarding call. The bridge surfaces their
// messages to the UI verbatim, so they stay short and static.
var (
	ErrClientInit    = errors.New("failed to create HTTP client")
	ErrInvalidMethod = errors.New("invalid HTTP method")
	ErrTransport     = errors.New("failed to send HTTP request")
	ErrDecode        = errors.New("failed to decode HTTP response")
)

const DefaultMaxRedirects = 15

// Request describes one outbound HTTP request on behalf of the UI.
// A nil Body means no payload is attached at all, which matters for
// methods that normally carry none.
type Request struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    *string           `json:"body,omitempty"`
}

// Response is the full materialized round-trip result. The body is read
// into memory before returning; nothing is streamed back to the caller.
type Response struct {
	Success bool              `json:"success"`
	Status  uint16            `json:"status"`
	Headers map[string]string `json:"headers"`
	Body    string            `json:"body"`
}

// Config is passed in explicitly at construction so tests can run a
// strict-TLS or short-timeout forwarder next to the production one.
type Config struct {
	// InsecureTLS disables certificate validation on outbound
	// connections. The desktop app ships with this on so the UI can
	// talk to hosts with self-signed certificates.
	InsecureTLS bool

	// MaxRedirects caps how many redirect hops are followed. Zero
	// selects DefaultMaxRedirects; a negative value follows no
	// redirects at all. Once the cap is reached the last response is
	// returned as the final result, not an error.
	MaxRedirects int

	// Timeout for the whole round trip. Zero means no client-side
	// deadline beyond the transport defaults.
	Timeout time.Duration
}

// Forwarder issues one outbound HTTP request per call over a shared
// pooled client. It keeps no per-call state, so concurrent calls need
// no coordination here.
type Forwarder struct {
	client *http.Client
	config Config
}

func New(cfg Config) (*Forwarder, error) {
	switch {
	case cfg.MaxRedirects == 0:
		cfg.MaxRedirects = DefaultMaxRedirects
	case cfg.MaxRedirects < 0:
		cfg.MaxRedirects = 0
	}

	base, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected default transport", ErrClientInit)
	}
	transport := base.Clone()
	transport.TLSClientConfig = &tls.Config{
		InsecureSkipVerify: cfg.InsecureTLS,
	}

	return &Forwarder{
		config: cfg,
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				// via includes the initial request, so the cap is
				// exceeded only after MaxRedirects hops were followed.
				if len(via) > cfg.MaxRedirects {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
	}, nil
}

var knownMethods = map[string]struct{}{
	http.MethodGet:     {},
	http.MethodHead:    {},
	http.MethodPost:    {},
	http.MethodPut:     {},
	http.MethodPatch:   {},
	http.MethodDelete:  {},
	http.MethodConnect: {},
	http.MethodOptions: {},
	http.MethodTrace:   {},
}

// Forward performs exactly one network attempt and returns either the
// assembled response or a classified error. The context cancels the
// in-flight round trip.
func (f *Forwarder) Forward(ctx context.Context, req Request) (*Response, error) {
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if _, ok := knownMethods[method]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMethod, req.Method)
	}

	var body io.Reader
	if req.Body != nil {
		body = strings.NewReader(*req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	for name, value := range req.Headers {
		httpReq.Header.Set(name, value)
	}

	httpResp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if !utf8.Valid(raw) {
		return nil, fmt.Errorf("%w: response body is not valid UTF-8", ErrDecode)
	}

	// Duplicate headers collapse last-write-wins, matching the map
	// shape the UI consumes.
	headers := make(map[string]string, len(httpResp.Header))
	for name, values := range httpResp.Header {
		for _, value := range values {
			if !utf8.ValidString(value) {
				return nil, fmt.Errorf("%w: header %s is not valid UTF-8", ErrDecode, name)
			}
			headers[name] = value
		}
	}

	return &Response{
		Success: true,
		Status:  uint16(httpResp.StatusCode),
		Headers: headers,
		Body:    string(raw),
	}, nil
}
