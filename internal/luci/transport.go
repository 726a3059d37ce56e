package luci

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/httprequest.v1"
)

// Request is a single HTTP exchange issued against the backend.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// String renders the request line with any token value masked,
// suitable for progress traces and logs.
func (r Request) String() string {
	return r.Method + " " + maskToken(r.URL)
}

// Transport issues requests and returns the parsed JSON response body.
// Implementations fail with *TransportError.
type Transport interface {
	Do(ctx context.Context, req Request) (json.RawMessage, error)
}

// Transport kinds accepted by NewTransport.
const (
	TransportAuto    = "auto"
	TransportFetch   = "fetch"
	TransportRequest = "request"
)

// NewTransport selects a transport implementation. "auto" prefers the
// structured request client.
func NewTransport(kind string, client *http.Client) (Transport, error) {
	if client == nil {
		client = DefaultHTTPClient(0)
	}
	switch kind {
	case TransportAuto, TransportRequest, "":
		return &RequestTransport{client: client}, nil
	case TransportFetch:
		return &FetchTransport{client: client}, nil
	default:
		return nil, fmt.Errorf("unknown transport %q: must be one of: auto, fetch, request", kind)
	}
}

// DefaultHTTPClient returns a client that keeps session cookies between
// requests. A zero timeout means no client-side timeout.
func DefaultHTTPClient(timeout time.Duration) *http.Client {
	jar, _ := cookiejar.New(nil)
	return &http.Client{Jar: jar, Timeout: timeout}
}

// FetchTransport behaves like a browser fetch with credentials: any non-2xx
// status is a failure, otherwise the body must be JSON.
type FetchTransport struct {
	client *http.Client
}

// Do implements Transport.
func (t *FetchTransport) Do(ctx context.Context, req Request) (json.RawMessage, error) {
	resp, err := send(ctx, t.client, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Method: req.Method, URL: maskToken(req.URL), Kind: BadResponse, Status: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
	}
	log.WithFields(log.Fields{"status": resp.StatusCode, "bytes": len(body)}).Debugf("fetch: %s", req)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &TransportError{Method: req.Method, URL: maskToken(req.URL), Kind: BadResponse, Status: resp.StatusCode, Body: string(body)}
	}
	if !json.Valid(body) {
		return nil, &TransportError{Method: req.Method, URL: maskToken(req.URL), Kind: BadResponse, Status: resp.StatusCode, Body: string(body), Err: fmt.Errorf("response is not valid JSON")}
	}
	return json.RawMessage(body), nil
}

// RequestTransport is the structured request client: it does not judge the
// HTTP status, only that the response is a JSON document.
type RequestTransport struct {
	client *http.Client
}

// Do implements Transport.
func (t *RequestTransport) Do(ctx context.Context, req Request) (json.RawMessage, error) {
	resp, err := send(ctx, t.client, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Method: req.Method, URL: maskToken(req.URL), Kind: BadResponse, Status: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
	}
	log.WithFields(log.Fields{"status": resp.StatusCode, "bytes": len(body)}).Debugf("request: %s", req)
	resp.Body = io.NopCloser(bytes.NewReader(body))

	var raw json.RawMessage
	if err := httprequest.UnmarshalJSONResponse(resp, &raw); err != nil {
		// Devices often label JSON as text/plain or text/html.
		if !json.Valid(body) {
			return nil, &TransportError{Method: req.Method, URL: maskToken(req.URL), Kind: BadResponse, Status: resp.StatusCode, Body: string(body), Err: err}
		}
		log.WithField("content-type", resp.Header.Get("Content-Type")).Debug("request: accepting JSON body with unexpected content type")
		raw = json.RawMessage(body)
	}
	return raw, nil
}

func send(ctx context.Context, client *http.Client, req Request) (*http.Response, error) {
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, &TransportError{Method: req.Method, URL: maskToken(req.URL), Kind: ConnectionFailed, Err: err}
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		// url.Error repeats the unmasked URL.
		var ue *url.Error
		if errors.As(err, &ue) {
			err = ue.Err
		}
		return nil, &TransportError{Method: req.Method, URL: maskToken(req.URL), Kind: ConnectionFailed, Err: err}
	}
	return resp, nil
}

// maskToken hides the value of a token query parameter.
func maskToken(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.RawQuery == "" {
		return raw
	}
	q := u.Query()
	if q.Get("token") == "" {
		return raw
	}
	q.Set("token", "****")
	u.RawQuery = strings.ReplaceAll(q.Encode(), "%2A", "*")
	return u.String()
}
