// internal/ratelimit/transport.go
package ratelimit

import (
	"bufio"
	"context"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	utls "github.com/refraction-networking/utls"
	proxy "golang.org/x/net/proxy"
)

// SanitizedRequest is one entry in the counting transport's bounded request
// ring buffer: enough to reconstruct what was called, with no query string
// or auth material retained.
type SanitizedRequest struct {
	Method       string
	Host         string
	Path         string
	StatusCode   int
	DurationMS   int64
	At           time.Time
	ProxyUsed    string
}

var clientHelloIDs = []utls.ClientHelloID{
	utls.HelloChrome_Auto,
	utls.HelloFirefox_Auto,
	utls.HelloSafari_Auto,
	utls.HelloEdge_Auto,
}

// proxyRotator hands out proxies round-robin, grounded on the ingestion
// teacher's ProxyRotator.
type proxyRotator struct {
	parsedURLs []*url.URL
	currentIdx uint32
}

func newProxyRotator(proxyURLs []string) (*proxyRotator, error) {
	r := &proxyRotator{}
	for _, raw := range proxyURLs {
		if raw == "" {
			continue
		}
		parsed, err := url.Parse(raw)
		if err != nil {
			return nil, err
		}
		r.parsedURLs = append(r.parsedURLs, parsed)
	}
	return r, nil
}

func (r *proxyRotator) next() *url.URL {
	if len(r.parsedURLs) == 0 {
		return nil
	}
	idx := atomic.AddUint32(&r.currentIdx, 1) % uint32(len(r.parsedURLs))
	return r.parsedURLs[idx]
}

// fingerprintingDialer performs a uTLS handshake with a randomized browser
// ClientHello, optionally tunneled through a rotating proxy.
type fingerprintingDialer struct {
	proxyURL      *url.URL
	clientHelloID utls.ClientHelloID
}

func newFingerprintingDialer(proxyURL *url.URL) *fingerprintingDialer {
	return &fingerprintingDialer{
		proxyURL:      proxyURL,
		clientHelloID: clientHelloIDs[rand.Intn(len(clientHelloIDs))],
	}
}

func (d *fingerprintingDialer) dialTLS(network, addr string) (net.Conn, error) {
	conn, err := d.dial(network, addr)
	if err != nil {
		return nil, err
	}

	host := addr
	if h, _, splitErr := net.SplitHostPort(addr); splitErr == nil {
		host = h
	}

	uconn := utls.UClient(conn, &utls.Config{ServerName: host}, d.clientHelloID)
	if err := uconn.Handshake(); err != nil {
		conn.Close()
		return nil, err
	}
	return uconn, nil
}

func (d *fingerprintingDialer) dial(network, addr string) (net.Conn, error) {
	if d.proxyURL == nil {
		var dialer net.Dialer
		return dialer.Dial(network, addr)
	}

	switch d.proxyURL.Scheme {
	case "http", "https":
		return d.dialConnectTunnel(network, addr)

	case "socks5":
		auth := &proxy.Auth{}
		if d.proxyURL.User != nil {
			auth.User = d.proxyURL.User.Username()
			if password, ok := d.proxyURL.User.Password(); ok {
				auth.Password = password
			}
		}
		dialer, err := proxy.SOCKS5("tcp", d.proxyURL.Host, auth, &net.Dialer{Timeout: 30 * time.Second})
		if err != nil {
			return nil, err
		}
		return dialer.Dial(network, addr)

	default:
		var dialer net.Dialer
		return dialer.Dial(network, addr)
	}
}

// dialConnectTunnel opens a TCP connection to an HTTP(S) proxy and issues a
// CONNECT request for addr, returning the tunneled connection.
func (d *fingerprintingDialer) dialConnectTunnel(network, addr string) (net.Conn, error) {
	dialer := net.Dialer{Timeout: 30 * time.Second}
	conn, err := dialer.Dial(network, d.proxyURL.Host)
	if err != nil {
		return nil, err
	}

	connectReq := &http.Request{
		Method: http.MethodConnect,
		URL:    &url.URL{Opaque: addr},
		Host:   addr,
		Header: make(http.Header),
	}
	if d.proxyURL.User != nil {
		if password, ok := d.proxyURL.User.Password(); ok {
			connectReq.SetBasicAuth(d.proxyURL.User.Username(), password)
		}
	}
	if err := connectReq.Write(conn); err != nil {
		conn.Close()
		return nil, err
	}

	resp, err := http.ReadResponse(bufio.NewReader(conn), connectReq)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		conn.Close()
		return nil, &proxyConnectError{statusCode: resp.StatusCode}
	}
	return conn, nil
}

type proxyConnectError struct {
	statusCode int
}

func (e *proxyConnectError) Error() string {
	return "proxy CONNECT failed with status " + strconv.Itoa(e.statusCode)
}


// maskProxyURL strips credentials from a proxy URL for logging, grounded on
// the ingestion teacher's maskProxyURL.
func maskProxyURL(raw string) string {
	if !strings.Contains(raw, "@") {
		return raw
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "[masked]"
	}
	if parsed.User != nil {
		return strings.Replace(raw, parsed.User.String(), parsed.User.Username()+":****", 1)
	}
	return raw
}

// newBaseTransport builds the proxy-rotating, TLS-fingerprinting transport
// when proxies are configured, else a plain http.Transport, grounded on the
// ingestion teacher's TLSFingerprintingTransport.
func newBaseTransport(proxyURLs []string) (http.RoundTripper, error) {
	rotator, err := newProxyRotator(proxyURLs)
	if err != nil {
		return nil, err
	}
	if len(rotator.parsedURLs) == 0 {
		return http.DefaultTransport, nil
	}

	transport := &http.Transport{
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
	}

	return &rotatingTransport{rotator: rotator, transport: transport}, nil
}

type rotatingTransport struct {
	rotator   *proxyRotator
	transport *http.Transport
	mu        sync.Mutex
}

func (t *rotatingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.mu.Lock()
	proxyURL := t.rotator.next()
	if proxyURL != nil {
		t.transport.Proxy = http.ProxyURL(proxyURL)
	} else {
		t.transport.Proxy = nil
	}
	if req.URL.Scheme == "https" {
		dialer := newFingerprintingDialer(proxyURL)
		t.transport.DialTLSContext = func(_ context.Context, network, addr string) (net.Conn, error) {
			return dialer.dialTLS(network, addr)
		}
	}
	t.mu.Unlock()

	return t.transport.RoundTrip(req)
}

// counters is the set of atomically-updated tallies CountingTransport
// maintains, grounded on http_request_counter.py's CountingSession.
type counters struct {
	lifetimeRequests int64
	cycleRequests    int64
	errorCount       int64
	totalDurationMS  int64
}

// CountingTransport wraps a base transport and tracks per-call accounting
// for the Rate Governor: request counts (lifetime and per-cycle), a bounded
// ring buffer of sanitized request records, response-time totals, error
// counts and a cost estimate (spec §4.1, §6).
type CountingTransport struct {
	base           http.RoundTripper
	governor       *Governor
	costPerRequest float64

	mu      sync.Mutex
	c       counters
	ring    []SanitizedRequest
	ringCap int
	ringPos int
}

// NewCountingTransport builds a CountingTransport over a proxy-rotating base
// transport (or http.DefaultTransport if proxyURLs is empty).
func NewCountingTransport(proxyURLs []string, governor *Governor, costPerRequest float64, ringCapacity int) (*CountingTransport, error) {
	base, err := newBaseTransport(proxyURLs)
	if err != nil {
		return nil, err
	}
	if ringCapacity <= 0 {
		ringCapacity = 10000
	}
	return &CountingTransport{
		base:           base,
		governor:       governor,
		costPerRequest: costPerRequest,
		ringCap:        ringCapacity,
		ring:           make([]SanitizedRequest, 0, ringCapacity),
	}, nil
}

func (t *CountingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	proxyUsed := ""
	if req.URL.User != nil {
		proxyUsed = maskProxyURL(req.URL.String())
	}

	resp, err := t.base.RoundTrip(req)
	elapsed := time.Since(start)

	t.mu.Lock()
	t.c.lifetimeRequests++
	t.c.cycleRequests++
	t.c.totalDurationMS += elapsed.Milliseconds()
	statusCode := 0
	if err != nil {
		t.c.errorCount++
	} else if resp != nil {
		statusCode = resp.StatusCode
	}
	t.appendRing(SanitizedRequest{
		Method:     req.Method,
		Host:       req.URL.Host,
		Path:       req.URL.Path,
		StatusCode: statusCode,
		DurationMS: elapsed.Milliseconds(),
		At:         start,
		ProxyUsed:  proxyUsed,
	})
	t.mu.Unlock()

	if err == nil && resp != nil && t.governor != nil {
		t.updateGovernorFromHeaders(resp.Header)
	}
	return resp, err
}

// appendRing appends to the bounded ring buffer (caller holds t.mu).
func (t *CountingTransport) appendRing(r SanitizedRequest) {
	if len(t.ring) < t.ringCap {
		t.ring = append(t.ring, r)
		return
	}
	t.ring[t.ringPos] = r
	t.ringPos = (t.ringPos + 1) % t.ringCap
}

func (t *CountingTransport) updateGovernorFromHeaders(h http.Header) {
	remainingStr := h.Get("X-Ratelimit-Remaining")
	usedStr := h.Get("X-Ratelimit-Used")
	resetStr := h.Get("X-Ratelimit-Reset")
	if remainingStr == "" {
		return
	}

	remainingF, err := strconv.ParseFloat(remainingStr, 64)
	if err != nil {
		return
	}
	used, _ := strconv.Atoi(usedStr)
	resetSeconds, _ := strconv.Atoi(resetStr)

	t.governor.UpdateSnapshot(int(remainingF), used, time.Duration(resetSeconds)*time.Second)
}

// Stats is a point-in-time snapshot of the counting transport's tallies,
// read by the scraper worker's flushMetrics into each api_usage record.
// EstimatedCostUSD is scoped to the current cycle, matching
// ActualHTTPRequests (testable invariant #6: cost == requests * rate).
type Stats struct {
	LifetimeRequests  int64
	CycleRequests     int64
	ErrorCount        int64
	AvgResponseTimeMS int64
	EstimatedCostUSD  float64
}

func (t *CountingTransport) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	avg := int64(0)
	if t.c.lifetimeRequests > 0 {
		avg = t.c.totalDurationMS / t.c.lifetimeRequests
	}
	return Stats{
		LifetimeRequests:  t.c.lifetimeRequests,
		CycleRequests:     t.c.cycleRequests,
		ErrorCount:        t.c.errorCount,
		AvgResponseTimeMS: avg,
		EstimatedCostUSD:  float64(t.c.cycleRequests) * t.costPerRequest,
	}
}

// ResetCycle zeroes the per-cycle counter at the start of a new scrape cycle,
// keeping lifetime counters intact.
func (t *CountingTransport) ResetCycle() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.c.cycleRequests = 0
}

// RecentRequests returns a snapshot copy of the sanitized request ring, most
// recent last.
func (t *CountingTransport) RecentRequests() []SanitizedRequest {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]SanitizedRequest, len(t.ring))
	copy(out, t.ring)
	return out
}
