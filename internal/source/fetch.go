package source

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/varalys/skillvet/internal/artifacts"
	"github.com/varalys/skillvet/internal/types"
)

const (
	maxRedirects   = 5
	maxTextBytes   = 2_000_000
	maxErrorBytes  = 8_000
	maxBackoff     = 30 * time.Second
	defaultTimeout = 30 * time.Second
	clawHubTimeout = 45 * time.Second
)

// FetchError is returned for every failed fetch. Retryable marks failures
// worth another attempt: timeouts, network errors, 429 and 5xx responses.
type FetchError struct {
	URL       string
	Status    int
	Retryable bool
	Err       error

	retryAfter time.Duration
}

func (e *FetchError) Error() string { return e.Err.Error() }
func (e *FetchError) Unwrap() error { return e.Err }

// Result is the text of a fetched skill.
type Result struct {
	Content string
	// SourceURL is the URL the content was finally read from, after
	// rewrites and redirects.
	SourceURL string
	// ArchivePath is set when the skill was picked out of a zip bundle.
	ArchivePath string
}

// Fetcher downloads skill documents while refusing to reach internal
// networks. Every URL, every redirect hop and every dialed address is
// validated.
type Fetcher struct {
	// Timeout bounds one attempt. Zero selects 30s (45s for ClawHub
	// downloads); negative disables it.
	Timeout    time.Duration
	Retries    int
	RetryDelay time.Duration
	Limits     artifacts.Limits
	Resolver   Resolver

	sleep     func(ctx context.Context, d time.Duration) error
	dial      func(ctx context.Context, network, addr string) (net.Conn, error)
	tlsConfig *tls.Config

	once   sync.Once
	client *http.Client
}

// New returns a Fetcher with two retries, a 750ms base backoff and the
// system resolver.
func New() *Fetcher {
	return &Fetcher{
		Retries:    2,
		RetryDelay: 750 * time.Millisecond,
		Limits:     artifacts.DefaultLimits(),
		Resolver:   net.DefaultResolver,
	}
}

func (f *Fetcher) guard() guard {
	r := f.Resolver
	if r == nil {
		r = net.DefaultResolver
	}
	return guard{resolver: r}
}

func (f *Fetcher) httpClient() *http.Client {
	f.once.Do(f.buildClient)
	return f.client
}

func (f *Fetcher) buildClient() {
	dial := f.dial
	if dial == nil {
		d := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
		dial = d.DialContext
	}
	g := f.guard()
	tr := &http.Transport{
		Proxy:               nil,
		DialContext:         safeDialer(g.resolver, dial),
		TLSClientConfig:     f.tlsConfig,
		TLSHandshakeTimeout: 10 * time.Second,
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        32,
		IdleConnTimeout:     90 * time.Second,
	}
	f.client = &http.Client{
		Transport: tr,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) > maxRedirects {
				return fmt.Errorf("Too many redirects (>%d).", maxRedirects)
			}
			return g.check(req.Context(), req.URL)
		},
	}
}

// safeDialer resolves the host itself and only dials addresses that pass
// IsBlockedAddr, so a DNS answer that changes between validation and
// connection cannot reach a blocked address.
func safeDialer(r Resolver, dial func(ctx context.Context, network, addr string) (net.Conn, error)) func(ctx context.Context, network, addr string) (net.Conn, error) {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}
		var addrs []netip.Addr
		if ip, err := netip.ParseAddr(host); err == nil {
			addrs = []netip.Addr{ip}
		} else {
			addrs, err = r.LookupNetIP(ctx, "ip", host)
			if err != nil {
				return nil, err
			}
		}
		for _, a := range addrs {
			if IsBlockedAddr(a) {
				return nil, policyErrorf("Blocked hostname for security reasons: %s (resolves to %s)", host, a.WithZone(""))
			}
		}
		var lastErr error = fmt.Errorf("no addresses for %s", host)
		for _, a := range addrs {
			conn, err := dial(ctx, network, net.JoinHostPort(a.String(), port))
			if err == nil {
				return conn, nil
			}
			lastErr = err
		}
		return nil, lastErr
	}
}

// Fetch retrieves the skill at rawURL. Page URLs are rewritten first (see
// NormalizeSkillURL); zip responses are unpacked with the Fetcher's limits.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (Result, error) {
	sourceURL := NormalizeSkillURL(rawURL)
	if strings.HasPrefix(strings.ToLower(sourceURL), "data:") {
		return decodeDataURL(sourceURL)
	}

	timeout := f.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
		if IsClawHubDownload(sourceURL) {
			timeout = clawHubTimeout
		}
	}
	retries := max(0, f.Retries)

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		res, err := f.attempt(ctx, sourceURL, timeout)
		if err == nil {
			return res, nil
		}
		lastErr = err
		var fe *FetchError
		if attempt >= retries || ctx.Err() != nil || !errors.As(err, &fe) || !fe.Retryable {
			return Result{}, err
		}
		delay := fe.retryAfter
		if delay < 0 {
			delay = f.backoff(attempt)
		}
		slog.Debug("retrying fetch", "url", sourceURL, "attempt", attempt+1, "delay", delay, "err", err)
		if err := f.wait(ctx, delay); err != nil {
			return Result{}, &FetchError{URL: sourceURL, Err: err}
		}
	}
	return Result{}, lastErr
}

func (f *Fetcher) backoff(attempt int) time.Duration {
	d := f.RetryDelay*time.Duration(1<<attempt) + time.Duration(rand.N(251))*time.Millisecond
	return min(d, maxBackoff)
}

func (f *Fetcher) wait(ctx context.Context, d time.Duration) error {
	if f.sleep != nil {
		return f.sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (f *Fetcher) attempt(parent context.Context, sourceURL string, timeout time.Duration) (Result, error) {
	u, err := url.Parse(sourceURL)
	if err != nil {
		return Result{}, &FetchError{URL: sourceURL, Err: fmt.Errorf("invalid URL %q: %w", sourceURL, err)}
	}
	if err := f.guard().check(parent, u); err != nil {
		return Result{}, asFetchError(sourceURL, err)
	}

	ctx := parent
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return Result{}, &FetchError{URL: sourceURL, Err: err}
	}
	req.Header.Set("Accept", "text/plain,text/markdown,text/html;q=0.9,application/zip;q=0.8,*/*;q=0.7")
	req.Header.Set("User-Agent", "SkillVet/"+types.ScannerVersion)

	resp, err := f.httpClient().Do(req)
	if err != nil {
		return Result{}, f.transportError(parent, sourceURL, err)
	}
	defer resp.Body.Close()
	finalURL := resp.Request.URL.String()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{}, statusError(finalURL, resp)
	}

	if IsZipResponse(resp.Header.Get("Content-Type"), finalURL) {
		data, err := readLimited(resp, f.Limits.MaxArchiveBytes)
		if err != nil {
			return Result{}, f.transportError(parent, finalURL, err)
		}
		skill, err := artifacts.ExtractSkillFromZip(data, f.Limits)
		if err != nil {
			return Result{}, &FetchError{URL: finalURL, Err: err}
		}
		return Result{Content: skill.Content, SourceURL: finalURL, ArchivePath: skill.Path}, nil
	}

	data, err := readLimited(resp, maxTextBytes)
	if err != nil {
		return Result{}, f.transportError(parent, finalURL, err)
	}
	return Result{Content: string(bytes.ToValidUTF8(data, []byte("�"))), SourceURL: finalURL}, nil
}

func asFetchError(u string, err error) error {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}
	return &FetchError{URL: u, Err: err}
}

// transportError classifies errors from the client and body reads. Policy
// violations surface with their own message; the caller's cancellation is
// final; per-attempt timeouts and network failures are retryable.
func (f *Fetcher) transportError(parent context.Context, u string, err error) error {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}
	var ue *url.Error
	if errors.As(err, &ue) {
		var pe *policyError
		if errors.As(ue.Err, &pe) {
			return &FetchError{URL: u, Err: pe}
		}
		if strings.HasPrefix(ue.Err.Error(), "Too many redirects") {
			return &FetchError{URL: u, Err: ue.Err}
		}
	}
	if errors.Is(err, ErrBlockedAddress) {
		return &FetchError{URL: u, Err: err}
	}
	var tooLarge *tooLargeError
	if errors.As(err, &tooLarge) {
		return &FetchError{URL: u, Err: err}
	}
	if parent.Err() != nil {
		return &FetchError{URL: u, Err: parent.Err()}
	}
	if permanentTransportError(err) {
		return &FetchError{URL: u, Err: err}
	}
	return &FetchError{URL: u, Retryable: true, Err: err, retryAfter: -1}
}

// permanentTransportError reports failures a retry cannot fix: certificate
// and hostname verification, a peer that does not speak TLS, and names that
// do not exist.
func permanentTransportError(err error) bool {
	var certErr *tls.CertificateVerificationError
	var hostErr x509.HostnameError
	var authErr x509.UnknownAuthorityError
	var invalidErr x509.CertificateInvalidError
	var recordErr tls.RecordHeaderError
	var dnsErr *net.DNSError
	switch {
	case errors.As(err, &certErr), errors.As(err, &hostErr), errors.As(err, &authErr),
		errors.As(err, &invalidErr), errors.As(err, &recordErr):
		return true
	case errors.As(err, &dnsErr):
		return dnsErr.IsNotFound
	}
	return false
}

type tooLargeError struct{ msg string }

func (e *tooLargeError) Error() string { return e.msg }

// readLimited reads the body, failing early on a declared Content-Length
// above max and again once the streamed bytes exceed it.
func readLimited(resp *http.Response, max int64) ([]byte, error) {
	if max <= 0 {
		max = maxTextBytes
	}
	if resp.ContentLength > max {
		return nil, &tooLargeError{msg: fmt.Sprintf("Response too large (%d bytes > %d bytes).", resp.ContentLength, max)}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, max+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > max {
		return nil, &tooLargeError{msg: fmt.Sprintf("Response too large (>%d bytes).", max)}
	}
	return data, nil
}

func statusError(finalURL string, resp *http.Response) error {
	text := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	msg := fmt.Sprintf("Failed to fetch skill from %s: %d %s", finalURL, resp.StatusCode, text)
	if body, err := readLimited(resp, maxErrorBytes); err == nil {
		if snippet := bodySnippet(string(body)); snippet != "" {
			msg += " - " + snippet
		}
	}
	retryable := resp.StatusCode == http.StatusTooManyRequests || (resp.StatusCode >= 500 && resp.StatusCode <= 599)
	return &FetchError{
		URL:        finalURL,
		Status:     resp.StatusCode,
		Retryable:  retryable,
		Err:        errors.New(msg),
		retryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
	}
}

func bodySnippet(text string) string {
	cleaned := strings.Join(strings.Fields(text), " ")
	if len(cleaned) > 200 {
		return cleaned[:200] + "..."
	}
	return cleaned
}

// parseRetryAfter accepts delta-seconds or an HTTP date. It returns -1 when
// the header is absent or unparseable.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return -1
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return max(0, time.Duration(secs)*time.Second)
	}
	if t, err := http.ParseTime(v); err == nil {
		return max(0, t.Sub(now))
	}
	return -1
}

func decodeDataURL(raw string) (Result, error) {
	comma := strings.IndexByte(raw, ',')
	if comma < 0 {
		return Result{}, &FetchError{URL: raw, Err: errors.New("malformed data: URL")}
	}
	meta, payload := raw[len("data:"):comma], raw[comma+1:]
	var data []byte
	if strings.HasSuffix(strings.ToLower(meta), ";base64") {
		b, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return Result{}, &FetchError{URL: raw, Err: fmt.Errorf("decode data: URL: %w", err)}
		}
		data = b
	} else {
		s, err := url.PathUnescape(payload)
		if err != nil {
			return Result{}, &FetchError{URL: raw, Err: fmt.Errorf("decode data: URL: %w", err)}
		}
		data = []byte(s)
	}
	if len(data) > maxTextBytes {
		return Result{}, &FetchError{URL: raw, Err: fmt.Errorf("Response too large (>%d bytes).", maxTextBytes)}
	}
	return Result{Content: string(data), SourceURL: raw}, nil
}
