package source

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResolver map[string][]string

func (r fakeResolver) LookupNetIP(_ context.Context, _, host string) ([]netip.Addr, error) {
	raw, ok := r[host]
	if !ok {
		return nil, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
	}
	out := make([]netip.Addr, 0, len(raw))
	for _, s := range raw {
		out = append(out, netip.MustParseAddr(s))
	}
	return out, nil
}

const publicIP = "93.184.215.14"

type harness struct {
	f      *Fetcher
	srv    *httptest.Server
	mu     sync.Mutex
	dialed []string
	slept  []time.Duration
}

func (h *harness) dials() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.dialed...)
}

// newHarness serves handler over TLS as https://example.com; every dial is
// recorded and then redirected to the test server.
func newHarness(t *testing.T, handler http.Handler, resolver Resolver) *harness {
	t.Helper()
	srv := httptest.NewTLSServer(handler)
	t.Cleanup(srv.Close)

	h := &harness{srv: srv}
	if resolver == nil {
		resolver = fakeResolver{"example.com": {publicIP}}
	}
	pool := x509.NewCertPool()
	pool.AddCert(srv.Certificate())

	f := New()
	f.Resolver = resolver
	f.RetryDelay = 10 * time.Millisecond
	f.tlsConfig = &tls.Config{RootCAs: pool}
	f.sleep = func(_ context.Context, d time.Duration) error {
		h.mu.Lock()
		h.slept = append(h.slept, d)
		h.mu.Unlock()
		return nil
	}
	f.dial = func(ctx context.Context, network, addr string) (net.Conn, error) {
		h.mu.Lock()
		h.dialed = append(h.dialed, addr)
		h.mu.Unlock()
		var d net.Dialer
		return d.DialContext(ctx, network, srv.Listener.Addr().String())
	}
	h.f = f
	return h
}

func TestFetch_PlainText(t *testing.T) {
	var ua string
	h := newHarness(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte("# Weather\n"))
	}), nil)

	res, err := h.f.Fetch(context.Background(), "https://example.com/SKILL.md")
	require.NoError(t, err)
	assert.Equal(t, "# Weather\n", res.Content)
	assert.Equal(t, "https://example.com/SKILL.md", res.SourceURL)
	assert.Empty(t, res.ArchivePath)
	assert.Equal(t, "SkillVet/0.4.0", ua)
	assert.Equal(t, []string{publicIP + ":443"}, h.dials())
}

func TestFetch_MetadataAddressNeverRequested(t *testing.T) {
	var hits atomic.Int32
	h := newHarness(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}), nil)

	_, err := h.f.Fetch(context.Background(), "https://169.254.169.254/latest/meta-data")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBlockedAddress))
	assert.Equal(t, "Blocked IP address for security reasons: 169.254.169.254", err.Error())

	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.False(t, fe.Retryable)
	assert.Empty(t, h.dials())
	assert.Empty(t, h.slept)
	assert.Zero(t, hits.Load())
}

func TestFetch_RedirectToBlockedHost(t *testing.T) {
	var secretHits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "https://internal.example.com/secret", http.StatusFound)
	})
	mux.HandleFunc("/secret", func(w http.ResponseWriter, r *http.Request) {
		secretHits.Add(1)
	})
	h := newHarness(t, mux, fakeResolver{
		"example.com":          {publicIP},
		"internal.example.com": {"10.0.0.7"},
	})

	_, err := h.f.Fetch(context.Background(), "https://example.com/start")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBlockedAddress)
	assert.Equal(t, "Blocked hostname for security reasons: internal.example.com (resolves to 10.0.0.7)", err.Error())
	assert.Zero(t, secretHits.Load())
	assert.Len(t, h.dials(), 1)
}

func TestFetch_TooManyRedirects(t *testing.T) {
	var hits atomic.Int32
	h := newHarness(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := hits.Add(1)
		http.Redirect(w, r, fmt.Sprintf("/hop/%d", n), http.StatusFound)
	}), nil)

	_, err := h.f.Fetch(context.Background(), "https://example.com/hop/0")
	require.Error(t, err)
	assert.Equal(t, "Too many redirects (>5).", err.Error())
	assert.Equal(t, int32(6), hits.Load())
}

func TestFetch_DialTimeRebinding(t *testing.T) {
	var calls atomic.Int32
	resolver := resolverFunc(func(host string) []netip.Addr {
		if calls.Add(1) == 1 {
			return []netip.Addr{netip.MustParseAddr(publicIP)}
		}
		return []netip.Addr{netip.MustParseAddr("127.0.0.1")}
	})
	h := newHarness(t, http.NotFoundHandler(), resolver)

	_, err := h.f.Fetch(context.Background(), "https://example.com/SKILL.md")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBlockedAddress)
	assert.Empty(t, h.dials())
}

type resolverFunc func(host string) []netip.Addr

func (f resolverFunc) LookupNetIP(_ context.Context, _, host string) ([]netip.Addr, error) {
	return f(host), nil
}

func TestFetch_RetryAfterHonored(t *testing.T) {
	var hits atomic.Int32
	h := newHarness(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) <= 2 {
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}), nil)

	res, err := h.f.Fetch(context.Background(), "https://example.com/SKILL.md")
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Content)
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, h.slept)
}

func TestFetch_RetriesExhausted(t *testing.T) {
	var hits atomic.Int32
	h := newHarness(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("  boom \n  again "))
	}), nil)

	_, err := h.f.Fetch(context.Background(), "https://example.com/x")
	require.Error(t, err)
	assert.Equal(t, "Failed to fetch skill from https://example.com/x: 500 Internal Server Error - boom again", err.Error())

	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.True(t, fe.Retryable)
	assert.Equal(t, 500, fe.Status)
	assert.Equal(t, int32(3), hits.Load())
	require.Len(t, h.slept, 2)
	for i, d := range h.slept {
		base := 10 * time.Millisecond * time.Duration(1<<i)
		assert.GreaterOrEqual(t, d, base)
		assert.LessOrEqual(t, d, base+250*time.Millisecond)
	}
}

func TestFetch_NotFoundIsFinal(t *testing.T) {
	var hits atomic.Int32
	h := newHarness(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}), nil)

	_, err := h.f.Fetch(context.Background(), "https://example.com/missing")
	require.Error(t, err)
	assert.Equal(t, "Failed to fetch skill from https://example.com/missing: 404 Not Found - 404 page not found", err.Error())
	assert.Equal(t, int32(1), hits.Load())
}

func TestFetch_ResponseTooLarge(t *testing.T) {
	t.Run("declared", func(t *testing.T) {
		h := newHarness(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Length", "2000001")
			_, _ = w.Write(bytes.Repeat([]byte("a"), 2_000_001))
		}), nil)
		_, err := h.f.Fetch(context.Background(), "https://example.com/big")
		require.Error(t, err)
		assert.Equal(t, "Response too large (2000001 bytes > 2000000 bytes).", err.Error())
		assert.Empty(t, h.slept)
	})
	t.Run("streamed", func(t *testing.T) {
		h := newHarness(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("start"))
			w.(http.Flusher).Flush()
			_, _ = w.Write(bytes.Repeat([]byte("a"), 2_000_000))
		}), nil)
		_, err := h.f.Fetch(context.Background(), "https://example.com/big")
		require.Error(t, err)
		assert.Equal(t, "Response too large (>2000000 bytes).", err.Error())
	})
}

func TestFetch_ZipBundle(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range map[string]string{"weather/SKILL.md": "# Weather", "weather/run.py": "print(1)"} {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, _ = w.Write([]byte(body))
	}
	require.NoError(t, zw.Close())

	h := newHarness(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/zip")
		_, _ = w.Write(buf.Bytes())
	}), nil)

	res, err := h.f.Fetch(context.Background(), "https://example.com/bundle")
	require.NoError(t, err)
	assert.Equal(t, "# Weather", res.Content)
	assert.Equal(t, "weather/SKILL.md", res.ArchivePath)
}

func TestFetch_CancelledContextNotRetried(t *testing.T) {
	h := newHarness(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := h.f.Fetch(ctx, "https://example.com/slow")
	require.Error(t, err)
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.False(t, fe.Retryable)
	assert.Empty(t, h.slept)
}

func TestFetch_UntrustedCertificateNotRetried(t *testing.T) {
	h := newHarness(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("# Weather\n"))
	}), nil)
	h.f.tlsConfig = &tls.Config{RootCAs: x509.NewCertPool()}

	_, err := h.f.Fetch(context.Background(), "https://example.com/SKILL.md")
	require.Error(t, err)
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.False(t, fe.Retryable)
	assert.Empty(t, h.slept)
}

func TestPermanentTransportError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"unknown authority", fmt.Errorf("tls: %w", x509.UnknownAuthorityError{}), true},
		{"hostname mismatch", x509.HostnameError{Host: "example.com", Certificate: &x509.Certificate{}}, true},
		{"verification", &tls.CertificateVerificationError{Err: errors.New("expired")}, true},
		{"nxdomain", &net.DNSError{Err: "no such host", Name: "x.invalid", IsNotFound: true}, true},
		{"dns timeout", &net.DNSError{Err: "i/o timeout", Name: "example.com", IsTimeout: true}, false},
		{"connection reset", errors.New("read: connection reset by peer"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, permanentTransportError(tt.err))
		})
	}
}

func TestFetch_DataURL(t *testing.T) {
	f := New()
	res, err := f.Fetch(context.Background(), "data:text/plain;base64,IyBTa2lsbA==")
	require.NoError(t, err)
	assert.Equal(t, "# Skill", res.Content)

	res, err = f.Fetch(context.Background(), "data:text/plain,%23%20Hi")
	require.NoError(t, err)
	assert.Equal(t, "# Hi", res.Content)
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	assert.Equal(t, 3*time.Second, parseRetryAfter("3", now))
	assert.Equal(t, time.Duration(0), parseRetryAfter("-4", now))
	assert.Equal(t, 10*time.Second, parseRetryAfter(now.Add(10*time.Second).Format(http.TimeFormat), now))
	assert.Equal(t, time.Duration(0), parseRetryAfter(now.Add(-time.Hour).Format(http.TimeFormat), now))
	assert.Equal(t, time.Duration(-1), parseRetryAfter("", now))
	assert.Equal(t, time.Duration(-1), parseRetryAfter("soon", now))
}

func TestBodySnippet(t *testing.T) {
	assert.Equal(t, "a b", bodySnippet(" a\n\tb "))
	long := strings.Repeat("x", 250)
	assert.Equal(t, strings.Repeat("x", 200)+"...", bodySnippet(long))
	assert.Empty(t, bodySnippet("  \n"))
}
