package source

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"net/url"
	"strings"
)

// ErrBlockedAddress matches every error raised because a URL, or an address
// it resolves to, is not allowed to be fetched.
var ErrBlockedAddress = errors.New("address blocked by fetch policy")

type policyError struct{ msg string }

func (e *policyError) Error() string        { return e.msg }
func (e *policyError) Is(target error) bool { return target == ErrBlockedAddress }

func policyErrorf(format string, args ...any) error {
	return &policyError{msg: fmt.Sprintf(format, args...)}
}

// Resolver looks up the addresses of a host. *net.Resolver satisfies it.
type Resolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

func blockedV4(b [4]byte) bool {
	a, s := b[0], b[1]
	switch {
	case a == 0, a == 10, a == 127:
		return true
	case a == 169 && s == 254:
		return true
	case a == 172 && s >= 16 && s <= 31:
		return true
	case a == 192 && s == 168:
		return true
	case a == 100 && s >= 64 && s <= 127:
		return true
	case a == 198 && (s == 18 || s == 19):
		return true
	case a >= 224:
		return true
	}
	return false
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

func embeddedV4(b []byte) [4]byte {
	return [4]byte{b[0], b[1], b[2], b[3]}
}

// IsBlockedAddr reports whether a must never be contacted: loopback,
// private, link-local, CGNAT, benchmarking, multicast and reserved ranges,
// including IPv4 addresses embedded in IPv4-mapped, IPv4-compatible, NAT64
// and 6to4 IPv6 forms. Teredo and documentation prefixes are blocked
// outright. Invalid addresses are blocked.
func IsBlockedAddr(a netip.Addr) bool {
	a = a.WithZone("")
	if a.Is4() {
		return blockedV4(a.As4())
	}
	if !a.Is6() {
		return true
	}
	b := a.As16()
	switch {
	case allZero(b[:]):
		return true
	case allZero(b[:15]) && b[15] == 1:
		return true
	case b[0] == 0xff:
		return true
	case b[0] == 0xfe && b[1]&0xc0 == 0x80:
		return true
	case b[0] == 0xfe && b[1]&0xc0 == 0xc0:
		return true
	case b[0]&0xfe == 0xfc:
		return true
	case allZero(b[:10]) && b[10] == 0xff && b[11] == 0xff:
		return blockedV4(embeddedV4(b[12:]))
	case allZero(b[:12]):
		return blockedV4(embeddedV4(b[12:]))
	case b[0] == 0x00 && b[1] == 0x64 && b[2] == 0xff && b[3] == 0x9b && allZero(b[4:12]):
		return blockedV4(embeddedV4(b[12:]))
	case b[0] == 0x20 && b[1] == 0x02:
		return blockedV4(embeddedV4(b[2:6]))
	case b[0] == 0x20 && b[1] == 0x01 && b[2] == 0x00 && b[3] == 0x00:
		return true
	case b[0] == 0x20 && b[1] == 0x01 && b[2] == 0x0d && b[3] == 0xb8:
		return true
	case b[0] == 0x20 && b[1] == 0x01 && b[2] == 0x00 && b[3] == 0x02 && b[4] == 0x00 && b[5] == 0x00:
		return true
	}
	return false
}

func blockedHostname(host string) bool {
	return host == "localhost" ||
		strings.HasSuffix(host, ".localhost") ||
		strings.HasSuffix(host, ".local") ||
		host == "metadata.google.internal"
}

// guard validates URLs before every request and redirect hop.
type guard struct {
	resolver Resolver
}

// check rejects anything other than https (or data:) URLs on the default
// port without credentials, and hosts that are, or resolve to, a blocked
// address.
func (g guard) check(ctx context.Context, u *url.URL) error {
	scheme := strings.ToLower(u.Scheme)
	if scheme == "data" {
		return nil
	}
	if scheme != "https" {
		got := "unknown"
		if scheme != "" {
			got = scheme + ":"
		}
		return policyErrorf("Only https (or data:) URLs are allowed (got %s).", got)
	}
	if u.User != nil {
		return policyErrorf("URLs with embedded credentials are not allowed.")
	}
	if port := u.Port(); port != "" && port != "443" {
		return policyErrorf("Non-standard ports are not allowed (got :%s).", port)
	}
	host := strings.ToLower(strings.TrimSuffix(u.Hostname(), "."))
	if host == "" {
		return policyErrorf("URL hostname is missing.")
	}
	if blockedHostname(host) {
		return policyErrorf("Blocked hostname for security reasons: %s", host)
	}
	if ip, err := netip.ParseAddr(host); err == nil {
		if IsBlockedAddr(ip) {
			return policyErrorf("Blocked IP address for security reasons: %s", host)
		}
		return nil
	}
	addrs, err := g.resolver.LookupNetIP(ctx, "ip", host)
	if err != nil || len(addrs) == 0 {
		return &FetchError{URL: u.String(), Err: fmt.Errorf("Unable to resolve hostname: %s", host)}
	}
	for _, a := range addrs {
		if IsBlockedAddr(a) {
			return policyErrorf("Blocked hostname for security reasons: %s (resolves to %s)", host, a.WithZone(""))
		}
	}
	return nil
}
