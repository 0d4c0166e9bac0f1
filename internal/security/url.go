// Package security guards outbound HTTP traffic against SSRF. Every
// request the assistant makes to a search API, the embedding endpoint or
// a model provider goes through a transport that refuses to connect to
// private networks, loopback, link-local ranges and cloud metadata
// services, even when DNS resolution is what points there.
package security

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// MaxRedirects bounds redirect chains on guarded clients.
const MaxRedirects = 10

// Guard validates URLs and resolved IPs before an outbound connection
// is made. The zero value is not usable; construct with NewGuard.
type Guard struct {
	schemes map[string]struct{}
	blocked map[string]struct{}
}

// NewGuard returns a Guard that allows http and https to public
// addresses only.
func NewGuard() *Guard {
	return &Guard{
		schemes: map[string]struct{}{
			"http":  {},
			"https": {},
		},
		blocked: map[string]struct{}{
			"localhost":                {},
			"metadata.google.internal": {},
			"metadata.gce.internal":    {},
			"metadata.internal":        {},
		},
	}
}

// ValidateURL checks scheme and hostname statically. It cannot catch
// DNS rebinding; Transport performs the resolved-IP check as well.
func (g *Guard) ValidateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if _, ok := g.schemes[strings.ToLower(u.Scheme)]; !ok {
		return fmt.Errorf("unsupported scheme %q (http and https only)", u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("empty hostname")
	}
	if _, deny := g.blocked[strings.ToLower(host)]; deny {
		return fmt.Errorf("blocked host %q", host)
	}
	if ip := net.ParseIP(host); ip != nil {
		return g.checkIP(ip)
	}
	return nil
}

func (g *Guard) checkIP(ip net.IP) error {
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}
	switch {
	case ip.IsLoopback():
		return fmt.Errorf("loopback address %s not allowed", ip)
	case ip.IsPrivate():
		return fmt.Errorf("private address %s not allowed", ip)
	case ip.IsLinkLocalUnicast(), ip.IsLinkLocalMulticast():
		return fmt.Errorf("link-local address %s not allowed", ip)
	case ip.IsUnspecified():
		return fmt.Errorf("unspecified address %s not allowed", ip)
	}
	return nil
}

// Transport returns an http.Transport whose dialer re-validates every
// IP the hostname resolves to, closing the DNS rebinding gap that a
// static URL check leaves open.
func (g *Guard) Transport() *http.Transport {
	return &http.Transport{
		DialContext:         g.dial,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
}

func (g *Guard) dial(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		host, port = addr, ""
	}

	if ip := net.ParseIP(host); ip != nil {
		if err := g.checkIP(ip); err != nil {
			return nil, fmt.Errorf("connection refused: %w", err)
		}
		return (&net.Dialer{}).DialContext(ctx, network, addr)
	}

	ips, err := net.DefaultResolver.LookupIP(ctx, "ip", host)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", host, err)
	}
	for _, ip := range ips {
		if err := g.checkIP(ip); err != nil {
			return nil, fmt.Errorf("connection refused (%s resolved to %s): %w", host, ip, err)
		}
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("no addresses resolved for %s", host)
	}

	// Dial the IP we just validated, not the name, so a second
	// resolution cannot swap the target.
	target := ips[0].String()
	if port != "" {
		target = net.JoinHostPort(target, port)
	}
	return (&net.Dialer{}).DialContext(ctx, network, target)
}

// CheckRedirect limits chain length and validates each hop. Install it
// as http.Client.CheckRedirect on guarded clients.
func (g *Guard) CheckRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= MaxRedirects {
		return fmt.Errorf("stopped after %d redirects", MaxRedirects)
	}
	return g.ValidateURL(req.URL.String())
}

// NewClient returns an http.Client with the guarded transport and
// redirect policy installed.
func (g *Guard) NewClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Transport:     g.Transport(),
		CheckRedirect: g.CheckRedirect,
		Timeout:       timeout,
	}
}
