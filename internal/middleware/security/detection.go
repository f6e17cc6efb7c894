package security

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
)

// probePatterns are fragments that never appear in legitimate requests to
// this application but show up in automated scans.
var probePatterns = []string{
	"../", "..\\", ".env", ".git", ".ssh", "wp-admin", "phpmyadmin",
	"admin.php", "config.php", "etc/passwd", "cmd.exe",
	"<script", "javascript:", "union select", "drop table",
}

var unusualMethods = map[string]bool{
	"TRACE":   true,
	"TRACK":   true,
	"DEBUG":   true,
	"CONNECT": true,
}

const maxURLLength = 2048

// Detector flags suspicious requests and resolves client addresses.
type Detector struct {
	suspicious     int64
	trustedProxies []*net.IPNet
}

// NewDetector trusts loopback and private networks as forwarding proxies.
func NewDetector() *Detector {
	return &Detector{
		trustedProxies: []*net.IPNet{
			parseCIDR("127.0.0.0/8"),
			parseCIDR("::1/128"),
			parseCIDR("10.0.0.0/8"),
			parseCIDR("172.16.0.0/12"),
			parseCIDR("192.168.0.0/16"),
		},
	}
}

func parseCIDR(cidr string) *net.IPNet {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		panic(fmt.Sprintf("failed to parse trusted proxy CIDR %s: %v", cidr, err))
	}
	return network
}

// AddTrustedProxy adds a trusted proxy network
func (d *Detector) AddTrustedProxy(cidr string) error {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		return fmt.Errorf("invalid CIDR %s: %w", cidr, err)
	}
	d.trustedProxies = append(d.trustedProxies, network)
	return nil
}

// IsSuspicious reports whether r looks like a probe rather than a UI request.
func (d *Detector) IsSuspicious(r *http.Request) bool {
	if unusualMethods[r.Method] {
		return true
	}
	if len(r.URL.String()) > maxURLLength {
		return true
	}

	path := strings.ToLower(r.URL.Path)
	query := r.URL.RawQuery
	if unescaped, err := url.QueryUnescape(query); err == nil {
		query = unescaped
	}
	query = strings.ToLower(query)
	for _, pattern := range probePatterns {
		if strings.Contains(path, pattern) || strings.Contains(query, pattern) {
			return true
		}
	}
	return strings.Count(r.Header.Get("X-Forwarded-For"), ",") > 5
}

// Middleware rejects unusual methods and logs every suspicious request.
func (d *Detector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if d.IsSuspicious(r) {
			atomic.AddInt64(&d.suspicious, 1)
			slog.WarnContext(r.Context(), "Suspicious request",
				"client_ip", d.ClientIP(r),
				"method", r.Method,
				"path", r.URL.Path,
				"user_agent", r.Header.Get("User-Agent"))
			if unusualMethods[r.Method] {
				w.Header().Set("Allow", "GET, POST, DELETE")
				http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// SuspiciousRequests returns how many suspicious requests were seen.
func (d *Detector) SuspiciousRequests() int64 {
	return atomic.LoadInt64(&d.suspicious)
}

// ClientIP returns the caller address, honouring X-Forwarded-For and
// X-Real-IP only when the direct peer is a trusted proxy.
func (d *Detector) ClientIP(r *http.Request) string {
	directIP, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		directIP = r.RemoteAddr
	}

	parsed := net.ParseIP(directIP)
	if parsed == nil || !d.isTrustedProxy(parsed) {
		return directIP
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if net.ParseIP(first) != nil {
			return first
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" && net.ParseIP(xri) != nil {
		return xri
	}
	return directIP
}

func (d *Detector) isTrustedProxy(ip net.IP) bool {
	for _, network := range d.trustedProxies {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}
