// Package access decides whether a request may proceed, must be redirected, or is refused.
//
// Decide is a pure function over the request facts; Middleware renders its answer.
package access

import (
	"net"
	"strings"

	"lendingdesk/internal/tenant"
)

const (
	LoginPath       = "/login/"
	TenantLoginPath = "/login1/"
	RegisterPath    = "/register/"
)

var publicPaths = map[string]struct{}{
	LoginPath:       {},
	TenantLoginPath: {},
	RegisterPath:    {},
}

// IsPublic reports whether path is reachable without logging in.
func IsPublic(path string) bool {
	_, ok := publicPaths[path]
	return ok
}

// Outcome is the kind of decision the gate made.
type Outcome int

const (
	Allow Outcome = iota
	Redirect
	Deny
)

func (o Outcome) String() string {
	switch o {
	case Allow:
		return "allow"
	case Redirect:
		return "redirect"
	default:
		return "deny"
	}
}

// Request holds the facts about an incoming request the gate looks at.
type Request struct {
	Path   string
	Host   string // as received, possibly with a port
	Secure bool
	Tenant string
}

// Caller describes who is making the request.
type Caller struct {
	Authenticated bool
	Schema        string
}

// Policy holds the tunable parts of the gate.
type Policy struct {
	// AllowUnassignedSchema lets authenticated callers without a schema browse any host.
	// When false they are denied instead.
	AllowUnassignedSchema bool
}

// DefaultPolicy matches the historical behaviour of the application.
func DefaultPolicy() Policy {
	return Policy{AllowUnassignedSchema: true}
}

// Decision is the gate's answer. Scheme and Host are only set when the caller has to move
// to another host; otherwise a redirect stays on the current host.
type Decision struct {
	Outcome Outcome
	Path    string
	Scheme  string
	Host    string
	Reason  string
}

// URL returns the redirect target: an absolute URL when the host changes, else just the path.
func (d Decision) URL() string {
	if d.Host == "" {
		return d.Path
	}
	return d.Scheme + "://" + d.Host + d.Path
}

// Decide evaluates the rules in order: public root, public paths, tenant host check,
// anonymous refusal.
func Decide(req Request, caller Caller, policy Policy) Decision {
	if req.Path == "/" && req.Tenant == tenant.Public {
		return Decision{Outcome: Redirect, Path: LoginPath, Reason: "public tenant root"}
	}

	if IsPublic(req.Path) {
		return Decision{Outcome: Allow, Reason: "public path"}
	}

	if !caller.Authenticated {
		return Decision{Outcome: Deny, Reason: "login required"}
	}

	if caller.Schema == "" {
		if policy.AllowUnassignedSchema {
			return Decision{Outcome: Allow, Reason: "no schema assigned"}
		}
		return Decision{Outcome: Deny, Reason: "no schema assigned"}
	}

	hostname, port := splitHost(req.Host)
	if leadingLabel(hostname) == caller.Schema {
		return Decision{Outcome: Allow, Reason: "tenant host"}
	}

	return Decision{
		Outcome: Redirect,
		Path:    TenantLoginPath,
		Scheme:  scheme(req.Secure),
		Host:    joinHost(CorrectHost(hostname, caller.Schema), port),
		Reason:  "wrong tenant host",
	}
}

// CorrectHost replaces the first label of hostname with schema and keeps the rest.
func CorrectHost(hostname, schema string) string {
	if i := strings.IndexByte(hostname, '.'); i >= 0 {
		return schema + hostname[i:]
	}
	return schema
}

func leadingLabel(hostname string) string {
	if i := strings.IndexByte(hostname, '.'); i >= 0 {
		return hostname[:i]
	}
	return hostname
}

func splitHost(hostport string) (string, string) {
	if host, port, err := net.SplitHostPort(hostport); err == nil {
		return strings.ToLower(host), port
	}
	return strings.ToLower(hostport), ""
}

func joinHost(host, port string) string {
	if port == "" || port == "80" {
		return host
	}
	return net.JoinHostPort(host, port)
}

func scheme(secure bool) string {
	if secure {
		return "https"
	}
	return "http"
}
