// Package probe implements the two connectivity probes: a single ICMP echo
// and an HTTP GET that detects captive-portal hijacking.
package probe

import "fmt"

// Kind classifies the outcome of one probe.
type Kind string

const (
	KindReachable   Kind = "reachable"
	KindUnreachable Kind = "unreachable" // no echo reply
	KindHijacked    Kind = "hijacked"    // landed on the portal
	KindRedirected  Kind = "redirected"  // redirected off the expected domain
	KindHTTPStatus  Kind = "http_status" // final status was not 200
	KindError       Kind = "error"       // transport or setup failure
)

// Verdict is the result of a single probe invocation. Probes never return
// errors; every failure is folded into a Verdict with a diagnostic Detail.
type Verdict struct {
	Target    string `json:"target"`
	Reachable bool   `json:"reachable"`
	Kind      Kind   `json:"kind"`
	Detail    string `json:"detail,omitempty"`
}

func reachable(target, detail string) Verdict {
	return Verdict{Target: target, Reachable: true, Kind: KindReachable, Detail: detail}
}

func unreachable(target string, kind Kind, format string, args ...any) Verdict {
	return Verdict{Target: target, Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

func (v Verdict) String() string {
	if v.Detail == "" {
		return fmt.Sprintf("%s: %s", v.Target, v.Kind)
	}
	return fmt.Sprintf("%s: %s (%s)", v.Target, v.Kind, v.Detail)
}
