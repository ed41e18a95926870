package domain

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Mechanism is the transport a probe uses to reach a target.
type Mechanism string

const (
	MechanismPlain Mechanism = "plain"
	MechanismTLS   Mechanism = "ssl"
)

// ParseMechanism maps the configuration token onto a Mechanism.
// Unrecognised tokens are kept verbatim (lowercased) so the runner can
// decide what to do with them; use Known to tell them apart.
func ParseMechanism(s string) Mechanism {
	switch v := strings.ToLower(strings.TrimSpace(s)); v {
	case "plain", "tcp":
		return MechanismPlain
	case "ssl", "tls":
		return MechanismTLS
	default:
		return Mechanism(v)
	}
}

func (m Mechanism) Known() bool {
	return m == MechanismPlain || m == MechanismTLS
}

// Target is one monitored host/mechanism/port triple.
type Target struct {
	Host      string    `yaml:"host" json:"host" validate:"required,host"`
	Mechanism Mechanism `yaml:"mechanism" json:"mechanism"`
	Port      int       `yaml:"port" json:"port" validate:"min=1,max=65535"`
}

// Name is the identifier used in reports.
func (t Target) Name() string { return t.Host }

func (t Target) Addr() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

func (t Target) String() string {
	return fmt.Sprintf("%s, %s, %d", t.Host, t.Mechanism, t.Port)
}
