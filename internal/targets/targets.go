// Package targets loads the list of monitored endpoints, either from a
// plain-text target list or from an inline list supplied by the config.
package targets

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/multierr"

	"github.com/hamed0406/srvstatus/internal/domain"
)

var (
	ErrMalformedLine = errors.New("expected \"host, mechanism, port\"")
	ErrInvalidPort   = errors.New("invalid port")
	ErrInvalidTarget = errors.New("invalid target")
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("host", func(fl validator.FieldLevel) bool {
		return validHost(fl.Field().String())
	})
	return v
}

// validHost accepts IP literals and DNS names. Labels may contain '_'.
func validHost(h string) bool {
	if net.ParseIP(h) != nil {
		return true
	}
	h = strings.TrimSuffix(h, ".")
	if h == "" || len(h) > 253 {
		return false
	}
	for _, label := range strings.Split(h, ".") {
		if label == "" || len(label) > 63 || label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		for _, r := range label {
			switch {
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			default:
				return false
			}
		}
	}
	return true
}

// ParseError points at the offending line of a target list. Line is 0 for
// targets that did not come from a file.
type ParseError struct {
	Line int
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line == 0 {
		return fmt.Sprintf("target %q: %v", e.Text, e.Err)
	}
	return fmt.Sprintf("line %d %q: %v", e.Line, e.Text, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// LoadFile reads and parses a target list from disk.
func LoadFile(path string) ([]domain.Target, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open target list: %w", err)
	}
	defer f.Close()

	ts, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ts, nil
}

// Parse reads one "host, mechanism, port" entry per line. Blank lines and
// lines starting with '#' are skipped. Any malformed line fails the whole
// list; fields past the third are ignored.
func Parse(r io.Reader) ([]domain.Target, error) {
	var out []domain.Target
	sc := bufio.NewScanner(r)
	n := 0
	for sc.Scan() {
		n++
		raw := sc.Text()
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Split(line, ",")
		if len(fields) < 3 {
			return nil, &ParseError{Line: n, Text: raw, Err: ErrMalformedLine}
		}
		port, err := strconv.Atoi(strings.TrimSpace(fields[2]))
		if err != nil {
			return nil, &ParseError{Line: n, Text: raw, Err: fmt.Errorf("%w: %q", ErrInvalidPort, strings.TrimSpace(fields[2]))}
		}
		t := domain.Target{
			Host:      strings.TrimSpace(fields[0]),
			Mechanism: domain.ParseMechanism(fields[1]),
			Port:      port,
		}
		if err := check(t); err != nil {
			return nil, &ParseError{Line: n, Text: raw, Err: err}
		}
		out = append(out, t)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read target list: %w", err)
	}
	return out, nil
}

// Normalize canonicalises the mechanism of inline targets and validates
// them. All invalid entries are reported together.
func Normalize(in []domain.Target) ([]domain.Target, error) {
	out := make([]domain.Target, 0, len(in))
	var errs error
	for _, t := range in {
		t.Host = strings.TrimSpace(t.Host)
		t.Mechanism = domain.ParseMechanism(string(t.Mechanism))
		if err := check(t); err != nil {
			errs = multierr.Append(errs, &ParseError{Text: t.String(), Err: err})
			continue
		}
		out = append(out, t)
	}
	if errs != nil {
		return nil, errs
	}
	return out, nil
}

// check validates host and port. An unrecognised or empty mechanism is not
// an error here; the probe runner applies the configured policy to it.
func check(t domain.Target) error {
	err := validate.Struct(t)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return fmt.Errorf("%w: %s", ErrInvalidTarget, strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min", "max":
		return fmt.Sprintf("%s must be between 1 and 65535", field)
	case "host":
		return fmt.Sprintf("%s %q is not a hostname or IP address", field, fe.Value())
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}
