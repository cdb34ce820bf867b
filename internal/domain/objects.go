package domain

import (
	"net/netip"
	"regexp"
	"strings"

	"github.com/miekg/dns"
	"github.com/pkg/errors"
)

var labelPattern = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?$`)

// Record is a single forward host mapping. Domain is derived from FQDN and
// holds its last two labels.
type Record struct {
	FQDN   string `json:"fqdn"`
	IP     string `json:"ip"`
	Domain string `json:"domain"`
}

// NewRecord builds a validated record from raw user input.
func NewRecord(fqdn string, ip string) (*Record, error) {
	record := &Record{FQDN: fqdn, IP: ip}
	err := record.Normalize()
	if err != nil {
		return nil, err
	}
	return record, nil
}

// Normalize canonicalizes the fqdn and ip, fills in Domain when missing and
// validates the result. It is used both for new input and for entries loaded
// from an older persisted format.
func (r *Record) Normalize() error {
	r.FQDN = NormalizeFQDN(r.FQDN)
	r.IP = strings.TrimSpace(r.IP)

	if err := r.Validate(); err != nil {
		return err
	}

	addr, _ := netip.ParseAddr(r.IP)
	r.IP = addr.String()

	if r.Domain == "" {
		r.Domain, _ = ExtractDomain(r.FQDN)
	} else {
		r.Domain = NormalizeFQDN(r.Domain)
	}
	return nil
}

func (r *Record) Validate() error {
	if r.FQDN == "" {
		return errors.Wrap(ErrInvalidInput, "fqdn is required")
	}
	if r.IP == "" {
		return errors.Wrap(ErrInvalidInput, "ip address is required")
	}
	fqdn := NormalizeFQDN(r.FQDN)
	if _, err := ExtractDomain(fqdn); err != nil {
		return err
	}
	if _, ok := dns.IsDomainName(fqdn); !ok || len(fqdn) > 253 {
		return errors.Wrapf(ErrInvalidInput, "invalid fqdn format %q", r.FQDN)
	}
	for _, label := range strings.Split(fqdn, ".") {
		if !labelPattern.MatchString(label) {
			return errors.Wrapf(ErrInvalidInput, "invalid fqdn format %q", r.FQDN)
		}
	}
	if _, err := ParseIP(r.IP); err != nil {
		return err
	}
	return nil
}

// Key is the uniqueness key of the record inside a store.
func (r *Record) Key() string {
	return NormalizeFQDN(r.FQDN)
}

// NormalizeFQDN trims whitespace, removes a single trailing dot and lowercases
// the name.
func NormalizeFQDN(fqdn string) string {
	fqdn = strings.TrimSpace(fqdn)
	fqdn = strings.TrimSuffix(fqdn, ".")
	return strings.ToLower(fqdn)
}

// ExtractDomain returns the last two labels of fqdn. Multi-label public
// suffixes such as co.uk are not special-cased.
func ExtractDomain(fqdn string) (string, error) {
	fqdn = NormalizeFQDN(fqdn)
	labels := strings.Split(fqdn, ".")
	if fqdn == "" || len(labels) < 2 {
		return "", errors.Wrapf(ErrInvalidInput, "fqdn %q must have at least two labels (e.g. example.com)", fqdn)
	}
	return strings.Join(labels[len(labels)-2:], "."), nil
}

// ParseIP accepts IPv4 and IPv6 literals. Scoped IPv6 addresses are rejected.
func ParseIP(ip string) (netip.Addr, error) {
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return netip.Addr{}, errors.Wrapf(ErrInvalidInput, "invalid ip address format %q", ip)
	}
	if addr.Zone() != "" {
		return netip.Addr{}, errors.Wrapf(ErrInvalidInput, "ip address %q must not carry a zone", ip)
	}
	return addr, nil
}
