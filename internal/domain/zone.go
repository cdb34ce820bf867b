package domain

import (
	"strings"

	"github.com/miekg/dns"
	"github.com/pkg/errors"
)

const IPv6ReverseZone = "ip6.arpa"

type ForwardZone struct {
	Name    string
	Records []*Record
}

// PTREntry is a single reverse mapping inside a ReverseZone. Name is relative
// to the zone and Target is the fqdn without trailing dot.
type PTREntry struct {
	Name   string
	Target string
}

type ReverseZone struct {
	Name    string
	Entries []PTREntry
}

// Zones holds the result of partitioning a record set. Both slices keep the
// order in which a zone was first seen.
type Zones struct {
	Forward []*ForwardZone
	Reverse []*ReverseZone
}

func (z *Zones) FindForward(name string) *ForwardZone {
	for _, zone := range z.Forward {
		if zone.Name == name {
			return zone
		}
	}
	return nil
}

func (z *Zones) FindReverse(name string) *ReverseZone {
	for _, zone := range z.Reverse {
		if zone.Name == name {
			return zone
		}
	}
	return nil
}

// GroupZones partitions records into forward zones keyed by domain and
// reverse zones keyed by reverse lookup zone. A record whose reverse zone can
// not be derived still lands in its forward zone. A forward zone named like a
// reverse zone is dropped. Failures are reported in the returned slice and
// never abort the pass.
func GroupZones(records []*Record) (*Zones, []error) {
	zones := &Zones{}
	forwardIdx := map[string]*ForwardZone{}
	reverseIdx := map[string]*ReverseZone{}
	var failures []error

	for _, record := range records {
		if record == nil {
			continue
		}

		fz, ok := forwardIdx[record.Domain]
		if !ok {
			fz = &ForwardZone{Name: record.Domain}
			forwardIdx[record.Domain] = fz
			zones.Forward = append(zones.Forward, fz)
		}
		fz.Records = append(fz.Records, record)

		zoneName, name, err := ReverseName(record.IP)
		if err != nil {
			failures = append(failures, errors.Wrapf(err, "record %v -> %v", record.FQDN, record.IP))
			continue
		}
		rz, ok := reverseIdx[zoneName]
		if !ok {
			rz = &ReverseZone{Name: zoneName}
			reverseIdx[zoneName] = rz
			zones.Reverse = append(zones.Reverse, rz)
		}
		rz.Entries = append(rz.Entries, PTREntry{Name: name, Target: record.FQDN})
	}

	// a forward zone sharing its name with a reverse zone would share its file
	// and stanza as well
	forward := zones.Forward[:0]
	for _, fz := range zones.Forward {
		if _, clash := reverseIdx[fz.Name]; clash {
			failures = append(failures, errors.Wrapf(ErrPartialDerivation,
				"forward zone %v collides with a reverse zone, %d record(s) skipped", fz.Name, len(fz.Records)))
			continue
		}
		forward = append(forward, fz)
	}
	zones.Forward = forward
	return zones, failures
}

// ReverseName returns the reverse zone and the record name inside it for ip.
// IPv4 addresses map to their /24 in-addr.arpa zone and the last octet; all
// IPv6 addresses share the ip6.arpa zone and keep their literal as name.
func ReverseName(ip string) (zone string, name string, err error) {
	addr, err := ParseIP(ip)
	if err != nil {
		return "", "", errors.Wrap(ErrPartialDerivation, err.Error())
	}
	if !addr.Is4() {
		return IPv6ReverseZone, addr.String(), nil
	}

	arpa, err := dns.ReverseAddr(addr.String())
	if err != nil {
		return "", "", errors.Wrap(ErrPartialDerivation, err.Error())
	}
	// 5.0.0.10.in-addr.arpa. -> "5", "0.0.10.in-addr.arpa"
	labels := dns.SplitDomainName(arpa)
	if len(labels) != 6 {
		return "", "", errors.Wrapf(ErrPartialDerivation, "unexpected reverse name %v", arpa)
	}
	return strings.Join(labels[1:], "."), labels[0], nil
}
