package internal

import (
	"fmt"
	"strings"
	"time"

	"github.com/anantadwi13/coredns-record-manager/internal/domain"
	"github.com/miekg/dns"
	"github.com/pkg/errors"
)

const (
	SerialTimeFormat = "2006010215"

	zoneTTL       = 300
	soaRefresh    = 3600
	soaRetry      = 1800
	soaExpire     = 604800
	soaMinimumTTL = 300
	nsAddress     = "127.0.0.1"
)

// Serial returns the SOA serial for now with hour granularity (YYYYMMDDHH).
func Serial(now time.Time) string {
	return now.Format(SerialTimeFormat)
}

func renderHeader(b *strings.Builder, zone string, serial string) {
	soaFormat := `@	IN	SOA	ns1.%[1]v. admin.%[1]v. (
		%[2]v	; Serial
		%[3]v		; Refresh
		%[4]v		; Retry
		%[5]v		; Expire
		%[6]v )		; Minimum TTL
`
	fmt.Fprintf(b, "$ORIGIN %v.\n", zone)
	fmt.Fprintf(b, "$TTL %v\n", zoneTTL)
	fmt.Fprintf(b, soaFormat, zone, serial, soaRefresh, soaRetry, soaExpire, soaMinimumTTL)
	fmt.Fprintf(b, "@\tIN\tNS\tns1.%v.\n", zone)
	fmt.Fprintf(b, "ns1\tIN\tA\t%v\n\n", nsAddress)
}

// RenderForwardZone renders one address line per record, A for IPv4 and
// AAAA for IPv6. Names are written relative to the zone origin and the apex
// is written as @.
func RenderForwardZone(zone *domain.ForwardZone, serial string) string {
	b := &strings.Builder{}
	renderHeader(b, zone.Name, serial)
	for _, record := range zone.Records {
		fmt.Fprintf(b, "%v\tIN\t%v\t%v\n", hostLabel(record.FQDN, zone.Name), addressType(record.IP), record.IP)
	}
	return b.String()
}

func addressType(ip string) string {
	if strings.Contains(ip, ":") {
		return "AAAA"
	}
	return "A"
}

// RenderReverseZone renders one PTR line per entry with a fully qualified
// target.
func RenderReverseZone(zone *domain.ReverseZone, serial string) string {
	b := &strings.Builder{}
	renderHeader(b, zone.Name, serial)
	for _, entry := range zone.Entries {
		fmt.Fprintf(b, "%v\tIN\tPTR\t%v\n", entry.Name, dns.Fqdn(entry.Target))
	}
	return b.String()
}

func hostLabel(fqdn string, zone string) string {
	if fqdn == zone {
		return "@"
	}
	return strings.TrimSuffix(fqdn, "."+zone)
}

// zoneFileWriter writes rendered zones to the files named by config.
type zoneFileWriter struct {
	config domain.Config
	now    func() time.Time
}

func newZoneFileWriter(config domain.Config, now func() time.Time) *zoneFileWriter {
	if now == nil {
		now = time.Now
	}
	return &zoneFileWriter{config: config, now: now}
}

// WriteForward overwrites the zone file of zone and returns its path.
func (w *zoneFileWriter) WriteForward(zone *domain.ForwardZone) (string, error) {
	filePath := w.config.ZoneFilePath(zone.Name)
	err := writeFile(filePath, RenderForwardZone(zone, Serial(w.now())))
	if err != nil {
		return "", errors.Wrapf(err, "write forward zone %v", zone.Name)
	}
	return filePath, nil
}

func (w *zoneFileWriter) WriteReverse(zone *domain.ReverseZone) (string, error) {
	filePath := w.config.ZoneFilePath(zone.Name)
	err := writeFile(filePath, RenderReverseZone(zone, Serial(w.now())))
	if err != nil {
		return "", errors.Wrapf(err, "write reverse zone %v", zone.Name)
	}
	return filePath, nil
}
