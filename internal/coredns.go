package internal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/anantadwi13/coredns-record-manager/internal/atomicfile"
	"github.com/anantadwi13/coredns-record-manager/internal/domain"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ManagedMarker separates the operator authored part of the Corefile from the
// generated zone stanzas.
const ManagedMarker = "# --- managed-zones below this line (do not remove) ---"

type corednsServer struct {
	config   domain.Config
	store    *RecordStore
	zones    *zoneFileWriter
	reloader *ReloadCoordinator
	metrics  *Metrics
	log      *zap.Logger
	mu       sync.Mutex
}

type CorednsOption func(*corednsServer)

// WithClock overrides the clock used for SOA serials.
func WithClock(now func() time.Time) CorednsOption {
	return func(s *corednsServer) {
		s.zones = newZoneFileWriter(s.config, now)
	}
}

func NewCorednsServer(
	config domain.Config, store *RecordStore, reloader *ReloadCoordinator, metrics *Metrics, log *zap.Logger,
	opts ...CorednsOption,
) domain.DNSServer {
	s := &corednsServer{
		config:   config,
		store:    store,
		zones:    newZoneFileWriter(config, time.Now),
		reloader: reloader,
		metrics:  metrics,
		log:      log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UpdateConfigs regenerates every zone file and the Corefile from the
// current record set. A missing template aborts the pass; a record whose
// reverse zone can not be derived is only skipped.
func (s *corednsServer) UpdateConfigs(ctx context.Context) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var forward, reverse, count, skipped int
	defer func() {
		s.metrics.ObserveSynthesis(err, forward, reverse, count, skipped)
	}()

	err = os.MkdirAll(s.config.ZonesFolderPath(), 0755)
	if err != nil {
		return errors.Wrap(err, "create zones directory")
	}

	prefix, err := s.loadTemplate()
	if err != nil {
		return err
	}

	records, err := s.store.List(ctx)
	if err != nil {
		return err
	}
	count = len(records)
	s.log.Info("processing dns records", zap.Int("records", count))

	zones, failures := domain.GroupZones(records)
	for _, failure := range failures {
		s.log.Warn("skipping zone derivation", zap.Error(failure))
	}
	skipped = len(failures)

	previous := s.previousManagedZones()

	managed := &strings.Builder{}
	managed.WriteString(ManagedMarker + "\n")
	written := map[string]bool{}

	for _, zone := range zones.Forward {
		filePath, err := s.zones.WriteForward(zone)
		if err != nil {
			return err
		}
		written[filePath] = true
		writeStanza(managed, zone.Name, filePath)
		s.log.Debug("created forward zone", zap.String("zone", zone.Name), zap.Int("records", len(zone.Records)))
	}

	for _, zone := range zones.Reverse {
		filePath, err := s.zones.WriteReverse(zone)
		if err != nil {
			return err
		}
		written[filePath] = true
		writeStanza(managed, zone.Name, filePath)
		s.log.Debug("created reverse zone", zap.String("zone", zone.Name), zap.Int("records", len(zone.Entries)))
	}

	err = atomicfile.Write(s.config.CorefilePath(), []byte(prefix+managed.String()), 0644)
	if err != nil {
		return errors.Wrap(err, "write corefile")
	}

	s.removeStaleZones(previous, written, prefix)

	forward, reverse = len(zones.Forward), len(zones.Reverse)
	s.log.Info("corefile updated",
		zap.String("path", s.config.CorefilePath()),
		zap.Int("forward_zones", forward),
		zap.Int("reverse_zones", reverse))
	return nil
}

func (s *corednsServer) Reload(ctx context.Context) error {
	s.reloader.Apply(ctx)
	return nil
}

func (s *corednsServer) UpdateAndReload(ctx context.Context) error {
	err := s.UpdateConfigs(ctx)
	if err != nil {
		return err
	}
	return s.Reload(ctx)
}

// Shutdown waits for a running synthesis pass to finish.
func (s *corednsServer) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.mu.Lock()
		s.mu.Unlock()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// loadTemplate returns the template text preceding the managed marker. A
// managed section already present in the template is dropped.
func (s *corednsServer) loadTemplate() (string, error) {
	content, err := os.ReadFile(s.config.TemplatePath())
	if os.IsNotExist(err) {
		return "", errors.Wrapf(domain.ErrConfigurationMissing, "template %v", s.config.TemplatePath())
	}
	if err != nil {
		return "", errors.Wrapf(err, "read template %v", s.config.TemplatePath())
	}
	prefix, _, _ := strings.Cut(string(content), ManagedMarker)
	return prefix, nil
}

// previousManagedZones returns the zone files named by the managed section of
// the Corefile currently on disk.
func (s *corednsServer) previousManagedZones() []string {
	content, err := os.ReadFile(s.config.CorefilePath())
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn("read previous corefile", zap.Error(err))
		}
		return nil
	}
	_, managed, found := strings.Cut(string(content), ManagedMarker)
	if !found {
		return nil
	}
	return stanzaFiles(managed)
}

// removeStaleZones deletes zone files written by an earlier pass for zones
// that no longer have records. Files referenced by the template and files
// outside the zones directory are never touched.
func (s *corednsServer) removeStaleZones(previous []string, written map[string]bool, prefix string) {
	referenced := map[string]bool{}
	for _, filePath := range stanzaFiles(prefix) {
		referenced[filePath] = true
	}
	zonesDir := filepath.Clean(s.config.ZonesFolderPath())

	for _, filePath := range previous {
		if written[filePath] || referenced[filePath] {
			continue
		}
		if filepath.Dir(filePath) != zonesDir || filepath.Ext(filePath) != ZoneFileExtension {
			continue
		}
		err := os.Remove(filePath)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			s.log.Warn("remove stale zone file", zap.String("path", filePath), zap.Error(err))
			continue
		}
		s.log.Info("removed stale zone file", zap.String("path", filePath))
	}
}

// stanzaFiles returns the cleaned path of every file directive in a Corefile
// fragment.
func stanzaFiles(corefile string) []string {
	var files []string
	for _, line := range strings.Split(corefile, "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 2 && fields[0] == "file" {
			files = append(files, filepath.Clean(fields[1]))
		}
	}
	return files
}

func writeStanza(b *strings.Builder, zone string, filePath string) {
	fmt.Fprintf(b, "\n%v:53 {\n    file %v\n    reload\n}\n", zone, filePath)
}

func writeFile(filePath, fileContents string) error {
	err := os.MkdirAll(filepath.Dir(filePath), 0755)
	if err != nil {
		return err
	}
	err = os.WriteFile(filePath, []byte(fileContents), 0644)
	if err != nil {
		return err
	}
	return nil
}
