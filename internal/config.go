package internal

import (
	"path/filepath"

	"github.com/anantadwi13/coredns-record-manager/internal/domain"
	"github.com/spf13/viper"
)

const (
	KeyListen         = "listen"
	KeyStorageDriver  = "storage.driver"
	KeyStoragePath    = "storage.path"
	KeyRedisAddress   = "redis.address"
	KeyRedisKey       = "redis.key"
	KeyCorefile       = "coredns.corefile"
	KeyTemplate       = "coredns.template"
	KeyZonesDir       = "coredns.zones_dir"
	KeyServerBinary   = "coredns.binary"
	KeyServerPID      = "coredns.pid"
	KeyWatchTemplate  = "watch_template"
	KeyLogLevel       = "log.level"
	EnvServerPID      = "COREDNS_PID"
	ZoneFileExtension = ".zone"
)

type config struct {
	listen        string
	storageDriver string
	storagePath   string
	redisAddress  string
	redisKey      string
	corefilePath  string
	templatePath  string
	zonesPath     string
	serverBinary  string
	serverPID     string
	watchTemplate bool
	logLevel      string
}

// SetDefaults registers the default value of every configuration key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyListen, ":8000")
	v.SetDefault(KeyStorageDriver, "json")
	v.SetDefault(KeyStoragePath, "/data/records.json")
	v.SetDefault(KeyRedisAddress, "127.0.0.1:6379")
	v.SetDefault(KeyRedisKey, "coredns:records")
	v.SetDefault(KeyCorefile, "/etc/coredns/Corefile")
	v.SetDefault(KeyTemplate, "/app/Corefile.template")
	v.SetDefault(KeyZonesDir, "/etc/coredns/zones")
	v.SetDefault(KeyServerBinary, "coredns")
	v.SetDefault(KeyServerPID, "")
	v.SetDefault(KeyWatchTemplate, true)
	v.SetDefault(KeyLogLevel, "info")
	v.BindEnv(KeyServerPID, EnvServerPID)
}

func NewConfig(v *viper.Viper) domain.Config {
	conf := &config{
		listen:        v.GetString(KeyListen),
		storageDriver: v.GetString(KeyStorageDriver),
		storagePath:   path(v.GetString(KeyStoragePath)),
		redisAddress:  v.GetString(KeyRedisAddress),
		redisKey:      v.GetString(KeyRedisKey),
		corefilePath:  path(v.GetString(KeyCorefile)),
		templatePath:  path(v.GetString(KeyTemplate)),
		zonesPath:     path(v.GetString(KeyZonesDir)),
		serverBinary:  v.GetString(KeyServerBinary),
		serverPID:     v.GetString(KeyServerPID),
		watchTemplate: v.GetBool(KeyWatchTemplate),
		logLevel:      v.GetString(KeyLogLevel),
	}
	return conf
}

func (c *config) Listen() string {
	return c.listen
}

func (c *config) StorageDriver() string {
	return c.storageDriver
}

func (c *config) StoragePath() string {
	return c.storagePath
}

func (c *config) RedisAddress() string {
	return c.redisAddress
}

func (c *config) RedisKey() string {
	return c.redisKey
}

func (c *config) CorefilePath() string {
	return c.corefilePath
}

func (c *config) TemplatePath() string {
	return c.templatePath
}

func (c *config) ZonesFolderPath() string {
	return c.zonesPath
}

func (c *config) ZoneFilePath(zone string) string {
	return path(c.zonesPath, zone+ZoneFileExtension)
}

func (c *config) ServerBinary() string {
	return c.serverBinary
}

func (c *config) ServerPID() string {
	return c.serverPID
}

func (c *config) WatchTemplate() bool {
	return c.watchTemplate
}

func (c *config) LogLevel() string {
	return c.logLevel
}

func path(paths ...string) string {
	cleanPath := ""
	if len(paths) > 0 {
		cleanPath = filepath.Join(paths...)
	}
	return filepath.Clean(cleanPath)
}
