package domain

// Config is the set of paths and process settings shared by the components.
type Config interface {
	Listen() string

	StorageDriver() string
	StoragePath() string
	RedisAddress() string
	RedisKey() string

	CorefilePath() string
	TemplatePath() string
	ZonesFolderPath() string
	ZoneFilePath(zone string) string
	ServerBinary() string
	ServerPID() string

	WatchTemplate() bool
	LogLevel() string
}
