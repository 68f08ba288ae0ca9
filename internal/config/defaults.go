package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8090
	}
	if cfg.Storage.ScrollDBPath == "" {
		cfg.Storage.ScrollDBPath = "/usr/local/var/shiboru/data/scroll.db"
	}
	if cfg.Search.DefaultSize == 0 {
		cfg.Search.DefaultSize = 10
	}
	if cfg.Search.MaxSize == 0 {
		cfg.Search.MaxSize = 1000
	}
	if cfg.Search.SegmentSize == 0 {
		cfg.Search.SegmentSize = 1024
	}
	if cfg.Search.ScrollTTLMinutes == 0 {
		cfg.Search.ScrollTTLMinutes = 5
	}
}
