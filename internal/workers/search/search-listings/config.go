// internal/workers/search/search-listings/config.go
package searchlistings

import "time"

type Config struct {
	Timeout     time.Duration
	Index       string
	DefaultSize int
}

func LoadConfig() *Config {
	return &Config{
		Timeout:     10 * time.Second,
		Index:       "businesses",
		DefaultSize: 50,
	}
}
