// internal/workers/listings/review-listing/config.go
package reviewlisting

import "time"

type Config struct {
	Timeout     time.Duration
	Index       string
	FromEmail   string
	NotifyOwner bool
}

func LoadConfig() *Config {
	return &Config{
		Timeout:     15 * time.Second,
		Index:       "businesses",
		NotifyOwner: true,
	}
}
