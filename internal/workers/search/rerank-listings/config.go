// internal/workers/search/rerank-listings/config.go
package reranklistings

import "time"

type Config struct {
	Timeout      time.Duration
	FlagKey      string
	FlagTimeout  time.Duration
	DefaultLimit int
}

func LoadConfig() *Config {
	return &Config{
		Timeout:      5 * time.Second,
		FlagKey:      "search_reranker",
		FlagTimeout:  200 * time.Millisecond,
		DefaultLimit: 20,
	}
}
