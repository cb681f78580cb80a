// internal/workers/moderation/moderate-content/config.go
package moderatecontent

import (
	"time"

	"suburbmates-workers/internal/moderation"
)

type Config struct {
	Timeout       time.Duration
	BaseLists     moderation.Lists
	TermsCacheKey string
	TermsTTL      time.Duration
	AdminEmail    string
	FromEmail     string
	TopicARN      string
	NotifyOnFlag  bool
}

func LoadConfig() *Config {
	return &Config{
		Timeout:       10 * time.Second,
		BaseLists:     moderation.DefaultLists(),
		TermsCacheKey: "moderation_terms",
		TermsTTL:      5 * time.Minute,
		NotifyOnFlag:  true,
	}
}
