package cfg

import (
	"time"

	"github.com/lysyi3m/rss-relay/app/logger"
)

type Cfg struct {
	// Instance configuration
	ConfigPath string
	DBPath     string

	// HTTP
	Port               string
	ConcurrentRequests int
	UserAgent          string
	FallbackUserAgents []string
	HTTPTimeout        time.Duration
	PostMinInterval    time.Duration
	APIAccessKey       string

	// Application metadata
	Timezone string
	Version  string

	Log logger.Config
}
