package cfg

type Cfg struct {
	// Storage
	DBPath string

	// Application configuration
	FeedsDir          string
	Port              string
	BaseUrl           string
	WorkerCount       int
	SchedulerInterval int
	APIAccessKey      string

	// Outbound fetching
	UserAgent        string
	FetchTimeout     int // seconds
	FetchConcurrency int
	FetchRateLimit   float64 // requests per second, 0 = unlimited

	// Application metadata
	Timezone string
	Debug    bool
	Version  string
}
