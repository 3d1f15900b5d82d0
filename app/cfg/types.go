package cfg

type Cfg struct {
	// Persistence
	DataDir string

	// Application
	ChannelsDir       string
	Port              string
	WorkerCount       int
	SchedulerInterval int
	PollInterval      int
	APIAccessKey      string

	// Extraction worker
	ExtractorURL     string
	ExtractorTimeout int

	// Pipeline defaults
	MaxAttempts     int
	DiscoveryLimit  int
	StrictFiltering bool

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}
