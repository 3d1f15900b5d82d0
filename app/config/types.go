package config

// ChannelConfig represents one channel subscription seed file
type ChannelConfig struct {
	Channel  ChannelInfo     `yaml:"channel"`
	Settings ChannelSettings `yaml:"settings"`
}

// ChannelInfo identifies the channel source
type ChannelInfo struct {
	URL  string `yaml:"url"`
	Name string `yaml:"name"`
}

// ChannelSettings contains polling policy for the channel
type ChannelSettings struct {
	Enabled            bool `yaml:"enabled"`
	Priority           int  `yaml:"priority"`
	CheckIntervalHours int  `yaml:"check_interval_hours"`
}
