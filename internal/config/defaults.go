package config

// Default values mirroring the shipped dashboard installation layout.
const (
	DefaultHTTPPort        = 5000
	DefaultListSeconds     = 15
	DefaultDownloadSeconds = 600
	DefaultServiceSeconds  = 30

	DefaultBackupsPerPlatform = 40
	DefaultTaskCap            = 64
	DefaultTaskLogLines       = 2000
	DefaultHistoryRows        = 500
)

// applyDefaults fills zero values after unmarshalling.
func (c *Config) applyDefaults() {
	if c.DefaultPlatform == "" {
		if _, ok := c.Platforms["ps2"]; ok {
			c.DefaultPlatform = "ps2"
		} else {
			for _, name := range c.PlatformNames() {
				c.DefaultPlatform = name
				break
			}
		}
	}
	if c.Remote.Branch == "" {
		c.Remote.Branch = "main"
	}
	if len(c.Services) == 0 {
		c.Services = []string{"lightgun.service", "lightgun-monitor.service"}
	}
	if c.OwnerAccount == "" {
		c.OwnerAccount = "sinden"
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = DefaultHTTPPort
	}
	if c.Timeouts.ListSeconds == 0 {
		c.Timeouts.ListSeconds = DefaultListSeconds
	}
	if c.Timeouts.DownloadSeconds == 0 {
		c.Timeouts.DownloadSeconds = DefaultDownloadSeconds
	}
	if c.Timeouts.ServiceSeconds == 0 {
		c.Timeouts.ServiceSeconds = DefaultServiceSeconds
	}
	if c.Retention.BackupsPerPlatform == 0 {
		c.Retention.BackupsPerPlatform = DefaultBackupsPerPlatform
	}
	if c.Retention.TaskCap == 0 {
		c.Retention.TaskCap = DefaultTaskCap
	}
	if c.Retention.TaskLogLines == 0 {
		c.Retention.TaskLogLines = DefaultTaskLogLines
	}
	if c.Retention.HistoryRows == 0 {
		c.Retention.HistoryRows = DefaultHistoryRows
	}

	// Per-variant remote directories default to the variant name upper-cased
	// (PS1/PS2 in the release repository).
	for name, p := range c.Platforms {
		if p.RemoteDir == "" {
			p.RemoteDir = upperASCII(name)
			c.Platforms[name] = p
		}
	}
}

func upperASCII(s string) string {
	b := []byte(s)
	for i, ch := range b {
		if ch >= 'a' && ch <= 'z' {
			b[i] = ch - 'a' + 'A'
		}
	}
	return string(b)
}
