package answerfarmquery

import "time"

type Config struct {
	Timeout time.Duration
	// RecordSessions appends answers to the session history when a sessionId is supplied.
	RecordSessions bool
}

func LoadConfig() *Config {
	return &Config{
		Timeout:        45 * time.Second,
		RecordSessions: true,
	}
}
