package flags

import "time"

// Options are the host's command-line-configurable knobs.
type Options struct {
	ListenPort     uint16
	LivenessWindow time.Duration
	TickInterval   time.Duration
	LogLevel       string
	Debug          bool
	ShowVersion    bool
}

func NewOptions() *Options {
	return &Options{}
}
