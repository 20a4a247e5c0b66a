/* SPDX-License-Identifier: MIT
 *
 * Adapted from WireGuard LLC's flags/flags.go: same pflag-based parse
 * shape, against this host's own option set (listen port, liveness
 * window, tick interval, log level) instead of an MTU/interface-name pair.
 */

package flags

import (
	"fmt"
	"os"
	"time"

	"github.com/pvct/transport/transport"
	"github.com/spf13/pflag"
)

func Parse(opts *Options) error {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags]\n", os.Args[0])
		pflag.PrintDefaults()
	}

	var port uint16
	var livenessSeconds, tickMillis int

	pflag.Uint16Var(&port, "listen-port", 0, "UDP port to listen on (0 picks an ephemeral port)")
	pflag.IntVar(&livenessSeconds, "liveness-seconds", int(transport.DefaultLivenessWindow/time.Second), "Seconds of silence before a peer is evicted")
	pflag.IntVar(&tickMillis, "tick-millis", int(transport.DefaultTickInterval/time.Millisecond), "Milliseconds between resend/liveness ticks")
	pflag.StringVar(&opts.LogLevel, "log-level", "info", "Log level: silent, error, info, or debug")
	pflag.BoolVar(&opts.Debug, "debug", false, "Shorthand for --log-level=debug")
	pflag.BoolVarP(&opts.ShowVersion, "version", "v", false, "Print the version number and exit")

	pflag.Parse()

	if opts.ShowVersion {
		return nil
	}

	opts.ListenPort = port
	opts.LivenessWindow = time.Duration(livenessSeconds) * time.Second
	opts.TickInterval = time.Duration(tickMillis) * time.Millisecond
	if opts.Debug {
		opts.LogLevel = "debug"
	}
	return nil
}
