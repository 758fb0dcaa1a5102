/*
Package log provides structured logging for the queue core using zerolog.

A single global Logger is initialized once via Init and accessed from
every package without being passed around explicitly. Context loggers
(WithComponent, WithQueue, WithKey) attach fields scoped to a subsystem,
a queue, or a single key so that log lines from a busy queue can be
filtered without threading a logger through every call.

# Usage

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true, Output: os.Stdout})
	log.Info("queue core starting")

	qlog := log.WithQueue("orders")
	qlog.Info().Uint64("sequence", seq).Msg("event published")

	klog := log.WithKey("k1")
	klog.Error().Err(err).Msg("replay failed")

# Log levels

Debug is for local troubleshooting only; Info is the default production
level; Warn and Error cover unexpected conditions and failed operations
respectively. Fatal logs then calls os.Exit(1) and should be reserved for
startup failures the process cannot run without (for example, failing to
open the persistent store).

# Output

JSONOutput selects machine-parseable JSON lines (production); the
console writer (development) renders a colorized, human-readable line
per entry. Never log event payload bodies directly — they are opaque to
the core and may contain arbitrary caller data.
*/
package log
