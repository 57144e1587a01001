/*
Package log provides structured logging for conduit using zerolog.

A single global Logger is configured once at start-up by Init and shared by
every package. Components derive child loggers so each line carries the
emitting subsystem and, where relevant, the entity kind.

# Usage

Initializing the Logger:

	log.Init(log.Config{
		Level:      log.ParseLevel(cfg.Log.Level),
		JSONOutput: cfg.Log.JSON,
		Output:     os.Stderr,
	})

Component Loggers:

	logger := log.WithComponent("reconciler")
	logger.Info().Str("trigger", "focus").Msg("Refresh cycle started")

	kindLog := log.WithKind(logger, types.KindRoute)
	kindLog.Warn().Err(err).Msg("Fetch failed, keeping cached routes")

# Output

Console output (default) is meant for operators running the CLI:

	10:30AM INF Refresh cycle completed component=reconciler cycle=4 duration=83ms

JSON output (--log-json) is meant for log shippers:

	{"level":"info","component":"reconciler","cycle":4,"time":"...","message":"Refresh cycle completed"}

# Levels

  - debug: per-record decisions (dropped records, dangling references)
  - info: cycle boundaries, writes, server lifecycle
  - warn: fetch failures, persistence failures; neither stops a cycle
  - error: failures surfaced to the CLI user
*/
package log
