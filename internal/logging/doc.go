// Package logging configures slog for simstream with a level per module.
//
// Each subsystem asks for its own logger once and keeps it:
//
//	logger := logging.GetLogger("capture").With("udid", udid)
//	logger.Info("Backend active", "mode", mode)
//
// The module names in use are capture, session, mjpeg, api, process, simctl
// and metrics. A module without an override logs at the global level.
//
// Initialize picks the sinks once at startup. Records go to stdout when it
// is a terminal, pipe or file, to journald when it is listening, and always
// to an in-memory ring buffer that backs the /api/logs endpoints. A
// LogCallback registered with SetLogCallback sees every buffered entry; the
// server uses it to publish entries on the event bus.
//
// Levels live in the [logging] table of simstream.toml. Keys other than
// level and format name a module:
//
//	[logging]
//	level = "info"
//	format = "text"
//	capture = "debug"
//	api = "warn"
//
// ApplyLevels changes levels of loggers that already exist, which is how the
// config watcher applies edits without a restart.
//
// Journal entries carry SYSLOG_IDENTIFIER=simstream and one field per
// attribute:
//
//	journalctl -t simstream MODULE=session
//	journalctl -t simstream UDID=6A1F6F0B-9C1E-4D8B-9A57-4E3E4C9B1D2A -f
package logging
