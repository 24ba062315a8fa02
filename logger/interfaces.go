package logger

// Logger is what the cache, the updater and the HTTP layer log through.
// Feed URLs often embed credentials, so implementations redact them when
// safe logs are enabled.
type Logger interface {
	// Log and Logf report progress of ingestion passes and boot steps.
	Log(msg string)
	Logf(format string, v ...any)

	// Warn and Warnf report recoverable problems such as skipped records.
	Warn(msg string)
	Warnf(format string, v ...any)

	// Debug output is dropped unless the debug level is configured.
	Debug(msg string)
	Debugf(format string, v ...any)

	Error(msg string)
	Errorf(format string, v ...any)

	// Fatal and Fatalf exit the process after logging.
	Fatal(msg string)
	Fatalf(format string, v ...any)
}

var _ Logger = (*DefaultLogger)(nil)
