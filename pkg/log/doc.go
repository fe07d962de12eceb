// Package log records protocol events from the simulated closure and the
// certification harness.
//
// It sits beside the slog diagnostics: slog says what a component is doing,
// a protocol capture is the exact trace of frames, decoded requests and
// responses, injected app pipe messages and state transitions, each tagged
// with the test case that was running.
//
// Components take a Logger. NoopLogger discards, SlogAdapter prints to a
// slog handler, FileLogger appends CBOR to a .clog file and MultiLogger fans
// out to several:
//
//	file, err := log.NewFileLogger("run.clog")
//	if err != nil {
//		return err
//	}
//	defer file.Close()
//	cfg.ProtocolLogger = log.NewMultiLogger(file, log.NewSlogAdapter(slog.Default()))
//
// NewReader and NewFilteredReader stream a capture back; cmd/clop-log builds its
// view, filter, export and stats commands on them.
package log
