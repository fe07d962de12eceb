package log

// MultiLogger fans events out to several loggers, e.g. a SlogAdapter for
// the console and a FileLogger for the capture file.
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger creates a MultiLogger. Nil loggers are skipped.
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	m := &MultiLogger{}
	for _, l := range loggers {
		if l != nil {
			m.loggers = append(m.loggers, l)
		}
	}
	return m
}

// Log sends the event to all configured loggers.
func (m *MultiLogger) Log(event Event) {
	for _, l := range m.loggers {
		l.Log(event)
	}
}

// TestCaseLogger stamps every event with a test case ID before passing it on.
type TestCaseLogger struct {
	next       Logger
	testCaseID string
}

// WithTestCase returns a logger that tags events with id.
func WithTestCase(next Logger, id string) *TestCaseLogger {
	return &TestCaseLogger{next: OrNoop(next), testCaseID: id}
}

// Log tags the event and forwards it.
func (t *TestCaseLogger) Log(event Event) {
	if event.TestCaseID == "" {
		event.TestCaseID = t.testCaseID
	}
	t.next.Log(event)
}

var (
	_ Logger = (*MultiLogger)(nil)
	_ Logger = (*TestCaseLogger)(nil)
)
