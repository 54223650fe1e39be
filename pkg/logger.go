package dsp

type Logger interface {
	Info(message string, module string)
	Error(string)
}

// silentLogger is used until SetLogger is called, so library code can log
// unconditionally.
type silentLogger struct{}

func (silentLogger) Info(string, string) {}
func (silentLogger) Error(string)        {}

var logger Logger = silentLogger{}

func SetLogger(l Logger) {
	logger = l
}
