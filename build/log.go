// Package build wires up the subsystem logging every other package in
// this repository pulls its *btclog.Logger from, mirroring the
// teacher's backendLog/UseLogger convention (lnd.go, rpcserver.go):
// one rotating backend, one tagged sub-logger per subsystem.
package build

import (
	"os"

	"github.com/btcsuite/btclog"
	"github.com/jrick/logrotate"
)

// Subsystem tags. Every package that logs registers its logger under one
// of these via NewSubLogger; SetLogLevels applies one level to all of
// them.
const (
	SubsystemRateLimit   = "RTLM"
	SubsystemRequestLock = "RQLK"
	SubsystemICRC112     = "ICRC"
	SubsystemValidator   = "VALD"
	SubsystemExecutor    = "EXEC"
	SubsystemAssembler   = "ASBM"
	SubsystemStateMach   = "STMC"
	SubsystemAccountant  = "ACCT"
	SubsystemSupervisor  = "SUPV"
	SubsystemStorage     = "STOR"
	SubsystemService     = "SVCE"
	SubsystemAPI         = "APIS"
)

var (
	backendLog *btclog.Backend
	subLoggers = make(map[string]btclog.Logger)
	rotator    *logrotate.Rotator
)

// InitLogRotator opens logFile for append, attaches a rotate-at-maxSizeMB
// writer (logrotate.NewRotator), and points the shared backend at it. It
// must be called once, before NewSubLogger, during process startup — the
// same order the teacher's loadConfig enforces before any subsystem
// logger is handed out.
func InitLogRotator(logFile string, maxSizeMB int) error {
	r, err := logrotate.NewRotator(logFile, maxSizeMB)
	if err != nil {
		return err
	}
	rotator = r
	backendLog = btclog.NewBackend(logWriter{rotator})
	return nil
}

// Flush closes the log rotator, the same shutdown step the teacher's
// lndMain runs via `defer backendLog.Flush()`. A no-op if InitLogRotator
// was never called.
func Flush() {
	if rotator != nil {
		rotator.Close()
	}
}

// SetLogLevel parses level (e.g. "debug", "info") and applies it to
// every subsystem logger created so far, falling back to InfoLevel on
// an unrecognized string.
func SetLogLevel(level string) {
	l, ok := btclog.LevelFromString(level)
	if !ok {
		l = btclog.LevelInfo
	}
	SetLogLevels(l)
}

// logWriter adapts logrotate.Rotator (an io.WriteCloser) to the
// io.Writer btclog.NewBackend wants, while also mirroring to stdout —
// the same dual-sink behavior lnd's logWriter type provides.
type logWriter struct {
	rotator interface {
		Write(p []byte) (int, error)
	}
}

func (w logWriter) Write(p []byte) (int, error) {
	os.Stdout.Write(p)
	return w.rotator.Write(p)
}

// NewSubLogger returns the tagged logger for subsystem, creating it on
// first use against the shared backend (or a stdout-only backend if
// InitLogRotator was never called, e.g. in tests).
func NewSubLogger(subsystem string) btclog.Logger {
	if l, ok := subLoggers[subsystem]; ok {
		return l
	}
	if backendLog == nil {
		backendLog = btclog.NewBackend(logWriter{nopRotator{}})
	}
	l := backendLog.Logger(subsystem)
	subLoggers[subsystem] = l
	return l
}

// SetLogLevels applies level to every subsystem logger created so far.
func SetLogLevels(level btclog.Level) {
	for _, l := range subLoggers {
		l.SetLevel(level)
	}
}

type nopRotator struct{}

func (nopRotator) Write(p []byte) (int, error) { return len(p), nil }
