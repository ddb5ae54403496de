// Package testlogger builds loggers scoped to a running test, mirroring
// drand's common/testlogger package.
package testlogger

import (
	"os"
	"testing"

	"github.com/drand/syncdkg/internal/log"
)

// Level returns DebugLevel when SYNCDKG_TEST_LOGS=DEBUG is set, InfoLevel otherwise.
func Level(t testing.TB) int {
	t.Helper()
	if v, ok := os.LookupEnv("SYNCDKG_TEST_LOGS"); ok && v == "DEBUG" {
		t.Log("enabling debug logs")
		return log.DebugLevel
	}
	return log.InfoLevel
}

// New returns a logger named after the running test.
func New(t testing.TB) log.Logger {
	t.Helper()
	return log.New(nil, Level(t), false).With("test", t.Name())
}
