package log

import (
	"os"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewDefaultLevel(t *testing.T) {
	os.Unsetenv(debugEnvVar)
	l := New()
	if l.GetLevel() != logrus.InfoLevel {
		t.Errorf("default level = %v, want Info", l.GetLevel())
	}
}

func TestNewDebugEnv(t *testing.T) {
	os.Setenv(debugEnvVar, "1")
	defer os.Unsetenv(debugEnvVar)
	l := New()
	if l.GetLevel() != logrus.DebugLevel {
		t.Errorf("level with %s set = %v, want Debug", debugEnvVar, l.GetLevel())
	}
}
