package pebble

import (
	"fmt"

	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("db")

// pebbleLogger bridges pebble's internal logging into the dragonboat logger of the db package
type pebbleLogger struct {
	dir string
}

func (l pebbleLogger) Infof(format string, args ...interface{}) {
	log.Debugf("pebble[%s]: %s", l.dir, fmt.Sprintf(format, args...))
}

func (l pebbleLogger) Errorf(format string, args ...interface{}) {
	log.Errorf("pebble[%s]: %s", l.dir, fmt.Sprintf(format, args...))
}

func (l pebbleLogger) Fatalf(format string, args ...interface{}) {
	log.Panicf("pebble[%s]: %s", l.dir, fmt.Sprintf(format, args...))
}
