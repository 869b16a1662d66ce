package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

var logger *logrus.Logger

func init() {
	logger = logrus.New()
	logger.SetOutput(os.Stdout)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

// Init sets the process-wide log level. An empty level keeps the default (info).
func Init(level string) (err error) {
	if level == "" {
		return nil
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return
	}
	logger.SetLevel(lvl)
	return nil
}

// SetOutput redirects every sublogger, mostly for tests.
func SetOutput(w io.Writer) {
	logger.SetOutput(w)
}

func NewSublogger(tag string) *logrus.Entry {
	return logger.WithFields(logrus.Fields{"module": "escrow." + tag})
}
