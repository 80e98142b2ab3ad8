package logging

import (
	"os"

	log "github.com/sirupsen/logrus"
)

// Init configures the process-wide logrus logger: JSON lines on stdout,
// field names compatible with the log shipper.
func Init(level string) {
	log.SetOutput(os.Stdout)
	log.SetFormatter(&log.JSONFormatter{
		FieldMap: log.FieldMap{
			log.FieldKeyTime: "@timestamp",
			log.FieldKeyMsg:  "message",
		},
	})
	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
}
