package kvstore

import "github.com/couchbase/scanmerge/secondary/logging"

// badgerLogger routes badger's own log lines to the system logger. Badger
// info lines are chatty and go to verbose.
type badgerLogger struct {
	log logging.Logger
}

func (b *badgerLogger) Errorf(format string, args ...interface{}) {
	b.log.Errorf(format, args...)
}

func (b *badgerLogger) Warningf(format string, args ...interface{}) {
	b.log.Warnf(format, args...)
}

func (b *badgerLogger) Infof(format string, args ...interface{}) {
	b.log.Verbosef(format, args...)
}

func (b *badgerLogger) Debugf(format string, args ...interface{}) {
	b.log.Debugf(format, args...)
}
