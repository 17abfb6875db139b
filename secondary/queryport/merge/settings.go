package merge

import (
	"time"

	"github.com/couchbase/scanmerge/secondary/common"
)

// Settings holds the tunables of a merge, read from the
// "queryport.merge." section of a Config.
type Settings struct {
	QueueSize   int
	PollTimeout time.Duration
}

func NewSettings(config common.Config) Settings {
	if config == nil {
		config = common.SystemConfig
	}
	config = config.SectionConfig("queryport.merge.", true)

	s := Settings{
		QueueSize:   256,
		PollTimeout: 350 * time.Millisecond,
	}
	if cv, ok := config["scan.queue_size"]; ok && cv.Int() > 0 {
		s.QueueSize = cv.Int()
	}
	if cv, ok := config["scan.poll_timeout"]; ok && cv.Int() > 0 {
		s.PollTimeout = cv.Duration()
	}
	return s
}
