package adapter

import (
	"github.com/helix-host/helix/internal/hlog"
)

// AuditAdapter records the supervisor's lifecycle operations for
// external compliance/audit consumption.
type AuditAdapter interface {
	LogEvent(op, module string, err error)
}

// LogAuditAdapter writes each event through hlog, at Warn for failures
// and Info for successes. No binary in this repository wires it in; the
// supervisor logs its own operations through internal/hlog directly.
type LogAuditAdapter struct {
	log *hlog.Logger
}

// NewLogAuditAdapter builds an AuditAdapter backed by the given logger,
// or a package-default logger if nil.
func NewLogAuditAdapter(log *hlog.Logger) *LogAuditAdapter {
	if log == nil {
		log = hlog.New("audit", nil)
	}
	return &LogAuditAdapter{log: log}
}

// LogEvent records that op was attempted against module, with err set
// when the operation failed.
func (a *LogAuditAdapter) LogEvent(op, module string, err error) {
	if err != nil {
		a.log.Warnf("audit: %s %s failed: %v", op, module, err)
		return
	}
	a.log.Infof("audit: %s %s ok", op, module)
}
