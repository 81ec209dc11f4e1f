package api

// Audit mirrors adapter.AuditAdapter's shape at the public surface: a
// callback taking a lifecycle operation, the module it targeted, and its
// error. SupervisedPlugin does not call an Audit.
type Audit interface {
	LogEvent(op, module string, err error)
}
