package reactor

//Logger receives alternating key/value pairs. Keys used by this module are
//"level" (debug, info, error), "msg" and context keys like "fd", "peer", "err".
type Logger interface {
	Log(keyvals ...interface{}) error
}

type nopLogger struct {
}

func (n *nopLogger) Log(keyvals ...interface{}) error {
	return nil
}
