package bridge

import (
	"fmt"
	"runtime/debug"

	"github.com/op/go-logging"
)

// RecoverToLog runs f, logging (with a stack trace) and recovering any
// panic it raises. The recovered value, or nil if f returned normally, is
// returned so a caller that needs to act on the panic — not just swallow
// it — can.
func RecoverToLog(f func(), log *logging.Logger) (recovered interface{}) {
	defer func() {
		if x := recover(); x != nil {
			recovered = x
			if log != nil {
				log.Error(fmt.Sprintf("run time panic: %v", x))
				log.Error(string(debug.Stack()))
			}
		}
	}()
	f()
	return
}
