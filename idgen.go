package bridge

import (
	"crypto/rand"

	"github.com/keybase/saltpack/encoding/basex"
	uuid "github.com/satori/go.uuid"
)

// NewSpoolEntryID returns a random UUID4, base62-encoded. MQTTTransport
// tags its queue and spool entries with NewCorrelationToken instead.
func NewSpoolEntryID() string {
	return basex.Base62StdEncoding.EncodeToString(uuid.NewV4().Bytes())
}

// NewProcessID identifies a spawned host process for the process table,
// independent of the OS pid so stale collect_output calls after a restart
// fail closed instead of addressing a reused pid.
func NewProcessID() string {
	return uuid.NewV4().String()
}

// InvalidIDSentinel is the process ID published on sh/response when the
// process concurrency semaphore refuses a spawn before a process table
// entry ever exists: a caller polling this ID gets unknown-pid instead of
// silently waiting on an ID that was never assigned.
const InvalidIDSentinel = "00000000-0000-0000-0000-000000000000"

// NewMailboxMessageID returns a random UUID4 string for tagging a mailbox
// message. The mailbox component and the router do not call it.
func NewMailboxMessageID() string {
	return uuid.NewV4().String()
}

// randBase62 encodes n cryptographically random bytes as base62, used for
// short correlation tokens that need to be safe in an MQTT topic segment.
func randBase62(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return basex.Base62StdEncoding.EncodeToString(buf), nil
}

// NewCorrelationToken generates the request-side correlation data the
// JSON envelope workaround carries in place of real MQTT v5
// CorrelationData, since the vendored client is v3.1.1-only.
func NewCorrelationToken() (string, error) {
	return randBase62(16)
}
