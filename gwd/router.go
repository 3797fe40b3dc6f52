package gwd

import (
	"strings"

	"github.com/op/go-logging"
)

// Topic is the router's fixed classification of an inbound MQTT topic,
// independent of the exact path segments after the prefix.
type Topic string

const (
	TopicDigital   Topic = "DIGITAL"
	TopicAnalog    Topic = "ANALOG"
	TopicFile      Topic = "FILE"
	TopicDatastore Topic = "DATASTORE"
	TopicMailbox   Topic = "MAILBOX"
	TopicConsole   Topic = "CONSOLE"
	TopicSystem    Topic = "SYSTEM"
	TopicShell     Topic = "SHELL"
)

// Handler is a from-MQTT entry point a service component registers under
// one or more Topic kinds. It returns true if it handled the message;
// the router tries the next registered handler for that Topic only when
// false is returned.
type Handler interface {
	HandleMQTT(topic string, payload []byte, meta ResponseMeta) bool
}

// TopicAuthorization is consulted before any handler runs. Default
// implementation allows every tracked action; specific actions can be
// denied by name (e.g. "file_write", "datastore_put", "console_input").
type TopicAuthorization interface {
	Allows(topic string, action string) bool
}

// DefaultAuthorization allows everything except the actions explicitly
// listed in Denied.
type DefaultAuthorization struct {
	Denied map[string]bool
}

func (a DefaultAuthorization) Allows(_ string, action string) bool {
	if a.Denied == nil {
		return true
	}
	return !a.Denied[action]
}

// Router tokenizes an inbound topic (already stripped of the configured
// prefix by the transport), classifies it into a Topic kind, checks
// authorization, and dispatches to the registered handlers for that kind
// in registration order, stopping at the first one that reports handled.
type Router struct {
	authz     TopicAuthorization
	handlers  map[Topic][]Handler
	log       *logging.Logger
	alertSink func(string)
}

func NewRouter(authz TopicAuthorization, log *logging.Logger) *Router {
	if authz == nil {
		authz = DefaultAuthorization{}
	}
	return &Router{
		authz:    authz,
		handlers: make(map[Topic][]Handler),
		log:      log,
	}
}

// Register adds handler under kind, appended after any handlers already
// registered for that kind.
func (r *Router) Register(kind Topic, handler Handler) {
	r.handlers[kind] = append(r.handlers[kind], handler)
}

// SetAlertSink registers the function notified whenever Dispatch denies a
// topic, normally the daemon's alert log writer.
func (r *Router) SetAlertSink(sink func(string)) { r.alertSink = sink }

// Dispatch classifies topic, checks authorization for the inferred action,
// and invokes registered handlers in order. An unhandled or unauthorized
// topic is logged and dropped — the router never returns an error to the
// transport, since a single malformed inbound message must not interrupt
// the MQTT read loop.
func (r *Router) Dispatch(topic string, payload []byte, meta ResponseMeta) {
	kind, action, ok := classifyTopic(topic)
	if !ok {
		r.log.Debug("unrouted topic:", topic)
		return
	}
	if !r.authz.Allows(topic, action) {
		r.log.Warning("topic", topic, "denied action", action)
		if r.alertSink != nil {
			r.alertSink("denied action " + action + " on topic " + topic)
		}
		return
	}

	for _, h := range r.handlers[kind] {
		if h.HandleMQTT(topic, payload, meta) {
			return
		}
	}
	r.log.Debug("no handler consumed topic:", topic)
}

// classifyTopic maps a prefix-stripped topic to its Topic kind and the
// authorization action name, per the documented topic surface in §6.
func classifyTopic(topic string) (kind Topic, action string, ok bool) {
	segs := strings.Split(strings.Trim(topic, "/"), "/")
	if len(segs) == 0 || segs[0] == "" {
		return "", "", false
	}

	switch segs[0] {
	case "d":
		if len(segs) >= 3 && segs[2] == "mode" {
			return TopicDigital, "digital_mode", true
		}
		if len(segs) >= 3 && segs[2] == "read" {
			return TopicDigital, "digital_read", true
		}
		return TopicDigital, "digital_write", true
	case "a":
		if len(segs) >= 3 && segs[2] == "read" {
			return TopicAnalog, "analog_read", true
		}
		return TopicAnalog, "analog_write", true
	case "console":
		if len(segs) >= 2 && segs[1] == "in" {
			return TopicConsole, "console_input", true
		}
		return "", "", false
	case "file":
		if len(segs) < 2 {
			return "", "", false
		}
		switch segs[1] {
		case "write":
			return TopicFile, "file_write", true
		case "read":
			return TopicFile, "file_read", true
		case "remove":
			return TopicFile, "file_remove", true
		}
		return "", "", false
	case "datastore":
		if len(segs) < 2 {
			return "", "", false
		}
		switch segs[1] {
		case "put":
			return TopicDatastore, "datastore_put", true
		case "get":
			return TopicDatastore, "datastore_get", true
		}
		return "", "", false
	case "mailbox":
		return TopicMailbox, "mailbox_write", true
	case "sh":
		if len(segs) >= 2 && segs[1] == "poll" {
			return TopicShell, "shell_poll", true
		}
		if len(segs) >= 2 && segs[1] == "kill" {
			return TopicShell, "shell_kill", true
		}
		return TopicShell, "shell_run", true
	case "system":
		return TopicSystem, "system", true
	}

	return "", "", false
}
