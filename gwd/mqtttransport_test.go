package gwd

import (
	"testing"
)

func TestCollapseTopic(t *testing.T) {
	cases := map[string]string{
		"mcubridge":          "mcubridge",
		"/mcubridge/":        "mcubridge",
		"mcubridge//device":  "mcubridge/device",
		"//a//b//":           "a/b",
	}
	for in, want := range cases {
		if got := collapseTopic(in); got != want {
			t.Errorf("collapseTopic(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMQTTTransportPublishEnqueuesUnderLimit(t *testing.T) {
	cfg := testConfig()
	cfg.MQTTTopic = "mcubridge"
	state := NewRuntimeState(cfg)
	log := testLogger()
	transport := NewMQTTTransport(cfg, state, log)

	transport.Publish("d/4/value", []byte("1"), ResponseMeta{}, nil)

	spoolDepth, queueDepth := transport.Depths()
	if queueDepth != 1 {
		t.Errorf("queueDepth = %d, want 1", queueDepth)
	}
	if spoolDepth != 0 {
		t.Errorf("spoolDepth = %d, want 0 (no spool opened outside Run)", spoolDepth)
	}
}

func TestMQTTTransportPublishDropsWhenQueueFullAndNoSpool(t *testing.T) {
	cfg := testConfig()
	cfg.MQTTTopic = "mcubridge"
	cfg.MQTTQueueLimit = 1
	state := NewRuntimeState(cfg)
	log := testLogger()
	transport := NewMQTTTransport(cfg, state, log)

	transport.Publish("a", []byte("1"), ResponseMeta{}, nil)
	transport.Publish("b", []byte("2"), ResponseMeta{}, nil)

	_, queueDepth := transport.Depths()
	if queueDepth != 1 {
		t.Errorf("queueDepth = %d, want 1 (second publish dropped, no spool open)", queueDepth)
	}
}

func TestMQTTTransportPublishSpoolsWhenQueueFull(t *testing.T) {
	cfg := testConfig()
	cfg.MQTTTopic = "mcubridge"
	cfg.MQTTQueueLimit = 1
	state := NewRuntimeState(cfg)
	log := testLogger()
	transport := NewMQTTTransport(cfg, state, log)

	spool, err := OpenSpool(t.TempDir(), 10, state, log)
	if err != nil {
		t.Fatal(err)
	}
	defer spool.Close()
	transport.spool = spool

	transport.Publish("a", []byte("1"), ResponseMeta{}, nil)
	transport.Publish("b", []byte("2"), ResponseMeta{}, nil)

	spoolDepth, queueDepth := transport.Depths()
	if queueDepth != 1 {
		t.Errorf("queueDepth = %d, want 1", queueDepth)
	}
	if spoolDepth != 1 {
		t.Errorf("spoolDepth = %d, want 1 (second publish overflowed into the spool)", spoolDepth)
	}
}
