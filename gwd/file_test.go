package gwd

import (
	"strings"
	"testing"

	bridge "github.com/mcubridge/gatewayd"
)

func TestFileComponentHandleMQTTWrite(t *testing.T) {
	ctx := newFakeBridgeContext()
	state := NewRuntimeState(testConfig())
	f := NewFileComponent(ctx, state, testConfig())

	if !f.HandleMQTT("file/write/logs/a.txt", []byte("hello"), ResponseMeta{}) {
		t.Fatal("HandleMQTT did not claim a file write")
	}
	if len(ctx.sent) != 1 || ctx.sent[0].commandID != bridge.CmdFileWrite {
		t.Fatalf("unexpected send: %+v", ctx.sent)
	}
	fw, err := bridge.ParseFileWritePayload(ctx.sent[0].payload)
	if err != nil {
		t.Fatal(err)
	}
	if fw.Path != "logs/a.txt" || string(fw.Data) != "hello" {
		t.Errorf("parsed write = %+v, want path logs/a.txt data hello", fw)
	}
}

func TestFileComponentHandleMQTTWriteRejectsPathTraversal(t *testing.T) {
	ctx := newFakeBridgeContext()
	state := NewRuntimeState(testConfig())
	f := NewFileComponent(ctx, state, testConfig())

	f.HandleMQTT("file/write/../../etc/passwd", []byte("x"), ResponseMeta{})
	if len(ctx.sent) != 0 {
		t.Error("a path-traversal write reached SendFrame")
	}
	if ctx.published[0].userProps["bridge-error"] != "path-traversal" {
		t.Errorf("bridge-error = %q, want path-traversal", ctx.published[0].userProps["bridge-error"])
	}
}

func TestFileComponentHandleMQTTWriteRejectsAbsolutePath(t *testing.T) {
	ctx := newFakeBridgeContext()
	state := NewRuntimeState(testConfig())
	f := NewFileComponent(ctx, state, testConfig())

	f.HandleMQTT("file/write//etc/passwd", []byte("x"), ResponseMeta{})
	if len(ctx.sent) != 0 {
		t.Error("an absolute path write reached SendFrame")
	}
}

func TestFileComponentHandleMQTTWriteRejectsOversize(t *testing.T) {
	ctx := newFakeBridgeContext()
	cfg := testConfig()
	state := NewRuntimeState(cfg)
	f := NewFileComponent(ctx, state, cfg)

	big := strings.Repeat("x", cfg.FileWriteMaxBytes+1)
	f.HandleMQTT("file/write/big.bin", []byte(big), ResponseMeta{})
	if len(ctx.sent) != 0 {
		t.Error("an oversized write reached SendFrame")
	}
	if ctx.published[0].userProps["bridge-error"] != "write-too-large" {
		t.Errorf("bridge-error = %q, want write-too-large", ctx.published[0].userProps["bridge-error"])
	}
}

func TestFileComponentHandleMQTTWriteRejectsOverQuota(t *testing.T) {
	ctx := newFakeBridgeContext()
	cfg := testConfig()
	cfg.FileStorageQuotaBytes = 4
	state := NewRuntimeState(cfg)
	f := NewFileComponent(ctx, state, cfg)

	f.HandleMQTT("file/write/a.txt", []byte("12345"), ResponseMeta{})
	if len(ctx.sent) != 0 {
		t.Error("a write exceeding the storage quota reached SendFrame")
	}
	if ctx.published[0].userProps["bridge-files"] != "quota-blocked" {
		t.Errorf("bridge-files = %q, want quota-blocked", ctx.published[0].userProps["bridge-files"])
	}
}

func TestFileComponentHandleMQTTRead(t *testing.T) {
	ctx := newFakeBridgeContext()
	state := NewRuntimeState(testConfig())
	f := NewFileComponent(ctx, state, testConfig())

	if !f.HandleMQTT("file/read/logs/a.txt", nil, ResponseMeta{}) {
		t.Fatal("HandleMQTT did not claim a file read")
	}
	if ctx.sent[0].commandID != bridge.CmdFileRead {
		t.Errorf("commandID = %d, want CmdFileRead", ctx.sent[0].commandID)
	}
}

func TestFileComponentHandleMQTTRemove(t *testing.T) {
	ctx := newFakeBridgeContext()
	state := NewRuntimeState(testConfig())
	f := NewFileComponent(ctx, state, testConfig())

	if !f.HandleMQTT("file/remove/logs/a.txt", nil, ResponseMeta{}) {
		t.Fatal("HandleMQTT did not claim a file remove")
	}
	if ctx.sent[0].commandID != bridge.CmdFileRemove {
		t.Errorf("commandID = %d, want CmdFileRemove", ctx.sent[0].commandID)
	}
}

func TestFileComponentHandleFrameReadResponsePublishesData(t *testing.T) {
	ctx := newFakeBridgeContext()
	state := NewRuntimeState(testConfig())
	f := NewFileComponent(ctx, state, testConfig())

	fw := bridge.FileWritePayload{Path: "logs/a.txt", Data: []byte("contents")}
	if !f.HandleFrame(bridge.Frame{CommandID: bridge.CmdFileReadResp, Payload: fw.Pack()}) {
		t.Fatal("HandleFrame did not consume CmdFileReadResp")
	}
	if len(ctx.published) != 1 || ctx.published[0].topic != "file/read/response/logs/a.txt" {
		t.Fatalf("unexpected publish: %+v", ctx.published)
	}
	if string(ctx.published[0].payload) != "contents" {
		t.Errorf("published payload = %q, want contents", ctx.published[0].payload)
	}
}

func TestFileComponentHandleFrameWriteAndRemoveAckAreAcknowledgedSilently(t *testing.T) {
	ctx := newFakeBridgeContext()
	state := NewRuntimeState(testConfig())
	f := NewFileComponent(ctx, state, testConfig())

	if !f.HandleFrame(bridge.Frame{CommandID: bridge.CmdFileWriteResp}) {
		t.Error("HandleFrame did not consume CmdFileWriteResp")
	}
	if !f.HandleFrame(bridge.Frame{CommandID: bridge.CmdFileRemoveResp}) {
		t.Error("HandleFrame did not consume CmdFileRemoveResp")
	}
	if len(ctx.published) != 0 {
		t.Error("write/remove acks should not themselves publish")
	}
}
