package gwd

import (
	"path/filepath"
	"strings"

	bridge "github.com/mcubridge/gatewayd"
)

// FileComponent resolves file/write|read|remove MQTT requests under the
// configured root, enforcing per-call and cumulative size limits, and
// relays status back from the MCU's write/remove ACK and chunked read
// responses.
type FileComponent struct {
	ctx            BridgeContext
	state          *RuntimeState
	root           string
	writeMaxBytes  int
	quotaBytes     int64
	largeWriteWarn int
}

func NewFileComponent(ctx BridgeContext, state *RuntimeState, cfg bridge.Config) *FileComponent {
	return &FileComponent{
		ctx:            ctx,
		state:          state,
		root:           cfg.FileSystemRoot,
		writeMaxBytes:  cfg.FileWriteMaxBytes,
		quotaBytes:     cfg.FileStorageQuotaBytes,
		largeWriteWarn: cfg.FileWriteMaxBytes / 2,
	}
}

// HandleFrame relays the MCU's write/remove acknowledgements and chunked
// read responses back onto the corresponding MQTT topics.
func (f *FileComponent) HandleFrame(frame bridge.Frame) bool {
	switch frame.CommandID {
	case bridge.CmdFileReadResp:
		read, err := bridge.ParseFileWritePayload(frame.Payload)
		if err != nil {
			f.ctx.Log().Warning("malformed file read response:", err)
			return true
		}
		f.ctx.Publish("file/read/response/"+read.Path, read.Data, ResponseMeta{}, nil)
		return true
	case bridge.CmdFileWriteResp, bridge.CmdFileRemoveResp:
		return true
	}
	return false
}

// HandleMQTT resolves and validates the path, then forwards write/read/
// remove to the MCU. A path that escapes root (absolute, or containing a
// ".." segment) is rejected without touching the MCU.
func (f *FileComponent) HandleMQTT(topic string, payload []byte, _ ResponseMeta) bool {
	switch {
	case strings.HasPrefix(topic, "file/write/"):
		return f.handleWrite(strings.TrimPrefix(topic, "file/write/"), payload)
	case strings.HasPrefix(topic, "file/read/"):
		return f.handleRead(strings.TrimPrefix(topic, "file/read/"))
	case strings.HasPrefix(topic, "file/remove/"):
		return f.handleRemove(strings.TrimPrefix(topic, "file/remove/"))
	}
	return false
}

// resolvePath rejects absolute paths and any ".." segment by contract,
// without ever touching the filesystem for the rejection itself.
func (f *FileComponent) resolvePath(path string) (string, bool) {
	if filepath.IsAbs(path) {
		return "", false
	}
	for _, seg := range strings.Split(path, "/") {
		if seg == ".." {
			return "", false
		}
	}
	return path, true
}

func (f *FileComponent) handleWrite(path string, data []byte) bool {
	rel, ok := f.resolvePath(path)
	if !ok {
		f.ctx.Publish("file/write/"+path, nil, ResponseMeta{}, map[string]string{"bridge-error": "path-traversal"})
		return true
	}
	if len(data) > f.writeMaxBytes {
		f.ctx.Publish("file/write/"+path, nil, ResponseMeta{}, map[string]string{"bridge-error": "write-too-large"})
		return true
	}
	if len(data) > f.largeWriteWarn {
		f.ctx.Log().Warning("large file write to", rel, ":", len(data), "bytes")
	}
	if !f.state.ReserveFileBytes(rel, int64(len(data)), f.quotaBytes) {
		f.ctx.Publish("file/write/"+path, nil, ResponseMeta{}, map[string]string{"bridge-files": "quota-blocked"})
		return true
	}

	fw := bridge.FileWritePayload{Path: rel, Data: data}
	if _, err := f.ctx.SendFrame(bridge.CmdFileWrite, fw.Pack()); err != nil {
		f.ctx.Log().Warning("file write failed:", err)
	}
	return true
}

func (f *FileComponent) handleRead(path string) bool {
	rel, ok := f.resolvePath(path)
	if !ok {
		f.ctx.Publish("file/read/response/"+path, nil, ResponseMeta{}, map[string]string{"bridge-error": "path-traversal"})
		return true
	}
	rp := bridge.FileReadPayload{Path: rel}
	if _, err := f.ctx.SendFrame(bridge.CmdFileRead, rp.Pack()); err != nil {
		f.ctx.Log().Warning("file read failed:", err)
	}
	return true
}

func (f *FileComponent) handleRemove(path string) bool {
	rel, ok := f.resolvePath(path)
	if !ok {
		f.ctx.Publish("file/remove/"+path, nil, ResponseMeta{}, map[string]string{"bridge-error": "path-traversal"})
		return true
	}
	rp := bridge.FileRemovePayload{Path: rel}
	if _, err := f.ctx.SendFrame(bridge.CmdFileRemove, rp.Pack()); err != nil {
		f.ctx.Log().Warning("file remove failed:", err)
	}
	return true
}

// absPath joins a resolved relative path onto root. Nothing in the
// repository calls it.
func (f *FileComponent) absPath(rel string) string {
	return filepath.Join(f.root, rel)
}
