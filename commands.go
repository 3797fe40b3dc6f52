package bridge

// Command and status codes, assigned starting at StatusCodeMin. This table
// is the canonical source generators would materialize into both the
// gateway's tables and the MCU's header file; responseFor below is the
// *_RESP pairing map.
const (
	CmdDigitalWrite uint16 = StatusCodeMin + iota
	CmdDigitalRead
	CmdDigitalReadResp
	CmdAnalogWrite
	CmdAnalogRead
	CmdAnalogReadResp
	CmdSetPinMode

	CmdConsoleWrite
	CmdConsoleXoff
	CmdConsoleXon

	CmdDatastorePut
	CmdDatastoreGet
	CmdDatastoreGetResp

	CmdFileWrite
	CmdFileWriteResp
	CmdFileRead
	CmdFileReadResp
	CmdFileRemove
	CmdFileRemoveResp

	CmdMailboxAvailable
	CmdMailboxAvailableResp
	CmdMailboxRead
	CmdMailboxReadResp
	CmdMailboxWrite

	CmdGetVersion
	CmdGetVersionResp
	CmdGetFreeMemory
	CmdGetFreeMemoryResp
	CmdLinkReset

	CmdLinkSync
	CmdLinkSyncResp
	CmdLinkConfig
	CmdLinkConfigResp

	CmdSetBaudrate
	CmdSetBaudrateResp

	CmdWatchdogKeepalive

	StatusAck
	StatusNack
)

// responseFor maps a request command to its expected *_RESP status code, for
// commands the flow controller must wait on. Commands absent from this map
// expect only a STATUS_ACK.
var responseFor = map[uint16]uint16{
	CmdDigitalRead:      CmdDigitalReadResp,
	CmdAnalogRead:       CmdAnalogReadResp,
	CmdDatastoreGet:     CmdDatastoreGetResp,
	CmdFileWrite:        CmdFileWriteResp,
	CmdFileRead:         CmdFileReadResp,
	CmdFileRemove:       CmdFileRemoveResp,
	CmdMailboxAvailable: CmdMailboxAvailableResp,
	CmdMailboxRead:      CmdMailboxReadResp,
	CmdGetVersion:       CmdGetVersionResp,
	CmdGetFreeMemory:    CmdGetFreeMemoryResp,
	CmdLinkSync:         CmdLinkSyncResp,
	CmdLinkConfig:       CmdLinkConfigResp,
	CmdSetBaudrate:      CmdSetBaudrateResp,
}

// ExpectedResponse reports whether commandID has an expected *_RESP frame
// beyond the STATUS_ACK, and what it is.
func ExpectedResponse(commandID uint16) (resp uint16, ok bool) {
	resp, ok = responseFor[commandID]
	return
}

// commandNames supports log lines and framedebug output.
var commandNames = map[uint16]string{
	CmdDigitalWrite:         "CMD_DIGITAL_WRITE",
	CmdDigitalRead:          "CMD_DIGITAL_READ",
	CmdDigitalReadResp:      "CMD_DIGITAL_READ_RESP",
	CmdAnalogWrite:          "CMD_ANALOG_WRITE",
	CmdAnalogRead:           "CMD_ANALOG_READ",
	CmdAnalogReadResp:       "CMD_ANALOG_READ_RESP",
	CmdSetPinMode:           "CMD_SET_PIN_MODE",
	CmdConsoleWrite:         "CMD_CONSOLE_WRITE",
	CmdConsoleXoff:          "CMD_CONSOLE_XOFF",
	CmdConsoleXon:           "CMD_CONSOLE_XON",
	CmdDatastorePut:         "CMD_DATASTORE_PUT",
	CmdDatastoreGet:         "CMD_DATASTORE_GET",
	CmdDatastoreGetResp:     "CMD_DATASTORE_GET_RESP",
	CmdFileWrite:            "CMD_FILE_WRITE",
	CmdFileWriteResp:        "CMD_FILE_WRITE_RESP",
	CmdFileRead:             "CMD_FILE_READ",
	CmdFileReadResp:         "CMD_FILE_READ_RESP",
	CmdFileRemove:           "CMD_FILE_REMOVE",
	CmdFileRemoveResp:       "CMD_FILE_REMOVE_RESP",
	CmdMailboxAvailable:     "CMD_MAILBOX_AVAILABLE",
	CmdMailboxAvailableResp: "CMD_MAILBOX_AVAILABLE_RESP",
	CmdMailboxRead:          "CMD_MAILBOX_READ",
	CmdMailboxReadResp:      "CMD_MAILBOX_READ_RESP",
	CmdMailboxWrite:         "CMD_MAILBOX_WRITE",
	CmdGetVersion:           "CMD_GET_VERSION",
	CmdGetVersionResp:       "CMD_GET_VERSION_RESP",
	CmdGetFreeMemory:        "CMD_GET_FREE_MEMORY",
	CmdGetFreeMemoryResp:    "CMD_GET_FREE_MEMORY_RESP",
	CmdLinkReset:            "CMD_LINK_RESET",
	CmdLinkSync:             "CMD_LINK_SYNC",
	CmdLinkSyncResp:         "CMD_LINK_SYNC_RESP",
	CmdLinkConfig:           "CMD_LINK_CONFIG",
	CmdLinkConfigResp:       "CMD_LINK_CONFIG_RESP",
	CmdSetBaudrate:          "CMD_SET_BAUDRATE",
	CmdSetBaudrateResp:      "CMD_SET_BAUDRATE_RESP",
	CmdWatchdogKeepalive:    "CMD_WATCHDOG_KEEPALIVE",
	StatusAck:               "STATUS_ACK",
	StatusNack:              "STATUS_NACK",
}

// CommandName returns the canonical name for a command/status id, or the
// fixed string "CMD_UNKNOWN" for an id outside the table.
func CommandName(commandID uint16) string {
	if name, ok := commandNames[commandID]; ok {
		return name
	}
	return "CMD_UNKNOWN"
}

// LooksLikeLogLine reports whether payload is plausibly a printable-ASCII
// log line rather than structured STATUS_* data — the flow controller must
// not let one of these terminate a pending command.
func LooksLikeLogLine(payload []byte) bool {
	if len(payload) == 0 {
		return false
	}
	for _, b := range payload {
		switch {
		case b >= 0x20 && b <= 0x7E:
		case b == '\t' || b == '\r' || b == '\n':
		default:
			return false
		}
	}
	return true
}
