package hub

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/grovetools/pharmastock/errors"
)

// recordSeparator terminates every JSON hub protocol record.
const recordSeparator byte = 0x1e

// Hub protocol message types.
const (
	messageInvocation       = 1
	messageStreamItem       = 2
	messageCompletion       = 3
	messageStreamInvocation = 4
	messageCancelInvocation = 5
	messagePing             = 6
	messageClose            = 7
)

// Targets pushed by the dashboard hub.
const (
	TargetStatsUpdated      = "StatsUpdated"
	TargetAlertsUpdated     = "AlertsUpdated"
	TargetMovementAdded     = "MovementAdded"
	TargetNotificationAdded = "NotificationAdded"
	TargetNotification      = "Notification"
)

type handshakeRequest struct {
	Protocol string `json:"protocol"`
	Version  int    `json:"version"`
}

type handshakeResponse struct {
	Error string `json:"error,omitempty"`
}

// message is the union of the record fields the client reads.
type message struct {
	Type           int               `json:"type"`
	Target         string            `json:"target,omitempty"`
	Arguments      []json.RawMessage `json:"arguments,omitempty"`
	Error          string            `json:"error,omitempty"`
	AllowReconnect bool              `json:"allowReconnect,omitempty"`
}

var (
	handshakeRecord = mustRecord(handshakeRequest{Protocol: "json", Version: 1})
	pingRecord      = mustRecord(struct {
		Type int `json:"type"`
	}{Type: messagePing})
)

// encodeRecord marshals v and appends the record separator.
func encodeRecord(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return append(data, recordSeparator), nil
}

func mustRecord(v interface{}) []byte {
	data, err := encodeRecord(v)
	if err != nil {
		panic(err)
	}
	return data
}

// splitRecords returns the complete records in buf (without separators) and
// the trailing partial record.
func splitRecords(buf []byte) (records [][]byte, rest []byte) {
	for {
		i := bytes.IndexByte(buf, recordSeparator)
		if i < 0 {
			return records, buf
		}
		if i > 0 {
			records = append(records, buf[:i])
		}
		buf = buf[i+1:]
	}
}

func parseMessage(record []byte) (message, error) {
	var msg message
	if err := json.Unmarshal(record, &msg); err != nil {
		return msg, errors.ChannelProtocolError("malformed hub record", err)
	}
	if msg.Type == 0 {
		return msg, errors.ChannelProtocolError("hub record without a type", nil)
	}
	if msg.Type == messageInvocation && msg.Target == "" {
		return msg, errors.ChannelProtocolError("invocation without a target", nil)
	}
	return msg, nil
}

func parseHandshake(record []byte) error {
	var resp handshakeResponse
	if err := json.Unmarshal(record, &resp); err != nil {
		return errors.ChannelProtocolError("malformed handshake response", err)
	}
	if resp.Error != "" {
		return errors.HandshakeError(resp.Error)
	}
	return nil
}

func describeType(t int) string {
	switch t {
	case messageInvocation:
		return "invocation"
	case messageStreamItem:
		return "stream-item"
	case messageCompletion:
		return "completion"
	case messageStreamInvocation:
		return "stream-invocation"
	case messageCancelInvocation:
		return "cancel-invocation"
	case messagePing:
		return "ping"
	case messageClose:
		return "close"
	default:
		return fmt.Sprintf("type-%d", t)
	}
}
