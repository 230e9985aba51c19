package transport

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"strings"

	"github.com/ridewire/dispatchsync/internal/models"
)

// maxLineBytes bounds a single protocol line. Message bodies are short
// free text; anything larger is a protocol violation.
const maxLineBytes = 1 << 20

// request is one command or subscription sent to the dispatch backend
// over the line-JSON channel.
type request struct {
	Cmd   string `json:"cmd"`
	ReqID string `json:"req_id"`

	ThreadID   models.ThreadID `json:"thread_id,omitempty"`
	Body       string          `json:"body,omitempty"`
	RideID     int64           `json:"ride_id,omitempty"`
	MessageIDs []int64         `json:"message_ids,omitempty"`
	MarkedBy   models.Marker   `json:"marked_by,omitempty"`
	Scope      string          `json:"scope,omitempty"`

	// Since resumes a subscription after the given message id so a
	// reconnect does not replay the whole backlog.
	Since int64 `json:"since,omitempty"`
}

// wireError is the backend's error shape.
type wireError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// response answers a single request.
type response struct {
	OK     bool            `json:"ok"`
	Error  *wireError      `json:"error,omitempty"`
	ReqID  string          `json:"req_id,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

// envelope is one streamed push event on a subscription.
type envelope struct {
	Event   string          `json:"event,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   *wireError      `json:"error,omitempty"`
}

func writeJSONLine(conn net.Conn, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = conn.Write(data)
	return err
}

func readLine(reader *bufio.Reader) ([]byte, error) {
	line, err := reader.ReadBytes('\n')
	if err != nil {
		return nil, err
	}
	if len(line) > maxLineBytes {
		return nil, fmt.Errorf("protocol line exceeds %d bytes", maxLineBytes)
	}
	return line, nil
}

func formatWireError(err *wireError) string {
	if err == nil {
		return "unknown error"
	}
	msg := strings.TrimSpace(err.Message)
	if msg == "" {
		msg = err.Code
	}
	if msg == "" {
		return "unknown error"
	}
	if err.Code == "" || strings.Contains(msg, err.Code) {
		return msg
	}
	return fmt.Sprintf("%s (%s)", msg, err.Code)
}
