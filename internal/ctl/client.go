package ctl

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ridewire/dispatchsync/internal/config"
	"github.com/ridewire/dispatchsync/internal/models"
)

const commandTimeout = 10 * time.Second

type request struct {
	Cmd   string `json:"cmd"`
	ReqID string `json:"req_id,omitempty"`

	ThreadID     models.ThreadID `json:"thread_id,omitempty"`
	Body         string          `json:"body,omitempty"`
	RideID       int64           `json:"ride_id,omitempty"`
	ClientTempID string          `json:"client_temp_id,omitempty"`
	Surface      string          `json:"surface,omitempty"`
	Scope        string          `json:"scope,omitempty"`
	EventTypes   []string        `json:"event_types,omitempty"`
	OlderThan    string          `json:"older_than,omitempty"`
	Limit        int             `json:"limit,omitempty"`
}

type responseErr struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

type response struct {
	OK     bool            `json:"ok"`
	ReqID  string          `json:"req_id,omitempty"`
	Error  *responseErr    `json:"error,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

type envelope struct {
	Event *models.Event `json:"event,omitempty"`
	Error *responseErr  `json:"error,omitempty"`
}

// daemonClient dials the surface socket per command, matching how
// short-lived CLI invocations behave.
type daemonClient struct {
	network string
	addr    string
}

// newDaemonClient resolves the socket address from the --socket flag or
// the loaded configuration.
func newDaemonClient(cmd *cobra.Command) (*daemonClient, error) {
	address, _ := cmd.Flags().GetString("socket")
	if strings.TrimSpace(address) == "" {
		cfg, err := config.LoadDefault()
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		address = cfg.DaemonListen()
	}

	network := "tcp"
	addr := strings.TrimSpace(address)
	switch {
	case strings.HasPrefix(addr, "unix://"):
		network = "unix"
		addr = strings.TrimPrefix(addr, "unix://")
	case strings.HasPrefix(addr, "tcp://"):
		addr = strings.TrimPrefix(addr, "tcp://")
	}
	if addr == "" {
		return nil, errors.New("surface socket address required")
	}

	return &daemonClient{network: network, addr: addr}, nil
}

func (c *daemonClient) roundTrip(req request) (json.RawMessage, error) {
	conn, err := net.DialTimeout(c.network, c.addr, commandTimeout)
	if err != nil {
		return nil, fmt.Errorf("dispatchsyncd not reachable at %s: %w", c.addr, err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(commandTimeout))

	data, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	data = append(data, '\n')
	if _, err := conn.Write(data); err != nil {
		return nil, fmt.Errorf("write command: %w", err)
	}

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var resp response
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if !resp.OK {
		return resp.Result, errors.New(formatResponseError(resp.Error))
	}
	return resp.Result, nil
}

// stream opens a subscribe connection and invokes fn per pushed event
// until the connection drops or fn returns false.
func (c *daemonClient) stream(req request, fn func(*models.Event) bool) error {
	conn, err := net.DialTimeout(c.network, c.addr, commandTimeout)
	if err != nil {
		return fmt.Errorf("dispatchsyncd not reachable at %s: %w", c.addr, err)
	}
	defer conn.Close()

	req.Cmd = "subscribe"
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if _, err := conn.Write(data); err != nil {
		return fmt.Errorf("write subscribe: %w", err)
	}

	reader := bufio.NewReader(conn)

	line, err := reader.ReadBytes('\n')
	if err != nil {
		return fmt.Errorf("read subscribe ack: %w", err)
	}
	var ack response
	if err := json.Unmarshal(line, &ack); err != nil {
		return fmt.Errorf("decode subscribe ack: %w", err)
	}
	if !ack.OK {
		return errors.New(formatResponseError(ack.Error))
	}

	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			return fmt.Errorf("stream closed: %w", err)
		}
		var env envelope
		if err := json.Unmarshal(line, &env); err != nil {
			continue
		}
		if env.Error != nil {
			return errors.New(formatResponseError(env.Error))
		}
		if env.Event == nil {
			continue
		}
		if !fn(env.Event) {
			return nil
		}
	}
}

func formatResponseError(err *responseErr) string {
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
