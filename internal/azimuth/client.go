// internal/azimuth/client.go
package azimuth

import (
	"errors"
	"time"

	"github.com/goburrow/modbus"
)

// TCPClient implements Client over Modbus TCP.
type TCPClient struct {
	handler *modbus.TCPClientHandler
	client  modbus.Client
}

type ClientConfig struct {
	Endpoint string
	UnitID   uint8
	Timeout  time.Duration
}

// Dial creates a connected client.
func Dial(cfg ClientConfig) (*TCPClient, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("azimuth: endpoint required")
	}

	h := modbus.NewTCPClientHandler(cfg.Endpoint)
	h.Timeout = cfg.Timeout
	h.SlaveId = cfg.UnitID

	if err := h.Connect(); err != nil {
		return nil, err
	}
	return &TCPClient{handler: h, client: modbus.NewClient(h)}, nil
}

func (c *TCPClient) Close() error {
	if c == nil || c.handler == nil {
		return nil
	}
	return c.handler.Close()
}

func (c *TCPClient) ReadHoldingRegisters(addr, qty uint16) ([]uint16, error) {
	b, err := c.client.ReadHoldingRegisters(addr, qty)
	if err != nil {
		return nil, err
	}
	return unpackRegisters(b), nil
}

func unpackRegisters(data []byte) []uint16 {
	n := len(data) / 2
	out := make([]uint16, n)
	for i := 0; i < n; i++ {
		out[i] = uint16(data[2*i])<<8 | uint16(data[2*i+1])
	}
	return out
}
