package transport

import (
	"fmt"

	"github.com/tarm/serial"
)

// SerialPort is a stream over a serial line. It has no deadlines: sends
// are not bounded by a write wait and reads block until data or failure.
type SerialPort struct {
	port *serial.Port
	name string
}

func OpenSerial(device string, baud int) (*SerialPort, error) {
	if baud <= 0 {
		baud = DefaultBaud
	}
	port, err := serial.OpenPort(&serial.Config{
		Name: device,
		Baud: baud,
	})
	if err != nil {
		return nil, fmt.Errorf("transport: open serial port %s: %w", device, err)
	}
	return &SerialPort{port: port, name: device}, nil
}

func (p *SerialPort) Read(b []byte) (int, error) {
	return p.port.Read(b)
}

func (p *SerialPort) Write(b []byte) (int, error) {
	return p.port.Write(b)
}

func (p *SerialPort) Close() error {
	if p.port == nil {
		return nil
	}
	return p.port.Close()
}

func (p *SerialPort) Name() string { return p.name }
