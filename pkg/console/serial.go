package console

import (
	"io"

	"go.bug.st/serial"
)

// OpenSerial opens a UART console. Closing the returned closer stops
// the console input.
func OpenSerial(device string, baud int) (*Stream, io.Closer, error) {
	port, err := serial.Open(device, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, nil, err
	}
	return NewStream(port, port).WithCRLF(), port, nil
}
