package hostserial

import (
	"bufio"
	"fmt"
	"strings"
	"time"
)

// Client is a synchronous connection to a board running the ASCII shell:
// write one command line, read back however many response lines the
// board emits before it falls idle.
type Client struct {
	port   Port
	reader *bufio.Reader
}

// Connect opens device and wraps it as a Client.
func Connect(device string) (*Client, error) {
	port, err := Open(DefaultConfig(device))
	if err != nil {
		return nil, err
	}
	// Give a freshly reset board time to finish its boot sequence before
	// the first command lands mid-init.
	time.Sleep(200 * time.Millisecond)
	return &Client{port: port, reader: bufio.NewReader(port)}, nil
}

// Close closes the underlying port.
func (c *Client) Close() error {
	return c.port.Close()
}

// SendLine writes one command line, appending the carriage return the
// board's line reader scans for.
func (c *Client) SendLine(line string) error {
	_, err := c.port.Write([]byte(strings.TrimRight(line, "\r\n") + "\r"))
	return err
}

// ReadLine blocks for one response line, or returns an error once the
// port's configured read timeout elapses with nothing received.
func (c *Client) ReadLine() (string, error) {
	line, err := c.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// Command sends line and collects response lines until one starts with
// "ACK,", "ERR," or "Unknown command", or until a read times out. Most
// opcodes answer with exactly one line, but a handful (rf's FFT dump,
// dh's command listing) emit many; output without such a closing line
// ends at the read timeout. This keeps both shapes behind one call
// instead of forcing callers to know which opcode is which.
func (c *Client) Command(line string) ([]string, error) {
	if err := c.SendLine(line); err != nil {
		return nil, fmt.Errorf("send %q: %w", line, err)
	}
	var lines []string
	for {
		resp, err := c.ReadLine()
		if err != nil {
			if len(lines) > 0 {
				return lines, nil
			}
			return nil, fmt.Errorf("read response to %q: %w", line, err)
		}
		lines = append(lines, resp)
		if strings.HasPrefix(resp, "ACK,") || strings.HasPrefix(resp, "ERR,") || strings.HasPrefix(resp, "Unknown command") {
			return lines, nil
		}
	}
}
