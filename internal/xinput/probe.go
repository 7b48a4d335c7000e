package xinput

import (
	"context"
	"fmt"

	"github.com/bnema/xhier/internal/logger"
	"github.com/jezek/xgb"
)

const extensionName = "XInputExtension"

// ProbeResult describes the display the client will talk to
type ProbeResult struct {
	Display      string
	MajorOpcode  byte
	ServerMajor  int
	ServerMinor  int
	ClientOutput string
}

// Probe checks that display is reachable, has the X Input extension and
// speaks XI 2.0 or later. An empty display means $DISPLAY.
func (c *Client) Probe(ctx context.Context, display string) (*ProbeResult, error) {
	conn, err := xgb.NewConnDisplay(display)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to X display %q: %w", display, err)
	}
	defer conn.Close()

	opcode, err := inputOpcode(conn)
	if err != nil {
		return nil, fmt.Errorf("display %q: %w", display, err)
	}
	logger.Debugf("%s present, major opcode %d", extensionName, opcode)

	out, err := c.exec(ctx, "--version")
	if err != nil {
		return nil, err
	}
	major, minor, err := ParseServerVersion(string(out))
	if err != nil {
		return nil, err
	}
	if major < 2 {
		return nil, fmt.Errorf("X Input 2.0 is required, server has %d.%d", major, minor)
	}

	return &ProbeResult{
		Display:      display,
		MajorOpcode:  opcode,
		ServerMajor:  major,
		ServerMinor:  minor,
		ClientOutput: string(out),
	}, nil
}
