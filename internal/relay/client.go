package relay

import (
	"context"
	"io"
	"net"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// Client is a signaling connection to a relay.
type Client struct {
	conn net.Conn
	r    io.Reader
}

func Dial(ctx context.Context, url string) (*Client, error) {
	conn, br, _, err := ws.Dial(ctx, url)
	if err != nil {
		return nil, err
	}
	c := &Client{conn: conn, r: conn}
	if br != nil {
		// Frames sent right after the handshake are already buffered.
		c.r = br
	}
	return c, nil
}

func (c *Client) Send(data []byte) error {
	return wsutil.WriteClientMessage(c.conn, ws.OpText, data)
}

// Receive blocks for the next text frame.
func (c *Client) Receive() ([]byte, error) {
	rw := struct {
		io.Reader
		io.Writer
	}{c.r, c.conn}
	for {
		data, op, err := wsutil.ReadServerData(rw)
		if err != nil {
			return nil, err
		}
		if op == ws.OpText {
			return data, nil
		}
	}
}

func (c *Client) Close() error {
	return c.conn.Close()
}
