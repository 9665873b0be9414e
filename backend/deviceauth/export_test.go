package deviceauth

import "io"

func (c *Client) OutForTest() io.Writer {
	return c.out
}
