package github

import "io"

func (b *Backend) OutForTest() io.Writer {
	return b.cfg.Out
}
