package bitbucket

import "io"

func (b *Backend) OutForTest() io.Writer {
	return b.out
}
