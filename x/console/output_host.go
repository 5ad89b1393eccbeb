//go:build !(rp2040 || rp2350)

package console

import (
	"io"
	"os"
)

func defaultOutput() io.Writer { return os.Stdout }
