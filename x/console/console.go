// Package console is the firmware's line logger. Lines look like
//
//	[hal] build failed: t0 no_device
//
// Host builds write to stdout; RP2 builds write to the debug UART.
// Formatting uses strconv only so it stays cheap on TinyGo.
package console

import (
	"io"
	"strconv"
	"sync"
)

var (
	mu  sync.Mutex
	out io.Writer
	buf []byte
)

// SetOutput redirects all subsequent lines. A nil writer restores the
// platform default.
func SetOutput(w io.Writer) {
	mu.Lock()
	out = w
	mu.Unlock()
}

// Println writes one tagged line. Arguments are separated by spaces.
func Println(tag string, args ...any) {
	mu.Lock()
	defer mu.Unlock()
	if out == nil {
		out = defaultOutput()
	}
	buf = buf[:0]
	if tag != "" {
		buf = append(buf, '[')
		buf = append(buf, tag...)
		buf = append(buf, "] "...)
	}
	for i, a := range args {
		if i > 0 {
			buf = append(buf, ' ')
		}
		buf = appendAny(buf, a)
	}
	buf = append(buf, '\n')
	_, _ = out.Write(buf)
}

// usable returns w, or a writer that drops everything when the port behind
// w failed to configure.
func usable(w io.Writer, err error) io.Writer {
	if err != nil || w == nil {
		return io.Discard
	}
	return w
}

// Logger binds a tag.
type Logger string

func (l Logger) Println(args ...any) { Println(string(l), args...) }

func appendAny(b []byte, v any) []byte {
	switch x := v.(type) {
	case nil:
		return append(b, "<nil>"...)
	case string:
		return append(b, x...)
	case error:
		return append(b, x.Error()...)
	case interface{ String() string }:
		return append(b, x.String()...)
	case bool:
		return strconv.AppendBool(b, x)
	case int:
		return strconv.AppendInt(b, int64(x), 10)
	case int8:
		return strconv.AppendInt(b, int64(x), 10)
	case int16:
		return strconv.AppendInt(b, int64(x), 10)
	case int32:
		return strconv.AppendInt(b, int64(x), 10)
	case int64:
		return strconv.AppendInt(b, x, 10)
	case uint:
		return strconv.AppendUint(b, uint64(x), 10)
	case uint8:
		return strconv.AppendUint(b, uint64(x), 10)
	case uint16:
		return strconv.AppendUint(b, uint64(x), 10)
	case uint32:
		return strconv.AppendUint(b, uint64(x), 10)
	case uint64:
		return strconv.AppendUint(b, x, 10)
	case float32:
		return strconv.AppendFloat(b, float64(x), 'f', -1, 32)
	case float64:
		return strconv.AppendFloat(b, x, 'f', -1, 64)
	}
	return append(b, '?')
}
