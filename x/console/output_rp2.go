//go:build rp2040 || rp2350

package console

import (
	"io"
	"machine"

	"github.com/jangala-dev/tinygo-uartx/uartx"
)

const baud = 115200

// defaultOutput claims UART0 on its board-default pins for log output.
// Logging is silenced if the UART cannot be configured.
func defaultOutput() io.Writer {
	u := uartx.UART0
	err := u.Configure(uartx.UARTConfig{
		BaudRate: baud,
		TX:       machine.UART0_TX_PIN,
		RX:       machine.UART0_RX_PIN,
	})
	return usable(u, err)
}
