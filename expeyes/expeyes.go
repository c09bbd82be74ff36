/*Package expeyes drives the SPI port of an ExpEYES-17 / SEELab bridge over
its USB serial link.

The bridge is a small microcontroller box that exposes lab peripherals,
among them an SPI master, to a host PC.  One Write16 call maps to one
chip-select-bracketed transfer on the bridge's bus: the host sends a short
framed command naming the chip select line and carrying the 16-bit payload
MSB-first, and the bridge answers with a single acknowledgement byte after
it has raised the chip select again.  Transfers use SPI mode 3 at the rate
the bridge firmware fixes, so electrical framing never appears at this
layer.

Frames are checksummed with CRC16/XMODEM so line noise on the USB serial
link cannot silently corrupt a register word; a bridge that sees a bad CRC
answers NAK and performs no transfer.
*/
package expeyes

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/snksoft/crc"
	"github.com/tarm/serial"
	"golang.org/x/time/rate"
)

const (
	// frameStart begins every command frame
	frameStart = 0x7E

	// cmdSPIXfer16 asks the bridge for one 16-bit SPI transfer
	cmdSPIXfer16 = 0x10

	// ack and nak are the two replies the bridge sends
	ack = 0x06
	nak = 0x15

	// CS1 and CS2 are the bridge's two SPI chip select lines
	CS1 = 1
	CS2 = 2

	// maxFrameRate is the fastest the bridge firmware drains its UART
	// buffer, frames per second.  Writes are paced below it.
	maxFrameRate = 2000
)

var (
	// ErrNotOpen is returned when Write16 is called before Open
	ErrNotOpen = errors.New("expeyes: serial port not open")

	// ErrNak is returned when the bridge refuses a frame (bad CRC or an
	// unknown chip select on its end)
	ErrNak = errors.New("expeyes: bridge refused frame (NAK)")

	crcTable = crc.NewTable(crc.XMODEM)
)

// MakeSerConf makes a serial config for a bridge on the given port
func MakeSerConf(addr string) *serial.Config {
	return &serial.Config{
		Name:        addr,
		Baud:        1000000,
		Size:        8,
		Parity:      serial.ParityNone,
		StopBits:    serial.Stop1,
		ReadTimeout: 1 * time.Second}
}

// Bridge is one chip select line of one ExpEYES box.  It satisfies
// ad9833.Writer16.  Open must be called before use; the zero value of CS
// is invalid, use CS1 or CS2.
type Bridge struct {
	// Addr is the serial port the bridge enumerates on, e.g. /dev/ttyACM0
	Addr string

	// CS is the chip select line wired to the target chip
	CS byte

	conn    io.ReadWriteCloser
	limiter *rate.Limiter
}

// NewBridge returns a Bridge for the chip behind the given select line of
// the box on addr
func NewBridge(addr string, cs byte) *Bridge {
	return &Bridge{
		Addr:    addr,
		CS:      cs,
		limiter: rate.NewLimiter(maxFrameRate, 1)}
}

// Open connects to the bridge.  The microcontroller re-enumerates slowly
// after a replug, so opening retries with an exponential backoff before
// giving up.
func (b *Bridge) Open() error {
	op := func() error {
		conn, err := serial.OpenPort(MakeSerConf(b.Addr))
		if err != nil {
			return err
		}
		b.conn = conn
		return nil
	}
	err := backoff.Retry(op, &backoff.ExponentialBackOff{
		InitialInterval:     25 * time.Millisecond,
		RandomizationFactor: 0.,
		Multiplier:          2.,
		MaxInterval:         1 * time.Second,
		MaxElapsedTime:      3 * time.Second,
		Clock:               backoff.SystemClock})
	if err != nil {
		return fmt.Errorf("expeyes: opening %s: %w", b.Addr, err)
	}
	return nil
}

// Close closes the serial port
func (b *Bridge) Close() error {
	if b.conn == nil {
		return nil
	}
	err := b.conn.Close()
	if err == nil {
		b.conn = nil
	}
	return err
}

// frame builds the command frame for one 16-bit transfer:
// [start][cs][cmd][word MSB][word LSB][crc hi][crc lo]
func frame(cs byte, word uint16) []byte {
	buf := make([]byte, 7)
	buf[0] = frameStart
	buf[1] = cs
	buf[2] = cmdSPIXfer16
	binary.BigEndian.PutUint16(buf[3:5], word)
	binary.BigEndian.PutUint16(buf[5:7], uint16(crcTable.CalculateCRC(buf[:5])))
	return buf
}

// checkAck interprets the bridge's one-byte reply
func checkAck(b byte) error {
	switch b {
	case ack:
		return nil
	case nak:
		return ErrNak
	}
	return fmt.Errorf("expeyes: unexpected reply byte %#02x", b)
}

// Write16 performs one chip-select-bracketed 16-bit transfer, blocking
// until the bridge acknowledges it
func (b *Bridge) Write16(word uint16) error {
	if b.conn == nil {
		return ErrNotOpen
	}
	if err := b.limiter.Wait(context.Background()); err != nil {
		return err
	}
	if _, err := b.conn.Write(frame(b.CS, word)); err != nil {
		return fmt.Errorf("expeyes: writing frame: %w", err)
	}
	resp := make([]byte, 1)
	if _, err := io.ReadFull(b.conn, resp); err != nil {
		return fmt.Errorf("expeyes: reading acknowledgement: %w", err)
	}
	return checkAck(resp[0])
}
