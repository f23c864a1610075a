package forward

import (
	"net"
	"testing"
	"time"

	"rillnet/pkg/broadcast"
)

type nopLogger struct{}

func (nopLogger) Debugw(msg string, keysAndValues ...interface{}) {}

func TestDataChannelBus_EchoSuppressionAndFanOut(t *testing.T) {
	bus := broadcast.NewBus[[]byte](16)

	// Each simulated peer gets a net.Pipe: the *Raw end plays the role of
	// the detached data channel handle passed to the read/write loops,
	// the *Client end plays the role of the actual client socket the test
	// drives directly.
	aRaw, aClient := net.Pipe()
	bRaw, bClient := net.Pipe()

	const originA uint32 = 0 // publisher
	const originB uint32 = 1 // subscriber

	go dcReadLoop(bus, aRaw, originA, nopLogger{})
	go dcWriteLoop(bus, aRaw, originA, nopLogger{})
	go dcReadLoop(bus, bRaw, originB, nopLogger{})
	go dcWriteLoop(bus, bRaw, originB, nopLogger{})

	msg := []byte{0x01, 0x02}
	if _, err := aClient.Write(msg); err != nil {
		t.Fatalf("write from A failed: %v", err)
	}

	bClient.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 64)
	n, err := bClient.Read(buf)
	if err != nil {
		t.Fatalf("B did not receive A's message: %v", err)
	}
	if string(buf[:n]) != string(msg) {
		t.Fatalf("B received %v, want %v", buf[:n], msg)
	}

	// A must never see its own message echoed back.
	aClient.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	n, err = aClient.Read(buf)
	if err == nil {
		t.Fatalf("A unexpectedly received its own echoed message: %v", buf[:n])
	}
}
