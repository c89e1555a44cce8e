package rserial

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
	"go.uber.org/zap/zaptest"
)

// fakePort replays a fixed byte stream, then behaves like an idle port.
type fakePort struct {
	serial.Port
	data *bytes.Reader
}

func (f *fakePort) Read(p []byte) (int, error) {
	n, err := f.data.Read(p)
	if err == io.EOF {
		time.Sleep(time.Millisecond)
		return 0, nil
	}
	return n, err
}

func (f *fakePort) SetReadTimeout(time.Duration) error { return nil }
func (f *fakePort) ResetInputBuffer() error            { return nil }
func (f *fakePort) Close() error                       { return nil }

func receive(t *testing.T, queue <-chan []byte) []byte {
	t.Helper()
	select {
	case packet := <-queue:
		return packet
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for packet")
		return nil
	}
}

func TestRunResyncsAndQueuesPackets(t *testing.T) {
	stream := []byte("ab\r\n" + "1234\r\n" + "5678XY" + "zz\r\n" + "abcd\r\n")
	queue := make(chan []byte, 4)
	r := newRSerialFromPort(&fakePort{data: bytes.NewReader(stream)}, "fake", queue, zaptest.NewLogger(t), 6, []byte("\r\n"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	assert.Equal(t, []byte("1234\r\n"), receive(t, queue))
	assert.Equal(t, []byte("abcd\r\n"), receive(t, queue))

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	_, ok := <-queue
	assert.False(t, ok, "message queue should be closed")
}

func TestReadPacketOutOfSync(t *testing.T) {
	queue := make(chan []byte, 1)
	r := newRSerialFromPort(&fakePort{data: bytes.NewReader([]byte("5678XY"))}, "fake", queue, zaptest.NewLogger(t), 6, []byte("\r\n"))

	err := r.ReadPacket(context.Background())
	var oos *OutOfSyncError
	require.ErrorAs(t, err, &oos)
	assert.Equal(t, []byte("5678XY"), oos.ByteSequence)
	assert.Empty(t, queue)
}

func TestQueuedPacketsAreCopies(t *testing.T) {
	queue := make(chan []byte, 2)
	r := newRSerialFromPort(&fakePort{data: bytes.NewReader([]byte("aaaa\r\nbbbb\r\n"))}, "fake", queue, zaptest.NewLogger(t), 6, []byte("\r\n"))

	require.NoError(t, r.ReadPacket(context.Background()))
	require.NoError(t, r.ReadPacket(context.Background()))

	assert.Equal(t, []byte("aaaa\r\n"), <-queue)
	assert.Equal(t, []byte("bbbb\r\n"), <-queue)
}

func TestReadPacketStopsOnCancel(t *testing.T) {
	queue := make(chan []byte, 1)
	r := newRSerialFromPort(&fakePort{data: bytes.NewReader([]byte("12"))}, "fake", queue, zaptest.NewLogger(t), 6, []byte("\r\n"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := r.ReadPacket(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
