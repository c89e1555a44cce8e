// r in rserial stands for "robust"
package rserial

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"
)

const readTimeout = 5 * time.Millisecond

type rserial struct {
	serial.Port
	MessageQueue  chan<- []byte // closed when Run returns
	tempBuff      []byte
	logger        *zap.Logger
	portName      string
	stopSequence  []byte
	rawPacketSize int
}

type OutOfSyncError struct {
	ByteSequence []byte
}

func (e *OutOfSyncError) Error() string {
	return fmt.Sprintf("[rserial] incorrect stop sequence detected: %v", e.ByteSequence)
}

func NewRSerial(portName string, baudrate int, messageQueue chan<- []byte, logger *zap.Logger, rawPacketSize int, stopSequence []byte) (*rserial, error) {
	mode := &serial.Mode{
		BaudRate: baudrate,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		logger.Error("[rserial] error opening serial port", zap.Error(err), zap.String("portName", portName))
		return nil, err
	}

	return newRSerialFromPort(port, portName, messageQueue, logger, rawPacketSize, stopSequence), nil
}

func newRSerialFromPort(port serial.Port, portName string, messageQueue chan<- []byte, logger *zap.Logger, rawPacketSize int, stopSequence []byte) *rserial {
	return &rserial{
		Port:          port,
		MessageQueue:  messageQueue,
		tempBuff:      make([]byte, rawPacketSize),
		logger:        logger,
		portName:      portName,
		stopSequence:  stopSequence,
		rawPacketSize: rawPacketSize,
	}
}

func (r *rserial) initialize(ctx context.Context) {
	if err := r.SetReadTimeout(readTimeout); err != nil {
		r.logger.Warn("[rserial] could not set read timeout", zap.Error(err), zap.String("portName", r.portName))
	}
	if err := r.ResetInputBuffer(); err != nil {
		r.logger.Warn("[rserial] could not reset input buffer", zap.Error(err), zap.String("portName", r.portName))
	}
	r.sync(ctx)
}

// Run reads packets onto the message queue until ctx is cancelled.
func (r *rserial) Run(ctx context.Context) {
	defer close(r.MessageQueue)

	r.initialize(ctx)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("[rserial] exiting from rserial read loop", zap.String("portName", r.portName))
			return
		default:
			err := r.ReadPacket(ctx)
			if err == nil || errors.Is(err, context.Canceled) {
				continue
			}

			var oosError *OutOfSyncError
			if errors.As(err, &oosError) {
				r.logger.Warn("[rserial] error while attempting to read packet from serial", zap.Error(err), zap.String("portName", r.portName), zap.ByteString("payload", oosError.ByteSequence))
				r.sync(ctx)
			} else {
				r.logger.Warn("[rserial] error while attempting to read packet from serial", zap.Error(err), zap.String("portName", r.portName))
			}
		}
	}
}

// ReadPacket reads one framed packet and queues a copy of it.
func (r *rserial) ReadPacket(ctx context.Context) error {
	count := 0
	for count < r.rawPacketSize {
		if err := ctx.Err(); err != nil {
			return err
		}

		// a read timeout returns 0 bytes and no error
		n, err := r.Read(r.tempBuff[count:])
		if err != nil {
			return err
		}
		count += n
	}

	// validate that the packet is valid by checking its trailer
	if !bytes.Equal(r.tempBuff[r.rawPacketSize-len(r.stopSequence):], r.stopSequence) {
		return &OutOfSyncError{
			ByteSequence: bytes.Clone(r.tempBuff),
		}
	}

	select {
	case r.MessageQueue <- bytes.Clone(r.tempBuff):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// sync drops bytes up to and including the last byte of the stop sequence.
func (r *rserial) sync(ctx context.Context) {
	r.logger.Warn("[rserial] resyncing serial port", zap.String("portName", r.portName))
	onebyte := make([]byte, 1)
	last := r.stopSequence[len(r.stopSequence)-1]

	for ctx.Err() == nil {
		n, err := r.Read(onebyte)
		if err != nil {
			r.logger.Warn("[rserial] error while resyncing serial port", zap.Error(err), zap.String("portName", r.portName))
			continue
		}
		if n == 1 && onebyte[0] == last {
			return
		}
	}
}
