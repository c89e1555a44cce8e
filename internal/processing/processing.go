package processing

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strconv"

	"go.uber.org/zap"

	"sleepywoodpecker/rp-spool/internal/spool"
)

const DEFAULT_QUEUE_SIZE = 20

// ScanWriter is the producer face of the spool.
type ScanWriter interface {
	WriteScans(samples []int16) error
}

type PacketHeader struct {
	PacketNumber uint32
	Timestamp    uint32
}

// DataPacket is one scan as framed by the board: header, nChans little-endian
// int16 readings, then the stop sequence.
type DataPacket struct {
	PacketHeader
	Readings []int16
}

const HeaderSize = 8

func PacketSize(nChans int, stopSequence []byte) int {
	return HeaderSize + nChans*spool.SampleSize + len(stopSequence)
}

func DecodePacket(packet []byte, nChans int) (DataPacket, error) {
	need := HeaderSize + nChans*spool.SampleSize
	if len(packet) < need {
		return DataPacket{}, fmt.Errorf("packet is %d bytes, need %d", len(packet), need)
	}

	var decoded DataPacket
	reader := bytes.NewReader(packet[:need])
	if err := binary.Read(reader, binary.LittleEndian, &decoded.PacketHeader); err != nil {
		return DataPacket{}, err
	}
	decoded.Readings = make([]int16, nChans)
	if err := binary.Read(reader, binary.LittleEndian, decoded.Readings); err != nil {
		return DataPacket{}, err
	}
	return decoded, nil
}

// EncodePacket frames p the way the board sends it.
func EncodePacket(p DataPacket, stopSequence []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(PacketSize(len(p.Readings), stopSequence))
	binary.Write(&buf, binary.LittleEndian, p.PacketHeader)
	binary.Write(&buf, binary.LittleEndian, p.Readings)
	buf.Write(stopSequence)
	return buf.Bytes()
}

type Processor struct {
	Filename     string // raw CSV mirror, empty to disable
	MessageQueue <-chan []byte
	logger       *zap.Logger
	dataStore    *DataSampleStore
	spool        ScanWriter
	nChans       int
	batchScans   int
	batch        []int16
	prevPacket   int64
}

func NewProcessor(filename string, messageQueue <-chan []byte, logger *zap.Logger, dataStore *DataSampleStore, sw ScanWriter, nChans, batchScans int) *Processor {
	if batchScans <= 0 {
		batchScans = 1
	}
	return &Processor{
		Filename:     filename,
		MessageQueue: messageQueue,
		logger:       logger,
		dataStore:    dataStore,
		spool:        sw,
		nChans:       nChans,
		batchScans:   batchScans,
		batch:        make([]int16, 0, batchScans*nChans),
		prevPacket:   -1,
	}
}

// Run decodes packets into the spool until the queue closes or ctx is
// cancelled. Scans still batched at that point are flushed.
func (p *Processor) Run(ctx context.Context) error {
	outStream := io.Discard
	if p.Filename != "" {
		file, err := os.OpenFile(p.Filename, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			p.logger.Error("[processor] error opening a file", zap.Error(err), zap.String("outputFile", p.Filename))
			return err
		}
		defer file.Close()

		writer := bufio.NewWriter(file)
		defer writer.Flush()
		outStream = writer
	}
	defer p.flush()

	for {
		select {
		case packet, ok := <-p.MessageQueue:
			if !ok {
				p.logger.Info("[processor] message queue closed", zap.String("outputFile", p.Filename))
				return nil
			}

			if err := p.ProcessPacket(packet, outStream); err != nil {
				p.logger.Warn(
					"[processor] error decoding byte packet",
					zap.Error(err),
					zap.Int("packetLength", len(packet)),
					zap.String("outputFile", p.Filename),
					zap.ByteString("rawBytes", packet),
				)
			}
		case <-ctx.Done():
			p.logger.Info("[processor] received shutdown signal", zap.String("outputFile", p.Filename))
			return nil
		}
	}
}

func (p *Processor) ProcessPacket(packet []byte, outStream io.Writer) error {
	decoded, err := DecodePacket(packet, p.nChans)
	if err != nil {
		return err
	}

	if p.prevPacket >= 0 && int64(decoded.PacketNumber) != p.prevPacket+1 {
		p.logger.Warn("[processor] packet number gap",
			zap.Int64("expected", p.prevPacket+1),
			zap.Uint32("received", decoded.PacketNumber),
		)
	}
	p.prevPacket = int64(decoded.PacketNumber)

	// create csv representation of data
	line := make([]byte, 0, 64)
	line = strconv.AppendUint(line, uint64(decoded.PacketNumber), 10)
	line = append(line, ',')
	line = strconv.AppendUint(line, uint64(decoded.Timestamp), 10)
	for _, reading := range decoded.Readings {
		line = append(line, ',')
		line = strconv.AppendInt(line, int64(reading), 10)
	}
	line = append(line, '\n')
	if _, err := outStream.Write(line); err != nil {
		p.logger.Warn("[processor] error writing raw log", zap.Error(err), zap.String("outputFile", p.Filename))
	}

	p.dataStore.UpdateSampleStore(decoded)

	p.batch = append(p.batch, decoded.Readings...)
	if len(p.batch) >= p.batchScans*p.nChans {
		p.flush()
	}
	return nil
}

func (p *Processor) flush() {
	if len(p.batch) == 0 {
		return
	}
	if err := p.spool.WriteScans(p.batch); err != nil {
		p.logger.Error("[processor] error writing scans to spool", zap.Error(err), zap.Int("samples", len(p.batch)))
	}
	p.batch = p.batch[:0]
}
