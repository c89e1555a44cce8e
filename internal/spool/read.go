package spool

import (
	"encoding/binary"
	"fmt"
	"os"

	"go.uber.org/zap"
)

// ReadScans returns scans [from, from+count) restricted to the channels in
// mask, keeping every downsample-th scan. A negative count reads one scan.
// The result is scan-major: len(result) = scans emitted * selected channels.
//
// The read uses its own file handle and only holds the counter lock long
// enough to snapshot it, so it never blocks the producer.
func (s *Spool) ReadScans(from, count int64, mask ChannelMask, downsample int) ([]int16, error) {
	fp, err := os.Open(s.fileName)
	if err != nil {
		s.logger.Warn("[spool] failed to open spool file for read", zap.Error(err), zap.String("fileName", s.fileName))
		return nil, fmt.Errorf("%w: %w", ErrNotOpen, err)
	}
	defer fp.Close()

	s.mu.RLock()
	scanCount, currSize, nChans := s.scanCount, s.currSize, s.nChans
	s.mu.RUnlock()

	scanSize := int64(nChans) * SampleSize
	maxNScans := currSize / scanSize
	maxPos := maxNScans * scanSize

	readCount := int64(1)
	if count >= 0 {
		readCount = count
	}
	readCount = min(readCount, maxNScans, MaxReadScans)

	// scans older than scanCount-maxNScans have been overwritten
	invalid := from < 0 || maxNScans == 0 || from > scanCount || from < scanCount-maxNScans
	if !invalid && readCount > scanCount-from {
		readCount = scanCount - from
	}
	if invalid || (readCount == 0 && count != 0) {
		s.logger.Error("[spool] invalid scan range",
			zap.Int64("from", from),
			zap.Int64("count", count),
			zap.Int64("scanCount", scanCount),
			zap.Int64("validScans", maxNScans),
		)
		return nil, ErrInvalidRange
	}

	if downsample <= 0 {
		downsample = 1
	}
	skip := int64(downsample - 1)

	chans := mask.Channels(nChans)
	all := len(chans) == nChans
	out := make([]int16, 0, ((readCount+skip)/int64(downsample))*int64(len(chans)))
	scan := make([]byte, scanSize)

	pos := (from % maxNScans) * scanSize
	for readSoFar := int64(0); readSoFar < readCount; readSoFar++ {
		if pos+scanSize > maxPos {
			pos = 0
		}

		n, err := fp.ReadAt(scan, pos)
		if int64(n) == scanSize {
			out = appendScan(out, scan, chans, all)
			pos += scanSize
		} else {
			s.logger.Warn("[spool] reading from spool file failed",
				zap.Error(err),
				zap.Int64("expectedBytes", scanSize),
				zap.Int("readBytes", n),
				zap.Int64("offset", pos),
			)
			pos = (pos + scanSize) % maxPos
		}

		// downsampling jumps over the scans in between instead of reading them
		if skip > 0 {
			pos = (pos + skip*scanSize) % maxPos
			readSoFar += skip
		}
	}

	return out, nil
}

func appendScan(out []int16, scan []byte, chans []int, all bool) []int16 {
	if all {
		for off := 0; off+SampleSize <= len(scan); off += SampleSize {
			out = append(out, int16(binary.LittleEndian.Uint16(scan[off:])))
		}
		return out
	}

	for _, ch := range chans {
		out = append(out, int16(binary.LittleEndian.Uint16(scan[ch*SampleSize:])))
	}
	return out
}
