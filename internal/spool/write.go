package spool

import (
	"encoding/binary"

	"go.uber.org/zap"
)

// WriteScans appends whole scans to the ring, opening the spool if needed.
// Trailing samples that do not make up a full scan are dropped. Disk trouble
// is logged rather than returned so the producer never stalls; the only error
// is a spool file that cannot be opened.
func (s *Spool) WriteScans(samples []int16) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	if err := s.openForWrite(); err != nil {
		return err
	}

	scanSize := int64(s.nChans) * SampleSize
	nScans := int64(len(samples) / s.nChans)
	if nScans == 0 {
		return nil
	}
	nBytes := nScans * scanSize

	s.checkDiskSpace(nBytes)

	// only whole scans live in the ring, so it ends at the last scan boundary
	limit := (s.maxSize / scanSize) * scanSize
	if limit == 0 {
		s.logger.Warn("[spool] no room for a single scan, dropping batch",
			zap.Int64("maxSize", s.maxSize),
			zap.Int64("scans", nScans),
		)
		return nil
	}

	buf := s.encode(samples[:nScans*int64(s.nChans)])
	pos := s.pos
	for len(buf) > 0 {
		if pos >= limit {
			pos = 0
		}
		n := min(int64(len(buf)), limit-pos)

		// a short write still counts as written, the producer keeps its timing
		written, err := s.fp.WriteAt(buf[:n], pos)
		if err != nil || int64(written) != n {
			s.logger.Warn("[spool] writing to spool file failed",
				zap.Error(err),
				zap.Int64("expectedScans", n/scanSize),
				zap.Int64("writtenScans", int64(written)/scanSize),
				zap.Int64("offset", pos),
			)
		}

		pos += n
		buf = buf[n:]
	}
	if pos >= limit {
		pos = 0
	}

	size := s.currSize
	if st, err := s.fp.Stat(); err != nil {
		s.logger.Warn("[spool] failed to stat spool file", zap.Error(err), zap.String("fileName", s.fileName))
	} else {
		size = st.Size()
	}

	s.mu.Lock()
	s.pos = pos
	s.scanCount += nScans
	s.currSize = size
	s.mu.Unlock()

	return nil
}

// checkDiskSpace stops the spool from growing once the next write would leave
// less than DiskSafetyMargin free. The spool keeps cycling inside whatever it
// has already claimed.
func (s *Spool) checkDiskSpace(nBytes int64) {
	free, err := s.freeSpace(s.dir)
	if err != nil {
		s.logger.Warn("[spool] failed to query free disk space", zap.Error(err), zap.String("dir", s.dir))
		return
	}

	if uint64(nBytes)+DiskSafetyMargin > free && s.maxSize > s.currSize {
		s.mu.Lock()
		s.maxSize = s.currSize
		s.mu.Unlock()

		s.logger.Warn("[spool] disk almost full, capping spool size",
			zap.Int64("maxSize", s.currSize),
			zap.Uint64("freeSpace", free),
		)
	}
}

func (s *Spool) encode(samples []int16) []byte {
	n := len(samples) * SampleSize
	if cap(s.scratch) < n {
		s.scratch = make([]byte, n)
	}
	buf := s.scratch[:n]
	for i, v := range samples {
		binary.LittleEndian.PutUint16(buf[i*SampleSize:], uint16(v))
	}
	return buf
}
