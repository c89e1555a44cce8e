package spool

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

func New(cfg Config, logger *zap.Logger) (*Spool, error) {
	if cfg.Dir == "" {
		cfg.Dir = os.TempDir()
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultMaxSize
	}
	if cfg.NChans <= 0 {
		cfg.NChans = 1
	}

	st, err := os.Stat(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("spool dir: %w", err)
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("spool dir %s is not a directory", cfg.Dir)
	}

	s := &Spool{
		maxSize:       cfg.MaxSize,
		nChans:        cfg.NChans,
		configuredMax: cfg.MaxSize,
		dir:           cfg.Dir,
		fileName:      filepath.Join(cfg.Dir, fmt.Sprintf("%s%d%s", FilePrefix, os.Getpid(), FileSuffix)),
		freeSpace:     availableDiskSpace,
		logger:        logger,
	}

	if err := removeSpoolFiles(cfg.Dir); err != nil {
		logger.Warn("[spool] failed to purge stale spool files", zap.Error(err), zap.String("dir", cfg.Dir))
	}

	return s, nil
}

// OpenForWrite starts a new session, truncating any previous spool contents.
// It does nothing if the spool is already open.
func (s *Spool) OpenForWrite() error {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	return s.openForWrite()
}

func (s *Spool) openForWrite() error {
	if s.fp != nil {
		return nil
	}

	fp, err := os.OpenFile(s.fileName, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		s.logger.Error("[spool] failed to open spool file for write", zap.Error(err), zap.String("fileName", s.fileName))
		return fmt.Errorf("%w: %w", ErrOpenFailed, err)
	}
	s.fp = fp

	s.mu.Lock()
	s.pos, s.scanCount, s.currSize = 0, 0, 0
	s.maxSize = s.configuredMax
	s.session = uuid.NewString()
	session := s.session
	s.mu.Unlock()

	s.logger.Debug("[spool] opened spool file for write", zap.String("fileName", s.fileName), zap.String("session", session))
	return nil
}

// Close ends the session, deletes the spool file and resets the counters.
func (s *Spool) Close() error {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	var err error
	if s.fp != nil {
		err = multierr.Append(err, s.fp.Close())
		s.fp = nil
	}
	err = multierr.Append(err, removeSpoolFiles(s.dir))

	s.mu.Lock()
	s.pos, s.scanCount, s.currSize = 0, 0, 0
	s.session = ""
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("[spool] error while closing spool", zap.Error(err), zap.String("fileName", s.fileName))
		return err
	}
	s.logger.Debug("[spool] closed and removed spool file", zap.String("fileName", s.fileName))
	return nil
}

// SetNChans sets the scan width. It must be called before the session opens.
func (s *Spool) SetNChans(n int) error {
	if n <= 0 {
		return ErrInvalidChannels
	}

	s.wmu.Lock()
	defer s.wmu.Unlock()
	if s.fp != nil {
		return ErrSpoolOpen
	}

	s.mu.Lock()
	s.nChans = n
	s.mu.Unlock()
	return nil
}

// SetMaxSize sets the capacity in bytes for the next session.
func (s *Spool) SetMaxSize(size int64) error {
	if size <= 0 {
		return ErrInvalidSize
	}

	s.wmu.Lock()
	defer s.wmu.Unlock()
	if s.fp != nil {
		return ErrSpoolOpen
	}

	s.mu.Lock()
	s.configuredMax = size
	s.maxSize = size
	s.mu.Unlock()
	return nil
}

func (s *Spool) NChans() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nChans
}

func (s *Spool) MaxSize() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxSize
}

func (s *Spool) ScanCount() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scanCount
}

// Session identifies the current write session, empty when closed.
func (s *Spool) Session() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

// ValidRange returns the logical scans [first, end) still held by the ring.
func (s *Spool) ValidRange() (first, end int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	valid := min(s.scanCount, s.currSize/(int64(s.nChans)*SampleSize))
	return s.scanCount - valid, s.scanCount
}

func (s *Spool) FileName() string {
	return s.fileName
}

func (s *Spool) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		Session:   s.session,
		NChans:    s.nChans,
		ScanCount: s.scanCount,
		CurrSize:  s.currSize,
		MaxSize:   s.maxSize,
	}
}

// ChannelSubset renders the channels of mask that exist in this spool as a
// space separated line, the format export clients expect.
func (s *Spool) ChannelSubset(mask ChannelMask) string {
	var sb strings.Builder
	for _, ch := range mask.Channels(s.NChans()) {
		fmt.Fprintf(&sb, "%d ", ch)
	}
	sb.WriteString("\n")
	return sb.String()
}
