package spool

import (
	"os"
	"sync"

	"go.uber.org/zap"
)

const (
	FilePrefix = "ScanSpool_DSTemp_"
	FileSuffix = ".bin"

	SampleSize       = 2          // bytes per int16 sample
	DefaultMaxSize   = 1048576000 // bytes
	DiskSafetyMargin = 10 << 20   // free bytes the spool never eats into
	MaxReadScans     = 20000000   // per ReadScans call
)

// Config describes where the spool lives and how large it may grow.
type Config struct {
	Dir     string // defaults to os.TempDir()
	MaxSize int64  // capacity in bytes, defaults to DefaultMaxSize
	NChans  int    // channels per scan, defaults to 1
}

// Stats is a consistent snapshot of the spool counters.
type Stats struct {
	Session   string
	NChans    int
	ScanCount int64
	CurrSize  int64
	MaxSize   int64
}

// Spool is a fixed-capacity ring of scans kept in a scratch file. One producer
// appends with WriteScans while any number of consumers call ReadScans.
type Spool struct {
	// mu guards the counters below. It is never held across file I/O.
	mu        sync.RWMutex
	pos       int64 // write cursor in bytes
	scanCount int64 // scans ever appended this session
	currSize  int64 // bytes on disk
	maxSize   int64 // capacity, may shrink under disk pressure
	nChans    int
	session   string

	// wmu serialises the writer side: open, write, close and reconfiguration.
	// Readers never take it.
	wmu           sync.Mutex
	fp            *os.File
	scratch       []byte
	configuredMax int64

	dir       string
	fileName  string
	freeSpace func(dir string) (uint64, error)
	logger    *zap.Logger
}
