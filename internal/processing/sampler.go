package processing

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"sleepywoodpecker/rp-spool/internal/spool"
)

const SamplingChannelName = "pressurevals"

// ScanReader is the consumer face of the spool.
type ScanReader interface {
	ReadScans(from, count int64, mask spool.ChannelMask, downsample int) ([]int16, error)
	ValidRange() (first, end int64)
	NChans() int
}

type sampler struct {
	samplingFrequency time.Duration
	out               io.Writer
	spool             ScanReader
	store             *DataSampleStore
	mask              spool.ChannelMask
	window            int64
	downsample        int
	logger            *zap.Logger
	now               func() time.Time
}

func NewSampler(samplingFrequency time.Duration, out io.Writer, sr ScanReader, store *DataSampleStore, mask spool.ChannelMask, window int64, downsample int, logger *zap.Logger) *sampler {
	return &sampler{
		samplingFrequency: samplingFrequency,
		out:               out,
		spool:             sr,
		store:             store,
		mask:              mask,
		window:            window,
		downsample:        downsample,
		logger:            logger,
		now:               time.Now,
	}
}

// SampleAndLog averages the newest window of scans per selected channel and
// sends the result as one influx line.
func (s *sampler) SampleAndLog() {
	first, end := s.spool.ValidRange()
	if end == first {
		return
	}
	from := max(end-s.window, first)

	data, err := s.spool.ReadScans(from, end-from, s.mask, s.downsample)
	if err != nil {
		s.logger.Warn("[sampler] error reading scans from spool", zap.Error(err), zap.Int64("from", from), zap.Int64("scanCount", end))
		return
	}

	chans := s.mask.Channels(s.spool.NChans())
	if len(chans) == 0 || len(data) == 0 {
		return
	}
	nScans := len(data) / len(chans)

	sums := make([]int64, len(chans))
	for i := 0; i < nScans; i++ {
		for j := range chans {
			sums[j] += int64(data[i*len(chans)+j])
		}
	}

	// format the string as an influx line for the telegraf listener
	var sb strings.Builder
	sb.WriteString(SamplingChannelName + " ")
	for j, ch := range chans {
		if j > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, "pt%d=%.2f", ch, float64(sums[j])/float64(nScans))
	}
	_, boardTimestamp := s.store.GetReadingFromSampleStore()
	fmt.Fprintf(&sb, ",board_ts=%di %d\n", boardTimestamp, s.now().UnixNano())
	line := sb.String()

	if err := s.send(line); err != nil {
		s.logger.Warn("[sampler] error writing data to UDP connection", zap.Error(err))
	} else {
		s.logger.Debug("[sampler] collected sample", zap.String("influxString", line))
	}
}

func (s *sampler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.samplingFrequency)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.SampleAndLog()
		case <-ctx.Done():
			s.logger.Info("[sampler] received shutdown signal")
			return
		}
	}
}

func (s *sampler) send(formattedData string) error {
	data := []byte(formattedData)
	for len(data) > 0 {
		n, err := s.out.Write(data)
		if err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}
