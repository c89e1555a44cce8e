package processing

import (
	"sync"
)

// DataSampleStore keeps the most recent packet so the sampler can stamp its
// output with the board clock without touching the spool.
type DataSampleStore struct {
	RawReadings     []int16
	BoardTimestamp  uint32
	PacketNumber    uint32
	rawReadingMutex sync.Mutex
}

func NewDataSampleStore() *DataSampleStore {
	return &DataSampleStore{}
}

func (d *DataSampleStore) UpdateSampleStore(packet DataPacket) {
	d.rawReadingMutex.Lock()
	defer d.rawReadingMutex.Unlock()

	d.RawReadings = append(d.RawReadings[:0], packet.Readings...)
	d.BoardTimestamp = packet.Timestamp
	d.PacketNumber = packet.PacketNumber
}

func (d *DataSampleStore) GetReadingFromSampleStore() ([]int16, uint32) {
	d.rawReadingMutex.Lock()
	defer d.rawReadingMutex.Unlock()

	return append([]int16(nil), d.RawReadings...), d.BoardTimestamp
}
