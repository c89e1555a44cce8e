package spool

import (
	"fmt"
	"math/bits"
)

// ChannelMask is a bit-set of channel indices.
type ChannelMask struct {
	words []uint64
}

func NewChannelMask(channels ...int) ChannelMask {
	var m ChannelMask
	for _, ch := range channels {
		m.Set(ch)
	}
	return m
}

// AllChannels selects channels 0 through n-1.
func AllChannels(n int) ChannelMask {
	var m ChannelMask
	for ch := 0; ch < n; ch++ {
		m.Set(ch)
	}
	return m
}

func (m *ChannelMask) Set(ch int) {
	if ch < 0 {
		return
	}
	w := ch / 64
	for len(m.words) <= w {
		m.words = append(m.words, 0)
	}
	m.words[w] |= 1 << uint(ch%64)
}

func (m *ChannelMask) Clear(ch int) {
	if ch < 0 || ch/64 >= len(m.words) {
		return
	}
	m.words[ch/64] &^= 1 << uint(ch%64)
}

func (m ChannelMask) Test(ch int) bool {
	if ch < 0 || ch/64 >= len(m.words) {
		return false
	}
	return m.words[ch/64]&(1<<uint(ch%64)) != 0
}

// Count returns the number of selected channels.
func (m ChannelMask) Count() int {
	n := 0
	for _, w := range m.words {
		n += bits.OnesCount64(w)
	}
	return n
}

// Channels lists the selected channels below limit in ascending order.
func (m ChannelMask) Channels(limit int) []int {
	chans := make([]int, 0, m.Count())
	for wi, w := range m.words {
		for w != 0 {
			ch := wi*64 + bits.TrailingZeros64(w)
			if ch >= limit {
				return chans
			}
			chans = append(chans, ch)
			w &= w - 1
		}
	}
	return chans
}

func (m ChannelMask) String() string {
	return fmt.Sprint(m.Channels(len(m.words) * 64))
}
