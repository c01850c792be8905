// Package meta encodes the fixed-size metadata headers that prefix every
// link-layer frame on the wire.
package meta

import (
	"encoding/binary"
	"fmt"

	"github.com/danmuck/airlink/internal/protocol"
)

const (
	RxInfoLen = 32
	TxInfoLen = 4
)

// RxInfo describes a received frame.
type RxInfo struct {
	MACTime uint64
	Power   int32
	Noise   int32
	Channel uint32
	Freq    uint32
	Rate    uint32
	Antenna uint32
}

// TxInfo carries transmit parameters for a written frame.
type TxInfo struct {
	Rate uint32
}

func (ri RxInfo) MarshalBinary() ([]byte, error) {
	buf := make([]byte, RxInfoLen)
	binary.BigEndian.PutUint64(buf[0:8], ri.MACTime)
	binary.BigEndian.PutUint32(buf[8:12], uint32(ri.Power))
	binary.BigEndian.PutUint32(buf[12:16], uint32(ri.Noise))
	binary.BigEndian.PutUint32(buf[16:20], ri.Channel)
	binary.BigEndian.PutUint32(buf[20:24], ri.Freq)
	binary.BigEndian.PutUint32(buf[24:28], ri.Rate)
	binary.BigEndian.PutUint32(buf[28:32], ri.Antenna)
	return buf, nil
}

func (ri *RxInfo) UnmarshalBinary(b []byte) error {
	if len(b) < RxInfoLen {
		return fmt.Errorf("%w: rx info needs %d bytes, have %d", protocol.ErrProtocolViolation, RxInfoLen, len(b))
	}
	ri.MACTime = binary.BigEndian.Uint64(b[0:8])
	ri.Power = int32(binary.BigEndian.Uint32(b[8:12]))
	ri.Noise = int32(binary.BigEndian.Uint32(b[12:16]))
	ri.Channel = binary.BigEndian.Uint32(b[16:20])
	ri.Freq = binary.BigEndian.Uint32(b[20:24])
	ri.Rate = binary.BigEndian.Uint32(b[24:28])
	ri.Antenna = binary.BigEndian.Uint32(b[28:32])
	return nil
}

func (ti TxInfo) MarshalBinary() ([]byte, error) {
	buf := make([]byte, TxInfoLen)
	binary.BigEndian.PutUint32(buf, ti.Rate)
	return buf, nil
}

func (ti *TxInfo) UnmarshalBinary(b []byte) error {
	if len(b) < TxInfoLen {
		return fmt.Errorf("%w: tx info needs %d bytes, have %d", protocol.ErrProtocolViolation, TxInfoLen, len(b))
	}
	ti.Rate = binary.BigEndian.Uint32(b[0:4])
	return nil
}

// SplitDataFrame separates a DATA_FRAME payload into its RxInfo and the
// link-layer bytes that follow it.
func SplitDataFrame(payload []byte) (RxInfo, []byte, error) {
	var ri RxInfo
	if err := ri.UnmarshalBinary(payload); err != nil {
		return RxInfo{}, nil, err
	}
	return ri, payload[RxInfoLen:], nil
}

// JoinWriteFrame prefixes data with ti, or with a zeroed TxInfo when ti is
// nil.
func JoinWriteFrame(ti *TxInfo, data []byte) []byte {
	buf := make([]byte, TxInfoLen+len(data))
	if ti != nil {
		binary.BigEndian.PutUint32(buf[0:4], ti.Rate)
	}
	copy(buf[TxInfoLen:], data)
	return buf
}
