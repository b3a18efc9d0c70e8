package eval

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Marshal serialises a State into a flat byte slice suitable for the
// snapshot store (SPEC_FULL.md §6's persistence side-car) to write to disk:
// a length-prefixed f64 value vector followed by a length-prefixed set of
// (offset, tick) pairs.
func (s *State) Marshal() []byte {
	buf := make([]byte, 0, 16+len(s.values)*8+len(s.ticks)*16)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(len(s.values)))
	for _, v := range s.values {
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v))
	}
	buf = binary.LittleEndian.AppendUint64(buf, uint64(len(s.ticks)))
	for k, v := range s.ticks {
		buf = binary.LittleEndian.AppendUint64(buf, uint64(int64(k)))
		buf = binary.LittleEndian.AppendUint64(buf, v)
	}
	return buf
}

// UnmarshalState reverses Marshal. It does not validate the value count
// against any live engine; ResetState does that check when the state is
// applied.
func UnmarshalState(data []byte) (*State, error) {
	read := func(n int) ([]byte, error) {
		if len(data) < n {
			return nil, fmt.Errorf("snapshot: truncated state, want %d bytes, have %d", n, len(data))
		}
		chunk := data[:n]
		data = data[n:]
		return chunk, nil
	}

	head, err := read(8)
	if err != nil {
		return nil, err
	}
	nValues := binary.LittleEndian.Uint64(head)

	s := &State{
		values: make([]float64, nValues),
		ticks:  map[int]uint64{},
	}
	for i := range s.values {
		chunk, err := read(8)
		if err != nil {
			return nil, err
		}
		s.values[i] = math.Float64frombits(binary.LittleEndian.Uint64(chunk))
	}

	head, err = read(8)
	if err != nil {
		return nil, err
	}
	nTicks := binary.LittleEndian.Uint64(head)
	for i := uint64(0); i < nTicks; i++ {
		chunk, err := read(16)
		if err != nil {
			return nil, err
		}
		k := int(binary.LittleEndian.Uint64(chunk[:8]))
		v := binary.LittleEndian.Uint64(chunk[8:])
		s.ticks[k] = v
	}
	return s, nil
}
