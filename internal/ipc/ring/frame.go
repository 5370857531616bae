package ring

import "bytes"

// Sentinel bytes
const (
	Start byte = '['
	End   byte = ']'
	Blank byte = '_'
)

// ValidatePayload checks that payload can be framed
func ValidatePayload(payload []byte) error {
	if bytes.IndexByte(payload, Start) >= 0 || bytes.IndexByte(payload, End) >= 0 {
		return ErrInvalidPayload
	}
	return nil
}

// Frame wraps payload in START and END
func Frame(payload []byte) []byte {
	framed := make([]byte, 0, len(payload)+2)
	framed = append(framed, Start)
	framed = append(framed, payload...)
	return append(framed, End)
}

// deframer accumulates bytes read from the ring into whole payloads
type deframer struct {
	buf     []byte
	inFrame bool
	stray   int
}

type deframeResult int

const (
	needMore deframeResult = iota
	complete
	resynced
	unframed
)

func (d *deframer) feed(b byte) deframeResult {
	switch b {
	case Start:
		wasOpen := d.inFrame
		d.inFrame = true
		d.buf = d.buf[:0]
		d.stray = 0
		if wasOpen {
			return resynced
		}
		return needMore
	case End:
		if !d.inFrame {
			d.stray = 0
			return unframed
		}
		d.inFrame = false
		return complete
	default:
		if d.inFrame {
			d.buf = append(d.buf, b)
		} else {
			d.stray++
		}
		return needMore
	}
}

func (d *deframer) payload() []byte {
	out := make([]byte, len(d.buf))
	copy(out, d.buf)
	d.buf = d.buf[:0]
	return out
}
