package rpm

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ralt/pkgconv/internal/models"
)

const leadSize = 96

var leadMagic = []byte{0xed, 0xab, 0xee, 0xdb}

// Lead types
const (
	leadBinary = 0
	leadSource = 1
)

// lead is the fixed 96-byte preamble of every RPM file
type lead struct {
	Major uint8
	Minor uint8
	Type  uint16
}

// readLead validates the lead before anything else is read from the package
func readLead(r io.Reader) (*lead, error) {
	buf := make([]byte, leadSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, models.NewFormatError("lead", 0, fmt.Errorf("truncated lead: %w", err))
	}
	if !bytes.Equal(buf[:4], leadMagic) {
		return nil, models.NewFormatError("lead", 0, fmt.Errorf("bad magic % x", buf[:4]))
	}
	l := &lead{
		Major: buf[4],
		Minor: buf[5],
		Type:  binary.BigEndian.Uint16(buf[6:8]),
	}
	if l.Major != 3 && l.Major != 4 {
		return nil, models.NewFormatError("lead", 0, fmt.Errorf("unsupported RPM format version %d.%d", l.Major, l.Minor))
	}
	if l.Type != leadBinary && l.Type != leadSource {
		return nil, models.NewFormatError("lead", 0, fmt.Errorf("unknown package type %d", l.Type))
	}
	return l, nil
}
