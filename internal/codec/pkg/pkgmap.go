package pkg

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/ralt/pkgconv/internal/models"
)

// blockSize is the unit pkgmap and the datastream header count in
const blockSize = 512

// mapEntry is one pkgmap line
type mapEntry struct {
	Type   byte
	Class  string
	Path   string // as written, relative to BASEDIR unless absolute
	Target string // for s and l entries
	Mode   uint32
	Owner  string
	Group  string
	Size   int64
	Sum    uint32
	MTime  int64
}

// hasContent reports whether the entry's body is carried in the package
func (e mapEntry) hasContent() bool {
	return e.Type == 'f' || e.Type == 'e' || e.Type == 'v'
}

// installPath is the normalized manifest path of the entry
func (e mapEntry) installPath(basedir string) (string, error) {
	if strings.HasPrefix(e.Path, "/") {
		return models.NormalizePath(e.Path)
	}
	return models.NormalizePath(path.Join(basedir, e.Path))
}

// archiveName is where the entry body lives below the package directory
func (e mapEntry) archiveName() string {
	if strings.HasPrefix(e.Path, "/") {
		return "root" + e.Path
	}
	return "reloc/" + e.Path
}

// parsePkgmap parses the object map. The first line is ": parts maxsize".
func parsePkgmap(data []byte) ([]mapEntry, error) {
	var entries []mapEntry
	lines := bufio.NewScanner(bytes.NewReader(data))
	lineNo := 0
	for lines.Scan() {
		lineNo++
		line := strings.TrimSpace(lines.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, ":") {
			fields := strings.Fields(strings.TrimPrefix(line, ":"))
			if len(fields) > 0 && fields[0] != "1" {
				return nil, models.NewUnsupportedError("multi-part package")
			}
			continue
		}

		entry, err := parseMapLine(line)
		var ce *models.ConversionError
		if errors.As(err, &ce) {
			return nil, err
		}
		if err != nil {
			return nil, models.NewFormatError(fmt.Sprintf("pkgmap line %d", lineNo), -1, err)
		}
		entries = append(entries, *entry)
	}
	return entries, nil
}

func parseMapLine(line string) (*mapEntry, error) {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return nil, fmt.Errorf("short line %q", line)
	}
	if fields[0] != "1" {
		return nil, models.NewUnsupportedError("multi-part package")
	}
	if len(fields[1]) != 1 {
		return nil, fmt.Errorf("bad object type %q", fields[1])
	}

	e := &mapEntry{Type: fields[1][0]}
	var err error
	switch e.Type {
	case 'i':
		// part i name size cksum mtime
		if len(fields) < 6 {
			return nil, fmt.Errorf("short info entry %q", line)
		}
		e.Path = fields[2]
		if e.Size, e.Sum, e.MTime, err = parseSizes(fields[3:6]); err != nil {
			return nil, err
		}
		return e, nil
	case 'f', 'e', 'v':
		if len(fields) < 10 {
			return nil, fmt.Errorf("short file entry %q", line)
		}
		if e.Size, e.Sum, e.MTime, err = parseSizes(fields[7:10]); err != nil {
			return nil, err
		}
	case 'd', 'x':
		if len(fields) < 7 {
			return nil, fmt.Errorf("short directory entry %q", line)
		}
	case 's', 'l':
		if len(fields) < 4 {
			return nil, fmt.Errorf("short link entry %q", line)
		}
		p, target, ok := strings.Cut(fields[3], "=")
		if !ok {
			return nil, fmt.Errorf("link entry without target %q", line)
		}
		e.Class, e.Path, e.Target = fields[2], p, target
		return e, nil
	case 'b', 'c', 'p':
		return nil, models.NewUnsupportedError(fmt.Sprintf("special file %s", strings.Join(fields[2:], " ")))
	default:
		return nil, fmt.Errorf("unknown object type %q", fields[1])
	}

	e.Class, e.Path = fields[2], fields[3]
	e.Mode = parseMode(fields[4], e.Type)
	e.Owner, e.Group = fields[5], fields[6]
	return e, nil
}

func parseSizes(fields []string) (size int64, sum uint32, mtime int64, err error) {
	if size, err = strconv.ParseInt(fields[0], 10, 64); err != nil {
		return 0, 0, 0, fmt.Errorf("bad size %q", fields[0])
	}
	s, err := strconv.ParseUint(fields[1], 10, 32)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("bad checksum %q", fields[1])
	}
	if mtime, err = strconv.ParseInt(fields[2], 10, 64); err != nil {
		return 0, 0, 0, fmt.Errorf("bad mtime %q", fields[2])
	}
	return size, uint32(s), mtime, nil
}

// parseMode reads an octal mode. "?" leaves the mode to the installer.
func parseMode(s string, t byte) uint32 {
	m, err := strconv.ParseUint(s, 8, 32)
	if err != nil {
		if t == 'd' || t == 'x' {
			return 0755
		}
		return 0644
	}
	return uint32(m) & 07777
}

// fileEntry converts a pkgmap entry to a manifest entry
func (e mapEntry) fileEntry(p string) models.FileEntry {
	f := models.FileEntry{
		Path:  p,
		Mode:  e.Mode,
		Owner: e.Owner,
		Group: e.Group,
	}
	if e.MTime > 0 {
		f.ModTime = time.Unix(e.MTime, 0).UTC()
	}
	switch e.Type {
	case 'd', 'x':
		f.Kind = models.KindDirectory
	case 's':
		f.Kind = models.KindSymlink
		f.Mode = 0777
		f.LinkTarget = e.Target
	case 'e':
		f.Kind = models.KindConfFile
	default:
		f.Kind = models.KindRegular
	}
	return f
}

func (e mapEntry) String() string {
	switch e.Type {
	case 'i':
		return fmt.Sprintf("1 i %s %d %d %d", e.Path, e.Size, e.Sum, e.MTime)
	case 's', 'l':
		return fmt.Sprintf("1 %c %s %s=%s", e.Type, e.Class, e.Path, e.Target)
	case 'd', 'x':
		return fmt.Sprintf("1 %c %s %s %04o %s %s", e.Type, e.Class, e.Path, e.Mode, e.Owner, e.Group)
	default:
		return fmt.Sprintf("1 %c %s %s %04o %s %s %d %d %d", e.Type, e.Class, e.Path, e.Mode, e.Owner, e.Group, e.Size, e.Sum, e.MTime)
	}
}

// blocks is the number of 512-byte blocks n bytes occupy
func blocks(n int64) int64 {
	return (n + blockSize - 1) / blockSize
}

// renderPkgmap writes the preamble and one line per entry
func renderPkgmap(entries []mapEntry) []byte {
	var total int64
	for _, e := range entries {
		total += blocks(e.Size)
	}

	var b bytes.Buffer
	fmt.Fprintf(&b, ": 1 %d\n", total)
	for _, e := range entries {
		b.WriteString(e.String())
		b.WriteByte('\n')
	}
	return b.Bytes()
}
