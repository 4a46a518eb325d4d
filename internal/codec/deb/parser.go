package deb

import (
	"archive/tar"
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/blakesmith/ar"
	"github.com/ralt/pkgconv/internal/codec"
	"github.com/ralt/pkgconv/internal/mapping"
	"github.com/ralt/pkgconv/internal/models"
	"github.com/ralt/pkgconv/internal/scanner"
	"github.com/ralt/pkgconv/internal/staging"
	"github.com/ralt/pkgconv/internal/utils"
	"github.com/sirupsen/logrus"
)

const (
	arMagic        = "!<arch>\n"
	arMagicSize    = 8
	arHeaderSize   = 60
	debianBinary   = "debian-binary"
	controlMember  = "control.tar"
	dataMember     = "data.tar"
	signatureEntry = "_gpgorigin"
)

var scriptFiles = map[string]models.ScriptKind{
	"preinst":  models.PreInstall,
	"postinst": models.PostInstall,
	"prerm":    models.PreRemove,
	"postrm":   models.PostRemove,
}

// controlArchive holds the members of control.tar that matter for conversion
type controlArchive struct {
	control   []byte
	md5sums   []byte
	conffiles []byte
	scripts   map[models.ScriptKind][]byte
}

// Read parses a .deb file, staging its data archive into arena.
func (c *Codec) Read(ctx context.Context, path string, arena *staging.Arena) (*models.Package, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, models.NewIOError("open package", err)
	}
	defer f.Close()

	// .deb files are ar archives starting with "!<arch>\n"
	magic := make([]byte, arMagicSize)
	if _, err := io.ReadFull(f, magic); err != nil || string(magic) != arMagic {
		return nil, models.NewFormatError("ar", 0, fmt.Errorf("not an ar archive"))
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, models.NewIOError("read package", err)
	}

	reader := ar.NewReader(f)
	offset := int64(arMagicSize)

	var ctrl *controlArchive
	var files []models.FileEntry
	first := true

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		header, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, models.NewFormatError("ar", offset, fmt.Errorf("failed to read ar header: %w", err))
		}

		memberOffset := offset
		offset += arHeaderSize + header.Size + header.Size%2
		name := strings.TrimRight(strings.TrimSpace(header.Name), "/")

		if first {
			first = false
			if name != debianBinary {
				return nil, models.NewFormatError(debianBinary, memberOffset, fmt.Errorf("first member is %q", name))
			}
			if err := checkFormatVersion(reader, memberOffset); err != nil {
				return nil, err
			}
			continue
		}

		switch {
		case strings.HasPrefix(name, "_"):
			logrus.Debugf("Ignoring deb member %s", name)
		case strings.HasPrefix(name, controlMember):
			ctrl, err = readControlArchive(ctx, reader, name)
			if err != nil {
				return nil, err
			}
		case strings.HasPrefix(name, dataMember):
			files, err = stageData(ctx, reader, name, arena)
			if err != nil {
				return nil, err
			}
		default:
			logrus.Debugf("Skipping unknown deb member %s", name)
		}
	}

	if first {
		return nil, models.NewFormatError(debianBinary, 0, fmt.Errorf("not a Debian package"))
	}
	if ctrl == nil || ctrl.control == nil {
		return nil, models.NewFormatError(controlMember, -1, fmt.Errorf("control file not found in package"))
	}
	if files == nil {
		return nil, models.NewFormatError(dataMember, -1, fmt.Errorf("data archive not found in package"))
	}

	pkg, err := packageFromControl(ctrl)
	if err != nil {
		return nil, err
	}
	pkg.Files = files

	if err := verifyMD5Sums(pkg, ctrl.md5sums); err != nil {
		return nil, models.WithPackage(err, pkg.Name)
	}
	classifyFiles(pkg, ctrl.conffiles)
	readChangelog(pkg, arena)
	pkg.SortFiles()

	logrus.Debugf("Read deb %s %s with %d files", pkg.Name, pkg.Version, len(pkg.Files))
	return pkg, nil
}

func checkFormatVersion(r io.Reader, offset int64) error {
	data, err := io.ReadAll(io.LimitReader(r, 64))
	if err != nil {
		return models.NewFormatError(debianBinary, offset, err)
	}
	version := strings.TrimSpace(string(data))
	major, _, _ := strings.Cut(version, ".")
	if major != "2" {
		return models.NewFormatError(debianBinary, offset, fmt.Errorf("unsupported format version %q", version))
	}
	return nil
}

// readControlArchive extracts the control file, checksums, conffiles and
// maintainer scripts from control.tar*
func readControlArchive(ctx context.Context, r io.Reader, member string) (*controlArchive, error) {
	dr, err := utils.NewDecompressReader(utils.CompressionFromName(member), r)
	if err != nil {
		return nil, models.NewFormatError(member, -1, err)
	}
	defer dr.Close()

	ctrl := &controlArchive{scripts: make(map[models.ScriptKind][]byte)}
	tarReader := tar.NewReader(dr)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, models.NewFormatError(member, -1, fmt.Errorf("corrupt archive: %w", err))
		}
		if header.Typeflag != tar.TypeReg && header.Typeflag != tar.TypeRegA {
			continue
		}

		name, err := models.NormalizePath(header.Name)
		if err != nil {
			return nil, models.NewFormatError(member, -1, err)
		}
		data, err := io.ReadAll(tarReader)
		if err != nil {
			return nil, models.NewFormatError(member, -1, fmt.Errorf("%s: %w", name, err))
		}

		switch name {
		case "control":
			ctrl.control = data
		case "md5sums":
			ctrl.md5sums = data
		case "conffiles":
			ctrl.conffiles = data
		default:
			if kind, ok := scriptFiles[name]; ok {
				ctrl.scripts[kind] = data
			}
		}
	}
	return ctrl, nil
}

func stageData(ctx context.Context, r io.Reader, member string, arena *staging.Arena) ([]models.FileEntry, error) {
	dr, err := utils.NewDecompressReader(utils.CompressionFromName(member), r)
	if err != nil {
		return nil, models.NewFormatError(member, -1, err)
	}
	defer dr.Close()

	files, err := codec.StageTar(ctx, tar.NewReader(dr), arena, member, nil)
	if err != nil {
		return nil, err
	}
	if files == nil {
		files = []models.FileEntry{}
	}
	return files, nil
}

func packageFromControl(ctrl *controlArchive) (*models.Package, error) {
	fields, err := parseControl(ctrl.control)
	if err != nil {
		return nil, models.NewFormatError("control", -1, err)
	}
	for _, key := range mandatoryFields {
		if strings.TrimSpace(fields.get(key)) == "" {
			return nil, models.NewFormatError(key, -1, fmt.Errorf("mandatory control field missing"))
		}
	}

	epoch, version, release, err := mapping.ParseDebVersion(fields.get(FieldVersion))
	if err != nil {
		return nil, models.NewFormatError(FieldVersion, -1, err)
	}
	summary, description := splitDescription(fields.get(FieldDescription))

	pkg := &models.Package{
		Name:         fields.get(FieldPackage),
		Version:      version,
		Release:      release,
		Epoch:        epoch,
		Architecture: mapping.ArchToCanonical(scanner.TypeDeb, fields.get(FieldArchitecture)),
		Summary:      summary,
		Description:  description,
		Maintainer:   fields.get(FieldMaintainer),
		Homepage:     fields.get(FieldHomepage),
		Group:        fields.get(FieldSection),
		SourceFormat: scanner.TypeDeb.String(),
	}

	relationFields := []struct {
		target *[]models.Relation
		keys   []string
	}{
		{&pkg.Depends, []string{FieldPreDepends, FieldDepends}},
		{&pkg.Conflicts, []string{FieldConflicts, FieldBreaks}},
		{&pkg.Provides, []string{FieldProvides}},
		{&pkg.Replaces, []string{FieldReplaces}},
	}
	for _, rf := range relationFields {
		for _, key := range rf.keys {
			if !fields.has(key) {
				continue
			}
			rels, err := mapping.ParseDebianRelations(strings.ReplaceAll(fields.get(key), "\n", " "))
			if err != nil {
				return nil, models.NewFormatError(key, -1, err)
			}
			*rf.target = append(*rf.target, rels...)
		}
	}

	for _, kind := range models.ScriptKinds {
		if body, ok := ctrl.scripts[kind]; ok {
			pkg.SetScript(kind, models.NewScript(string(body), "/bin/sh"))
		}
	}

	return pkg, nil
}

// verifyMD5Sums checks every "hash  path" line against the staged content
func verifyMD5Sums(pkg *models.Package, md5sums []byte) error {
	if md5sums == nil {
		return nil
	}
	scanner := bufio.NewScanner(bytes.NewReader(md5sums))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		sum, name, ok := strings.Cut(line, " ")
		if !ok {
			return models.NewFormatError("md5sums", -1, fmt.Errorf("malformed line %q", line))
		}
		path, err := models.NormalizePath(strings.TrimSpace(name))
		if err != nil {
			return models.NewFormatError("md5sums", -1, err)
		}
		entry, ok := pkg.File(path)
		if !ok {
			return models.NewFormatError("md5sums", -1, fmt.Errorf("%s is listed but not shipped", path))
		}
		if !entry.Kind.HasContent() {
			continue
		}
		if !strings.EqualFold(entry.Digest, sum) {
			return models.NewFormatError("md5sums", -1, fmt.Errorf("checksum mismatch for %s", path))
		}
	}
	return scanner.Err()
}

// classifyFiles marks conffiles and documentation
func classifyFiles(pkg *models.Package, conffiles []byte) {
	conf := make(map[string]bool)
	for _, line := range strings.Split(string(conffiles), "\n") {
		line = strings.TrimSpace(line)
		// dpkg may flag obsolete or removed conffiles after the path
		if fields := strings.Fields(line); len(fields) > 0 {
			if p, err := models.NormalizePath(fields[0]); err == nil {
				conf[p] = true
			}
		}
	}

	for i, f := range pkg.Files {
		if !f.Kind.HasContent() {
			continue
		}
		switch {
		case conf[f.Path]:
			pkg.Files[i].Kind = models.KindConfFile
		case strings.HasPrefix(f.Path, "usr/share/doc/"):
			pkg.Files[i].Kind = models.KindDocFile
		}
	}
}

func readChangelog(pkg *models.Package, arena *staging.Arena) {
	path := ChangelogPath(pkg.Name)
	if _, ok := pkg.File(path); !ok {
		return
	}
	data, err := arena.ReadFile(path)
	if err != nil {
		return
	}
	text, err := utils.GzipDecompress(data)
	if err != nil {
		logrus.Warnf("Ignoring unreadable changelog %s: %v", path, err)
		return
	}
	pkg.Changelog = parseChangelog(text)
}
