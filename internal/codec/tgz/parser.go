package tgz

import (
	"archive/tar"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ralt/pkgconv/internal/codec"
	"github.com/ralt/pkgconv/internal/mapping"
	"github.com/ralt/pkgconv/internal/models"
	"github.com/ralt/pkgconv/internal/scanner"
	"github.com/ralt/pkgconv/internal/staging"
	"github.com/ralt/pkgconv/internal/utils"
	"github.com/sirupsen/logrus"
)

const (
	installDir    = "install"
	slackDescFile = "slack-desc"
	defaultText   = "Converted tgz package"
)

// scriptNames maps install/ script names to their slots. doinst.sh is the
// only one Slackware runs; the others are carried for lossless round trips.
var scriptNames = map[string]models.ScriptKind{
	"predoinst.sh": models.PreInstall,
	"doinst.sh":    models.PostInstall,
	"predelete.sh": models.PreRemove,
	"delete.sh":    models.PostRemove,
}

// nameInfo is what a Slackware file name tells about its package
type nameInfo struct {
	Name    string
	Version string
	Arch    string
	Build   string
}

// parseFilename splits name-version-arch-build from the right
func parseFilename(base string) nameInfo {
	stem := strings.TrimSuffix(base, scanner.TgzSuffix(base))
	fields := strings.Split(stem, "-")
	n := len(fields)

	switch {
	case n >= 4:
		return nameInfo{
			Name:    strings.Join(fields[:n-3], "-"),
			Version: fields[n-3],
			Arch:    fields[n-2],
			Build:   fields[n-1],
		}
	case n >= 2:
		i := strings.LastIndex(stem, "-")
		return nameInfo{Name: stem[:i], Version: stem[i+1:], Arch: "noarch", Build: "1"}
	default:
		return nameInfo{Name: stem, Version: "1", Arch: "noarch", Build: "1"}
	}
}

// Read parses a Slackware package, staging its payload into arena.
func (c *Codec) Read(ctx context.Context, path string, arena *staging.Arena) (*models.Package, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, models.NewIOError("open package", err)
	}
	defer f.Close()

	base := filepath.Base(path)
	info := parseFilename(base)
	compression := utils.CompressionFromName(base)

	zr, err := utils.NewDecompressReader(compression, f)
	if err != nil {
		return nil, models.NewFormatError(string(compression), 0, err)
	}
	defer zr.Close()

	pkg := &models.Package{
		Name:         info.Name,
		Version:      info.Version,
		Release:      info.Build,
		Architecture: mapping.ArchToCanonical(scanner.TypeTgz, info.Arch),
		SourceFormat: scanner.TypeTgz.String(),
	}

	var slackDesc []byte
	intercept := func(p string, hdr *tar.Header, r io.Reader) (bool, error) {
		if p != installDir && !strings.HasPrefix(p, installDir+"/") {
			return false, nil
		}
		if hdr.Typeflag != tar.TypeReg && hdr.Typeflag != tar.TypeRegA {
			return true, nil
		}
		name := strings.TrimPrefix(p, installDir+"/")
		kind, isScript := scriptNames[name]
		if !isScript && name != slackDescFile {
			logrus.Debugf("Ignoring %s in %s", p, base)
			return true, nil
		}
		data, err := io.ReadAll(r)
		if err != nil {
			return false, models.NewFormatError(p, -1, err)
		}
		if isScript {
			pkg.SetScript(kind, models.NewScript(string(data), "/bin/sh"))
		} else {
			slackDesc = data
		}
		return true, nil
	}

	files, err := codec.StageTar(ctx, tar.NewReader(zr), arena, "tar", intercept)
	if err != nil {
		return nil, err
	}
	pkg.Files = classifyFiles(files)

	pkg.Summary, pkg.Description = parseSlackDesc(pkg.Name, slackDesc)
	if pkg.Summary == "" {
		pkg.Summary = defaultText
	}
	if pkg.Description == "" {
		pkg.Description = defaultText
	}

	pkg.SortFiles()
	logrus.Debugf("Read tgz %s: %s %s-%s, %d files", base, pkg.Name, pkg.Version, pkg.Release, len(pkg.Files))
	return pkg, nil
}

// classifyFiles marks etc/ files as conffiles and documentation as doc files
func classifyFiles(files []models.FileEntry) []models.FileEntry {
	for i, f := range files {
		if f.Kind != models.KindRegular {
			continue
		}
		switch {
		case strings.HasPrefix(f.Path, "etc/"):
			files[i].Kind = models.KindConfFile
		case strings.HasPrefix(f.Path, "usr/doc/"), strings.HasPrefix(f.Path, "usr/share/doc/"):
			files[i].Kind = models.KindDocFile
		}
	}
	return files
}

