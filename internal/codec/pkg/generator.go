// Package pkg reads and writes Solaris SVR4 packages in datastream form: a
// short text header followed by two cpio archives, one with pkginfo and
// pkgmap and one with the install scripts and the compressed class archive.
package pkg

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/cavaliergopher/cpio"
	"github.com/ralt/pkgconv/internal/codec"
	"github.com/ralt/pkgconv/internal/mapping"
	"github.com/ralt/pkgconv/internal/models"
	"github.com/ralt/pkgconv/internal/scanner"
	"github.com/ralt/pkgconv/internal/staging"
	"github.com/ralt/pkgconv/internal/utils"
	"github.com/sirupsen/logrus"
)

// classArchive holds every regular file of the "none" class
const classArchive = "archive/none.bz2"

// Codec implements codec.Codec for Solaris packages
type Codec struct {
	options codec.WriteOptions
}

// New creates a Solaris codec. Class archives are always bzip2.
func New(opts codec.WriteOptions) *Codec {
	return &Codec{options: opts}
}

// Type returns the package type this codec supports
func (c *Codec) Type() scanner.PackageType {
	return scanner.TypePkg
}

// Filename returns name-version.pkg
func (c *Codec) Filename(pkg *models.Package) string {
	return fmt.Sprintf("%s-%s.pkg", pkg.Name, pkg.Version)
}

// infoFile is an in-memory member of the package directory
type infoFile struct {
	name string
	data []byte
	mode cpio.FileMode
}

// Abbreviation returns the PKG instance name used for pkg
func Abbreviation(name string) string {
	abbr := mapping.PkgAbbreviation(name)
	if len(abbr) > mapping.MaxPkgAbbreviation {
		abbr = abbr[:mapping.MaxPkgAbbreviation]
	}
	return abbr
}

// Write serializes pkg as a datastream to w
func (c *Codec) Write(ctx context.Context, pkg *models.Package, arena *staging.Arena, w io.Writer) error {
	abbr := Abbreviation(pkg.Name)
	if abbr == "" {
		return models.NewEncodingError("name", fmt.Errorf("package name is empty"))
	}
	if pkg.Version == "" {
		return models.NewEncodingError("version", fmt.Errorf("package version is empty"))
	}

	mtime := pkg.BuildTime
	if mtime.IsZero() {
		mtime = time.Now()
	}

	pkginfo, err := renderPkginfo(pkg, abbr, "pkgconv"+mtime.UTC().Format("20060102150405"))
	if err != nil {
		return err
	}
	install := installFiles(pkg)

	archive, err := os.CreateTemp(arena.Dir(), "class-*.cpio.bz2")
	if err != nil {
		return models.NewIOError("create class archive", err)
	}
	defer func() {
		archive.Close()
		os.Remove(archive.Name())
	}()

	objects, err := writeClassArchive(ctx, archive, pkg, arena, mtime)
	if err != nil {
		return err
	}

	infoEntries := []mapEntry{infoEntry("pkginfo", pkginfo, mtime)}
	for _, f := range install {
		infoEntries = append(infoEntries, infoEntry(f.name, f.data, mtime))
	}
	pkgmap := renderPkgmap(append(objects, infoEntries...))

	archiveInfo, err := archive.Stat()
	if err != nil {
		return models.NewIOError("stat class archive", err)
	}
	if _, err := archive.Seek(0, io.SeekStart); err != nil {
		return models.NewIOError("rewind class archive", err)
	}

	var total int64
	for _, e := range objects {
		total += blocks(e.Size)
	}
	total += blocks(int64(len(pkginfo))) + blocks(int64(len(pkgmap))) + blocks(archiveInfo.Size())

	cw := &countingWriter{w: w}
	if err := writeHeader(cw, headerEntry{Inst: abbr, Parts: 1, MaxSize: total}); err != nil {
		return models.NewIOError("write datastream", err)
	}

	first := []infoFile{{abbr + "/pkginfo", pkginfo, 0644}, {abbr + "/pkgmap", pkgmap, 0644}}
	if err := writeArchive(cw, first, nil, "", 0, mtime); err != nil {
		return err
	}

	var second []infoFile
	for _, f := range install {
		second = append(second, infoFile{abbr + "/install/" + f.name, f.data, f.mode})
	}
	if err := writeArchive(cw, second, archive, abbr+"/"+classArchive, archiveInfo.Size(), mtime); err != nil {
		return err
	}

	logrus.Debugf("Wrote pkg %s (%s) with %d objects", c.Filename(pkg), abbr, len(objects))
	return nil
}

// installFiles returns the members of install/, sorted by name
func installFiles(pkg *models.Package) []infoFile {
	var files []infoFile
	if pkg.License != "" {
		files = append(files, infoFile{"copyright", []byte(strings.TrimRight(pkg.License, "\n") + "\n"), 0644})
	}
	if hasRelations(pkg) {
		files = append(files, infoFile{"depend", renderDepend(pkg), 0644})
	}
	for name, kind := range scriptFiles {
		if s, ok := pkg.Script(kind); ok && !s.Empty() {
			files = append(files, infoFile{name, []byte(s.Body), 0755})
		}
	}
	sort.Slice(files, func(i, j int) bool { return files[i].name < files[j].name })
	return files
}

func infoEntry(name string, data []byte, mtime time.Time) mapEntry {
	sum, size, _ := utils.SVR4Sum(bytes.NewReader(data))
	return mapEntry{Type: 'i', Path: name, Size: size, Sum: sum, MTime: mtime.Unix()}
}

// writeClassArchive writes the bzip2 cpio of regular files to dst and returns
// the pkgmap entries of the whole manifest
func writeClassArchive(ctx context.Context, dst io.Writer, pkg *models.Package, arena *staging.Arena, mtime time.Time) ([]mapEntry, error) {
	zw, err := utils.NewCompressWriter(utils.CompressionBzip2, dst)
	if err != nil {
		return nil, models.NewIOError("write class archive", err)
	}
	cw := cpio.NewWriter(zw)

	var entries []mapEntry
	for _, f := range pkg.Files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if strings.ContainsAny(f.Path, " \t\n=") {
			return nil, models.NewEncodingError("path", fmt.Errorf("%q cannot be listed in pkgmap", f.Path))
		}
		f = f.DefaultOwner()
		e := mapEntry{Class: "none", Path: f.Path, Mode: f.Mode & 07777, Owner: f.Owner, Group: f.Group}
		fileTime := f.ModTime
		if fileTime.IsZero() {
			fileTime = mtime
		}
		e.MTime = fileTime.Unix()

		switch f.Kind {
		case models.KindDirectory:
			e.Type = 'd'
		case models.KindSymlink:
			if strings.ContainsAny(f.LinkTarget, " \t\n") {
				return nil, models.NewEncodingError("symlink", fmt.Errorf("%q cannot be listed in pkgmap", f.LinkTarget))
			}
			e.Type = 's'
			e.Target = f.LinkTarget
		default:
			e.Type = 'f'
			if f.Kind == models.KindConfFile {
				e.Type = 'e'
			}
			if e.Size, e.Sum, err = addClassFile(cw, arena, f.Path, e.Mode, fileTime); err != nil {
				return nil, err
			}
		}
		entries = append(entries, e)
	}

	if err := cw.Close(); err != nil {
		return nil, models.NewIOError("write class archive", err)
	}
	if err := zw.Close(); err != nil {
		return nil, models.NewIOError("write class archive", err)
	}
	return entries, nil
}

// addClassFile copies one staged file into the class archive and returns its
// size and SVR4 checksum
func addClassFile(cw *cpio.Writer, arena *staging.Arena, p string, mode uint32, mtime time.Time) (int64, uint32, error) {
	src, err := arena.Open(p)
	if err != nil {
		return 0, 0, err
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return 0, 0, models.NewIOError("stat staged "+p, err)
	}
	hdr := &cpio.Header{
		Name:    p,
		Mode:    cpio.TypeReg | cpio.FileMode(mode),
		Size:    info.Size(),
		ModTime: mtime,
	}
	if err := cw.WriteHeader(hdr); err != nil {
		return 0, 0, models.NewIOError("write class archive", err)
	}
	sum, n, err := utils.SVR4Sum(io.TeeReader(src, cw))
	if err != nil {
		return 0, 0, models.NewIOError("write class archive", err)
	}
	return n, sum, nil
}

// writeArchive writes in-memory members, then optionally one streamed member,
// as a cpio archive padded to the block size
func writeArchive(cw *countingWriter, files []infoFile, extra io.Reader, extraName string, extraSize int64, mtime time.Time) error {
	w := cpio.NewWriter(cw)
	for _, f := range files {
		hdr := &cpio.Header{Name: f.name, Mode: cpio.TypeReg | f.mode, Size: int64(len(f.data)), ModTime: mtime}
		if err := w.WriteHeader(hdr); err != nil {
			return models.NewIOError("write datastream", err)
		}
		if _, err := w.Write(f.data); err != nil {
			return models.NewIOError("write datastream", err)
		}
	}
	if extra != nil {
		hdr := &cpio.Header{Name: extraName, Mode: cpio.TypeReg | 0644, Size: extraSize, ModTime: mtime}
		if err := w.WriteHeader(hdr); err != nil {
			return models.NewIOError("write datastream", err)
		}
		if _, err := io.Copy(w, extra); err != nil {
			return models.NewIOError("write datastream", err)
		}
	}
	if err := w.Close(); err != nil {
		return models.NewIOError("write datastream", err)
	}
	if err := cw.align(); err != nil {
		return models.NewIOError("write datastream", err)
	}
	return nil
}
