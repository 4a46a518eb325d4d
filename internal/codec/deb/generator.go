// Package deb reads and writes Debian binary packages.
package deb

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/blakesmith/ar"
	"github.com/ralt/pkgconv/internal/codec"
	"github.com/ralt/pkgconv/internal/mapping"
	"github.com/ralt/pkgconv/internal/models"
	"github.com/ralt/pkgconv/internal/scanner"
	"github.com/ralt/pkgconv/internal/staging"
	"github.com/ralt/pkgconv/internal/utils"
	"github.com/sirupsen/logrus"
)

// Codec implements codec.Codec for .deb files
type Codec struct {
	options codec.WriteOptions
}

// New creates a Debian codec
func New(opts codec.WriteOptions) *Codec {
	return &Codec{options: opts}
}

// Type returns the package type this codec supports
func (c *Codec) Type() scanner.PackageType {
	return scanner.TypeDeb
}

// Filename returns name_version[-release]_arch.deb; the epoch is never part of it.
func (c *Codec) Filename(pkg *models.Package) string {
	return fmt.Sprintf("%s_%s_%s.deb", pkg.Name, mapping.FormatDebVersion(nil, pkg.Version, pkg.Release), pkg.Architecture)
}

// Write serializes pkg as a .deb to w
func (c *Codec) Write(ctx context.Context, pkg *models.Package, arena *staging.Arena, w io.Writer) error {
	compression, err := utils.ParseCompression(c.options.Compression)
	if err != nil {
		return models.NewEncodingError("compression", err)
	}
	if compression == utils.CompressionBzip2 || compression == utils.CompressionNone {
		compression = utils.CompressionGzip
	}

	if c.options.Changelog && len(pkg.Changelog) > 0 {
		pkg, err = withChangelog(pkg, arena)
		if err != nil {
			return err
		}
	}

	mtime := pkg.BuildTime
	if mtime.IsZero() {
		mtime = time.Now()
	}

	controlData, err := buildControlArchive(pkg, mtime)
	if err != nil {
		return err
	}

	dataName := dataMember + compression.Extension()
	dataFile, err := os.CreateTemp(arena.Dir(), "data-*.tar")
	if err != nil {
		return models.NewIOError("create data archive", err)
	}
	defer func() {
		dataFile.Close()
		os.Remove(dataFile.Name())
	}()
	if err := buildDataArchive(ctx, pkg, arena, compression, dataFile, mtime); err != nil {
		return err
	}
	dataSize, err := dataFile.Seek(0, io.SeekCurrent)
	if err != nil {
		return models.NewIOError("write data archive", err)
	}

	var signature []byte
	if c.options.Signer != nil {
		signature, err = signMembers(c.options.Signer, controlData, dataFile)
		if err != nil {
			return err
		}
	}

	if _, err := dataFile.Seek(0, io.SeekStart); err != nil {
		return models.NewIOError("write data archive", err)
	}

	writer := ar.NewWriter(w)
	if err := writer.WriteGlobalHeader(); err != nil {
		return models.NewIOError("write ar header", err)
	}
	if err := addBufferToAr(writer, debianBinary, []byte("2.0\n"), mtime); err != nil {
		return err
	}
	if err := addBufferToAr(writer, controlMember+".gz", controlData, mtime); err != nil {
		return err
	}
	header := &ar.Header{
		Name:    dataName,
		Size:    dataSize,
		Mode:    0644,
		ModTime: mtime,
	}
	if err := writer.WriteHeader(header); err != nil {
		return models.NewIOError("write ar header", err)
	}
	if _, err := io.Copy(writer, dataFile); err != nil {
		return models.NewIOError("write "+dataName, err)
	}
	if signature != nil {
		if err := addBufferToAr(writer, signatureEntry, signature, mtime); err != nil {
			return err
		}
	}

	logrus.Debugf("Wrote deb %s with %s payload", c.Filename(pkg), compression)
	return nil
}

// addBufferToAr writes a named byte slice as a file entry to the AR archive.
func addBufferToAr(w *ar.Writer, name string, body []byte, mtime time.Time) error {
	header := &ar.Header{
		Name:    name,
		Size:    int64(len(body)),
		Mode:    0644,
		ModTime: mtime,
	}
	if err := w.WriteHeader(header); err != nil {
		return models.NewIOError("write ar header", err)
	}
	if _, err := w.Write(body); err != nil {
		return models.NewIOError("write "+name, err)
	}
	return nil
}

type tarMember struct {
	name string
	data []byte
	mode int64
}

// buildControlArchive creates control.tar.gz
func buildControlArchive(pkg *models.Package, mtime time.Time) ([]byte, error) {
	if strings.TrimSpace(pkg.Maintainer) == "" {
		return nil, models.NewEncodingError(FieldMaintainer, fmt.Errorf("maintainer is required for Debian packages"))
	}
	if pkg.SummaryLine() == "" {
		return nil, models.NewEncodingError(FieldDescription, fmt.Errorf("summary is required for Debian packages"))
	}

	var buf bytes.Buffer
	gz, err := utils.NewCompressWriter(utils.CompressionGzip, &buf)
	if err != nil {
		return nil, models.NewIOError("compress control archive", err)
	}
	tw := tar.NewWriter(gz)

	version := mapping.FormatDebVersion(pkg.Epoch, pkg.Version, pkg.Release)
	members := []tarMember{
		{"./control", renderControl(pkg, version), 0644},
		{"./md5sums", renderMD5Sums(pkg), 0644},
	}
	if conf := pkg.ConfFiles(); len(conf) > 0 {
		var b strings.Builder
		for _, p := range conf {
			b.WriteString("/" + p + "\n")
		}
		members = append(members, tarMember{"./conffiles", []byte(b.String()), 0644})
	}
	for _, name := range []string{"preinst", "postinst", "prerm", "postrm"} {
		if s, ok := pkg.Script(scriptFiles[name]); ok {
			members = append(members, tarMember{"./" + name, []byte(s.Body), 0755})
		}
	}

	dir := &tar.Header{Typeflag: tar.TypeDir, Name: "./", Mode: 0755, Uname: "root", Gname: "root", ModTime: mtime}
	if err := tw.WriteHeader(dir); err != nil {
		return nil, models.NewIOError("write control archive", err)
	}
	for _, m := range members {
		if err := codec.AddTarBytes(tw, m.name, m.data, m.mode, mtime); err != nil {
			return nil, err
		}
	}
	if err := tw.Close(); err != nil {
		return nil, models.NewIOError("write control archive", err)
	}
	if err := gz.Close(); err != nil {
		return nil, models.NewIOError("compress control archive", err)
	}
	return buf.Bytes(), nil
}

// renderMD5Sums lists "hash  path" for every file with content, sorted by path
func renderMD5Sums(pkg *models.Package) []byte {
	var files []models.FileEntry
	for _, f := range pkg.Files {
		if f.Kind.HasContent() {
			files = append(files, f)
		}
	}
	sort.Slice(files, func(i, j int) bool {
		return files[i].Path < files[j].Path
	})
	var b bytes.Buffer
	for _, f := range files {
		fmt.Fprintf(&b, "%s  %s\n", f.Digest, f.Path)
	}
	return b.Bytes()
}

func buildDataArchive(ctx context.Context, pkg *models.Package, arena *staging.Arena, compression utils.Compression, w io.Writer, mtime time.Time) error {
	cw, err := utils.NewCompressWriter(compression, w)
	if err != nil {
		return models.NewIOError("compress data archive", err)
	}
	tw := tar.NewWriter(cw)
	layout := codec.TarLayout{Prefix: "./", RootEntry: true, ModTime: mtime}
	if err := codec.WriteTar(ctx, tw, pkg, arena, layout); err != nil {
		return err
	}
	if err := tw.Close(); err != nil {
		return models.NewIOError("write data archive", err)
	}
	if err := cw.Close(); err != nil {
		return models.NewIOError("compress data archive", err)
	}
	return nil
}

// signMembers signs debian-binary, the control archive and the data archive
// concatenated, the input dpkg-sig and debsig-verify expect for _gpgorigin.
func signMembers(signer codec.Signer, controlData []byte, data io.ReadSeeker) ([]byte, error) {
	if _, err := data.Seek(0, io.SeekStart); err != nil {
		return nil, models.NewIOError("read data archive", err)
	}
	var buf bytes.Buffer
	buf.WriteString("2.0\n")
	buf.Write(controlData)
	if _, err := io.Copy(&buf, data); err != nil {
		return nil, models.NewIOError("read data archive", err)
	}
	sig, err := signer.SignDetachedBinary(buf.Bytes())
	if err != nil {
		return nil, &models.ConversionError{Type: models.ErrSigning, Field: signatureEntry, Offset: -1, Err: err}
	}
	return sig, nil
}

// withChangelog stages changelog.Debian.gz and returns a copy of pkg that ships it
func withChangelog(pkg *models.Package, arena *staging.Arena) (*models.Package, error) {
	path := ChangelogPath(pkg.Name)
	if _, ok := pkg.File(path); ok {
		return pkg, nil
	}
	data, err := utils.GzipCompress(renderChangelog(pkg.Name, pkg.Changelog, pkg.Maintainer))
	if err != nil {
		return nil, models.NewIOError("compress changelog", err)
	}
	sum, n, err := arena.Stage(path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	out := pkg.Clone()
	out.Files = append(out.Files, models.FileEntry{
		Path:    path,
		Mode:    0644,
		Owner:   "root",
		Group:   "root",
		Size:    n,
		Kind:    models.KindDocFile,
		Digest:  sum,
		ModTime: pkg.BuildTime,
	})
	out.SortFiles()
	return out, nil
}
