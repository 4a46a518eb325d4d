// Package tgz reads and writes Slackware packages: compressed tarballs with
// an install/ directory holding slack-desc and doinst.sh.
package tgz

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ralt/pkgconv/internal/codec"
	"github.com/ralt/pkgconv/internal/mapping"
	"github.com/ralt/pkgconv/internal/models"
	"github.com/ralt/pkgconv/internal/scanner"
	"github.com/ralt/pkgconv/internal/staging"
	"github.com/ralt/pkgconv/internal/utils"
	"github.com/sirupsen/logrus"
)

// Codec implements codec.Codec for Slackware packages
type Codec struct {
	options codec.WriteOptions
}

// New creates a Slackware codec. Output is always gzip; Compression is ignored.
func New(opts codec.WriteOptions) *Codec {
	return &Codec{options: opts}
}

// Type returns the package type this codec supports
func (c *Codec) Type() scanner.PackageType {
	return scanner.TypeTgz
}

// Filename returns name-version-arch-build.tgz
func (c *Codec) Filename(pkg *models.Package) string {
	build := pkg.Release
	if build == "" {
		build = "1"
	}
	return fmt.Sprintf("%s-%s-%s-%s.tgz", pkg.Name, pkg.Version, mapping.ArchFromCanonical(scanner.TypeTgz, pkg.Architecture), build)
}

// Write serializes pkg as a gzip tarball to w
func (c *Codec) Write(ctx context.Context, pkg *models.Package, arena *staging.Arena, w io.Writer) error {
	for _, f := range pkg.Files {
		if f.Path == installDir || strings.HasPrefix(f.Path, installDir+"/") {
			return models.NewEncodingError("path", fmt.Errorf("%s collides with the package metadata directory", f.Path))
		}
	}

	mtime := pkg.BuildTime
	if mtime.IsZero() {
		mtime = time.Now()
	}

	zw, err := utils.NewCompressWriter(utils.CompressionGzip, w)
	if err != nil {
		return models.NewIOError("write tgz", err)
	}
	tw := tar.NewWriter(zw)

	if err := writeInstallDir(tw, pkg, mtime); err != nil {
		return err
	}
	layout := codec.TarLayout{ModTime: mtime}
	if err := codec.WriteTar(ctx, tw, pkg, arena, layout); err != nil {
		return err
	}

	if err := tw.Close(); err != nil {
		return models.NewIOError("write tgz", err)
	}
	if err := zw.Close(); err != nil {
		return models.NewIOError("write tgz", err)
	}

	logrus.Debugf("Wrote tgz %s", c.Filename(pkg))
	return nil
}

// writeInstallDir writes the root entry followed by install/ and its contents
func writeInstallDir(tw *tar.Writer, pkg *models.Package, mtime time.Time) error {
	for _, dir := range []string{"./", installDir + "/"} {
		hdr := &tar.Header{
			Typeflag: tar.TypeDir,
			Name:     dir,
			Mode:     0755,
			Uname:    "root",
			Gname:    "root",
			ModTime:  mtime,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return models.NewIOError("write tgz", err)
		}
	}

	desc := renderSlackDesc(pkg.Name, pkg.SummaryLine(), pkg.Description)
	if err := codec.AddTarBytes(tw, installDir+"/"+slackDescFile, desc, 0644, mtime); err != nil {
		return err
	}

	for _, name := range []string{"predoinst.sh", "doinst.sh", "predelete.sh", "delete.sh"} {
		script, ok := pkg.Script(scriptNames[name])
		if !ok || script.Empty() {
			continue
		}
		if err := codec.AddTarBytes(tw, installDir+"/"+name, []byte(script.Body), 0755, mtime); err != nil {
			return err
		}
	}
	return nil
}
