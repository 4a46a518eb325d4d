// Package rpm reads RPM packages with go-rpmutils and writes them with rpmpack.
// LSB packages are RPMs with an "lsb-" name prefix and a dependency on lsb.
package rpm

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/rpmpack"
	"github.com/ralt/pkgconv/internal/codec"
	"github.com/ralt/pkgconv/internal/mapping"
	"github.com/ralt/pkgconv/internal/models"
	"github.com/ralt/pkgconv/internal/scanner"
	"github.com/ralt/pkgconv/internal/staging"
	"github.com/ralt/pkgconv/internal/utils"
	"github.com/sirupsen/logrus"
)

// Codec implements codec.Codec for RPM and LSB packages
type Codec struct {
	options codec.WriteOptions
	lsb     bool
}

// New creates an RPM codec
func New(opts codec.WriteOptions) *Codec {
	return &Codec{options: opts}
}

// NewLSB creates a codec for LSB packages
func NewLSB(opts codec.WriteOptions) *Codec {
	return &Codec{options: opts, lsb: true}
}

// Type returns the package type this codec supports
func (c *Codec) Type() scanner.PackageType {
	if c.lsb {
		return scanner.TypeLsb
	}
	return scanner.TypeRpm
}

// Filename returns name-version-release.arch.rpm
func (c *Codec) Filename(pkg *models.Package) string {
	return fmt.Sprintf("%s-%s-%s.%s.rpm", pkg.Name, pkg.Version, pkg.Release, mapping.ArchFromCanonical(scanner.TypeRpm, pkg.Architecture))
}

// Write serializes pkg as an RPM to w
func (c *Codec) Write(ctx context.Context, pkg *models.Package, arena *staging.Arena, w io.Writer) error {
	compression, err := utils.ParseCompression(c.options.Compression)
	if err != nil {
		return models.NewEncodingError("compression", err)
	}
	if compression == utils.CompressionBzip2 || compression == utils.CompressionNone {
		compression = utils.CompressionGzip
	}

	meta, err := metadata(pkg, compression)
	if err != nil {
		return err
	}

	r, err := rpmpack.NewRPM(meta)
	if err != nil {
		return models.NewEncodingError("header", err)
	}

	for _, f := range pkg.Files {
		if err := ctx.Err(); err != nil {
			return err
		}
		file, err := rpmFile(f, arena)
		if err != nil {
			return err
		}
		r.AddFile(file)
	}

	scripts := []struct {
		kind models.ScriptKind
		add  func(string)
	}{
		{models.PreInstall, r.AddPrein},
		{models.PostInstall, r.AddPostin},
		{models.PreRemove, r.AddPreun},
		{models.PostRemove, r.AddPostun},
	}
	for _, s := range scripts {
		if script, ok := pkg.Script(s.kind); ok {
			s.add(script.Body)
		}
	}

	if c.options.Signer != nil {
		r.SetPGPSigner(func(data []byte) ([]byte, error) {
			sig, err := c.options.Signer.SignDetachedBinary(data)
			if err != nil {
				return nil, &models.ConversionError{Type: models.ErrSigning, Field: "signature", Offset: -1, Err: err}
			}
			return sig, nil
		})
	}

	if err := r.Write(w); err != nil {
		if models.IsErrorType(err, models.ErrSigning) {
			return err
		}
		return models.NewIOError("write rpm", err)
	}

	logrus.Debugf("Wrote rpm %s with %s payload", c.Filename(pkg), compression)
	return nil
}

func metadata(pkg *models.Package, compression utils.Compression) (rpmpack.RPMMetaData, error) {
	if strings.ContainsAny(pkg.Version, "- ") {
		return rpmpack.RPMMetaData{}, models.NewEncodingError("version", fmt.Errorf("%q contains characters RPM reserves", pkg.Version))
	}
	if strings.ContainsAny(pkg.Release, "- ") {
		return rpmpack.RPMMetaData{}, models.NewEncodingError("release", fmt.Errorf("%q contains characters RPM reserves", pkg.Release))
	}

	buildTime := pkg.BuildTime
	if buildTime.IsZero() {
		buildTime = time.Now()
	}
	description := pkg.Description
	if strings.TrimSpace(description) == "" {
		description = pkg.SummaryLine()
	}
	license := pkg.License
	if license == "" {
		license = "unknown"
	}

	meta := rpmpack.RPMMetaData{
		Name:        pkg.Name,
		Version:     pkg.Version,
		Release:     pkg.Release,
		Arch:        mapping.ArchFromCanonical(scanner.TypeRpm, pkg.Architecture),
		OS:          "linux",
		Summary:     pkg.SummaryLine(),
		Description: description,
		Packager:    pkg.Maintainer,
		URL:         pkg.Homepage,
		Licence:     license,
		Group:       pkg.Group,
		BuildTime:   buildTime,
		Compressor:  string(compression),
	}
	if pkg.Epoch != nil {
		meta.Epoch = uint32(*pkg.Epoch)
	}

	var suggests rpmpack.Relations
	sets := []struct {
		kind   models.RelationKind
		rels   []models.Relation
		target *rpmpack.Relations
	}{
		{models.RelDepends, pkg.Depends, &meta.Requires},
		{models.RelConflicts, pkg.Conflicts, &meta.Conflicts},
		{models.RelProvides, pkg.Provides, &meta.Provides},
		{models.RelReplaces, pkg.Replaces, &meta.Obsoletes},
	}
	for _, set := range sets {
		for _, rel := range set.rels {
			target := set.target
			if rel.Informational {
				// Suggests is a positive hint; only dependencies fit it
				if set.kind != models.RelDepends {
					logrus.Warnf("Dropping informational %s %s from %s", set.kind, rel, pkg.Name)
					continue
				}
				target = &suggests
			}
			if err := addRelation(target, rel); err != nil {
				return meta, err
			}
		}
	}
	meta.Suggests = suggests
	return meta, nil
}

var rpmOperators = map[models.Operator]string{
	models.OpLess:         "<",
	models.OpLessEqual:    "<=",
	models.OpEqual:        "=",
	models.OpGreaterEqual: ">=",
	models.OpGreater:      ">",
}

func addRelation(rels *rpmpack.Relations, rel models.Relation) error {
	text := rel.Name
	if rel.Versioned() {
		text = fmt.Sprintf("%s %s %s", rel.Name, rpmOperators[rel.Op], rel.Version)
	}
	r, err := rpmpack.NewRelation(text)
	if err != nil {
		return models.NewEncodingError("relation", fmt.Errorf("%s: %w", text, err))
	}
	*rels = append(*rels, r)
	return nil
}

// rpmFile converts a manifest entry; modes carry the file type bits rpm expects
func rpmFile(f models.FileEntry, arena *staging.Arena) (rpmpack.RPMFile, error) {
	f = f.DefaultOwner()
	file := rpmpack.RPMFile{
		Name:  "/" + f.Path,
		Owner: f.Owner,
		Group: f.Group,
		MTime: uint32(f.ModTime.Unix()),
	}
	if f.ModTime.IsZero() {
		file.MTime = 0
	}

	switch f.Kind {
	case models.KindDirectory:
		file.Mode = uint(modeDir | f.Mode&07777)
	case models.KindSymlink:
		if f.LinkTarget == "" {
			return file, models.NewEncodingError("symlink", fmt.Errorf("%s has no target", f.Path))
		}
		file.Mode = uint(modeSymlink | 0777)
		file.Body = []byte(f.LinkTarget)
	default:
		body, err := arena.ReadFile(f.Path)
		if err != nil {
			return file, err
		}
		file.Mode = uint(modeRegular | f.Mode&07777)
		file.Body = body
		switch f.Kind {
		case models.KindConfFile:
			file.Type = rpmpack.ConfigFile
		case models.KindDocFile:
			file.Type = rpmpack.DocFile
		default:
			file.Type = rpmpack.GenericFile
		}
	}
	return file, nil
}
