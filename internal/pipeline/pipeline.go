// Package pipeline drives one conversion from a source package file to a
// published target package: detect, stage, read, filter, map, translate
// scripts, validate, write and publish.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/ralt/pkgconv/internal/codec"
	"github.com/ralt/pkgconv/internal/mapping"
	"github.com/ralt/pkgconv/internal/models"
	"github.com/ralt/pkgconv/internal/scanner"
	"github.com/ralt/pkgconv/internal/scripts"
	"github.com/ralt/pkgconv/internal/staging"
	"github.com/ralt/pkgconv/internal/utils"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const filterStage = "filter"

// Signer signs converted packages. Deb and RPM embed the signature; the
// other formats get an armored detached signature next to the package.
type Signer interface {
	codec.Signer
	// SignDetachedArmored writes an armored detached signature of message to w
	SignDetachedArmored(w io.Writer, message io.Reader) error
}

// Request describes one conversion
type Request struct {
	InputPath string
	// SourceType is detected from the file when TypeUnknown
	SourceType scanner.PackageType
	TargetType scanner.PackageType
	OutputDir  string
	Options    models.ConversionOptions
}

// Result describes a published package
type Result struct {
	OutputPath string
	// SignaturePath is set when a detached signature was published
	SignaturePath string
	Package       *models.Package
	Warnings      []models.Warning
	// Checksum is the hex SHA-256 of the published package
	Checksum string
}

// Pipeline converts packages. It holds no per-conversion state and is safe
// for concurrent use.
type Pipeline struct {
	stagingDir string
	signer     Signer
	now        func() time.Time
}

// New creates a pipeline whose arenas live below stagingDir (the system temp
// dir when empty). signer may be nil.
func New(stagingDir string, signer Signer) *Pipeline {
	return &Pipeline{stagingDir: stagingDir, signer: signer, now: time.Now}
}

// Convert runs one conversion. Nothing is published unless every stage succeeds.
func (p *Pipeline) Convert(ctx context.Context, req Request) (*Result, error) {
	log := logrus.WithFields(logrus.Fields{"input": req.InputPath, "target": req.TargetType.String()})

	if req.OutputDir == "" {
		return nil, &models.ConversionError{Type: models.ErrInvalidConfig, Offset: -1, Err: fmt.Errorf("output directory is required")}
	}
	source, err := detect(req.InputPath, req.SourceType)
	if err != nil {
		return nil, err
	}
	reader, err := CodecFor(source, codec.WriteOptions{})
	if err != nil {
		return nil, err
	}
	writer, err := CodecFor(req.TargetType, p.writeOptions(req.Options))
	if err != nil {
		return nil, err
	}

	arena, err := staging.New(p.stagingDir)
	if err != nil {
		return nil, err
	}
	defer arena.Close()

	log.Debugf("Reading %s package", source)
	pkg, err := reader.Read(ctx, req.InputPath, arena)
	if err != nil {
		return nil, models.WithPackage(err, filepath.Base(req.InputPath))
	}
	log = log.WithField("package", pkg.Name)

	var warnings []models.Warning
	collect := func(w []models.Warning) {
		warnings = append(warnings, w...)
	}

	filtered, w, err := filterFiles(pkg, arena, req.Options.Exclude)
	if err != nil {
		return nil, models.WithPackage(err, pkg.Name)
	}
	pkg = filtered
	collect(w)

	log.Debug("Mapping metadata")
	pkg, w = applyMetadata(pkg, source, req.TargetType, req.Options)
	collect(w)
	pkg, w, err = mapping.NameVersionMapper{
		Target:       req.TargetType,
		Architecture: req.Options.Architecture,
		Bump:         req.Options.Bump,
	}.Apply(pkg)
	if err != nil {
		return nil, models.WithPackage(err, filepath.Base(req.InputPath))
	}
	collect(w)
	pkg, w = mapping.DependencyMapper{Source: source, Target: req.TargetType}.Apply(pkg)
	collect(w)
	if req.Options.Generates(models.GenerateChangelog) {
		pkg = addChangelogEntry(pkg, source, p.now())
	}

	log.Debug("Translating scripts")
	pkg, w = scripts.Translator{Target: req.TargetType, Policy: req.Options.Scripts}.Apply(pkg)
	collect(w)

	if err := validate(pkg, req.TargetType); err != nil {
		return nil, models.WithPackage(err, pkg.Name)
	}

	name := writer.Filename(pkg)
	log.Debugf("Writing %s", name)
	if err := write(ctx, writer, pkg, arena, name); err != nil {
		return nil, models.WithPackage(err, pkg.Name)
	}

	checksum, err := outputChecksum(arena, name)
	if err != nil {
		return nil, err
	}

	var sigName string
	if p.signer != nil && !embedsSignature(req.TargetType) {
		sigName = name + ".asc"
		if err := p.signDetached(arena, name, sigName); err != nil {
			return nil, models.WithPackage(err, pkg.Name)
		}
	}

	// a package is never published without its signature
	result := &Result{Package: pkg, Warnings: warnings, Checksum: checksum}
	if sigName != "" {
		if result.SignaturePath, err = arena.Publish(sigName, req.OutputDir); err != nil {
			return nil, err
		}
	}
	if result.OutputPath, err = arena.Publish(name, req.OutputDir); err != nil {
		if result.SignaturePath != "" {
			if rmErr := os.Remove(result.SignaturePath); rmErr != nil {
				log.Warnf("Could not remove orphaned signature %s: %v", result.SignaturePath, rmErr)
			}
		}
		return nil, err
	}

	for _, w := range warnings {
		log.Warn(w.String())
	}
	log.Infof("Converted %s to %s", filepath.Base(req.InputPath), result.OutputPath)
	return result, nil
}

// Inspect reads a package without converting it
func (p *Pipeline) Inspect(ctx context.Context, path string, t scanner.PackageType) (*models.Package, error) {
	source, err := detect(path, t)
	if err != nil {
		return nil, err
	}
	reader, err := CodecFor(source, codec.WriteOptions{})
	if err != nil {
		return nil, err
	}
	arena, err := staging.New(p.stagingDir)
	if err != nil {
		return nil, err
	}
	defer arena.Close()

	pkg, err := reader.Read(ctx, path, arena)
	if err != nil {
		return nil, models.WithPackage(err, filepath.Base(path))
	}
	return pkg, nil
}

// ConvertAll runs independent conversions on at most workers goroutines.
// Results keep the order of reqs; a failed conversion leaves a nil result and
// does not stop the others. All errors are joined.
func (p *Pipeline) ConvertAll(ctx context.Context, reqs []Request, workers int) ([]*Result, error) {
	if workers < 1 {
		workers = 1
	}
	results := make([]*Result, len(reqs))
	errs := make([]error, len(reqs))

	var g errgroup.Group
	g.SetLimit(workers)
	for i, req := range reqs {
		g.Go(func() error {
			res, err := p.Convert(ctx, req)
			if err != nil {
				errs[i] = fmt.Errorf("%s to %s: %w", req.InputPath, req.TargetType, err)
				return nil
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	warnDuplicates(reqs, results)
	return results, errors.Join(errs...)
}

// warnDuplicates logs packages that converted to the same identity, since the
// later one overwrites the earlier in a shared output directory
func warnDuplicates(reqs []Request, results []*Result) {
	byType := make(map[scanner.PackageType][]*models.Package)
	for i, res := range results {
		if res != nil {
			byType[reqs[i].TargetType] = append(byType[reqs[i].TargetType], res.Package)
		}
	}
	for t, pkgs := range byType {
		for _, id := range utils.DetectConflicts(pkgs, t) {
			logrus.Warnf("Several inputs converted to the same %s package %s", t, id)
		}
	}
}

func (p *Pipeline) writeOptions(opts models.ConversionOptions) codec.WriteOptions {
	wo := codec.WriteOptions{
		Compression: opts.Compression,
		Changelog:   opts.Generates(models.GenerateChangelog),
	}
	if p.signer != nil {
		wo.Signer = p.signer
	}
	return wo
}

// detect returns t, or the type sniffed from the file when t is unknown
func detect(path string, t scanner.PackageType) (scanner.PackageType, error) {
	if t != scanner.TypeUnknown {
		return t, nil
	}
	detected, err := scanner.DetectPackageType(path)
	if err != nil {
		return scanner.TypeUnknown, models.NewIOError("detect "+filepath.Base(path), err)
	}
	if detected == scanner.TypeUnknown {
		return scanner.TypeUnknown, models.NewFormatError(filepath.Base(path), 0, fmt.Errorf("unrecognized package format"))
	}
	logrus.Debugf("Detected %s as %s", path, detected)
	return detected, nil
}

// filterFiles drops manifest entries matching an exclude pattern, along with
// everything below an excluded directory.
func filterFiles(pkg *models.Package, arena *staging.Arena, patterns []string) (*models.Package, []models.Warning, error) {
	if len(patterns) == 0 {
		return pkg, nil, nil
	}
	for _, pattern := range patterns {
		if !doublestar.ValidatePattern(pattern) {
			return nil, nil, &models.ConversionError{Type: models.ErrInvalidConfig, Field: "exclude", Offset: -1, Err: fmt.Errorf("bad pattern %q", pattern)}
		}
	}

	out := pkg.Clone()
	out.Files = out.Files[:0]
	excluded := 0
	for _, f := range pkg.Files {
		if !excludedPath(f.Path, patterns) {
			out.Files = append(out.Files, f)
			continue
		}
		excluded++
		if f.Kind.HasContent() {
			if err := arena.Remove(f.Path); err != nil {
				return nil, nil, models.NewIOError("remove excluded "+f.Path, err)
			}
		}
	}

	var warnings []models.Warning
	if excluded > 0 {
		warnings = append(warnings, models.Warnf(filterStage, "excluded %d of %d files", excluded, len(pkg.Files)))
	}
	return out, warnings, nil
}

func excludedPath(p string, patterns []string) bool {
	candidates := append(models.Parents(p), p)
	for _, pattern := range patterns {
		for _, c := range candidates {
			if ok, _ := doublestar.Match(pattern, c); ok {
				return true
			}
		}
	}
	return false
}

// write serializes pkg into the arena output area
func write(ctx context.Context, writer codec.Codec, pkg *models.Package, arena *staging.Arena, name string) error {
	out, err := arena.CreateOutput(name)
	if err != nil {
		return err
	}
	if err := writer.Write(ctx, pkg, arena, out); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return models.NewIOError("close output", err)
	}
	return nil
}

func outputChecksum(arena *staging.Arena, name string) (string, error) {
	f, err := arena.OpenOutput(name)
	if err != nil {
		return "", err
	}
	defer f.Close()
	sum, err := utils.SHA256Digest(f)
	if err != nil {
		return "", models.NewIOError("checksum output", err)
	}
	return sum, nil
}

// signDetached writes sigName, an armored signature of the output name
func (p *Pipeline) signDetached(arena *staging.Arena, name, sigName string) error {
	message, err := arena.OpenOutput(name)
	if err != nil {
		return err
	}
	defer message.Close()

	sig, err := arena.CreateOutput(sigName)
	if err != nil {
		return err
	}
	if err := p.signer.SignDetachedArmored(sig, message); err != nil {
		sig.Close()
		return &models.ConversionError{Type: models.ErrSigning, Offset: -1, Err: err}
	}
	if err := sig.Close(); err != nil {
		return models.NewIOError("close signature", err)
	}
	return nil
}
