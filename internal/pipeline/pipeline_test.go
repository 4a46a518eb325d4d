package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ralt/pkgconv/internal/codec"
	"github.com/ralt/pkgconv/internal/codec/codectest"
	"github.com/ralt/pkgconv/internal/codec/deb"
	"github.com/ralt/pkgconv/internal/codec/rpm"
	"github.com/ralt/pkgconv/internal/codec/tgz"
	"github.com/ralt/pkgconv/internal/models"
	"github.com/ralt/pkgconv/internal/scanner"
	"github.com/ralt/pkgconv/internal/utils"
)

// writeFixture writes the sample package with c and returns its path and the
// package as written
func writeFixture(t *testing.T, c codec.Codec, mutate func(*models.Package)) (string, *models.Package) {
	t.Helper()
	arena := codectest.NewArena(t)
	pkg := codectest.SamplePackage(t, arena)
	if mutate != nil {
		mutate(pkg)
	}

	path := filepath.Join(t.TempDir(), c.Filename(pkg))
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create fixture: %v", err)
	}
	defer f.Close()
	if err := c.Write(context.Background(), pkg, arena, f); err != nil {
		t.Fatalf("Failed to write fixture: %v", err)
	}
	return path, pkg
}

func readBack(t *testing.T, c codec.Codec, path string) *models.Package {
	t.Helper()
	got, err := c.Read(context.Background(), path, codectest.NewArena(t))
	if err != nil {
		t.Fatalf("Failed to read %s: %v", path, err)
	}
	return got
}

func hasWarning(warnings []models.Warning, stage, substr string) bool {
	for _, w := range warnings {
		if w.Stage == stage && strings.Contains(w.Message, substr) {
			return true
		}
	}
	return false
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil && !os.IsNotExist(err) {
		t.Fatalf("Failed to read %s: %v", dir, err)
	}
	if len(entries) != 0 {
		t.Errorf("%s has %d entries, want none", dir, len(entries))
	}
}

func TestConvertDebToRpm(t *testing.T) {
	input, source := writeFixture(t, deb.New(codec.WriteOptions{}), func(p *models.Package) {
		p.Depends = []models.Relation{{Name: "libfoo", Op: models.OpGreaterEqual, Version: "2.0"}}
	})
	outDir := filepath.Join(t.TempDir(), "out")

	p := New(t.TempDir(), nil)
	res, err := p.Convert(context.Background(), Request{
		InputPath:  input,
		TargetType: scanner.TypeRpm,
		OutputDir:  outDir,
	})
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}

	if filepath.Dir(res.OutputPath) != outDir {
		t.Errorf("OutputPath = %s, want it in %s", res.OutputPath, outDir)
	}
	f, err := os.Open(res.OutputPath)
	if err != nil {
		t.Fatalf("Output not published: %v", err)
	}
	sum, err := utils.SHA256Digest(f)
	f.Close()
	if err != nil {
		t.Fatal(err)
	}
	if sum != res.Checksum {
		t.Errorf("Checksum = %s, file hashes to %s", res.Checksum, sum)
	}

	got := readBack(t, rpm.New(codec.WriteOptions{}), res.OutputPath)
	if got.Name != "hello" || got.Version != "2.10" || got.Release != "3" {
		t.Errorf("Identity = %s %s-%s", got.Name, got.Version, got.Release)
	}
	for _, want := range source.Files {
		if !want.Kind.HasContent() {
			continue
		}
		f, ok := got.File(want.Path)
		if !ok {
			t.Errorf("%s missing from converted package", want.Path)
			continue
		}
		if f.Digest != want.Digest {
			t.Errorf("%s digest = %s, want %s", want.Path, f.Digest, want.Digest)
		}
	}

	var found bool
	for _, rel := range got.Depends {
		if rel.Name == "libfoo" {
			found = true
			if rel.Op != models.OpGreaterEqual || rel.Version != "2.0" {
				t.Errorf("libfoo relation = %s, want libfoo >= 2.0", rel)
			}
		}
	}
	if !found {
		t.Errorf("Depends = %v, want libfoo", got.Depends)
	}
	if !strings.Contains(got.Description, "(Converted from a deb package by pkgconv)") {
		t.Errorf("Description = %q, want the conversion note", got.Description)
	}
}

func TestConvertNameCase(t *testing.T) {
	t.Run("rpm to deb folds case", func(t *testing.T) {
		input, _ := writeFixture(t, rpm.New(codec.WriteOptions{}), func(p *models.Package) {
			p.Name = "MyTool"
		})
		res, err := New(t.TempDir(), nil).Convert(context.Background(), Request{
			InputPath:  input,
			TargetType: scanner.TypeDeb,
			OutputDir:  t.TempDir(),
		})
		if err != nil {
			t.Fatalf("Convert failed: %v", err)
		}
		if res.Package.Name != "mytool" {
			t.Errorf("Name = %s, want mytool", res.Package.Name)
		}
		if !strings.HasPrefix(filepath.Base(res.OutputPath), "mytool_") {
			t.Errorf("OutputPath = %s", res.OutputPath)
		}
		if !hasWarning(res.Warnings, "name-version", "MyTool") {
			t.Errorf("Warnings = %v, want a rename warning", res.Warnings)
		}
	})

	t.Run("tgz to rpm keeps case", func(t *testing.T) {
		input, _ := writeFixture(t, tgz.New(codec.WriteOptions{}), func(p *models.Package) {
			p.Name = "MyTool"
		})
		res, err := New(t.TempDir(), nil).Convert(context.Background(), Request{
			InputPath:  input,
			TargetType: scanner.TypeRpm,
			OutputDir:  t.TempDir(),
		})
		if err != nil {
			t.Fatalf("Convert failed: %v", err)
		}
		if res.Package.Name != "MyTool" {
			t.Errorf("Name = %s, want MyTool", res.Package.Name)
		}
	})
}

func TestConvertToTgz(t *testing.T) {
	input, _ := writeFixture(t, deb.New(codec.WriteOptions{}), func(p *models.Package) {
		p.Depends = []models.Relation{{Name: "libc6", Op: models.OpGreaterEqual, Version: "2.34"}}
		p.Conflicts = []models.Relation{{Name: "oldhello"}}
	})

	res, err := New(t.TempDir(), nil).Convert(context.Background(), Request{
		InputPath:  input,
		SourceType: scanner.TypeDeb,
		TargetType: scanner.TypeTgz,
		OutputDir:  t.TempDir(),
	})
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	for _, set := range res.Package.AllRelations() {
		if len(set.Relations) > 0 {
			t.Errorf("%s = %v, want none", set.Kind, set.Relations)
		}
	}
	if !hasWarning(res.Warnings, "dependencies", "dropped 2 relations") {
		t.Errorf("Warnings = %v, want dropped relations", res.Warnings)
	}
	if !hasWarning(res.Warnings, "scripts", "excluded") {
		t.Errorf("Warnings = %v, want excluded remove scripts", res.Warnings)
	}

	got := readBack(t, tgz.New(codec.WriteOptions{}), res.OutputPath)
	if _, ok := got.Script(models.PreInstall); ok {
		t.Errorf("PreInstall script present, want it merged into doinst.sh")
	}
	doinst, ok := got.Script(models.PostInstall)
	if !ok {
		t.Fatalf("doinst.sh missing")
	}
	pre, post := strings.Index(doinst.Body, "echo preinst"), strings.Index(doinst.Body, "echo postinst")
	if pre < 0 || post < 0 || pre > post {
		t.Errorf("doinst.sh = %q, want preinst logic before postinst logic", doinst.Body)
	}
	if strings.Contains(doinst.Body, "echo prerm") {
		t.Errorf("doinst.sh runs removal logic: %q", doinst.Body)
	}
}

func TestConvertFailuresPublishNothing(t *testing.T) {
	garbage := filepath.Join(t.TempDir(), "broken.rpm")
	if err := os.WriteFile(garbage, []byte("this is not an rpm at all, not even close"), 0644); err != nil {
		t.Fatal(err)
	}
	debInput, _ := writeFixture(t, deb.New(codec.WriteOptions{}), func(p *models.Package) {
		p.Name = "averyveryveryverylongpackagenamethatgoesonandon"
	})

	tests := []struct {
		name    string
		req     Request
		errType models.ErrorType
	}{
		{"bad rpm lead", Request{InputPath: garbage, SourceType: scanner.TypeRpm, TargetType: scanner.TypeDeb}, models.ErrFormat},
		{"pkg abbreviation too long", Request{InputPath: debInput, TargetType: scanner.TypePkg}, models.ErrEncoding},
		{"bad exclude pattern", Request{InputPath: debInput, TargetType: scanner.TypeRpm,
			Options: models.ConversionOptions{Exclude: []string{"usr/[bin"}}}, models.ErrInvalidConfig},
		{"no target codec", Request{InputPath: debInput}, models.ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stagingDir := t.TempDir()
			outDir := filepath.Join(t.TempDir(), "out")
			tt.req.OutputDir = outDir

			_, err := New(stagingDir, nil).Convert(context.Background(), tt.req)
			if err == nil {
				t.Fatal("Convert succeeded, want an error")
			}
			if !models.IsErrorType(err, tt.errType) {
				t.Errorf("error = %v, want %s", err, tt.errType)
			}
			assertEmptyDir(t, outDir)
			assertEmptyDir(t, stagingDir)
		})
	}
}

func TestConvertExclude(t *testing.T) {
	input, _ := writeFixture(t, deb.New(codec.WriteOptions{}), nil)

	res, err := New(t.TempDir(), nil).Convert(context.Background(), Request{
		InputPath:  input,
		TargetType: scanner.TypeRpm,
		OutputDir:  t.TempDir(),
		Options:    models.ConversionOptions{Exclude: []string{"usr/share/doc"}},
	})
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	for _, f := range res.Package.Files {
		if strings.HasPrefix(f.Path, "usr/share/doc") {
			t.Errorf("%s was not excluded", f.Path)
		}
	}
	if _, ok := res.Package.File("usr/bin/hello"); !ok {
		t.Errorf("usr/bin/hello excluded")
	}
	if !hasWarning(res.Warnings, filterStage, "excluded") {
		t.Errorf("Warnings = %v, want an exclusion warning", res.Warnings)
	}
}

func TestConvertChangelog(t *testing.T) {
	input, _ := writeFixture(t, rpm.New(codec.WriteOptions{}), nil)

	res, err := New(t.TempDir(), nil).Convert(context.Background(), Request{
		InputPath:  input,
		TargetType: scanner.TypeDeb,
		OutputDir:  t.TempDir(),
		Options:    models.ConversionOptions{Generate: []string{models.GenerateChangelog}, Bump: 1},
	})
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if len(res.Package.Changelog) == 0 {
		t.Fatal("no changelog entry generated")
	}
	entry := res.Package.Changelog[0]
	if entry.Version != "2.10-4" {
		t.Errorf("entry version = %s, want 2.10-4", entry.Version)
	}
	if !strings.Contains(entry.Text, "Converted from a rpm package by pkgconv") {
		t.Errorf("entry text = %q", entry.Text)
	}

	got := readBack(t, deb.New(codec.WriteOptions{}), res.OutputPath)
	if _, ok := got.File(deb.ChangelogPath("hello")); !ok {
		t.Errorf("converted package does not ship %s", deb.ChangelogPath("hello"))
	}
}

func TestConvertSignedPublishFailureLeavesNothing(t *testing.T) {
	input, _ := writeFixture(t, deb.New(codec.WriteOptions{}), nil)
	req := Request{InputPath: input, TargetType: scanner.TypeTgz, OutputDir: t.TempDir()}

	res, err := New(t.TempDir(), &fakeSigner{}).Convert(context.Background(), req)
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	name := filepath.Base(res.OutputPath)

	// a directory in the package's place makes the package publish fail
	req.OutputDir = t.TempDir()
	if err := os.MkdirAll(filepath.Join(req.OutputDir, name, "keep"), 0755); err != nil {
		t.Fatal(err)
	}
	if _, err := New(t.TempDir(), &fakeSigner{}).Convert(context.Background(), req); !models.IsErrorType(err, models.ErrIO) {
		t.Fatalf("Convert error = %v, want IO", err)
	}

	entries, err := os.ReadDir(req.OutputDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != name {
		t.Errorf("output dir holds %v, want only the blocking directory", entries)
	}
	if _, err := os.Stat(filepath.Join(req.OutputDir, name+".asc")); !os.IsNotExist(err) {
		t.Errorf("signature left behind without its package")
	}
}

type fakeSigner struct {
	signed int
}

func (s *fakeSigner) SignDetachedBinary(data []byte) ([]byte, error) {
	s.signed++
	return []byte("binary signature"), nil
}

func (s *fakeSigner) SignDetachedArmored(w io.Writer, message io.Reader) error {
	s.signed++
	n, err := io.Copy(io.Discard, message)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "-----BEGIN PGP SIGNATURE-----\n%d\n-----END PGP SIGNATURE-----\n", n)
	return err
}

func TestConvertSignedTgz(t *testing.T) {
	input, _ := writeFixture(t, deb.New(codec.WriteOptions{}), nil)
	signer := &fakeSigner{}

	res, err := New(t.TempDir(), signer).Convert(context.Background(), Request{
		InputPath:  input,
		TargetType: scanner.TypeTgz,
		OutputDir:  t.TempDir(),
	})
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if res.SignaturePath != res.OutputPath+".asc" {
		t.Fatalf("SignaturePath = %q, want %q", res.SignaturePath, res.OutputPath+".asc")
	}
	data, err := os.ReadFile(res.SignaturePath)
	if err != nil {
		t.Fatalf("Signature not published: %v", err)
	}
	if !strings.HasPrefix(string(data), "-----BEGIN PGP SIGNATURE-----") {
		t.Errorf("signature = %q", data)
	}
	if signer.signed != 1 {
		t.Errorf("signer called %d times, want 1", signer.signed)
	}
}

func TestConvertAll(t *testing.T) {
	input, _ := writeFixture(t, deb.New(codec.WriteOptions{}), nil)
	outDir := t.TempDir()

	reqs := []Request{
		{InputPath: input, TargetType: scanner.TypeRpm, OutputDir: outDir},
		{InputPath: filepath.Join(t.TempDir(), "missing.deb"), TargetType: scanner.TypeRpm, OutputDir: outDir},
		{InputPath: input, TargetType: scanner.TypeTgz, OutputDir: outDir},
	}
	results, err := New(t.TempDir(), nil).ConvertAll(context.Background(), reqs, 2)
	if err == nil {
		t.Fatal("ConvertAll succeeded, want the missing input to fail")
	}
	if !strings.Contains(err.Error(), "missing.deb") {
		t.Errorf("error = %v, want it to name missing.deb", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if results[0] == nil || !strings.HasSuffix(results[0].OutputPath, ".rpm") {
		t.Errorf("results[0] = %+v, want the rpm", results[0])
	}
	if results[1] != nil {
		t.Errorf("results[1] = %+v, want nil", results[1])
	}
	if results[2] == nil || !strings.HasSuffix(results[2].OutputPath, ".tgz") {
		t.Errorf("results[2] = %+v, want the tgz", results[2])
	}
}

func TestInspect(t *testing.T) {
	input, _ := writeFixture(t, tgz.New(codec.WriteOptions{}), nil)
	stagingDir := t.TempDir()

	pkg, err := New(stagingDir, nil).Inspect(context.Background(), input, scanner.TypeUnknown)
	if err != nil {
		t.Fatalf("Inspect failed: %v", err)
	}
	if pkg.Name != "hello" || pkg.SourceFormat != "tgz" {
		t.Errorf("Inspect = %s from %s", pkg.Name, pkg.SourceFormat)
	}
	assertEmptyDir(t, stagingDir)
}
