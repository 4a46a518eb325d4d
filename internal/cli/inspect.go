package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/ralt/pkgconv/internal/models"
	"github.com/ralt/pkgconv/internal/pipeline"
	"github.com/ralt/pkgconv/internal/scanner"
	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"
)

// packageView is the printable form of a canonical package
type packageView struct {
	Name         string            `yaml:"name"`
	Version      string            `yaml:"version"`
	Release      string            `yaml:"release,omitempty"`
	Epoch        *int              `yaml:"epoch,omitempty"`
	Architecture string            `yaml:"architecture"`
	Summary      string            `yaml:"summary,omitempty"`
	Description  string            `yaml:"description,omitempty"`
	Maintainer   string            `yaml:"maintainer,omitempty"`
	Homepage     string            `yaml:"homepage,omitempty"`
	License      string            `yaml:"license,omitempty"`
	Group        string            `yaml:"group,omitempty"`
	Format       string            `yaml:"format"`
	Depends      []string          `yaml:"depends,omitempty"`
	Conflicts    []string          `yaml:"conflicts,omitempty"`
	Provides     []string          `yaml:"provides,omitempty"`
	Replaces     []string          `yaml:"replaces,omitempty"`
	Scripts      map[string]string `yaml:"scripts,omitempty"`
	Files        []fileView        `yaml:"files,omitempty"`
}

type fileView struct {
	Path   string `yaml:"path"`
	Kind   string `yaml:"kind"`
	Mode   string `yaml:"mode"`
	Owner  string `yaml:"owner"`
	Group  string `yaml:"group"`
	Size   int64  `yaml:"size,omitempty"`
	Target string `yaml:"target,omitempty"`
	Digest string `yaml:"md5,omitempty"`
}

// NewInspectCmd creates the inspect command
func NewInspectCmd() *cobra.Command {
	var from, output string

	cmd := &cobra.Command{
		Use:   "inspect path",
		Short: "Show the contents of a package",
		Long: `Reads a package and prints the metadata, relations, scripts and files
that a conversion would start from.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t := scanner.TypeUnknown
			if from != "" {
				var err error
				if t, err = scanner.ParsePackageType(from); err != nil {
					return &models.ConversionError{Type: models.ErrInvalidConfig, Offset: -1, Err: err}
				}
			}
			if output != "yaml" && output != "text" {
				return &models.ConversionError{
					Type:   models.ErrInvalidConfig,
					Offset: -1,
					Err:    fmt.Errorf("output must be yaml or text, got %q", output),
				}
			}

			cfg, err := loadConfig(cmd, map[string]string{})
			if err != nil {
				return err
			}
			pkg, err := pipeline.New(cfg.StagingDir, nil).Inspect(cmd.Context(), args[0], t)
			if err != nil {
				return err
			}

			if output == "text" {
				return printText(cmd.OutOrStdout(), pkg)
			}
			data, err := yaml.Marshal(newPackageView(pkg))
			if err != nil {
				return fmt.Errorf("failed to render package: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "Package format, detected when empty")
	cmd.Flags().StringVar(&output, "output", "yaml", "Output format (yaml, text)")

	return cmd
}

func newPackageView(pkg *models.Package) packageView {
	v := packageView{
		Name:         pkg.Name,
		Version:      pkg.Version,
		Release:      pkg.Release,
		Epoch:        pkg.Epoch,
		Architecture: pkg.Architecture,
		Summary:      pkg.Summary,
		Description:  pkg.Description,
		Maintainer:   pkg.Maintainer,
		Homepage:     pkg.Homepage,
		License:      pkg.License,
		Group:        pkg.Group,
		Format:       pkg.SourceFormat,
		Depends:      relationStrings(pkg.Depends),
		Conflicts:    relationStrings(pkg.Conflicts),
		Provides:     relationStrings(pkg.Provides),
		Replaces:     relationStrings(pkg.Replaces),
	}
	for _, kind := range models.ScriptKinds {
		if s, ok := pkg.Script(kind); ok && !s.Empty() {
			if v.Scripts == nil {
				v.Scripts = make(map[string]string)
			}
			v.Scripts[kind.String()] = s.Body
		}
	}
	for _, f := range pkg.Files {
		f = f.DefaultOwner()
		v.Files = append(v.Files, fileView{
			Path:   f.Path,
			Kind:   f.Kind.String(),
			Mode:   fmt.Sprintf("%04o", f.Mode),
			Owner:  f.Owner,
			Group:  f.Group,
			Size:   f.Size,
			Target: f.LinkTarget,
			Digest: f.Digest,
		})
	}
	return v
}

func relationStrings(rels []models.Relation) []string {
	var out []string
	for _, r := range rels {
		s := r.String()
		if r.Informational {
			s += " (informational)"
		}
		out = append(out, s)
	}
	return out
}

func printText(w io.Writer, pkg *models.Package) error {
	v := newPackageView(pkg)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "Package:\t%s\n", v.Name)
	fmt.Fprintf(tw, "Version:\t%s\n", versionString(pkg))
	fmt.Fprintf(tw, "Architecture:\t%s\n", v.Architecture)
	fmt.Fprintf(tw, "Format:\t%s\n", v.Format)
	for _, field := range [][2]string{
		{"Summary", v.Summary}, {"Maintainer", v.Maintainer}, {"Homepage", v.Homepage},
		{"License", v.License}, {"Group", v.Group},
		{"Depends", strings.Join(v.Depends, ", ")}, {"Conflicts", strings.Join(v.Conflicts, ", ")},
		{"Provides", strings.Join(v.Provides, ", ")}, {"Replaces", strings.Join(v.Replaces, ", ")},
	} {
		if field[1] != "" {
			fmt.Fprintf(tw, "%s:\t%s\n", field[0], field[1])
		}
	}

	var scripts []string
	for kind := range v.Scripts {
		scripts = append(scripts, kind)
	}
	sort.Strings(scripts)
	if len(scripts) > 0 {
		fmt.Fprintf(tw, "Scripts:\t%s\n", strings.Join(scripts, ", "))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if v.Description != "" {
		fmt.Fprintf(w, "\n%s\n", strings.TrimRight(v.Description, "\n"))
	}

	fmt.Fprintf(w, "\n%d files:\n", len(v.Files))
	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, f := range v.Files {
		name := f.Path
		if f.Target != "" {
			name += " -> " + f.Target
		}
		fmt.Fprintf(tw, "%s\t%s/%s\t%d\t%s\t%s\n", f.Mode, f.Owner, f.Group, f.Size, f.Kind, name)
	}
	return tw.Flush()
}

func versionString(pkg *models.Package) string {
	v := pkg.Version
	if pkg.Release != "" {
		v += "-" + pkg.Release
	}
	if pkg.Epoch != nil {
		v = fmt.Sprintf("%d:%s", *pkg.Epoch, v)
	}
	return v
}
