package sandbox

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

// Recipe is the declarative description of the base execution environment
type Recipe struct {
	Image     string   `yaml:"image"`
	BaseImage string   `yaml:"base_image"`
	Packages  []string `yaml:"packages"`
	Workdir   string   `yaml:"workdir"`
}

// DefaultRecipe returns the built-in toolchain environment for image
func DefaultRecipe(image, workdir string) Recipe {
	return Recipe{
		Image:     image,
		BaseImage: "ubuntu:22.04",
		Packages:  []string{"gcc", "g++", "python3", "coreutils", "time"},
		Workdir:   workdir,
	}
}

// LoadRecipe reads a YAML recipe. Fields left empty fall back to the defaults
// derived from image and workdir.
func LoadRecipe(path, image, workdir string) (Recipe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Recipe{}, fmt.Errorf("failed to read recipe file: %w", err)
	}

	recipe := DefaultRecipe(image, workdir)
	if err := yaml.Unmarshal(data, &recipe); err != nil {
		return Recipe{}, fmt.Errorf("failed to parse recipe file %s: %w", path, err)
	}

	if err := recipe.Validate(); err != nil {
		return Recipe{}, err
	}
	return recipe, nil
}

// Validate checks the recipe can be rendered
func (r Recipe) Validate() error {
	if r.Image == "" {
		return fmt.Errorf("recipe image must not be empty")
	}
	if r.BaseImage == "" {
		return fmt.Errorf("recipe base_image must not be empty")
	}
	if !strings.HasPrefix(r.Workdir, "/") {
		return fmt.Errorf("recipe workdir must be an absolute path, got: %q", r.Workdir)
	}
	for _, pkg := range r.Packages {
		if pkg == "" || strings.ContainsAny(pkg, " \t\n;&|$`\\'\"") {
			return fmt.Errorf("invalid package name: %q", pkg)
		}
	}
	return nil
}

var dockerfileTemplate = template.Must(template.New("Dockerfile").Parse(`FROM {{ .BaseImage }}
ENV DEBIAN_FRONTEND=noninteractive
{{- if .Packages }}
RUN apt-get update && \
    apt-get install -y --no-install-recommends{{ range .Packages }} {{ . }}{{ end }} && \
    rm -rf /var/lib/apt/lists/*
{{- end }}
RUN mkdir -p {{ .Workdir }}
WORKDIR {{ .Workdir }}
`))

// Dockerfile renders the recipe
func (r Recipe) Dockerfile() ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := dockerfileTemplate.Execute(&buf, r); err != nil {
		return nil, fmt.Errorf("failed to render Dockerfile: %w", err)
	}
	return buf.Bytes(), nil
}
