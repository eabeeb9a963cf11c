package manifest

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"path/filepath"
	"text/template"
)

const (
	// InstallTemplate is the install manifest packed into the archive.
	InstallTemplate = "install.rdf"
	// UpdateTemplate is the update manifest uploaded next to the archive.
	UpdateTemplate = "latest.rdf"
	// LandingTemplate is the HTML page linking to the newest archive.
	LandingTemplate = "latest.html"

	// UpdateContentType is served with the update manifest.
	UpdateContentType = "text/rdf"
)

// InstallData fills the install manifest.
type InstallData struct {
	Name    string
	Version string
	Folder  string
	Beta    bool
}

// UpdateData fills the update manifest.
type UpdateData struct {
	Version      string
	DownloadLink string
}

// LandingData fills the HTML landing page.
type LandingData struct {
	DownloadLink string
	IconURL      string
}

// Renderer loads templates from a directory and renders them.
type Renderer struct {
	// dir holds the template files.
	dir string
}

// NewRenderer creates a renderer reading templates from dir.
func NewRenderer(dir string) *Renderer {
	return &Renderer{
		dir: dir,
	}
}

// RenderInstall renders the install manifest.
func (r *Renderer) RenderInstall(data *InstallData) ([]byte, error) {
	return r.renderText(InstallTemplate, data)
}

// RenderUpdate renders the update manifest.
func (r *Renderer) RenderUpdate(data *UpdateData) ([]byte, error) {
	return r.renderText(UpdateTemplate, data)
}

// RenderLanding renders the landing page with HTML escaping.
func (r *Renderer) RenderLanding(data *LandingData) ([]byte, error) {
	tmpl, err := htmltemplate.ParseFiles(filepath.Join(r.dir, LandingTemplate))
	if err != nil {
		return nil, fmt.Errorf("load template %s: %w", LandingTemplate, err)
	}

	var buf bytes.Buffer
	if err = tmpl.Option("missingkey=error").Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render %s: %w", LandingTemplate, err)
	}

	return buf.Bytes(), nil
}

func (r *Renderer) renderText(name string, data any) ([]byte, error) {
	tmpl, err := template.ParseFiles(filepath.Join(r.dir, name))
	if err != nil {
		return nil, fmt.Errorf("load template %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err = tmpl.Option("missingkey=error").Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render %s: %w", name, err)
	}

	return buf.Bytes(), nil
}
