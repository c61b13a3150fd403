// pkg/templates/render.go
// Bounded template rendering for generated boot and service files.
//
// Every render is checked against a size limit and a timeout and may be
// throttled by a rate limiter. Template text comes from an on-disk override
// directory first and the embedded defaults second.

package templates

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	cerr "github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	DefaultMaxTemplateSize = 1 * 1024 * 1024 // 1MB

	DefaultTemplateTimeout = 30 * time.Second
)

//go:embed defaults/*
var defaults embed.FS

// RenderOptions bound a single render.
type RenderOptions struct {
	MaxSize int64
	Timeout time.Duration
	// Limiter throttles renders; nil means unlimited.
	Limiter *rate.Limiter
}

func DefaultRenderOptions() *RenderOptions {
	return &RenderOptions{
		MaxSize: DefaultMaxTemplateSize,
		Timeout: DefaultTemplateTimeout,
	}
}

// Renderer renders text/template sources with missing keys rendering as
// their zero value.
type Renderer struct {
	logger *zap.Logger
	dir    string
	opts   *RenderOptions
}

// NewRenderer creates a renderer. dir, when set, holds template files that
// replace the embedded defaults of the same name.
func NewRenderer(logger *zap.Logger, dir string, opts *RenderOptions) *Renderer {
	if logger == nil {
		logger = zap.L()
	}
	if opts == nil {
		opts = DefaultRenderOptions()
	}
	return &Renderer{
		logger: logger.Named("template-renderer"),
		dir:    dir,
		opts:   opts,
	}
}

// Template returns the source of the named template.
func (r *Renderer) Template(name string) (string, error) {
	if !filepath.IsLocal(name) {
		return "", cerr.Newf("template name %q escapes the template directory", name)
	}
	if r.dir != "" {
		p := filepath.Join(r.dir, name)
		info, err := os.Stat(p)
		switch {
		case err == nil:
			if info.Size() > r.opts.MaxSize {
				return "", cerr.Newf("template file %s size %d exceeds limit %d", p, info.Size(), r.opts.MaxSize)
			}
			b, err := os.ReadFile(p)
			if err != nil {
				return "", cerr.Wrapf(err, "read template %s", p)
			}
			r.logger.Debug("Using template override", zap.String("path", p))
			return string(b), nil
		case !errors.Is(err, fs.ErrNotExist):
			return "", cerr.Wrapf(err, "stat template %s", p)
		}
	}
	b, err := defaults.ReadFile(path.Join("defaults", filepath.ToSlash(name)))
	if err != nil {
		return "", cerr.Wrapf(err, "no template named %q", name)
	}
	return string(b), nil
}

// Render executes text against data.
func (r *Renderer) Render(ctx context.Context, text string, data map[string]interface{}) (string, error) {
	return r.RenderString(ctx, text, data, r.opts)
}

// RenderNamed looks up a template by name and renders it.
func (r *Renderer) RenderNamed(ctx context.Context, name string, data map[string]interface{}) (string, error) {
	text, err := r.Template(name)
	if err != nil {
		return "", err
	}
	out, err := r.Render(ctx, text, data)
	if err != nil {
		return "", cerr.Wrapf(err, "render %s", name)
	}
	return out, nil
}

// RenderString renders a template from a string with the given data.
func (r *Renderer) RenderString(ctx context.Context, tmplStr string, data interface{}, opts *RenderOptions) (string, error) {
	if opts == nil {
		opts = DefaultRenderOptions()
	}

	if opts.Limiter != nil {
		if err := opts.Limiter.Wait(ctx); err != nil {
			r.logger.Warn("Template rendering rate limit wait aborted", zap.Error(err))
			return "", cerr.Wrap(err, "template rate limit")
		}
	}

	if int64(len(tmplStr)) > opts.MaxSize {
		r.logger.Error("Template size exceeds limit",
			zap.Int("size", len(tmplStr)),
			zap.Int64("max_size", opts.MaxSize))
		return "", cerr.Newf("template size %d exceeds limit %d", len(tmplStr), opts.MaxSize)
	}

	renderCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	tmpl, err := template.New("template").Funcs(funcMap).Option("missingkey=zero").Parse(tmplStr)
	if err != nil {
		return "", cerr.Wrap(err, "failed to parse template")
	}

	resultChan := make(chan string, 1)
	errChan := make(chan error, 1)

	go func() {
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, data); err != nil {
			errChan <- cerr.Wrap(err, "failed to execute template")
			return
		}
		// missingkey=zero still prints nil interface values as "<no value>"
		resultChan <- strings.ReplaceAll(buf.String(), "<no value>", "")
	}()

	select {
	case <-renderCtx.Done():
		r.logger.Error("Template rendering timed out",
			zap.Duration("timeout", opts.Timeout))
		return "", cerr.Newf("template rendering timed out after %s", opts.Timeout)
	case err := <-errChan:
		return "", err
	case result := <-resultChan:
		return result, nil
	}
}
