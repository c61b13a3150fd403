// pkg/sync/artifacts.go

package sync

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/CodeMonkeyCybersecurity/prov/pkg/blender"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/inventory"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/prov_err"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/prov_io"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/pxe"
	cerr "github.com/cockroachdb/errors"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

const filePerm os.FileMode = 0o644

// layout names every generated path.
type layout struct {
	tftp string
	web  string
}

func (l layout) managedDirs() []string {
	return []string{
		filepath.Join(l.tftp, "images"),
		filepath.Join(l.tftp, "pxelinux.cfg"),
		filepath.Join(l.tftp, "grub", "system"),
		filepath.Join(l.web, "images"),
		filepath.Join(l.web, "distros"),
		filepath.Join(l.web, "profiles"),
		filepath.Join(l.web, "systems"),
		filepath.Join(l.web, "autoinstall"),
		filepath.Join(l.web, "templates"),
	}
}

func (l layout) tftpImages(distro string) string { return filepath.Join(l.tftp, "images", distro) }
func (l layout) webImages(distro string) string  { return filepath.Join(l.web, "images", distro) }

func (l layout) descriptor(ref inventory.Ref) string {
	return filepath.Join(l.web, ref.Kind.Plural(), ref.Name+".yaml")
}

func (l layout) autoinstall(ref inventory.Ref) string {
	return filepath.Join(l.web, "autoinstall", ref.Kind.Plural(), ref.Name)
}

func (l layout) templateDir(ref inventory.Ref) string {
	return filepath.Join(l.web, "templates", ref.Kind.Plural(), ref.Name)
}

func (l layout) pxeConfig(name string) string  { return filepath.Join(l.tftp, "pxelinux.cfg", name) }
func (l layout) grubConfig(name string) string { return filepath.Join(l.tftp, "grub", "system", name) }
func (l layout) menu() string                  { return l.pxeConfig(pxe.DefaultName) }

// copyDistro places the kernel and initrd under images/<distro>/ in both
// trees. Files left over from an earlier kernel or initrd are removed.
func (c *Compiler) copyDistro(ctx context.Context, rep *Report, d *inventory.Distro) {
	logger := otelzap.Ctx(ctx)
	rep.attempt(inventory.KindDistro)
	keep := map[string]bool{}
	for _, src := range []string{d.Kernel(), d.Initrd()} {
		base := filepath.Base(src)
		keep[base] = true
		for _, dir := range []string{c.layout.tftpImages(d.Name()), c.layout.webImages(d.Name())} {
			dst := filepath.Join(dir, base)
			changed, err := c.files.CopyFile(ctx, src, dst, filePerm)
			if err != nil {
				logger.Warn("Cannot copy distro file",
					zap.String("distro", d.Name()),
					zap.String("src", src),
					zap.Error(err))
				rep.fail(inventory.KindDistro, prov_err.NewArtifactError(string(inventory.KindDistro), d.Name(), src, err))
				return
			}
			rep.wrote(string(inventory.KindDistro), changed)
		}
	}
	for _, dir := range []string{c.layout.tftpImages(d.Name()), c.layout.webImages(d.Name())} {
		names, err := c.files.ListFiles(ctx, dir)
		if err != nil {
			rep.fail(inventory.KindDistro, prov_err.NewArtifactError(string(inventory.KindDistro), d.Name(), dir, err))
			continue
		}
		for _, n := range names {
			if keep[n] {
				continue
			}
			if err := c.files.DeleteFile(ctx, filepath.Join(dir, n)); err != nil {
				rep.fail(inventory.KindDistro, prov_err.NewArtifactError(string(inventory.KindDistro), d.Name(), filepath.Join(dir, n), err))
				continue
			}
			rep.removed()
		}
	}
}

// renderItem writes every artifact of one item. Each failure is recorded and
// the remaining artifacts of the item are still attempted.
func (c *Compiler) renderItem(ctx context.Context, rep *Report, ref inventory.Ref) {
	switch ref.Kind {
	case inventory.KindDistro, inventory.KindProfile, inventory.KindSystem:
	default:
		return
	}
	if ref.Kind != inventory.KindDistro {
		// distros were counted by the copy phase
		rep.attempt(ref.Kind)
	}
	fail := func(path string, err error) {
		otelzap.Ctx(ctx).Warn("Cannot generate artifact",
			zap.String("item", ref.String()),
			zap.String("path", path),
			zap.Error(err))
		rep.fail(ref.Kind, prov_err.NewArtifactError(string(ref.Kind), ref.Name, path, err))
	}

	view, err := c.resolver.Resolve(ref)
	if err != nil {
		fail("", err)
		return
	}

	if err := c.writeDescriptor(ctx, rep, view); err != nil {
		fail(c.layout.descriptor(ref), err)
	}
	if ref.Kind == inventory.KindDistro {
		return
	}

	if name := view.String("autoinstall"); name != "" {
		path := c.layout.autoinstall(ref)
		if err := c.renderNamed(ctx, rep, string(ref.Kind), name, view.Data(), path); err != nil {
			fail(path, err)
		}
	}
	c.renderTemplateFiles(ctx, rep, view, fail)

	if ref.Kind == inventory.KindSystem {
		it, ok := c.graph.Lookup(ref)
		if !ok {
			fail("", cerr.Newf("%s disappeared during sync", ref))
			return
		}
		for path, err := range c.writeBootConfigs(ctx, rep, it.(*inventory.System), view) {
			fail(path, err)
		}
	}
}

func (c *Compiler) writeDescriptor(ctx context.Context, rep *Report, view *blender.View) error {
	data, err := prov_io.MarshalYAML(view.Data())
	if err != nil {
		return err
	}
	return c.write(ctx, rep, string(view.Ref.Kind), c.layout.descriptor(view.Ref), data)
}

func (c *Compiler) renderNamed(ctx context.Context, rep *Report, kind, name string, data map[string]interface{}, path string) error {
	out, err := c.renderer.RenderNamed(ctx, name, data)
	if err != nil {
		return err
	}
	return c.write(ctx, rep, kind, path, []byte(out))
}

// renderTemplateFiles renders the item's template_files map of source
// template to destination. Relative sources are looked up like any other
// template; absolute ones are read from disk. Destinations stay inside the
// item's directory.
func (c *Compiler) renderTemplateFiles(ctx context.Context, rep *Report, view *blender.View, fail func(string, error)) {
	files := view.Map("template_files")
	dir := c.layout.templateDir(view.Ref)
	for _, src := range inventory.SortedKeys(files) {
		dest, _ := files[src].(string)
		if dest == "" || !filepath.IsLocal(dest) {
			fail(src, cerr.Newf("template_files destination %q must be a relative path inside the item directory", dest))
			continue
		}
		var text string
		if filepath.IsAbs(src) {
			b, err := c.files.ReadFile(ctx, src)
			if err != nil {
				fail(src, err)
				continue
			}
			text = string(b)
		} else {
			t, err := c.renderer.Template(src)
			if err != nil {
				fail(src, err)
				continue
			}
			text = t
		}
		out, err := c.renderer.Render(ctx, text, view.Data())
		if err != nil {
			fail(src, err)
			continue
		}
		if err := c.write(ctx, rep, string(view.Ref.Kind), filepath.Join(dir, dest), []byte(out)); err != nil {
			fail(filepath.Join(dir, dest), err)
		}
	}
}

// bootFile is one boot-loader config of a system.
type bootFile struct {
	path     string
	template string
	iface    string
}

// bootFiles lists the boot configs of sys. install selects, per interface,
// whether the interface boots the installer or the local disk; grub has no
// local-boot config.
func (c *Compiler) bootFiles(sys *inventory.System, loaders []string, install func(inventory.NetworkInterface) bool) []bootFile {
	pxeFamily, grub := pxe.LoaderSet(loaders)
	var out []bootFile
	seen := map[string]bool{}
	for _, ni := range sys.Interfaces() {
		inst := install(ni)
		if pxeFamily {
			if fn, ok := pxe.ConfigFilename(sys, ni.Name, pxe.LoaderPXE); ok {
				tmpl := "pxe_local.template"
				if inst {
					tmpl = "pxe_system.template"
				}
				if p := c.layout.pxeConfig(fn); !seen[p] {
					seen[p] = true
					out = append(out, bootFile{path: p, template: tmpl, iface: ni.Name})
				}
			}
		}
		if grub && inst {
			if fn, ok := pxe.ConfigFilename(sys, ni.Name, pxe.LoaderGrub); ok {
				if p := c.layout.grubConfig(fn); !seen[p] {
					seen[p] = true
					out = append(out, bootFile{path: p, template: "grub_system.template", iface: ni.Name})
				}
			}
		}
	}
	return out
}

// allBootPaths is every config path sys could own under any loader, used
// when its files must go.
func (c *Compiler) allBootPaths(sys *inventory.System) []string {
	files := c.bootFiles(sys, []string{string(pxe.LoaderPXE), string(pxe.LoaderGrub)},
		func(inventory.NetworkInterface) bool { return true })
	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, f.path)
	}
	return out
}

// systemBootFiles are the configs sys gets from its resolved view. An
// interface boots the installer when it is netboot enabled and the chain
// provides a kernel.
func (c *Compiler) systemBootFiles(sys *inventory.System, view *blender.View) []bootFile {
	kernel := view.String("kernel_path")
	return c.bootFiles(sys, view.List("boot_loaders"), func(ni inventory.NetworkInterface) bool {
		return ni.NetbootEnabled && kernel != ""
	})
}

func (c *Compiler) writeBootConfigs(ctx context.Context, rep *Report, sys *inventory.System, view *blender.View) map[string]error {
	errs := map[string]error{}
	for _, f := range c.systemBootFiles(sys, view) {
		data := view.Data()
		data["interface"] = f.iface
		if err := c.renderNamed(ctx, rep, string(inventory.KindSystem), f.template, data, f.path); err != nil {
			errs[f.path] = err
		}
	}
	return errs
}

// writeMenu rewrites pxelinux.cfg/default, listing every menu-enabled
// profile that has a kernel. A system named "default" owns that file
// instead.
func (c *Compiler) writeMenu(ctx context.Context, rep *Report) {
	if c.graph.Systems().Find(pxe.DefaultName) != nil {
		return
	}
	var entries []interface{}
	for _, it := range c.graph.Profiles().ToList() {
		view, err := c.resolver.Resolve(it.Ref())
		if err != nil || !view.Bool("enable_menu") || view.String("kernel_path") == "" {
			continue
		}
		entries = append(entries, map[string]interface{}{
			"name":                  view.String("name"),
			"kernel_path":           view.String("kernel_path"),
			"initrd_path":           view.String("initrd_path"),
			"kernel_options_string": view.String("kernel_options_string"),
			"autoinstall_url":       view.String("autoinstall_url"),
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].(map[string]interface{})["name"].(string) < entries[j].(map[string]interface{})["name"].(string)
	})
	data := map[string]interface{}{
		"server":   c.settings.Server,
		"profiles": entries,
	}
	if err := c.renderNamed(ctx, rep, "menu", "pxe_menu.template", data, c.layout.menu()); err != nil {
		otelzap.Ctx(ctx).Warn("Cannot write boot menu", zap.Error(err))
		rep.note(prov_err.NewArtifactError("menu", pxe.DefaultName, c.layout.menu(), err))
	}
}

func (c *Compiler) write(ctx context.Context, rep *Report, kind, path string, data []byte) error {
	if !strings.HasSuffix(string(data), "\n") && len(data) > 0 {
		data = append(data, '\n')
	}
	changed, err := c.files.WriteFile(ctx, path, data, filePerm)
	if err != nil {
		return err
	}
	rep.wrote(kind, changed)
	return nil
}

// deletePaths removes generated files, recording each removal.
func (c *Compiler) deletePaths(ctx context.Context, rep *Report, ref inventory.Ref, paths ...string) {
	for _, p := range paths {
		exists, err := c.files.Exists(ctx, p)
		if err == nil && !exists {
			continue
		}
		if err := c.files.RemoveTree(ctx, p); err != nil {
			rep.fail(ref.Kind, prov_err.NewArtifactError(string(ref.Kind), ref.Name, p, err))
			continue
		}
		rep.removed()
	}
}
