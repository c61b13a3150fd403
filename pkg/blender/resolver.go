// Package blender resolves inherited item attributes.
//
// Resolution walks an item's parent chain from the root (a distro, image or
// standalone repo) down to the item. At each level a map value is merged
// key-wise into the accumulator with the deeper level winning, any other
// concrete value replaces the accumulator, and Inherit leaves it alone. The
// accumulator starts from the matching default_* setting. A map key spelled
// "!name" deletes name from the accumulator at that level. Non-inheritable
// properties come from the item alone; ancestors show up only through the
// computed distro and profile maps.
package blender

import (
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/CodeMonkeyCybersecurity/prov/pkg/config"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/inventory"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/metrics"
	"go.uber.org/zap"
)

// resolveAttempts bounds the optimistic re-reads when the graph changes
// while a view is being assembled.
const resolveAttempts = 3

type cacheEntry struct {
	generation uint64
	view       *View
}

// Resolver computes Views. It caches one View per item UID together with
// the graph generation it was computed at and never serves an entry whose
// generation is not current.
type Resolver struct {
	graph *inventory.Graph
	log   *zap.Logger

	mu       sync.Mutex
	settings *config.Settings
	cache    map[string]cacheEntry
}

func New(graph *inventory.Graph, settings *config.Settings, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{
		graph:    graph,
		settings: settings,
		log:      log.Named("blender"),
		cache:    make(map[string]cacheEntry),
	}
}

// SetSettings swaps the settings and drops every cached view.
func (r *Resolver) SetSettings(s *config.Settings) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings = s
	r.cache = make(map[string]cacheEntry)
}

// Forget drops the cached view of uid.
func (r *Resolver) Forget(uid string) {
	r.mu.Lock()
	delete(r.cache, uid)
	r.mu.Unlock()
}

// Resolve returns the resolved view of ref. A reference chain broken by a
// missing ancestor yields a ReferentialIntegrityError.
func (r *Resolver) Resolve(ref inventory.Ref) (*View, error) {
	var view *View
	for attempt := 0; attempt < resolveAttempts; attempt++ {
		chain, gen, err := r.graph.Chain(ref)
		if err != nil {
			return nil, err
		}
		leaf := chain[len(chain)-1]

		r.mu.Lock()
		entry, ok := r.cache[leaf.UID()]
		settings := r.settings
		r.mu.Unlock()
		if ok && entry.generation == gen {
			metrics.ResolveTotal.WithLabelValues("hit").Inc()
			return entry.view, nil
		}
		metrics.ResolveTotal.WithLabelValues("miss").Inc()

		view = r.blend(settings, chain, gen)
		// repo lookups happen outside the chain read
		if r.graph.Generation() != gen {
			r.log.Debug("Graph changed during resolve, retrying", zap.Stringer("ref", ref), zap.Int("attempt", attempt+1))
			continue
		}
		r.mu.Lock()
		if r.settings == settings {
			r.cache[leaf.UID()] = cacheEntry{generation: gen, view: view}
		}
		r.mu.Unlock()
		return view, nil
	}
	return view, nil
}

func (r *Resolver) blend(s *config.Settings, chain []inventory.Item, gen uint64) *View {
	leaf := chain[len(chain)-1]
	data := map[string]interface{}{}

	for _, p := range leaf.Schema() {
		if def, ok := settingsDefault(s, p.Name); ok {
			data[p.Name] = def
		} else {
			data[p.Name] = inventory.ZeroValue(p.Kind)
		}
	}

	for _, p := range leaf.Schema() {
		if !p.Inheritable {
			if v := leaf.Get(p.Name); v != nil && !inventory.IsInherit(v) {
				data[p.Name] = v
			}
			continue
		}
		for _, it := range chain {
			v := it.Get(p.Name)
			if v == nil || inventory.IsInherit(v) {
				continue
			}
			if m, ok := v.(map[string]interface{}); ok {
				acc, _ := data[p.Name].(map[string]interface{})
				data[p.Name] = mergeMap(acc, m)
				continue
			}
			data[p.Name] = v
		}
	}

	r.computed(s, chain, data)
	return &View{Ref: leaf.Ref(), UID: leaf.UID(), Generation: gen, data: data}
}

// mergeMap overlays over onto a copy of base. "!key" entries delete key.
func mergeMap(base, over map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(base)+len(over))
	for k, v := range base {
		out[k] = inventory.CopyValue(v)
	}
	for _, k := range inventory.SortedKeys(over) {
		if name := strings.TrimPrefix(k, "!"); name != k {
			delete(out, name)
			continue
		}
		out[k] = inventory.CopyValue(over[k])
	}
	return out
}

func settingsDefault(s *config.Settings, prop string) (interface{}, bool) {
	if s == nil {
		return nil, false
	}
	var v interface{}
	switch prop {
	case "kernel_options":
		v = s.DefaultKernelOptions
	case "kernel_options_post":
		v = s.DefaultKernelOptionsPost
	case "autoinstall_meta":
		v = s.DefaultAutoinstallMeta
	case "template_files":
		v = s.DefaultTemplateFiles
	case "owners":
		v = s.DefaultOwnership
	case "mgmt_classes":
		v = s.DefaultMgmtClasses
	case "boot_loaders":
		v = s.DefaultBootLoaders
	case "autoinstall":
		v = s.DefaultAutoinstall
	default:
		return nil, false
	}
	kind := inventory.Map
	switch v.(type) {
	case []string:
		kind = inventory.List
	case string:
		kind = inventory.String
	}
	out, err := inventory.Coerce(kind, v)
	if err != nil {
		return nil, false
	}
	return out, true
}

func (r *Resolver) computed(s *config.Settings, chain []inventory.Item, data map[string]interface{}) {
	leaf := chain[len(chain)-1]
	root := chain[0]

	data["name"] = leaf.Name()
	data["uid"] = leaf.UID()
	data["kind"] = string(leaf.Kind())
	data["parent"] = leaf.Parent().Name

	for _, k := range []inventory.Kind{inventory.KindDistro, inventory.KindProfile, inventory.KindSystem, inventory.KindImage} {
		data[string(k)+"_name"] = ""
	}
	// the nearest item of each kind wins, so a sub-profile reports itself
	for _, it := range chain {
		data[string(it.Kind())+"_name"] = it.Name()
	}

	server, httpServer, prefix := "", "", ""
	nextServer := ""
	httpPort := 80
	if s != nil {
		server = s.Server
		httpServer = s.HTTPServer()
		prefix = s.WebPrefix
		nextServer = s.NextServerOrServer()
		httpPort = s.HTTPPort
	}
	data["server"] = server
	data["next_server"] = nextServer
	data["http_port"] = httpPort
	data["http_server"] = httpServer
	base := "http://" + httpServer + prefix

	if d, ok := root.(*inventory.Distro); ok {
		data["distro"] = map[string]interface{}{
			"name":       d.Name(),
			"kernel":     d.Kernel(),
			"initrd":     d.Initrd(),
			"arch":       d.Arch(),
			"breed":      d.Breed(),
			"os_version": d.Get("os_version"),
		}
		data["kernel_path"] = path.Join("/images", d.Name(), filepath.Base(d.Kernel()))
		data["initrd_path"] = path.Join("/images", d.Name(), filepath.Base(d.Initrd()))
		tree := base + "/distro_mirror/" + d.Name()
		if meta, ok := data["autoinstall_meta"].(map[string]interface{}); ok {
			if t, ok := meta["tree"].(string); ok && t != "" {
				tree = t
			}
		}
		data["install_tree"] = tree
	} else {
		data["distro"] = map[string]interface{}{}
		data["kernel_path"] = ""
		data["initrd_path"] = ""
		data["install_tree"] = ""
	}

	switch leaf.Kind() {
	case inventory.KindProfile:
		data["autoinstall_url"] = base + "/autoinstall/profiles/" + leaf.Name()
	case inventory.KindSystem:
		data["autoinstall_url"] = base + "/autoinstall/systems/" + leaf.Name()
	default:
		data["autoinstall_url"] = ""
	}

	if ko, ok := data["kernel_options"].(map[string]interface{}); ok {
		data["kernel_options_string"] = KernelOptionsString(ko)
	}
	if ko, ok := data["kernel_options_post"].(map[string]interface{}); ok {
		data["kernel_options_post_string"] = KernelOptionsString(ko)
	}

	if _, ok := data["name_servers"]; ok {
		data["name_servers"] = nameServers(s, leaf)
	}

	prof := nearestProfile(chain)
	data["profile"] = profileData(prof)
	if prof != nil {
		data["repo_data"] = r.repoData(prof.Repos(), base)
	} else if leaf.Kind() == inventory.KindSystem {
		data["repo_data"] = []interface{}{}
	}

	if sys, ok := leaf.(*inventory.System); ok {
		ifaces := sys.Interfaces()
		list := make([]interface{}, 0, len(ifaces))
		for _, ni := range ifaces {
			m := ni.ToMap()
			list = append(list, m)
			for field, val := range m {
				if field == "name" {
					continue
				}
				data[field+"_"+ni.Name] = val
			}
		}
		data["interfaces"] = list
		if h, _ := data["hostname"].(string); h == "" {
			for _, ni := range ifaces {
				if ni.DNSName != "" {
					data["hostname"] = ni.DNSName
					break
				}
			}
		}
	}
}

// nameServers is the item's own name_servers, or the settings default.
func nameServers(s *config.Settings, leaf inventory.Item) []string {
	if l, _ := leaf.Get("name_servers").([]string); len(l) > 0 {
		return l
	}
	if s == nil {
		return []string{}
	}
	return append([]string{}, s.DefaultNameServers...)
}

func nearestProfile(chain []inventory.Item) *inventory.Profile {
	for i := len(chain) - 1; i >= 0; i-- {
		if p, ok := chain[i].(*inventory.Profile); ok {
			return p
		}
	}
	return nil
}

// profileData is the nearest profile's own settings, for systems and
// sub-profile templates.
func profileData(p *inventory.Profile) map[string]interface{} {
	if p == nil {
		return map[string]interface{}{}
	}
	out := map[string]interface{}{"name": p.Name()}
	for _, prop := range p.Schema() {
		if prop.Inheritable {
			continue
		}
		out[prop.Name] = inventory.CopyValue(p.Get(prop.Name))
	}
	return out
}

func (r *Resolver) repoData(names []string, base string) []interface{} {
	repos := make([]map[string]interface{}, 0, len(names))
	for _, name := range names {
		it, ok := r.graph.Lookup(inventory.Ref{Kind: inventory.KindRepo, Name: name})
		if !ok {
			continue
		}
		repo := it.(*inventory.Repo)
		url := repo.Mirror()
		if local, _ := repo.Get("mirror_locally").(bool); local {
			url = base + "/repo_mirror/" + repo.Name()
		}
		repos = append(repos, map[string]interface{}{
			"name":     repo.Name(),
			"mirror":   repo.Mirror(),
			"url":      url,
			"breed":    repo.Get("breed"),
			"arch":     repo.Get("arch"),
			"priority": repo.Priority(),
			"yumopts":  repo.Get("yumopts"),
			"rpm_list": repo.Get("rpm_list"),
		})
	}
	sortedRepoData(repos)
	out := make([]interface{}, len(repos))
	for i, m := range repos {
		out[i] = m
	}
	return out
}
