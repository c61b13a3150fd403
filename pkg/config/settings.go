// Package config holds the process-wide provisioning settings.
//
// Settings are read once at startup from a YAML file, PROV_* environment
// variables and command-line flags, in increasing order of precedence.
// Several settings double as the top of the inheritance chain: a property
// left unset on every item from distro to system resolves to its default_*
// value here.
package config

import (
	"net"
	"strconv"
	"time"
)

// Settings is the process configuration.
type Settings struct {
	Server     string `mapstructure:"server" yaml:"server" validate:"required,hostname|ip"`
	NextServer string `mapstructure:"next_server" yaml:"next_server" validate:"omitempty,hostname|ip"`
	HTTPPort   int    `mapstructure:"http_port" yaml:"http_port" validate:"min=1,max=65535"`
	WebPrefix  string `mapstructure:"web_prefix" yaml:"web_prefix"`

	TFTPBootDir    string        `mapstructure:"tftpboot_location" yaml:"tftpboot_location" validate:"required"`
	WebDir         string        `mapstructure:"webdir" yaml:"webdir" validate:"required"`
	TemplateDir    string        `mapstructure:"template_dir" yaml:"template_dir"`
	TriggerDir     string        `mapstructure:"trigger_dir" yaml:"trigger_dir"`
	TriggerTimeout time.Duration `mapstructure:"trigger_timeout" yaml:"trigger_timeout"`
	BootloaderDir  string        `mapstructure:"bootloader_dir" yaml:"bootloader_dir"`

	ManageDHCP  bool `mapstructure:"manage_dhcp" yaml:"manage_dhcp"`
	ManageDNS   bool `mapstructure:"manage_dns" yaml:"manage_dns"`
	ManageTFTPD bool `mapstructure:"manage_tftpd" yaml:"manage_tftpd"`
	RestartDHCP bool `mapstructure:"restart_dhcp" yaml:"restart_dhcp"`
	RestartDNS  bool `mapstructure:"restart_dns" yaml:"restart_dns"`

	DHCPModule string `mapstructure:"dhcp_module" yaml:"dhcp_module" validate:"oneof=isc dnsmasq"`
	DNSModule  string `mapstructure:"dns_module" yaml:"dns_module" validate:"oneof=bind dnsmasq"`
	TFTPModule string `mapstructure:"tftpd_module" yaml:"tftpd_module" validate:"oneof=in_tftpd"`

	DHCPConfigPath    string `mapstructure:"dhcpd_conf" yaml:"dhcpd_conf"`
	DnsmasqConfigPath string `mapstructure:"dnsmasq_conf" yaml:"dnsmasq_conf"`
	EthersPath        string `mapstructure:"ethers_path" yaml:"ethers_path"`
	HostsPath         string `mapstructure:"addn_hosts_path" yaml:"addn_hosts_path"`
	NamedConfigPath   string `mapstructure:"named_conf" yaml:"named_conf"`
	ZoneDir           string `mapstructure:"zone_dir" yaml:"zone_dir"`
	DHCPService       string `mapstructure:"dhcp_service" yaml:"dhcp_service"`
	DNSService        string `mapstructure:"dns_service" yaml:"dns_service"`
	DnsmasqService    string `mapstructure:"dnsmasq_service" yaml:"dnsmasq_service"`
	TFTPService       string `mapstructure:"tftp_service" yaml:"tftp_service"`

	ManageForwardZones []string `mapstructure:"manage_forward_zones" yaml:"manage_forward_zones"`
	ManageReverseZones []string `mapstructure:"manage_reverse_zones" yaml:"manage_reverse_zones"`

	RestartTimeout time.Duration `mapstructure:"restart_timeout" yaml:"restart_timeout"`
	SyncWorkers    int           `mapstructure:"sync_workers" yaml:"sync_workers" validate:"min=1,max=256"`

	StoreBackend string `mapstructure:"store_backend" yaml:"store_backend" validate:"oneof=file badger"`
	StorePath    string `mapstructure:"store_path" yaml:"store_path" validate:"required"`

	DefaultKernelOptions     map[string]interface{} `mapstructure:"default_kernel_options" yaml:"default_kernel_options"`
	DefaultKernelOptionsPost map[string]interface{} `mapstructure:"default_kernel_options_post" yaml:"default_kernel_options_post"`
	DefaultAutoinstallMeta   map[string]interface{} `mapstructure:"default_autoinstall_meta" yaml:"default_autoinstall_meta"`
	DefaultTemplateFiles     map[string]interface{} `mapstructure:"default_template_files" yaml:"default_template_files"`
	DefaultOwnership         []string               `mapstructure:"default_ownership" yaml:"default_ownership"`
	DefaultMgmtClasses       []string               `mapstructure:"default_mgmt_classes" yaml:"default_mgmt_classes"`
	DefaultAutoinstall       string                 `mapstructure:"default_autoinstall" yaml:"default_autoinstall"`
	DefaultBootLoaders       []string               `mapstructure:"default_boot_loaders" yaml:"default_boot_loaders" validate:"dive,oneof=pxe ipxe grub"`
	DefaultNameServers       []string               `mapstructure:"default_name_servers" yaml:"default_name_servers" validate:"dive,ip"`

	AllowDuplicateMACs bool `mapstructure:"allow_duplicate_macs" yaml:"allow_duplicate_macs"`
	AllowDuplicateIPs  bool `mapstructure:"allow_duplicate_ips" yaml:"allow_duplicate_ips"`

	MetricsAddr string `mapstructure:"metrics_addr" yaml:"metrics_addr"`
}

// HTTPServer is the host[:port] boot clients use to reach the web tree.
func (s *Settings) HTTPServer() string {
	if s.HTTPPort == 0 || s.HTTPPort == 80 {
		return s.Server
	}
	return net.JoinHostPort(s.Server, strconv.Itoa(s.HTTPPort))
}

// NextServerOrServer returns the TFTP server handed to DHCP clients.
func (s *Settings) NextServerOrServer() string {
	if s.NextServer != "" {
		return s.NextServer
	}
	return s.Server
}

// Defaults returns the built-in value of every setting, keyed by its
// mapstructure name.
func Defaults() map[string]interface{} {
	return map[string]interface{}{
		"server":            "127.0.0.1",
		"next_server":       "",
		"http_port":         80,
		"web_prefix":        "/prov",
		"tftpboot_location": "/var/lib/tftpboot",
		"webdir":            "/var/www/prov",
		"template_dir":      "/etc/prov/templates",
		"trigger_dir":       "/var/lib/prov/triggers",
		"trigger_timeout":   "30s",
		"bootloader_dir":    "/var/lib/prov/loaders",

		"manage_dhcp":  false,
		"manage_dns":   false,
		"manage_tftpd": true,
		"restart_dhcp": true,
		"restart_dns":  true,

		"dhcp_module":  "isc",
		"dns_module":   "bind",
		"tftpd_module": "in_tftpd",

		"dhcpd_conf":      "/etc/dhcpd.conf",
		"dnsmasq_conf":    "/etc/dnsmasq.conf",
		"ethers_path":     "/etc/ethers",
		"addn_hosts_path": "/var/lib/prov/prov_hosts",
		"named_conf":      "/etc/named.conf",
		"zone_dir":        "/var/named",
		"dhcp_service":    "dhcpd",
		"dns_service":     "named",
		"dnsmasq_service": "dnsmasq",
		"tftp_service":    "",

		"manage_forward_zones": []string{},
		"manage_reverse_zones": []string{},

		"restart_timeout": "30s",
		"sync_workers":    4,

		"store_backend": "file",
		"store_path":    "/var/lib/prov/config",

		"default_kernel_options":      map[string]interface{}{},
		"default_kernel_options_post": map[string]interface{}{},
		"default_autoinstall_meta":    map[string]interface{}{},
		"default_template_files":      map[string]interface{}{},
		"default_ownership":           []string{"admin"},
		"default_mgmt_classes":        []string{},
		"default_autoinstall":         "default.ks",
		"default_boot_loaders":        []string{"pxe", "ipxe"},
		"default_name_servers":        []string{},

		"allow_duplicate_macs": false,
		"allow_duplicate_ips":  false,

		"metrics_addr": "",
	}
}
