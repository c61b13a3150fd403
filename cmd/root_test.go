package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/CodeMonkeyCybersecurity/prov/pkg/prov_err"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/testutil"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var registerOnce sync.Once

// resetFlags puts every flag back to its default so one Execute does not
// leak into the next.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	registerOnce.Do(RegisterCommands)
	resetFlags(RootCmd)
	var out bytes.Buffer
	RootCmd.SetOut(&out)
	RootCmd.SetErr(&out)
	RootCmd.SetArgs(args)
	err := RootCmd.Execute()
	return out.String(), err
}

func writeSettings(t *testing.T, dir string) string {
	t.Helper()
	body := "server: 10.0.0.1\n" +
		"tftpboot_location: " + filepath.Join(dir, "tftpboot") + "\n" +
		"webdir: " + filepath.Join(dir, "www") + "\n" +
		"store_path: " + filepath.Join(dir, "store") + "\n" +
		"template_dir: \"\"\n" +
		"trigger_dir: \"\"\n" +
		"manage_tftpd: false\n"
	path := filepath.Join(dir, "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestItemLifecycleThroughCLI(t *testing.T) {
	dir := t.TempDir()
	cfg := writeSettings(t, dir)
	kernel := testutil.CreateTestFile(t, dir, "src/vmlinuz", "kernel", 0o644)
	initrd := testutil.CreateTestFile(t, dir, "src/initrd.img", "initrd", 0o644)

	_, err := run(t, "create", "distro", "d1", "--config", cfg, "--set", "kernel="+kernel, "--set", "initrd="+initrd)
	require.NoError(t, err)
	_, err = run(t, "create", "profile", "p1", "--config", cfg, "--parent", "d1", "--set", "kernel_options=console=ttyS0")
	require.NoError(t, err)
	_, err = run(t, "create", "system", "web01", "--config", cfg, "--parent", "p1",
		"--interface", "name=eth0,mac=aa:bb:cc:dd:ee:01,ip=10.0.0.21,netboot")
	require.NoError(t, err)

	testutil.AssertFileExists(t, filepath.Join(dir, "tftpboot", "pxelinux.cfg", "01-aa-bb-cc-dd-ee-01"))
	testutil.AssertFileExists(t, filepath.Join(dir, "store", "systems", "web01.yaml"))

	out, err := run(t, "read", "systems", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "web01")
	assert.Contains(t, out, "profile/p1")
	assert.Contains(t, out, "aa:bb:cc:dd:ee:01")

	out, err = run(t, "read", "system", "web01", "--resolved", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "console: ttyS0")

	_, err = run(t, "delete", "distro", "d1", "--config", cfg)
	require.Error(t, err)
	assert.True(t, prov_err.IsReferentialIntegrity(err))
	assert.Equal(t, 2, prov_err.GetExitCode(err))

	_, err = run(t, "rename", "profile", "p1", "base", "--config", cfg)
	require.NoError(t, err)
	out, err = run(t, "read", "system", "web01", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "name: base")

	_, err = run(t, "delete", "distro", "d1", "--recursive", "--config", cfg)
	require.NoError(t, err)
	testutil.AssertFileNotExists(t, filepath.Join(dir, "tftpboot", "pxelinux.cfg", "01-aa-bb-cc-dd-ee-01"))

	out, err = run(t, "sync", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "0 of 0 items failed")
}

func TestCreateRejectsUnknownKind(t *testing.T) {
	cfg := writeSettings(t, t.TempDir())
	_, err := run(t, "create", "router", "r1", "--config", cfg)
	require.Error(t, err)
	assert.True(t, prov_err.IsValidation(err))
}
