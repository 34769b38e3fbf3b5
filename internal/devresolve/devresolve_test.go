package devresolve

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dtutils/state/pkg/dtree"
)

func withScratchSysfs(t *testing.T) (mtdDir, blockDir, nvmemDir string) {
	t.Helper()
	root := t.TempDir()
	mtdDir = filepath.Join(root, "mtd")
	blockDir = filepath.Join(root, "block")
	nvmemDir = filepath.Join(root, "nvmem")
	for _, d := range []string{mtdDir, blockDir, nvmemDir} {
		require.NoError(t, os.MkdirAll(d, 0o755))
	}

	origMTD, origBlock, origNVMem := sysClassMTD, sysClassBlock, sysBusNVMemDevices
	sysClassMTD, sysClassBlock, sysBusNVMemDevices = mtdDir, blockDir, nvmemDir
	t.Cleanup(func() {
		sysClassMTD, sysClassBlock, sysBusNVMemDevices = origMTD, origBlock, origNVMem
	})
	return mtdDir, blockDir, nvmemDir
}

func TestResolveMTDPartitionByLabel(t *testing.T) {
	mtdDir, _, _ := withScratchSysfs(t)

	mtd0 := filepath.Join(mtdDir, "mtd0")
	require.NoError(t, os.MkdirAll(mtd0, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(mtd0, "name"), []byte("bareboxenv\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(mtd0, "size"), []byte("65536\n"), 0o644))

	got, err := resolveMTDPartitionByLabel("mtd", "bareboxenv")
	require.NoError(t, err)
	require.Equal(t, "/dev/mtd0", got.DevPath)
	require.Equal(t, int64(65536), got.Size)
}

func TestResolveMTDPartitionByLabelNotFound(t *testing.T) {
	withScratchSysfs(t)
	_, err := resolveMTDPartitionByLabel("mtd", "nope")
	require.Error(t, err, "expected not-found error")
}

func TestResolveByPartUUID(t *testing.T) {
	_, blockDir, _ := withScratchSysfs(t)

	sda1 := filepath.Join(blockDir, "sda1")
	require.NoError(t, os.MkdirAll(sda1, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(sda1, "uevent"), []byte(
		"DEVTYPE=partition\nID_PART_ENTRY_UUID=4778ed65-bf42-45fa-9c5b-287a1dc4aab1\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(sda1, "size"), []byte("2048\n"), 0o644))

	got, err := resolveByPartUUID("4778ed65-bf42-45fa-9c5b-287a1dc4aab1")
	require.NoError(t, err)
	require.Equal(t, "/dev/sda1", got.DevPath)
	require.Equal(t, int64(2048*512), got.Size)
	require.True(t, got.IsGPTPartitioned)
}

func TestResolveBlockPartitionContainingRegion(t *testing.T) {
	_, blockDir, _ := withScratchSysfs(t)

	sda1 := filepath.Join(blockDir, "sda", "sda1")
	require.NoError(t, os.MkdirAll(sda1, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(sda1, "start"), []byte("2048\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(sda1, "size"), []byte("4096\n"), 0o644))

	got, err := resolveBlockPartition("sda", 2048*512+100, 200)
	require.NoError(t, err)
	require.Equal(t, "/dev/sda1", got.DevPath)
	require.Equal(t, int64(100), got.Offset)
	require.Equal(t, int64(200), got.Size)
}

func TestClassifyNodeEEPROM(t *testing.T) {
	_, _, nvmemDir := withScratchSysfs(t)
	require.NoError(t, os.MkdirAll(filepath.Join(nvmemDir, "24c02", "eeprom"), 0o755))

	n := dtree.NewNode("24c02")
	_, class, ok := classifyNode(n)
	require.True(t, ok)
	require.Equal(t, classEEPROM, class)
}

func TestIsFixedPartitionsAndStorageByUUID(t *testing.T) {
	n := dtree.NewNode("partitions")
	n.SetStringList("compatible", []string{"fixed-partitions"})
	require.True(t, isFixedPartitions(n))

	u := dtree.NewNode("storage")
	u.SetStringList("compatible", []string{"barebox,storage-by-uuid"})
	require.True(t, isStorageByUUID(u))
}
