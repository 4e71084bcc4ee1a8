package gpu

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedRunner(out string, err error) Runner {
	return func(ctx context.Context, args ...string) ([]byte, error) {
		return []byte(out), err
	}
}

func TestGPUs(t *testing.T) {
	out := "0, NVIDIA GeForce RTX 4090, 24564, 9870, 14694, 37, 61, 182.45, 450.00\n" +
		"1, NVIDIA T4, 15360, [N/A], 15360, 0, 40, [N/A], 70.00\n" +
		"2, truncated, 100\n" +
		"\n"

	m := NewMonitorWithRunner(fixedRunner(out, nil))
	gpus, err := m.GPUs(context.Background())
	require.NoError(t, err)
	require.Len(t, gpus, 2)

	assert.Equal(t, Info{
		Index:          0,
		Name:           "NVIDIA GeForce RTX 4090",
		VRAMTotalMB:    24564,
		VRAMUsedMB:     9870,
		VRAMFreeMB:     14694,
		UtilizationPct: 37,
		TemperatureC:   61,
		PowerDrawW:     182.45,
		PowerLimitW:    450,
	}, gpus[0])

	assert.Equal(t, 1, gpus[1].Index)
	assert.Equal(t, 0, gpus[1].VRAMUsedMB)
	assert.Equal(t, 0.0, gpus[1].PowerDrawW)
}

func TestProcesses(t *testing.T) {
	out := "4242, /srv/voice/whisper/venv/bin/python, GPU-1a2b3c, 6120\n" +
		"4250, python, GPU-1a2b3c, [N/A]\n" +
		"bad row\n"

	m := NewMonitorWithRunner(fixedRunner(out, nil))
	procs, err := m.Processes(context.Background())
	require.NoError(t, err)
	require.Len(t, procs, 2)

	assert.Equal(t, Process{PID: 4242, ProcessName: "/srv/voice/whisper/venv/bin/python", GPUUUID: "GPU-1a2b3c", VRAMUsedMB: 6120}, procs[0])
	assert.Equal(t, 0, procs[1].VRAMUsedMB)
}

func TestEmptyOutput(t *testing.T) {
	m := NewMonitorWithRunner(fixedRunner("", nil))

	procs, err := m.Processes(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, procs)
	assert.Empty(t, procs)
}

func TestRunnerError(t *testing.T) {
	m := NewMonitorWithRunner(fixedRunner("", errors.New("nvidia-smi failed: no devices")))

	_, err := m.GPUs(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no devices")
}

func TestExecRunnerReportsStderr(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses /bin/sh")
	}

	run := func(ctx context.Context, args ...string) ([]byte, error) {
		return execRunner("/bin/sh")(ctx, "-c", "echo 'NVIDIA-SMI has failed' >&2; exit 9")
	}
	_, err := NewMonitorWithRunner(run).GPUs(context.Background())
	require.Error(t, err)
	assert.True(t, strings.HasSuffix(err.Error(), "NVIDIA-SMI has failed"), err.Error())
}

func TestMissingBinary(t *testing.T) {
	_, err := NewMonitor("definitely-not-nvidia-smi").GPUs(context.Background())
	require.Error(t, err)
}
