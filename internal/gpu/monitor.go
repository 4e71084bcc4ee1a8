// Package gpu reads GPU telemetry from nvidia-smi.
package gpu

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
)

const (
	gpuQuery     = "--query-gpu=index,name,memory.total,memory.used,memory.free,utilization.gpu,temperature.gpu,power.draw,power.limit"
	processQuery = "--query-compute-apps=pid,name,gpu_uuid,used_gpu_memory"
	csvFormat    = "--format=csv,noheader,nounits"
)

// Info describes one GPU.
type Info struct {
	Index          int     `json:"index"`
	Name           string  `json:"name"`
	VRAMTotalMB    int     `json:"vram_total_mb"`
	VRAMUsedMB     int     `json:"vram_used_mb"`
	VRAMFreeMB     int     `json:"vram_free_mb"`
	UtilizationPct int     `json:"utilization_pct"`
	TemperatureC   int     `json:"temperature_c"`
	PowerDrawW     float64 `json:"power_draw_w"`
	PowerLimitW    float64 `json:"power_limit_w"`
}

// Process is one compute process holding GPU memory.
type Process struct {
	PID         int    `json:"pid"`
	ProcessName string `json:"process_name"`
	GPUUUID     string `json:"gpu_uuid"`
	VRAMUsedMB  int    `json:"vram_used_mb"`
}

// Runner executes the telemetry command and returns its stdout.
type Runner func(ctx context.Context, args ...string) ([]byte, error)

// Monitor queries GPU state.
type Monitor struct {
	run Runner
}

// NewMonitor creates a monitor running command (normally "nvidia-smi").
func NewMonitor(command string) *Monitor {
	return NewMonitorWithRunner(execRunner(command))
}

// NewMonitorWithRunner creates a monitor over a custom runner.
func NewMonitorWithRunner(run Runner) *Monitor {
	return &Monitor{run: run}
}

// GPUs returns one entry per GPU.
func (m *Monitor) GPUs(ctx context.Context) ([]Info, error) {
	out, err := m.run(ctx, gpuQuery, csvFormat)
	if err != nil {
		return nil, err
	}
	rows, err := parseCSV(out, 9)
	if err != nil {
		return nil, err
	}

	gpus := make([]Info, 0, len(rows))
	for _, r := range rows {
		gpus = append(gpus, Info{
			Index:          atoi(r[0]),
			Name:           r[1],
			VRAMTotalMB:    atoi(r[2]),
			VRAMUsedMB:     atoi(r[3]),
			VRAMFreeMB:     atoi(r[4]),
			UtilizationPct: atoi(r[5]),
			TemperatureC:   atoi(r[6]),
			PowerDrawW:     atof(r[7]),
			PowerLimitW:    atof(r[8]),
		})
	}
	return gpus, nil
}

// Processes returns the compute processes currently using a GPU.
func (m *Monitor) Processes(ctx context.Context) ([]Process, error) {
	out, err := m.run(ctx, processQuery, csvFormat)
	if err != nil {
		return nil, err
	}
	rows, err := parseCSV(out, 4)
	if err != nil {
		return nil, err
	}

	procs := make([]Process, 0, len(rows))
	for _, r := range rows {
		procs = append(procs, Process{
			PID:         atoi(r[0]),
			ProcessName: r[1],
			GPUUUID:     r[2],
			VRAMUsedMB:  atoi(r[3]),
		})
	}
	return procs, nil
}

// parseCSV returns the trimmed fields of every row with at least minFields
// fields. Blank and short rows are skipped.
func parseCSV(data []byte, minFields int) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var rows [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("parse nvidia-smi output: %w", err)
		}
		if len(rec) < minFields {
			continue
		}
		for i := range rec {
			rec[i] = strings.TrimSpace(rec[i])
		}
		rows = append(rows, rec)
	}
}

// atoi and atof map "[N/A]" and other non-numeric values to zero.
func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return int(atof(s))
	}
	return n
}

func atof(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

func execRunner(command string) Runner {
	return func(ctx context.Context, args ...string) ([]byte, error) {
		var stdout, stderr bytes.Buffer
		cmd := exec.CommandContext(ctx, command, args...)
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		if err := cmd.Run(); err != nil {
			msg := strings.TrimSpace(stderr.String())
			if msg == "" {
				msg = err.Error()
			}
			return nil, fmt.Errorf("%s failed: %s", command, msg)
		}
		return stdout.Bytes(), nil
	}
}
