package gpu

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cast"
	"go.uber.org/zap"
)

// Backend names the acceleration path whisper.cpp would use
type Backend string

const (
	BackendNone  Backend = "none"
	BackendCUDA  Backend = "cuda"
	BackendMetal Backend = "metal"
)

// Info describes detected acceleration
type Info struct {
	Available     bool    `json:"available"`
	Backend       Backend `json:"backend"`
	DeviceCount   int     `json:"device_count"`
	DeviceName    string  `json:"device_name,omitempty"`
	CUDAVersion   string  `json:"cuda_version,omitempty"`
	DriverVersion string  `json:"driver_version,omitempty"`
}

// CommandRunner runs a command and returns its stdout
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// Detector decides whether recognition should request the GPU
type Detector struct {
	logger *zap.Logger
	run    CommandRunner
	getenv func(string) string
	fs     afero.Fs
	goos   string
	goarch string
}

// NewDetector creates a detector probing the real system
func NewDetector(logger *zap.Logger) *Detector {
	return &Detector{
		logger: logger,
		run:    execRunner,
		getenv: os.Getenv,
		fs:     afero.NewOsFs(),
		goos:   runtime.GOOS,
		goarch: runtime.GOARCH,
	}
}

// Detect probes, in order: Apple silicon, nvidia-smi, CUDA environment, CUDA toolkit
func (d *Detector) Detect(ctx context.Context) Info {
	info := Info{Backend: BackendNone}

	if d.goos == "darwin" && d.goarch == "arm64" {
		info = Info{Available: true, Backend: BackendMetal, DeviceCount: 1, DeviceName: "Apple Silicon"}
	} else if err := d.detectWithNvidiaSMI(ctx, &info); err != nil {
		d.logger.Debug("nvidia-smi detection failed", zap.Error(err))
		if err := d.detectWithCUDAEnv(&info); err != nil {
			d.logger.Debug("CUDA environment detection failed", zap.Error(err))
			if err := d.detectWithCUDAToolkit(&info); err != nil {
				d.logger.Debug("CUDA toolkit detection failed", zap.Error(err))
			}
		}
	}

	d.logger.Info("GPU detection completed",
		zap.Bool("available", info.Available),
		zap.String("backend", string(info.Backend)),
		zap.Int("device_count", info.DeviceCount),
		zap.String("device_name", info.DeviceName))
	return info
}

// Resolve maps a whisper.use_gpu setting ("auto", or anything cast reads as a bool) to a decision
func (d *Detector) Resolve(ctx context.Context, setting string) (bool, error) {
	setting = strings.ToLower(strings.TrimSpace(setting))
	if setting == "" || setting == "auto" {
		return d.Detect(ctx).Available, nil
	}

	useGPU, err := cast.ToBoolE(setting)
	if err != nil {
		return false, fmt.Errorf("invalid use_gpu setting %q: %w", setting, err)
	}
	return useGPU, nil
}

func (d *Detector) detectWithNvidiaSMI(ctx context.Context, info *Info) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	countOutput, err := d.run(ctx, "nvidia-smi", "--list-gpus")
	if err != nil {
		return fmt.Errorf("nvidia-smi command failed: %w", err)
	}

	var devices int
	for _, line := range strings.Split(string(countOutput), "\n") {
		if strings.TrimSpace(line) != "" {
			devices++
		}
	}
	if devices == 0 {
		return fmt.Errorf("no GPUs found by nvidia-smi")
	}

	infoOutput, err := d.run(ctx, "nvidia-smi", "--query-gpu=name,driver_version", "--format=csv,noheader,nounits", "--id=0")
	if err != nil {
		return fmt.Errorf("nvidia-smi info query failed: %w", err)
	}

	first := strings.SplitN(strings.TrimSpace(string(infoOutput)), "\n", 2)[0]
	parts := strings.Split(first, ",")
	if len(parts) < 2 {
		return fmt.Errorf("unexpected nvidia-smi info format: %s", first)
	}

	info.Available = true
	info.Backend = BackendCUDA
	info.DeviceCount = devices
	info.DeviceName = strings.TrimSpace(parts[0])
	info.DriverVersion = strings.TrimSpace(parts[1])
	info.CUDAVersion = d.getenv("CUDA_VERSION")
	return nil
}

func (d *Detector) detectWithCUDAEnv(info *Info) error {
	cudaPath := d.getenv("CUDA_PATH")
	cudaVersion := d.getenv("CUDA_VERSION")
	visibleDevices := d.getenv("CUDA_VISIBLE_DEVICES")

	if cudaPath == "" && cudaVersion == "" && visibleDevices == "" {
		return fmt.Errorf("no CUDA environment variables found")
	}

	info.CUDAVersion = cudaVersion
	if visibleDevices == "" || visibleDevices == "-1" {
		return nil
	}

	info.DeviceCount = len(strings.Split(visibleDevices, ","))
	info.Available = true
	info.Backend = BackendCUDA
	return nil
}

func (d *Detector) detectWithCUDAToolkit(info *Info) error {
	for _, root := range []string{"/usr/local/cuda", "/opt/cuda", "/usr/cuda"} {
		if exists, _ := afero.DirExists(d.fs, root); !exists {
			continue
		}

		info.Available = true
		info.Backend = BackendCUDA
		info.DeviceCount = 1

		data, err := afero.ReadFile(d.fs, filepath.Join(root, "version.txt"))
		if err != nil {
			return nil
		}
		for _, line := range strings.Split(string(data), "\n") {
			if !strings.Contains(line, "CUDA Version") {
				continue
			}
			fields := strings.Fields(line)
			info.CUDAVersion = fields[len(fields)-1]
			break
		}
		return nil
	}

	return fmt.Errorf("CUDA toolkit not found in standard locations")
}
