package backlight

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/hoppxi/glint/internal/brightness"
)

const DefaultRoot = "/sys/class/backlight"

var ErrNoDevice = errors.New("no backlight devices found")

// Device is the hardware side of the slider. Only the writer calls
// WriteValue.
type Device interface {
	Name() string
	CurrentPercent() float64
	Max() uint32
	WriteValue(value uint32) error
	Reload() error
}

// ToRaw converts a percentage to the device's native scale.
func ToRaw(p brightness.Percent, max uint32) uint32 {
	return uint32(math.Round(float64(max) * float64(p) / 100.0))
}

// Backend selects how values reach the kernel.
type Backend string

const (
	BackendAuto   Backend = "auto"
	BackendSysfs  Backend = "sysfs"
	BackendLogind Backend = "logind"
)

func ParseBackend(s string) (Backend, error) {
	switch b := Backend(strings.ToLower(strings.TrimSpace(s))); b {
	case "", BackendAuto:
		return BackendAuto, nil
	case BackendSysfs, BackendLogind:
		return b, nil
	default:
		return "", fmt.Errorf("unknown backlight backend %q (want auto, sysfs or logind)", s)
	}
}

type Options struct {
	Root    string
	Name    string
	Backend Backend
}

// Sysfs is a backlight under /sys/class/backlight. Reads always go to
// sysfs; writes go to the configured sink.
type Sysfs struct {
	dir  string
	name string
	sink sink

	mu      sync.Mutex
	max     uint32
	current uint32
}

type sink interface {
	write(value uint32) error
}

type fileSink struct{ path string }

func (f fileSink) write(value uint32) error {
	return os.WriteFile(f.path, []byte(strconv.FormatUint(uint64(value), 10)), 0o644)
}

// Find returns the directory of the named device, or of the first one in
// lexical order when name is empty.
func Find(root, name string) (string, error) {
	if root == "" {
		root = DefaultRoot
	}

	if name != "" {
		dir := filepath.Join(root, name)
		if _, err := os.Stat(filepath.Join(dir, "max_brightness")); err != nil {
			return "", fmt.Errorf("backlight %q: %w", name, ErrNoDevice)
		}
		return dir, nil
	}

	paths, err := filepath.Glob(filepath.Join(root, "*"))
	if err != nil || len(paths) == 0 {
		return "", ErrNoDevice
	}
	sort.Strings(paths)
	for _, p := range paths {
		if _, err := os.Stat(filepath.Join(p, "max_brightness")); err == nil {
			return p, nil
		}
	}
	return "", ErrNoDevice
}

// Open locates a device and reads its initial state.
func Open(opts Options) (*Sysfs, error) {
	dir, err := Find(opts.Root, opts.Name)
	if err != nil {
		return nil, err
	}

	d := &Sysfs{dir: dir, name: filepath.Base(dir)}
	if err := d.Reload(); err != nil {
		return nil, err
	}

	brightnessPath := filepath.Join(dir, "brightness")
	switch opts.Backend {
	case BackendSysfs:
		d.sink = fileSink{path: brightnessPath}
	case BackendLogind:
		d.sink = newLogindSink(d.name)
	default:
		if writable(brightnessPath) {
			d.sink = fileSink{path: brightnessPath}
		} else {
			d.sink = newLogindSink(d.name)
		}
	}

	return d, nil
}

func writable(path string) bool {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return false
	}
	f.Close()
	return true
}

func readInt(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	s := strings.TrimSpace(string(data))
	return strconv.Atoi(s)
}

func (d *Sysfs) Name() string { return d.name }

func (d *Sysfs) Max() uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.max
}

func (d *Sysfs) CurrentPercent() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return float64(d.current) / float64(d.max) * 100.0
}

// Reload rereads max and current brightness from sysfs.
func (d *Sysfs) Reload() error {
	maxVal, err := readInt(filepath.Join(d.dir, "max_brightness"))
	if err != nil {
		return fmt.Errorf("read max_brightness: %w", err)
	}
	if maxVal <= 0 {
		return errors.New("invalid max_brightness value")
	}

	current, err := readInt(filepath.Join(d.dir, "actual_brightness"))
	if err != nil {
		current, err = readInt(filepath.Join(d.dir, "brightness"))
		if err != nil {
			return fmt.Errorf("read brightness: %w", err)
		}
	}
	if current < 0 {
		current = 0
	} else if current > maxVal {
		current = maxVal
	}

	d.mu.Lock()
	d.max = uint32(maxVal)
	d.current = uint32(current)
	d.mu.Unlock()
	return nil
}

func (d *Sysfs) WriteValue(value uint32) error {
	maxVal := d.Max()
	if value > maxVal {
		return fmt.Errorf("brightness %d exceeds max %d", value, maxVal)
	}
	if err := d.sink.write(value); err != nil {
		return fmt.Errorf("failed to set brightness on %s: %w", d.name, err)
	}

	d.mu.Lock()
	d.current = value
	d.mu.Unlock()
	return nil
}
