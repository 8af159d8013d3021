package watchers

import (
	"math"
	"time"

	"github.com/hoppxi/glint/internal/backlight"
	"github.com/hoppxi/glint/internal/brightness"
)

// Echo reports the raw value glint itself last put on the hardware, so
// uevents caused by our own writes can be told apart from outside ones.
type Echo interface {
	Written() (uint32, bool)
}

// StartDisplayWatcher follows brightness changes made outside glint,
// such as firmware hotkeys, and copies them into the cell. events is a
// stream of backlight uevents.
func StartDisplayWatcher(stop <-chan struct{}, events <-chan struct{}, device backlight.Device, cell *brightness.Cell, echo Echo) {
	for {
		select {
		case <-stop:
			return
		case _, ok := <-events:
			if !ok {
				return
			}
			syncFromDevice(device, cell, echo)
		}
	}
}

func syncFromDevice(device backlight.Device, cell *brightness.Cell, echo Echo) {
	if err := device.Reload(); err != nil {
		logger.Warn("backlight reload failed", "device", device.Name(), "error", err)
		return
	}

	percent := device.CurrentPercent()
	raw := uint32(math.Round(percent * float64(device.Max()) / 100.0))
	if written, ok := echo.Written(); ok && written == raw {
		return
	}

	target := brightness.Clamp(int(math.Round(percent)))
	if cell.Get() == target {
		return
	}

	logger.Info("backlight changed outside glint", "device", device.Name(), "brightness", target)
	cell.Set(int(target))
}

// StartOSDWatcher mirrors the cell into eww and flashes the OSD window
// variable for a while after each change.
func StartOSDWatcher(stop <-chan struct{}, cell *brightness.Cell, eww *Eww) {
	changes := cell.Watch(contextFor(stop))

	var hide *time.Timer
	defer func() {
		if hide != nil {
			hide.Stop()
		}
	}()

	first := true
	for {
		select {
		case <-stop:
			return
		case level, ok := <-changes:
			if !ok {
				return
			}
			s := eww.Settings()
			eww.UpdateNoJson(s.Variable, int(level))

			// The first value is the starting level, not a change.
			if first {
				first = false
				continue
			}

			eww.UpdateNoJson(s.OSDVariable, true)
			if hide != nil {
				hide.Stop()
			}
			hide = time.AfterFunc(s.OSDTimeout, func() {
				eww.UpdateNoJson(s.OSDVariable, false)
			})
		}
	}
}
