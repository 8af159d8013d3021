package subscribe

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func uevent(fields ...string) string {
	return strings.Join(fields, "\x00")
}

func TestIsBacklightChange(t *testing.T) {
	msg := uevent(
		"change@/devices/pci0000:00/0000:00:02.0/drm/card0/card0-eDP-1/intel_backlight",
		"ACTION=change",
		"DEVPATH=/devices/pci0000:00/0000:00:02.0/drm/card0/card0-eDP-1/intel_backlight",
		"SUBSYSTEM=backlight",
		"SEQNUM=4242",
	)

	assert.True(t, IsBacklightChange(msg, ""))
	assert.True(t, IsBacklightChange(msg, "intel_backlight"))
	assert.False(t, IsBacklightChange(msg, "acpi_video0"))
	assert.False(t, IsBacklightChange(msg, "backlight"))
}

func TestIsBacklightChangeIgnoresOthers(t *testing.T) {
	assert.False(t, IsBacklightChange(uevent("ACTION=add", "SUBSYSTEM=backlight", "DEVPATH=/x/intel_backlight"), ""))
	assert.False(t, IsBacklightChange(uevent("ACTION=change", "SUBSYSTEM=power_supply", "DEVPATH=/x/BAT0"), ""))
	assert.False(t, IsBacklightChange("", ""))
}
