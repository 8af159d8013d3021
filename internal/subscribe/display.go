package subscribe

import (
	"log"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// BacklightEvents reports kernel change uevents for the named backlight
// (any backlight when name is empty). Bursts collapse into one pending
// event. The channel is closed once stop is closed.
func BacklightEvents(stop <-chan struct{}, name string) <-chan struct{} {
	events := make(chan struct{}, 1)

	go func() {
		defer close(events)

		fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_RAW|unix.SOCK_CLOEXEC, unix.NETLINK_KOBJECT_UEVENT)
		if err != nil {
			log.Printf("subscribe: failed to open netlink socket: %v", err)
			return
		}
		defer unix.Close(fd)

		addr := &unix.SockaddrNetlink{
			Family: unix.AF_NETLINK,
			Groups: 1, // kernel broadcast uevents
		}
		if err := unix.Bind(fd, addr); err != nil {
			log.Printf("subscribe: failed to bind netlink socket: %v", err)
			return
		}

		// Wake up periodically to notice stop.
		tv := unix.NsecToTimeval(int64(500 * time.Millisecond))
		if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
			log.Printf("subscribe: failed to set netlink timeout: %v", err)
			return
		}

		buf := make([]byte, 4096)
		for {
			select {
			case <-stop:
				return
			default:
			}

			n, _, err := unix.Recvfrom(fd, buf, 0)
			if err != nil {
				if err == unix.EAGAIN || err == unix.EINTR {
					continue
				}
				log.Printf("subscribe: netlink recv error: %v", err)
				time.Sleep(time.Second)
				continue
			}

			if IsBacklightChange(string(buf[:n]), name) {
				select {
				case events <- struct{}{}:
				default:
				}
			}
		}
	}()

	return events
}

// IsBacklightChange reports whether a raw uevent message is a change on
// the named backlight. Fields in the message are NUL separated.
func IsBacklightChange(msg, name string) bool {
	var subsystem, action, devpath string
	for _, field := range strings.Split(msg, "\x00") {
		switch {
		case strings.HasPrefix(field, "SUBSYSTEM="):
			subsystem = strings.TrimPrefix(field, "SUBSYSTEM=")
		case strings.HasPrefix(field, "ACTION="):
			action = strings.TrimPrefix(field, "ACTION=")
		case strings.HasPrefix(field, "DEVPATH="):
			devpath = strings.TrimPrefix(field, "DEVPATH=")
		}
	}

	if subsystem != "backlight" || action != "change" {
		return false
	}
	return name == "" || strings.HasSuffix(devpath, "/"+name)
}
