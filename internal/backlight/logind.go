package backlight

import (
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
)

// logindSink asks systemd-logind to write the value, which works for
// the seat's active session without write access to sysfs.
type logindSink struct {
	name string

	mu   sync.Mutex
	conn *dbus.Conn
}

func newLogindSink(name string) *logindSink {
	return &logindSink{name: name}
}

func (l *logindSink) bus() (*dbus.Conn, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn != nil && l.conn.Connected() {
		return l.conn, nil
	}
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to system bus: %w", err)
	}
	l.conn = conn
	return conn, nil
}

func (l *logindSink) write(value uint32) error {
	conn, err := l.bus()
	if err != nil {
		return err
	}

	obj := conn.Object("org.freedesktop.login1", "/org/freedesktop/login1/session/auto")
	err = obj.Call(
		"org.freedesktop.login1.Session.SetBrightness",
		0,
		"backlight",
		l.name,
		value,
	).Store()
	if err != nil {
		return fmt.Errorf("logind SetBrightness: %w", err)
	}
	return nil
}
