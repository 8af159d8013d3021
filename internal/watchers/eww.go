// Package watchers holds the leader's long-lived background loops that
// react to brightness changes.
package watchers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"sync/atomic"
	"time"
)

var logger = slog.Default()

// SetLogger replaces the package logger.
func SetLogger(l *slog.Logger) { logger = l }

type EwwSettings struct {
	Variable    string
	OSDVariable string
	OSDTimeout  time.Duration
	// FaultVariable receives {"error": "..."} while hardware writes
	// fail and {"error": ""} once they recover.
	FaultVariable string
}

// Eww pushes values into a running eww daemon. Settings may be swapped
// while watchers run.
type Eww struct {
	run      func(args ...string) error
	settings atomic.Pointer[EwwSettings]
}

func NewEww(settings EwwSettings) *Eww {
	e := &Eww{run: func(args ...string) error {
		return exec.Command("eww", args...).Run()
	}}
	e.settings.Store(&settings)
	return e
}

// WithRunner replaces the eww invocation, for tests.
func (e *Eww) WithRunner(run func(args ...string) error) *Eww {
	e.run = run
	return e
}

func (e *Eww) Settings() EwwSettings { return *e.settings.Load() }

func (e *Eww) SetSettings(s EwwSettings) { e.settings.Store(&s) }

func (e *Eww) Update(variable string, data any) {
	jsonData, _ := json.Marshal(data)
	e.update(variable + "=" + string(jsonData))
}

func (e *Eww) UpdateNoJson(variable string, data any) {
	e.update(fmt.Sprintf("%s=%v", variable, data))
}

func (e *Eww) update(assignment string) {
	if err := e.run("update", assignment); err != nil {
		logger.Debug("eww update failed", "assignment", assignment, "error", err)
	}
}

// Fault publishes the writer's health to eww.
func (e *Eww) Fault(err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	e.Update(e.Settings().FaultVariable, map[string]string{"error": msg})
}

func contextFor(stop <-chan struct{}) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-stop
		cancel()
	}()
	return ctx
}
