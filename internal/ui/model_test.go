package ui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hoppxi/glint/internal/brightness"
)

func newTestModel(t *testing.T, initial int) (Model, *brightness.Cell) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	cell := brightness.New(initial)
	m := NewModel(ctx, Options{
		Cell:   cell,
		Device: "intel_backlight",
		Steps:  func() (int, int) { return 5, 20 },
	})
	return m, cell
}

func press(m Model, msg tea.Msg) Model {
	next, _ := m.Update(msg)
	return next.(Model)
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestKeysAdjustCell(t *testing.T) {
	m, cell := newTestModel(t, 50)

	m = press(m, tea.KeyMsg{Type: tea.KeyUp})
	assert.Equal(t, brightness.Percent(55), cell.Get())

	m = press(m, runes("j"))
	m = press(m, runes("j"))
	assert.Equal(t, brightness.Percent(45), cell.Get())

	m = press(m, tea.KeyMsg{Type: tea.KeyPgUp})
	assert.Equal(t, brightness.Percent(65), cell.Get())

	m = press(m, tea.KeyMsg{Type: tea.KeyPgDown})
	m = press(m, tea.KeyMsg{Type: tea.KeyPgDown})
	m = press(m, tea.KeyMsg{Type: tea.KeyPgDown})
	m = press(m, tea.KeyMsg{Type: tea.KeyPgDown})
	assert.Equal(t, brightness.Percent(0), cell.Get())

	m = press(m, tea.KeyMsg{Type: tea.KeyHome})
	assert.Equal(t, brightness.Percent(100), cell.Get())

	_ = press(m, tea.KeyMsg{Type: tea.KeyEnd})
	assert.Equal(t, brightness.Percent(0), cell.Get())
}

func TestMouseWheel(t *testing.T) {
	m, cell := newTestModel(t, 10)

	m = press(m, tea.MouseMsg{Button: tea.MouseButtonWheelUp, Action: tea.MouseActionPress})
	assert.Equal(t, brightness.Percent(15), cell.Get())

	m = press(m, tea.MouseMsg{Button: tea.MouseButtonWheelDown, Action: tea.MouseActionPress})
	m = press(m, tea.MouseMsg{Button: tea.MouseButtonWheelDown, Action: tea.MouseActionPress})
	m = press(m, tea.MouseMsg{Button: tea.MouseButtonWheelDown, Action: tea.MouseActionPress})
	assert.Equal(t, brightness.Percent(0), cell.Get())

	_ = press(m, tea.MouseMsg{Button: tea.MouseButtonLeft, Action: tea.MouseActionRelease})
	assert.Equal(t, brightness.Percent(0), cell.Get())
}

func TestQuit(t *testing.T) {
	for _, msg := range []tea.KeyMsg{runes("q"), {Type: tea.KeyEsc}, {Type: tea.KeyCtrlC}} {
		m, cell := newTestModel(t, 30)
		_, cmd := m.Update(msg)
		require.NotNil(t, cmd, msg.String())
		_, ok := cmd().(tea.QuitMsg)
		assert.True(t, ok, msg.String())
		assert.Equal(t, brightness.Percent(30), cell.Get())
	}
}

func TestStepsAreReadPerKey(t *testing.T) {
	m, cell := newTestModel(t, 50)
	step := 5
	m.opts.Steps = func() (int, int) { return step, 20 }

	m = press(m, tea.KeyMsg{Type: tea.KeyUp})
	step = 1
	_ = press(m, tea.KeyMsg{Type: tea.KeyUp})
	assert.Equal(t, brightness.Percent(56), cell.Get())
}

func TestExternalChangesReachView(t *testing.T) {
	m, cell := newTestModel(t, 20)

	// Drain the initial value the watch delivers.
	msg := waitLevel(m.levels)()
	m = press(m, msg)
	assert.Equal(t, brightness.Percent(20), m.level)

	cell.Set(80)
	msg = waitLevel(m.levels)()
	m = press(m, msg)
	assert.Equal(t, brightness.Percent(80), m.level)
	assert.Contains(t, m.View(), " 80%")
}

func TestFaultIsShown(t *testing.T) {
	m, _ := newTestModel(t, 20)
	assert.NotContains(t, m.View(), "hardware unavailable")

	m = press(m, faultMsg{err: errors.New("permission denied")})
	assert.Contains(t, m.View(), "hardware unavailable: permission denied")

	m = press(m, faultMsg{})
	assert.NotContains(t, m.View(), "hardware unavailable")
}

func TestFaultStream(t *testing.T) {
	faults := make(chan error, 1)
	faults <- errors.New("io error")
	msg := waitFault(faults)()
	assert.Equal(t, faultMsg{err: errors.New("io error")}, msg)

	assert.Nil(t, waitFault(nil))
}

func TestFilledRows(t *testing.T) {
	assert.Equal(t, 0, filledRows(0, 12))
	assert.Equal(t, 12, filledRows(100, 12))
	assert.Equal(t, 6, filledRows(50, 12))
	assert.Equal(t, 1, filledRows(5, 12))
}

func TestWindowResize(t *testing.T) {
	m, _ := newTestModel(t, 50)
	m = press(m, tea.WindowSizeMsg{Width: 40, Height: 4})
	assert.Equal(t, minHeight, m.height)

	m = press(m, tea.WindowSizeMsg{Width: 40, Height: 20})
	assert.Equal(t, 14, m.height)
	view := m.View()
	assert.Equal(t, 7, strings.Count(view, "██"))
	assert.Equal(t, 7, strings.Count(view, "░░"))
}
