package writer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hoppxi/glint/internal/backlight"
	"github.com/hoppxi/glint/internal/brightness"
	"github.com/hoppxi/glint/internal/testutil"
)

func runWriter(t *testing.T, w *Writer, cell *brightness.Cell) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	sub := cell.Subscribe()
	baseline := cell.Get()
	go func() {
		defer close(done)
		assert.NoError(t, w.Run(ctx, sub, baseline))
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("writer did not stop")
		}
	})
}

func TestInitialTickDoesNotWrite(t *testing.T) {
	device := testutil.NewDevice(255, 102)
	cell := brightness.New(40)
	w := New(device, testutil.Logger())
	runWriter(t, w, cell)

	cell.Set(25)
	assert.Equal(t, backlight.ToRaw(25, 255), device.WaitWrite(t, 5*time.Second))
	assert.Equal(t, []uint32{64}, device.Writes())
}

func TestWritesFollowChanges(t *testing.T) {
	device := testutil.NewDevice(1000, 500)
	cell := brightness.New(50)
	w := New(device, testutil.Logger())
	runWriter(t, w, cell)

	for _, p := range []int{60, 70, 20} {
		cell.Set(p)
		assert.Equal(t, uint32(p*10), device.WaitWrite(t, 5*time.Second))
	}
}

func TestSameLevelIsRewrittenAfterExternalChange(t *testing.T) {
	device := testutil.NewDevice(100, 50)
	cell := brightness.New(50)
	w := New(device, testutil.Logger())
	runWriter(t, w, cell)

	cell.Set(60)
	assert.Equal(t, uint32(60), device.WaitWrite(t, 5*time.Second))

	// A hotkey moves the hardware; the cell is not told.
	device.SetCurrent(80)

	cell.Set(60)
	assert.Equal(t, uint32(60), device.WaitWrite(t, 5*time.Second))
	assert.Equal(t, []uint32{60, 60}, device.Writes())
	assert.InDelta(t, 60.0, device.CurrentPercent(), 0.001)
}

func TestRepeatedLevelIsWritten(t *testing.T) {
	device := testutil.NewDevice(10, 5)
	cell := brightness.New(50)
	w := New(device, testutil.Logger())
	runWriter(t, w, cell)

	cell.Set(80)
	assert.Equal(t, uint32(8), device.WaitWrite(t, 5*time.Second))
	cell.Set(80)
	assert.Equal(t, uint32(8), device.WaitWrite(t, 5*time.Second))
}

func TestBurstIsCoalesced(t *testing.T) {
	device := testutil.NewDevice(100, 0)
	device.SetDelay(20 * time.Millisecond)
	cell := brightness.New(0)
	w := New(device, testutil.Logger())
	runWriter(t, w, cell)

	for i := 1; i <= 100; i++ {
		cell.Set(i)
	}

	require.Eventually(t, func() bool {
		writes := device.Writes()
		return len(writes) > 0 && writes[len(writes)-1] == 100
	}, 5*time.Second, 5*time.Millisecond)
	assert.Less(t, len(device.Writes()), 100)
}

func TestFaultIsReportedAndWriterKeepsRunning(t *testing.T) {
	device := testutil.NewDevice(100, 30)
	cell := brightness.New(30)
	w := New(device, testutil.Logger())
	runWriter(t, w, cell)

	device.SetFailing(true)
	cell.Set(40)

	select {
	case err := <-w.Faults():
		assert.ErrorIs(t, err, testutil.ErrInjected)
	case <-time.After(5 * time.Second):
		t.Fatal("fault not reported")
	}
	assert.ErrorIs(t, w.Err(), testutil.ErrInjected)

	device.SetFailing(false)
	cell.Set(45)
	assert.Equal(t, uint32(45), device.WaitWrite(t, 5*time.Second))

	select {
	case err := <-w.Faults():
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("recovery not reported")
	}
	assert.NoError(t, w.Err())
}

func TestFailedValueIsRetriedWhenSetAgain(t *testing.T) {
	device := testutil.NewDevice(100, 30)
	cell := brightness.New(30)
	w := New(device, testutil.Logger())
	runWriter(t, w, cell)

	device.SetFailing(true)
	cell.Set(40)
	<-w.Faults()

	device.SetFailing(false)
	cell.Set(40)
	assert.Equal(t, uint32(40), device.WaitWrite(t, 5*time.Second))
}

func TestFinishReloads(t *testing.T) {
	device := testutil.NewDevice(200, 50)
	w := New(device, testutil.Logger())

	percent, err := w.Finish(time.Second)
	require.NoError(t, err)
	assert.InDelta(t, 25.0, percent, 0.001)
	assert.Equal(t, 1, device.Reloads())
}

type hungDevice struct{ *testutil.Device }

func (hungDevice) Reload() error {
	select {}
}

func TestFinishIsBounded(t *testing.T) {
	w := New(hungDevice{testutil.NewDevice(100, 1)}, testutil.Logger())

	start := time.Now()
	_, err := w.Finish(50 * time.Millisecond)
	assert.ErrorIs(t, err, ErrReloadTimeout)
	assert.Less(t, time.Since(start), 2*time.Second)
}
