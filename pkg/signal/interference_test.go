package signal

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/nfvri/lora-simulator/pkg/model"
	"github.com/nfvri/lora-simulator/pkg/utils"
	"github.com/stretchr/testify/assert"
)

const freq = model.DefaultFrequency

func newRecord(id string, rx float64) *model.ReceptionRecord {
	return &model.ReceptionRecord{
		Event:      model.EventKey{DeviceID: id, Sequence: 1},
		GatewayID:  "gw",
		RxPowerDbm: rx,
		Captured:   true,
		Outcome:    model.Received,
	}
}

func newTracker(tieBreak string) *CaptureTracker {
	return NewCaptureTracker(model.CaptureConfig{Margin: 6, TieBreak: tieBreak})
}

func TestCaptureGrid(t *testing.T) {
	powers := []float64{-110, -113, -116, -119, -125, -131}
	offsets := []time.Duration{0, 10 * time.Millisecond, 99 * time.Millisecond}
	for _, policy := range []string{model.TieBreakAllLost, model.TieBreakEarliest} {
		for _, pa := range powers {
			for _, pb := range powers {
				for _, off := range offsets {
					t.Run(fmt.Sprintf("%s/%v/%v/%v", policy, pa, pb, off), func(t *testing.T) {
						tracker := newTracker(policy)
						a, b := newRecord("a", pa), newRecord("b", pb)
						tracker.Add("gw", freq, model.SF9, 0, 100*time.Millisecond, a)
						tracker.Add("gw", freq, model.SF9, off, off+100*time.Millisecond, b)

						d := pa - pb
						wantA := d >= 6 || (d > -6 && policy == model.TieBreakEarliest)
						wantB := -d >= 6
						assert.Equal(t, wantA, a.Captured, "a")
						assert.Equal(t, wantB, b.Captured, "b")
						if !a.Captured {
							assert.Equal(t, model.Interfered, a.Outcome)
						}
						if !b.Captured {
							assert.Equal(t, model.Interfered, b.Outcome)
						}
					})
				}
			}
		}
	}
}

func TestCaptureNoOverlap(t *testing.T) {
	tracker := newTracker(model.TieBreakAllLost)
	a, b := newRecord("a", -120), newRecord("b", -120)
	assert.True(t, math.IsInf(tracker.Add("gw", freq, model.SF7, 0, 50*time.Millisecond, a), -1))
	// starts exactly when a ends
	assert.True(t, math.IsInf(tracker.Add("gw", freq, model.SF7, 50*time.Millisecond, 100*time.Millisecond, b), -1))
	assert.True(t, a.Captured)
	assert.True(t, b.Captured)
	assert.Equal(t, 1, tracker.Active("gw", freq, model.SF7))
}

func TestCaptureOrthogonalChannels(t *testing.T) {
	tracker := newTracker(model.TieBreakAllLost)
	records := []*model.ReceptionRecord{newRecord("a", -120), newRecord("b", -120), newRecord("c", -120), newRecord("d", -120)}
	tracker.Add("gw", freq, model.SF7, 0, time.Second, records[0])
	tracker.Add("gw", freq, model.SF8, 0, time.Second, records[1])
	tracker.Add("gw", 868300000, model.SF7, 0, time.Second, records[2])
	tracker.Add("gw-2", freq, model.SF7, 0, time.Second, records[3])
	for _, r := range records {
		assert.True(t, r.Captured, r.Event.DeviceID)
	}
}

func TestCaptureUndecodableInterferer(t *testing.T) {
	tracker := newTracker(model.TieBreakAllLost)
	weak := newRecord("weak", -125)
	loud := newRecord("loud", -110)
	// could not be demodulated but still occupies the channel
	loud.Captured = false
	loud.Outcome = model.NoMoreReceivers

	tracker.Add("gw", freq, model.SF10, 0, time.Second, weak)
	tracker.Add("gw", freq, model.SF10, 100*time.Millisecond, time.Second, loud)
	assert.False(t, weak.Captured)
	assert.Equal(t, model.Interfered, weak.Outcome)
	assert.Equal(t, model.NoMoreReceivers, loud.Outcome)
}

func TestCaptureNeverRecovers(t *testing.T) {
	tracker := newTracker(model.TieBreakAllLost)
	a := newRecord("a", -120)
	b := newRecord("b", -117)
	c := newRecord("c", -140)
	tracker.Add("gw", freq, model.SF9, 0, time.Second, a)
	tracker.Add("gw", freq, model.SF9, 10*time.Millisecond, time.Second, b)
	assert.False(t, a.Captured)
	assert.False(t, b.Captured)
	// a much weaker arrival does not bring them back
	tracker.Add("gw", freq, model.SF9, 20*time.Millisecond, time.Second, c)
	assert.False(t, a.Captured)
	assert.False(t, b.Captured)
	assert.False(t, c.Captured)
}

func TestCaptureThreeWay(t *testing.T) {
	tracker := newTracker(model.TieBreakAllLost)
	a := newRecord("a", -120)
	b := newRecord("b", -127)
	c := newRecord("c", -121)
	tracker.Add("gw", freq, model.SF9, 0, time.Second, a)
	tracker.Add("gw", freq, model.SF9, 100*time.Millisecond, time.Second, b)
	assert.True(t, a.Captured)
	assert.False(t, b.Captured)
	interference := tracker.Add("gw", freq, model.SF9, 200*time.Millisecond, time.Second, c)
	assert.InDelta(t, utils.SumDbm(-120, -127), interference, 1e-9)
	assert.False(t, a.Captured)
	assert.False(t, c.Captured)
	assert.Equal(t, 3, tracker.Active("gw", freq, model.SF9))

	tracker.Add("gw", freq, model.SF9, 2*time.Second, 3*time.Second, newRecord("d", -130))
	assert.Equal(t, 1, tracker.Active("gw", freq, model.SF9))
}
