package signal

import (
	"testing"
	"time"

	"github.com/nfvri/lora-simulator/pkg/model"
	"github.com/onosproject/onos-lib-go/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultLinkBudget(t *testing.T) *LinkBudget {
	lb, err := NewLinkBudget(model.DefaultModel().LinkBudget)
	require.NoError(t, err)
	return lb
}

func TestEvaluate(t *testing.T) {
	lb := defaultLinkBudget(t)

	rx, ok, err := lb.Evaluate(14, 140, model.SF9)
	assert.NoError(t, err)
	assert.Equal(t, -126.0, rx)
	assert.True(t, ok)

	rx, ok, err = lb.Evaluate(14, 150, model.SF9)
	assert.NoError(t, err)
	assert.Equal(t, -136.0, rx)
	assert.False(t, ok)

	// the threshold itself is decodable
	_, ok, err = lb.Evaluate(14, 149, model.SF9)
	assert.NoError(t, err)
	assert.True(t, ok)

	_, _, err = lb.Evaluate(14, 100, model.SpreadingFactor(6))
	assert.True(t, errors.IsInvalid(err))
}

func TestNewLinkBudgetInvalid(t *testing.T) {
	cfg := model.DefaultModel().LinkBudget
	cfg.Sensitivity[11] = -137
	_, err := NewLinkBudget(cfg)
	assert.True(t, errors.IsInvalid(err))

	cfg = model.DefaultModel().LinkBudget
	delete(cfg.Sensitivity, 7)
	_, err = NewLinkBudget(cfg)
	assert.True(t, errors.IsInvalid(err))
}

func TestMinimumSpreadingFactor(t *testing.T) {
	lb := defaultLinkBudget(t)
	tests := []struct {
		rx float64
		sf model.SpreadingFactor
		ok bool
	}{
		{-120, model.SF7, true},
		{-130, model.SF7, true},
		{-131, model.SF8, true},
		{-134, model.SF9, true},
		{-137.5, model.SF10, true},
		{-142.5, model.SF12, true},
		{-150, model.SF12, false},
	}
	for _, tt := range tests {
		sf, ok := lb.MinimumSpreadingFactor(tt.rx)
		assert.Equal(t, tt.sf, sf, "rx %v", tt.rx)
		assert.Equal(t, tt.ok, ok, "rx %v", tt.rx)
	}
}

func TestForGateway(t *testing.T) {
	lb := defaultLinkBudget(t)

	same, err := lb.ForGateway(model.Gateway{ID: "gw"})
	assert.NoError(t, err)
	assert.Same(t, lb, same)

	custom, err := lb.ForGateway(model.Gateway{ID: "gw", Sensitivity: map[int]float64{7: -131}})
	assert.NoError(t, err)
	s, _ := custom.Sensitivity(model.SF7)
	assert.Equal(t, -131.0, s)
	s, _ = lb.Sensitivity(model.SF7)
	assert.Equal(t, -130.0, s)

	_, err = lb.ForGateway(model.Gateway{ID: "gw", Sensitivity: map[int]float64{8: -129}})
	assert.True(t, errors.IsInvalid(err))
}

func TestTimeOnAir(t *testing.T) {
	lb := defaultLinkBudget(t)

	assert.Equal(t, 56576*time.Microsecond, lb.TimeOnAir(model.SF7, 20))
	assert.Equal(t, 741376*time.Microsecond, lb.TimeOnAir(model.SF11, 20))
	assert.Equal(t, 1318912*time.Microsecond, lb.TimeOnAir(model.SF12, 20))

	prev := time.Duration(0)
	for _, sf := range model.SpreadingFactors() {
		toa := lb.TimeOnAir(sf, 51)
		assert.Greater(t, toa, prev, sf.String())
		prev = toa
	}
	assert.Greater(t, lb.TimeOnAir(model.SF9, 50), lb.TimeOnAir(model.SF9, 10))
}
