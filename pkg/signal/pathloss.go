package signal

import (
	"math"

	"github.com/nfvri/lora-simulator/pkg/model"
)

// LogDistance is the log-distance path loss model
type LogDistance struct {
	Exponent          float64
	ReferenceDistance float64
	ReferenceLoss     float64
}

func NewLogDistance(cfg model.PropagationConfig) LogDistance {
	return LogDistance{
		Exponent:          cfg.PathLossExponent,
		ReferenceDistance: cfg.ReferenceDistance,
		ReferenceLoss:     cfg.ReferenceLoss,
	}
}

// GetPathLoss returns L0 + 10 n log10(d/d0); distances below d0 are clamped to d0
func (l LogDistance) GetPathLoss(distance float64) float64 {
	d := math.Max(distance, l.ReferenceDistance)
	return l.ReferenceLoss + 10*l.Exponent*math.Log10(d/l.ReferenceDistance)
}

func (l LogDistance) Loss(link Link, _ DrawMode, lossDb float64) float64 {
	return lossDb + l.GetPathLoss(link.Tx.Distance(link.Rx))
}
