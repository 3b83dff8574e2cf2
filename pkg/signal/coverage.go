package signal

import (
	"math"

	"github.com/davidkleiven/gononlin/nonlin"
	"github.com/nfvri/lora-simulator/pkg/model"
	"github.com/nfvri/lora-simulator/pkg/utils"
	"github.com/onosproject/onos-lib-go/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// maximum coverage radius considered, 1000 km
const maxLogDistance = 6.0

// CoverageRadius runs the Newton Krylov solver to find the ground distance from gw, along
// bearing, at which the expected received power of a device at deviceHeight falls to thresholdDbm.
func CoverageRadius(chain *Chain, gw model.Gateway, bearing, deviceHeight, txPowerDbm, thresholdDbm float64) (float64, error) {
	margin := func(logDistance float64) float64 {
		tx := utils.TargetPoint(gw.Position, bearing, math.Pow(10, logDistance), deviceHeight)
		loss := chain.ComputeLoss(Link{Tx: tx, Rx: gw.Position, RxID: gw.ID}, Expected)
		return txPowerDbm - loss - thresholdDbm
	}
	if margin(0) < 0 {
		return 0, nil
	}
	if margin(maxLogDistance) >= 0 {
		return math.Pow(10, maxLogDistance), nil
	}

	problem := nonlin.Problem{
		F: func(out, x []float64) {
			out[0] = margin(x[0])
		},
	}
	solver := nonlin.NewtonKrylov{
		// Maximum number of Newton iterations
		Maxiter: 50,

		// Stepsize used to approximate jacobian with finite differences
		StepSize: 1e-4,

		// Tolerance for the solution
		Tol: 1e-7,
	}
	x0 := []float64{3}
	res, err := solver.Solve(problem, x0)
	if err != nil {
		return 0, errors.NewInternal("coverage radius of %s at %v deg: %v", gw.ID, bearing, err)
	}
	log.Debugf("Coverage of %s at %v deg: %v", gw.ID, bearing, res)
	if !res.Converged || math.IsNaN(res.X[0]) {
		return 0, errors.NewInternal("coverage radius of %s did not converge", gw.ID)
	}
	return math.Pow(10, math.Min(res.X[0], maxLogDistance)), nil
}

// CoverageContour samples the coverage boundary of gw on numPoints evenly spaced bearings.
// Bearings where the solver does not converge are skipped.
func CoverageContour(chain *Chain, gw model.Gateway, numPoints int, deviceHeight, txPowerDbm, thresholdDbm float64) []model.Position {
	boundaryPoints := make([]model.Position, 0, numPoints)
	for i := 0; i < numPoints; i++ {
		bearing := 360 * float64(i) / float64(numPoints)
		r, err := CoverageRadius(chain, gw, bearing, deviceHeight, txPowerDbm, thresholdDbm)
		if err != nil {
			log.Warn(err)
			continue
		}
		boundaryPoints = append(boundaryPoints, utils.TargetPoint(gw.Position, bearing, r, deviceHeight))
	}
	if len(boundaryPoints) == 0 {
		log.Errorf("coverage of %s did not converge", gw.ID)
	}
	return utils.SortPositionsByBearing(gw.Position, boundaryPoints)
}
