package sim

import (
	"math/rand"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/queuesim/sim/dist"
)

// failureInjector cycles one resource through outages: wait an MTBF draw, fail,
// wait a repair-time draw, repair, repeat. Holders are never evicted.
type failureInjector struct {
	sim      *Simulator
	res      *Resource
	mtbf     dist.Distribution
	repair   dist.Distribution
	rng      *rand.Rand
	failedAt float64
}

func newFailureInjector(s *Simulator, res *Resource, rule FailureRule) (*failureInjector, error) {
	mtbf, err := dist.Parse(rule.MTBF)
	if err != nil {
		return nil, err
	}
	repair, err := dist.Parse(rule.RepairTime)
	if err != nil {
		return nil, err
	}
	return &failureInjector{
		sim:    s,
		res:    res,
		mtbf:   mtbf,
		repair: repair,
		rng:    s.rng.ForSubsystem(SubsystemFailures(res.Name)),
	}, nil
}

func (f *failureInjector) start() {
	f.sim.sched.Schedule(f.mtbf.Sample(f.rng), f.fail)
}

func (f *failureInjector) fail() {
	f.failedAt = f.sim.sched.Now()
	f.res.Fail()
	f.sim.sched.Schedule(f.repair.Sample(f.rng), f.restore)
}

func (f *failureInjector) restore() {
	now := f.sim.sched.Now()
	f.res.Repair()
	f.sim.metrics.RecordRepair(f.res.Name, now, now-f.failedAt)
	logrus.Debugf("[t=%.4f] %s was down for %.4f", now, f.res.Name, now-f.failedAt)
	f.start()
}
