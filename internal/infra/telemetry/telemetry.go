package telemetry

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/arklim/auth-service/internal/core/port"
)

const namespace = "auth"

// DenylistMetrics counts denylist activity for the session lifecycle.
type DenylistMetrics struct {
	Revoked     prometheus.Counter
	Skipped     prometheus.Counter
	Rejected    prometheus.Counter
	StoreErrors *prometheus.CounterVec
}

// NewDenylistMetrics registers the denylist collectors with reg, reusing
// collectors that are already registered.
func NewDenylistMetrics(reg prometheus.Registerer) (*DenylistMetrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	revoked, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "denylist",
		Name:      "tokens_revoked_total",
		Help:      "Tokens added to the denylist.",
	}))
	if err != nil {
		return nil, err
	}

	skipped, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "denylist",
		Name:      "revocations_skipped_total",
		Help:      "Revocations skipped because the token had already expired.",
	}))
	if err != nil {
		return nil, err
	}

	rejected, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "denylist",
		Name:      "revoked_tokens_rejected_total",
		Help:      "Requests rejected because the presented token was revoked.",
	}))
	if err != nil {
		return nil, err
	}

	storeErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "denylist",
		Name:      "store_errors_total",
		Help:      "Revocation store failures partitioned by operation.",
	}, []string{"op"})
	if err := reg.Register(storeErrors); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, fmt.Errorf("register store errors collector: %w", err)
		}
		existing, ok := already.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return nil, fmt.Errorf("existing store errors collector has unexpected type %T", already.ExistingCollector)
		}
		storeErrors = existing
	}

	return &DenylistMetrics{
		Revoked:     revoked,
		Skipped:     skipped,
		Rejected:    rejected,
		StoreErrors: storeErrors,
	}, nil
}

func registerCounter(reg prometheus.Registerer, c prometheus.Counter) (prometheus.Counter, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, fmt.Errorf("register counter: %w", err)
		}
		existing, ok := already.ExistingCollector.(prometheus.Counter)
		if !ok {
			return nil, fmt.Errorf("existing counter has unexpected type %T", already.ExistingCollector)
		}
		return existing, nil
	}
	return c, nil
}

func (m *DenylistMetrics) TokenRevoked()         { m.Revoked.Inc() }
func (m *DenylistMetrics) RevocationSkipped()    { m.Skipped.Inc() }
func (m *DenylistMetrics) RevokedTokenRejected() { m.Rejected.Inc() }

func (m *DenylistMetrics) StoreError(op string) {
	m.StoreErrors.WithLabelValues(op).Inc()
}

var _ port.DenylistMetrics = (*DenylistMetrics)(nil)
