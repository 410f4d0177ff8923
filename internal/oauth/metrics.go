package oauth

import (
	oautherrors "authorization-server/pkg/errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts protocol outcomes. A nil *Metrics records nothing.
type Metrics struct {
	tokensIssued  *prometheus.CounterVec
	errors        *prometheus.CounterVec
	codesIssued   prometheus.Counter
	refreshReuses prometheus.Counter
	revocations   prometheus.Counter
}

// NewMetrics registers the oauth collectors on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		tokensIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oauth_tokens_issued_total",
			Help: "Tokens issued by grant type",
		}, []string{"grant_type"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oauth_errors_total",
			Help: "Protocol errors returned by kind",
		}, []string{"kind"}),
		codesIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "oauth_authorization_codes_issued_total",
			Help: "Authorization codes issued",
		}),
		refreshReuses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "oauth_refresh_token_reuse_total",
			Help: "Revoked refresh tokens presented again, each revoking its family",
		}),
		revocations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "oauth_token_revocations_total",
			Help: "Tokens revoked through the revocation endpoint",
		}),
	}

	for _, c := range []prometheus.Collector{m.tokensIssued, m.errors, m.codesIssued, m.refreshReuses, m.revocations} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) tokenIssued(grantType string) {
	if m != nil {
		m.tokensIssued.WithLabelValues(grantType).Inc()
	}
}

func (m *Metrics) failed(err error) {
	if m != nil && err != nil {
		m.errors.WithLabelValues(string(oautherrors.KindOf(err))).Inc()
	}
}

func (m *Metrics) codeIssued() {
	if m != nil {
		m.codesIssued.Inc()
	}
}

func (m *Metrics) refreshReused() {
	if m != nil {
		m.refreshReuses.Inc()
	}
}

func (m *Metrics) revoked() {
	if m != nil {
		m.revocations.Inc()
	}
}
