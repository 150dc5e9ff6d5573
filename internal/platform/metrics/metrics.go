package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the portal.
type Metrics struct {
	UsersCreated        prometheus.Counter
	ApplicationsCreated prometheus.Counter
	LoginsSucceeded     prometheus.Counter
	LoginsFailed        prometheus.Counter

	AccessRequestsCreated  prometheus.Counter
	AccessRequestsApproved prometheus.Counter
	AccessRequestsDenied   prometheus.Counter
	GrantsRevoked          prometheus.Counter

	CodesIssued      prometheus.Counter
	CodesRedeemed    prometheus.Counter
	RedeemRejected   prometheus.Counter
	AutoAuthorized   prometheus.Counter
	AutoAuthFallback prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		UsersCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "devportal_users_created_total",
			Help: "Total number of portal accounts created",
		}),
		ApplicationsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "devportal_applications_created_total",
			Help: "Total number of applications registered",
		}),
		LoginsSucceeded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "devportal_logins_succeeded_total",
			Help: "Total number of successful password authentications",
		}),
		LoginsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "devportal_logins_failed_total",
			Help: "Total number of failed password authentications",
		}),
		AccessRequestsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "devportal_access_requests_created_total",
			Help: "Total number of access requests created",
		}),
		AccessRequestsApproved: promauto.NewCounter(prometheus.CounterOpts{
			Name: "devportal_access_requests_approved_total",
			Help: "Total number of access requests approved",
		}),
		AccessRequestsDenied: promauto.NewCounter(prometheus.CounterOpts{
			Name: "devportal_access_requests_denied_total",
			Help: "Total number of access requests denied",
		}),
		GrantsRevoked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "devportal_grants_revoked_total",
			Help: "Total number of role grants revoked by admins",
		}),
		CodesIssued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "devportal_authorization_codes_issued_total",
			Help: "Total number of authorization codes issued",
		}),
		CodesRedeemed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "devportal_authorization_codes_redeemed_total",
			Help: "Total number of authorization codes redeemed successfully",
		}),
		RedeemRejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "devportal_authorization_code_redeem_rejected_total",
			Help: "Total number of redemptions rejected (replay, expiry, PKCE mismatch)",
		}),
		AutoAuthorized: promauto.NewCounter(prometheus.CounterOpts{
			Name: "devportal_auto_authorizations_total",
			Help: "Total number of silent session-based authorizations",
		}),
		AutoAuthFallback: promauto.NewCounter(prometheus.CounterOpts{
			Name: "devportal_auto_authorization_fallbacks_total",
			Help: "Total number of silent authorizations that fell back to interactive login",
		}),
	}
}
