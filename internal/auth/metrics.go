package auth

import "github.com/prometheus/client_golang/prometheus"

var refreshTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "auth_refresh_total",
		Help: "Token refresh attempts by outcome (ok, no_token, rejected).",
	},
	[]string{"outcome"},
)

func init() {
	prometheus.MustRegister(refreshTotal)
}
