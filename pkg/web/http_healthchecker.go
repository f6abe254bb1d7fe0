package web

import (
	"net/http"

	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"

	"github.com/gossipmesh/gossipmesh/pkg/healthcheck"
)

// checkReport is the JSON shape of /healthcheck and /deepcheck.
type checkReport struct {
	OK     []string `json:"ok"`
	Failed []string `json:"failed"`
}

func runChecks(checks []healthcheck.Check) checkReport {
	// Initialized so empty tiers render as arrays, not null.
	report := checkReport{OK: []string{}, Failed: []string{}}
	for _, check := range checks {
		detail, healthy := check()
		if healthy {
			report.OK = append(report.OK, detail)
		} else {
			report.Failed = append(report.Failed, detail)
		}
	}
	return report
}

// checkHandler serves one tier of checks. The server mounts it twice, on
// /healthcheck with the self checks and on /deepcheck with the mesh checks.
// Any failed check makes the whole response a 500 so a load balancer probe
// only has to look at the status code.
func checkHandler(logger logrus.FieldLogger, name string, checks []healthcheck.Check) http.HandlerFunc {
	return func(resp http.ResponseWriter, req *http.Request) {
		logger.Info(name)
		report := runChecks(checks)
		resp.Header().Set("content-type", "application/json")
		if len(report.Failed) > 0 {
			resp.WriteHeader(http.StatusInternalServerError)
		}
		_ = jsoniter.NewEncoder(resp).Encode(report)
	}
}
