package web

import (
	"context"
	"expvar"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/gossipmesh/gossipmesh"
	"github.com/gossipmesh/gossipmesh/internal/telemetry"
	"github.com/gossipmesh/gossipmesh/pkg/healthcheck"
	"github.com/gossipmesh/gossipmesh/pkg/util"
)

// StatusServer exposes operational state over HTTP: health and deep checks,
// mesh status, Prometheus metrics, and optional profiling endpoints.
type StatusServer struct {
	logger  logrus.FieldLogger
	address string
	Router  *mux.Router // should be private, but project layout is not great.
}

type route struct {
	path    string
	handler http.HandlerFunc
	method  string
	name    string
}

// NewStatusServerFromViper builds a StatusServer from the status-addr key and
// the status.* subsection of the supplied viper.  Status sources may be nil,
// their routes are only mounted when a source is present.
func NewStatusServerFromViper(
	logger logrus.FieldLogger,
	v *viper.Viper,
	serverName string,
	peers PeerLister,
	registry RegistryViewer,
	gossip GossipViewer,
	selfChecks []healthcheck.Check,
	meshChecks []healthcheck.Check,
) (*StatusServer, error) {
	vSub := util.GetSubViper(v, "status")
	vSub.SetDefault("enable-prof", false)
	vSub.SetDefault("enable-expvar", false)
	vSub.SetDefault("enable-metrics", true)
	vSub.SetDefault("enable-healthcheck", true)

	return NewStatusServer(
		logger.WithField("status-server", serverName),
		serverName,
		v.GetString(gossipmesh.ParamStatusAddr),
		vSub.GetBool("enable-prof"),
		vSub.GetBool("enable-expvar"),
		vSub.GetBool("enable-metrics"),
		vSub.GetBool("enable-healthcheck"),
		peers,
		registry,
		gossip,
		selfChecks,
		meshChecks,
	)
}

func NewStatusServer(
	logger logrus.FieldLogger,
	serverName, address string,
	enableProf,
	enableExpVar,
	enableMetrics,
	enableHealthcheck bool,
	peers PeerLister,
	registry RegistryViewer,
	gossip GossipViewer,
	selfChecks []healthcheck.Check,
	meshChecks []healthcheck.Check,
) (*StatusServer, error) {
	if address == "" {
		return nil, fmt.Errorf("status server %s requires an address", serverName)
	}

	var routes []route

	server := &StatusServer{
		logger:  logger,
		address: address,
	}

	if enableProf {
		prof := &profiler{}
		routes = append(routes,
			route{path: "/memprof", handler: prof.heapProfile, method: "POST", name: "profmem_post"},
			route{path: "/pprof", handler: prof.cpuProfile, method: "POST", name: "profpprof_post"},
			route{path: "/trace", handler: prof.execTrace, method: "POST", name: "proftrace_post"},
		)
	}

	if enableExpVar {
		routes = append(routes,
			route{path: "/expvar", handler: expvar.Handler().ServeHTTP, method: "GET", name: "expvar_get"},
		)
	}

	if enableMetrics {
		routes = append(routes,
			route{path: "/metrics", handler: telemetry.MetricsHandler().ServeHTTP, method: "GET", name: "metrics_get"},
		)
	}

	if enableHealthcheck {
		routes = append(routes,
			route{path: "/healthcheck", handler: checkHandler(logger, "healthcheck", selfChecks), method: "GET", name: "healthcheck_get"},
			route{path: "/deepcheck", handler: checkHandler(logger, "deepcheck", meshChecks), method: "GET", name: "deepcheck_get"},
		)
	}

	sh := &statusHandler{
		logger:   logger,
		peers:    peers,
		registry: registry,
		gossip:   gossip,
	}
	if peers != nil {
		routes = append(routes,
			route{path: "/peers", handler: sh.peersHandler, method: "GET", name: "peers_get"},
		)
	}
	if registry != nil {
		routes = append(routes,
			route{path: "/registry", handler: sh.registryHandler, method: "GET", name: "registry_get"},
		)
	}
	if gossip != nil {
		routes = append(routes,
			route{path: "/gossip", handler: sh.gossipHandler, method: "GET", name: "gossip_get"},
		)
	}

	if len(routes) == 0 {
		return nil, fmt.Errorf("must enable at least one of prof, expvar, metrics, healthcheck, or a status source")
	}

	router, err := buildRouter(routes)
	if err != nil {
		return nil, err
	}
	router.NotFoundHandler = server.logRequest(http.NotFoundHandler())
	router.Use(server.logRequest)
	server.Router = router

	logger.WithFields(logrus.Fields{
		"address":            address,
		"enable-pprof":       enableProf,
		"enable-expvar":      enableExpVar,
		"enable-metrics":     enableMetrics,
		"enable-healthcheck": enableHealthcheck,
	}).Info("Created status server")

	return server, nil
}

func buildRouter(routes []route) (*mux.Router, error) {
	router := mux.NewRouter()

	for _, rt := range routes {
		handler := router.HandleFunc(rt.path, rt.handler).Methods(rt.method).Name(rt.name)
		if err := handler.GetError(); err != nil {
			return nil, fmt.Errorf("route %s: %v", rt.name, err)
		}
	}

	return router, nil
}

func (ss *StatusServer) logRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, req)

		srcip := req.RemoteAddr
		if host, _, err := net.SplitHostPort(srcip); err == nil {
			srcip = host
		}
		fields := logrus.Fields{
			"srcip":    srcip,
			"path":     req.URL.Path,
			"duration": time.Since(start).Seconds() * 1000,
		}
		if rt := mux.CurrentRoute(req); rt != nil {
			fields["route"] = rt.GetName()
		} else {
			fields["method"] = req.Method
		}
		if forwarded := req.Header.Get("X-Forwarded-For"); forwarded != "" {
			fields["forwarded_for"] = forwarded
		}
		ss.logger.WithFields(fields).Debug("request")
	})
}

func (ss *StatusServer) Run(ctx context.Context) {
	server := &http.Server{
		Addr:    ss.address,
		Handler: ss.Router,
	}

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		ss.logger.Info("shutting down status server")
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(timeoutCtx); err != nil {
			ss.logger.WithError(err).Warn("failed to stop status server")
		}
	}()

	ss.logger.WithField("address", ss.address).Info("listening")

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		ss.logger.WithError(err).Error("status server failed")
		return
	}

	// Let in-flight requests drain.
	select {
	case <-stopped:
	case <-time.After(6 * time.Second):
		ss.logger.Info("timeout waiting for status server to stop")
	}
}
