package app

import (
	"net/http"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

func NewTransport(lc fx.Lifecycle, log *zap.Logger) http.RoundTripper {
	return &transport{base: http.DefaultTransport, log: log}
}

type transport struct {
	base http.RoundTripper
	log  *zap.Logger
}

func (tpt *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	started := time.Now()

	resp, err := tpt.base.RoundTrip(req)
	if err != nil {
		tpt.log.Sugar().Debugw("Request failed", "url", req.URL.String(), "err", err)
		return resp, err
	}

	elapsed := time.Since(started)
	tpt.log.Sugar().Debugw("Request completed",
		"url", req.URL.String(), "status", resp.StatusCode, "elapsed_msecs", int(elapsed.Milliseconds()))
	return resp, err
}
