package opshttp

import (
	"net/http"

	"github.com/jam-carter/OrderOrchestrator/internal/log"
)

type Options struct {
	Logger      log.Logger
	Port        int
	Metrics     http.Handler
	EnablePprof bool
	OnPanic     func() // e.g. the http panic counter
}
