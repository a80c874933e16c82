package handlers

import (
	"manimd/internal/dispatch"
	"manimd/internal/notify"
	"manimd/internal/pkg/logger"
	"manimd/internal/retention"
	"manimd/internal/store"
)

// Version reported by the health endpoint.
const Version = "1.0.0"

type Deps struct {
	Store      *store.Store
	Dispatcher *dispatch.Dispatcher
	Sweeper    *retention.Sweeper
	Notifier   *notify.Client
	JobsDir    string
	Log        *logger.Logger
}

type Handler struct {
	store      *store.Store
	dispatcher *dispatch.Dispatcher
	sweeper    *retention.Sweeper
	notifier   *notify.Client
	jobsDir    string
	log        *logger.Logger
}

func New(d Deps) *Handler {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	return &Handler{
		store:      d.Store,
		dispatcher: d.Dispatcher,
		sweeper:    d.Sweeper,
		notifier:   d.Notifier,
		jobsDir:    d.JobsDir,
		log:        log.WithComponent("api"),
	}
}
