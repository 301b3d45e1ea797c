package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"seatwatch/config"
	"seatwatch/lib"
	"seatwatch/lib/vacancy"
)

func NewAPI(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger, svc *lib.Service) *http.Server {
	addr := fmt.Sprintf(":%d", cfg.ServerPort)
	srv := &http.Server{Addr: addr, Handler: router(cfg, log, svc)}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go srv.ListenAndServe()
			return nil
		},
		OnStop: srv.Shutdown,
	})

	return srv
}

func router(cfg *config.Config, log *zap.Logger, svc *lib.Service) http.Handler {
	ctrl := &controller{log, svc}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		if creds := cfg.GetCreds(); len(creds) > 0 {
			r.Use(middleware.BasicAuth("seatwatch", creds))
		} else {
			log.Sugar().Info("Auth is disabled since no credentials are defined")
		}

		r.Route("/subscribers", func(r chi.Router) {
			r.Post("/", ctrl.registerSubscriber)
			r.Post("/{subscriber_id}/optout", ctrl.optOut)
			r.Route("/{subscriber_id}/subscriptions", func(r chi.Router) {
				r.Post("/", ctrl.subscribe)
				r.Get("/", ctrl.listSubscriptions)
				r.Delete("/{subscription_id}", ctrl.unsubscribe)
				r.Get("/{subscription_id}/history", ctrl.history)
			})
		})
		r.Get("/vacancies/{course_code}", ctrl.browseCourse)
	})

	return r
}

type controller struct {
	log *zap.Logger
	svc *lib.Service
}

func (ctrl *controller) reject(w http.ResponseWriter, status int, err error) {
	if err != nil {
		http.Error(w, err.Error(), status)
	} else {
		w.WriteHeader(status)
	}
}

func (ctrl *controller) resolve(w http.ResponseWriter, status int, body any) {
	if b, err := json.Marshal(body); err != nil {
		ctrl.reject(w, http.StatusInternalServerError, err)
		ctrl.log.Sugar().Errorw("Request failed", "error", err)
		return
	} else {
		w.WriteHeader(status)
		if b != nil {
			w.Write(b)
		}
	}
}

// rejectErr maps service and source errors onto statuses.
func (ctrl *controller) rejectErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, lib.ErrSubscriberNotFound) || errors.Is(err, lib.ErrSubscriptionNotFound):
		ctrl.reject(w, http.StatusNotFound, err)
	case errors.Is(err, lib.ErrDuplicateSubscription):
		ctrl.reject(w, http.StatusConflict, err)
	case errors.Is(err, vacancy.ErrIndexNotFound):
		ctrl.reject(w, http.StatusNotFound, err)
	case errors.Is(err, vacancy.ErrOutOfServiceHours):
		ctrl.reject(w, http.StatusServiceUnavailable, err)
	default:
		ctrl.reject(w, http.StatusInternalServerError, err)
	}
}

func (ctrl *controller) registerSubscriber(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	platform := r.FormValue("platform")
	identifier := r.FormValue("identifier")

	if platform == "" {
		ctrl.reject(w, 400, errors.New("Platform is required"))
		return
	}
	if identifier == "" {
		ctrl.reject(w, 400, errors.New("Identifier is required"))
		return
	}

	subscriber, err := ctrl.svc.RegisterSubscriber(ctx, platform, identifier)
	if err != nil {
		ctrl.rejectErr(w, err)
		return
	}
	ctrl.resolve(w, http.StatusAccepted, SubscriberView{}.From(subscriber))
}

func (ctrl *controller) subscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subscriberID := parseInt(chi.URLParam(r, "subscriber_id"))
	courseCode := r.FormValue("course_code")
	indexNumber := r.FormValue("index_number")

	if courseCode == "" {
		ctrl.reject(w, 400, errors.New("Course code is required"))
		return
	}
	if indexNumber == "" {
		ctrl.reject(w, 400, errors.New("Index number is required"))
		return
	}

	subscription, record, err := ctrl.svc.Subscribe(ctx, subscriberID, courseCode, indexNumber)
	if err != nil {
		ctrl.rejectErr(w, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, map[string]any{
		"subscription": SubscriptionView{}.From(subscription),
		"current":      RecordView{}.From(record),
	})
}

func (ctrl *controller) listSubscriptions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subscriberID := parseInt(chi.URLParam(r, "subscriber_id"))

	subscriptions, err := ctrl.svc.ListSubscriptions(ctx, subscriberID)
	if err != nil {
		ctrl.rejectErr(w, err)
		return
	}

	views := make([]SubscriptionView, len(subscriptions))
	for i := range subscriptions {
		views[i] = SubscriptionView{}.From(&subscriptions[i])
	}
	ctrl.resolve(w, http.StatusOK, views)
}

func (ctrl *controller) unsubscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subscriberID := parseInt(chi.URLParam(r, "subscriber_id"))
	subscriptionID := parseInt(chi.URLParam(r, "subscription_id"))

	if err := ctrl.svc.Unsubscribe(ctx, subscriberID, subscriptionID); err != nil {
		ctrl.rejectErr(w, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, map[string]any{"deactivated": subscriptionID})
}

func (ctrl *controller) optOut(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subscriberID := parseInt(chi.URLParam(r, "subscriber_id"))

	n, err := ctrl.svc.OptOut(ctx, subscriberID)
	if err != nil {
		ctrl.rejectErr(w, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, map[string]any{"deactivated_count": n})
}

func (ctrl *controller) history(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subscriberID := parseInt(chi.URLParam(r, "subscriber_id"))
	subscriptionID := parseInt(chi.URLParam(r, "subscription_id"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	entries, err := ctrl.svc.History(ctx, subscriberID, subscriptionID, limit)
	if err != nil {
		ctrl.rejectErr(w, err)
		return
	}

	views := make([]HistoryView, len(entries))
	for i := range entries {
		views[i] = HistoryView{}.From(&entries[i])
	}
	ctrl.resolve(w, http.StatusOK, views)
}

func (ctrl *controller) browseCourse(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	courseCode := chi.URLParam(r, "course_code")

	records, err := ctrl.svc.BrowseCourse(ctx, courseCode)
	if err != nil {
		ctrl.rejectErr(w, err)
		return
	}

	views := make([]RecordView, len(records))
	for i := range records {
		views[i] = RecordView{}.From(&records[i])
	}
	ctrl.resolve(w, http.StatusOK, views)
}

func parseInt(s string) uint {
	u, _ := strconv.ParseUint(s, 10, 64)
	return uint(u)
}
