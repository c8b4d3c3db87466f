// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/AccelByte/extend-offer-engagement/pkg/common"
	"github.com/AccelByte/extend-offer-engagement/pkg/engine"
	"github.com/AccelByte/extend-offer-engagement/pkg/offer"
	"github.com/AccelByte/extend-offer-engagement/pkg/policy"
	"github.com/AccelByte/extend-offer-engagement/pkg/session"
	"github.com/AccelByte/extend-offer-engagement/pkg/stats"

	"github.com/sirupsen/logrus"
)

const maxRequestBytes = 64 << 10

// Engine is the part of the engine the control API drives.
type Engine interface {
	OnBecameActive()
	OnEnteredBackground()
	MarkClickThrough()
	Session(ctx context.Context) (session.State, error)
	Now() time.Time
	Evaluate(ctx context.Context, ch policy.Channel, ec policy.EvalContext) policy.Decision
	RecordOutcome(ctx context.Context, event string, value int64, metadata map[string]string) error
	RequestSync(ctx context.Context) error

	TriggerOfferNotification(ctx context.Context, req *offer.Request, titlePrefix string) policy.Decision
	ShowOfferPopup(ctx context.Context, req *offer.Request) policy.Decision
	ShowOfferMessage(ctx context.Context, req *offer.Request) policy.Decision
	RegisterConversion(ctx context.Context, req *offer.Request) error
	HandleNotificationPresented(ctx context.Context, referenceID, impressionURL string) error
	HandleNotificationTapped(ctx context.Context, referenceID, offerID string) error
	HandlePopupClicked(ctx context.Context, referenceID, offerID, clickURL string) error
	HandlePopupCanceled(ctx context.Context, referenceID string) error
	SetPostSessionNotifDisabled(ctx context.Context, disabled bool) error
	SetMidSessionMessageDisabled(ctx context.Context, disabled bool) error
}

// Control serves the HTTP control API for hosts that cannot embed the engine.
type Control struct {
	engine Engine
}

func NewControl(e Engine) *Control {
	return &Control{engine: e}
}

// Routes registers every control endpoint on a new mux.
func (c *Control) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/lifecycle/active", c.becameActive)
	mux.HandleFunc("POST /v1/lifecycle/background", c.enteredBackground)
	mux.HandleFunc("GET /v1/eligibility/{channel}", c.eligibility)
	mux.HandleFunc("POST /v1/outcomes", c.recordOutcome)
	mux.HandleFunc("POST /v1/sync", c.sync)
	mux.HandleFunc("POST /v1/click-through", c.clickThrough)
	mux.HandleFunc("GET /v1/session", c.session)

	mux.HandleFunc("POST /v1/offers/notification", c.offerNotification)
	mux.HandleFunc("POST /v1/offers/popup", c.offerPopup)
	mux.HandleFunc("POST /v1/offers/message", c.offerMessage)
	mux.HandleFunc("POST /v1/conversions", c.conversion)
	mux.HandleFunc("POST /v1/notifications/{referenceId}/presented", c.notificationPresented)
	mux.HandleFunc("POST /v1/notifications/{referenceId}/tapped", c.notificationTapped)
	mux.HandleFunc("POST /v1/popups/{referenceId}/clicked", c.popupClicked)
	mux.HandleFunc("POST /v1/popups/{referenceId}/canceled", c.popupCanceled)
	mux.HandleFunc("PUT /v1/overrides", c.overrides)
	return mux
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.Warnf("failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// readJSON decodes an optional JSON body into v.
func readJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func (c *Control) becameActive(w http.ResponseWriter, r *http.Request) {
	scope := common.NewScope(r.Context(), "Control.BecameActive")
	defer scope.Finish()

	c.engine.OnBecameActive()
	writeJSON(w, http.StatusAccepted, nil)
}

func (c *Control) enteredBackground(w http.ResponseWriter, r *http.Request) {
	scope := common.NewScope(r.Context(), "Control.EnteredBackground")
	defer scope.Finish()

	c.engine.OnEnteredBackground()
	writeJSON(w, http.StatusAccepted, nil)
}

func (c *Control) clickThrough(w http.ResponseWriter, r *http.Request) {
	c.engine.MarkClickThrough()
	writeJSON(w, http.StatusAccepted, nil)
}

type sessionResponse struct {
	IsActive                  bool      `json:"isActive"`
	StartedAt                 time.Time `json:"startedAt,omitempty"`
	SessionCount              uint64    `json:"sessionCount"`
	LastResultWasClickThrough bool      `json:"lastResultWasClickThrough"`
	MidSessionFired           bool      `json:"midSessionFired"`
}

func (c *Control) session(w http.ResponseWriter, r *http.Request) {
	st, err := c.engine.Session(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		IsActive:                  st.IsActive,
		StartedAt:                 st.StartedAt,
		SessionCount:              st.SessionCount,
		LastResultWasClickThrough: st.LastResultWasClickThrough,
		MidSessionFired:           st.MidSessionFired,
	})
}

// eligibility evaluates a channel without claiming a fire slot.
// Query: trigger, sessionCount, activeSeconds. Missing values come from the live session.
func (c *Control) eligibility(w http.ResponseWriter, r *http.Request) {
	scope := common.NewScope(r.Context(), "Control.Eligibility")
	defer scope.Finish()

	ch, err := policy.ParseChannel(r.PathValue("channel"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}

	q := r.URL.Query()
	ec := policy.EvalContext{Trigger: policy.TriggerImmediate}
	if t := q.Get("trigger"); t != "" {
		if ec.Trigger, err = policy.ParseTrigger(t); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	st, err := c.engine.Session(scope.Ctx)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	ec.SessionCount = st.SessionCount
	if st.IsActive {
		ec.ActiveDuration = st.ActiveDuration(c.engine.Now())
	}
	if v := q.Get("sessionCount"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid sessionCount: %w", err))
			return
		}
		ec.SessionCount = n
	}
	if v := q.Get("activeSeconds"); v != "" {
		secs, err := strconv.ParseFloat(v, 64)
		if err != nil || secs < 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid activeSeconds %q", v))
			return
		}
		ec.ActiveDuration = time.Duration(secs * float64(time.Second))
	}

	d := c.engine.Evaluate(scope.Ctx, ch, ec)
	scope.SetAttributes("allowed", d.Allowed)
	writeJSON(w, http.StatusOK, d)
}

type outcomeRequest struct {
	Event    string            `json:"event"`
	Value    int64             `json:"value"`
	Metadata map[string]string `json:"metadata"`
}

func (c *Control) recordOutcome(w http.ResponseWriter, r *http.Request) {
	scope := common.NewScope(r.Context(), "Control.RecordOutcome")
	defer scope.Finish()

	var body outcomeRequest
	if err := readJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if body.Event == "" {
		writeError(w, http.StatusBadRequest, errors.New("event is required"))
		return
	}
	if err := c.engine.RecordOutcome(scope.Ctx, body.Event, body.Value, body.Metadata); err != nil {
		// the event is kept in memory and synced later
		scope.Log.Warnf("outcome %s not persisted: %v", body.Event, err)
	}
	writeJSON(w, http.StatusAccepted, nil)
}

func (c *Control) sync(w http.ResponseWriter, r *http.Request) {
	scope := common.NewScope(r.Context(), "Control.Sync")
	defer scope.Finish()

	err := c.engine.RequestSync(scope.Ctx)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, nil)
	case errors.Is(err, stats.ErrSyncInProgress):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, stats.ErrSyncUploadFailed):
		scope.TraceError(err)
		writeError(w, http.StatusBadGateway, err)
	default:
		scope.TraceError(err)
		writeError(w, http.StatusInternalServerError, err)
	}
}

type offerRequest struct {
	offer.Request
	TitlePrefix string `json:"titlePrefix"`
}

// withLoggedCallbacks attaches callbacks that log the outcome of an HTTP-triggered attempt.
func withLoggedCallbacks(req *offer.Request, log *logrus.Entry) *offer.Request {
	req.OnNotifScheduled = func(ok bool, reason string) {
		log.WithField("referenceId", req.ReferenceID).Infof("notification scheduled=%v %s", ok, reason)
	}
	req.OnPopupShown = func(ok bool, reason string) {
		log.WithField("referenceId", req.ReferenceID).Infof("popup shown=%v %s", ok, reason)
	}
	return req
}

func (c *Control) offerNotification(w http.ResponseWriter, r *http.Request) {
	scope := common.NewScope(r.Context(), "Control.OfferNotification")
	defer scope.Finish()

	var body offerRequest
	if err := readJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	req := withLoggedCallbacks(&body.Request, scope.Log)
	writeJSON(w, http.StatusOK, c.engine.TriggerOfferNotification(scope.Ctx, req, body.TitlePrefix))
}

func (c *Control) offerPopup(w http.ResponseWriter, r *http.Request) {
	scope := common.NewScope(r.Context(), "Control.OfferPopup")
	defer scope.Finish()

	var body offerRequest
	if err := readJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, c.engine.ShowOfferPopup(scope.Ctx, withLoggedCallbacks(&body.Request, scope.Log)))
}

func (c *Control) offerMessage(w http.ResponseWriter, r *http.Request) {
	scope := common.NewScope(r.Context(), "Control.OfferMessage")
	defer scope.Finish()

	var body offerRequest
	if err := readJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, c.engine.ShowOfferMessage(scope.Ctx, withLoggedCallbacks(&body.Request, scope.Log)))
}

func (c *Control) conversion(w http.ResponseWriter, r *http.Request) {
	var body offer.Request
	if err := readJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := c.engine.RegisterConversion(r.Context(), &body); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusAccepted, nil)
}

// writeReferenceResult maps an engine error of a reference-based call to a status.
func writeReferenceResult(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, nil)
	case errors.Is(err, engine.ErrUnknownReference):
		writeError(w, http.StatusNotFound, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func (c *Control) notificationPresented(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ImpressionURL string `json:"impressionUrl"`
	}
	if err := readJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeReferenceResult(w, c.engine.HandleNotificationPresented(r.Context(), r.PathValue("referenceId"), body.ImpressionURL))
}

func (c *Control) notificationTapped(w http.ResponseWriter, r *http.Request) {
	var body struct {
		OfferID string `json:"offerId"`
	}
	if err := readJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeReferenceResult(w, c.engine.HandleNotificationTapped(r.Context(), r.PathValue("referenceId"), body.OfferID))
}

func (c *Control) popupClicked(w http.ResponseWriter, r *http.Request) {
	var body struct {
		OfferID  string `json:"offerId"`
		ClickURL string `json:"clickUrl"`
	}
	if err := readJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeReferenceResult(w, c.engine.HandlePopupClicked(r.Context(), r.PathValue("referenceId"), body.OfferID, body.ClickURL))
}

func (c *Control) popupCanceled(w http.ResponseWriter, r *http.Request) {
	writeReferenceResult(w, c.engine.HandlePopupCanceled(r.Context(), r.PathValue("referenceId")))
}

type overridesRequest struct {
	PostSessionNotifDisabled  *bool `json:"postSessionNotifDisabled"`
	MidSessionMessageDisabled *bool `json:"midSessionMessageDisabled"`
}

func (c *Control) overrides(w http.ResponseWriter, r *http.Request) {
	var body overridesRequest
	if err := readJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if body.PostSessionNotifDisabled != nil {
		if err := c.engine.SetPostSessionNotifDisabled(r.Context(), *body.PostSessionNotifDisabled); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
	}
	if body.MidSessionMessageDisabled != nil {
		if err := c.engine.SetMidSessionMessageDisabled(r.Context(), *body.MidSessionMessageDisabled); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
	}
	writeJSON(w, http.StatusNoContent, nil)
}
