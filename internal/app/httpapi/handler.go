// Package httpapi exposes the REST API. It is the single place where
// service errors are mapped to HTTP status codes and error bodies.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	app "github.com/greenchain/greenchain/internal/app"
	"github.com/greenchain/greenchain/internal/app/domain/claim"
	"github.com/greenchain/greenchain/internal/app/domain/donation"
	"github.com/greenchain/greenchain/internal/app/domain/user"
	"github.com/greenchain/greenchain/internal/app/domain/verification"
	"github.com/greenchain/greenchain/internal/app/services"
	"github.com/greenchain/greenchain/internal/app/services/auth"
	"github.com/greenchain/greenchain/internal/app/services/donations"
	"github.com/greenchain/greenchain/internal/app/storage"
	"github.com/greenchain/greenchain/internal/middleware"
	"github.com/greenchain/greenchain/pkg/logger"
)

// Version is stamped at build time.
var Version = "dev"

type handler struct {
	app *app.Application
	log *logger.Logger
}

// NewRouter returns the API router with the middleware chain applied.
func NewRouter(application *app.Application, log *logger.Logger) http.Handler {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	h := &handler{app: application, log: log}

	r := mux.NewRouter()
	r.Use(middleware.Metrics)

	r.HandleFunc("/health", h.health).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/auth/register", h.register).Methods(http.MethodPost)
	r.HandleFunc("/auth/login", h.login).Methods(http.MethodPost)

	r.HandleFunc("/verify/{code}", h.getVerification).Methods(http.MethodGet)
	r.HandleFunc("/verify/{code}/verify", h.verifyEvent).Methods(http.MethodPost)

	// Public donation reads.
	r.HandleFunc("/donations", h.listDonations).Methods(http.MethodGet)

	authed := r.NewRoute().Subrouter()
	authed.Use(middleware.Authenticate(application.Auth))

	donor := func(next http.HandlerFunc) http.Handler {
		return middleware.RequireRole(user.RoleDonor)(next)
	}
	receiver := func(next http.HandlerFunc) http.Handler {
		return middleware.RequireRole(user.RoleReceiver)(next)
	}

	authed.Handle("/donations/mine", donor(h.myDonations)).Methods(http.MethodGet)
	authed.HandleFunc("/donations/available", h.availableDonations).Methods(http.MethodGet)
	authed.Handle("/donations/stats/overview",
		middleware.RequireRole(user.RoleDonor, user.RoleReceiver)(http.HandlerFunc(h.donationStats))).Methods(http.MethodGet)
	authed.Handle("/donations", donor(h.createDonation)).Methods(http.MethodPost)
	authed.Handle("/donations/{id}", donor(h.updateDonation)).Methods(http.MethodPatch)
	authed.Handle("/donations/{id}", donor(h.deleteDonation)).Methods(http.MethodDelete)
	authed.Handle("/donations/{id}/claim", receiver(h.claimDonation)).Methods(http.MethodPost)

	authed.Handle("/claims/mine", receiver(h.myClaims)).Methods(http.MethodGet)
	authed.Handle("/claims/{id}", receiver(h.updateClaim)).Methods(http.MethodPatch)

	// Registered last so /donations/mine and friends win.
	r.HandleFunc("/donations/{id}", h.getDonation).Methods(http.MethodGet)

	return r
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"service":   "greenchain-api",
		"version":   Version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// --- auth -------------------------------------------------------------------

func (h *handler) register(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Name     string `json:"name"`
		Role     string `json:"role"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if payload.Email == "" || payload.Password == "" || payload.Name == "" || payload.Role == "" {
		writeErrorMessage(w, http.StatusBadRequest, "Missing required fields")
		return
	}

	u, token, err := h.app.Auth.Register(r.Context(), auth.RegisterInput{
		Email:    payload.Email,
		Password: payload.Password,
		Name:     payload.Name,
		Role:     user.Role(payload.Role),
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"token": token, "user": u.Summarize()})
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if payload.Email == "" || payload.Password == "" {
		writeErrorMessage(w, http.StatusBadRequest, "Missing required fields")
		return
	}

	u, token, err := h.app.Auth.Login(r.Context(), payload.Email, payload.Password)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"token": token, "user": u.Summarize()})
}

// --- donations --------------------------------------------------------------

func (h *handler) listDonations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	views, err := h.app.Donations.List(r.Context(), donations.ListFilter{
		Status: donation.Status(q.Get("status")),
		Limit:  intQuery(q.Get("limit")),
		Offset: intQuery(q.Get("offset")),
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"donations": views})
}

func (h *handler) availableDonations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	views, err := h.app.Donations.ListAvailable(r.Context(), intQuery(q.Get("limit")), intQuery(q.Get("offset")))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"donations": views})
}

func (h *handler) myDonations(w http.ResponseWriter, r *http.Request) {
	views, err := h.app.Donations.ListMine(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"donations": views})
}

func (h *handler) donationStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	switch middleware.GetUserRole(ctx) {
	case user.RoleDonor:
		stats, err := h.app.Donations.StatsForDonor(ctx, middleware.GetUserID(ctx))
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	case user.RoleReceiver:
		stats, err := h.app.Donations.StatsForReceiver(ctx)
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	default:
		writeErrorMessage(w, http.StatusForbidden, "You are not authorized to perform this action")
	}
}

func (h *handler) getDonation(w http.ResponseWriter, r *http.Request) {
	v, err := h.app.Donations.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

type donationPayload struct {
	Title    *string  `json:"title"`
	Category *string  `json:"category"`
	Quantity *float64 `json:"quantity"`
	Unit     *string  `json:"unit"`
	Location *string  `json:"location"`
	Expiry   *string  `json:"expiryDate"`
	Notes    *string  `json:"notes"`
	ImageURL *string  `json:"imageUrl"`
}

func (h *handler) createDonation(w http.ResponseWriter, r *http.Request) {
	var payload donationPayload
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if payload.Title == nil || payload.Category == nil || payload.Quantity == nil ||
		payload.Unit == nil || payload.Location == nil || payload.Expiry == nil {
		writeErrorMessage(w, http.StatusBadRequest, "Missing required fields")
		return
	}
	expiry, err := time.Parse(time.RFC3339, *payload.Expiry)
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "Invalid expiry date")
		return
	}

	in := donations.CreateInput{
		Title:    *payload.Title,
		Category: *payload.Category,
		Quantity: *payload.Quantity,
		Unit:     *payload.Unit,
		Location: *payload.Location,
		Expiry:   expiry,
	}
	if payload.Notes != nil {
		in.Notes = *payload.Notes
	}
	if payload.ImageURL != nil {
		in.ImageURL = *payload.ImageURL
	}

	v, err := h.app.Donations.Create(r.Context(), middleware.GetUserID(r.Context()), in)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message":  "Donation created successfully",
		"id":       v.ID,
		"donation": v,
	})
}

func (h *handler) updateDonation(w http.ResponseWriter, r *http.Request) {
	var payload donationPayload
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	in := donations.UpdateInput{
		Title:    payload.Title,
		Category: payload.Category,
		Quantity: payload.Quantity,
		Unit:     payload.Unit,
		Location: payload.Location,
		Notes:    payload.Notes,
		ImageURL: payload.ImageURL,
	}
	if payload.Expiry != nil {
		expiry, err := time.Parse(time.RFC3339, *payload.Expiry)
		if err != nil {
			writeErrorMessage(w, http.StatusBadRequest, "Invalid expiry date")
			return
		}
		in.Expiry = &expiry
	}

	v, err := h.app.Donations.Update(r.Context(), middleware.GetUserID(r.Context()), mux.Vars(r)["id"], in)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"message": "Donation updated", "donation": v})
}

func (h *handler) deleteDonation(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Donations.Delete(r.Context(), middleware.GetUserID(r.Context()), mux.Vars(r)["id"]); err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Donation deleted"})
}

// --- claims -----------------------------------------------------------------

func (h *handler) claimDonation(w http.ResponseWriter, r *http.Request) {
	c, err := h.app.Claims.Claim(r.Context(), mux.Vars(r)["id"], middleware.GetUserID(r.Context()))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "Donation claimed successfully",
		"claim":   c,
	})
}

func (h *handler) myClaims(w http.ResponseWriter, r *http.Request) {
	views, err := h.app.Claims.ListMine(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"claims": views})
}

func (h *handler) updateClaim(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	target := claim.Status(payload.Status)
	if !target.Valid() {
		writeErrorMessage(w, http.StatusBadRequest, "Invalid status")
		return
	}

	c, err := h.app.Claims.UpdateStatus(r.Context(), mux.Vars(r)["id"], middleware.GetUserID(r.Context()), target)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"message": "Claim updated", "claim": c})
}

// --- verification -----------------------------------------------------------

func (h *handler) getVerification(w http.ResponseWriter, r *http.Request) {
	v, err := h.app.Verification.Get(r.Context(), mux.Vars(r)["code"])
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	message := "Pending verification"
	if v.Verified() {
		message = "Donation verified and recorded"
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"eventId":      v.Code,
		"donationId":   v.DonationID,
		"donation":     v.Donation,
		"eventType":    v.Type,
		"verified":     v.Verified(),
		"scheduledFor": v.ScheduledFor,
		"verifiedAt":   v.VerifiedAt,
		"dataHash":     v.DataHash,
		"txHash":       v.TxRef,
		"notes":        v.Notes,
		"message":      message,
	})
}

func (h *handler) verifyEvent(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		DataHash string `json:"dataHash"`
		Notes    string `json:"notes"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil && !errors.Is(err, io.EOF) {
		writeErrorMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	e, err := h.app.Verification.Verify(r.Context(), mux.Vars(r)["code"], payload.DataHash, payload.Notes)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Verification recorded successfully",
		"event":   e,
		"txHash":  e.TxRef,
	})
}

// --- helpers ----------------------------------------------------------------

// writeServiceError is the single mapping from service errors to HTTP
// responses. Messages match what the frontend expects. Anything not
// recognized here is an internal failure; its detail goes to the log, never
// to the client.
func (h *handler) writeServiceError(w http.ResponseWriter, err error) {
	var invalid services.InvalidInputError
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeErrorMessage(w, http.StatusNotFound, "Not found")
	case errors.Is(err, auth.ErrEmailTaken):
		writeErrorMessage(w, http.StatusConflict, "Email already registered")
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeErrorMessage(w, http.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, auth.ErrInvalidRole):
		writeErrorMessage(w, http.StatusBadRequest, "Invalid role")
	case errors.Is(err, donation.ErrNotAvailable):
		writeErrorMessage(w, http.StatusBadRequest, "Donation is no longer available")
	case errors.Is(err, donation.ErrExpired):
		writeErrorMessage(w, http.StatusBadRequest, "This donation has expired and is no longer available")
	case errors.Is(err, claim.ErrAlreadyClaimed):
		writeErrorMessage(w, http.StatusBadRequest, "You have already claimed this donation")
	case errors.Is(err, claim.ErrInvalidTransition):
		writeErrorMessage(w, http.StatusBadRequest, "Invalid status transition")
	case errors.Is(err, verification.ErrAlreadyVerified):
		writeErrorMessage(w, http.StatusBadRequest, "This event has already been verified")
	case errors.Is(err, donations.ErrHasActiveClaims):
		writeErrorMessage(w, http.StatusBadRequest, "Donation has active claims and cannot be deleted")
	case errors.Is(err, storage.ErrConflict):
		writeErrorMessage(w, http.StatusConflict, "Conflict")
	case errors.As(err, &invalid):
		writeErrorMessage(w, http.StatusBadRequest, invalid.Error())
	default:
		h.log.WithError(err).Error("request failed")
		writeErrorMessage(w, http.StatusInternalServerError, "Internal server error")
	}
}

func intQuery(raw string) int {
	n, _ := strconv.Atoi(raw)
	return n
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeErrorMessage(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
