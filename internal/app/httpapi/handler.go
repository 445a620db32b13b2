// Package httpapi exposes the proof pipeline over HTTP.
package httpapi

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/markaproof/marka/internal/app/domain/proof"
	proofssvc "github.com/markaproof/marka/internal/app/services/proofs"
	"github.com/markaproof/marka/internal/fingerprint"
	"github.com/markaproof/marka/internal/middleware"
	"github.com/markaproof/marka/internal/ton"
	"github.com/markaproof/marka/pkg/logger"
)

// maxUploadBytes caps anchor uploads at 32 MiB.
const maxUploadBytes = 32 << 20

// handler bundles the HTTP endpoints for the proof service.
type handler struct {
	proofs *proofssvc.Service
	log    *logger.Logger
}

// NewRouter returns the service router with metrics and rate limiting
// applied.
func NewRouter(proofs *proofssvc.Service, log *logger.Logger) *mux.Router {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	h := &handler{proofs: proofs, log: log}

	r := mux.NewRouter()
	r.Use(middleware.Metrics())
	r.Use(middleware.NewRateLimiter(20, 40, log).Handler)

	r.HandleFunc("/api/proofs/submit", h.submit).Methods(http.MethodPost)
	r.HandleFunc("/api/proofs/verify", h.verify).Methods(http.MethodPost)
	r.HandleFunc("/api/proofs/anchor", h.anchor).Methods(http.MethodPost)
	r.HandleFunc("/api/proofs/history", h.history).Methods(http.MethodGet)
	r.HandleFunc("/api/proofs/submitter/{ref}", h.bySubmitter).Methods(http.MethodGet)
	r.HandleFunc("/api/proofs", h.get).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	return r
}

type submitPayload struct {
	Fingerprint  string `json:"fingerprint"`
	FileName     string `json:"fileName"`
	FileSize     int64  `json:"fileSize"`
	FileType     string `json:"fileType"`
	SubmitterRef string `json:"submitterRef"`
	Boc          string `json:"boc"`
}

func (p submitPayload) request() proofssvc.SubmitRequest {
	return proofssvc.SubmitRequest{
		Fingerprint:  p.Fingerprint,
		FileName:     p.FileName,
		FileSize:     p.FileSize,
		FileType:     p.FileType,
		SubmitterRef: p.SubmitterRef,
		Evidence:     p.Boc,
	}
}

// submit triggers asynchronous verification: the response carries the
// pending record before the background task resolves it.
func (h *handler) submit(w http.ResponseWriter, r *http.Request) {
	var payload submitPayload
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	created, err := h.proofs.SubmitAsync(r.Context(), payload.request())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusAccepted, created)
}

// verify blocks through verification and returns a resolved record.
func (h *handler) verify(w http.ResponseWriter, r *http.Request) {
	var payload submitPayload
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resolved, err := h.proofs.VerifySync(r.Context(), payload.request())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, resolved)
}

// anchor accepts a multipart file upload, fingerprints it server-side and
// broadcasts the anchoring transfer from the service wallet.
func (h *handler) anchor(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("file upload missing: %w", err))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("file upload missing"))
		return
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("read upload: %w", err))
		return
	}
	if len(content) > maxUploadBytes {
		writeError(w, http.StatusRequestEntityTooLarge, fmt.Errorf("file exceeds %d bytes", maxUploadBytes))
		return
	}

	created, err := h.proofs.Anchor(r.Context(), proofssvc.AnchorRequest{
		Fingerprint:  fingerprint.Digest(content),
		FileName:     header.Filename,
		FileSize:     header.Size,
		FileType:     header.Header.Get("Content-Type"),
		SubmitterRef: r.FormValue("submitterRef"),
	})
	if err != nil {
		h.log.WithError(err).Warn("anchor submission failed")
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, created)
}

// get returns a record by id; a 64-hex identifier is treated as a
// fingerprint and resolves to the most recent record carrying it.
func (h *handler) get(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("missing id"))
		return
	}

	p, err := h.proofs.Get(r.Context(), id)
	if err != nil {
		writeError(w, statusFor(err), fmt.Errorf("proof not found"))
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handler) history(w http.ResponseWriter, r *http.Request) {
	fp := r.URL.Query().Get("fingerprint")
	proofsList, err := h.proofs.History(r.Context(), fp)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if proofsList == nil {
		proofsList = []proof.Proof{}
	}
	writeJSON(w, http.StatusOK, proofsList)
}

func (h *handler) bySubmitter(w http.ResponseWriter, r *http.Request) {
	ref := mux.Vars(r)["ref"]
	proofsList, err := h.proofs.BySubmitter(r.Context(), ref)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if proofsList == nil {
		proofsList = []proof.Proof{}
	}
	writeJSON(w, http.StatusOK, proofsList)
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusFor maps the pipeline error taxonomy onto HTTP statuses. Handlers
// never surface raw internals to callers.
func statusFor(err error) int {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return http.StatusNotFound
	case errors.Is(err, proof.ErrInvalidFingerprint),
		errors.Is(err, proofssvc.ErrMalformedEvidence),
		errors.Is(err, proofssvc.ErrMissingFileName),
		errors.Is(err, proofssvc.ErrMissingEvidence):
		return http.StatusBadRequest
	case errors.Is(err, ton.ErrConfig):
		return http.StatusInternalServerError
	case errors.Is(err, ton.ErrLedgerUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
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

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
