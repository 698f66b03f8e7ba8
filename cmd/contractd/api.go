package main

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/animus-labs/animus-contracts/internal/audit"
	"github.com/animus-labs/animus-contracts/internal/auditexport"
	"github.com/animus-labs/animus-contracts/internal/canonical"
	"github.com/animus-labs/animus-contracts/internal/domain"
	"github.com/animus-labs/animus-contracts/internal/platform/auth"
	"github.com/animus-labs/animus-contracts/internal/platform/httpserver"
	"github.com/animus-labs/animus-contracts/internal/repo"
	"github.com/animus-labs/animus-contracts/internal/service/contracts"
	"github.com/animus-labs/animus-contracts/internal/signing"
)

const maxBodyBytes = 1 << 20

type instrumenter interface {
	Instrument(route string, next http.Handler) http.Handler
}

type contractsAPI struct {
	logger  *slog.Logger
	svc     *contracts.Service
	metrics instrumenter
}

func newContractsAPI(logger *slog.Logger, svc *contracts.Service, metrics instrumenter) *contractsAPI {
	return &contractsAPI{logger: logger, svc: svc, metrics: metrics}
}

func (api *contractsAPI) register(mux *http.ServeMux) {
	api.handle(mux, "POST /contracts", api.handleCreate)
	api.handle(mux, "GET /contracts", api.handleList)
	api.handle(mux, "GET /contracts/{id}", api.handleGet)
	api.handle(mux, "GET /contracts/{id}/digest", api.handleDigest)
	api.handle(mux, "POST /contracts/{id}/transitions", api.handleTransition)
	api.handle(mux, "POST /contracts/{id}/signatures", api.handleSign)
	api.handle(mux, "GET /contracts/{id}/signatures/verify", api.handleVerifySignatures)
	api.handle(mux, "PUT /contracts/{id}/terms", api.handleAmendTerms)
	api.handle(mux, "GET /contracts/{id}/audit", api.handleAuditTrail)
	api.handle(mux, "GET /contracts/{id}/audit/verify", api.handleVerifyAudit)
}

func (api *contractsAPI) handle(mux *http.ServeMux, pattern string, fn http.HandlerFunc) {
	var h http.Handler = fn
	if api.metrics != nil {
		h = api.metrics.Instrument(pattern, h)
	}
	mux.Handle(pattern, h)
}

type partyPayload struct {
	Identity string `json:"identity"`
	Role     string `json:"role"`
	Required bool   `json:"required"`
}

type signaturePayload struct {
	Signer    string    `json:"signer"`
	Digest    string    `json:"digest"`
	Signature string    `json:"signature"`
	SignedAt  time.Time `json:"signed_at"`
}

type contractPayload struct {
	ID             string               `json:"id"`
	Title          string               `json:"title,omitempty"`
	Status         string               `json:"status"`
	Parties        []partyPayload       `json:"parties"`
	Terms          domain.Metadata      `json:"terms"`
	Signatures     []signaturePayload   `json:"signatures"`
	Approvals      map[string]time.Time `json:"approvals"`
	PendingSigners []string             `json:"pending_signers"`
	Digest         string               `json:"digest"`
	ValidFrom      time.Time            `json:"valid_from"`
	ValidUntil     *time.Time           `json:"valid_until,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
	CreatedBy      string               `json:"created_by"`
	UpdatedAt      time.Time            `json:"updated_at"`
	Version        int64                `json:"version"`
}

func contractFromDomain(c domain.Contract) contractPayload {
	out := contractPayload{
		ID:             c.ID,
		Title:          c.Title,
		Status:         string(c.Status),
		Parties:        make([]partyPayload, 0, len(c.Parties)),
		Terms:          c.Terms,
		Signatures:     make([]signaturePayload, 0, len(c.Signatures)),
		Approvals:      c.Approvals,
		PendingSigners: c.PendingSigners(),
		ValidFrom:      c.ValidFrom,
		ValidUntil:     c.ValidUntil,
		CreatedAt:      c.CreatedAt,
		CreatedBy:      c.CreatedBy,
		UpdatedAt:      c.UpdatedAt,
		Version:        c.Version,
	}
	if out.Terms == nil {
		out.Terms = domain.Metadata{}
	}
	if digest, err := canonical.Digest(c); err == nil {
		out.Digest = hex.EncodeToString(digest)
	}
	for _, p := range c.Parties {
		out.Parties = append(out.Parties, partyPayload{Identity: p.Identity, Role: string(p.Role), Required: p.Required})
	}
	for _, signer := range c.RequiredParties() {
		sig, ok := c.Signatures[signer]
		if !ok {
			continue
		}
		out.Signatures = append(out.Signatures, signaturePayload{
			Signer:    sig.Signer,
			Digest:    hex.EncodeToString(sig.Digest),
			Signature: base64.StdEncoding.EncodeToString(sig.Signature),
			SignedAt:  sig.SignedAt,
		})
	}
	return out
}

type createContractRequest struct {
	Provider   string          `json:"provider"`
	Consumers  []string        `json:"consumers"`
	Parties    []partyPayload  `json:"parties"`
	Title      string          `json:"title"`
	Terms      domain.Metadata `json:"terms"`
	ValidFrom  *time.Time      `json:"valid_from,omitempty"`
	ValidUntil *time.Time      `json:"valid_until,omitempty"`
}

func (api *contractsAPI) handleCreate(w http.ResponseWriter, r *http.Request) {
	actor, ok := api.actor(w, r)
	if !ok {
		return
	}
	var req createContractRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}
	in := contracts.CreateRequest{
		Actor:      actor,
		Provider:   req.Provider,
		Consumers:  req.Consumers,
		Title:      req.Title,
		Terms:      req.Terms,
		ValidUntil: req.ValidUntil,
	}
	if req.ValidFrom != nil {
		in.ValidFrom = *req.ValidFrom
	}
	for _, p := range req.Parties {
		in.Parties = append(in.Parties, domain.Party{Identity: p.Identity, Role: domain.PartyRole(p.Role), Required: p.Required})
	}
	c, err := api.svc.Create(r.Context(), in)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Location", "/contracts/"+c.ID)
	httpserver.WriteJSON(w, http.StatusCreated, contractFromDomain(c))
}

func (api *contractsAPI) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repo.ContractFilter{
		Party:  strings.TrimSpace(q.Get("party")),
		Status: domain.ContractStatus(strings.TrimSpace(q.Get("status"))),
	}
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > 1000 {
			api.writeError(w, r, http.StatusBadRequest, "invalid_limit")
			return
		}
		filter.Limit = limit
	} else {
		filter.Limit = 100
	}
	items, err := api.svc.List(r.Context(), filter)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	out := make([]contractPayload, 0, len(items))
	for _, c := range items {
		out = append(out, contractFromDomain(c))
	}
	httpserver.WriteJSON(w, http.StatusOK, map[string]any{"contracts": out})
}

func (api *contractsAPI) handleGet(w http.ResponseWriter, r *http.Request) {
	c, err := api.svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, contractFromDomain(c))
}

func (api *contractsAPI) handleDigest(w http.ResponseWriter, r *http.Request) {
	digest, err := api.svc.Digest(r.Context(), r.PathValue("id"))
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, map[string]any{
		"contract_id": r.PathValue("id"),
		"algorithm":   "sha256",
		"digest":      hex.EncodeToString(digest),
	})
}

type transitionRequest struct {
	Event     string          `json:"event"`
	Reason    string          `json:"reason,omitempty"`
	Fulfilled bool            `json:"fulfilled,omitempty"`
	Terms     domain.Metadata `json:"terms,omitempty"`
}

func (api *contractsAPI) handleTransition(w http.ResponseWriter, r *http.Request) {
	actor, ok := api.actor(w, r)
	if !ok {
		return
	}
	var req transitionRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}
	event, ok := domain.ParseEvent(req.Event)
	if !ok {
		api.writeError(w, r, http.StatusBadRequest, "unknown_event")
		return
	}
	status, err := api.svc.Transition(r.Context(), r.PathValue("id"), event, actor, contracts.Payload{
		Reason:    req.Reason,
		Fulfilled: req.Fulfilled,
		Terms:     req.Terms,
	})
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, map[string]any{"id": r.PathValue("id"), "status": status})
}

type signRequest struct {
	Signature string `json:"signature"`
	Digest    string `json:"digest,omitempty"`
}

// handleSign records the caller's signature. With a digest the caller
// asserts which revision it signed; without one the current digest is used.
func (api *contractsAPI) handleSign(w http.ResponseWriter, r *http.Request) {
	actor, ok := api.actor(w, r)
	if !ok {
		return
	}
	var req signRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}
	sig, err := signing.DecodeSignature(req.Signature)
	if err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_signature_encoding")
		return
	}
	id := r.PathValue("id")
	var status domain.ContractStatus
	if strings.TrimSpace(req.Digest) == "" {
		status, err = api.svc.Sign(r.Context(), id, actor, sig)
	} else {
		digest, derr := signing.DecodeDigest(req.Digest)
		if derr != nil {
			api.writeError(w, r, http.StatusBadRequest, "invalid_digest_encoding")
			return
		}
		status, err = api.svc.SignDigest(r.Context(), id, contracts.SignRequest{Signer: actor, Digest: digest, Signature: sig})
	}
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, map[string]any{"id": id, "status": status})
}

type amendTermsRequest struct {
	Terms domain.Metadata `json:"terms"`
}

func (api *contractsAPI) handleAmendTerms(w http.ResponseWriter, r *http.Request) {
	actor, ok := api.actor(w, r)
	if !ok {
		return
	}
	var req amendTermsRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}
	status, err := api.svc.AmendTerms(r.Context(), r.PathValue("id"), actor, req.Terms)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, map[string]any{"id": r.PathValue("id"), "status": status})
}

func (api *contractsAPI) handleVerifySignatures(w http.ResponseWriter, r *http.Request) {
	report, err := api.svc.VerifySignatures(r.Context(), r.PathValue("id"))
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	problems := make([]map[string]string, 0, len(report.Problems))
	for _, p := range report.Problems {
		problems = append(problems, map[string]string{"signer": p.Signer, "reason": p.Reason})
	}
	httpserver.WriteJSON(w, http.StatusOK, map[string]any{
		"contract_id":     report.ContractID,
		"status":          report.Status,
		"quorum_complete": report.QuorumComplete,
		"verified":        nonNil(report.Verified),
		"pending":         nonNil(report.Pending),
		"problems":        problems,
		"valid":           len(problems) == 0,
	})
}

// handleAuditTrail returns the trail as JSON, or as NDJSON when
// format=ndjson is requested.
func (api *contractsAPI) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var rng audit.Range
	var err error
	if rng.From, err = parseSeq(q.Get("from")); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_range")
		return
	}
	if rng.To, err = parseSeq(q.Get("to")); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_range")
		return
	}
	events, err := api.svc.AuditTrail(r.Context(), r.PathValue("id"), rng)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	if strings.EqualFold(q.Get("format"), "ndjson") {
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.WriteHeader(http.StatusOK)
		if err := auditexport.WriteNDJSON(w, events); err != nil {
			api.logger.Warn("audit trail stream failed", "contract_id", r.PathValue("id"), "error", err)
		}
		return
	}
	out := make([]auditexport.Record, 0, len(events))
	for _, ev := range events {
		out = append(out, auditexport.FromEvent(ev))
	}
	httpserver.WriteJSON(w, http.StatusOK, map[string]any{"events": out})
}

func (api *contractsAPI) handleVerifyAudit(w http.ResponseWriter, r *http.Request) {
	report, err := api.svc.VerifyAuditTrail(r.Context(), r.PathValue("id"))
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	body := map[string]any{
		"contract_id": r.PathValue("id"),
		"events":      report.Events,
		"head_sha256": report.Head,
		"valid":       report.Valid,
	}
	if report.Error != "" {
		body["error"] = report.Error
	}
	httpserver.WriteJSON(w, http.StatusOK, body)
}

func (api *contractsAPI) actor(w http.ResponseWriter, r *http.Request) (string, bool) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok || strings.TrimSpace(p.Subject) == "" {
		api.writeError(w, r, http.StatusUnauthorized, "unauthorized")
		return "", false
	}
	return p.Subject, true
}

func statusForKind(kind domain.Kind) int {
	switch kind {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindInvalidContract, domain.KindInvalidSignature:
		return http.StatusBadRequest
	case domain.KindUnauthorized, domain.KindUnknownSigner:
		return http.StatusForbidden
	case domain.KindInvalidTransition, domain.KindAlreadySigned, domain.KindStaleDigest, domain.KindConcurrentModification:
		return http.StatusConflict
	case domain.KindBusy, domain.KindPersistenceUnavailable, domain.KindIdentityUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (api *contractsAPI) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.KindOf(err)
	if kind == "" {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			api.writeError(w, r, http.StatusServiceUnavailable, "request_cancelled")
			return
		}
		api.logger.Error("contract request failed", "request_id", r.Header.Get("X-Request-Id"), "error", err)
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	status := statusForKind(kind)
	if status >= 500 {
		api.logger.Error("contract request failed", "request_id", r.Header.Get("X-Request-Id"), "kind", kind, "error", err)
	}
	if kind == domain.KindBusy {
		w.Header().Set("Retry-After", "1")
	}
	httpserver.WriteJSON(w, status, map[string]any{
		"error":      string(kind),
		"message":    err.Error(),
		"request_id": r.Header.Get("X-Request-Id"),
	})
}

func (api *contractsAPI) writeError(w http.ResponseWriter, r *http.Request, status int, code string) {
	httpserver.WriteJSON(w, status, map[string]any{
		"error":      code,
		"request_id": r.Header.Get("X-Request-Id"),
	})
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err == nil {
		return errors.New("multiple JSON values")
	}
	return nil
}

func parseSeq(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 1 {
		return 0, errors.New("sequence must be a positive integer")
	}
	return n, nil
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
