package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	apperrors "crop-claims/internal/common/errors"
	"crop-claims/internal/common/logger"
	"crop-claims/internal/common/validation"
	"crop-claims/internal/models"
	analyzefieldimage "crop-claims/internal/workers/claims/analyze-field-image"
	estimatedamage "crop-claims/internal/workers/claims/estimate-damage"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ErrorCodeHeader carries the claim error code on 500 responses, whose body
// stays generic.
const ErrorCodeHeader = "X-Claim-Error-Code"

const maxBodyBytes = 1 << 20

// imageFormField is the multipart field carrying a field photo.
const imageFormField = "image"

// ClaimProcessor runs one claim end to end.
type ClaimProcessor interface {
	ProcessClaim(ctx context.Context, req models.ClaimRequest) *models.ClaimResult
}

// DamageEstimator backs the standalone estimation endpoint.
type DamageEstimator interface {
	Execute(ctx context.Context, input *estimatedamage.Input) (*estimatedamage.Output, error)
}

// ImageAnalyzer backs the field photo endpoint.
type ImageAnalyzer interface {
	Execute(ctx context.Context, input *analyzefieldimage.Input) (*analyzefieldimage.Output, error)
}

// PolicyReader reads policy records from the ledger.
type PolicyReader interface {
	GetPolicy(ctx context.Context, policyID int64) (*models.Policy, error)
	FarmerPolicies(ctx context.Context, farmer string) ([]int64, error)
}

// ReadinessCheck reports whether a dependency is usable.
type ReadinessCheck func(ctx context.Context) error

type Options struct {
	Processor      ClaimProcessor
	Estimator      DamageEstimator
	Policies       PolicyReader  // optional
	Images         ImageAnalyzer // optional
	MaxImageBytes  int64
	Ready          map[string]ReadinessCheck
	RequestTimeout time.Duration
	Logger         logger.Logger
	Clock          clockwork.Clock // defaults to real time
}

type Server struct {
	processor ClaimProcessor
	estimator DamageEstimator
	policies  PolicyReader
	images    ImageAnalyzer
	maxImage  int64
	ready     map[string]ReadinessCheck
	logger    logger.Logger
	router    *chi.Mux
	timeout   time.Duration
	clock     clockwork.Clock
}

func NewServer(opts Options) *Server {
	s := &Server{
		processor: opts.Processor,
		estimator: opts.Estimator,
		policies:  opts.Policies,
		images:    opts.Images,
		maxImage:  opts.MaxImageBytes,
		ready:     opts.Ready,
		logger:    opts.Logger.WithFields(map[string]interface{}{"component": "api"}),
		timeout:   opts.RequestTimeout,
		clock:     opts.Clock,
	}
	if s.timeout <= 0 {
		s.timeout = 110 * time.Second
	}
	if s.maxImage <= 0 {
		s.maxImage = 10 << 20
	}
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Logger)
		r.Use(middleware.Timeout(s.timeout))

		r.Post("/claim_with_ai", s.handleClaim)
		r.Post("/estimate_damage", s.handleEstimate)

		if s.images != nil {
			r.Post("/analyse_field_image", s.handleAnalyseImage)
		}
		if s.policies != nil {
			r.Get("/policies/{policyId}", s.handleGetPolicy)
			r.Get("/farmers/{address}/policies", s.handleFarmerPolicies)
		}
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   s.clock.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	status := http.StatusOK
	for name, check := range s.ready {
		if err := check(r.Context()); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not_ready"
	}
	respondJSON(w, status, map[string]interface{}{
		"status": state,
		"checks": checks,
	})
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readValidated(w, r, validation.ClaimRequestValidator)
	if !ok {
		return
	}

	var req models.ClaimRequest
	if err := json.Unmarshal(body, &req); err != nil {
		respondBadRequest(w, []string{err.Error()})
		return
	}

	result := s.processor.ProcessClaim(r.Context(), req)
	if result.Outcome == models.OutcomeFailed {
		respondInternalError(w, apperrors.CodeOf(result.Err))
		return
	}

	respondJSON(w, http.StatusOK, models.NewClaimResponse(result))
}

func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readValidated(w, r, validation.EstimateRequestValidator)
	if !ok {
		return
	}

	var input estimatedamage.Input
	if err := json.Unmarshal(body, &input); err != nil {
		respondBadRequest(w, []string{err.Error()})
		return
	}

	out, err := s.estimator.Execute(r.Context(), &estimatedamage.Input{Data: input.Data})
	if err != nil {
		s.logger.Error("estimation failed", map[string]interface{}{
			"errorCode": string(apperrors.CodeOf(err)),
			"error":     err.Error(),
		})
		respondInternalError(w, apperrors.CodeOf(err))
		return
	}

	respondJSON(w, http.StatusOK, models.EstimateResponse{Res: strconv.Itoa(out.DamagePercent)})
}

func (s *Server) handleAnalyseImage(w http.ResponseWriter, r *http.Request) {
	// Multipart framing gets a little room on top of the image itself.
	r.Body = http.MaxBytesReader(w, r.Body, s.maxImage+maxBodyBytes)
	if err := r.ParseMultipartForm(maxBodyBytes); err != nil {
		respondBadRequest(w, []string{"expected multipart/form-data with an image field no larger than " +
			strconv.FormatInt(s.maxImage, 10) + " bytes"})
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile(imageFormField)
	if err != nil {
		respondBadRequest(w, []string{"image: file is required"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondBadRequest(w, []string{"image: unreadable upload"})
		return
	}

	out, err := s.images.Execute(r.Context(), &analyzefieldimage.Input{Name: header.Filename, Image: data})
	if err != nil {
		code := apperrors.CodeOf(err)
		if code == apperrors.ErrCodeInvalidRequest {
			details := err.Error()
			if stdErr, ok := apperrors.AsStandardError(err); ok {
				details = stdErr.Details
			}
			respondBadRequest(w, []string{details})
			return
		}
		s.logger.Error("image analysis failed", map[string]interface{}{
			"errorCode": string(code),
			"error":     err.Error(),
		})
		respondInternalError(w, code)
		return
	}

	respondJSON(w, http.StatusOK, models.FieldImageResponse{
		Success:  true,
		Image:    out.Name,
		Analysis: out.Analysis,
		Time:     s.clock.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleGetPolicy(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "policyId"), 10, 64)
	if err != nil || id < 0 {
		respondBadRequest(w, []string{"policyId: must be a non-negative integer"})
		return
	}

	policy, err := s.policies.GetPolicy(r.Context(), id)
	if err != nil {
		s.logger.Error("policy lookup failed", map[string]interface{}{
			"policyId": id,
			"error":    err.Error(),
		})
		respondInternalError(w, apperrors.ErrCodeInternal)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"policy": policy,
		"status": policy.Status(),
	})
}

func (s *Server) handleFarmerPolicies(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	ids, err := s.policies.FarmerPolicies(r.Context(), address)
	if err != nil {
		s.logger.Error("farmer policy lookup failed", map[string]interface{}{
			"address": address,
			"error":   err.Error(),
		})
		respondInternalError(w, apperrors.ErrCodeInternal)
		return
	}
	if ids == nil {
		ids = []int64{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"address":   address,
		"policyIds": ids,
	})
}

// readValidated reads the body and checks it against v. On failure it has
// already written the 400 response.
func (s *Server) readValidated(w http.ResponseWriter, r *http.Request, v *validation.Validator) ([]byte, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		respondBadRequest(w, []string{"unreadable request body"})
		return nil, false
	}

	result, err := v.Validate(body)
	if err != nil {
		respondBadRequest(w, []string{"request body is not valid JSON"})
		return nil, false
	}
	if !result.Valid {
		respondBadRequest(w, result.GetErrorMessages())
		return nil, false
	}
	return body, true
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondBadRequest(w http.ResponseWriter, details []string) {
	respondJSON(w, http.StatusBadRequest, map[string]interface{}{
		"error":   "Bad Request",
		"details": details,
	})
}

func respondInternalError(w http.ResponseWriter, code apperrors.ErrorCode) {
	w.Header().Set(ErrorCodeHeader, string(code))
	respondJSON(w, http.StatusInternalServerError, map[string]string{
		"error": "Internal Server Error",
	})
}
