package reports

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/joffchandler/Sentinel-flight-ops/internal/apperrors"
	"github.com/joffchandler/Sentinel-flight-ops/internal/principals"
	"github.com/joffchandler/Sentinel-flight-ops/internal/risk"
	"github.com/rs/zerolog/log"
)

// evidenceFormOverhead allows for multipart headers around the file part.
const evidenceFormOverhead = 64 << 10

func writeError(w http.ResponseWriter, r *http.Request, err error, action string) {
	switch {
	case errors.Is(err, ErrReportNotFound):
		apperrors.WriteNotFound(w, r, "Report not found")
	case errors.Is(err, ErrOverrideNotAllowed), errors.Is(err, ErrOverrideExists), errors.Is(err, ErrReportDeleted):
		apperrors.WriteConflict(w, r, err.Error())
	case errors.Is(err, ErrEvidenceTooLarge):
		apperrors.WritePayloadTooLarge(w, r, err.Error())
	case errors.Is(err, risk.ErrSuperseded):
		apperrors.WriteConflict(w, r, "Evaluation superseded by a newer evaluation")
	default:
		apperrors.WriteServiceError(w, r, err, action)
	}
}

func showDeleted(r *http.Request) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get("show_deleted"))
	return v
}

func (s *Service) views(reports []Report) []View {
	now := s.now()
	out := make([]View, 0, len(reports))
	for i := range reports {
		out = append(out, reports[i].ViewAt(now))
	}
	return out
}

// HandleEvaluate handles POST /api/v1/evaluations
func HandleEvaluate(ev *Evaluator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req EvaluationRequest
		if !apperrors.ReadJSON(w, r, &req) {
			return
		}

		result, err := ev.Evaluate(ctx, principals.FromContext(ctx), req)
		if err != nil {
			if errors.Is(err, risk.ErrAbandoned) {
				log.Info().Str("request_id", apperrors.GetRequestID(ctx)).Msg("Evaluation abandoned by client")
				return
			}
			writeError(w, r, err, "run evaluation")
			return
		}

		now := ev.reports.Now()
		resp := map[string]any{
			"outcome":  result.Outcome,
			"personal": result.Committed.Personal.ViewAt(now),
		}
		if result.Committed.Org != nil {
			resp["org"] = result.Committed.Org.ViewAt(now)
		}
		apperrors.WriteSuccess(w, r, http.StatusCreated, resp)
	}
}

// HandleListPersonal handles GET /api/v1/me/reports
func HandleListPersonal(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		reports, err := svc.ListPersonal(ctx, principals.FromContext(ctx))
		if err != nil {
			writeError(w, r, err, "list reports")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"reports": svc.views(reports),
		})
	}
}

// HandleGetPersonal handles GET /api/v1/me/reports/{report_id}
func HandleGetPersonal(svc *Service) http.HandlerFunc {
	return handleGet(svc, false)
}

// HandleGetOrg handles GET /api/v1/orgs/{org_id}/reports/{report_id}
func HandleGetOrg(svc *Service) http.HandlerFunc {
	return handleGet(svc, true)
}

func refFrom(r *http.Request, org bool) Ref {
	ref := Ref{ReportID: chi.URLParam(r, "report_id")}
	if org {
		ref.OrgID = chi.URLParam(r, "org_id")
	}
	return ref
}

func handleGet(svc *Service, org bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		report, err := svc.Get(ctx, principals.FromContext(ctx), refFrom(r, org))
		if err != nil {
			writeError(w, r, err, "get report")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"report": report.ViewAt(svc.Now()),
		})
	}
}

// HandleListOrg handles GET /api/v1/orgs/{org_id}/reports
func HandleListOrg(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		reports, err := svc.ListOrg(ctx, principals.FromContext(ctx), chi.URLParam(r, "org_id"), showDeleted(r))
		if err != nil {
			writeError(w, r, err, "list reports")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"reports": svc.views(reports),
		})
	}
}

// HandleUpdateMetadata handles PATCH /api/v1/orgs/{org_id}/reports/{report_id}
func HandleUpdateMetadata(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req MetadataUpdate
		if !apperrors.ReadJSON(w, r, &req) {
			return
		}

		report, err := svc.UpdateMetadata(ctx, principals.FromContext(ctx), chi.URLParam(r, "org_id"), chi.URLParam(r, "report_id"), req)
		if err != nil {
			writeError(w, r, err, "update report")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"report": report.ViewAt(svc.Now()),
		})
	}
}

// HandleDelete handles DELETE /api/v1/orgs/{org_id}/reports/{report_id}
func HandleDelete(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		report, err := svc.SoftDelete(ctx, principals.FromContext(ctx), chi.URLParam(r, "org_id"), chi.URLParam(r, "report_id"))
		if err != nil {
			writeError(w, r, err, "delete report")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"report": report.ViewAt(svc.Now()),
		})
	}
}

// HandleHistory handles GET /api/v1/orgs/{org_id}/reports/{report_id}/history
func HandleHistory(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		entries, err := svc.History(ctx, principals.FromContext(ctx), chi.URLParam(r, "org_id"), chi.URLParam(r, "report_id"))
		if err != nil {
			writeError(w, r, err, "list report history")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"history": entries,
		})
	}
}

// HandleOverridePersonal handles POST /api/v1/me/reports/{report_id}/override
func HandleOverridePersonal(svc *Service) http.HandlerFunc {
	return handleOverride(svc, false)
}

// HandleOverrideOrg handles POST /api/v1/orgs/{org_id}/reports/{report_id}/override
func HandleOverrideOrg(svc *Service) http.HandlerFunc {
	return handleOverride(svc, true)
}

func handleOverride(svc *Service, org bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req OverrideRequest
		if !apperrors.ReadJSON(w, r, &req) {
			return
		}

		report, err := svc.ApplyOverride(ctx, principals.FromContext(ctx), refFrom(r, org), req)
		if err != nil {
			writeError(w, r, err, "apply override")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"report": report.ViewAt(svc.Now()),
		})
	}
}

// HandleUploadEvidence handles POST /api/v1/orgs/{org_id}/evidence and
// POST /api/v1/me/evidence as multipart/form-data with a "file" part.
func HandleUploadEvidence(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		r.Body = http.MaxBytesReader(w, r.Body, svc.maxEvidenceBytes+evidenceFormOverhead)
		file, header, err := r.FormFile("file")
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				writeError(w, r, ErrEvidenceTooLarge, "upload evidence")
				return
			}
			apperrors.WriteBadRequest(w, r, "Expected multipart form with a file field")
			return
		}
		defer file.Close()

		ev, err := svc.StoreEvidence(ctx, principals.FromContext(ctx), chi.URLParam(r, "org_id"), Upload{
			Filename:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Body:        file,
		})
		if err != nil {
			writeError(w, r, err, "upload evidence")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusCreated, map[string]any{
			"evidence": ev,
		})
	}
}
