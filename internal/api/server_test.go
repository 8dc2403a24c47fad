package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/pinehappi/argon/internal/api"
	v0 "github.com/pinehappi/argon/internal/api/v0"
	"github.com/pinehappi/argon/internal/classdb"
	"github.com/pinehappi/argon/internal/service"
	servicemocks "github.com/pinehappi/argon/internal/service/mocks"
	"github.com/pinehappi/argon/internal/session"
	"github.com/pinehappi/argon/internal/status"
	pkgsync "github.com/pinehappi/argon/internal/sync"
	"github.com/pinehappi/argon/internal/sync/coordinator"
)

func TestAPIServer(t *testing.T) {
	t.Parallel()
	RegisterFailHandler(Fail)
	RunSpecs(t, "Session API Suite")
}

var _ = Describe("Session API server", func() {
	var (
		ctrl    *gomock.Controller
		svc     *servicemocks.MockClassService
		handler http.Handler
	)

	BeforeEach(func() {
		ctrl = gomock.NewController(GinkgoT())
		svc = servicemocks.NewMockClassService(ctrl)
		handler = api.NewServer(svc, api.WithMiddlewares(api.LoggingMiddleware))
	})

	serve := func(method, target string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, target, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	decode := func(rec *httptest.ResponseRecorder, v any) {
		Expect(rec.Header().Get("Content-Type")).To(Equal("application/json"))
		Expect(json.NewDecoder(rec.Body).Decode(v)).To(Succeed())
	}

	Describe("health endpoints", func() {
		It("reports healthy", func() {
			rec := serve(http.MethodGet, "/health")
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(ContainSubstring("healthy"))
		})

		It("reports ready when the service is ready", func() {
			svc.EXPECT().CheckReadiness(gomock.Any()).Return(nil)
			Expect(serve(http.MethodGet, "/readiness").Code).To(Equal(http.StatusOK))
		})

		It("reports unavailable when the service is not ready", func() {
			svc.EXPECT().CheckReadiness(gomock.Any()).Return(service.ErrNotReady)
			rec := serve(http.MethodGet, "/readiness")
			Expect(rec.Code).To(Equal(http.StatusServiceUnavailable))
			Expect(rec.Body.String()).To(ContainSubstring(service.ErrNotReady.Error()))
		})

		It("serves version information", func() {
			rec := serve(http.MethodGet, "/version")
			Expect(rec.Code).To(Equal(http.StatusOK))
			var body map[string]any
			decode(rec, &body)
			Expect(body).To(HaveKey("version"))
		})
	})

	Describe("GET /details", func() {
		It("returns the session details", func() {
			started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
			svc.EXPECT().Details(gomock.Any()).Return(&service.Details{
				Name:       "game",
				SessionID:  "abc",
				Phase:      string(session.PhaseRunning),
				StartedAt:  &started,
				ClassCount: 2,
				Marker:     classdb.Marker{Version: "0.650.0.1"},
			}, nil)

			rec := serve(http.MethodGet, "/details")
			Expect(rec.Code).To(Equal(http.StatusOK))
			var details service.Details
			decode(rec, &details)
			Expect(details.SessionID).To(Equal("abc"))
			Expect(details.ClassCount).To(Equal(2))
			Expect(details.Marker.Version).To(Equal("0.650.0.1"))
		})

		It("hides internal errors", func() {
			svc.EXPECT().Details(gomock.Any()).Return(nil, errors.New("disk on fire"))
			rec := serve(http.MethodGet, "/details")
			Expect(rec.Code).To(Equal(http.StatusInternalServerError))
			Expect(rec.Body.String()).NotTo(ContainSubstring("disk on fire"))
		})
	})

	Describe("POST /stop", func() {
		It("stops a running session", func() {
			svc.EXPECT().Stop(gomock.Any()).Return(nil)
			rec := serve(http.MethodPost, "/stop")
			Expect(rec.Code).To(Equal(http.StatusOK))
			var resp v0.StopResponse
			decode(rec, &resp)
			Expect(resp.Code).To(Equal(status.CodeStopped))
		})

		It("reports a session that is not running", func() {
			svc.EXPECT().Stop(gomock.Any()).Return(session.ErrNotRunning)
			rec := serve(http.MethodPost, "/stop")
			Expect(rec.Code).To(Equal(http.StatusConflict))
			var resp v0.StopResponse
			decode(rec, &resp)
			Expect(resp.Code).To(Equal(status.CodeNotRunning))
		})
	})

	Describe("GET /classes", func() {
		It("lists every class", func() {
			svc.EXPECT().ListClasses(gomock.Any()).Return([]string{"Part", "Script"}, nil)
			rec := serve(http.MethodGet, "/classes")
			Expect(rec.Code).To(Equal(http.StatusOK))
			var resp v0.ClassesResponse
			decode(rec, &resp)
			Expect(resp.Classes).To(Equal([]string{"Part", "Script"}))
			Expect(resp.Count).To(Equal(2))
		})

		It("passes prefix and limit to the service", func() {
			svc.EXPECT().ListClasses(gomock.Any(), gomock.Any(), gomock.Any()).
				DoAndReturn(func(_ context.Context, opts ...service.Option[service.ListClassesOptions]) ([]string, error) {
					var o service.ListClassesOptions
					for _, opt := range opts {
						Expect(opt(&o)).To(Succeed())
					}
					Expect(o.Prefix).To(Equal("pa"))
					Expect(o.Limit).To(Equal(1))
					return []string{"Part"}, nil
				})

			rec := serve(http.MethodGet, "/classes?prefix=pa&limit=1")
			Expect(rec.Code).To(Equal(http.StatusOK))
		})

		It("rejects a malformed limit", func() {
			rec := serve(http.MethodGet, "/classes?limit=many")
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("rejects a limit the service refuses", func() {
			svc.EXPECT().ListClasses(gomock.Any(), gomock.Any()).Return(nil, errors.New("invalid limit: 0"))
			rec := serve(http.MethodGet, "/classes?limit=0")
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("GET /classes/{name}", func() {
		It("returns the canonical name", func() {
			svc.EXPECT().GetClass(gomock.Any(), "basepart").Return("BasePart", nil)
			rec := serve(http.MethodGet, "/classes/basepart")
			Expect(rec.Code).To(Equal(http.StatusOK))
			var resp v0.ClassResponse
			decode(rec, &resp)
			Expect(resp.Name).To(Equal("BasePart"))
		})

		It("returns 404 for unknown classes", func() {
			svc.EXPECT().GetClass(gomock.Any(), "Nope").Return("", service.ErrClassNotFound)
			Expect(serve(http.MethodGet, "/classes/Nope").Code).To(Equal(http.StatusNotFound))
		})

		It("rejects names that are not class names", func() {
			Expect(serve(http.MethodGet, "/classes/Part.Size").Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("POST /classes/refresh", func() {
		DescribeTable("maps refresh outcomes to HTTP statuses",
			func(target string, wantForce bool, result *coordinator.RefreshResult, err error, wantStatus int, wantCode status.Code) {
				svc.EXPECT().Refresh(gomock.Any(), wantForce).Return(result, err)

				rec := serve(http.MethodPost, target)
				Expect(rec.Code).To(Equal(wantStatus))
				var resp v0.RefreshResponse
				decode(rec, &resp)
				Expect(resp.Code).To(Equal(wantCode))
			},
			Entry("updated", "/classes/refresh", false,
				&coordinator.RefreshResult{Outcome: coordinator.OutcomeUpdated, Reason: pkgsync.ReasonCacheExpired, ClassCount: 2},
				nil, http.StatusOK, status.CodeUpdated),
			Entry("forced", "/classes/refresh?force=true", true,
				&coordinator.RefreshResult{Outcome: coordinator.OutcomeUpdated, Reason: pkgsync.ReasonManualSync},
				nil, http.StatusOK, status.CodeUpdated),
			Entry("already current", "/classes/refresh", false,
				&coordinator.RefreshResult{Outcome: coordinator.OutcomeAlreadyCurrent, Reason: pkgsync.ReasonUpToDate},
				nil, http.StatusOK, status.CodeAlreadyCurrent),
			Entry("busy", "/classes/refresh", false,
				&coordinator.RefreshResult{Outcome: coordinator.OutcomeBusy, Reason: pkgsync.ReasonNotEvaluated},
				nil, http.StatusConflict, status.CodeBusy),
			Entry("connection failed", "/classes/refresh", false, nil,
				&coordinator.RefreshError{Code: status.CodeConnectionFailed, Err: errors.New("timeout")},
				http.StatusBadGateway, status.CodeConnectionFailed),
			Entry("generic error", "/classes/refresh", false, nil,
				errors.New("boom"), http.StatusInternalServerError, status.CodeGenericError),
		)

		It("reports a persistence failure alongside the update", func() {
			svc.EXPECT().Refresh(gomock.Any(), false).Return(&coordinator.RefreshResult{
				Outcome:    coordinator.OutcomeUpdated,
				Reason:     pkgsync.ReasonNeverSynced,
				Version:    "0.650.0.1",
				ClassCount: 3,
				PersistErr: errors.New("read-only filesystem"),
			}, nil)

			rec := serve(http.MethodPost, "/classes/refresh")
			Expect(rec.Code).To(Equal(http.StatusOK))
			var resp v0.RefreshResponse
			decode(rec, &resp)
			Expect(resp.Reason).To(Equal("never-synced"))
			Expect(resp.Version).To(Equal("0.650.0.1"))
			Expect(resp.PersistError).To(ContainSubstring("read-only"))
		})

		It("reports the decision of a refresh busy on the workspace lock", func() {
			svc.EXPECT().Refresh(gomock.Any(), true).Return(&coordinator.RefreshResult{
				Outcome: coordinator.OutcomeBusy,
				Reason:  pkgsync.ReasonManualSync,
			}, nil)

			rec := serve(http.MethodPost, "/classes/refresh?force=true")
			Expect(rec.Code).To(Equal(http.StatusConflict))
			var resp v0.RefreshResponse
			decode(rec, &resp)
			Expect(resp.Reason).To(Equal("manual-sync"))
		})

		It("omits the reason of a refresh turned away before deciding", func() {
			svc.EXPECT().Refresh(gomock.Any(), false).Return(&coordinator.RefreshResult{
				Outcome: coordinator.OutcomeBusy,
				Reason:  pkgsync.ReasonNotEvaluated,
			}, nil)

			rec := serve(http.MethodPost, "/classes/refresh")
			Expect(rec.Code).To(Equal(http.StatusConflict))
			var resp v0.RefreshResponse
			decode(rec, &resp)
			Expect(resp.Reason).To(BeEmpty())
		})

		It("rejects a malformed force flag", func() {
			Expect(serve(http.MethodPost, "/classes/refresh?force=maybe").Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("GET /metrics", func() {
		It("is absent without a metrics handler", func() {
			Expect(serve(http.MethodGet, "/metrics").Code).To(Equal(http.StatusNotFound))
		})

		It("serves the configured handler", func() {
			handler = api.NewServer(svc, api.WithMetricsHandler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte("argon_classdb_classes_total 2\n"))
			})))
			rec := serve(http.MethodGet, "/metrics")
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(strings.TrimSpace(rec.Body.String())).To(Equal("argon_classdb_classes_total 2"))
		})
	})
})
