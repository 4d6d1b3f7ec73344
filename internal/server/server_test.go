package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"gitlab.ozon.dev/pupkingeorgij/wmsexport/internal/apperr"
	"gitlab.ozon.dev/pupkingeorgij/wmsexport/internal/export"
	"gitlab.ozon.dev/pupkingeorgij/wmsexport/internal/repository"
	"gitlab.ozon.dev/pupkingeorgij/wmsexport/internal/server"
	mock_server "gitlab.ozon.dev/pupkingeorgij/wmsexport/internal/server/mocks"
)

func newTestServer(t *testing.T, exporter server.Exporter, history server.HistoryRepo, users server.UserRepo) http.Handler {
	t.Helper()

	srv := server.New(exporter, history, users, nil, server.Options{}, nil)
	srv.AuditManager.Start(context.Background())
	t.Cleanup(func() { srv.AuditManager.Shutdown(context.Background()) })

	return srv.Handler()
}

func sampleRecord() *export.OrderRecord {
	return &export.OrderRecord{
		AccountCode:         "8UNI48",
		OrderDate:           "2024-03-01T10:00:00",
		CustomerOrderNumber: "ORD123",
		Warehouse:           "PERTH",
		Receiver:            export.Receiver{Name: "Acme", Suburb: "Perth"},
		Items: []export.LineItem{
			{ProductCode: "SKU1", Quantity: "2", Serials: []string{"S1", "S2"}},
		},
	}
}

func TestHandleGetOrder(t *testing.T) {
	tests := []struct {
		name           string
		target         string
		reference      string
		record         *export.OrderRecord
		err            error
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "query reference",
			target:         "/get-order?reference=ORD123",
			reference:      "ORD123",
			record:         sampleRecord(),
			expectedStatus: http.StatusOK,
			expectedBody:   `"customer_order_number":"ORD123"`,
		},
		{
			name:           "path reference",
			target:         "/orders/ORD123",
			reference:      "ORD123",
			record:         sampleRecord(),
			expectedStatus: http.StatusOK,
			expectedBody:   `"product_code":"SKU1"`,
		},
		{
			name:           "missing reference",
			target:         "/get-order",
			reference:      "",
			err:            &apperr.ValidationError{Field: "reference", Message: "order reference is required"},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `{"error":"invalid reference: order reference is required"}`,
		},
		{
			name:           "missing credentials",
			target:         "/get-order?reference=ORD123",
			reference:      "ORD123",
			err:            &apperr.CredentialsError{Missing: []string{"client secret"}},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `{"error":"missing WMS credentials: client secret"}`,
		},
		{
			name:           "token rejected",
			target:         "/get-order?reference=ORD123",
			reference:      "ORD123",
			err:            &apperr.UpstreamAuthError{StatusCode: http.StatusUnauthorized, Body: "invalid_client"},
			expectedStatus: http.StatusBadGateway,
		},
		{
			name:           "upstream not found",
			target:         "/get-order?reference=NOPE",
			reference:      "NOPE",
			err:            &apperr.UpstreamFetchError{StatusCode: http.StatusNotFound, Body: "no such order"},
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "upstream failure",
			target:         "/get-order?reference=ORD123",
			reference:      "ORD123",
			err:            &apperr.UpstreamFetchError{StatusCode: http.StatusInternalServerError, Body: "boom"},
			expectedStatus: http.StatusBadGateway,
		},
		{
			name:           "deadline",
			target:         "/get-order?reference=ORD123",
			reference:      "ORD123",
			err:            fmt.Errorf("fetching order: %w", context.DeadlineExceeded),
			expectedStatus: http.StatusGatewayTimeout,
		},
		{
			name:           "unexpected error",
			target:         "/get-order?reference=ORD123",
			reference:      "ORD123",
			err:            errors.New("something else"),
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `{"error":"something else"}`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			mockExporter := mock_server.NewMockExporter(ctrl)
			handler := newTestServer(t, mockExporter, nil, nil)

			mockExporter.EXPECT().
				GetOrder(gomock.Any(), tc.reference).
				Return(tc.record, tc.err)

			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, tc.target, nil))

			assert.Equal(t, tc.expectedStatus, rr.Code)
			assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
			switch {
			case tc.expectedBody == "":
			case tc.expectedStatus == http.StatusOK:
				assert.Contains(t, rr.Body.String(), tc.expectedBody)
			default:
				assert.JSONEq(t, tc.expectedBody, rr.Body.String())
			}
		})
	}
}

func TestHandleExportOrder(t *testing.T) {
	csvData := []byte("AccountCode,OrderDate\r\n8UNI48,2024-03-01T10:00:00\r\n")

	t.Run("success", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		mockExporter := mock_server.NewMockExporter(ctrl)
		mockHistory := mock_server.NewMockHistoryRepo(ctrl)
		handler := newTestServer(t, mockExporter, mockHistory, nil)

		mockExporter.EXPECT().
			ExportOrder(gomock.Any(), "ORD123").
			Return(&export.Export{Reference: "ORD123", Filename: "ORD123_export.csv", Rows: 2, Data: csvData}, nil)

		var stored *repository.ExportRecord
		mockHistory.EXPECT().
			Create(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, rec *repository.ExportRecord) error {
				stored = rec
				return nil
			})

		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/export-northline?reference=ORD123", nil))

		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "text/csv; charset=utf-8", rr.Header().Get("Content-Type"))
		assert.Equal(t, "attachment; filename=ORD123_export.csv", rr.Header().Get("Content-Disposition"))
		assert.Equal(t, csvData, rr.Body.Bytes())

		exportID, err := uuid.Parse(rr.Header().Get("X-Export-ID"))
		require.NoError(t, err)

		require.NotNil(t, stored)
		assert.Equal(t, exportID, stored.ID)
		assert.Equal(t, "ORD123", stored.Reference)
		assert.Equal(t, "ORD123_export.csv", stored.Filename)
		assert.Equal(t, 2, stored.RowCount)
		assert.Equal(t, repository.ExportStatusOK, stored.Status)
		assert.Empty(t, stored.Error)
	})

	t.Run("path reference without history", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		mockExporter := mock_server.NewMockExporter(ctrl)
		handler := newTestServer(t, mockExporter, nil, nil)

		mockExporter.EXPECT().
			ExportOrder(gomock.Any(), "ORD123").
			Return(&export.Export{Reference: "ORD123", Filename: "ORD123_export.csv", Rows: 2, Data: csvData}, nil)

		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/orders/ORD123/export", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, csvData, rr.Body.Bytes())
	})

	t.Run("order without items", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		mockExporter := mock_server.NewMockExporter(ctrl)
		mockHistory := mock_server.NewMockHistoryRepo(ctrl)
		handler := newTestServer(t, mockExporter, mockHistory, nil)

		exportErr := &apperr.NotFoundError{Resource: "order items", ID: "ORD9"}
		mockExporter.EXPECT().
			ExportOrder(gomock.Any(), "ORD9").
			Return(nil, exportErr)
		mockHistory.EXPECT().
			Create(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, rec *repository.ExportRecord) error {
				assert.Equal(t, repository.ExportStatusFailed, rec.Status)
				assert.Equal(t, exportErr.Error(), rec.Error)
				assert.Zero(t, rec.RowCount)
				return nil
			})

		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/export-northline?reference=ORD9", nil))

		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.JSONEq(t, `{"error":"order items not found: ORD9"}`, rr.Body.String())
		assert.Empty(t, rr.Header().Get("Content-Disposition"))
	})

	t.Run("history failure does not fail export", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		mockExporter := mock_server.NewMockExporter(ctrl)
		mockHistory := mock_server.NewMockHistoryRepo(ctrl)
		handler := newTestServer(t, mockExporter, mockHistory, nil)

		mockExporter.EXPECT().
			ExportOrder(gomock.Any(), "ORD123").
			Return(&export.Export{Reference: "ORD123", Filename: "ORD123_export.csv", Rows: 2, Data: csvData}, nil)
		mockHistory.EXPECT().
			Create(gomock.Any(), gomock.Any()).
			Return(errors.New("database error"))

		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/export-northline?reference=ORD123", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, csvData, rr.Body.Bytes())
	})
}

func TestHandleListExports(t *testing.T) {
	t.Run("history not configured", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		handler := newTestServer(t, mock_server.NewMockExporter(ctrl), nil, nil)

		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/exports", nil))

		assert.Equal(t, http.StatusNotImplemented, rr.Code)
	})

	tests := []struct {
		name           string
		target         string
		setupMocks     func(m *mock_server.MockHistoryRepo)
		expectedStatus int
		expectedBody   string
	}{
		{
			name:   "by reference",
			target: "/exports?reference=ORD123&limit=5",
			setupMocks: func(m *mock_server.MockHistoryRepo) {
				m.EXPECT().
					List(gomock.Any(), "ORD123", 5).
					Return([]*repository.ExportRecord{{Reference: "ORD123", Status: repository.ExportStatusOK}}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"reference":"ORD123"`,
		},
		{
			name:   "empty history",
			target: "/exports",
			setupMocks: func(m *mock_server.MockHistoryRepo) {
				m.EXPECT().List(gomock.Any(), "", 0).Return(nil, nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `[]`,
		},
		{
			name:           "invalid limit",
			target:         "/exports?limit=lots",
			setupMocks:     func(m *mock_server.MockHistoryRepo) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `invalid value for 'limit' parameter`,
		},
		{
			name:   "database error",
			target: "/exports",
			setupMocks: func(m *mock_server.MockHistoryRepo) {
				m.EXPECT().List(gomock.Any(), "", 0).Return(nil, errors.New("database error"))
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `database error`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			mockHistory := mock_server.NewMockHistoryRepo(ctrl)
			handler := newTestServer(t, mock_server.NewMockExporter(ctrl), mockHistory, nil)
			tc.setupMocks(mockHistory)

			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, tc.target, nil))

			assert.Equal(t, tc.expectedStatus, rr.Code)
			assert.Contains(t, rr.Body.String(), tc.expectedBody)
		})
	}
}

func TestBasicAuth(t *testing.T) {
	tests := []struct {
		name           string
		target         string
		setupRequest   func(r *http.Request)
		setupMocks     func(users *mock_server.MockUserRepo, exporter *mock_server.MockExporter)
		expectedStatus int
	}{
		{
			name:           "no credentials",
			target:         "/get-order?reference=ORD123",
			setupRequest:   func(r *http.Request) {},
			setupMocks:     func(*mock_server.MockUserRepo, *mock_server.MockExporter) {},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:         "wrong password",
			target:       "/get-order?reference=ORD123",
			setupRequest: func(r *http.Request) { r.SetBasicAuth("ops", "guess") },
			setupMocks: func(users *mock_server.MockUserRepo, _ *mock_server.MockExporter) {
				users.EXPECT().ValidateUser(gomock.Any(), "ops", "guess").Return(false, nil)
			},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:         "repository error",
			target:       "/get-order?reference=ORD123",
			setupRequest: func(r *http.Request) { r.SetBasicAuth("ops", "s3cret") },
			setupMocks: func(users *mock_server.MockUserRepo, _ *mock_server.MockExporter) {
				users.EXPECT().ValidateUser(gomock.Any(), "ops", "s3cret").Return(false, errors.New("conn reset"))
			},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:         "valid credentials",
			target:       "/get-order?reference=ORD123",
			setupRequest: func(r *http.Request) { r.SetBasicAuth("ops", "s3cret") },
			setupMocks: func(users *mock_server.MockUserRepo, exporter *mock_server.MockExporter) {
				users.EXPECT().ValidateUser(gomock.Any(), "ops", "s3cret").Return(true, nil)
				exporter.EXPECT().GetOrder(gomock.Any(), "ORD123").Return(sampleRecord(), nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "health is public",
			target:         "/health",
			setupRequest:   func(r *http.Request) {},
			setupMocks:     func(*mock_server.MockUserRepo, *mock_server.MockExporter) {},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "metrics are public",
			target:         "/metrics",
			setupRequest:   func(r *http.Request) {},
			setupMocks:     func(*mock_server.MockUserRepo, *mock_server.MockExporter) {},
			expectedStatus: http.StatusOK,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			mockExporter := mock_server.NewMockExporter(ctrl)
			mockUsers := mock_server.NewMockUserRepo(ctrl)
			handler := newTestServer(t, mockExporter, nil, mockUsers)
			tc.setupMocks(mockUsers, mockExporter)

			req := httptest.NewRequest(http.MethodGet, tc.target, nil)
			tc.setupRequest(req)

			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			assert.Equal(t, tc.expectedStatus, rr.Code)
			if tc.expectedStatus == http.StatusUnauthorized {
				assert.Equal(t, `Basic realm="Restricted"`, rr.Header().Get("WWW-Authenticate"))
			}
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockUsers := mock_server.NewMockUserRepo(ctrl)
	handler := newTestServer(t, mock_server.NewMockExporter(ctrl), nil, mockUsers)

	req := httptest.NewRequest(http.MethodOptions, "/export-northline?reference=ORD123", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rr.Header().Get("Access-Control-Allow-Methods"), http.MethodGet)
	assert.Contains(t, rr.Header().Get("Access-Control-Expose-Headers"), "Content-Disposition")
}

func TestHealth(t *testing.T) {
	ctrl := gomock.NewController(t)
	handler := newTestServer(t, mock_server.NewMockExporter(ctrl), nil, nil)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}
