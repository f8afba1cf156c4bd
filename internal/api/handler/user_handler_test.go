package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/taskboard/uaa/internal/core/domain"
)

type stubUserService struct {
	deleteFn func(ctx context.Context, id string) (bool, error)
}

func (s *stubUserService) DeleteUser(ctx context.Context, id string) (bool, error) {
	return s.deleteFn(ctx, id)
}

func TestUserHandler_Delete(t *testing.T) {
	cases := []struct {
		name     string
		deleted  bool
		err      error
		wantCode int
	}{
		{"deleted", true, nil, http.StatusNoContent},
		{"not found", false, nil, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := newTestEcho()
			stub := &stubUserService{deleteFn: func(_ context.Context, id string) (bool, error) {
				if id != "u-42" {
					t.Fatalf("unexpected id %q", id)
				}
				return tc.deleted, tc.err
			}}
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodDelete, "/users/u-42", nil), rec)
			c.SetParamNames("id")
			c.SetParamValues("u-42")

			serve(e, c, NewUserHandler(stub).Delete)

			if rec.Code != tc.wantCode {
				t.Fatalf("expected %d, got %d", tc.wantCode, rec.Code)
			}
		})
	}
}

func TestUserHandler_Delete_PassesErrorsThrough(t *testing.T) {
	e := newTestEcho()
	want := &domain.DeletionError{UserID: "u-1", Cause: domain.ErrPersistence}
	stub := &stubUserService{deleteFn: func(context.Context, string) (bool, error) { return false, want }}
	c := e.NewContext(httptest.NewRequest(http.MethodDelete, "/users/u-1", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("u-1")

	err := NewUserHandler(stub).Delete(c)
	if !errors.Is(err, domain.ErrPersistence) {
		t.Fatalf("expected the deletion error, got %v", err)
	}
}
