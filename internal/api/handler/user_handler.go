package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/taskboard/uaa/internal/core/ports"
)

type UserHandler struct {
	users ports.UserService
}

func NewUserHandler(users ports.UserService) *UserHandler {
	return &UserHandler{users: users}
}

// Delete removes a user and every session it holds.
//
// DELETE /users/:id (ADMIN) → 204, 404 when the user does not exist
func (h *UserHandler) Delete(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "id is required")
	}

	deleted, err := h.users.DeleteUser(c.Request().Context(), id)
	if err != nil {
		return err
	}
	if !deleted {
		return echo.NewHTTPError(http.StatusNotFound, "user not found")
	}
	return c.NoContent(http.StatusNoContent)
}
