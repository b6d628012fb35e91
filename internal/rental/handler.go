package rental

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"rentals/internal/logging"
)

type Handler struct {
	service  Service
	validate *validator.Validate
	logger   *slog.Logger
}

func NewHandler(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		service:  service,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logging.Ensure(logger).With("component", "rental.handler"),
	}
}

type rentRequest struct {
	ItemID int64  `validate:"min=1"`
	UserID string `validate:"required,max=255"`
}

type itemRequest struct {
	ItemID int64 `validate:"min=1"`
}

type itemsRequest struct {
	ItemIDs []int64 `validate:"required,min=1,dive,min=1"`
}

// Routes returns the rentals API. The mutating routes are wrapped by the
// given middlewares.
func (h *Handler) Routes(mutating ...func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()

	r.Get("/rents", h.HandleListRentals)
	r.Get("/is-rent/item/{itemId}", h.HandleIsItemRent)
	r.Get("/is-rent/items", h.HandleAreItemsRent)

	r.Group(func(r chi.Router) {
		r.Use(mutating...)
		r.Post("/rent/item/{itemId}/by/{userId}", h.HandleRentItem)
		r.Post("/return/item/{itemId}", h.HandleReturnItem)
	})

	return r
}

func (h *Handler) HandleListRentals(w http.ResponseWriter, r *http.Request) {
	onlyOpen := false
	if v := r.URL.Query().Get("onlyRent"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid onlyRent parameter")
			return
		}
		onlyOpen = b
	}

	records, err := h.service.ListRentals(r.Context(), onlyOpen)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *Handler) HandleIsItemRent(w http.ResponseWriter, r *http.Request) {
	itemID, err := strconv.ParseInt(chi.URLParam(r, "itemId"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid item ID")
		return
	}
	if err := h.validate.Struct(itemRequest{ItemID: itemID}); err != nil {
		writeError(w, http.StatusBadRequest, "invalid item ID")
		return
	}

	rented, err := h.service.IsItemRent(r.Context(), itemID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rented)
}

func (h *Handler) HandleAreItemsRent(w http.ResponseWriter, r *http.Request) {
	itemIDs, err := ParseItemIDs(r.URL.Query().Get("itemIds"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.validate.Struct(itemsRequest{ItemIDs: itemIDs}); err != nil {
		writeError(w, http.StatusBadRequest, "invalid itemIds parameter")
		return
	}

	statuses, err := h.service.AreItemsRent(r.Context(), itemIDs)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statuses)
}

func (h *Handler) HandleRentItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := strconv.ParseInt(chi.URLParam(r, "itemId"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid item ID")
		return
	}
	userID, err := pathParam(r, "userId")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user ID")
		return
	}
	req := rentRequest{ItemID: itemID, UserID: userID}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid rent request")
		return
	}

	record, err := h.service.RentItem(r.Context(), req.ItemID, req.UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (h *Handler) HandleReturnItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := strconv.ParseInt(chi.URLParam(r, "itemId"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid item ID")
		return
	}
	if err := h.validate.Struct(itemRequest{ItemID: itemID}); err != nil {
		writeError(w, http.StatusBadRequest, "invalid item ID")
		return
	}

	record, err := h.service.ReturnItem(r.Context(), itemID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// fail translates service errors into responses.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrAlreadyRented):
		writeError(w, http.StatusNotFound, "Item not yet returned!")
	case errors.Is(err, ErrNotRented):
		writeError(w, http.StatusBadRequest, "Item is not rent!")
	case errors.Is(err, ErrConflict):
		h.logger.WarnContext(r.Context(), "rental conflict", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusConflict, "concurrent modification of item")
	case errors.Is(err, ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// pathParam returns the decoded value of a URL parameter. chi matches against
// the escaped path when the request has one, so only then is the value still
// escaped.
func pathParam(r *http.Request, key string) (string, error) {
	v := chi.URLParam(r, key)
	if r.URL.RawPath == "" {
		return v, nil
	}
	return url.PathUnescape(v)
}

// ParseItemIDs parses a comma-separated list of item ids, keeping order and
// duplicates.
func ParseItemIDs(s string) ([]int64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, errors.New("missing itemIds parameter")
	}
	parts := strings.Split(s, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, errors.New("invalid item ID " + strconv.Quote(p))
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}
