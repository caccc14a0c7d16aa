package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"expiry-server/models"
	"expiry-server/remind"
	"expiry-server/store"
)

// ReminderCoordinator is the slice of the coordinator the product API needs.
type ReminderCoordinator interface {
	CreateOrUpdate(p models.Product) remind.Result
	Delete(p models.Product)
}

type ProductHandler struct {
	store       *store.Store
	coordinator ReminderCoordinator
}

func NewProductHandler(s *store.Store, c ReminderCoordinator) *ProductHandler {
	return &ProductHandler{store: s, coordinator: c}
}

// productResponse pairs the stored product with the reminder outcome so the
// client can surface partial failures without losing the saved record.
type productResponse struct {
	Product  models.Product `json:"product"`
	Reminder remind.Result  `json:"reminder"`
}

func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	products, err := h.store.ListProducts()
	if err != nil {
		http.Error(w, "Failed to fetch products", http.StatusInternalServerError)
		return
	}

	if products == nil {
		products = []models.Product{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(products)
}

func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}

	product, err := h.store.GetProduct(id)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "Product not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Failed to fetch product", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(product)
}

func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.SaveProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	product, errMsg := productFromRequest(req)
	if errMsg != "" {
		http.Error(w, errMsg, http.StatusBadRequest)
		return
	}

	id, err := h.store.CreateProduct(product)
	if err != nil {
		http.Error(w, "Failed to create product", http.StatusInternalServerError)
		return
	}
	product.ID = id

	resp := h.runReminder(product)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(resp)
}

func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}

	existing, err := h.store.GetProduct(id)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "Product not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Failed to fetch product", http.StatusInternalServerError)
		return
	}

	var req models.SaveProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	product, errMsg := productFromRequest(req)
	if errMsg != "" {
		http.Error(w, errMsg, http.StatusBadRequest)
		return
	}
	product.ID = existing.ID
	product.CalendarEventID = existing.CalendarEventID
	product.CreatedAt = existing.CreatedAt

	if err := h.store.UpdateProduct(product); err != nil {
		http.Error(w, "Failed to update product", http.StatusInternalServerError)
		return
	}

	resp := h.runReminder(product)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (h *ProductHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}

	product, err := h.store.GetProduct(id)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "Product not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Failed to fetch product", http.StatusInternalServerError)
		return
	}

	h.coordinator.Delete(*product)

	if err := h.store.DeleteProduct(id); err != nil {
		http.Error(w, "Failed to delete product", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "deleted"})
}

// Preview exposes the pure trigger-time computation so the UI can show the
// computed reminder instant while the user is still editing.
func (h *ProductHandler) Preview(w http.ResponseWriter, r *http.Request) {
	var req models.PreviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.ExpirationDate <= 0 {
		http.Error(w, "Expiration date is required", http.StatusBadRequest)
		return
	}
	if req.DaysToRemindBefore < 0 {
		http.Error(w, "Days to remind before must not be negative", http.StatusBadRequest)
		return
	}

	at := remind.TriggerTime(req.ExpirationDate, req.DaysToRemindBefore, req.ReminderTime)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(models.PreviewResponse{
		TriggerAt:    at.UnixMilli(),
		TriggerAtISO: at.Format(time.RFC3339),
	})
}

// runReminder drives the coordinator for a saved product and persists the
// calendar event id whenever the mirror produced or replaced one — including
// on partial success, so that progress is never lost.
func (h *ProductHandler) runReminder(product models.Product) productResponse {
	result := h.coordinator.CreateOrUpdate(product)

	if result.CalendarEventID != "" && result.CalendarEventID != product.CalendarEventID {
		if err := h.store.SetCalendarEventID(product.ID, result.CalendarEventID); err == nil {
			product.CalendarEventID = result.CalendarEventID
		}
	}

	return productResponse{Product: product, Reminder: result}
}

func productFromRequest(req models.SaveProductRequest) (models.Product, string) {
	if strings.TrimSpace(req.ProductName) == "" {
		return models.Product{}, "Product name is required"
	}
	if req.ExpirationDate <= 0 {
		return models.Product{}, "Expiration date is required"
	}
	if req.DaysToRemindBefore < 0 {
		return models.Product{}, "Days to remind before must not be negative"
	}

	method := models.ReminderMethod(strings.ToUpper(strings.TrimSpace(req.ReminderMethod)))
	if req.ReminderMethod == "" {
		method = models.MethodNotification
	}
	if !method.Valid() {
		return models.Product{}, "Reminder method must be NOTIFICATION or ALARM"
	}

	reminderTime := req.ReminderTime
	if reminderTime == "" {
		reminderTime = "09:00"
	}

	return models.Product{
		ProductName:        strings.TrimSpace(req.ProductName),
		ExpirationDate:     req.ExpirationDate,
		ReminderTime:       reminderTime,
		DaysToRemindBefore: req.DaysToRemindBefore,
		ReminderMethod:     method,
	}, ""
}

func productID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "Invalid product id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}
