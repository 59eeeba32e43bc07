package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/AnshRaj112/giftwise-backend/internal/middleware"
	"github.com/AnshRaj112/giftwise-backend/internal/models"
	"github.com/AnshRaj112/giftwise-backend/internal/services"
)

const (
	requestTimeout  = 5 * time.Second
	uploadTimeout   = 30 * time.Second
	maxPictureBytes = 10 << 20 // 10MB
)

// RecipientHandler serves /api/recipients. Every route runs behind
// middleware.RequireAuth, so a caller id is always in the context.
type RecipientHandler struct {
	Store   services.RecipientStore
	Storage services.PictureStorage
	Logger  *slog.Logger
}

// CreateRecipientResponse wraps the newly stored record
type CreateRecipientResponse struct {
	Recipient *models.Recipient `json:"recipient"`
}

// StylesRequest keeps styles raw so a non-array value can be rejected
type StylesRequest struct {
	Styles json.RawMessage `json:"styles"`
}

func callerID(r *http.Request) string {
	id, _ := middleware.UserIDFromContext(r.Context())
	return id
}

// storeFailure maps a store error to a response. Not-found is expected
// and not logged.
func (h *RecipientHandler) storeFailure(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, services.ErrRecipientNotFound) {
		writeMsg(w, http.StatusNotFound, "Recipient not found")
		return
	}
	h.Logger.Error("recipient store failed", "op", op, "error", err)
	serverError(w)
}

// Create handles POST /api/recipients/create
func (h *RecipientHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in models.RecipientInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeMsg(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	recipient, err := models.NewRecipient(in, callerID(r))
	if err != nil {
		writeMsg(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	if err := h.Store.Create(ctx, recipient); err != nil {
		h.storeFailure(w, "create", err)
		return
	}

	writeJSON(w, http.StatusCreated, CreateRecipientResponse{Recipient: recipient})
}

// List handles GET /api/recipients/list
func (h *RecipientHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	recipients, err := h.Store.ListByUser(ctx, callerID(r))
	if err != nil {
		h.storeFailure(w, "list", err)
		return
	}
	if recipients == nil {
		recipients = []models.Recipient{}
	}

	writeJSON(w, http.StatusOK, recipients)
}

// Get handles GET /api/recipients/{id}
func (h *RecipientHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	recipient, err := h.Store.GetByUser(ctx, chi.URLParam(r, "id"), callerID(r))
	if err != nil {
		h.storeFailure(w, "get", err)
		return
	}

	writeJSON(w, http.StatusOK, recipient)
}

// Delete handles DELETE /api/recipients/{id}
func (h *RecipientHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	if err := h.Store.DeleteByUser(ctx, chi.URLParam(r, "id"), callerID(r)); err != nil {
		h.storeFailure(w, "delete", err)
		return
	}

	writeMsg(w, http.StatusOK, "Recipient removed")
}

// AddStyles handles PUT /api/recipients/{id}/styles
func (h *RecipientHandler) AddStyles(w http.ResponseWriter, r *http.Request) {
	var req StylesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMsg(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	styles, ok := parseStyles(req.Styles)
	if !ok {
		writeMsg(w, http.StatusBadRequest, "Styles must be an array")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	recipient, err := h.Store.AddStyles(ctx, chi.URLParam(r, "id"), callerID(r), models.MergeStyles(nil, styles))
	if err != nil {
		h.storeFailure(w, "add styles", err)
		return
	}

	writeJSON(w, http.StatusOK, recipient)
}

// parseStyles accepts only a JSON array of strings.
func parseStyles(raw json.RawMessage) ([]string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		return nil, false
	}
	var styles []string
	if err := json.Unmarshal(raw, &styles); err != nil {
		return nil, false
	}
	return styles, true
}

// SetPicture handles POST /api/recipients/{id}/picture (multipart field
// "picture", "file" accepted too).
func (h *RecipientHandler) SetPicture(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	userID := callerID(r)

	ctx, cancel := context.WithTimeout(r.Context(), uploadTimeout)
	defer cancel()

	// Check ownership before storing anything
	if _, err := h.Store.GetByUser(ctx, id, userID); err != nil {
		h.storeFailure(w, "get", err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxPictureBytes+1<<20)
	if err := r.ParseMultipartForm(maxPictureBytes); err != nil {
		writeMsg(w, http.StatusBadRequest, "Invalid upload")
		return
	}
	defer r.MultipartForm.RemoveAll()

	fileHeader := pictureFile(r.MultipartForm)
	if fileHeader == nil {
		writeMsg(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	if fileHeader.Size > maxPictureBytes {
		writeMsg(w, http.StatusBadRequest, "File too large")
		return
	}

	ref, err := h.Storage.Save(ctx, fileHeader)
	if err != nil {
		if errors.Is(err, services.ErrUnsupportedUpload) {
			writeMsg(w, http.StatusBadRequest, err.Error())
			return
		}
		h.Logger.Error("picture upload failed", "recipient", id, "error", err)
		serverError(w)
		return
	}

	recipient, err := h.Store.SetPicture(ctx, id, userID, ref)
	if err != nil {
		h.storeFailure(w, "set picture", err)
		return
	}

	writeJSON(w, http.StatusOK, recipient)
}

func pictureFile(form *multipart.Form) *multipart.FileHeader {
	for _, field := range []string{"picture", "file"} {
		if files := form.File[field]; len(files) > 0 {
			return files[0]
		}
	}
	return nil
}

// Update handles PUT /api/recipients/update/{id}. Only profile fields may
// change; identity, owner and likedStyles keys are ignored.
func (h *RecipientHandler) Update(w http.ResponseWriter, r *http.Request) {
	var body map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeMsg(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	fields, err := updateFields(body)
	if err != nil {
		writeMsg(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	recipient, err := h.Store.UpdateByUser(ctx, chi.URLParam(r, "id"), callerID(r), fields)
	if err != nil {
		h.storeFailure(w, "update", err)
		return
	}

	writeJSON(w, http.StatusOK, recipient)
}

// updateFields converts the whitelisted keys of body into a $set document.
func updateFields(body map[string]json.RawMessage) (bson.M, error) {
	fields := bson.M{}

	for _, key := range []string{"name", "gender"} {
		raw, ok := body[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, &models.ValidationError{Field: key, Message: key + " must be a string"}
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nil, &models.ValidationError{Field: key, Message: key + " must not be empty"}
		}
		fields[key] = s
	}

	// Picture references only come from the upload route; here it can
	// only be cleared.
	if raw, ok := body["picture"]; ok {
		var picture string
		if err := json.Unmarshal(raw, &picture); err != nil || picture != "" {
			return nil, &models.ValidationError{Field: "picture", Message: "picture can only be cleared here, upload a new one instead"}
		}
		fields["picture"] = ""
	}

	if raw, ok := body["age"]; ok {
		var age *int
		if err := json.Unmarshal(raw, &age); err != nil || age == nil || *age < 0 {
			return nil, &models.ValidationError{Field: "age", Message: "age must be a non-negative whole number"}
		}
		fields["age"] = *age
	}

	if raw, ok := body["preferredSizes"]; ok {
		var sizes bson.M
		if err := json.Unmarshal(raw, &sizes); err != nil || sizes == nil {
			return nil, &models.ValidationError{Field: "preferredSizes", Message: "preferredSizes must be an object"}
		}
		fields["preferredSizes"] = sizes
	}

	return fields, nil
}
