package http

import (
	"errors"
	"net/http"

	"github.com/bnema/scribe/internal/domain"
	"github.com/bnema/scribe/internal/infrastructure/logger"
)

func (h *Handlers) ListAnnotations() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, ok := h.lookup(w, r)
		if !ok {
			return
		}
		list, err := h.annotations.ListAnnotations(r.Context(), rec.ID)
		if err != nil {
			logger.Error.Printf("list annotations for transcript %d: %v", rec.ID, err)
			writeError(w, http.StatusInternalServerError, "failed to list annotations")
			return
		}
		if list == nil {
			list = []*domain.Annotation{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func (h *Handlers) CreateAnnotation() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		transcriptID, ok := parseID(w, r, "transcript")
		if !ok {
			return
		}
		in, ok := annotationInput(w, r)
		if !ok {
			return
		}

		a, err := h.annotations.CreateAnnotation(r.Context(), transcriptID, in)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				writeError(w, http.StatusNotFound, "transcript not found")
				return
			}
			logger.Error.Printf("create annotation for transcript %d: %v", transcriptID, err)
			writeError(w, http.StatusInternalServerError, "failed to save annotation")
			return
		}
		writeJSON(w, http.StatusCreated, a)
	}
}

func (h *Handlers) UpdateAnnotation() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(w, r, "annotation")
		if !ok {
			return
		}
		in, ok := annotationInput(w, r)
		if !ok {
			return
		}

		a, err := h.annotations.UpdateAnnotation(r.Context(), id, in)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				writeError(w, http.StatusNotFound, "annotation not found")
				return
			}
			logger.Error.Printf("update annotation %d: %v", id, err)
			writeError(w, http.StatusInternalServerError, "failed to update annotation")
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

func (h *Handlers) DeleteAnnotation() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(w, r, "annotation")
		if !ok {
			return
		}
		if err := h.annotations.DeleteAnnotation(r.Context(), id); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				writeError(w, http.StatusNotFound, "annotation not found")
				return
			}
			logger.Error.Printf("delete annotation %d: %v", id, err)
			writeError(w, http.StatusInternalServerError, "delete failed")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func annotationInput(w http.ResponseWriter, r *http.Request) (domain.AnnotationInput, bool) {
	var in domain.AnnotationInput
	if !decodeJSON(w, r, jsonBodyLimit, &in) {
		return in, false
	}
	in, err := in.Normalize()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return in, false
	}
	return in, true
}
