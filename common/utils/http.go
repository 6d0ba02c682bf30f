package utils

import (
	"encoding/json"
	"math"
	"net/http"

	"github.com/aurachat/empathy-crawler-service/common/models"
)

func writeBody(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// WriteJSON wraps data in the standard response envelope.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	writeBody(w, statusCode, models.BaseResponse{Data: data})
}

// WriteError writes an error envelope; the error field carries the HTTP
// status text and msg the detail.
func WriteError(w http.ResponseWriter, statusCode int, errorMessage string) {
	writeBody(w, statusCode, models.ErrorResponse{
		Error: http.StatusText(statusCode),
		Msg:   errorMessage,
	})
}

// WritePagination wraps a page of data with pagination metadata.
func WritePagination(w http.ResponseWriter, statusCode int, data interface{}, currentPage, perPage int, total int64) {
	lastPage := int64(math.Ceil(float64(total) / float64(perPage)))

	writeBody(w, statusCode, models.BasePaginationResponse{
		Data: data,
		Meta: models.MetaResponse{
			CurrentPage: int64(currentPage),
			LastPage:    lastPage,
			PerPage:     int64(perPage),
			Total:       total,
		},
	})
}
