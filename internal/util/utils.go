package util

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// MaxJSONBodyBytes caps the admin API request bodies.
const MaxJSONBodyBytes int64 = 1 << 20

var ErrBodyTooLarge = errors.New("request body too large")

// ReadBody reads at most limit bytes of the request body. A larger body fails with
// ErrBodyTooLarge.
func ReadBody(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, error) {
	defer r.Body.Close()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, fmt.Errorf("%w: limit is %d bytes", ErrBodyTooLarge, limit)
		}
		return nil, fmt.Errorf("read body error: %w", err)
	}
	return body, nil
}

// DecodeJSONBody decodes an admin request body of at most MaxJSONBodyBytes into T.
func DecodeJSONBody[T any](w http.ResponseWriter, r *http.Request) (T, error) {
	var data T
	body, err := ReadBody(w, r, MaxJSONBodyBytes)
	if err != nil {
		return data, err
	}
	if err := json.Unmarshal(body, &data); err != nil {
		return data, fmt.Errorf("json unmarshal error: %w", err)
	}
	return data, nil
}

// DecodeJSONBodyResponse is the client side counterpart, used against the engine's own API.
func DecodeJSONBodyResponse[T any](r *http.Response) (T, error) {
	defer r.Body.Close()
	var data T
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		return data, fmt.Errorf("decode %s response: %w", r.Request.URL.Path, err)
	}
	return data, nil
}

func WriteJSONResponse[T any](w http.ResponseWriter, status int, data T) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}
