package utils

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestBackoffRetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := NewBackoff(time.Millisecond, 3).Do(context.Background(), func(i int) error {
		calls++
		if i < 2 {
			return errors.New("not yet")
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Fatalf("err=%v calls=%d", err, calls)
	}
}

func TestBackoffReturnsLastError(t *testing.T) {
	calls := 0
	err := NewBackoff(time.Millisecond, 2).Do(context.Background(), func(int) error {
		calls++
		return errors.New("down")
	})
	if err == nil || calls != 3 {
		t.Fatalf("err=%v calls=%d", err, calls)
	}
}

func TestBearerAuth(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	cases := []struct {
		secret, header string
		want           int
	}{
		{"s3cret", "Bearer s3cret", http.StatusOK},
		{"s3cret", "Bearer wrong", http.StatusUnauthorized},
		{"s3cret", "s3cret", http.StatusUnauthorized},
		{"s3cret", "", http.StatusUnauthorized},
		{"", "", http.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rec := httptest.NewRecorder()
		BearerAuth(tc.secret)(ok).ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Fatalf("secret=%q header=%q: code %d, want %d", tc.secret, tc.header, rec.Code, tc.want)
		}
		if rec.Code == http.StatusUnauthorized {
			var body map[string]string
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil || body["error"] != "unauthorized" {
				t.Fatalf("401 body = %v, %v", body, err)
			}
		}
	}
}

func TestRequestIDPropagates(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { seen = RID(r.Context()) }))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if seen == "" || rec.Header().Get("X-Request-ID") != seen {
		t.Fatalf("rid %q header %q", seen, rec.Header().Get("X-Request-ID"))
	}
}
