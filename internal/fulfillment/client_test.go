package fulfillment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestSubmitRedemption_Accepted(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/api/fulfillments" {
			t.Fatalf("path = %s, want /api/fulfillments", r.URL.Path)
		}

		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.RedemptionID != 7 || req.Teammate != "teammate" {
			t.Fatalf("unexpected request: %+v", req)
		}

		resp := Result{
			RedemptionID: req.RedemptionID,
			Status:       StatusAccepted,
			Reference:    "ref-7",
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}))
	defer ts.Close()

	client := NewClient(ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	res, code, retry, err := client.SubmitRedemption(ctx, Request{
		RedemptionID: 7,
		Provider:     "giftly",
		Teammate:     "teammate",
		Points:       decimal.RequireFromString("5"),
	})
	if err != nil {
		t.Fatalf("SubmitRedemption error: %v", err)
	}
	if code != http.StatusOK {
		t.Fatalf("status code = %d, want %d", code, http.StatusOK)
	}
	if retry != 0 {
		t.Fatalf("retryAfter = %v, want 0", retry)
	}
	if res == nil || res.Status != StatusAccepted || res.Reference != "ref-7" {
		t.Fatalf("unexpected response: %+v", res)
	}
}

func TestSubmitRedemption_Rejected(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := Result{
			RedemptionID: 7,
			Status:       StatusRejected,
			Reason:       "out of stock",
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}))
	defer ts.Close()

	client := NewClient(ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	res, _, _, err := client.SubmitRedemption(ctx, Request{RedemptionID: 7})
	if err != nil {
		t.Fatalf("SubmitRedemption error: %v", err)
	}
	if res == nil || res.Status != StatusRejected || res.Reason != "out of stock" {
		t.Fatalf("unexpected response: %+v", res)
	}
}

func TestSubmitRedemption_TooManyRequests(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "5")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer ts.Close()

	client := NewClient(ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	res, code, retry, err := client.SubmitRedemption(ctx, Request{RedemptionID: 7})
	if err != nil {
		t.Fatalf("SubmitRedemption error: %v", err)
	}
	if res != nil {
		t.Fatalf("expected nil response for 429, got %+v", res)
	}
	if code != http.StatusTooManyRequests {
		t.Fatalf("status code = %d, want %d", code, http.StatusTooManyRequests)
	}
	if retry < 5*time.Second {
		t.Fatalf("retryAfter = %v, want at least 5s", retry)
	}
}

func TestSubmitRedemption_UnexpectedStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	client := NewClient(ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	res, code, _, err := client.SubmitRedemption(ctx, Request{RedemptionID: 7})
	if err == nil {
		t.Fatalf("expected error for status 404")
	}
	if res != nil {
		t.Fatalf("expected nil response, got %+v", res)
	}
	if code != http.StatusNotFound {
		t.Fatalf("status code = %d, want %d", code, http.StatusNotFound)
	}
}
