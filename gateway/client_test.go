package gateway

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestBrokerRESTClientOrderFlow(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") != "key" {
			t.Fatalf("missing api key header")
		}
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/orders/1001/history":
			io.WriteString(w, `[
				{"status":"OPEN","timestamp":"2024-01-10T09:20:00Z"},
				{"status":"COMPLETE","timestamp":"2024-01-10T10:05:00Z"}
			]`)
		case r.Method == http.MethodPost && r.URL.Path == "/orders":
			io.WriteString(w, `{"order_id":"1002"}`)
		case r.Method == http.MethodDelete && r.URL.Path == "/orders/1002":
			w.WriteHeader(200)
		default:
			t.Fatalf("unexpected %s %s", r.Method, r.URL.Path)
		}
	}))
	defer ts.Close()

	cli := &BrokerRESTClient{
		BaseURL:    ts.URL,
		APIKey:     "key",
		APISecret:  "secret",
		HTTPClient: ts.Client(),
	}

	history, err := cli.GetOrderStatus(context.Background(), "1001")
	if err != nil {
		t.Fatalf("get status err: %v", err)
	}
	if len(history) != 2 || history[1].Status != "COMPLETE" {
		t.Fatalf("unexpected history %+v", history)
	}

	id, err := cli.PlaceOrder(context.Background(), OrderParams{Symbol: "INFY", Quantity: 50})
	if err != nil {
		t.Fatalf("place err: %v", err)
	}
	if id != "1002" {
		t.Fatalf("unexpected order id %s", id)
	}
	if err := cli.CancelOrder(context.Background(), id); err != nil {
		t.Fatalf("cancel err: %v", err)
	}
}

func TestBrokerRESTClientErrorTaxonomy(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/orders/missing/history":
			http.Error(w, "no such order", 404)
		case "/orders/busy/history":
			http.Error(w, "rate limited", 429)
		case "/orders/broken/history":
			http.Error(w, "internal", 500)
		case "/orders/badreq/history":
			http.Error(w, "bad request", 400)
		}
	}))
	defer ts.Close()

	cli := &BrokerRESTClient{BaseURL: ts.URL, HTTPClient: ts.Client()}
	ctx := context.Background()

	if _, err := cli.GetOrderStatus(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("404 should map to ErrNotFound, got %v", err)
	}
	if _, err := cli.GetOrderStatus(ctx, "busy"); !IsTransient(err) {
		t.Errorf("429 should be transient, got %v", err)
	}
	if _, err := cli.GetOrderStatus(ctx, "broken"); !IsTransient(err) {
		t.Errorf("500 should be transient, got %v", err)
	}
	if _, err := cli.GetOrderStatus(ctx, "badreq"); err == nil || IsTransient(err) || errors.Is(err, ErrNotFound) {
		t.Errorf("400 should be a plain error, got %v", err)
	}
}

func TestBrokerRESTClientEmptyHistory(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, `[]`)
	}))
	defer ts.Close()

	cli := &BrokerRESTClient{BaseURL: ts.URL, HTTPClient: ts.Client()}
	if _, err := cli.GetOrderStatus(context.Background(), "42"); !errors.Is(err, ErrNotFound) {
		t.Errorf("empty history should map to ErrNotFound, got %v", err)
	}
}
