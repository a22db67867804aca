package portal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

// newPortalServer returns a fake portal with a token endpoint, a contractor
// registry, a submission list, and a submission endpoint that serves a
// receipt PDF.
func newPortalServer(t *testing.T) (*httptest.Server, *Client) {
	t.Helper()

	mux := http.NewServeMux()

	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if r.Form.Get("client_id") != "clinic" || r.Form.Get("client_secret") != "s3cret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "test-token",
			"token_type":   "bearer",
			"expires_in":   3600,
		})
	})

	mux.HandleFunc("/api/v1/contractors/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/api/v1/contractors/470001":
			json.NewEncoder(w).Encode(Contractor{
				ProviderNumber: "470001",
				Name:           "Private Dental Clinic",
				Phone:          "+45 12 34 56 78",
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	mux.HandleFunc("/api/v1/submissions", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.Method {
		case http.MethodGet:
			resp := submissionListResponse{}
			if r.URL.Query().Get("subject") == "Discharge of patient Jane Doe" {
				resp.Total = 1
			}
			json.NewEncoder(w).Encode(resp)
		case http.MethodPost:
			if err := r.ParseMultipartForm(32 << 20); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			var msg map[string]string
			if err := json.Unmarshal([]byte(r.FormValue("message")), &msg); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			if msg["provider_number"] == "999999" {
				w.WriteHeader(http.StatusUnprocessableEntity)
				w.Write([]byte("unknown receiver"))
				return
			}
			if len(r.MultipartForm.File["files"]) == 0 {
				w.WriteHeader(http.StatusUnprocessableEntity)
				w.Write([]byte("no files attached"))
				return
			}
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(map[string]string{
				"id":     "sub-123",
				"status": "sent",
			})
		}
	})

	mux.HandleFunc("/api/v1/submissions/sub-123/receipt", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.4 receipt"))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client := NewClient(srv.URL, "clinic", "s3cret", WithHTTPClient(srv.Client()))
	return srv, client
}

func TestAuthenticate(t *testing.T) {
	_, client := newPortalServer(t)

	if err := client.Authenticate(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.token != "test-token" {
		t.Errorf("expected cached token, got %q", client.token)
	}
}

func TestAuthenticate_BadCredentials(t *testing.T) {
	srv, _ := newPortalServer(t)
	client := NewClient(srv.URL, "clinic", "wrong", WithHTTPClient(srv.Client()))

	err := client.Authenticate(context.Background())
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestVerifyContractor_Match(t *testing.T) {
	_, client := newPortalServer(t)

	check, err := client.VerifyContractor(context.Background(), "470001", "12345678")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !check.Found {
		t.Error("expected contractor to be found")
	}
	if !check.PhoneMatch {
		t.Error("expected phone numbers to match after normalization")
	}
}

func TestVerifyContractor_PhoneMismatch(t *testing.T) {
	_, client := newPortalServer(t)

	check, err := client.VerifyContractor(context.Background(), "470001", "87654321")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !check.Found {
		t.Error("expected contractor to be found")
	}
	if check.PhoneMatch {
		t.Error("expected phone mismatch")
	}
}

func TestVerifyContractor_NotFound(t *testing.T) {
	_, client := newPortalServer(t)

	check, err := client.VerifyContractor(context.Background(), "000000", "12345678")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if check.Found {
		t.Error("expected contractor to be missing")
	}
}

func TestAlreadySubmitted(t *testing.T) {
	_, client := newPortalServer(t)

	sent, err := client.AlreadySubmitted(context.Background(), "Discharge of patient Jane Doe")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sent {
		t.Error("expected existing submission to be reported")
	}

	sent, err = client.AlreadySubmitted(context.Background(), "Discharge of patient John Doe")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sent {
		t.Error("expected no existing submission")
	}
}

func TestSubmit(t *testing.T) {
	_, client := newPortalServer(t)

	ack, err := client.Submit(context.Background(), &Submission{
		Subject:        "Discharge of patient John Doe",
		Body:           "Records attached.",
		ProviderNumber: "470001",
		Attachments: []Attachment{
			{Filename: "record.pdf", ContentType: "application/pdf", Data: []byte("%PDF-1.4")},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ack.SubmissionID != "sub-123" {
		t.Errorf("expected submission id sub-123, got %s", ack.SubmissionID)
	}
	if len(ack.ReceiptPDF) == 0 {
		t.Error("expected receipt PDF bytes")
	}
}

func TestSubmit_Rejected(t *testing.T) {
	_, client := newPortalServer(t)

	_, err := client.Submit(context.Background(), &Submission{
		Subject:        "Discharge of patient John Doe",
		ProviderNumber: "999999",
		Attachments: []Attachment{
			{Filename: "record.pdf", ContentType: "application/pdf", Data: []byte("%PDF-1.4")},
		},
	})
	if !errors.Is(err, ErrSubmissionRejected) {
		t.Fatalf("expected ErrSubmissionRejected, got %v", err)
	}
}

func TestSubmit_RequiresSubjectAndReceiver(t *testing.T) {
	_, client := newPortalServer(t)

	if _, err := client.Submit(context.Background(), &Submission{ProviderNumber: "470001"}); err == nil {
		t.Error("expected error for missing subject")
	}
	if _, err := client.Submit(context.Background(), &Submission{Subject: "x"}); err == nil {
		t.Error("expected error for missing provider number")
	}
}

func TestNormalizePhone(t *testing.T) {
	cases := map[string]string{
		"+45 12 34 56 78": "12345678",
		"0045 1234-5678":  "12345678",
		"12345678":        "12345678",
	}
	for in, want := range cases {
		if got := normalizePhone(in); got != want {
			t.Errorf("normalizePhone(%q) = %q, want %q", in, got, want)
		}
	}
}
