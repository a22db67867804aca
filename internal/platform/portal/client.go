// Package portal implements the HTTP client for the EDI portal that receives
// discharge submissions. The portal exposes a client-credentials token
// endpoint, a contractor registry, and a submission API that returns a PDF
// receipt for every accepted submission.
package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Sentinel errors returned by the client.
var (
	ErrUnauthorized        = fmt.Errorf("portal: authentication failed")
	ErrContractorNotFound  = fmt.Errorf("portal: contractor not found")
	ErrSubmissionRejected  = fmt.Errorf("portal: submission rejected")
	ErrReceiptNotAvailable = fmt.Errorf("portal: receipt not available")
)

// Contractor is a receiving clinic as registered at the portal.
type Contractor struct {
	ProviderNumber string `json:"provider_number"`
	Name           string `json:"name"`
	Phone          string `json:"phone"`
}

// ContractorCheck is the outcome of verifying a receiving clinic against the
// portal's contractor registry.
type ContractorCheck struct {
	Found      bool
	PhoneMatch bool
	Contractor *Contractor
}

// Attachment is a file included in a submission.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Submission is one message to a receiving clinic: a subject line, a body
// assembled from the content template and the journal continuation note, and
// the attached document set.
type Submission struct {
	Subject        string
	Body           string
	ProviderNumber string
	Attachments    []Attachment
}

// Ack acknowledges an accepted submission.
type Ack struct {
	SubmissionID string
	SubmittedAt  time.Time
	ReceiptPDF   []byte
}

// Client talks to the EDI portal. It caches the access token and refreshes
// it when expired. Safe for use from a single batch goroutine plus token
// refresh; the mutex guards the cached token.
type Client struct {
	baseURL      string
	clientID     string
	clientSecret string
	httpClient   *http.Client

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a portal client for the given base URL and credentials.
func NewClient(baseURL, clientID, clientSecret string, opts ...Option) *Client {
	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// Authenticate obtains an access token via the client-credentials grant.
// Expiry is taken from expires_in when present, otherwise from the token's
// exp claim.
func (c *Client) Authenticate(ctx context.Context) error {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/oauth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("token endpoint returned %d", resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return fmt.Errorf("decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return fmt.Errorf("token endpoint returned empty access_token")
	}

	expiry := time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	if tr.ExpiresIn <= 0 {
		if exp, ok := tokenExpFromClaims(tr.AccessToken); ok {
			expiry = exp
		} else {
			// No expiry information; force a refresh on the next call.
			expiry = time.Now()
		}
	}

	c.mu.Lock()
	c.token = tr.AccessToken
	c.tokenExpiry = expiry
	c.mu.Unlock()
	return nil
}

// tokenExpFromClaims reads the exp claim without verifying the signature.
// The portal signed the token; the client only needs to know when to refresh.
func tokenExpFromClaims(token string) (time.Time, bool) {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

func (c *Client) ensureToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	token, expiry := c.token, c.tokenExpiry
	c.mu.Unlock()

	if token != "" && time.Until(expiry) > 30*time.Second {
		return token, nil
	}
	if err := c.Authenticate(ctx); err != nil {
		return "", err
	}
	c.mu.Lock()
	token = c.token
	c.mu.Unlock()
	return token, nil
}

func (c *Client) do(ctx context.Context, req *http.Request) (*http.Response, error) {
	token, err := c.ensureToken(ctx)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		return nil, ErrUnauthorized
	}
	return resp, nil
}

// VerifyContractor looks up the receiving clinic in the portal's contractor
// registry and checks that its registered phone number matches the one the
// clinical system holds. Phone comparison ignores spaces and a leading
// country prefix.
func (c *Client) VerifyContractor(ctx context.Context, providerNumber, phone string) (*ContractorCheck, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/v1/contractors/"+url.PathEscape(providerNumber), nil)
	if err != nil {
		return nil, fmt.Errorf("build contractor request: %w", err)
	}

	resp, err := c.do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("lookup contractor %s: %w", providerNumber, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return &ContractorCheck{}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("contractor lookup returned %d", resp.StatusCode)
	}

	var contractor Contractor
	if err := json.NewDecoder(resp.Body).Decode(&contractor); err != nil {
		return nil, fmt.Errorf("decode contractor: %w", err)
	}

	return &ContractorCheck{
		Found:      true,
		PhoneMatch: normalizePhone(contractor.Phone) == normalizePhone(phone),
		Contractor: &contractor,
	}, nil
}

func normalizePhone(phone string) string {
	s := strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return -1
		}
		return r
	}, phone)
	s = strings.TrimPrefix(s, "+45")
	s = strings.TrimPrefix(s, "0045")
	return s
}

type submissionListResponse struct {
	Items []struct {
		ID      string `json:"id"`
		Subject string `json:"subject"`
		Status  string `json:"status"`
	} `json:"items"`
	Total int `json:"total"`
}

// AlreadySubmitted reports whether a sent submission with the given subject
// already exists at the portal. Used as the idempotence probe before sending.
func (c *Client) AlreadySubmitted(ctx context.Context, subject string) (bool, error) {
	q := url.Values{}
	q.Set("subject", subject)
	q.Set("status", "sent")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/v1/submissions?"+q.Encode(), nil)
	if err != nil {
		return false, fmt.Errorf("build submissions request: %w", err)
	}

	resp, err := c.do(ctx, req)
	if err != nil {
		return false, fmt.Errorf("list submissions: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("submission list returned %d", resp.StatusCode)
	}

	var list submissionListResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return false, fmt.Errorf("decode submission list: %w", err)
	}
	return list.Total > 0 || len(list.Items) > 0, nil
}

type submitResponse struct {
	ID          string    `json:"id"`
	Status      string    `json:"status"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Submit sends one submission as a multipart request: a JSON "message" part
// followed by one part per attachment. On acceptance the PDF receipt is
// fetched and returned with the acknowledgment.
func (c *Client) Submit(ctx context.Context, sub *Submission) (*Ack, error) {
	if sub.Subject == "" {
		return nil, fmt.Errorf("portal: submission subject is required")
	}
	if sub.ProviderNumber == "" {
		return nil, fmt.Errorf("portal: receiver provider number is required")
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	meta, err := mw.CreateFormField("message")
	if err != nil {
		return nil, fmt.Errorf("create message part: %w", err)
	}
	if err := json.NewEncoder(meta).Encode(map[string]string{
		"subject":         sub.Subject,
		"body":            sub.Body,
		"provider_number": sub.ProviderNumber,
	}); err != nil {
		return nil, fmt.Errorf("encode message part: %w", err)
	}

	for _, att := range sub.Attachments {
		fw, err := mw.CreateFormFile("files", att.Filename)
		if err != nil {
			return nil, fmt.Errorf("create file part %s: %w", att.Filename, err)
		}
		if _, err := fw.Write(att.Data); err != nil {
			return nil, fmt.Errorf("write file part %s: %w", att.Filename, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/submissions", &body)
	if err != nil {
		return nil, fmt.Errorf("build submit request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("submit: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnprocessableEntity || resp.StatusCode == http.StatusBadRequest {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("%w: %s", ErrSubmissionRejected, strings.TrimSpace(string(msg)))
	}
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("submit returned %d", resp.StatusCode)
	}

	var sr submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("decode submit response: %w", err)
	}

	receipt, err := c.fetchReceipt(ctx, sr.ID)
	if err != nil {
		return nil, err
	}

	submittedAt := sr.SubmittedAt
	if submittedAt.IsZero() {
		submittedAt = time.Now()
	}
	return &Ack{
		SubmissionID: sr.ID,
		SubmittedAt:  submittedAt,
		ReceiptPDF:   receipt,
	}, nil
}

func (c *Client) fetchReceipt(ctx context.Context, submissionID string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/v1/submissions/"+url.PathEscape(submissionID)+"/receipt", nil)
	if err != nil {
		return nil, fmt.Errorf("build receipt request: %w", err)
	}

	resp, err := c.do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("fetch receipt for %s: %w", submissionID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrReceiptNotAvailable
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("receipt fetch returned %d", resp.StatusCode)
	}

	pdf, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read receipt body: %w", err)
	}
	if len(pdf) == 0 {
		return nil, ErrReceiptNotAvailable
	}
	return pdf, nil
}
