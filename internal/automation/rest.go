package automation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/djlord-it/bizflow/internal/action"
	"github.com/djlord-it/bizflow/internal/scheduler"
)

const DefaultPortalTimeout = 15 * time.Second

// APIError is a non-2xx response from the portal.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("portal: %s %s: status %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("portal: %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
}

// RESTPortal talks to the portal's internal JSON API.
type RESTPortal struct {
	baseURL string
	token   string
	client  *http.Client
}

var (
	_ Portal                   = (*RESTPortal)(nil)
	_ action.EntityService     = (*RESTPortal)(nil)
	_ scheduler.ReminderSource = (*RESTPortal)(nil)
)

func NewRESTPortal(baseURL, token string) *RESTPortal {
	return &RESTPortal{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: DefaultPortalTimeout},
	}
}

func (p *RESTPortal) WithClient(c *http.Client) *RESTPortal {
	p.client = c
	return p
}

func (p *RESTPortal) CreateProjectFromProposal(ctx context.Context, proposalID int64) (Project, error) {
	var out Project
	err := p.do(ctx, http.MethodPost, fmt.Sprintf("/proposals/%d/project", proposalID), nil, &out)
	return out, err
}

func (p *RESTPortal) GenerateDefaultMilestones(ctx context.Context, projectID int64) ([]Milestone, error) {
	var out struct {
		Milestones []Milestone `json:"milestones"`
	}
	err := p.do(ctx, http.MethodPost, fmt.Sprintf("/projects/%d/milestones/defaults", projectID), nil, &out)
	return out.Milestones, err
}

func (p *RESTPortal) CreateMilestoneInvoice(ctx context.Context, milestoneID int64) (Invoice, error) {
	var out Invoice
	err := p.do(ctx, http.MethodPost, fmt.Sprintf("/milestones/%d/invoice", milestoneID), nil, &out)
	return out, err
}

func (p *RESTPortal) SetProjectStatus(ctx context.Context, projectID int64, status string) (string, error) {
	return p.setStatus(ctx, "project", projectID, status)
}

// UpdateStatus serves the update_status action.
func (p *RESTPortal) UpdateStatus(ctx context.Context, entity string, id int64, status string) error {
	_, err := p.setStatus(ctx, entity, id, status)
	return err
}

func (p *RESTPortal) setStatus(ctx context.Context, entity string, id int64, status string) (string, error) {
	in := struct {
		Status string `json:"status"`
	}{status}
	var out struct {
		PreviousStatus string `json:"previousStatus"`
	}
	path := fmt.Sprintf("/%s/%d/status", collection(entity), id)
	err := p.do(ctx, http.MethodPatch, path, in, &out)
	return out.PreviousStatus, err
}

// ListOverdueInvoices feeds the reminder scheduler.
func (p *RESTPortal) ListOverdueInvoices(ctx context.Context, asOf time.Time) ([]scheduler.OverdueInvoice, error) {
	var out struct {
		Invoices []Invoice `json:"invoices"`
	}
	path := "/invoices/overdue?" + url.Values{"asOf": {asOf.UTC().Format(time.DateOnly)}}.Encode()
	if err := p.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}

	res := make([]scheduler.OverdueInvoice, 0, len(out.Invoices))
	for _, inv := range out.Invoices {
		res = append(res, scheduler.OverdueInvoice{
			ID:          inv.ID,
			Number:      inv.Number,
			Amount:      inv.Amount,
			Currency:    inv.Currency,
			DueDate:     inv.DueDate,
			ClientID:    inv.ClientID,
			ClientName:  inv.ClientName,
			ClientEmail: inv.ClientEmail,
		})
	}
	return res, nil
}

func (p *RESTPortal) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("portal: encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("portal: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("portal: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(resp.Body),
		}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return fmt.Errorf("portal: decode %s %s: %w", method, path, err)
	}
	return nil
}

// errorMessage reads {"error": "..."} bodies, falling back to raw text.
func errorMessage(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, 4096))
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &e) == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(data))
}

func collection(entity string) string {
	entity = strings.ToLower(strings.TrimSpace(entity))
	switch {
	case entity == "":
		return "entities"
	case strings.HasSuffix(entity, "s"):
		return entity
	default:
		return entity + "s"
	}
}
