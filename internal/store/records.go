package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// ErrNotFound is returned for unknown customer records.
var ErrNotFound = errors.New("record not found")

type Client struct {
	ID             int64  `yaml:"-"`
	Name           string `yaml:"name"`
	Email          string `yaml:"email"`
	Phone          string `yaml:"phone"`
	Postcode       string `yaml:"postcode"`
	Active         bool   `yaml:"active"`
	MarketingOptIn bool   `yaml:"marketing_opt_in"`
}

// Booking is a scheduled visit joined with its client.
type Booking struct {
	ID      int64
	Client  Client
	Service string
	Date    time.Time
	Time    string
	Status  string
}

// Job is a completed visit joined with its client.
type Job struct {
	ID          int64
	Client      Client
	Service     string
	CompletedOn time.Time
	Notes       string
}

type Invoice struct {
	ID          int64
	Number      string
	Client      Client
	AmountPence int64
	Description string
	IssuedOn    time.Time
	DueOn       time.Time
	Status      string
}

// Amount formats the invoice total in pounds.
func (i Invoice) Amount() string {
	return fmt.Sprintf("£%d.%02d", i.AmountPence/100, i.AmountPence%100)
}

func (s *Store) CreateClient(ctx context.Context, c Client) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO clients (name, email, phone, postcode, active, marketing_opt_in) VALUES (?, ?, ?, ?, ?, ?)`,
		c.Name, c.Email, c.Phone, c.Postcode, boolToInt(c.Active), boolToInt(c.MarketingOptIn))
	if err != nil {
		return 0, fmt.Errorf("create client: %w", err)
	}
	return res.LastInsertId()
}

func (s *Store) CreateBooking(ctx context.Context, clientID int64, service string, date time.Time, at string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO bookings (client_id, service, date, time) VALUES (?, ?, ?, ?)`,
		clientID, service, date.Format(dateLayout), at)
	if err != nil {
		return 0, fmt.Errorf("create booking: %w", err)
	}
	return res.LastInsertId()
}

func (s *Store) CreateJob(ctx context.Context, clientID int64, service string, completedOn time.Time, notes string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (client_id, service, completed_on, notes) VALUES (?, ?, ?, ?)`,
		clientID, service, completedOn.Format(dateLayout), notes)
	if err != nil {
		return 0, fmt.Errorf("create job: %w", err)
	}
	return res.LastInsertId()
}

func (s *Store) CreateInvoice(ctx context.Context, inv Invoice) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO invoices (number, client_id, amount_pence, description, issued_on, due_on, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		inv.Number, inv.Client.ID, inv.AmountPence, inv.Description,
		inv.IssuedOn.Format(dateLayout), inv.DueOn.Format(dateLayout), defaultString(inv.Status, "unpaid"))
	if err != nil {
		return 0, fmt.Errorf("create invoice: %w", err)
	}
	return res.LastInsertId()
}

const clientColumns = `c.id, c.name, c.email, c.phone, c.postcode, c.active, c.marketing_opt_in`

func clientDest(c *Client, active, optIn *int) []any {
	return []any{&c.ID, &c.Name, &c.Email, &c.Phone, &c.Postcode, active, optIn}
}

// BookingsOn lists confirmed bookings for the calendar day of date.
func (s *Store) BookingsOn(ctx context.Context, date time.Time) ([]Booking, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT b.id, b.service, b.date, b.time, b.status, `+clientColumns+`
		FROM bookings b JOIN clients c ON c.id = b.client_id
		WHERE b.date = ? AND b.status = 'confirmed' ORDER BY b.time, b.id`, date.Format(dateLayout))
	if err != nil {
		return nil, fmt.Errorf("query bookings: %w", err)
	}
	defer rows.Close()

	var out []Booking
	for rows.Next() {
		var (
			b             Booking
			day           string
			active, optIn int
		)
		dest := append([]any{&b.ID, &b.Service, &day, &b.Time, &b.Status}, clientDest(&b.Client, &active, &optIn)...)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		b.Client.Active, b.Client.MarketingOptIn = active != 0, optIn != 0
		b.Date, _ = time.ParseInLocation(dateLayout, day, time.Local)
		out = append(out, b)
	}
	return out, rows.Err()
}

// JobsCompletedOn lists jobs finished on the calendar day of date.
func (s *Store) JobsCompletedOn(ctx context.Context, date time.Time) ([]Job, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT j.id, j.service, j.completed_on, j.notes, `+clientColumns+`
		FROM jobs j JOIN clients c ON c.id = j.client_id
		WHERE j.completed_on = ? ORDER BY j.id`, date.Format(dateLayout))
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		var (
			j             Job
			day           string
			active, optIn int
		)
		dest := append([]any{&j.ID, &j.Service, &day, &j.Notes}, clientDest(&j.Client, &active, &optIn)...)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		j.Client.Active, j.Client.MarketingOptIn = active != 0, optIn != 0
		j.CompletedOn, _ = time.ParseInLocation(dateLayout, day, time.Local)
		out = append(out, j)
	}
	return out, rows.Err()
}

// MarketingClients lists active clients who opted in to marketing email.
func (s *Store) MarketingClients(ctx context.Context) ([]Client, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+clientColumns+` FROM clients c
		WHERE c.active = 1 AND c.marketing_opt_in = 1 AND c.email != '' ORDER BY c.id`)
	if err != nil {
		return nil, fmt.Errorf("query clients: %w", err)
	}
	defer rows.Close()

	var out []Client
	for rows.Next() {
		var (
			c             Client
			active, optIn int
		)
		if err := rows.Scan(clientDest(&c, &active, &optIn)...); err != nil {
			return nil, fmt.Errorf("scan client: %w", err)
		}
		c.Active, c.MarketingOptIn = active != 0, optIn != 0
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetInvoice looks an invoice up by numeric id or by invoice number.
func (s *Store) GetInvoice(ctx context.Context, ref string) (*Invoice, error) {
	row := s.db.QueryRowContext(ctx, `SELECT i.id, i.number, i.amount_pence, i.description, i.issued_on, i.due_on, i.status, `+clientColumns+`
		FROM invoices i JOIN clients c ON c.id = i.client_id
		WHERE CAST(i.id AS TEXT) = ? OR i.number = ?`, ref, ref)

	var (
		inv           Invoice
		issued, due   string
		active, optIn int
	)
	dest := append([]any{&inv.ID, &inv.Number, &inv.AmountPence, &inv.Description, &issued, &due, &inv.Status},
		clientDest(&inv.Client, &active, &optIn)...)
	err := row.Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("invoice %s: %w", ref, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	inv.Client.Active, inv.Client.MarketingOptIn = active != 0, optIn != 0
	inv.IssuedOn, _ = time.ParseInLocation(dateLayout, issued, time.Local)
	inv.DueOn, _ = time.ParseInLocation(dateLayout, due, time.Local)
	return &inv, nil
}

func defaultString(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
