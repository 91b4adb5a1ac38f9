// Package directory resolves appointments to the customers they belong to.
package directory

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/samber/lo"

	"cockpit/internal/domain"
)

type Customer struct {
	ID       string `toml:"id"`
	Name     string `toml:"name"`
	Title    string `toml:"title"`
	Email    string `toml:"email"`
	Priority string `toml:"priority"`
	Segment  string `toml:"segment"`
	Location string `toml:"location"`
}

type Appointment struct {
	ID         string `toml:"id"`
	CustomerID string `toml:"customer_id"`
	Title      string `toml:"title"`
	Status     string `toml:"status"`
	Notes      string `toml:"notes"`
}

type fileDirectory struct {
	Customers    []Customer    `toml:"customers"`
	Appointments []Appointment `toml:"appointments"`
}

// Directory is a read-only appointment and customer lookup.
type Directory struct {
	customers    []Customer
	appointments []Appointment
	byCustomer   map[string]Customer
	byAppt       map[string]Appointment
}

// Load reads a TOML directory file. An empty path yields the demo directory.
func Load(path string) (*Directory, error) {
	if strings.TrimSpace(path) == "" {
		return Demo(), nil
	}
	var fd fileDirectory
	if _, err := toml.DecodeFile(path, &fd); err != nil {
		return nil, fmt.Errorf("failed to read directory %q: %w", path, err)
	}
	return build(fd.Customers, fd.Appointments)
}

// Parse decodes a TOML directory document.
func Parse(doc string) (*Directory, error) {
	var fd fileDirectory
	if _, err := toml.Decode(doc, &fd); err != nil {
		return nil, fmt.Errorf("failed to parse directory: %w", err)
	}
	return build(fd.Customers, fd.Appointments)
}

func build(customers []Customer, appointments []Appointment) (*Directory, error) {
	d := &Directory{
		customers:    customers,
		appointments: appointments,
		byCustomer:   lo.KeyBy(customers, func(c Customer) string { return c.ID }),
		byAppt:       lo.KeyBy(appointments, func(a Appointment) string { return a.ID }),
	}
	if len(d.byCustomer) != len(customers) || len(d.byAppt) != len(appointments) {
		return nil, fmt.Errorf("%w: duplicate directory ids", domain.ErrBadRequest)
	}
	for _, appt := range appointments {
		if _, ok := d.byCustomer[appt.CustomerID]; !ok {
			return nil, fmt.Errorf("%w: appointment %s references unknown customer %q",
				domain.ErrBadRequest, appt.ID, appt.CustomerID)
		}
	}
	return d, nil
}

func (d *Directory) Customers() []Customer {
	return append([]Customer(nil), d.customers...)
}

func (d *Directory) Appointments() []Appointment {
	return append([]Appointment(nil), d.appointments...)
}

func (d *Directory) Customer(id string) (Customer, bool) {
	c, ok := d.byCustomer[id]
	return c, ok
}

func (d *Directory) Appointment(id string) (Appointment, bool) {
	a, ok := d.byAppt[id]
	return a, ok
}

// RecipientFor returns the customer an appointment belongs to. Unknown and
// empty appointment ids have no default recipient.
func (d *Directory) RecipientFor(appointmentID string) (string, bool) {
	appt, ok := d.byAppt[appointmentID]
	if !ok {
		return "", false
	}
	return appt.CustomerID, true
}

// Demo returns the built-in directory used when none is configured.
func Demo() *Directory {
	d, err := build(demoCustomers, demoAppointments)
	if err != nil {
		panic(err)
	}
	return d
}

var demoCustomers = []Customer{
	{ID: "cust-1", Name: "Asha Menon", Title: "Head of Customer Ops, Zephyr Labs", Email: "asha.menon@zephyrlabs.io", Priority: "High", Segment: "Enterprise", Location: "Bengaluru, India"},
	{ID: "cust-2", Name: "Ryan Barreto", Title: "VP Product, Vanta Capital", Email: "ryan.barreto@vanta.capital", Priority: "Medium", Segment: "Growth", Location: "Singapore"},
	{ID: "cust-3", Name: "Meera Thomas", Title: "CTO, Aurum Retail", Email: "meera@aurumretail.com", Priority: "Low", Segment: "SMB", Location: "Dubai, UAE"},
}

var demoAppointments = []Appointment{
	{ID: "appt-1", CustomerID: "cust-1", Title: "Quarterly health check", Status: "DONE", Notes: "Walked through the escalations dashboard and platform uptime."},
	{ID: "appt-2", CustomerID: "cust-1", Title: "AI handoff workshop", Status: "PENDING", Notes: "Need to finalise success criteria before Friday."},
	{ID: "appt-3", CustomerID: "cust-2", Title: "Renewal prep", Status: "CANCELLED", Notes: "Client rescheduled after budget approvals slipped."},
	{ID: "appt-4", CustomerID: "cust-3", Title: "Onboarding sprint demo", Status: "PENDING", Notes: "Need to showcase shipment workflow and success metrics."},
}
