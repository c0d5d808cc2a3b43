// Package factory holds the machine park and product routing master data.
// The data is loaded once at startup and treated as immutable; updates build
// a replacement and swap a reference, so concurrent goal runs read without
// locks and never observe a half-applied reload.
package factory

import (
	"fmt"
	"time"

	"github.com/fabriqa/takt/internal/sim"
	"github.com/fabriqa/takt/pkg/schema"
)

// Machine describes one station on the floor.
type Machine struct {
	ID              string `yaml:"id" json:"id"`
	Name            string `yaml:"name,omitempty" json:"name,omitempty"`
	CoolingRequired bool   `yaml:"cooling_required,omitempty" json:"cooling_required,omitempty"`
	HeatingRequired bool   `yaml:"heating_required,omitempty" json:"heating_required,omitempty"`
}

// RoutingStep is one step of a product's routing: the operation name, the
// machine it runs on, the machines that could run it, and the processing
// time distribution.
type RoutingStep struct {
	Operation  string           `yaml:"operation" json:"operation"`
	Machine    string           `yaml:"machine" json:"machine"`
	Candidates []string         `yaml:"candidates,omitempty" json:"candidates,omitempty"`
	Duration   sim.Distribution `yaml:"duration" json:"duration"`
}

// Product couples a product id with its declared routing.
type Product struct {
	ID      string        `yaml:"id" json:"id"`
	Name    string        `yaml:"name,omitempty" json:"name,omitempty"`
	Routing []RoutingStep `yaml:"routing" json:"routing"`
}

// TransitOverride replaces the default transit time for one machine pair.
type TransitOverride struct {
	From    string  `yaml:"from" json:"from"`
	To      string  `yaml:"to" json:"to"`
	Minutes float64 `yaml:"minutes" json:"minutes"`
}

// MasterData is the full machine/product dataset for one plant.
type MasterData struct {
	Machines         []Machine         `yaml:"machines" json:"machines"`
	Products         []Product         `yaml:"products" json:"products"`
	TransitMinutes   float64           `yaml:"transit_minutes,omitempty" json:"transit_minutes,omitempty"`
	TransitOverrides []TransitOverride `yaml:"transit_overrides,omitempty" json:"transit_overrides,omitempty"`

	machines map[string]Machine
	products map[string]Product
	transits map[pair]time.Duration
}

type pair struct{ from, to string }

// index builds the lookup maps and checks referential integrity.
func (md *MasterData) index() error {
	md.machines = make(map[string]Machine, len(md.Machines))
	for _, m := range md.Machines {
		if m.ID == "" {
			return schema.NewError(schema.ErrCodeValidation, "machine with empty id")
		}
		if _, dup := md.machines[m.ID]; dup {
			return schema.NewErrorf(schema.ErrCodeConflict, "duplicate machine %q", m.ID)
		}
		md.machines[m.ID] = m
	}

	if md.TransitMinutes < 0 {
		return schema.NewErrorf(schema.ErrCodeValidation,
			"transit_minutes must be zero or positive, got %v", md.TransitMinutes)
	}

	md.products = make(map[string]Product, len(md.Products))
	for _, p := range md.Products {
		if p.ID == "" {
			return schema.NewError(schema.ErrCodeValidation, "product with empty id")
		}
		if _, dup := md.products[p.ID]; dup {
			return schema.NewErrorf(schema.ErrCodeConflict, "duplicate product %q", p.ID)
		}
		if len(p.Routing) == 0 {
			return schema.NewErrorf(schema.ErrCodeValidation, "product %q has no routing", p.ID)
		}
		for i, step := range p.Routing {
			path := fmt.Sprintf("product %q routing[%d]", p.ID, i)
			if step.Operation == "" {
				return schema.NewErrorf(schema.ErrCodeValidation, "%s: empty operation name", path)
			}
			if _, ok := md.machines[step.Machine]; !ok {
				return schema.NewErrorf(schema.ErrCodeValidation,
					"%s: unknown machine %q", path, step.Machine)
			}
			for _, c := range step.Candidates {
				if _, ok := md.machines[c]; !ok {
					return schema.NewErrorf(schema.ErrCodeValidation,
						"%s: unknown candidate machine %q", path, c)
				}
			}
			if _, err := step.Duration.MeanMinutes(); err != nil {
				return schema.NewErrorf(schema.ErrCodeValidation,
					"%s: %s", path, err.Error()).WithCause(err)
			}
		}
		md.products[p.ID] = p
	}

	md.transits = make(map[pair]time.Duration, len(md.TransitOverrides))
	for _, o := range md.TransitOverrides {
		if o.Minutes < 0 {
			return schema.NewErrorf(schema.ErrCodeValidation,
				"transit override %s -> %s: negative minutes", o.From, o.To)
		}
		if _, ok := md.machines[o.From]; !ok {
			return schema.NewErrorf(schema.ErrCodeValidation,
				"transit override references unknown machine %q", o.From)
		}
		if _, ok := md.machines[o.To]; !ok {
			return schema.NewErrorf(schema.ErrCodeValidation,
				"transit override references unknown machine %q", o.To)
		}
		md.transits[pair{o.From, o.To}] = minutesToDuration(o.Minutes)
	}

	return nil
}

// Machine looks up a machine by id.
func (md *MasterData) Machine(id string) (Machine, bool) {
	m, ok := md.machines[id]
	return m, ok
}

// Product looks up a product by id.
func (md *MasterData) Product(id string) (Product, bool) {
	p, ok := md.products[id]
	return p, ok
}

// MachineIDs returns the active machine set in declaration order.
func (md *MasterData) MachineIDs() []string {
	ids := make([]string, len(md.Machines))
	for i, m := range md.Machines {
		ids[i] = m.ID
	}
	return ids
}

// TransitBetween returns the transfer delay for a machine change. Same
// machine means no transfer; overrides win over the plant-wide default.
func (md *MasterData) TransitBetween(from, to string) time.Duration {
	if from == to {
		return 0
	}
	if d, ok := md.transits[pair{from, to}]; ok {
		return d
	}
	return minutesToDuration(md.TransitMinutes)
}

func minutesToDuration(minutes float64) time.Duration {
	return time.Duration(minutes * float64(time.Minute))
}
