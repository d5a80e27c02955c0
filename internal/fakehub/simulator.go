package fakehub

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/grovetools/pharmastock/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Generator is a background worker that changes the store, which in turn
// pushes hub events.
type Generator interface {
	// Name returns the generator's name for logging.
	Name() string

	// Run blocks until ctx is canceled.
	Run(ctx context.Context, st *Store) error
}

// Simulator runs generators against a store so a dev server looks alive.
type Simulator struct {
	store      *Store
	generators []Generator
	logger     *logrus.Entry
}

// NewSimulator creates a Simulator with no generators.
func NewSimulator(st *Store, logger *logrus.Entry) *Simulator {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Simulator{store: st, logger: logger}
}

// NewDefaultSimulator registers the movement, notification and expiry generators.
func NewDefaultSimulator(st *Store, interval time.Duration, logger *logrus.Entry) *Simulator {
	sim := NewSimulator(st, logger)
	seed := time.Now().UnixNano()
	sim.Register(NewMovementGenerator(interval, seed))
	sim.Register(NewNotificationGenerator(interval*4, seed+1))
	sim.Register(NewExpiryGenerator(interval*6, seed+2))
	return sim
}

// Register adds a generator.
func (s *Simulator) Register(g Generator) {
	s.generators = append(s.generators, g)
}

// Start runs all generators and blocks until ctx is canceled.
func (s *Simulator) Start(ctx context.Context) {
	var wg sync.WaitGroup
	for _, g := range s.generators {
		wg.Add(1)
		go func(gen Generator) {
			defer wg.Done()
			s.logger.WithField("generator", gen.Name()).Info("Starting generator")
			if err := gen.Run(ctx, s.store); err != nil {
				s.logger.WithField("generator", gen.Name()).WithError(err).Error("Generator failed")
			}
		}(g)
	}
	wg.Wait()
}

// tick calls fn every interval until ctx is canceled.
func tick(ctx context.Context, interval time.Duration, fn func()) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			fn()
		}
	}
}

type medicine struct {
	name  string
	batch string
	price decimal.Decimal
}

var catalogue = []medicine{
	{"Paracetamol 500mg", "PCM-7781", decimal.RequireFromString("0.12")},
	{"Amoxicillin 500mg", "AMX-0412", decimal.RequireFromString("0.45")},
	{"Ibuprofen 400mg", "IBU-3320", decimal.RequireFromString("0.18")},
	{"Insulin Glargine", "INS-2291", decimal.RequireFromString("38.90")},
	{"Salbutamol Inhaler", "SAL-1187", decimal.RequireFromString("6.75")},
	{"Omeprazole 20mg", "OMP-5530", decimal.RequireFromString("0.30")},
}

var movementTypes = []string{"IN_Purchase", "IN_Return", "OUT_Dispense", "OUT_Dispense", "OUT_Dispense", "OUT_Adjustment"}

// MovementGenerator records a random stock movement every interval.
type MovementGenerator struct {
	interval time.Duration
	rng      *rand.Rand
}

// NewMovementGenerator creates a MovementGenerator. If interval is 0 it
// defaults to 5 seconds.
func NewMovementGenerator(interval time.Duration, seed int64) *MovementGenerator {
	if interval == 0 {
		interval = 5 * time.Second
	}
	return &MovementGenerator{interval: interval, rng: rand.New(rand.NewSource(seed))}
}

func (g *MovementGenerator) Name() string { return "movements" }

func (g *MovementGenerator) Run(ctx context.Context, st *Store) error {
	return tick(ctx, g.interval, func() {
		m := catalogue[g.rng.Intn(len(catalogue))]
		movementType := movementTypes[g.rng.Intn(len(movementTypes))]
		quantity := 1 + g.rng.Intn(40)
		if movementType == "IN_Purchase" {
			quantity *= 10
		}

		st.AddMovement(models.RecentMovement{
			MedicineName: m.name,
			BatchNumber:  m.batch,
			MovementType: movementType,
			Quantity:     quantity,
			PerformedBy:  "pharmacist",
		}, m.price.Mul(decimal.NewFromInt(int64(quantity))))
	})
}

// NotificationGenerator adds a user notification every interval.
type NotificationGenerator struct {
	interval time.Duration
	rng      *rand.Rand
}

// NewNotificationGenerator creates a NotificationGenerator. If interval is 0
// it defaults to 20 seconds.
func NewNotificationGenerator(interval time.Duration, seed int64) *NotificationGenerator {
	if interval == 0 {
		interval = 20 * time.Second
	}
	return &NotificationGenerator{interval: interval, rng: rand.New(rand.NewSource(seed))}
}

func (g *NotificationGenerator) Name() string { return "notifications" }

func (g *NotificationGenerator) Run(ctx context.Context, st *Store) error {
	user := int64(1)
	return tick(ctx, g.interval, func() {
		m := catalogue[g.rng.Intn(len(catalogue))]
		if g.rng.Intn(2) == 0 {
			st.AddNotification(models.Notification{
				UserID:   &user,
				Title:    "Low stock",
				Message:  fmt.Sprintf("%s is running low", m.name),
				Type:     models.NotificationStockAlert,
				Priority: 2,
			})
			return
		}
		st.Notify(models.Notice{
			Message: fmt.Sprintf("Stock count for %s completed", m.name),
			Type:    "info",
		})
	})
}

// ExpiryGenerator moves batches closer to expiry and republishes the alerts.
type ExpiryGenerator struct {
	interval time.Duration
	rng      *rand.Rand
}

// NewExpiryGenerator creates an ExpiryGenerator. If interval is 0 it defaults
// to 30 seconds.
func NewExpiryGenerator(interval time.Duration, seed int64) *ExpiryGenerator {
	if interval == 0 {
		interval = 30 * time.Second
	}
	return &ExpiryGenerator{interval: interval, rng: rand.New(rand.NewSource(seed))}
}

func (g *ExpiryGenerator) Name() string { return "expiry" }

func (g *ExpiryGenerator) Run(ctx context.Context, st *Store) error {
	return tick(ctx, g.interval, func() {
		m := catalogue[g.rng.Intn(len(catalogue))]
		days := 1 + g.rng.Intn(30)
		item := models.AlertItem{
			MedicineID:      int64(1 + g.rng.Intn(50)),
			MedicineName:    m.name,
			BatchNumber:     m.batch,
			ExpiryDate:      models.NewTimestamp(time.Now().AddDate(0, 0, days)),
			DaysRemaining:   days,
			CurrentQuantity: 1 + g.rng.Intn(200),
		}

		alerts := st.Alerts()
		next := models.DashboardAlerts{
			Critical: append([]models.AlertItem{}, alerts.Critical...),
			Warning:  append([]models.AlertItem{}, alerts.Warning...),
		}
		if days <= 7 {
			next.Critical = append(next.Critical, item)
		} else {
			next.Warning = append(next.Warning, item)
		}
		// Keep the lists short enough to fit on screen.
		if len(next.Critical) > 5 {
			next.Critical = next.Critical[len(next.Critical)-5:]
		}
		if len(next.Warning) > 8 {
			next.Warning = next.Warning[len(next.Warning)-8:]
		}
		st.SetAlerts(next)
	})
}
