package push

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"icemaker/internal/logging"
	"icemaker/internal/store"
)

// VenueRecord mirrors one row of the downstream locations table.
type VenueRecord struct {
	ID         string
	Name       string
	Street     string
	City       string
	State      string
	Country    string
	Zip        string
	Phone      string
	Website    string
	Timezone   string
	DataSource string
	CreatedAt  time.Time
}

// Consumer is the downstream directory being reconciled. Implementations
// never expose a delete: downstream rows are never removed by a push.
type Consumer interface {
	// Snapshot returns the existing downstream venues keyed by identifier.
	Snapshot(ctx context.Context) (map[string]VenueRecord, error)
	// Insert adds a venue the consumer has never seen.
	Insert(ctx context.Context, record VenueRecord) error
	// UpdateAddress refreshes address fields on an existing venue. Curated
	// fields (name, phone, website, timezone) are outside its reach.
	UpdateAddress(ctx context.Context, record VenueRecord) error
}

// Op is one planned downstream write.
type Op struct {
	Record VenueRecord
	Insert bool
	// NameKept is set on updates where the downstream's curated name
	// differs from ours; the downstream name wins and is recorded as an
	// alias on our side.
	NameKept       bool
	DownstreamName string
}

// Plan is the exact set of writes a push would perform. Dry-run renders the
// plan without applying it.
type Plan struct {
	Ops          []Op
	Active       int
	SkippedNoZip int
	Existing     int
}

// Stats summarizes an applied push.
type Stats struct {
	Inserted     int
	Updated      int
	Aliased      int
	SkippedNoZip int
}

// Pusher reconciles the directory into a downstream consumer.
type Pusher struct {
	store    *store.Store
	consumer Consumer
	logger   *slog.Logger
}

// New constructs the push stage.
func New(st *store.Store, consumer Consumer, logger *slog.Logger) *Pusher {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Pusher{store: st, consumer: consumer, logger: logging.NewComponentLogger(logger, "push")}
}

// BuildPlan computes the writes a push would perform. Only active entries
// with a ZIP are pushed; everything else is reported, not written.
func (p *Pusher) BuildPlan(ctx context.Context) (*Plan, error) {
	entries, err := p.store.ListLocations(ctx, store.LocationActive)
	if err != nil {
		return nil, err
	}
	existing, err := p.consumer.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	plan := &Plan{Active: len(entries), Existing: len(existing)}
	for _, entry := range entries {
		if entry.Zip == "" {
			plan.SkippedNoZip++
			continue
		}
		record := VenueRecord{
			ID:         entry.ID,
			Name:       entry.Name,
			Street:     entry.Street,
			City:       entry.City,
			State:      entry.State,
			Country:    entry.Country,
			Zip:        entry.Zip,
			Phone:      entry.Phone,
			Website:    entry.Website,
			Timezone:   entry.Timezone,
			DataSource: entry.DataSource,
			CreatedAt:  entry.CreatedAt,
		}
		downstream, ok := existing[entry.ID]
		if !ok {
			plan.Ops = append(plan.Ops, Op{Record: record, Insert: true})
			continue
		}
		op := Op{Record: record}
		if downstream.Name != "" && entry.Name != "" &&
			!strings.EqualFold(strings.TrimSpace(downstream.Name), strings.TrimSpace(entry.Name)) {
			op.NameKept = true
			op.DownstreamName = downstream.Name
		}
		plan.Ops = append(plan.Ops, op)
	}
	return plan, nil
}

// Apply performs the planned writes. Updates touch address fields only; the
// downstream's curated name, phone, website, and timezone are never
// overwritten. When the downstream knows an entry under a different name,
// that name is recorded as an alias in our directory so the identity stays
// traceable from either side.
func (p *Pusher) Apply(ctx context.Context, plan *Plan) (Stats, error) {
	stats := Stats{SkippedNoZip: plan.SkippedNoZip}
	logger := logging.WithContext(ctx, p.logger)
	for _, op := range plan.Ops {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if op.Insert {
			if err := p.consumer.Insert(ctx, op.Record); err != nil {
				return stats, err
			}
			stats.Inserted++
			continue
		}
		if err := p.consumer.UpdateAddress(ctx, op.Record); err != nil {
			return stats, err
		}
		stats.Updated++

		if op.NameKept {
			added, err := p.recordDownstreamAlias(ctx, op.Record.ID, op.DownstreamName, op.Record.DataSource)
			if err != nil {
				return stats, err
			}
			if added {
				stats.Aliased++
			}
			logger.Info("downstream name kept",
				logging.String(logging.FieldLocationID, op.Record.ID),
				logging.String("downstream_name", op.DownstreamName),
				logging.String("directory_name", op.Record.Name))
		}
	}
	return stats, nil
}

// recordDownstreamAlias stores the downstream's curated name as an alias,
// once. The directory keeps its own name; the alias preserves the "also
// known as" relationship without clobbering either side.
func (p *Pusher) recordDownstreamAlias(ctx context.Context, locationID, name, dataSource string) (bool, error) {
	aliases, err := p.store.Aliases(ctx, locationID)
	if err != nil {
		return false, err
	}
	for _, alias := range aliases {
		if strings.EqualFold(alias.Name, name) {
			return false, nil
		}
	}
	notes := "auto: downstream curated name (source: " + dataSource + ")"
	if err := p.store.AddAlias(ctx, locationID, name, notes); err != nil {
		return false, err
	}
	return true, nil
}
