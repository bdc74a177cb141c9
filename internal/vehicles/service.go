package vehicles

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/dealership-platform/internal/notify"
	"github.com/wolfman30/dealership-platform/pkg/logging"
)

var vehiclesTracer = otel.Tracer("dealership.internal.vehicles")

const (
	minYear         = 1900
	maxDescription  = 5000
	maxImages       = 20
	defaultPageSize = 12
	maxPageSize     = 100
)

// Catalog sort orders.
const (
	SortNewest    = "newest"
	SortPriceAsc  = "price_asc"
	SortPriceDesc = "price_desc"
	SortYearDesc  = "year_desc"
)

// ListFilter narrows the catalog. Zero values disable a criterion.
type ListFilter struct {
	Make      string
	MinPrice  int64
	MaxPrice  int64
	MinYear   int
	MaxYear   int
	Available *bool
	Query     string
	Sort      string
	Page      int
	PageSize  int
}

// ListResult is one page of the catalog.
type ListResult struct {
	Vehicles   []*Vehicle `json:"vehicles"`
	Total      int        `json:"total"`
	Page       int        `json:"page"`
	Limit      int        `json:"limit"`
	TotalPages int        `json:"totalPages"`
}

// Service manages the vehicle catalog.
type Service struct {
	repo   Repository
	logger *logging.Logger
	now    func() time.Time
}

// NewService constructs a catalog service.
func NewService(repo Repository, logger *logging.Logger) *Service {
	if repo == nil {
		panic("vehicles: repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// WithClock overrides time.Now, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// Create adds a vehicle. New listings are available unless the input says otherwise.
func (s *Service) Create(ctx context.Context, in Input) (*Vehicle, error) {
	ctx, span := vehiclesTracer.Start(ctx, "vehicles.create")
	defer span.End()

	if err := s.validate(&in); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	v := &Vehicle{ID: uuid.New().String(), CreatedAt: now}
	apply(v, in)
	available := true
	if in.IsAvailable != nil {
		available = *in.IsAvailable
	}
	v.setAvailable(available, now)
	v.UpdatedAt = now

	span.SetAttributes(attribute.String("dealership.vehicle_id", v.ID))
	if err := s.repo.Create(ctx, v); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("vehicles: create: %w", err)
	}
	s.logger.Info("vehicle created", "vehicle_id", v.ID, "title", v.Title())
	return v, nil
}

// Update replaces the editable fields of a vehicle. Omitting isAvailable keeps
// the current availability.
func (s *Service) Update(ctx context.Context, id string, in Input) (*Vehicle, error) {
	ctx, span := vehiclesTracer.Start(ctx, "vehicles.update")
	defer span.End()
	span.SetAttributes(attribute.String("dealership.vehicle_id", id))

	if err := s.validate(&in); err != nil {
		return nil, err
	}
	v, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	apply(v, in)
	if in.IsAvailable != nil {
		v.setAvailable(*in.IsAvailable, now)
	}
	v.UpdatedAt = now
	if err := s.repo.Update(ctx, v); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return v, nil
}

// Delete removes a vehicle from the catalog.
func (s *Service) Delete(ctx context.Context, id string) error {
	ctx, span := vehiclesTracer.Start(ctx, "vehicles.delete")
	defer span.End()
	span.SetAttributes(attribute.String("dealership.vehicle_id", id))

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("vehicle deleted", "vehicle_id", id)
	return nil
}

// Get returns one vehicle.
func (s *Service) Get(ctx context.Context, id string) (*Vehicle, error) {
	if strings.TrimSpace(id) == "" {
		return nil, &NotFoundError{ID: id}
	}
	return s.repo.Get(ctx, id)
}

// Summary resolves the short vehicle description shown in appointment emails.
func (s *Service) Summary(ctx context.Context, id string) (*notify.VehicleSummary, error) {
	v, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	summary := &notify.VehicleSummary{
		ID:    v.ID,
		Make:  v.Make,
		Model: v.Model,
		Year:  v.Year,
		Price: v.Price,
	}
	if len(v.Images) > 0 {
		summary.ImageURL = v.Images[0]
	}
	return summary, nil
}

// List filters, sorts and pages the catalog.
func (s *Service) List(ctx context.Context, filter ListFilter) (*ListResult, error) {
	ctx, span := vehiclesTracer.Start(ctx, "vehicles.list")
	defer span.End()

	if filter.Sort == "" {
		filter.Sort = SortNewest
	}
	if !validSort(filter.Sort) {
		return nil, invalid("sort", "unknown sort order")
	}
	if filter.MinPrice > 0 && filter.MaxPrice > 0 && filter.MinPrice > filter.MaxPrice {
		return nil, invalid("minPrice", "minPrice must not exceed maxPrice")
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = defaultPageSize
	}
	if filter.PageSize > maxPageSize {
		filter.PageSize = maxPageSize
	}

	all, err := s.repo.All(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("vehicles: list: %w", err)
	}
	matched := make([]*Vehicle, 0, len(all))
	for _, v := range all {
		if filter.matches(v) {
			matched = append(matched, v)
		}
	}
	sortVehicles(matched, filter.Sort)

	total := len(matched)
	start := (filter.Page - 1) * filter.PageSize
	if start > total {
		start = total
	}
	end := start + filter.PageSize
	if end > total {
		end = total
	}
	return &ListResult{
		Vehicles:   matched[start:end],
		Total:      total,
		Page:       filter.Page,
		Limit:      filter.PageSize,
		TotalPages: (total + filter.PageSize - 1) / filter.PageSize,
	}, nil
}

func (f ListFilter) matches(v *Vehicle) bool {
	if f.Make != "" && !strings.EqualFold(strings.TrimSpace(f.Make), v.Make) {
		return false
	}
	if f.MinPrice > 0 && v.Price < f.MinPrice {
		return false
	}
	if f.MaxPrice > 0 && v.Price > f.MaxPrice {
		return false
	}
	if f.MinYear > 0 && v.Year < f.MinYear {
		return false
	}
	if f.MaxYear > 0 && v.Year > f.MaxYear {
		return false
	}
	if f.Available != nil && v.IsAvailable != *f.Available {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Query)); q != "" {
		haystack := strings.ToLower(v.Make + " " + v.Model + " " + v.Description)
		if !strings.Contains(haystack, q) {
			return false
		}
	}
	return true
}

func validSort(s string) bool {
	switch s {
	case SortNewest, SortPriceAsc, SortPriceDesc, SortYearDesc:
		return true
	}
	return false
}

func sortVehicles(list []*Vehicle, order string) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		switch order {
		case SortPriceAsc:
			if a.Price != b.Price {
				return a.Price < b.Price
			}
		case SortPriceDesc:
			if a.Price != b.Price {
				return a.Price > b.Price
			}
		case SortYearDesc:
			if a.Year != b.Year {
				return a.Year > b.Year
			}
		}
		return newer(a, b)
	})
}

func (s *Service) validate(in *Input) error {
	in.Make = strings.TrimSpace(in.Make)
	in.Model = strings.TrimSpace(in.Model)
	in.FuelType = strings.TrimSpace(in.FuelType)
	in.Transmission = strings.TrimSpace(in.Transmission)
	in.Color = strings.TrimSpace(in.Color)
	in.Description = strings.TrimSpace(in.Description)

	if in.Make == "" {
		return invalid("make", "make is required")
	}
	if in.Model == "" {
		return invalid("model", "model is required")
	}
	if in.Year < minYear || in.Year > s.now().Year()+1 {
		return invalid("year", fmt.Sprintf("year must be between %d and %d", minYear, s.now().Year()+1))
	}
	if in.Price < 0 {
		return invalid("price", "price must not be negative")
	}
	if in.Mileage < 0 {
		return invalid("mileage", "mileage must not be negative")
	}
	if len([]rune(in.Description)) > maxDescription {
		return invalid("description", "description is too long")
	}
	if len(in.Images) > maxImages {
		return invalid("images", fmt.Sprintf("at most %d images", maxImages))
	}
	images := make([]string, 0, len(in.Images))
	for _, raw := range in.Images {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		u, err := url.ParseRequestURI(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return invalid("images", "images must be absolute http(s) URLs")
		}
		images = append(images, raw)
	}
	in.Images = images
	return nil
}

func apply(v *Vehicle, in Input) {
	v.Make = in.Make
	v.Model = in.Model
	v.Year = in.Year
	v.Price = in.Price
	v.Mileage = in.Mileage
	v.FuelType = in.FuelType
	v.Transmission = in.Transmission
	v.Color = in.Color
	v.Description = in.Description
	v.Images = append([]string{}, in.Images...)
}
