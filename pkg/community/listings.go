package community

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/mohallaa/mohallaa/internal/errors"
	"github.com/mohallaa/mohallaa/pkg/optimistic"
	"github.com/mohallaa/mohallaa/pkg/remote"
	"github.com/mohallaa/mohallaa/pkg/upload"
)

// MaxTitleLength is the longest listing title, in bytes.
const MaxTitleLength = 200

// Listing is the view model of one marketplace listing.
type Listing struct {
	ID          string
	SellerID    string
	Title       string
	Description string
	Price       float64
	Category    string
	Location    string
	Status      string
	ImageID     string
	CreatedAt   time.Time
}

// Pending reports whether l has not been stored yet.
func (l Listing) Pending() bool { return strings.HasPrefix(l.ID, tempPrefix) }

// ListingFromRow converts a listings row.
func ListingFromRow(r remote.Row) Listing {
	return Listing{
		ID:          r.ID(),
		SellerID:    r.String("seller_id"),
		Title:       r.String("title"),
		Description: r.String("description"),
		Price:       r.Float("price"),
		Category:    r.String("category"),
		Location:    r.String("location"),
		Status:      r.String("status"),
		ImageID:     r.String("image_id"),
		CreatedAt:   r.Time(remote.FieldCreatedAt),
	}
}

func listingKey(l Listing) string { return l.ID }

// ListingInput is what a seller fills in.
type ListingInput struct {
	Title       string
	Description string
	Price       float64
	Category    string
	Location    string
}

// Image is an optional picture attached to a new listing.
type Image struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Validate checks the input before anything is sent.
func (in ListingInput) Validate() error {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return apperrors.New(apperrors.CodeMissingArgument).WithDetail("title is required")
	}
	if len(title) > MaxTitleLength {
		return apperrors.New(apperrors.CodeInvalidInput).
			WithDetail(fmt.Sprintf("title is longer than %d characters", MaxTitleLength))
	}
	if in.Price < 0 {
		return apperrors.New(apperrors.CodeInvalidInput).WithDetail("price cannot be negative")
	}
	return nil
}

// Listings holds active marketplace listings.
type Listings struct {
	deps   Deps
	store  upload.Store
	limits *upload.Config
	coord  *optimistic.Coordinator[[]Listing]
	now    func() time.Time
}

// NewListings creates the hook. store receives listing images; limits
// bounds them and defaults to upload.DefaultConfig.
func NewListings(d Deps, store upload.Store, limits *upload.Config) *Listings {
	if limits == nil {
		limits = upload.DefaultConfig()
	}
	return &Listings{
		deps:   d,
		store:  store,
		limits: limits,
		coord:  optimistic.New(optimistic.NewState([]Listing{}), d.coordinatorOptions("listings")...),
		now:    time.Now,
	}
}

// State returns the listings cell.
func (l *Listings) State() *optimistic.State[[]Listing] { return l.coord.State() }

// Load reads active listings, newest first.
func (l *Listings) Load(ctx context.Context) error {
	rows, err := l.deps.Remote.Read(ctx, CollectionListings, remote.Filter{
		Eq:      map[string]any{"status": "active"},
		OrderBy: remote.FieldCreatedAt,
		Desc:    true,
	})
	if err != nil {
		return err
	}
	out := make([]Listing, len(rows))
	for i, r := range rows {
		out[i] = ListingFromRow(r)
	}
	l.coord.State().Set(out)
	return nil
}

// Create publishes a listing. The input and image are validated before any
// remote call; the listing shows at the top immediately and is replaced by
// the stored row on success.
func (l *Listings) Create(ctx context.Context, in ListingInput, img *Image) (optimistic.Outcome, error) {
	user, err := l.deps.requireUser()
	if err != nil {
		return optimistic.OutcomeDropped, err
	}
	if err := in.Validate(); err != nil {
		return optimistic.OutcomeDropped, l.deps.reject(err)
	}
	if img != nil {
		if l.store == nil {
			return optimistic.OutcomeDropped, l.deps.reject(
				apperrors.New(apperrors.CodeInvalidInput).WithDetail("image uploads are not configured"))
		}
		if err := upload.Validate(l.limits, img.Filename, img.ContentType, img.Size); err != nil {
			return optimistic.OutcomeDropped, l.deps.reject(err)
		}
	}

	tempID := tempPrefix + uuid.NewString()
	draft := Listing{
		ID:          tempID,
		SellerID:    user.ID,
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		Price:       in.Price,
		Category:    in.Category,
		Location:    in.Location,
		Status:      "active",
		CreatedAt:   l.now(),
	}

	patch := optimistic.InsertItem(listingKey, draft, optimistic.Front)
	a := patch.Action(key("listing", tempID), func(ctx context.Context) (optimistic.Confirm[[]Listing], error) {
		values := remote.Row{
			"seller_id":   user.ID,
			"title":       draft.Title,
			"description": draft.Description,
			"price":       draft.Price,
			"category":    draft.Category,
			"location":    draft.Location,
			"status":      draft.Status,
		}
		if img != nil {
			imageID, err := l.store.Save(ctx, img.Filename, img.ContentType, img.Size, img.Body)
			if err != nil {
				return nil, fmt.Errorf("upload image: %w", err)
			}
			values["image_id"] = imageID
		}
		row, err := l.deps.Remote.Write(ctx, CollectionListings, remote.Insert(values))
		if err != nil {
			return nil, err
		}
		return optimistic.ReplaceKey(listingKey, tempID, ListingFromRow(row)), nil
	})
	a.Messages = optimistic.Messages{
		Success: optimistic.Message{Title: "Listing published", Text: draft.Title},
		Error:   optimistic.Message{Title: "Could not publish listing"},
	}
	return l.coord.Run(ctx, a)
}
