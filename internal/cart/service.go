package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/budgetdesk-backend/pkg/db"
	"github.com/angelmondragon/budgetdesk-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/budgetdesk-backend/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	activeCartConstraint = "ux_carts_user_active"
	maxUpsertAttempts    = 2
)

// errCartClosed rolls back an item write whose cart was submitted mid-transaction.
var errCartClosed = errors.New("cart left active status")

// Service exposes the active cart of a user.
type Service interface {
	GetOrCreateActive(ctx context.Context, userID uuid.UUID) (*CartDTO, error)
	SetItemQuantity(ctx context.Context, userID, productID uuid.UUID, quantity int) (*CartDTO, error)
	RemoveItem(ctx context.Context, userID, productID uuid.UUID) (*CartDTO, error)
}

type service struct {
	repo     CartRepository
	tx       txRunner
	products productLoader
	now      func() time.Time
}

// NewService builds a cart service backed by the provided stack.
func NewService(repo CartRepository, tx txRunner, products productLoader) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if products == nil {
		return nil, fmt.Errorf("product loader required")
	}
	return &service{
		repo:     repo,
		tx:       tx,
		products: products,
		now:      time.Now,
	}, nil
}

// GetOrCreateActive returns the user's active cart, creating an empty one when absent.
func (s *service) GetOrCreateActive(ctx context.Context, userID uuid.UUID) (*CartDTO, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}

	cart, err := findOrCreateActive(ctx, s.repo, userID)
	if db.IsUniqueViolation(err, activeCartConstraint) {
		// another request created the cart between our read and insert
		cart, err = s.repo.FindActiveByUser(ctx, userID)
	}
	if err != nil {
		return nil, repoError(err, "load active cart")
	}
	return FromModel(cart), nil
}

// SetItemQuantity sets the quantity of productID in the active cart. Zero removes
// the line. New lines snapshot the catalog price; existing lines keep theirs.
func (s *service) SetItemQuantity(ctx context.Context, userID, productID uuid.UUID, quantity int) (*CartDTO, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if quantity < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be zero or greater").
			WithDetails(map[string]any{"quantity": quantity})
	}

	product, err := s.loadOrderableProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	for attempt := 1; ; attempt++ {
		err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			return applyQuantity(ctx, s.repo.WithTx(tx), userID, product, quantity, s.now())
		})
		if err == nil || attempt >= maxUpsertAttempts || !db.IsUniqueViolation(err, "") {
			break
		}
		// a concurrent request inserted the cart or the line first; the retry sees it
	}
	if errors.Is(err, errCartClosed) {
		return nil, cartClosed()
	}
	if err != nil {
		return nil, repoError(err, "update cart item")
	}

	return s.reload(ctx, userID)
}

// RemoveItem deletes the line for productID from the active cart.
func (s *service) RemoveItem(ctx context.Context, userID, productID uuid.UUID) (*CartDTO, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}

	var deleted int64
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		cart, err := repo.LockActive(ctx, userID)
		if err != nil {
			return err
		}
		if deleted, err = repo.DeleteItem(ctx, cart.ID, productID); err != nil || deleted == 0 {
			return err
		}
		return touchActive(ctx, repo, cart.ID, s.now())
	})
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, cartNotFound()
	case errors.Is(err, errCartClosed):
		return nil, cartClosed()
	case err != nil:
		return nil, repoError(err, "remove cart item")
	case deleted == 0:
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "item not found in cart")
	}

	return s.reload(ctx, userID)
}

func (s *service) loadOrderableProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, productUnavailable(productID, "not_found")
		}
		return nil, repoError(err, "load product")
	}
	if !product.IsActive {
		return nil, productUnavailable(productID, "inactive")
	}
	if !product.Status.Orderable() {
		return nil, productUnavailable(productID, string(product.Status))
	}
	return product, nil
}

func (s *service) reload(ctx context.Context, userID uuid.UUID) (*CartDTO, error) {
	cart, err := s.repo.FindActiveByUser(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, cartNotFound()
	}
	if err != nil {
		return nil, repoError(err, "reload active cart")
	}
	return FromModel(cart), nil
}

// applyQuantity writes the line under the cart row lock and finishes with a
// guarded touch, so a submit that slipped in between rolls the write back.
func applyQuantity(ctx context.Context, repo CartRepository, userID uuid.UUID, product *models.Product, quantity int, now time.Time) error {
	cart, err := repo.LockActive(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		cart, err = repo.CreateActive(ctx, userID)
	}
	if err != nil {
		return err
	}

	item, err := repo.FindItem(ctx, cart.ID, product.ID)
	switch {
	case err == nil:
		if quantity == 0 {
			_, err = repo.DeleteItem(ctx, cart.ID, product.ID)
		} else if item.Quantity != quantity {
			err = repo.UpdateItemQuantity(ctx, item.ID, quantity)
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		if quantity == 0 {
			return nil
		}
		err = repo.CreateItem(ctx, &models.CartItem{
			CartID:    cart.ID,
			ProductID: product.ID,
			Quantity:  quantity,
			Price:     product.Price.Round(2),
		})
	}
	if err != nil {
		return err
	}
	return touchActive(ctx, repo, cart.ID, now)
}

func touchActive(ctx context.Context, repo CartRepository, cartID uuid.UUID, now time.Time) error {
	rows, err := repo.TouchActive(ctx, cartID, now.UTC())
	if err != nil {
		return err
	}
	if rows == 0 {
		return errCartClosed
	}
	return nil
}

func findOrCreateActive(ctx context.Context, repo CartRepository, userID uuid.UUID) (*models.Cart, error) {
	cart, err := repo.FindActiveByUser(ctx, userID)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	return repo.CreateActive(ctx, userID)
}

func cartNotFound() error {
	return pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
}

func cartClosed() error {
	return pkgerrors.New(pkgerrors.CodeConflict, "cart was submitted, reload it and try again")
}

func productUnavailable(productID uuid.UUID, reason string) error {
	return pkgerrors.New(pkgerrors.CodeUnavailable, "product unavailable").
		WithDetails(map[string]any{"product_id": productID.String(), "reason": reason})
}

func repoError(err error, action string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
}
