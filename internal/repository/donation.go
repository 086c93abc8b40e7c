package repository

import (
	"context"
	"errors"
	"time"

	"zentrust-donations/internal/model"

	"gorm.io/gorm"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrDuplicateKey = errors.New("duplicate idempotency key")
)

type DonationRepository interface {
	// Reserve inserts a pending donation. It returns ErrDuplicateKey when the
	// idempotency key is already taken.
	Reserve(ctx context.Context, donation *model.Donation) error
	FindByID(ctx context.Context, id string) (*model.Donation, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*model.Donation, error)
	MarkCreated(ctx context.Context, donation *model.Donation) error
	Release(ctx context.Context, id string) error
	// Reclaim takes over a pending reservation last touched before staleBefore.
	// At most one caller wins; it reports false when the row is fresh or settled.
	Reclaim(ctx context.Context, id string, staleBefore time.Time) (bool, error)
	UpdateStatusByPaymentIntent(ctx context.Context, paymentIntentID string, status model.DonationStatus) (bool, error)
	UpdateStatusBySubscription(ctx context.Context, subscriptionID string, status model.DonationStatus) (bool, error)
	UpdateStatusByInvoice(ctx context.Context, invoiceID string, status model.DonationStatus) (bool, error)
}

type donationRepoImpl struct {
	db *gorm.DB
}

func NewDonationRepository(db *gorm.DB) DonationRepository {
	return &donationRepoImpl{
		db: db,
	}
}

func (r *donationRepoImpl) Reserve(ctx context.Context, donation *model.Donation) error {
	donation.Status = model.DonationStatusPending
	err := r.db.WithContext(ctx).Create(donation).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateKey
	}
	return err
}

func (r *donationRepoImpl) FindByID(ctx context.Context, id string) (*model.Donation, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *donationRepoImpl) FindByIdempotencyKey(ctx context.Context, key string) (*model.Donation, error) {
	return r.first(ctx, "idempotency_key = ?", key)
}

func (r *donationRepoImpl) first(ctx context.Context, query string, arg any) (*model.Donation, error) {
	var donation model.Donation
	err := r.db.WithContext(ctx).
		Where(query, arg).
		First(&donation).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &donation, nil
}

func (r *donationRepoImpl) MarkCreated(ctx context.Context, donation *model.Donation) error {
	result := r.db.WithContext(ctx).Model(&model.Donation{}).
		Where("id = ? AND status = ?", donation.ID, model.DonationStatusPending).
		Updates(map[string]interface{}{
			"status":            model.DonationStatusCreated,
			"payment_intent_id": donation.PaymentIntentID,
			"customer_id":       donation.CustomerID,
			"price_id":          donation.PriceID,
			"subscription_id":   donation.SubscriptionID,
			"invoice_id":        donation.InvoiceID,
			"client_secret":     donation.ClientSecret,
			"updated_at":        time.Now(),
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}

	donation.Status = model.DonationStatusCreated
	return nil
}

// Release deletes a reservation that never produced a session so its
// idempotency key can be reused.
func (r *donationRepoImpl) Release(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Where("id = ? AND status = ?", id, model.DonationStatusPending).
		Delete(&model.Donation{}).Error
}

func (r *donationRepoImpl) Reclaim(ctx context.Context, id string, staleBefore time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&model.Donation{}).
		Where("id = ? AND status = ? AND updated_at < ?", id, model.DonationStatusPending, staleBefore).
		Update("updated_at", time.Now())

	return result.RowsAffected == 1, result.Error
}

// Stripe does not order webhook deliveries, so a settled state is never
// downgraded by a late failure for the same object. Each update reports
// matched when a donation carries the id, whether or not its status changed.
func (r *donationRepoImpl) UpdateStatusByPaymentIntent(ctx context.Context, paymentIntentID string, status model.DonationStatus) (bool, error) {
	return r.updateStatus(ctx, "payment_intent_id", paymentIntentID, status, model.DonationStatusSucceeded)
}

// UpdateStatusBySubscription applies to renewal invoices, which are not
// stored, so consecutive renewals may legitimately move between ACTIVE and
// PAYMENT_FAILED.
func (r *donationRepoImpl) UpdateStatusBySubscription(ctx context.Context, subscriptionID string, status model.DonationStatus) (bool, error) {
	return r.updateStatus(ctx, "subscription_id", subscriptionID, status)
}

func (r *donationRepoImpl) UpdateStatusByInvoice(ctx context.Context, invoiceID string, status model.DonationStatus) (bool, error) {
	return r.updateStatus(ctx, "invoice_id", invoiceID, status, model.DonationStatusActive)
}

func (r *donationRepoImpl) updateStatus(ctx context.Context, column, id string, status model.DonationStatus, final ...model.DonationStatus) (bool, error) {
	if id == "" {
		return false, nil
	}

	query := r.db.WithContext(ctx).Model(&model.Donation{}).
		Where(column+" = ?", id)
	if len(final) > 0 {
		query = query.Where("status NOT IN ?", final)
	}

	result := query.Updates(map[string]interface{}{
		"status":     status,
		"updated_at": time.Now(),
	})
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected > 0 {
		return true, nil
	}

	var count int64
	err := r.db.WithContext(ctx).Model(&model.Donation{}).
		Where(column+" = ?", id).
		Count(&count).Error

	return count > 0, err
}
