package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lang_gateway/internal/models"
	"lang_gateway/internal/utils"
)

// DefaultTrialCharacterLimit is the lifetime cap given to trial keys when none is requested
const DefaultTrialCharacterLimit int64 = 10_000

// CustomerData is the subscription state received from the billing provider for one customer
type CustomerData struct {
	CustomerCode       string
	Email              string
	PlanCode           string
	SubscriptionStatus string
	ThousandCharQuota  float64
	ThousandCharUsed   float64
	OverageAllowed     bool
}

// Registry manages the lifecycle of API keys on top of a KeyStore
type Registry struct {
	store             KeyStore
	logger            *utils.Logger
	trialDefaultLimit int64

	now         func() time.Time
	generateKey func() (string, error)
}

// NewRegistry creates a registry. A non-positive trialDefaultLimit selects
// DefaultTrialCharacterLimit.
func NewRegistry(store KeyStore, trialDefaultLimit int64, logger *utils.Logger) *Registry {
	if trialDefaultLimit <= 0 {
		trialDefaultLimit = DefaultTrialCharacterLimit
	}
	if logger == nil {
		logger = utils.NewLogger("registry")
	}
	return &Registry{
		store:             store,
		logger:            logger,
		trialDefaultLimit: trialDefaultLimit,
		now:               time.Now,
		generateKey:       generateAPIKey,
	}
}

// Validate checks that a key exists and has not expired
func (r *Registry) Validate(ctx context.Context, key string) error {
	rec, err := r.store.Get(ctx, key)
	if err != nil {
		return err
	}
	if rec.IsExpiredAt(r.now()) {
		return ErrKeyExpired
	}
	return nil
}

// Lookup returns the record of a key without checking expiration
func (r *Registry) Lookup(ctx context.Context, key string) (*models.APIKey, error) {
	return r.store.Get(ctx, key)
}

// ListByType returns every key of the given type
func (r *Registry) ListByType(ctx context.Context, keyType models.KeyType) ([]*models.APIKey, error) {
	return r.store.ListByType(ctx, keyType)
}

// ProvisionTrial returns the trial key of an email, creating it on first use.
// A non-positive limit selects the registry default.
func (r *Registry) ProvisionTrial(ctx context.Context, email string, limit int64) (string, error) {
	if email == "" {
		return "", errors.New("trial key requires an email")
	}
	if limit <= 0 {
		limit = r.trialDefaultLimit
	}

	return r.provision(ctx, models.KeyTypeTrial, email, func(rec *models.APIKey) {
		rec.OwnerEmail = email
		rec.CharacterLimit = models.Int64Ptr(limit)
	})
}

// ProvisionPatreon returns the key of a patreon member, creating it on first use.
func (r *Registry) ProvisionPatreon(ctx context.Context, userID, email string) (string, error) {
	if userID == "" {
		return "", errors.New("patreon key requires a user id")
	}

	return r.provision(ctx, models.KeyTypePatreon, userID, func(rec *models.APIKey) {
		rec.OwnerEmail = email
		rec.PatreonUserID = models.StringPtr(userID)
	})
}

// ProvisionGetCheddar upserts the key of a metered-billing customer. Repeat calls refresh
// the plan fields and keep the same key.
func (r *Registry) ProvisionGetCheddar(ctx context.Context, data CustomerData) (string, error) {
	if data.CustomerCode == "" {
		return "", errors.New("getcheddar key requires a customer code")
	}

	apply := func(rec *models.APIKey) {
		rec.OwnerEmail = data.Email
		rec.CustomerCode = models.StringPtr(data.CustomerCode)
		rec.PlanCode = models.StringPtr(data.PlanCode)
		rec.SubscriptionStatus = models.StringPtr(data.SubscriptionStatus)
		rec.ThousandCharQuota = models.Float64Ptr(data.ThousandCharQuota)
		rec.ThousandCharUsed = models.Float64Ptr(data.ThousandCharUsed)
		rec.ThousandCharOverageAllowed = data.OverageAllowed
	}

	existing, err := r.store.FindByOwner(ctx, models.KeyTypeGetCheddar, data.CustomerCode)
	switch {
	case err == nil:
		apply(existing)
		if err := r.store.Update(ctx, existing); err != nil {
			return "", fmt.Errorf("failed to update getcheddar key: %w", err)
		}
		r.logger.Info("Updated getcheddar key", "customer_code", data.CustomerCode, "plan", data.PlanCode)
		return existing.Key, nil
	case errors.Is(err, ErrKeyNotFound):
		return r.provision(ctx, models.KeyTypeGetCheddar, data.CustomerCode, apply)
	default:
		return "", err
	}
}

// IncreaseTrialLimit raises the lifetime cap of a trial key. A limit at or below the
// current cap is a no-op; an uncapped key stays uncapped.
func (r *Registry) IncreaseTrialLimit(ctx context.Context, email string, newLimit int64) error {
	rec, err := r.store.FindByOwner(ctx, models.KeyTypeTrial, email)
	if err != nil {
		return err
	}

	if rec.CharacterLimit == nil || newLimit <= *rec.CharacterLimit {
		r.logger.Debug("Trial limit not raised", "email", email, "requested", newLimit)
		return nil
	}

	old := *rec.CharacterLimit
	rec.CharacterLimit = models.Int64Ptr(newLimit)
	if err := r.store.Update(ctx, rec); err != nil {
		return fmt.Errorf("failed to raise trial limit: %w", err)
	}
	r.logger.Info("Raised trial limit", "email", email, "from", old, "to", newLimit)
	return nil
}

// SetThousandCharUsed stores the authoritative used-to-date figure of a getcheddar key
func (r *Registry) SetThousandCharUsed(ctx context.Context, key string, used float64) error {
	rec, err := r.store.Get(ctx, key)
	if err != nil {
		return err
	}
	rec.ThousandCharUsed = models.Float64Ptr(used)
	return r.store.Update(ctx, rec)
}

// Revoke deletes a key
func (r *Registry) Revoke(ctx context.Context, key string) error {
	if err := r.store.Delete(ctx, key); err != nil {
		return err
	}
	r.logger.Info("Revoked API key", "key_prefix", keyPrefix(key))
	return nil
}

// provision returns the existing key of (keyType, ownerRef) or creates one with fill applied.
// A concurrent provision of the same owner surfaces as ErrKeyExists and resolves to the
// winner's key.
func (r *Registry) provision(ctx context.Context, keyType models.KeyType, ownerRef string, fill func(*models.APIKey)) (string, error) {
	existing, err := r.store.FindByOwner(ctx, keyType, ownerRef)
	if err == nil {
		return existing.Key, nil
	}
	if !errors.Is(err, ErrKeyNotFound) {
		return "", err
	}

	key, err := r.generateKey()
	if err != nil {
		return "", fmt.Errorf("failed to generate API key: %w", err)
	}

	rec := &models.APIKey{
		Key:      key,
		KeyType:  keyType,
		OwnerRef: ownerRef,
	}
	fill(rec)

	if err := r.store.Create(ctx, rec); err != nil {
		if errors.Is(err, ErrKeyExists) {
			winner, ferr := r.store.FindByOwner(ctx, keyType, ownerRef)
			if ferr != nil {
				return "", ferr
			}
			return winner.Key, nil
		}
		return "", fmt.Errorf("failed to create %s key: %w", keyType, err)
	}

	r.logger.Info("Provisioned API key", "key_type", keyType, "owner", ownerRef, "key_prefix", keyPrefix(key))
	return key, nil
}

func keyPrefix(key string) string {
	if len(key) <= 8 {
		return key
	}
	return key[:8]
}
