package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/AnshRaj112/driveshare-backend/internal/models"
	"github.com/AnshRaj112/driveshare-backend/internal/repositories"
	"github.com/AnshRaj112/driveshare-backend/pkg/utils"
)

// UnknownDisplayName is shown for uids without a profile.
const UnknownDisplayName = "Unknown user"

// ProfileInput is the editable part of a profile. Empty Username keeps the
// current one.
type ProfileInput struct {
	DisplayName        string `json:"display_name"`
	Username           string `json:"username"`
	PhotoURL           string `json:"photo_url"`
	Bio                string `json:"bio"`
	Location           string `json:"location"`
	Phone              string `json:"phone"`
	CompleteOnboarding bool   `json:"complete_onboarding"`
}

// ProfileService owns profiles, the username index and display lookups.
type ProfileService struct {
	repo   repositories.Profiles
	cache  *Cache
	phones *utils.FieldCipher
	log    zerolog.Logger
	now    func() time.Time
}

func NewProfileService(repo repositories.Profiles, cache *Cache, log zerolog.Logger) *ProfileService {
	return &ProfileService{
		repo:  repo,
		cache: cache,
		log:   log.With().Str("component", "profiles").Logger(),
		now:   time.Now,
	}
}

// EncryptPhones stores phone numbers sealed with c from now on. Numbers
// saved earlier in plaintext still read back.
func (s *ProfileService) EncryptPhones(c *utils.FieldCipher) {
	s.phones = c
}

func (s *ProfileService) sealPhone(phone string) (string, error) {
	if s.phones == nil {
		return phone, nil
	}
	return s.phones.Encrypt(phone)
}

func (s *ProfileService) openPhone(p *models.UserProfile) {
	if s.phones == nil || p.Phone == "" {
		return
	}
	phone, err := s.phones.Decrypt(p.Phone)
	if err != nil {
		s.log.Warn().Err(err).Str("uid", p.ID).Msg("phone decryption failed")
		phone = ""
	}
	p.Phone = phone
}

func profileCacheKey(uid string) string {
	return CacheKey("profile", uid)
}

// Lookup resolves a uid to its display identity. A missing profile yields a
// placeholder rather than an error.
func (s *ProfileService) Lookup(ctx context.Context, uid string) (models.PublicProfile, error) {
	var cached models.PublicProfile
	if ok, err := s.cache.Get(ctx, profileCacheKey(uid), &cached); err != nil {
		s.log.Warn().Err(err).Str("uid", uid).Msg("profile cache read failed")
	} else if ok {
		return cached, nil
	}

	p, err := s.repo.Get(ctx, uid)
	if errors.Is(err, repositories.ErrNotFound) {
		return models.PublicProfile{UID: uid, DisplayName: UnknownDisplayName}, nil
	}
	if err != nil {
		return models.PublicProfile{UID: uid, DisplayName: UnknownDisplayName}, err
	}

	pub := p.Public()
	if err := s.cache.Set(ctx, profileCacheKey(uid), pub, ProfileCacheTTL); err != nil {
		s.log.Warn().Err(err).Str("uid", uid).Msg("profile cache write failed")
	}
	return pub, nil
}

// LookupMany resolves several uids, each at most once. Failed lookups keep
// their placeholder.
func (s *ProfileService) LookupMany(ctx context.Context, uids []string) map[string]models.PublicProfile {
	out := make(map[string]models.PublicProfile, len(uids))
	for _, uid := range uids {
		if _, ok := out[uid]; ok {
			continue
		}
		p, err := s.Lookup(ctx, uid)
		if err != nil {
			s.log.Warn().Err(err).Str("uid", uid).Msg("profile lookup failed")
		}
		out[uid] = p
	}
	return out
}

// GetProfile returns the full profile.
func (s *ProfileService) GetProfile(ctx context.Context, uid string) (*models.UserProfile, error) {
	p, err := s.repo.Get(ctx, uid)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	s.openPhone(p)
	return p, nil
}

// ResolveUsername maps a username (any case) to a uid.
func (s *ProfileService) ResolveUsername(ctx context.Context, username string) (string, error) {
	lower := utils.NormalizeUsername(username)
	if lower == "" {
		return "", fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	uid, err := s.repo.ResolveUsername(ctx, lower)
	if errors.Is(err, repositories.ErrNotFound) {
		return "", ErrNotFound
	}
	return uid, err
}

// GetByUsername returns the profile owning username.
func (s *ProfileService) GetByUsername(ctx context.Context, username string) (*models.UserProfile, error) {
	uid, err := s.ResolveUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	return s.GetProfile(ctx, uid)
}

// CheckUsernameAvailable reports whether caller may take username.
func (s *ProfileService) CheckUsernameAvailable(ctx context.Context, username, caller string) (bool, error) {
	if err := utils.ValidateUsername(username); err != nil {
		return false, fmt.Errorf("%w: %s", ErrInvalidInput, err.Error())
	}
	uid, err := s.repo.ResolveUsername(ctx, utils.NormalizeUsername(username))
	if errors.Is(err, repositories.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return uid == caller, nil
}

// SaveProfile creates or updates the caller's profile. A username change
// moves the index entry in the same transaction as the profile write.
func (s *ProfileService) SaveProfile(ctx context.Context, caller string, in ProfileInput) (*models.UserProfile, error) {
	if caller == "" {
		return nil, ErrUnauthenticated
	}
	if err := utils.ValidateDisplayName(in.DisplayName); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, err.Error())
	}

	now := s.now().UTC()
	existing, err := s.repo.Get(ctx, caller)
	switch {
	case errors.Is(err, repositories.ErrNotFound):
		existing = &models.UserProfile{ID: caller, CreatedAt: now}
	case err != nil:
		return nil, fmt.Errorf("load profile: %w", err)
	}

	p := *existing
	p.DisplayName = strings.TrimSpace(in.DisplayName)
	p.PhotoURL = strings.TrimSpace(in.PhotoURL)
	p.Bio = strings.TrimSpace(in.Bio)
	p.Location = strings.TrimSpace(in.Location)
	p.Phone = strings.TrimSpace(in.Phone)
	p.UpdatedAt = now

	previousLower := existing.UsernameLower
	if username := strings.TrimSpace(in.Username); username != "" {
		if err := utils.ValidateUsername(username); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidInput, err.Error())
		}
		p.Username = username
		p.UsernameLower = utils.NormalizeUsername(username)
	}

	if in.CompleteOnboarding {
		if p.Username == "" {
			return nil, fmt.Errorf("%w: a username is required to finish onboarding", ErrInvalidInput)
		}
		p.OnboardingCompleted = true
	}

	stored := p
	if stored.Phone, err = s.sealPhone(p.Phone); err != nil {
		return nil, fmt.Errorf("encrypt phone: %w", err)
	}
	if p.UsernameLower != "" && p.UsernameLower != previousLower {
		err = s.repo.SaveWithUsername(ctx, &stored, previousLower)
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, ErrUsernameTaken
		}
	} else {
		err = s.repo.Save(ctx, &stored)
	}
	if err != nil {
		return nil, fmt.Errorf("save profile: %w", err)
	}

	if err := s.cache.Delete(ctx, profileCacheKey(caller)); err != nil {
		s.log.Warn().Err(err).Str("uid", caller).Msg("profile cache invalidation failed")
	}
	return &p, nil
}

// RequireOnboarded fails unless uid has finished onboarding.
func (s *ProfileService) RequireOnboarded(ctx context.Context, uid string) error {
	if uid == "" {
		return ErrUnauthenticated
	}
	p, err := s.repo.Get(ctx, uid)
	if errors.Is(err, repositories.ErrNotFound) {
		return ErrOnboardingRequired
	}
	if err != nil {
		return fmt.Errorf("load profile: %w", err)
	}
	if !p.OnboardingCompleted {
		return ErrOnboardingRequired
	}
	return nil
}

// CompletionScore is the percentage of optional and required fields filled.
func CompletionScore(p *models.UserProfile) int {
	if p == nil {
		return 0
	}
	fields := []string{p.DisplayName, p.Username, p.PhotoURL, p.Bio, p.Location, p.Phone}
	filled := 0
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			filled++
		}
	}
	return filled * 100 / len(fields)
}
