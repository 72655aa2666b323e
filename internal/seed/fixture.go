// Package seed loads bot fixtures from YAML and applies them to a store.
package seed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"chatpilot.io/pilot/internal/domain"
	"chatpilot.io/pilot/internal/pkg/logger"
)

// Fixture is the root of a bots file.
type Fixture struct {
	Bots []BotFixture `yaml:"bots"`
}

// BotFixture describes one bot.
type BotFixture struct {
	ID               string        `yaml:"id"`
	OwnerID          string        `yaml:"owner_id"`
	Name             string        `yaml:"name"`
	SystemPrompt     string        `yaml:"system_prompt"`
	FallbackBehavior string        `yaml:"fallback_behavior"`
	Widget           WidgetFixture `yaml:"widget"`

	AllowedDomains     []string `yaml:"allowed_domains"`
	RateLimitPerMinute int      `yaml:"rate_limit_per_minute"`
	RateLimitMessage   string   `yaml:"rate_limit_message"`
}

// WidgetFixture is the widget appearance of a bot.
type WidgetFixture struct {
	Title          string `yaml:"title"`
	WelcomeMessage string `yaml:"welcome_message"`
	PrimaryColor   string `yaml:"primary_color"`
	Position       string `yaml:"position"`
}

// BotWriter stores bots.
type BotWriter interface {
	UpsertBot(ctx context.Context, b domain.BotConfig) error
}

// TrialProvisioner opens credit accounts.
type TrialProvisioner interface {
	EnsureTrialCredits(ctx context.Context, userID string) (*domain.CreditAccount, error)
}

// Result summarizes an Apply run.
type Result struct {
	Bots   int
	Owners int
}

// Parse decodes and validates a fixture. Unknown keys are rejected so typos
// surface instead of silently dropping settings.
func Parse(r io.Reader) (*Fixture, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f Fixture
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return &Fixture{}, nil
		}
		return nil, fmt.Errorf("decode bots fixture: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// LoadFile reads a fixture from path.
func LoadFile(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bots fixture: %w", err)
	}
	return Parse(bytes.NewReader(data))
}

// Validate checks required fields and ID uniqueness.
func (f *Fixture) Validate() error {
	seen := make(map[string]struct{}, len(f.Bots))
	var errs []error
	for i, b := range f.Bots {
		id := strings.TrimSpace(b.ID)
		if id == "" {
			errs = append(errs, fmt.Errorf("bots[%d]: id is required", i))
			continue
		}
		if _, dup := seen[id]; dup {
			errs = append(errs, fmt.Errorf("bots[%d]: duplicate id %q", i, id))
		}
		seen[id] = struct{}{}
		if strings.TrimSpace(b.OwnerID) == "" {
			errs = append(errs, fmt.Errorf("bots[%d] %s: owner_id is required", i, id))
		}
		if b.RateLimitPerMinute < 0 {
			errs = append(errs, fmt.Errorf("bots[%d] %s: rate_limit_per_minute must not be negative", i, id))
		}
	}
	return errors.Join(errs...)
}

// BotConfigs converts the fixture into domain values.
func (f *Fixture) BotConfigs() []domain.BotConfig {
	out := make([]domain.BotConfig, 0, len(f.Bots))
	for _, b := range f.Bots {
		out = append(out, domain.BotConfig{
			ID:               strings.TrimSpace(b.ID),
			OwnerID:          strings.TrimSpace(b.OwnerID),
			Name:             b.Name,
			SystemPrompt:     b.SystemPrompt,
			FallbackBehavior: b.FallbackBehavior,
			Widget: domain.WidgetConfig{
				Title:          b.Widget.Title,
				WelcomeMessage: b.Widget.WelcomeMessage,
				PrimaryColor:   b.Widget.PrimaryColor,
				Position:       b.Widget.Position,
			},
			Settings: domain.BotSettings{
				AllowedDomains:     append([]string(nil), b.AllowedDomains...),
				RateLimitPerMinute: b.RateLimitPerMinute,
				RateLimitMessage:   b.RateLimitMessage,
			},
		})
	}
	return out
}

// Owners returns the distinct owner IDs, sorted.
func (f *Fixture) Owners() []string {
	set := make(map[string]struct{}, len(f.Bots))
	for _, b := range f.Bots {
		set[strings.TrimSpace(b.OwnerID)] = struct{}{}
	}
	owners := make([]string, 0, len(set))
	for o := range set {
		owners = append(owners, o)
	}
	sort.Strings(owners)
	return owners
}

// Apply upserts every bot and, when ledger is non-nil, opens trial accounts
// for their owners. Re-running it is safe.
func Apply(ctx context.Context, f *Fixture, bots BotWriter, ledger TrialProvisioner) (Result, error) {
	var res Result
	for _, b := range f.BotConfigs() {
		if err := bots.UpsertBot(ctx, b); err != nil {
			return res, fmt.Errorf("seed bot %s: %w", b.ID, err)
		}
		res.Bots++
		logger.Debug("bot seeded", zap.String("bot_id", b.ID), zap.String("owner_id", b.OwnerID))
	}
	if ledger == nil {
		return res, nil
	}
	for _, owner := range f.Owners() {
		if _, err := ledger.EnsureTrialCredits(ctx, owner); err != nil {
			return res, fmt.Errorf("seed credits for %s: %w", owner, err)
		}
		res.Owners++
	}
	return res, nil
}
