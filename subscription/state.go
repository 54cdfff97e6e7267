package subscription

import (
	"fmt"
	"os"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/google/uuid"
	"github.com/quiterss/adblock"
	"gopkg.in/yaml.v3"
)

// state is the persisted state of the manager.
type state struct {
	// Overrides are the user's filtering switches.
	Overrides *adblock.OverridesState `yaml:"overrides"`

	// Custom is the state of the custom list.
	Custom *customState `yaml:"custom"`

	// Subscriptions are the remote subscriptions in the order of addition.
	Subscriptions []*subscriptionState `yaml:"subscriptions"`

	// DisabledRules are the texts of the rules disabled by the user.
	DisabledRules []string `yaml:"disabled_rules"`
}

// customState is the persisted state of the custom list.
type customState struct {
	UID     uuid.UUID `yaml:"uid"`
	Enabled bool      `yaml:"enabled"`
}

// subscriptionState is the persisted state of a remote subscription.
type subscriptionState struct {
	LastUpdated time.Time `yaml:"last_updated"`
	Title       string    `yaml:"title"`
	URL         string    `yaml:"url"`
	ETag        string    `yaml:"etag,omitempty"`
	UID         uuid.UUID `yaml:"uid"`
	ID          int       `yaml:"id"`
	Enabled     bool      `yaml:"enabled"`
}

// readState reads the state from the file at path.  st is nil if the file
// does not exist.
func readState(path string) (st *state, err error) {
	// #nosec G304 -- Assume that path is always the data directory plus a
	// constant file name.
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("reading state: %w", err)
	}

	st = &state{}
	err = yaml.Unmarshal(data, st)
	if err != nil {
		return nil, fmt.Errorf("decoding state %q: %w", path, err)
	}

	return st, nil
}

// writeState atomically writes st into the file at path.
func writeState(path string, st *state) (err error) {
	data, err := yaml.Marshal(st)
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}

	err = writeFile(path, data)
	if err != nil {
		return fmt.Errorf("writing state %q: %w", path, err)
	}

	return nil
}
