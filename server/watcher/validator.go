package watcher

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// SupportedTypes lists all watcher types this plugin supports
var SupportedTypes = map[string]bool{
	TypeSOS:       true,
	TypeIncidents: true,
	TypeZones:     true,
}

// MaxLimit bounds the number of mirrored documents per watcher.
const MaxLimit = 1000

// ValidateWatchers validates watcher configurations.
func ValidateWatchers(configs []Config) error {
	if len(configs) == 0 {
		return nil
	}

	seenIDs := make(map[string]bool)
	seenNames := make(map[string]bool)

	for i, config := range configs {
		if err := validateRequiredFields(config); err != nil {
			return fmt.Errorf("watcher configuration at position %d: %w", i+1, err)
		}

		if err := validateUUID(config.ID); err != nil {
			return fmt.Errorf("watcher '%s': %w", config.Name, err)
		}

		if seenIDs[config.ID] {
			return fmt.Errorf("duplicate watcher ID found: %s", config.ID)
		}
		seenIDs[config.ID] = true

		if seenNames[config.Name] {
			return fmt.Errorf("duplicate watcher name found: '%s'", config.Name)
		}
		seenNames[config.Name] = true

		if !SupportedTypes[config.Type] {
			return fmt.Errorf("watcher '%s': unsupported type '%s' (expected sos, incidents or zones)", config.Name, config.Type)
		}

		if config.Type == TypeSOS && config.ChannelID == "" {
			return fmt.Errorf("watcher '%s': missing required field 'channelId'", config.Name)
		}

		if err := validateCollection(config.Collection); err != nil {
			return fmt.Errorf("watcher '%s': %w", config.Name, err)
		}

		if config.Limit < 0 || config.Limit > MaxLimit {
			return fmt.Errorf("watcher '%s': limit must be between 0 and %d (got %d)", config.Name, MaxLimit, config.Limit)
		}
	}

	return nil
}

func validateRequiredFields(config Config) error {
	if config.ID == "" {
		return fmt.Errorf("missing required field 'id'")
	}
	if config.Name == "" {
		return fmt.Errorf("missing required field 'name'")
	}
	if config.Type == "" {
		return fmt.Errorf("missing required field 'type'")
	}
	return nil
}

// validateUUID checks that the ID is a valid UUID v4
func validateUUID(id string) error {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("invalid UUID format for id: %w", err)
	}

	if parsed.Version() != 4 {
		return fmt.Errorf("id must be a UUID v4 (got version %d)", parsed.Version())
	}

	return nil
}

// validateCollection accepts an empty override or a top-level collection id.
func validateCollection(name string) error {
	if name == "" {
		return nil
	}
	if strings.Contains(name, "/") {
		return fmt.Errorf("collection must be a top-level collection id (got %q)", name)
	}
	if strings.HasPrefix(name, "__") && strings.HasSuffix(name, "__") {
		return fmt.Errorf("collection id %q is reserved", name)
	}
	return nil
}

// DiffWatcherConfigs compares old and new watcher configurations and returns
// the IDs to add, update, and remove.
func DiffWatcherConfigs(oldConfigs, newConfigs []Config) (toAdd, toUpdate, toRemove []string) {
	oldMap := make(map[string]Config)
	newMap := make(map[string]Config)

	for _, cfg := range oldConfigs {
		oldMap[cfg.ID] = cfg
	}

	for _, cfg := range newConfigs {
		newMap[cfg.ID] = cfg
	}

	for id, newCfg := range newMap {
		if oldCfg, exists := oldMap[id]; !exists {
			toAdd = append(toAdd, id)
		} else if oldCfg != newCfg {
			toUpdate = append(toUpdate, id)
		}
	}

	for id := range oldMap {
		if _, exists := newMap[id]; !exists {
			toRemove = append(toRemove, id)
		}
	}

	return toAdd, toUpdate, toRemove
}
