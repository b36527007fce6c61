package main

import "aria/internal/storage"

// defaultExpertCatalog is the fixed 8-expert descriptor seed (§9). In
// production this would be loaded from an ops-owned experts.yaml; the
// catalog itself is static either way, so it is wired here as a literal
// rather than adding a file-watching layer nothing else needs.
func defaultExpertCatalog() []storage.ExpertDescriptor {
	return []storage.ExpertDescriptor{
		{
			Name:              "birthday",
			Capabilities:      []string{"birthday_lookup", "birthday_reminder"},
			PatternHints:      []string{"birthday", "born on", "turns \\d+"},
			DefaultConfidence: 0.8,
		},
		{
			Name:              "calendar",
			Capabilities:      []string{"event_create", "event_query", "schedule_lookup"},
			PatternHints:      []string{"calendar", "schedule", "meeting", "appointment"},
			DefaultConfidence: 0.75,
		},
		{
			Name:              "homeassistant",
			Capabilities:      []string{"device_control", "device_status"},
			PatternHints:      []string{"turn on", "turn off", "thermostat", "lights"},
			DefaultConfidence: 0.8,
		},
		{
			Name:              "journal",
			Capabilities:      []string{"journal_entry_create", "journal_query"},
			PatternHints:      []string{"journal", "diary", "today i"},
			DefaultConfidence: 0.7,
		},
		{
			Name:              "list",
			Capabilities:      []string{"list_add", "list_remove", "list_query"},
			PatternHints:      []string{"add .* to my list", "shopping list", "to-do"},
			DefaultConfidence: 0.75,
		},
		{
			Name:              "memory",
			Capabilities:      []string{"fact_recall", "fact_store"},
			PatternHints:      []string{"remember", "what did i say", "recall"},
			DefaultConfidence: 0.6,
		},
		{
			Name:              "planning",
			Capabilities:      []string{"task_breakdown", "plan_outline"},
			PatternHints:      []string{"plan", "break this down", "steps to"},
			DefaultConfidence: 0.6,
		},
		{
			Name:              "reminder",
			Capabilities:      []string{"reminder_create", "reminder_query"},
			PatternHints:      []string{"remind me", "reminder"},
			DefaultConfidence: 0.8,
		},
	}
}
