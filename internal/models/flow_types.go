// Package models defines scene and flow type definitions to avoid circular imports.
package models

// SceneID identifies a registered scene.
type SceneID string

// FlowKind tags the variant of a Flow.
type FlowKind string

// Scene identifiers.
const (
	SceneNone           SceneID = ""
	SceneLogHabit       SceneID = "LOG_HABIT_SCENE"
	SceneNewHabit       SceneID = "NEW_HABIT_SCENE"
	SceneRemoveHabit    SceneID = "REMOVE_HABIT_SCENE"
	SceneSetDatabaseID  SceneID = "SET_DATABASE_ID_SCENE"
	SceneAddReminder    SceneID = "ADD_REMINDER_SCENE"
	SceneClearReminders SceneID = "CLEAR_REMINDERS_SCENE"
	SceneSetTimezone    SceneID = "SET_TIMEZONE_SCENE"
)

// Flow kinds.
const (
	FlowNone      FlowKind = ""
	FlowLogging   FlowKind = "logging"
	FlowCreating  FlowKind = "creating"
	FlowRemoving  FlowKind = "removing"
	FlowReminding FlowKind = "reminding"
)
