// Package models defines the user profile structures supplied by the profile
// store. The profile is read-only from the perspective of the dialogue engine.
package models

// Demographics holds basic user attributes.
type Demographics struct {
	AgeYears int     `json:"age_years"`
	Sex      string  `json:"sex,omitempty"`
	HeightCm float64 `json:"height_cm,omitempty"`
}

// BodyMetrics holds the latest body measurements.
type BodyMetrics struct {
	WeightKg             float64 `json:"weight_kg,omitempty"`
	WeightLbs            float64 `json:"weight_lbs,omitempty"`
	BMI                  float64 `json:"bmi,omitempty"`
	BodyFatPct           float64 `json:"body_fat_pct,omitempty"`
	WeightLastUpdatedISO string  `json:"weight_last_updated_iso,omitempty"`
}

// Baselines holds rolling-window averages used for personalization.
type Baselines struct {
	BaselineWindowDays         int     `json:"baseline_window_days"`
	AvgStepsPerDay             float64 `json:"avg_steps_per_day,omitempty"`
	AvgCaloriesPerDay          float64 `json:"avg_calories_per_day,omitempty"`
	AvgSleepMinutesPerNight    float64 `json:"avg_sleep_minutes_per_night,omitempty"`
	AvgRestingHRBpm            float64 `json:"avg_resting_hr_bpm,omitempty"`
	AvgHRBpm                   float64 `json:"avg_hr_bpm,omitempty"`
	AvgVeryActiveMinutesPerDay float64 `json:"avg_very_active_minutes_per_day,omitempty"`
	AvgSedentaryMinutesPerDay  float64 `json:"avg_sedentary_minutes_per_day,omitempty"`
	HRVMs                      float64 `json:"hrv_ms,omitempty"`
}

// ActivityProfile describes self-reported activity preferences.
type ActivityProfile struct {
	ActivityLevel         string   `json:"activity_level,omitempty"`
	PreferredWorkoutTypes []string `json:"preferred_workout_types,omitempty"`
	Timezone              string   `json:"timezone,omitempty"`
}

// HealthGoals holds the user's configured targets.
type HealthGoals struct {
	DailyStepsGoal          int     `json:"daily_steps_goal,omitempty"`
	WeeklyActiveMinutesGoal int     `json:"weekly_active_minutes_goal,omitempty"`
	SleepHoursGoal          float64 `json:"sleep_hours_goal,omitempty"`
	WeightGoalKg            float64 `json:"weight_goal_kg,omitempty"`
}

// CoachingPreferences controls how proactive the assistant should be.
// Suggestiveness in [0,1]; the suggestion stage is skipped entirely when it
// falls below the configured minimum.
type CoachingPreferences struct {
	Suggestiveness        float64 `json:"suggestiveness"`
	Tone                  string  `json:"tone,omitempty"`
	NotificationFrequency string  `json:"notification_frequency,omitempty"`
}

// SystemState tracks onboarding and consent flags.
type SystemState struct {
	OnboardingCompleted      bool   `json:"onboarding_completed"`
	ConsentMedicalDisclaimer bool   `json:"consent_medical_disclaimer"`
	LastInteractionISO       string `json:"last_interaction_iso,omitempty"`
	LastSuggestionKey        string `json:"last_suggestion_key,omitempty"`
}

// UserProfile is the hydrated profile for one user. Supplied by the profile
// store and never mutated by the dialogue engine.
type UserProfile struct {
	UserID              int64               `json:"user_id"`
	UserName            string              `json:"user_name"`
	Demographics        Demographics        `json:"demographics"`
	BodyMetrics         BodyMetrics         `json:"body_metrics"`
	Baselines           Baselines           `json:"baselines"`
	ActivityProfile     ActivityProfile     `json:"activity_profile"`
	HealthGoals         HealthGoals         `json:"health_goals"`
	CoachingPreferences CoachingPreferences `json:"coaching_preferences"`
	SystemState         SystemState         `json:"system_state"`
}
