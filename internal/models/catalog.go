// Package models defines the intent and data-source catalog shared by the
// classifier prompt, the routing policy, and the data-availability node.
package models

// SourceOrder is the priority order used when normalizing suggested sources.
var SourceOrder = []DataSource{
	SourceUserMetrics,
	SourceUserProfile,
	SourceKnowledgeBase,
	SourceCalendar,
	SourceNone,
}

// IntentMinSources maps each intent to the sources that must always be
// present for it. Normalization injects missing entries.
var IntentMinSources = map[IntentLabel][]DataSource{
	IntentMetricRetrieval:     {SourceUserMetrics},
	IntentCorrelationAnalysis: {SourceUserMetrics, SourceUserProfile},
	IntentCoachingRequest:     {SourceUserMetrics, SourceKnowledgeBase},
	IntentBenchmarkEvaluation: {SourceUserMetrics, SourceKnowledgeBase},
	IntentDataAvailability:    {SourceUserProfile},
	IntentOutOfScope:          {SourceNone},
	IntentGreeting:            {SourceNone},
}

// IntentResponseTypes maps each intent to its canonical response type.
var IntentResponseTypes = map[IntentLabel]ResponseType{
	IntentMetricRetrieval:     ResponseDataLookup,
	IntentCorrelationAnalysis: ResponseTrendAnalysis,
	IntentCoachingRequest:     ResponseActionableAdvice,
	IntentBenchmarkEvaluation: ResponseBenchmarkInfo,
	IntentDataAvailability:    ResponseDataLookup,
	IntentOutOfScope:          ResponseHelpMessage,
	IntentGreeting:            ResponseHelpMessage,
}

// IntentOrder fixes the order intents are listed in the classifier prompt.
var IntentOrder = []IntentLabel{
	IntentMetricRetrieval,
	IntentCorrelationAnalysis,
	IntentCoachingRequest,
	IntentBenchmarkEvaluation,
	IntentDataAvailability,
	IntentOutOfScope,
	IntentGreeting,
	IntentUnclear,
}

// IntentDefinitions describes each intent for the classifier system prompt.
var IntentDefinitions = map[IntentLabel]string{
	IntentMetricRetrieval: "Descriptive request for specific metrics or simple trends. " +
		"Examples: 'How many steps today?', 'Did I sleep well?'",
	IntentCorrelationAnalysis: "Insight or correlative request seeking explanation of patterns. " +
		"Examples: 'Why was my sleep worse?', 'Do my steps affect my resting heart rate?'",
	IntentCoachingRequest: "Prescriptive request for actionable advice grounded in user context, " +
		"including general health questions. Examples: 'How can I improve my sleep?'",
	IntentBenchmarkEvaluation: "Benchmarking request comparing metrics to normal ranges. " +
		"Examples: 'Is my heart rate normal?', 'Am I sleeping enough?'",
	IntentDataAvailability: "Questions about what data exists or why something is missing. " +
		"Examples: 'Do you have my heart rate data?', 'What information can you provide?'",
	IntentOutOfScope: "Request unrelated to health, fitness, sleep, or physiological metrics. " +
		"Examples: 'What's the weather?', 'Tell me a joke'",
	IntentGreeting: "Greeting or capability check, routed to a canned help message. " +
		"Examples: 'Hello', 'Hi there', 'What can you do?'",
	IntentUnclear: "The user intent may be health related but is unclear and requires clarification. " +
		"Examples: 'How did I do?', 'How am I?'",
}

// AvailableMetrics catalogs the time-series metric families the SQL store can
// answer questions about. Used by the data-availability node and the planner
// prompt.
var AvailableMetrics = map[string]string{
	"steps":          "Daily step count and intensity",
	"heart_rate":     "Time-series heart rate data (bpm)",
	"calories":       "Daily calories burned",
	"active_minutes": "Very active, fairly active, and sedentary minutes",
	"weight":         "Body weight logs (kg/lbs) and BMI",
}

// KnowledgeTopics lists the curated knowledge-base topics available to the
// knowledge-retrieval tool.
var KnowledgeTopics = []string{
	"normal_heart_rate_ranges",
	"sleep_hygiene_tips",
	"zone_minutes_explanation",
	"bmi_categories",
	"step_goal_recommendations",
	"cardio_fitness_score_explained",
}

// MetricsSchemaContext is the database schema description handed to the SQL
// sub-agent. The catalog is pre-loaded so the agent never has to introspect
// the database at runtime.
const MetricsSchemaContext = `You have access to a SQLite database with the following tables.
- The 'user_id' is always BIGINT.
- 'event_date' is a DATE string ('YYYY-MM-DD').
- 'event_time' is a TIMESTAMP string ('YYYY-MM-DD HH:MM:SS').

1. daily_activity
   - Columns: user_id, event_date, total_steps, total_distance, calories, very_active_minutes, fairly_active_minutes, lightly_active_minutes, sedentary_minutes.
   - Use for daily summaries: "How many steps did I take?", "Calories burned today".
   - event_date is stored as a TIMESTAMP string like '2016-04-10 00:00:00'; always compare
     using DATE(event_date) or a full timestamp.

2. heartrate
   - Columns: user_id, event_time, bpm.
   - Minute-level heart rate data. This table is large; always filter by a specific
     time range and LIMIT results.

3. hourly_steps
   - Columns: user_id, event_time, steps.
   - Intraday activity analysis: "When was I most active?", "Steps per hour".

4. weight_log
   - Columns: user_id, event_time, weight_kg, weight_lbs, bmi, fat.
   - Body metrics and weight tracking.`

// Canned responses for static intents.
const (
	// GreetingResponse is returned verbatim for GREETING turns.
	GreetingResponse = "Hello! I'm your Fitbit Health Assistant. " +
		"I can help you analyze your activity patterns, sleep quality, " +
		"heart rate trends, and overall wellness goals.\n\n" +
		"What would you like to check today?"

	// OutOfScopeResponse is returned verbatim for OUT_OF_SCOPE turns.
	OutOfScopeResponse = "I'm designed to focus specifically on your health, fitness, and physiological data. " +
		"I can't help with that particular request, but I'm ready to answer questions " +
		"about your steps, sleep, or workout trends!"

	// ErrorResponse is the generic apology shown when a turn fails.
	ErrorResponse = "I apologize, but I ran into an issue processing your request. " +
		"Could you try asking again, perhaps rephrasing your question?"

	// GenericInvitation is the clarification fallback when no history exists.
	GenericInvitation = "I'm listening. How can I help?"
)
