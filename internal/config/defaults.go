package config

import "github.com/MrWong99/reqrag/pkg/store"

// DefaultQueryConfig returns the built-in Hebrew pattern set. File values
// replace whole lists; there is no per-token merging.
func DefaultQueryConfig() QueryConfig {
	return QueryConfig{
		IntentTriggers: map[store.Intent][]string{
			store.IntentPerson:  {"של", "מאת", "על ידי", "עובד", "אחראי", "יזם"},
			store.IntentProject: {"פרויקט", "פרוייקט", "בפרויקט", "בפרוייקט"},
			store.IntentType:    {"מסוג", "סוג"},
			store.IntentStatus:  {"בסטטוס", "סטטוס", "במצב"},
		},
		UrgencyTriggers: []string{"דחוף", "דחופות", "דחופים", "דחופה", "בדחיפות", "דדליין"},
		ProjectsEntityTriggers: []string{
			"פרויקטים", "פרוייקטים", "לפי פרויקט", "לפי פרוייקט",
		},
		AnswerRetrievalTriggers: []string{
			"תשובה", "התשובה", "מענה", "המענה", "מה נענה", "מה ענו",
		},
		QueryTypeTriggers: map[store.QueryType][]string{
			store.QueryFind:      {"מצא", "תמצא", "חפש", "תביא", "הבא", "הצג", "תראה", "אילו", "איזה"},
			store.QueryCount:     {"כמה", "מספר", "ספור", "ספירה"},
			store.QuerySummarize: {"סכם", "תסכם", "סיכום", "תקציר", "סקירה"},
			store.QuerySimilar:   {"דומה", "דומות", "דומים", "דומה ל", "כמו בקשה"},
			store.QueryUrgent:    {"דחוף", "דחופות", "דחופים", "דחופה", "בדחיפות"},
		},
		FieldLabelMap: map[string]string{
			"פרויקט":   store.LabelProject,
			"פרוייקט":  store.LabelProject,
			"תיאור":    store.LabelProjectDescription,
			"אזור":     store.LabelArea,
			"הערות":    store.LabelRemarks,
			"עודכן":    store.LabelUpdatedBy,
			"מעדכן":    store.LabelUpdatedBy,
			"נוצר":     store.LabelCreatedBy,
			"יוצר":     store.LabelCreatedBy,
			"אחראי":    store.LabelResponsibleEmployee,
			"איש קשר":  store.LabelContactFirstName,
			"משפחה":    store.LabelContactLastName,
			"יזם":      store.LabelYazamContactName,
			"סוג":      store.LabelType,
			"סטטוס":    store.LabelStatus,
		},
		StopWordsForNameExtraction: []string{
			"מסוג", "בסטטוס", "סטטוס", "עד", "מתאריך", "בתאריך",
			"שחדרו", "שנכנסו", "בשבוע", "בחודש", "בימים",
			"השבוע", "החודש", "האחרון", "האחרונים", "יש", "כל",
		},
		PersonContextTokens: []string{
			"של", "מאת", "על ידי", "מ", "מא", "בקשות", "פניות", "עובד",
		},
		FillerWords: []string{"לי", "me", "בבקשה", "נא"},
		TargetFieldsByIntent: map[store.Intent][]string{
			store.IntentPerson: {
				store.LabelUpdatedBy,
				store.LabelCreatedBy,
				store.LabelResponsibleEmployee,
				store.LabelContactFirstName,
				store.LabelContactLastName,
				store.LabelYazamContactName,
			},
			store.IntentProject: {
				store.LabelProject,
				store.LabelProjectDescription,
			},
			store.IntentType:   {store.LabelType},
			store.IntentStatus: {store.LabelStatus},
		},
		Thresholds: ThresholdsConfig{
			PersonProject: 0.5,
			General:       0.4,
			Mixed:         0.2,
			Similar:       0.6,
		},
		UrgencyHorizonDays:   7,
		ChunkFetchMultiplier: 3,
		Boosts: BoostsConfig{
			ExactInTargetField: 2.0,
			EntityInChunk:      1.5,
			Base:               1.0,
		},
		Labels: DefaultLabels(),
	}
}

// DefaultLabels returns the built-in Hebrew answer strings.
func DefaultLabels() LabelsConfig {
	return LabelsConfig{
		Request:             "בקשה",
		TotalFound:          "סהכ נמצאו",
		Deadline:            "דדליין",
		Days:                "ימים",
		SourceRequest:       "בקשת המקור",
		SimilarTo:           "בקשות דומות",
		NotFoundAnswer:      "לא נמצאה בקשה עם המזהה שצוין",
		NoResultsAnswer:     "לא נמצאו בקשות התואמות את החיפוש",
		TimeoutAnswer:       "לא ניתן היה להפיק תשובה בזמן, מוחזרות הבקשות שאותרו",
		ProjectsCountHeader: "מספר בקשות לפי פרויקט",
		TotalProjects:       "סהכ פרויקטים",
	}
}

// DefaultGeneration returns the built-in generation settings.
func DefaultGeneration() GenerationConfig {
	return GenerationConfig{
		MaxNewTokensCPU:   200,
		MaxNewTokensAccel: 500,
		Temperature:       0.7,
		TopP:              0.9,
		Decoding:          DecodingAuto,
		QueueDepth:        4,
	}
}

// DefaultTimeouts returns the built-in request deadlines.
func DefaultTimeouts() TimeoutsConfig {
	return TimeoutsConfig{
		TotalMS:    120_000,
		GenerateMS: 90_000,
	}
}

// Default returns the full built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: ":8080",
			LogLevel:   LogInfo,
		},
		Database: DatabaseConfig{
			EmbeddingDimensions:    384,
			StartupRetries:         5,
			StartupRetryIntervalMS: 2000,
		},
		Query:      DefaultQueryConfig(),
		Generation: DefaultGeneration(),
		Timeouts:   DefaultTimeouts(),
	}
}
