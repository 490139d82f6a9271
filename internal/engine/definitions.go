package engine

// ScriptStep names one preprocessing script in the repository.
type ScriptStep struct {
	Name   string
	Script string
}

// Definition describes one database migration as data: which scripts run,
// which catalog suffix the run reads, and the per-importer file defaults.
// The engine consumes a Definition; importers do not subclass anything.
type Definition struct {
	Name        string
	TableSuffix string

	PreprocessingSteps []ScriptStep
	StagingScript      string
	JoinUpdateScript   string
	PKScript           string

	DefaultCSVFile string
	DefaultLogFile string

	// NextStepLabel names the migration that follows this one in the
	// standard sequence; it appears in the completion prompt.
	NextStepLabel string
}

// Justice is the first migration in the sequence. Its catalog tables carry
// no suffix.
func Justice() Definition {
	return Definition{
		Name:        "Justice",
		TableSuffix: "",
		PreprocessingSteps: []ScriptStep{
			{Name: "gather case ids", Script: "justice/gather_caseids.sql"},
			{Name: "gather charge ids", Script: "justice/gather_chargeids.sql"},
			{Name: "gather party ids", Script: "justice/gather_partyids.sql"},
			{Name: "gather warrant ids", Script: "justice/gather_warrantids.sql"},
			{Name: "gather hearing ids", Script: "justice/gather_hearingids.sql"},
			{Name: "gather event ids", Script: "justice/gather_eventids.sql"},
		},
		StagingScript:    "justice/gather_drops_and_selects.sql",
		JoinUpdateScript: "justice/update_joins.sql",
		PKScript:         "justice/create_primarykeys.sql",
		DefaultCSVFile:   "EJ_Justice_Selects_ALL.csv",
		DefaultLogFile:   "PreDMSErrorLog_Justice.txt",
		NextStepLabel:    "Operations migration",
	}
}

// Operations is the second migration in the sequence.
func Operations() Definition {
	return Definition{
		Name:        "Operations",
		TableSuffix: "_Operations",
		PreprocessingSteps: []ScriptStep{
			{Name: "gather document ids", Script: "operations/gather_documentids.sql"},
		},
		StagingScript:    "operations/gather_drops_and_selects_operations.sql",
		JoinUpdateScript: "operations/update_joins_operations.sql",
		PKScript:         "operations/create_primarykeys_operations.sql",
		DefaultCSVFile:   "EJ_Operations_Selects_ALL.csv",
		DefaultLogFile:   "PreDMSErrorLog_Operations.txt",
		NextStepLabel:    "Financial migration",
	}
}

// Financial is the third migration in the sequence.
func Financial() Definition {
	return Definition{
		Name:        "Financial",
		TableSuffix: "_Financial",
		PreprocessingSteps: []ScriptStep{
			{Name: "gather fee ids", Script: "financial/gather_feeids.sql"},
			{Name: "gather payment ids", Script: "financial/gather_paymentids.sql"},
		},
		StagingScript:    "financial/gather_drops_and_selects_financial.sql",
		JoinUpdateScript: "financial/update_joins_financial.sql",
		PKScript:         "financial/create_primarykeys_financial.sql",
		DefaultCSVFile:   "EJ_Financial_Selects_ALL.csv",
		DefaultLogFile:   "PreDMSErrorLog_Financial.txt",
		NextStepLabel:    "LOB column processing",
	}
}
