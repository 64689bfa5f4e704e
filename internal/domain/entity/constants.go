package entity

// Outbox status constants
const (
	OutboxStatusPending = "PENDING"
	OutboxStatusSent    = "SENT"
	OutboxStatusFailed  = "FAILED"
)

// Currency code length (ISO 4217)
const CurrencyCodeLength = 3

// Expense categories offered by the request form
const (
	CategoryTravel         = "travel"
	CategoryMeal           = "meal"
	CategoryAccommodation  = "accommodation"
	CategoryEquipment      = "equipment"
	CategoryTransportation = "transportation"
	CategoryEntertainment  = "entertainment"
	CategoryOther          = "other"
)
