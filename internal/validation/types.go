package validation

// CustomerInfo is the delivery contact of an order.
type CustomerInfo struct {
	CustomerName    string `json:"customerName" validate:"required,min=3,max=100,personname"`
	CustomerPhone   string `json:"customerPhone" validate:"required,min=10,max=15,phone"`
	CustomerAddress string `json:"customerAddress" validate:"required,min=10,max=200"`
	Neighborhood    string `json:"neighborhood,omitempty" validate:"max=100"`
	City            string `json:"city" validate:"required,min=2,max=100"`
	Notes           string `json:"notes,omitempty" validate:"max=500"`
	DeliveryDate    string `json:"deliveryDate,omitempty"`
	DeliveryTime    string `json:"deliveryTime,omitempty"`
}

// Item is a single order line. ID references the product whose stock backs it.
type Item struct {
	ID             string  `json:"id" validate:"required"`
	Name           string  `json:"name" validate:"required,min=1,max=200"`
	SelectedWeight float64 `json:"selectedWeight" validate:"gt=0,lte=50"`   // kg, at most 50 per line
	FinalPrice     float64 `json:"finalPrice" validate:"gt=0,lte=10000000"` // line price
	PricePerKg     float64 `json:"pricePerKg" validate:"gt=0"`
	Category       string  `json:"category,omitempty"`
	ImageURL       string  `json:"imageUrl,omitempty"`
}

// CreateOrderRequest is the payload for POST /orders/create.
type CreateOrderRequest struct {
	CustomerInfo CustomerInfo `json:"customerInfo" validate:"required"`
	// At most 98 lines: one stock update each, plus the idempotency claim
	// and the order, stays within the 100-action transaction limit.
	Items         []Item  `json:"items" validate:"required,min=1,max=98,dive"`
	Total         float64 `json:"total,omitempty" validate:"gte=0"` // informational; recomputed server-side
	PaymentMethod string  `json:"paymentMethod" validate:"required,oneof=efectivo transferencia"`

	IdempotencyKey string `json:"idempotencyKey,omitempty" validate:"max=200"`
	Source         string `json:"source,omitempty" validate:"max=100"`

	// BusinessFax is a hidden form field; humans never fill it.
	BusinessFax string `json:"business_fax,omitempty"`
}

// UpdateOrderRequest is the payload for POST /orders/update.
type UpdateOrderRequest struct {
	ID            string `json:"id" validate:"required"`
	Status        string `json:"status,omitempty" validate:"max=40"`
	TransactionID string `json:"transactionId,omitempty" validate:"max=200"`
	Notes         string `json:"notes,omitempty" validate:"max=1000"`
	ConfirmAction bool   `json:"confirmAction,omitempty"`
	DecisionType  string `json:"decisionType,omitempty" validate:"omitempty,oneof=CORTESIA AJUSTE_PESO OVERRIDE_ESTADO CANCELACION_MANUAL"`
	Reason        string `json:"reason,omitempty" validate:"max=1000"`
}

// SettingsRequest is the payload for POST /system/settings.
type SettingsRequest struct {
	Mode             string `json:"mode" validate:"max=20"`
	Reason           string `json:"reason" validate:"max=1000"`
	EmergencyMessage string `json:"emergencyMessage,omitempty" validate:"max=500"`
}
